package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/brandon/otp-fetch/pkg/types"
)

// SQLiteCache is a ResultCache persisted to disk, so results survive
// across short-lived processes (one bridging invocation per fetch).
type SQLiteCache struct {
	db     *sql.DB
	ttl    time.Duration
	logger *logrus.Logger
}

// NewSQLiteCache opens (or creates) the cache database at dbPath
func NewSQLiteCache(dbPath string, ttl time.Duration, logger *logrus.Logger) (*SQLiteCache, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Debug("Result cache initialized")
	return &SQLiteCache{
		db:     db,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Get returns the cached result for key, if present and unexpired.
// Expiry is lazy: expired rows are treated as absent.
func (c *SQLiteCache) Get(key string) (types.FetchResult, bool) {
	var result types.FetchResult
	var subject sql.NullString

	query := `
		SELECT otp, folder, subject, fetch_time_ms
		FROM otp_results
		WHERE key = ? AND expires_at > ?
	`
	err := c.db.QueryRow(query, key, time.Now().UTC()).Scan(
		&result.OTP,
		&result.Folder,
		&subject,
		&result.FetchTimeMillis,
	)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.WithError(err).WithField("key", key).Warn("Failed to read result cache")
		}
		return types.FetchResult{}, false
	}

	result.Subject = subject.String
	return result, true
}

// Put stores result under key, replacing any existing entry
func (c *SQLiteCache) Put(key string, result types.FetchResult) {
	query := `
		INSERT INTO otp_results (key, otp, folder, subject, fetch_time_ms, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			otp = excluded.otp,
			folder = excluded.folder,
			subject = excluded.subject,
			fetch_time_ms = excluded.fetch_time_ms,
			created_at = CURRENT_TIMESTAMP,
			expires_at = excluded.expires_at
	`
	now := time.Now().UTC()
	if _, err := c.db.Exec(query, key, result.OTP, result.Folder, result.Subject, result.FetchTimeMillis, now.Add(c.ttl)); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to write result cache")
		return
	}

	// Memory hygiene: sweep rows that expired before this write.
	if _, err := c.db.Exec("DELETE FROM otp_results WHERE expires_at <= ?", now); err != nil {
		c.logger.WithError(err).Debug("Failed to purge expired cache rows")
	}
}

// Close closes the database connection
func (c *SQLiteCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
