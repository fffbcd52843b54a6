package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/otp-fetch/internal/config"
)

// ErrAuthentication indicates the server rejected the configured
// credentials. Fatal: the pool never retries a failed login.
var ErrAuthentication = errors.New("imap authentication failed")

// Session is one authenticated IMAP connection. Sessions are owned by
// the pool and leased to at most one folder scan at a time.
type Session struct {
	ID       string
	client   *client.Client
	ping     func() error
	alive    bool
	lastUsed time.Time
}

// Connect dials the IMAP server over TLS and logs in
func Connect(cfg config.MailboxConfig, logger *logrus.Logger) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := cl.Login(cfg.Username, cfg.Password); err != nil {
		logger.WithError(err).Error("Failed to login to IMAP server")
		cl.Logout() //nolint:errcheck
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	sess := &Session{
		ID:       uuid.NewString(),
		client:   cl,
		ping:     cl.Noop,
		alive:    true,
		lastUsed: time.Now(),
	}
	logger.WithFields(logrus.Fields{
		"session": sess.ID,
		"server":  addr,
	}).Debug("IMAP session established")
	return sess, nil
}

// Alive reports whether the session passed its last health check
func (s *Session) Alive() bool {
	return s.alive
}

// Ping verifies the connection with a NOOP, marking the session dead on failure
func (s *Session) Ping() error {
	if !s.alive {
		return fmt.Errorf("session %s is closed", s.ID)
	}
	if s.ping != nil {
		if err := s.ping(); err != nil {
			s.alive = false
			return fmt.Errorf("session %s failed health check: %w", s.ID, err)
		}
	}
	s.lastUsed = time.Now()
	return nil
}

// Close logs the session out
func (s *Session) Close() error {
	s.alive = false
	if s.client != nil {
		cl := s.client
		s.client = nil
		return cl.Logout()
	}
	return nil
}

func (s *Session) touch() {
	s.lastUsed = time.Now()
}
