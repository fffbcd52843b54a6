package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IMAP_USERNAME", "user@gmail.com")
	t.Setenv("IMAP_PASSWORD", "app-password")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "imap.gmail.com", cfg.Mailbox.Host)
	assert.Equal(t, 993, cfg.Mailbox.Port)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, []string{"INBOX", "[Gmail]/Spam"}, cfg.Folders)
	assert.Equal(t, 30, cfg.ScanLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 1.0, cfg.BackoffFactor)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 120*time.Second, cfg.DefaultMaxWait)
	assert.Equal(t, 6, cfg.OTPLength)
	assert.False(t, cfg.MatchRecipient)
}

func TestLoadConfigGmailFallback(t *testing.T) {
	t.Setenv("GMAIL_USER", "user@gmail.com")
	t.Setenv("GMAIL_APP_PASSWORD", "app-password")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "user@gmail.com", cfg.Mailbox.Username)
	assert.Equal(t, "app-password", cfg.Mailbox.Password)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("IMAP_HOST", "mail.example.com")
	t.Setenv("IMAP_PORT", "1993")
	t.Setenv("IMAP_USERNAME", "user@example.com")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("POOL_SIZE", "4")
	t.Setenv("FOLDERS", "INBOX, Junk ,Archive")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("BACKOFF_FACTOR", "1.5")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("MATCH_RECIPIENT", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mail.example.com", cfg.Mailbox.Host)
	assert.Equal(t, 1993, cfg.Mailbox.Port)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, []string{"INBOX", "Junk", "Archive"}, cfg.Folders)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 1.5, cfg.BackoffFactor)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.MatchRecipient)
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.Mailbox.Username = ""
	cfg.Mailbox.Password = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	t.Setenv("IMAP_USERNAME", "user@gmail.com")
	t.Setenv("IMAP_PASSWORD", "app-password")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.PoolSize = 0
	assert.Error(t, cfg.Validate())
	cfg.PoolSize = 10

	cfg.BackoffFactor = 0.5
	assert.Error(t, cfg.Validate())
	cfg.BackoffFactor = 1.0

	cfg.ScanLimit = 0
	assert.Error(t, cfg.Validate())
	cfg.ScanLimit = 30

	cfg.OTPLength = 2
	assert.Error(t, cfg.Validate())
	cfg.OTPLength = 6

	require.NoError(t, cfg.Validate())
}
