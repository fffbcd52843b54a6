package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Mailbox MailboxConfig

	// Pool settings
	PoolSize       int
	AcquireTimeout time.Duration

	// Scan settings
	Folders        []string
	ScanLimit      int
	DefaultSender  string
	MatchRecipient bool

	// Poll settings
	PollInterval    time.Duration
	BackoffFactor   float64
	MaxPollInterval time.Duration
	DefaultMaxWait  time.Duration

	// Cache settings
	CacheTTL  time.Duration
	CachePath string

	// Parser settings
	OTPPattern string
	OTPLength  int

	LogLevel string
}

// MailboxConfig holds connection settings for the polled mailbox
type MailboxConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Mailbox: MailboxConfig{
			Host:     getEnv("IMAP_HOST", "imap.gmail.com"),
			Port:     getEnvInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", getEnv("GMAIL_USER", "")),
			Password: getEnv("IMAP_PASSWORD", getEnv("GMAIL_APP_PASSWORD", "")),
		},
		PoolSize:        getEnvInt("POOL_SIZE", 10),
		AcquireTimeout:  getEnvDuration("POOL_ACQUIRE_TIMEOUT", 10*time.Second),
		Folders:         getEnvList("FOLDERS", []string{"INBOX", "[Gmail]/Spam"}),
		ScanLimit:       getEnvInt("SCAN_LIMIT", 30),
		DefaultSender:   getEnv("DEFAULT_SENDER", "noreply@tm.openai.com"),
		MatchRecipient:  getEnvBool("MATCH_RECIPIENT", false),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 500*time.Millisecond),
		BackoffFactor:   getEnvFloat("BACKOFF_FACTOR", 1.0),
		MaxPollInterval: getEnvDuration("MAX_POLL_INTERVAL", 5*time.Second),
		DefaultMaxWait:  getEnvDuration("MAX_WAIT", 120*time.Second),
		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
		CachePath:       getEnv("CACHE_PATH", ""),
		OTPPattern:      getEnv("OTP_PATTERN", ""),
		OTPLength:       getEnvInt("OTP_LENGTH", 6),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mailbox.Host == "" {
		return fmt.Errorf("IMAP_HOST is required")
	}
	if c.Mailbox.Port < 1 || c.Mailbox.Port > 65535 {
		return fmt.Errorf("invalid IMAP_PORT")
	}
	if c.Mailbox.Username == "" {
		return fmt.Errorf("IMAP_USERNAME (or GMAIL_USER) is required")
	}
	if c.Mailbox.Password == "" {
		return fmt.Errorf("IMAP_PASSWORD (or GMAIL_APP_PASSWORD) is required")
	}
	if c.PoolSize < 1 || c.PoolSize > 100 {
		return fmt.Errorf("POOL_SIZE must be between 1 and 100")
	}
	if len(c.Folders) == 0 {
		return fmt.Errorf("at least one folder must be configured")
	}
	if c.ScanLimit < 1 || c.ScanLimit > 1000 {
		return fmt.Errorf("SCAN_LIMIT must be between 1 and 1000")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("BACKOFF_FACTOR must be >= 1.0")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.OTPLength < 4 || c.OTPLength > 12 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 12")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as a float or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration ("500ms", "2m")
// or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable as a list
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
