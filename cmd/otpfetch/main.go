package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/brandon/otp-fetch/internal/cache"
	"github.com/brandon/otp-fetch/internal/config"
	"github.com/brandon/otp-fetch/internal/email"
	"github.com/brandon/otp-fetch/internal/fetch"
	"github.com/brandon/otp-fetch/internal/otp"
	"github.com/brandon/otp-fetch/pkg/types"
)

var (
	version        = "dev"
	showVersion    = flag.Bool("version", false, "Show version information")
	jsonOutput     = flag.Bool("json", false, "Print the result as a JSON object")
	sender         = flag.String("sender", "", "Expected sender address (default from DEFAULT_SENDER)")
	maxWait        = flag.Duration("wait", 0, "Maximum wait for the code (default from MAX_WAIT)")
	matchRecipient = flag.Bool("recipient-match", false, "Require the target address among the recipients")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("otp-fetch version %s\n", version)
		os.Exit(0)
	}

	// Set up logging. Stdout is reserved for the result so callers can
	// parse it; logs go to stderr.
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: otp-fetch [flags] <target-address> [sender-address]\n")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	req := buildRequest(cfg, flag.Args())

	// Initialize the result cache
	resultCache, err := newResultCache(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize result cache")
	}
	defer resultCache.Close()

	// Initialize the session pool
	pool := email.NewPool(cfg, logger)
	defer pool.Close()

	parser, err := newParser(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Invalid OTP pattern")
	}

	scanner := email.NewScanner(cfg.ScanLimit, logger)
	poller := fetch.NewPoller(cfg, pool, scanner, parser, resultCache, logger)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	result, err := poller.Fetch(ctx, req)
	if err != nil {
		if errors.Is(err, fetch.ErrTimeout) {
			logger.WithField("max_wait", req.MaxWait).Warn("No OTP arrived before the deadline")
			os.Exit(2)
		}
		logger.WithError(err).Error("Fetch failed")
		os.Exit(1)
	}

	if *jsonOutput {
		if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
			logger.WithError(err).Fatal("Failed to encode result")
		}
	} else {
		fmt.Printf("Code: %s\n", result.OTP)
	}
}

// buildRequest assembles the fetch request from flags, positional
// arguments and configured defaults
func buildRequest(cfg *config.Config, args []string) types.FetchRequest {
	req := types.FetchRequest{
		TargetRecipient: args[0],
		SenderFilter:    cfg.DefaultSender,
		MaxWait:         cfg.DefaultMaxWait,
		MatchRecipient:  cfg.MatchRecipient || *matchRecipient,
	}
	if len(args) > 1 {
		req.SenderFilter = args[1]
	}
	if *sender != "" {
		req.SenderFilter = *sender
	}
	if *maxWait > 0 {
		req.MaxWait = *maxWait
	}
	return req
}

// newResultCache picks the persistent backend when CACHE_PATH is set,
// so results survive across one-shot invocations
func newResultCache(cfg *config.Config, logger *logrus.Logger) (cache.ResultCache, error) {
	if cfg.CachePath != "" {
		return cache.NewSQLiteCache(cfg.CachePath, cfg.CacheTTL, logger)
	}
	return cache.NewMemoryCache(cfg.CacheTTL), nil
}

func newParser(cfg *config.Config) (fetch.TokenParser, error) {
	if cfg.OTPPattern != "" {
		return otp.NewParserPattern(cfg.OTPPattern)
	}
	return otp.NewParser(cfg.OTPLength), nil
}
