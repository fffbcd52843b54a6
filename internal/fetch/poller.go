package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/brandon/otp-fetch/internal/cache"
	"github.com/brandon/otp-fetch/internal/config"
	"github.com/brandon/otp-fetch/internal/email"
	"github.com/brandon/otp-fetch/pkg/types"
)

// ErrTimeout is the terminal outcome when no matching message arrives
// before the request deadline. Distinct from fatal errors: the mailbox
// was reachable, the code just never showed up.
var ErrTimeout = errors.New("no matching message before deadline")

// SessionPool is the lease surface the poller needs from the pool
type SessionPool interface {
	Acquire(ctx context.Context) (*email.Session, error)
	Release(sess *email.Session, healthy bool)
}

// FolderScanner retrieves OTP candidates from one folder
type FolderScanner interface {
	Scan(ctx context.Context, sess *email.Session, folder string, req types.FetchRequest) ([]types.CandidateMessage, error)
}

// TokenParser extracts an OTP token from a candidate message
type TokenParser interface {
	Parse(msg types.CandidateMessage) (string, error)
}

// Poller drives concurrent folder scans through the session pool in
// successive rounds until a match, the deadline, or a fatal error.
type Poller struct {
	pool    SessionPool
	scanner FolderScanner
	parser  TokenParser
	cache   cache.ResultCache
	logger  *logrus.Logger

	folders        []string
	interval       time.Duration
	backoffFactor  float64
	maxInterval    time.Duration
	defaultMaxWait time.Duration

	group singleflight.Group
}

// NewPoller creates a poller over explicitly constructed collaborators
func NewPoller(cfg *config.Config, pool SessionPool, scanner FolderScanner, parser TokenParser, resultCache cache.ResultCache, logger *logrus.Logger) *Poller {
	return &Poller{
		pool:           pool,
		scanner:        scanner,
		parser:         parser,
		cache:          resultCache,
		logger:         logger,
		folders:        cfg.Folders,
		interval:       cfg.PollInterval,
		backoffFactor:  cfg.BackoffFactor,
		maxInterval:    cfg.MaxPollInterval,
		defaultMaxWait: cfg.DefaultMaxWait,
	}
}

// Fetch returns the OTP for req, from cache when fresh, otherwise by
// polling the mailbox. Concurrent requests for the same cache key share
// one underlying poll and receive the same outcome. A nil result means
// err is ErrTimeout or a fatal error such as email.ErrAuthentication.
func (p *Poller) Fetch(ctx context.Context, req types.FetchRequest) (*types.FetchResult, error) {
	start := time.Now()
	key := req.CacheKey()

	if result, ok := p.cache.Get(key); ok {
		result.Cached = true
		result.FetchTimeMillis = time.Since(start).Milliseconds()
		p.logger.WithFields(logrus.Fields{
			"key":    key,
			"folder": result.Folder,
		}).Info("OTP served from cache")
		return &result, nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		return p.poll(ctx, req, start)
	})
	if err != nil {
		return nil, err
	}

	result := v.(types.FetchResult)
	result.FetchTimeMillis = time.Since(start).Milliseconds()
	return &result, nil
}

// poll runs scan rounds until a match or the deadline. Only the first
// successful round's winner is used.
func (p *Poller) poll(ctx context.Context, req types.FetchRequest, start time.Time) (types.FetchResult, error) {
	maxWait := req.MaxWait
	if maxWait < 0 {
		maxWait = p.defaultMaxWait
	}
	deadline := start.Add(maxWait)
	interval := p.interval

	for round := 1; ; round++ {
		candidates, err := p.scanRound(ctx, req)
		if err != nil {
			p.logger.WithError(err).WithField("round", round).Error("Fetch aborted")
			return types.FetchResult{}, err
		}

		if result, ok := p.selectWinner(candidates); ok {
			result.FetchTimeMillis = time.Since(start).Milliseconds()
			p.cache.Put(req.CacheKey(), result)
			p.logger.WithFields(logrus.Fields{
				"folder": result.Folder,
				"round":  round,
			}).Info("OTP found")
			return result, nil
		}

		if !time.Now().Add(interval).Before(deadline) {
			p.logger.WithFields(logrus.Fields{
				"rounds":   round,
				"max_wait": maxWait,
			}).Info("No OTP before deadline")
			return types.FetchResult{}, ErrTimeout
		}

		select {
		case <-ctx.Done():
			// The deadline is the only cancellation signal callers hold.
			return types.FetchResult{}, ErrTimeout
		case <-time.After(interval):
		}

		if p.backoffFactor > 1 {
			interval = time.Duration(float64(interval) * p.backoffFactor)
			if interval > p.maxInterval {
				interval = p.maxInterval
			}
		}
	}
}

// scanRound fans one scan per folder out through the pool and gathers
// every candidate before returning, so winner selection stays
// deterministic regardless of completion order. Authentication failures
// and exhausted connect retries propagate; pool exhaustion and scan
// failures are an empty contribution.
func (p *Poller) scanRound(ctx context.Context, req types.FetchRequest) ([]types.CandidateMessage, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var all []types.CandidateMessage

	for _, folder := range p.folders {
		folder := folder
		g.Go(func() error {
			sess, err := p.pool.Acquire(gctx)
			if err != nil {
				if errors.Is(err, email.ErrAuthentication) || errors.Is(err, email.ErrConnection) {
					return err
				}
				p.logger.WithError(err).WithField("folder", folder).Debug("No session for folder this round")
				return nil
			}

			candidates, err := p.scanner.Scan(gctx, sess, folder, req)
			p.pool.Release(sess, err == nil)
			if err != nil {
				if errors.Is(err, email.ErrAuthentication) {
					return err
				}
				p.logger.WithError(err).WithField("folder", folder).Warn("Folder scan failed")
				return nil
			}

			mu.Lock()
			all = append(all, candidates...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// selectWinner parses candidates and picks the earliest-received valid
// match; ties break on the lexicographically smaller folder name.
// Messages without an extractable token are skipped.
func (p *Poller) selectWinner(candidates []types.CandidateMessage) (types.FetchResult, bool) {
	best := -1
	var bestToken string

	for i, cand := range candidates {
		token, err := p.parser.Parse(cand)
		if err != nil {
			continue
		}
		if best < 0 || earlier(cand, candidates[best]) {
			best = i
			bestToken = token
		}
	}

	if best < 0 {
		return types.FetchResult{}, false
	}
	return types.FetchResult{
		OTP:     bestToken,
		Folder:  candidates[best].Folder,
		Subject: candidates[best].Subject,
	}, true
}

func earlier(a, b types.CandidateMessage) bool {
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.Folder < b.Folder
}
