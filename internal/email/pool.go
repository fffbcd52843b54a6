package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/otp-fetch/internal/config"
)

// ErrPoolExhausted indicates no session became available within the
// acquire timeout. Recoverable: the poller treats it as an empty round.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ErrConnection indicates no session could be established within the
// bounded retry count. Propagates to the caller as a fatal error,
// distinct from a timeout.
var ErrConnection = errors.New("imap connection failed")

// connectRetries bounds reconnect attempts for transient dial failures
// within a single acquire. Login rejections are never retried.
const connectRetries = 2

// ConnectFunc establishes a fresh authenticated session
type ConnectFunc func() (*Session, error)

// Pool owns a bounded set of authenticated IMAP sessions. Idle sessions
// are kept warm so repeated scans skip the TLS + login round trips.
type Pool struct {
	connect        ConnectFunc
	acquireTimeout time.Duration
	permits        chan struct{}
	logger         *logrus.Logger

	mu     sync.Mutex
	idle   []*Session
	closed bool
}

// NewPool creates a pool that dials the configured mailbox on demand
func NewPool(cfg *config.Config, logger *logrus.Logger) *Pool {
	mailbox := cfg.Mailbox
	return NewPoolWithConnect(cfg.PoolSize, cfg.AcquireTimeout, func() (*Session, error) {
		return Connect(mailbox, logger)
	}, logger)
}

// NewPoolWithConnect creates a pool with a custom connect function
func NewPoolWithConnect(size int, acquireTimeout time.Duration, connect ConnectFunc, logger *logrus.Logger) *Pool {
	permits := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		permits <- struct{}{}
	}
	return &Pool{
		connect:        connect,
		acquireTimeout: acquireTimeout,
		permits:        permits,
		logger:         logger,
	}
}

// Size returns the maximum number of concurrently leased sessions
func (p *Pool) Size() int {
	return cap(p.permits)
}

// Acquire leases a session, blocking up to the acquire timeout for a
// free slot. Idle sessions are health-checked before reuse; a fresh
// connection is dialed when none survive.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-p.permits:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, ctx.Err())
	case <-time.After(p.acquireTimeout):
		return nil, ErrPoolExhausted
	}

	if sess := p.takeIdle(); sess != nil {
		return sess, nil
	}

	var lastErr error
	for attempt := 0; attempt <= connectRetries; attempt++ {
		sess, err := p.connect()
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, ErrAuthentication) {
			p.putPermit()
			return nil, err
		}
		lastErr = err
		p.logger.WithError(err).WithField("attempt", attempt+1).Warn("IMAP connect failed")
	}

	p.putPermit()
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnection, connectRetries+1, lastErr)
}

// Release returns a leased session to the pool. Unhealthy sessions are
// discarded; the next acquire reconnects lazily.
func (p *Pool) Release(sess *Session, healthy bool) {
	if sess == nil {
		return
	}

	p.mu.Lock()
	if healthy && sess.Alive() && !p.closed {
		p.idle = append(p.idle, sess)
		sess = nil
	}
	p.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			p.logger.WithError(err).WithField("session", sess.ID).Debug("Error closing discarded session")
		}
	}
	p.putPermit()
}

// Close drains the pool and logs out every idle session. Sessions still
// leased are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, sess := range idle {
		if err := sess.Close(); err != nil {
			p.logger.WithError(err).WithField("session", sess.ID).Debug("Error closing pooled session")
		}
	}
	return nil
}

// takeIdle pops warm sessions until one passes its health check
func (p *Pool) takeIdle() *Session {
	for {
		p.mu.Lock()
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			return nil
		}
		sess := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if err := sess.Ping(); err != nil {
			p.logger.WithError(err).WithField("session", sess.ID).Debug("Discarding stale session")
			sess.Close() //nolint:errcheck
			continue
		}
		return sess
	}
}

func (p *Pool) putPermit() {
	select {
	case p.permits <- struct{}{}:
	default:
		// A full channel means a lease was returned twice.
		p.logger.Warn("Dropping extra pool permit")
	}
}
