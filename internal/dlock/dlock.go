package dlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cachetier/internal/metrics"
)

var (
	// ErrCanceled is returned when the context is done before the lock is held.
	ErrCanceled = errors.New("dlock: operation cancelled")
	// ErrLockTimeout is returned when a Remote lock is not acquired before its deadline.
	ErrLockTimeout = errors.New("dlock: lock acquisition timed out")
	// ErrFilesystem wraps I/O failures of the File backend other than contention.
	ErrFilesystem = errors.New("dlock: filesystem lock failure")
)

// Locker acquires exclusive locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Handle, error)
}

// Handle releases a held lock. Release is idempotent: calls after the first
// do nothing and return nil.
type Handle interface {
	Release() error
}

// Defaults shared by the backends.
const (
	DefaultRetryDelay     = 50 * time.Millisecond
	DefaultTTL            = 30 * time.Second
	DefaultDeadlineFactor = 10
	DefaultKeyPrefix      = "lock:"
	DefaultReleaseTimeout = 5 * time.Second
)

type options struct {
	logger         logrus.FieldLogger
	metrics        *metrics.Metrics
	retryDelay     time.Duration
	ttl            time.Duration
	deadlineFactor int
	keyPrefix      string
	releaseTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:         logrus.StandardLogger(),
		retryDelay:     DefaultRetryDelay,
		ttl:            DefaultTTL,
		deadlineFactor: DefaultDeadlineFactor,
		keyPrefix:      DefaultKeyPrefix,
		releaseTimeout: DefaultReleaseTimeout,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a backend. Backends ignore options that do not apply to them.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records acquisition outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRetryDelay sets the sleep between attempts (File, Remote).
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// WithTTL sets the lock record expiry (Remote).
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithDeadlineFactor sets the acquisition deadline as a multiple of the TTL (Remote).
func WithDeadlineFactor(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.deadlineFactor = n
		}
	}
}

// WithKeyPrefix sets the prefix of lock keys in the coordination store (Remote).
func WithKeyPrefix(p string) Option {
	return func(o *options) { o.keyPrefix = p }
}

// WithReleaseTimeout bounds the compare-and-delete issued by Release (Remote).
func WithReleaseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.releaseTimeout = d
		}
	}
}

// canceled wraps the context's error in ErrCanceled.
func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return canceled(ctx)
	case <-t.C:
		return nil
	}
}
