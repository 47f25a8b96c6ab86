package dlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cachetier/internal/metrics"
)

const backendRemote = "remote"

// Client is the surface Remote needs from a coordination store.
type Client interface {
	// SetIfAbsent atomically stores value under key with an expiry, only if
	// key does not exist. It reports whether the value was stored.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DeleteIfEqual atomically deletes key only if its value equals expected.
	// It reports whether the key was deleted.
	DeleteIfEqual(ctx context.Context, key, expected string) (bool, error)
}

// Remote is a multi-host Locker built on a coordination store.
// Ownership is proven by a random token, not by the caller's identity.
type Remote struct {
	client Client
	opts   options
	now    func() time.Time
}

// NewRemote creates a Remote locker over client.
func NewRemote(client Client, opts ...Option) *Remote {
	return &Remote{
		client: client,
		opts:   buildOptions(opts),
		now:    time.Now,
	}
}

// Acquire retries SetIfAbsent of a fresh token under the lock key until it
// succeeds, ctx is done, or deadline factor x TTL has elapsed.
func (r *Remote) Acquire(ctx context.Context, key string) (Handle, error) {
	start := r.now()
	lockKey := r.opts.keyPrefix + key
	token := uuid.NewString()
	deadline := start.Add(time.Duration(r.opts.deadlineFactor) * r.opts.ttl)

	for {
		if ctx.Err() != nil {
			r.opts.metrics.LockAcquire(backendRemote, metrics.LockCanceled, r.now().Sub(start))
			return nil, canceled(ctx)
		}

		ok, err := r.client.SetIfAbsent(ctx, lockKey, token, r.opts.ttl)
		if err != nil {
			if ctx.Err() != nil {
				r.opts.metrics.LockAcquire(backendRemote, metrics.LockCanceled, r.now().Sub(start))
				return nil, canceled(ctx)
			}
			r.opts.metrics.LockAcquire(backendRemote, metrics.LockError, r.now().Sub(start))
			return nil, fmt.Errorf("dlock: acquire %s: %w", lockKey, err)
		}
		if ok {
			r.opts.metrics.LockAcquire(backendRemote, metrics.LockAcquired, r.now().Sub(start))
			r.opts.logger.WithFields(logrus.Fields{"backend": backendRemote, "key": lockKey}).Debug("lock acquired")
			return &RemoteHandle{
				client:  r.client,
				key:     lockKey,
				token:   token,
				timeout: r.opts.releaseTimeout,
				logger:  r.opts.logger,
			}, nil
		}

		if !r.now().Before(deadline) {
			r.opts.metrics.LockAcquire(backendRemote, metrics.LockTimeout, r.now().Sub(start))
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		if err := sleep(ctx, r.opts.retryDelay); err != nil {
			r.opts.metrics.LockAcquire(backendRemote, metrics.LockCanceled, r.now().Sub(start))
			return nil, err
		}
	}
}

// RemoteHandle is a held Remote lock.
type RemoteHandle struct {
	client  Client
	key     string
	token   string
	timeout time.Duration
	logger  logrus.FieldLogger
	once    sync.Once
}

// Key returns the lock key in the coordination store.
func (h *RemoteHandle) Key() string { return h.key }

// Token returns the ownership token stored under Key.
func (h *RemoteHandle) Token() string { return h.token }

// Release deletes the lock record if it still holds this handle's token.
// If the record expired or now belongs to someone else, Release does nothing.
func (h *RemoteHandle) Release() error {
	var err error
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		deleted, derr := h.client.DeleteIfEqual(ctx, h.key, h.token)
		if derr != nil {
			err = fmt.Errorf("dlock: release %s: %w", h.key, derr)
			return
		}
		if !deleted {
			h.logger.WithField("key", h.key).Debug("lock already expired or reclaimed")
		}
	})
	return err
}
