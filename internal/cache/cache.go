package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Set after Close.
var ErrClosed = errors.New("cache: closed")

// Negative is the reserved value recording that the backing store confirmed a
// key absent. Readers must treat it as a miss.
const Negative = "nil"

// Cache defines the node-local cache used by the cluster and the guard.
type Cache interface {
	// Get returns the value for key. found is false if the key is absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value under key. ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Config controls maintenance of an InMemory cache.
// CleanupInterval <= 0 disables the background janitor; lazy expiry still applies.
type Config struct {
	CleanupInterval time.Duration
}

// entry is a cached value and its deadline.
type entry struct {
	value     string
	expiresAt time.Time // zero if no expiration
}

// isExpired reports whether the entry is past its deadline at now.
func (e entry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InMemory is a thread-safe in-memory Cache with TTL expiration.
type InMemory struct {
	mu     sync.RWMutex
	data   map[string]entry
	closed bool

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInMemory creates an in-memory cache and starts the janitor if enabled.
func NewInMemory(cfg Config) *InMemory {
	ctx, cancel := context.WithCancel(context.Background())
	c := &InMemory{
		data:   make(map[string]entry),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cfg.CleanupInterval)
	}
	return c
}

// Get retrieves a value by key.
func (c *InMemory) Get(ctx context.Context, key string) (string, bool, error) {
	now := c.now()

	c.mu.RLock()
	e, exists := c.data[key]
	c.mu.RUnlock()

	if !exists {
		return "", false, nil
	}
	if e.isExpired(now) {
		c.deleteExpired(key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key with the given ttl.
func (c *InMemory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.data[key] = entry{value: value, expiresAt: expiresAt}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *InMemory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close stops the janitor. Close is safe to call multiple times.
func (c *InMemory) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// deleteExpired removes key if it is still expired under the write lock.
func (c *InMemory) deleteExpired(key string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.data[key]; exists && e.isExpired(now) {
		delete(c.data, key)
	}
}

func (c *InMemory) cleanupLoop(every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

// purgeExpired removes every expired entry.
func (c *InMemory) purgeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.data {
		if e.isExpired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}
