package dlock

import (
	"context"
	"sync"
	"time"

	"cachetier/internal/metrics"
)

const backendLocal = "local"

// localEntry is the registry record for one key. sem has one slot; refs counts
// the holder plus every waiter, so the entry outlives anyone still using it.
type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is a process-scoped Locker.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	opts    options
}

// NewLocal creates an empty local lock registry.
func NewLocal(opts ...Option) *Local {
	return &Local{
		entries: make(map[string]*localEntry),
		opts:    buildOptions(opts),
	}
}

// Acquire waits for exclusive ownership of key within this process.
func (l *Local) Acquire(ctx context.Context, key string) (Handle, error) {
	start := time.Now()
	if ctx.Err() != nil {
		l.opts.metrics.LockAcquire(backendLocal, metrics.LockCanceled, 0)
		return nil, canceled(ctx)
	}

	e := l.ref(key)
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		l.opts.metrics.LockAcquire(backendLocal, metrics.LockCanceled, time.Since(start))
		return nil, canceled(ctx)
	}

	l.opts.metrics.LockAcquire(backendLocal, metrics.LockAcquired, time.Since(start))
	return &localHandle{registry: l, key: key, entry: e}, nil
}

// Len returns the number of keys with a live registry entry.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ref returns the entry for key, creating it if needed, and counts the caller in.
func (l *Local) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

// unref counts the caller out and evicts the entry once nobody references it.
func (l *Local) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 && l.entries[key] == e {
		delete(l.entries, key)
	}
}

type localHandle struct {
	registry *Local
	key      string
	entry    *localEntry
	once     sync.Once
}

func (h *localHandle) Release() error {
	h.once.Do(func() {
		<-h.entry.sem
		h.registry.unref(h.key, h.entry)
	})
	return nil
}
