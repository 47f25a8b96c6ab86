package source

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is a seedable map-backed store that counts its queries.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]string
	latency time.Duration
	fail    error

	queries atomic.Int64
}

// NewMemory creates a store seeded with a copy of seed.
func NewMemory(seed map[string]string) *Memory {
	data := make(map[string]string, len(seed))
	for k, v := range seed {
		data[k] = v
	}
	return &Memory{data: data}
}

// Query looks up key after the configured latency.
func (m *Memory) Query(ctx context.Context, key string) (string, bool, error) {
	m.queries.Add(1)

	m.mu.RLock()
	latency, fail := m.latency, m.fail
	m.mu.RUnlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-t.C:
		}
	}
	if fail != nil {
		return "", false, fail
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Put inserts or replaces a record.
func (m *Memory) Put(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

// SetLatency delays every subsequent query by d.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetFailure makes every subsequent query return err. A nil err clears it.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Queries returns the number of queries received.
func (m *Memory) Queries() int64 {
	return m.queries.Load()
}
