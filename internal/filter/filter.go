package filter

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Kinds accepted by New.
const (
	KindExact = "exact"
	KindBloom = "bloom"
)

// Filter answers "possibly present" or "definitely absent" for a key.
type Filter interface {
	MightContain(key string) bool
	Add(key string)
}

// Config selects and sizes a filter.
type Config struct {
	Kind          string  `yaml:"kind"`
	ExpectedItems uint    `yaml:"expected_items"`
	FalsePositive float64 `yaml:"false_positive_rate"`
}

// New builds a filter from cfg. An empty kind selects the exact set.
func New(cfg Config) (Filter, error) {
	switch cfg.Kind {
	case "", KindExact:
		return NewExactSet(), nil
	case KindBloom:
		return NewBloom(cfg.ExpectedItems, cfg.FalsePositive)
	default:
		return nil, fmt.Errorf("filter: unknown kind %q", cfg.Kind)
	}
}

// ExactSet records every added key. It never yields a false positive.
type ExactSet struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewExactSet creates an empty exact set.
func NewExactSet() *ExactSet {
	return &ExactSet{keys: make(map[string]struct{})}
}

// MightContain reports whether key was added.
func (s *ExactSet) MightContain(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Add records key.
func (s *ExactSet) Add(key string) {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

// Len returns the number of distinct keys added.
func (s *ExactSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Bloom is a fixed-size bit array with k hash functions, sized from the
// expected cardinality and target false-positive rate.
type Bloom struct {
	mu sync.RWMutex
	bf *bloom.BloomFilter
}

// NewBloom sizes a bloom filter for expectedItems at falsePositive rate.
func NewBloom(expectedItems uint, falsePositive float64) (*Bloom, error) {
	if expectedItems == 0 {
		return nil, fmt.Errorf("filter: expected items must be positive")
	}
	if falsePositive <= 0 || falsePositive >= 1 {
		return nil, fmt.Errorf("filter: false positive rate %v out of (0,1)", falsePositive)
	}
	return &Bloom{bf: bloom.NewWithEstimates(expectedItems, falsePositive)}, nil
}

// MightContain reports whether key may have been added.
func (b *Bloom) MightContain(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bf.TestString(key)
}

// Add sets the bits for key.
func (b *Bloom) Add(key string) {
	b.mu.Lock()
	b.bf.AddString(key)
	b.mu.Unlock()
}

// Bits returns the size of the bit array.
func (b *Bloom) Bits() uint {
	return b.bf.Cap()
}

// Hashes returns the number of hash functions.
func (b *Bloom) Hashes() uint {
	return b.bf.K()
}
