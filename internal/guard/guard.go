package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cachetier/internal/cache"
	"cachetier/internal/dlock"
	"cachetier/internal/filter"
	"cachetier/internal/metrics"
)

// NegativeSentinel is cached in place of a value the store does not have.
// It is reserved: a real value equal to it reads back as absent.
const NegativeSentinel = cache.Negative

// Default TTLs.
const (
	DefaultPositiveTTL = 30 * time.Second
	DefaultNegativeTTL = 5 * time.Second
)

var (
	// ErrBackingStore wraps every error returned by the Store.
	ErrBackingStore = errors.New("guard: backing store failure")
	// ErrInvalidTTL is returned by New unless 0 < negative TTL < positive TTL.
	ErrInvalidTTL = errors.New("guard: negative TTL must be positive and shorter than the positive TTL")
)

// Store is the backing store queried on a confirmed cache miss.
type Store interface {
	Query(ctx context.Context, key string) (value string, found bool, err error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, key string) (string, bool, error)

// Query calls f.
func (f StoreFunc) Query(ctx context.Context, key string) (string, bool, error) {
	return f(ctx, key)
}

// Guard is the per-node access pipeline.
type Guard struct {
	cache       cache.Cache
	filter      filter.Filter
	store       Store
	locker      dlock.Locker
	positiveTTL time.Duration
	negativeTTL time.Duration
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
}

// Option configures a Guard.
type Option func(*Guard)

// WithPositiveTTL sets the TTL of values fetched from the store.
func WithPositiveTTL(d time.Duration) Option {
	return func(g *Guard) { g.positiveTTL = d }
}

// WithNegativeTTL sets the TTL of NegativeSentinel entries.
func WithNegativeTTL(d time.Duration) Option {
	return func(g *Guard) { g.negativeTTL = d }
}

// WithLocker replaces the default process-local per-key lock.
func WithLocker(l dlock.Locker) Option {
	return func(g *Guard) { g.locker = l }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Guard) { g.logger = l }
}

// New creates a Guard over c, f and s.
func New(c cache.Cache, f filter.Filter, s Store, opts ...Option) (*Guard, error) {
	g := &Guard{
		cache:       c,
		filter:      f,
		store:       s,
		positiveTTL: DefaultPositiveTTL,
		negativeTTL: DefaultNegativeTTL,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.negativeTTL <= 0 || g.negativeTTL >= g.positiveTTL {
		return nil, fmt.Errorf("%w: negative=%s positive=%s", ErrInvalidTTL, g.negativeTTL, g.positiveTTL)
	}
	if g.locker == nil {
		g.locker = dlock.NewLocal(dlock.WithMetrics(g.metrics), dlock.WithLogger(g.logger))
	}
	return g, nil
}

// GetOrFetch returns the value for key, querying the store at most once per
// key across concurrent callers while the cache is cold.
func (g *Guard) GetOrFetch(ctx context.Context, key string) (string, bool, error) {
	value, cached, err := g.cache.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if cached {
		return g.hit(value, metrics.OutcomeHit)
	}

	if !g.filter.MightContain(key) {
		g.metrics.GuardOutcome(metrics.OutcomeFiltered)
		return "", false, nil
	}

	h, err := g.locker.Acquire(ctx, key)
	if err != nil {
		return "", false, err
	}
	defer func() {
		if rerr := h.Release(); rerr != nil {
			g.logger.WithError(rerr).WithField("key", key).Warn("release per-key lock")
		}
	}()

	// Another caller may have populated the cache while we waited.
	value, cached, err = g.cache.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if cached {
		return g.hit(value, metrics.OutcomeRecheckHit)
	}

	g.metrics.StoreQuery()
	value, found, err := g.store.Query(ctx, key)
	if err != nil {
		g.metrics.GuardOutcome(metrics.OutcomeError)
		return "", false, fmt.Errorf("%w: %s: %w", ErrBackingStore, key, err)
	}

	if !found {
		g.populate(ctx, key, NegativeSentinel, g.negativeTTL)
		g.metrics.GuardOutcome(metrics.OutcomeNotFound)
		return "", false, nil
	}

	g.populate(ctx, key, value, g.positiveTTL)
	g.metrics.GuardOutcome(metrics.OutcomeFetched)
	return value, true, nil
}

// hit translates a cached entry, mapping NegativeSentinel to absent.
func (g *Guard) hit(value, outcome string) (string, bool, error) {
	if value == NegativeSentinel {
		g.metrics.GuardOutcome(metrics.OutcomeNegativeHit)
		return "", false, nil
	}
	g.metrics.GuardOutcome(outcome)
	return value, true, nil
}

// populate writes the fetched result. A failed write only costs a later
// refetch, so it is logged rather than returned.
func (g *Guard) populate(ctx context.Context, key, value string, ttl time.Duration) {
	if err := g.cache.Set(ctx, key, value, ttl); err != nil {
		g.logger.WithError(err).WithField("key", key).Warn("populate cache")
	}
}

// PositiveTTL returns the TTL used for fetched values.
func (g *Guard) PositiveTTL() time.Duration { return g.positiveTTL }

// NegativeTTL returns the TTL used for NegativeSentinel entries.
func (g *Guard) NegativeTTL() time.Duration { return g.negativeTTL }
