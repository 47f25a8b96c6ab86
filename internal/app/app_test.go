package app

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachetier/internal/config"
	"cachetier/internal/dlock"
	"cachetier/internal/filter"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Node.ID = "A"
	cfg.Cluster.Replicas = 8
	cfg.Cluster.Peers = []config.Peer{{ID: "B", Addr: "b:1"}, {ID: "C", Addr: "c:1"}}
	cfg.Cache.CleanupInterval = 0
	cfg.Source.Seed = map[string]string{"order:1001": "shipped", "order:1002": "pending"}
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_WiresEveryNode(t *testing.T) {
	a := newTestApp(t, testConfig())

	assert.Len(t, a.Cluster.Nodes(), 3)
	assert.Len(t, a.Guards, 3)
	assert.Equal(t, 3*8, a.Cluster.Ring().Len())

	for key := range testConfig().Source.Seed {
		ok, err := a.Cluster.MightContain(key)
		require.NoError(t, err)
		assert.True(t, ok, "seeded key %s is admitted by its owner", key)
	}
}

func TestFetch(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	v, found, err := a.Fetch(ctx, "order:1001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "shipped", v)

	_, found, err = a.Fetch(ctx, "order:9999")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), a.Store.Queries())

	// Keys added to the store later need admission before the guard queries them.
	a.Store.Put("order:2000", "new")
	_, found, _ = a.Fetch(ctx, "order:2000")
	assert.False(t, found)
	require.NoError(t, a.Admit("order:2000"))
	v, found, err = a.Fetch(ctx, "order:2000")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", v)
}

func TestClusterGetAfterNegativeFetch(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	require.NoError(t, a.Admit("ghost"))
	_, found, err := a.Fetch(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := a.Cluster.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found, "a key confirmed absent must not read back as present")
	assert.Empty(t, v)
}

func TestNew_BloomFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filter = filter.Config{Kind: filter.KindBloom, ExpectedItems: 1000, FalsePositive: 0.01}
	a := newTestApp(t, cfg)

	v, found, err := a.Fetch(context.Background(), "order:1002")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pending", v)
}

func TestNew_LockBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"local", func(c *config.Config) {}},
		{"file", func(c *config.Config) {
			c.Lock.Backend, c.Lock.Dir = dlock.BackendFile, t.TempDir()
		}},
		{"remote memory", func(c *config.Config) {
			c.Lock.Backend, c.Lock.Coord = dlock.BackendRemote, config.CoordMemory
		}},
		{"remote redis", func(c *config.Config) {
			c.Lock.Backend, c.Lock.Coord, c.Lock.RedisAddr = dlock.BackendRemote, config.CoordRedis, mr.Addr()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			require.NoError(t, cfg.Validate())
			a := newTestApp(t, cfg)

			h, err := a.Locker.Acquire(context.Background(), "k")
			require.NoError(t, err)
			require.NoError(t, h.Release())

			v, found, err := a.Fetch(context.Background(), "order:1001")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "shipped", v)
		})
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Lock.Backend, cfg.Lock.Coord, cfg.Lock.RedisAddr = dlock.BackendRemote, config.CoordRedis, "127.0.0.1:1"

	_, err := New(context.Background(), cfg, logrus.New())
	assert.Error(t, err)
}

func TestMetricsRecorded(t *testing.T) {
	a := newTestApp(t, testConfig())
	a.Fetch(context.Background(), "order:1001")
	a.Fetch(context.Background(), "order:1001")

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["cachetier_guard_requests_total"])
	assert.True(t, names["cachetier_guard_store_queries_total"])
	assert.True(t, names["cachetier_lock_acquires_total"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, lis) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
