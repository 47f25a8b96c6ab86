package it

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cachetier/internal/config"
	"cachetier/internal/dlock"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func threeNodeConfig(id string) config.Config {
	cfg := config.Default()
	cfg.Node.ID = id
	cfg.Cluster.Replicas = 4
	cfg.Cluster.Peers = []config.Peer{
		{ID: "B", Addr: "127.0.0.1:1"},
		{ID: "C", Addr: "127.0.0.1:2"},
	}
	cfg.Cache.CleanupInterval = 0
	cfg.Source.Seed = map[string]string{"order:1001": "shipped"}
	return cfg
}

func startCluster(t *testing.T) *Cluster {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	c := NewCluster(quietLogger())
	t.Cleanup(c.Stop)
	return c
}

func TestSmoke_SetGetFetch(t *testing.T) {
	c := startCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	node, err := c.StartNode(ctx, threeNodeConfig("A"))
	require.NoError(t, err)
	client := node.Client()

	require.NoError(t, client.Set(ctx, "user:42", "alice", time.Minute))
	v, found, err := client.Get(ctx, "user:42")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", v)

	ok, err := client.MightContain(ctx, "user:42")
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err = client.Fetch(ctx, "order:1001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "shipped", v)

	_, found, err = client.Fetch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), node.App.Store.Queries())
}

func TestSmoke_StampedeOverGRPC(t *testing.T) {
	c := startCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := threeNodeConfig("A")
	cfg.Source.Latency = 50 * time.Millisecond
	node, err := c.StartNode(ctx, cfg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, found, err := node.Client().Fetch(ctx, "order:1001")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "shipped", v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), node.App.Store.Queries())
}

func TestSmoke_StoreFailureSurfacesAsUnavailable(t *testing.T) {
	c := startCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	node, err := c.StartNode(ctx, threeNodeConfig("A"))
	require.NoError(t, err)
	node.App.Store.SetFailure(assert.AnError)

	_, _, err = node.Client().Fetch(ctx, "order:1001")
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestSmoke_RemoteLockThroughPeerCoordinator(t *testing.T) {
	c := startCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coordinator, err := c.StartNode(ctx, threeNodeConfig("A"))
	require.NoError(t, err)

	cfg := threeNodeConfig("B")
	cfg.Cluster.Peers = []config.Peer{{ID: "A", Addr: "127.0.0.1:1"}, {ID: "C", Addr: "127.0.0.1:2"}}
	cfg.Lock.Backend = dlock.BackendRemote
	cfg.Lock.Coord = config.CoordGRPC
	cfg.Lock.CoordAddr = coordinator.Addr
	cfg.Lock.RetryDelay = time.Millisecond
	worker, err := c.StartNode(ctx, cfg)
	require.NoError(t, err)

	h, err := worker.App.Locker.Acquire(ctx, "order:1001")
	require.NoError(t, err)
	_, held := coordinator.App.Coord.Value(dlock.DefaultKeyPrefix + "order:1001")
	assert.True(t, held, "lock lives in the coordinator's store")

	require.NoError(t, h.Release())
	_, held = coordinator.App.Coord.Value(dlock.DefaultKeyPrefix + "order:1001")
	assert.False(t, held)

	v, found, err := worker.Client().Fetch(ctx, "order:1001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "shipped", v)
}

func TestSmoke_FileLockBackend(t *testing.T) {
	c := startCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := threeNodeConfig("A")
	cfg.Lock.Backend = dlock.BackendFile
	cfg.Lock.Dir = t.TempDir()
	node, err := c.StartNode(ctx, cfg)
	require.NoError(t, err)

	v, found, err := node.Client().Fetch(ctx, "order:1001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "shipped", v)
}

func TestSmoke_NodeStops(t *testing.T) {
	c := startCluster(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	node, err := c.StartNode(ctx, threeNodeConfig("A"))
	require.NoError(t, err)
	require.NoError(t, node.Stop())

	probeCtx, probeCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer probeCancel()
	_, err = node.Client().MightContain(probeCtx, "k")
	assert.Error(t, err)
}
