package coord

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachetier/internal/dlock"
)

func TestLeaseSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int64
	}{
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{30 * time.Second, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, leaseSeconds(tt.ttl), tt.ttl.String())
	}
}

// newTestEtcd connects to CACHETIER_ETCD_ENDPOINTS or skips.
func newTestEtcd(t *testing.T) *Etcd {
	t.Helper()
	endpoints := os.Getenv("CACHETIER_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("CACHETIER_ETCD_ENDPOINTS not set")
	}
	e, err := DialEtcd(strings.Split(endpoints, ","), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEtcd_SetIfAbsentAndDeleteIfEqual(t *testing.T) {
	e := newTestEtcd(t)
	ctx := context.Background()
	key := "cachetier-test/" + uuid.NewString()

	ok, err := e.SetIfAbsent(ctx, key, "t1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.SetIfAbsent(ctx, key, "t2", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.DeleteIfEqual(ctx, key, "t2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.DeleteIfEqual(ctx, key, "t1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEtcd_BacksRemoteLock(t *testing.T) {
	e := newTestEtcd(t)
	locker := dlock.NewRemote(e, dlock.WithKeyPrefix("cachetier-test/lock/"), dlock.WithTTL(5*time.Second))

	h, err := locker.Acquire(context.Background(), uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, h.Release())
}
