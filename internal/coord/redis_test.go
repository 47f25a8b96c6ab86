package coord

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachetier/internal/dlock"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client), mr
}

func TestRedis_SetIfAbsent(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := r.SetIfAbsent(ctx, "lock:a", "t1", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetIfAbsent(ctx, "lock:a", "t2", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := mr.Get("lock:a")
	require.NoError(t, err)
	assert.Equal(t, "t1", got)
	assert.Equal(t, 2*time.Second, mr.TTL("lock:a"))

	mr.FastForward(2 * time.Second)
	ok, err = r.SetIfAbsent(ctx, "lock:a", "t2", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_DeleteIfEqual(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "mine"))

	ok, err := r.DeleteIfEqual(ctx, "k", "theirs")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("k"))

	ok, err = r.DeleteIfEqual(ctx, "k", "mine")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("k"))

	ok, err = r.DeleteIfEqual(ctx, "missing", "mine")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_TransportError(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	_, err := r.SetIfAbsent(context.Background(), "k", "v", time.Second)
	assert.Error(t, err)
	_, err = r.DeleteIfEqual(context.Background(), "k", "v")
	assert.Error(t, err)
}

func TestRedis_BacksRemoteLock(t *testing.T) {
	r, mr := newTestRedis(t)
	locker := dlock.NewRemote(r, dlock.WithRetryDelay(time.Millisecond), dlock.WithTTL(time.Second))

	h, err := locker.Acquire(context.Background(), "order:1001")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:order:1001"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "order:1001")
	assert.ErrorIs(t, err, dlock.ErrCanceled)

	require.NoError(t, h.Release())
	assert.False(t, mr.Exists("lock:order:1001"))
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := DialRedis(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer r.Close()

	ok, err := r.SetIfAbsent(context.Background(), "k", "v", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
