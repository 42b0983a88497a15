package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGuard(t *testing.T) {
	g := &LocalGuard{}
	ctx := context.Background()

	release, ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = g.TryAcquire(ctx)
	assert.False(t, ok)

	release()
	release() // 重复释放是安全的

	release, ok, _ = g.TryAcquire(ctx)
	assert.True(t, ok)
	release()
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisGuard_ExclusiveAcrossInstances(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	a := NewRedisGuard(client, "", time.Minute, nil)
	b := NewRedisGuard(client, "", time.Minute, nil)

	release, ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(DefaultGuardKey))

	_, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(DefaultGuardKey))

	release, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestRedisGuard_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	g := NewRedisGuard(client, "sync-lock", time.Second, nil)

	release, ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// 锁过期后被其他实例拿走。
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("sync-lock", "someone-else"))

	release()
	got, err := mr.Get("sync-lock")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisGuard_ConnectionError(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	_, ok, err := NewRedisGuard(client, "", time.Minute, nil).TryAcquire(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
