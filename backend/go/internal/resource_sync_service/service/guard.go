package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"Cirkle/backend/go/internal/models"
	"Cirkle/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Guard 保证同一时刻最多只有一次对账在进行。
// TryAcquire 不会阻塞等待；acquired 为 false 时 release 为 nil。
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// LocalGuard 是进程内的互斥标志。
type LocalGuard struct {
	busy atomic.Bool
}

// TryAcquire 实现 Guard。
func (g *LocalGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(func() { g.busy.Store(false) }) }, true, nil
}

var processGuard = &LocalGuard{}

// ProcessGuard 返回进程内所有 Reconciler 共享的默认锁。
func ProcessGuard() *LocalGuard {
	return processGuard
}

// DefaultGuardKey 是跨实例锁在 Redis 中的键。
const DefaultGuardKey = "cirkle:resource_sync:lock"

const releaseTimeout = 3 * time.Second

// 只删除自己持有的锁，避免过期后误删其他实例的锁。
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisGuard 基于 Redis SET NX 的跨实例锁。TTL 防止持有者崩溃后锁永远不释放。
type RedisGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisGuard 创建一个 RedisGuard。key 为空时使用 DefaultGuardKey。
func NewRedisGuard(client *redis.Client, key string, ttl time.Duration, log *logger.Logger) *RedisGuard {
	if key == "" {
		key = DefaultGuardKey
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisGuard{client: client, key: key, ttl: ttl, logger: log}
}

// TryAcquire 实现 Guard。
func (g *RedisGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	owner := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, owner, g.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// 调用方的 ctx 可能已经取消，释放使用独立的超时。
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, g.client, []string{g.key}, owner).Err(); err != nil && err != redis.Nil {
				g.logger.WithError(models.NewErrorInfo(err, "guard_release_error")).
					WithField("guard_key", g.key).
					Warn("Failed to release reconcile guard")
			}
		})
	}
	return release, true, nil
}
