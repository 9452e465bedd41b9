package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 登录限流与锁定使用的键前缀。
const (
	loginRateKeyPrefix = "rate:login:"
	loginLockKeyPrefix = "lock:login:"
	loginFailKeyPrefix = "lock:login:fail:"
)

// loginThrottleStore 是登录限流与锁定所需的 Redis 子集。
// redis.UniversalClient 直接满足它；测试注入假实现。
type loginThrottleStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// incrWithTTL 自增计数键，并在首次创建时设置过期时间，
// 让计数窗口随键一起滚动。
func incrWithTTL(ctx context.Context, store loginThrottleStore, key string, ttl time.Duration) (int64, error) {
	count, err := store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = store.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
