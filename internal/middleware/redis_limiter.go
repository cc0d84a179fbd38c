package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter считает запросы в фиксированном окне в Redis,
// поэтому лимит общий для всех экземпляров сервиса.
type RedisLimiter struct {
	client *redis.Client
	name   string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter создаёт limiter; name разделяет счётчики разных эндпоинтов
func NewRedisLimiter(client *redis.Client, name string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		name:   name,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) key(key string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", l.name, key, windowStart.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)

	// INCR и EXPIRE одной транзакцией, иначе ключ может остаться без TTL
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, l.key(key, windowStart))
	pipe.Expire(ctx, l.key(key, windowStart), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(0, l.limit-count),
		Reset:     windowStart.Add(l.window).Sub(now),
	}, nil
}
