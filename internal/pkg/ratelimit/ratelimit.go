package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Limiter answers whether a caller identified by key may proceed. Backed by
// an external store so multiple instances share one budget; constructed and
// torn down explicitly instead of living in module-level maps.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close()
}

type bucket struct {
	count       int
	windowStart time.Time
}

// RedisLimiter counts requests per key in fixed windows via Redis INCR with
// an in-process fallback when Redis is unreachable.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration

	mu       sync.Mutex
	fallback map[string]*bucket
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRedisLimiter creates a limiter allowing limit requests per window per
// key and starts the fallback sweep.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	l := &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		fallback: make(map[string]*bucket),
		stopCh:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.sweep()
	return l
}

// Allow reports whether the caller identified by key is within budget.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := keyPrefix + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		// Degrade to the local counter rather than failing open or closed
		// on the shared store's behalf.
		log.Warnf("[RateLimit] Redis unavailable, using in-process fallback: %v", err)
		return l.allowFallback(key), nil
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("set rate limit window: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

func (l *RedisLimiter) allowFallback(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.fallback[key]
	if !ok || now.Sub(b.windowStart) > l.window {
		l.fallback[key] = &bucket{count: 1, windowStart: now}
		return true
	}
	b.count++
	return b.count <= l.limit
}

// sweep drops expired fallback buckets so the map cannot grow unbounded.
func (l *RedisLimiter) sweep() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for key, b := range l.fallback {
				if now.Sub(b.windowStart) > l.window {
					delete(l.fallback, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close stops the sweep goroutine.
func (l *RedisLimiter) Close() {
	close(l.stopCh)
	l.wg.Wait()
}
