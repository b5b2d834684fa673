// Package ratelimit counts attempts per key over a fixed window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/madrasa/core"
)

var nowFunc = time.Now // mockable

// Limiter allows at most N attempts per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a redis limiter when an address is configured, a memory one otherwise.
func New(conf *core.Config) Limiter {
	if conf.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		return NewRedisLimiter(client, conf.RateLimit.Attempts, conf.RateLimit.Window)
	}
	return NewMemoryLimiter(conf.RateLimit.Attempts, conf.RateLimit.Window)
}

type window struct {
	count int
	reset time.Time
}

type MemoryLimiter struct {
	mu       sync.Mutex
	attempts int
	period   time.Duration
	windows  map[string]*window
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(attempts int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{attempts: attempts, period: period, windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := nowFunc()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		l.prune(now)
		w = &window{reset: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.attempts, nil
}

// prune drops expired windows. Caller must hold the lock.
func (l *MemoryLimiter) prune(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
}

type RedisLimiter struct {
	client   redis.Cmdable
	attempts int
	period   time.Duration
	prefix   string
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.Cmdable, attempts int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, attempts: attempts, period: period, prefix: "madrasa:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = l.prefix + key
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "counting attempt")
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.period).Err(); err != nil {
			return false, errors.Wrap(err, "setting attempt window")
		}
	}
	return n <= int64(l.attempts), nil
}
