package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aviroy619/critical-css-service/pkg/logger"
)

// Recorder tracks allow/deny outcomes per key. Purely observational: a
// recorder failure never blocks a request.
type Recorder interface {
	Record(ctx context.Context, key string, allowed bool)
	Counts(ctx context.Context, key string) (allowed, denied int64)
}

// MemoryRecorder keeps counts in-process
type MemoryRecorder struct {
	mu      sync.RWMutex
	allowed map[string]int64
	denied  map[string]int64
}

// NewMemoryRecorder creates an in-process recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		allowed: make(map[string]int64),
		denied:  make(map[string]int64),
	}
}

func (m *MemoryRecorder) Record(ctx context.Context, key string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allowed {
		m.allowed[key]++
	} else {
		m.denied[key]++
	}
}

func (m *MemoryRecorder) Counts(ctx context.Context, key string) (int64, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allowed[key], m.denied[key]
}

const (
	redisPrefix  = "critical-css:ratelimit"
	redisKeyTTL  = 24 * time.Hour
	redisTimeout = 200 * time.Millisecond
)

// RedisRecorder keeps counts in Redis so several service instances can be
// inspected together
type RedisRecorder struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewRedisRecorder creates a Redis-backed recorder
func NewRedisRecorder(addr string, log *logger.Logger) *RedisRecorder {
	return &RedisRecorder{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		log: log.WithComponent("ratelimit"),
	}
}

func (r *RedisRecorder) key(key string, allowed bool) string {
	suffix := "denied"
	if allowed {
		suffix = "allowed"
	}
	return redisPrefix + ":" + key + ":" + suffix
}

func (r *RedisRecorder) Record(ctx context.Context, key string, allowed bool) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	name := r.key(key, allowed)
	pipe := r.rdb.Pipeline()
	pipe.Incr(ctx, name)
	pipe.Expire(ctx, name, redisKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WarnWithErr("rate limit stats write failed", err, "key", key)
	}
}

func (r *RedisRecorder) Counts(ctx context.Context, key string) (int64, int64) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	allowed, err := r.rdb.Get(ctx, r.key(key, true)).Int64()
	if err != nil && err != redis.Nil {
		r.log.WarnWithErr("rate limit stats read failed", err, "key", key)
	}
	denied, err := r.rdb.Get(ctx, r.key(key, false)).Int64()
	if err != nil && err != redis.Nil {
		r.log.WarnWithErr("rate limit stats read failed", err, "key", key)
	}
	return allowed, denied
}
