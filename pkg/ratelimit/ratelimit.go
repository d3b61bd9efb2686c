package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/logger"
)

// Limiter enforces a per-key (per-shop) request rate on the expensive
// generation path. Decisions are local; the optional Recorder only tracks
// allow/deny counts for observability.
type Limiter struct {
	enabled  bool
	rps      float64
	burst    int
	recorder Recorder

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a limiter from configuration. The recorder is in-memory by
// default and Redis-backed when a redis address is configured.
func New(cfg config.RateLimitConfig, log *logger.Logger) *Limiter {
	var recorder Recorder = NewMemoryRecorder()
	if cfg.RedisAddr != "" {
		recorder = NewRedisRecorder(cfg.RedisAddr, log)
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		enabled:  cfg.Enabled,
		rps:      rps,
		burst:    burst,
		recorder: recorder,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request for the given key may proceed now
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	allowed := lim.Allow()
	l.recorder.Record(ctx, key, allowed)
	return allowed
}

// Counts returns allowed/denied totals for a key
func (l *Limiter) Counts(ctx context.Context, key string) (allowed, denied int64) {
	return l.recorder.Counts(ctx, key)
}
