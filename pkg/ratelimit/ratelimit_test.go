package ratelimit

import (
	"context"
	"testing"

	"github.com/aviroy619/critical-css-service/pkg/config"
	"github.com/aviroy619/critical-css-service/pkg/logger"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 3}, logger.Get())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "shop-1") {
			t.Fatalf("Request %d within burst was denied", i)
		}
	}
	if l.Allow(ctx, "shop-1") {
		t.Error("Request past burst was allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}, logger.Get())
	ctx := context.Background()

	if !l.Allow(ctx, "shop-1") {
		t.Fatal("First request for shop-1 denied")
	}
	if l.Allow(ctx, "shop-1") {
		t.Error("Second request for shop-1 allowed")
	}
	if !l.Allow(ctx, "shop-2") {
		t.Error("shop-2 throttled by shop-1 traffic")
	}
}

func TestCountsRecorded(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}, logger.Get())
	ctx := context.Background()

	l.Allow(ctx, "shop-1") // allowed
	l.Allow(ctx, "shop-1") // denied

	allowed, denied := l.Counts(ctx, "shop-1")
	if allowed != 1 || denied != 1 {
		t.Errorf("Expected counts (1, 1), got (%d, %d)", allowed, denied)
	}
}

func TestZeroConfigGetsSaneDefaults(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true}, logger.Get())

	if !l.Allow(context.Background(), "shop-1") {
		t.Error("Limiter with defaults denied the first request")
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: false, RPS: 1, Burst: 1}, logger.Get())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if !l.Allow(ctx, "shop-1") {
			t.Fatalf("Disabled limiter denied request %d", i)
		}
	}
}
