package logger

import (
	"context"
	"testing"
)

func TestInitAndGet(t *testing.T) {
	Init(DebugLevel, "json")

	log := Get()
	if log == nil {
		t.Fatal("Get returned nil after Init")
	}
}

func TestGetWithoutInit(t *testing.T) {
	globalLogger = nil

	log := Get()
	if log == nil {
		t.Fatal("Get should fall back to a default logger")
	}
}

func TestWith(t *testing.T) {
	Init(InfoLevel, "text")

	log := Get().With("shop_id", "shop-1")
	if log == nil {
		t.Fatal("With returned nil")
	}

	scoped := log.WithComponent("pool")
	if scoped == nil {
		t.Fatal("WithComponent returned nil")
	}
}

func TestWithContext(t *testing.T) {
	Init(InfoLevel, "text")

	ctx := context.WithValue(context.Background(), "request_id", "req-123")
	log := Get().WithContext(ctx)
	if log == nil {
		t.Fatal("WithContext returned nil")
	}

	// A context without a request ID returns the same logger unchanged.
	plain := Get().WithContext(context.Background())
	if plain == nil {
		t.Fatal("WithContext without request ID returned nil")
	}
}
