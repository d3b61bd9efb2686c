package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Address != ":8080" {
		t.Errorf("Expected default address :8080, got %s", cfg.Address)
	}
	if cfg.Pool.MinPoolSize != 1 {
		t.Errorf("Expected min pool size 1, got %d", cfg.Pool.MinPoolSize)
	}
	if cfg.Pool.MaxPoolSize != 3 {
		t.Errorf("Expected max pool size 3, got %d", cfg.Pool.MaxPoolSize)
	}
	if cfg.Pool.IdleTimeout() != 5*time.Minute {
		t.Errorf("Expected idle timeout 5m, got %v", cfg.Pool.IdleTimeout())
	}
	if cfg.Pool.ShutdownGracePeriod() != 10*time.Second {
		t.Errorf("Expected grace period 10s, got %v", cfg.Pool.ShutdownGracePeriod())
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
address: ":9090"
pool:
  min_pool_size: 2
  max_pool_size: 5
  idle_timeout_ms: 60000
  creation_timeout_ms: 15000
  shutdown_grace_period_ms: 5000
  sweep_interval_ms: 10000
database:
  type: sqlite
  path: /tmp/test.db
logging:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Address != ":9090" {
		t.Errorf("Expected address :9090, got %s", cfg.Address)
	}
	if cfg.Pool.MinPoolSize != 2 {
		t.Errorf("Expected min pool size 2, got %d", cfg.Pool.MinPoolSize)
	}
	if cfg.Pool.MaxPoolSize != 5 {
		t.Errorf("Expected max pool size 5, got %d", cfg.Pool.MaxPoolSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestShutdownGraceEnvOverride(t *testing.T) {
	t.Setenv("SHUTDOWN_GRACE_PERIOD_MS", "2500")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Pool.ShutdownGracePeriod() != 2500*time.Millisecond {
		t.Errorf("Expected grace period 2.5s from env, got %v", cfg.Pool.ShutdownGracePeriod())
	}
}

func TestValidateRejectsBadPoolSizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pool.MinPoolSize = 5
	cfg.Pool.MaxPoolSize = 2

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error when min > max")
	}

	cfg = DefaultConfig()
	cfg.Pool.MaxPoolSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error when max < 1")
	}
}

func TestValidateRejectsBadDatabaseType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Type = "mongodb"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unsupported database type")
	}
}

func TestValidateRejectsCDNWithoutURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CDN.Enabled = true
	cfg.CDN.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error when CDN enabled without base URL")
	}
}
