package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig represents the full service configuration
type ServerConfig struct {
	Address   string          `yaml:"address"`
	APIKey    string          `yaml:"api_key"`
	Pool      PoolConfig      `yaml:"pool"`
	Browser   BrowserConfig   `yaml:"browser"`
	Database  DatabaseConfig  `yaml:"database"`
	CDN       CDNConfig       `yaml:"cdn"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PoolConfig represents browser worker pool settings.
// Durations are expressed in milliseconds.
type PoolConfig struct {
	MinPoolSize           int `yaml:"min_pool_size"`
	MaxPoolSize           int `yaml:"max_pool_size"`
	IdleTimeoutMs         int `yaml:"idle_timeout_ms"`
	CreationTimeoutMs     int `yaml:"creation_timeout_ms"`
	ShutdownGracePeriodMs int `yaml:"shutdown_grace_period_ms"`
	SweepIntervalMs       int `yaml:"sweep_interval_ms"`
}

// IdleTimeout returns the idle reclamation timeout as a duration
func (p PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMs) * time.Millisecond
}

// CreationTimeout returns the worker creation/queue timeout as a duration
func (p PoolConfig) CreationTimeout() time.Duration {
	return time.Duration(p.CreationTimeoutMs) * time.Millisecond
}

// ShutdownGracePeriod returns the shutdown grace period as a duration
func (p PoolConfig) ShutdownGracePeriod() time.Duration {
	return time.Duration(p.ShutdownGracePeriodMs) * time.Millisecond
}

// SweepInterval returns the periodic idle sweep interval as a duration
func (p PoolConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMs) * time.Millisecond
}

// BrowserConfig represents headless browser launch settings.
// These are passed through to the launcher and not interpreted by the pool.
type BrowserConfig struct {
	ExecPath        string   `yaml:"exec_path"`
	Headless        bool     `yaml:"headless"`
	NoSandbox       bool     `yaml:"no_sandbox"`
	ExtraArgs       []string `yaml:"extra_args"`
	NavigationMs    int      `yaml:"navigation_timeout_ms"`
	DefaultViewport Viewport `yaml:"default_viewport"`
}

// Viewport represents page dimensions for extraction
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// NavigationTimeout returns the per-page navigation timeout as a duration
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return time.Duration(b.NavigationMs) * time.Millisecond
}

// DatabaseConfig represents document store settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // file path for sqlite, DSN for mysql
}

// CDNConfig represents CDN uploader settings
type CDNConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	PublicURL string `yaml:"public_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the upload timeout as a duration
func (c CDNConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RateLimitConfig represents per-shop rate limiting settings
type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
	RedisAddr string  `yaml:"redis_addr"` // optional stats backend
}

// RefreshConfig represents background stale-document regeneration settings
type RefreshConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalMs   int  `yaml:"interval_ms"`
	StaleAfterMs int  `yaml:"stale_after_ms"`
}

// Interval returns how often the refresher scans for stale documents
func (r RefreshConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// StaleAfter returns the document age after which regeneration is due
func (r RefreshConfig) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterMs) * time.Millisecond
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Address: ":8080",
		Pool: PoolConfig{
			MinPoolSize:           1,
			MaxPoolSize:           3,
			IdleTimeoutMs:         300000,
			CreationTimeoutMs:     30000,
			ShutdownGracePeriodMs: 10000,
			SweepIntervalMs:       10000,
		},
		Browser: BrowserConfig{
			Headless:     true,
			NoSandbox:    false,
			NavigationMs: 30000,
			DefaultViewport: Viewport{
				Width:  1300,
				Height: 900,
			},
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./critical-css.db",
		},
		CDN: CDNConfig{
			Enabled:   false,
			TimeoutMs: 15000,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     2,
			Burst:   5,
		},
		Refresh: RefreshConfig{
			Enabled:      false,
			IntervalMs:   3600000,
			StaleAfterMs: 86400000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	config := DefaultConfig()

	// Load from file if provided
	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	applyEnvOverrides(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return err
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *ServerConfig) {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		config.Address = addr
	}

	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		config.APIKey = apiKey
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}

	if execPath := os.Getenv("BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	if maxSize := os.Getenv("MAX_POOL_SIZE"); maxSize != "" {
		if val, err := strconv.Atoi(maxSize); err == nil {
			config.Pool.MaxPoolSize = val
		}
	}

	if minSize := os.Getenv("MIN_POOL_SIZE"); minSize != "" {
		if val, err := strconv.Atoi(minSize); err == nil {
			config.Pool.MinPoolSize = val
		}
	}

	if grace := os.Getenv("SHUTDOWN_GRACE_PERIOD_MS"); grace != "" {
		if val, err := strconv.Atoi(grace); err == nil {
			config.Pool.ShutdownGracePeriodMs = val
		}
	}

	if cdnURL := os.Getenv("CDN_BASE_URL"); cdnURL != "" {
		config.CDN.BaseURL = cdnURL
		config.CDN.Enabled = true
	}

	if cdnKey := os.Getenv("CDN_API_KEY"); cdnKey != "" {
		config.CDN.APIKey = cdnKey
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.RateLimit.RedisAddr = redisAddr
	}
}

// Validate validates the configuration
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	if c.Pool.MinPoolSize < 0 {
		return fmt.Errorf("pool min size cannot be negative")
	}

	if c.Pool.MaxPoolSize < 1 {
		return fmt.Errorf("pool max size must be at least 1")
	}

	if c.Pool.MinPoolSize > c.Pool.MaxPoolSize {
		return fmt.Errorf("pool min size (%d) cannot exceed max size (%d)",
			c.Pool.MinPoolSize, c.Pool.MaxPoolSize)
	}

	if c.Pool.CreationTimeoutMs < 1 {
		return fmt.Errorf("pool creation timeout must be positive")
	}

	switch c.Database.Type {
	case "sqlite", "mysql", "":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.CDN.Enabled && c.CDN.BaseURL == "" {
		return fmt.Errorf("cdn enabled but base_url not set")
	}

	if c.Refresh.Enabled && (c.Refresh.IntervalMs < 1 || c.Refresh.StaleAfterMs < 1) {
		return fmt.Errorf("refresh enabled but interval or stale cutoff not positive")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	valid := []string{"debug", "info", "warn", "error"}
	level = strings.ToLower(level)
	for _, v := range valid {
		if level == v {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *ServerConfig) String() string {
	return fmt.Sprintf("Config{Address: %s, DB: %s, Pool: %d-%d, LogLevel: %s}",
		c.Address, c.Database.Type, c.Pool.MinPoolSize, c.Pool.MaxPoolSize, c.Logging.Level)
}
