package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrorMode selects how /api/error decides to fail
type ErrorMode string

const (
	ErrorModeOff           ErrorMode = "off"
	ErrorModeAlways        ErrorMode = "always"
	ErrorModeProbabilistic ErrorMode = "probabilistic"
)

// Config represents the application configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	App        AppConfig        `json:"app" yaml:"app"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	RateLimit  RateLimitConfig  `json:"ratelimit" yaml:"ratelimit"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Address         string        `json:"address" yaml:"address"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AppConfig identifies the running instance
type AppConfig struct {
	Mode        string `json:"mode" yaml:"mode"`
	SecretToken string `json:"secret_token" yaml:"secret_token"`
}

// SimulationConfig drives the delay, error and readiness simulators
type SimulationConfig struct {
	ErrorMode        ErrorMode `json:"error_mode" yaml:"error_mode"`
	DefaultSlowMs    int       `json:"default_slow_ms" yaml:"default_slow_ms"`
	ReadinessDelayMs int       `json:"readiness_delay_ms" yaml:"readiness_delay_ms"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	RequestsPerSecond int    `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int    `json:"burst" yaml:"burst"`
	ByAPIKey          bool   `json:"by_api_key" yaml:"by_api_key"`
	APIKeyHeader      string `json:"api_key_header" yaml:"api_key_header"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // "json" or "console"
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Port    int    `json:"port" yaml:"port"`
}

// Load builds the configuration from defaults, an optional file and the
// process environment, in that order.
func Load(filePath string) (*Config, error) {
	cfg := defaultConfig()

	if filePath != "" {
		if err := loadFromFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		App: AppConfig{
			Mode: "dev",
		},
		Simulation: SimulationConfig{
			ErrorMode:        ErrorModeOff,
			DefaultSlowMs:    2000,
			ReadinessDelayMs: 5000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			Burst:             200,
			APIKeyHeader:      "X-API-Key",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
	}
}

func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		if err = yaml.Unmarshal(data, cfg); err != nil {
			err = json.Unmarshal(data, cfg)
		}
	}
	if err != nil {
		return err
	}

	cfg.Simulation.ErrorMode = normalizeErrorMode(string(cfg.Simulation.ErrorMode))
	return nil
}

// loadFromEnv overrides cfg with any variables found by lookup. Integer
// values that do not parse keep the value already in cfg.
func loadFromEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("PORT"); ok {
		cfg.Server.Port = ParseInt(v, cfg.Server.Port)
	}
	if v, ok := lookup("APP_MODE"); ok && v != "" {
		cfg.App.Mode = v
	}
	if v, ok := lookup("ERROR_MODE"); ok && v != "" {
		cfg.Simulation.ErrorMode = normalizeErrorMode(v)
	}
	if v, ok := lookup("SLOW_MS"); ok {
		cfg.Simulation.DefaultSlowMs = ParseInt(v, cfg.Simulation.DefaultSlowMs)
	}
	if v, ok := lookup("READINESS_DELAY_MS"); ok {
		cfg.Simulation.ReadinessDelayMs = ParseInt(v, cfg.Simulation.ReadinessDelayMs)
	}
	if v, ok := lookup("SECRET_TOKEN"); ok {
		cfg.App.SecretToken = v
	}

	if v, ok := lookup("SERVER_ADDRESS"); ok {
		cfg.Server.Address = v
	}
	if v, ok := lookup("SHUTDOWN_TIMEOUT_MS"); ok {
		ms := ParseInt(v, int(cfg.Server.ShutdownTimeout.Milliseconds()))
		cfg.Server.ShutdownTimeout = Millis(int64(ms))
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		cfg.Logging.Format = v
	}
	if v, ok := lookup("METRICS_ENABLED"); ok && v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v, ok := lookup("METRICS_PORT"); ok {
		cfg.Metrics.Port = ParseInt(v, cfg.Metrics.Port)
	}
	if v, ok := lookup("RATE_LIMIT_ENABLED"); ok && v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		cfg.RateLimit.RequestsPerSecond = ParseInt(v, cfg.RateLimit.RequestsPerSecond)
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		cfg.RateLimit.Burst = ParseInt(v, cfg.RateLimit.Burst)
	}
}

// Validate checks the operational settings. Simulation values are used as
// given and are never rejected here.
func (c *Config) Validate() error {
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit requests per second must be positive")
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit burst must be positive")
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return fmt.Errorf("metrics port %d collides with server port", c.Metrics.Port)
		}
	}
	return nil
}

// SlowDelay is the default /api/slow delay
func (c *Config) SlowDelay() time.Duration {
	return Millis(int64(c.Simulation.DefaultSlowMs))
}

// ReadinessDelay is how long after start the service reports ready
func (c *Config) ReadinessDelay() time.Duration {
	return Millis(int64(c.Simulation.ReadinessDelayMs))
}

// Millis converts milliseconds to a Duration, saturating instead of
// overflowing.
func Millis(ms int64) time.Duration {
	const limit = math.MaxInt64 / int64(time.Millisecond)
	switch {
	case ms > limit:
		return time.Duration(math.MaxInt64)
	case ms < -limit:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// ParseInt reads a leading base-10 integer from s. Leading whitespace and a
// sign are accepted and anything after the digits is ignored, so "250ms"
// yields 250. When s holds no digits the fallback is returned. Values out
// of range saturate at the int bounds.
func ParseInt(s string, fallback int) int {
	n, ok := ParseInt64(s)
	if !ok {
		return fallback
	}
	if n > math.MaxInt {
		return math.MaxInt
	}
	if n < math.MinInt {
		return math.MinInt
	}
	return int(n)
}

// ParseInt64 is ParseInt without a fallback; ok reports whether s began
// with an integer.
func ParseInt64(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}

	// ParseInt returns the saturated value alongside ErrRange.
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return n, true
}

func normalizeErrorMode(v string) ErrorMode {
	return ErrorMode(strings.ToLower(v))
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
