package config

import "time"

// Default values for configuration fields.
const (
	// Gate defaults
	DefaultGateMaxCount  = 10
	DefaultGateResetSpan = time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// Metrics defaults
	DefaultMetricsAddress = "127.0.0.1:9090"
	DefaultMetricsPath    = "/metrics"

	// Redis defaults
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "rategate:stats"
	DefaultRedisTTL        = 24 * time.Hour
	DefaultRedisBufferSize = 1024

	// Demo defaults
	DefaultDemoCallers  = 100
	DefaultDemoDuration = 2 * time.Second
)

// ApplyDefaults fills in every zero-valued field that has a default.
// Fields set explicitly, including booleans, are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Gate.MaxCount == 0 {
		cfg.Gate.MaxCount = DefaultGateMaxCount
	}
	if cfg.Gate.ResetSpan == 0 {
		cfg.Gate.ResetSpan = DefaultGateResetSpan
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = DefaultMetricsAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.BufferSize == 0 {
		cfg.Redis.BufferSize = DefaultRedisBufferSize
	}

	if cfg.Demo.Callers == 0 {
		cfg.Demo.Callers = DefaultDemoCallers
	}
	if cfg.Demo.Duration == 0 {
		cfg.Demo.Duration = DefaultDemoDuration
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
