package config

import (
	"time"
)

// Config is the root configuration of the rategate command and of gates built with
// factory.FromConfig.
type Config struct {
	// Gate contains the admission limits.
	Gate GateConfig `yaml:"gate"`

	// Logging contains log output settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus exporter settings.
	Metrics MetricsConfig `yaml:"metrics"`

	// Redis contains settings for the Redis backed stats recorder.
	Redis RedisConfig `yaml:"redis"`

	// Demo contains the load generator settings used by "rategate simulate".
	Demo DemoConfig `yaml:"demo"`
}

// GateConfig describes one rate gate.
type GateConfig struct {
	// Name labels the gate in logs and metrics. Empty means a random UUID.
	Name string `yaml:"name"`

	// MaxCount is the number of admissions allowed per reset span.
	MaxCount int `yaml:"max_count"`

	// ResetSpan is the length of the rolling window (e.g. "1s", "500ms").
	ResetSpan time.Duration `yaml:"reset_span"`
}

// LoggingConfig controls the slog logger built by NewLogger.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text").
	Format string `yaml:"format"`

	// AddSource includes file and line number in records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns on the Prometheus recorder and HTTP endpoint.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address of the metrics server.
	Address string `yaml:"address"`

	// Path is the HTTP path metrics are served on.
	Path string `yaml:"path"`
}

// RedisConfig controls the Redis stats recorder.
type RedisConfig struct {
	// Enabled turns on the Redis recorder.
	Enabled bool `yaml:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`

	// Password is the optional Redis password.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// Prefix is prepended to every key written.
	Prefix string `yaml:"prefix"`

	// TTL is how long per-minute buckets are kept.
	TTL time.Duration `yaml:"ttl"`

	// BufferSize is how many events may be queued before new ones are dropped.
	BufferSize int `yaml:"buffer_size"`
}

// DemoConfig controls the simulated load of "rategate simulate".
type DemoConfig struct {
	// Callers is the number of concurrent callers.
	Callers int `yaml:"callers"`

	// Duration is how long the simulation runs.
	Duration time.Duration `yaml:"duration"`

	// ArrivalRate caps how many call attempts per second the callers start in total.
	// Zero means callers retry as fast as the gate lets them.
	ArrivalRate float64 `yaml:"arrival_rate"`
}
