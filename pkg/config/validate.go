package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "gate.max_count").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError listing every
// failed rule, or nil if the configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateGate(&cfg.Gate)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	errs = append(errs, validateRedis(&cfg.Redis)...)
	errs = append(errs, validateDemo(&cfg.Demo)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateGate(cfg *GateConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxCount <= 0 {
		errs = append(errs, FieldError{
			Field:   "gate.max_count",
			Message: fmt.Sprintf("must be greater than zero, got %d", cfg.MaxCount),
		})
	}
	if cfg.ResetSpan < 0 {
		errs = append(errs, FieldError{
			Field:   "gate.reset_span",
			Message: fmt.Sprintf("must not be negative, got %s", cfg.ResetSpan),
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError

	if _, err := parseLevel(cfg.Level); err != nil {
		errs = append(errs, FieldError{Field: "logging.level", Message: err.Error()})
	}
	if _, err := parseFormat(cfg.Format); err != nil {
		errs = append(errs, FieldError{Field: "logging.format", Message: err.Error()})
	}

	return errs
}

func validateMetrics(cfg *MetricsConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.Address == "" {
		errs = append(errs, FieldError{Field: "metrics.address", Message: "is required when metrics are enabled"})
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, FieldError{Field: "metrics.path", Message: fmt.Sprintf("must start with '/', got %q", cfg.Path)})
	}
	return errs
}

func validateRedis(cfg *RedisConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if cfg.Addr == "" {
		errs = append(errs, FieldError{Field: "redis.addr", Message: "is required when redis is enabled"})
	}
	if cfg.DB < 0 {
		errs = append(errs, FieldError{Field: "redis.db", Message: fmt.Sprintf("must not be negative, got %d", cfg.DB)})
	}
	if cfg.TTL < 0 {
		errs = append(errs, FieldError{Field: "redis.ttl", Message: fmt.Sprintf("must not be negative, got %s", cfg.TTL)})
	}
	if cfg.BufferSize <= 0 {
		errs = append(errs, FieldError{Field: "redis.buffer_size", Message: fmt.Sprintf("must be greater than zero, got %d", cfg.BufferSize)})
	}
	return errs
}

func validateDemo(cfg *DemoConfig) []FieldError {
	var errs []FieldError

	if cfg.Callers <= 0 {
		errs = append(errs, FieldError{Field: "demo.callers", Message: fmt.Sprintf("must be greater than zero, got %d", cfg.Callers)})
	}
	if cfg.Duration <= 0 {
		errs = append(errs, FieldError{Field: "demo.duration", Message: fmt.Sprintf("must be positive, got %s", cfg.Duration)})
	}
	if cfg.ArrivalRate < 0 {
		errs = append(errs, FieldError{Field: "demo.arrival_rate", Message: fmt.Sprintf("must not be negative, got %g", cfg.ArrivalRate)})
	}

	return errs
}
