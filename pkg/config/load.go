package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfigWithEnvOverrides.
const EnvPrefix = "RATEGATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file %q", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration file %q", path)
	}

	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration and applies environment variable
// overrides. Environment variables follow the naming convention RATEGATE_SECTION_FIELD
// (e.g. RATEGATE_GATE_MAX_COUNT) and always take precedence over the file.
//
// An empty path skips the file and starts from the defaults.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := ReadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ReadConfigWithEnvOverrides performs steps 1-3 of LoadConfigWithEnvOverrides and
// leaves validation to the caller. Use it when further overrides, such as command line
// flags, are applied before the configuration is checked.
func ReadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read configuration file %q", path)
		}

		cfg, err = decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "configuration file %q", path)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decode parses data strictly and applies defaults. It does not validate.
func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := unmarshalStrict(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

func unmarshalStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	// An empty document leaves every field to the defaults.
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// applyEnvOverrides applies RATEGATE_* environment variables to cfg. A variable that is
// set but cannot be parsed is an error, so a typo never silently falls back to the file.
func applyEnvOverrides(cfg *Config) error {
	var err error

	// Gate overrides
	setString(&cfg.Gate.Name, "GATE_NAME")
	if err = setInt(&cfg.Gate.MaxCount, "GATE_MAX_COUNT"); err != nil {
		return err
	}
	if err = setDuration(&cfg.Gate.ResetSpan, "GATE_RESET_SPAN"); err != nil {
		return err
	}

	// Logging overrides
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	if err = setBool(&cfg.Logging.AddSource, "LOG_ADD_SOURCE"); err != nil {
		return err
	}

	// Metrics overrides
	if err = setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED"); err != nil {
		return err
	}
	setString(&cfg.Metrics.Address, "METRICS_ADDRESS")
	setString(&cfg.Metrics.Path, "METRICS_PATH")

	// Redis overrides
	if err = setBool(&cfg.Redis.Enabled, "REDIS_ENABLED"); err != nil {
		return err
	}
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if err = setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	setString(&cfg.Redis.Prefix, "REDIS_PREFIX")
	if err = setDuration(&cfg.Redis.TTL, "REDIS_TTL"); err != nil {
		return err
	}
	if err = setInt(&cfg.Redis.BufferSize, "REDIS_BUFFER_SIZE"); err != nil {
		return err
	}

	// Demo overrides
	if err = setInt(&cfg.Demo.Callers, "DEMO_CALLERS"); err != nil {
		return err
	}
	if err = setDuration(&cfg.Demo.Duration, "DEMO_DURATION"); err != nil {
		return err
	}
	if val, ok := lookup("DEMO_ARRIVAL_RATE"); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %sDEMO_ARRIVAL_RATE", EnvPrefix)
		}
		cfg.Demo.ArrivalRate = f
	}

	return nil
}

func lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func setString(dst *string, name string) {
	if val, ok := lookup(name); ok {
		*dst = val
	}
}

func setInt(dst *int, name string) error {
	val, ok := lookup(name)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
	}
	*dst = i
	return nil
}

func setBool(dst *bool, name string) error {
	val, ok := lookup(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	val, ok := lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return errors.Wrapf(err, "invalid %s%s", EnvPrefix, name)
	}
	*dst = d
	return nil
}
