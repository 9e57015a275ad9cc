// Package config provides centralized configuration management for tallyd.
// Values are layered: built-in defaults, then an optional YAML config file,
// then TALLYD_* environment variables. Every tunable named here can be
// changed without a code change.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load unmarshals the supplied viper instance into a validated Config.
// The store password is resolved from password_file when set.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolveStorePassword(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveStorePassword reads the redis password from store.password_file,
// overriding any inline password. File-mounted secrets keep credentials out
// of the process environment.
func (c *Config) resolveStorePassword() error {
	if c.Store.PasswordFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.Store.PasswordFile)
	if err != nil {
		return fmt.Errorf("failed to read store password file %s: %w", c.Store.PasswordFile, err)
	}

	c.Store.Password = strings.TrimSpace(string(data))
	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Store.Addr == "" {
		return fmt.Errorf("store.addr must not be empty")
	}
	if c.Store.Key == "" {
		return fmt.Errorf("store.key must not be empty")
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store.op_timeout must be positive")
	}
	if c.Store.RetryMax < 0 {
		return fmt.Errorf("store.retry_max must not be negative")
	}
	if c.RateLimit.Rate <= 0 {
		return fmt.Errorf("ratelimit.rate must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive")
	}
	if c.Health.DrainDeadline <= 0 {
		return fmt.Errorf("health.drain_deadline must be positive")
	}
	if c.Health.ProbeInterval <= 0 {
		return fmt.Errorf("health.probe_interval must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %q", c.Logging.Level)
	}

	return nil
}

// SetDefaults installs the built-in default values on the supplied viper
// instance. Called once by the CLI layer before any config is read.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Store defaults
	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.password", "")
	v.SetDefault("store.password_file", "")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.key", "counter")
	v.SetDefault("store.dial_timeout", "5s")
	v.SetDefault("store.op_timeout", "5s")
	v.SetDefault("store.pool_size", 10)
	v.SetDefault("store.retry_max", 3)
	v.SetDefault("store.retry_backoff", "50ms")
	v.SetDefault("store.retry_backoff_cap", "1s")

	// Rate limit defaults mirror the reference deployment: 10/s sustained
	// with a burst allowance, reads exempt.
	v.SetDefault("ratelimit.rate", 10.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("ratelimit.idle_ttl", "10m")
	v.SetDefault("ratelimit.sweep_interval", "1m")
	v.SetDefault("ratelimit.limit_reads", false)

	// Health defaults
	v.SetDefault("health.probe_interval", "2s")
	v.SetDefault("health.probe_timeout", "2s")
	v.SetDefault("health.drain_deadline", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
}
