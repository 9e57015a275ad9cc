package config

import (
	"time"
)

// Config represents the complete application configuration, populated from
// defaults, an optional config file, and TALLYD_* environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Health    HealthConfig    `mapstructure:"health"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StoreConfig contains the counter store (redis) configuration.
// Password may be supplied inline or via a file path, the latter taking
// precedence so secrets can be mounted rather than passed in the environment.
type StoreConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	PasswordFile string        `mapstructure:"password_file"`
	DB           int           `mapstructure:"db"`
	Key          string        `mapstructure:"key"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`

	// RetryMax bounds internal retries of reads (and provably unapplied
	// increments) on transient store failure.
	RetryMax        int           `mapstructure:"retry_max"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffCap time.Duration `mapstructure:"retry_backoff_cap"`
}

// RateLimitConfig contains per-client admission control configuration.
// Burst is the token bucket capacity C; Rate is the refill rate R in
// tokens per second.
type RateLimitConfig struct {
	Rate          float64       `mapstructure:"rate"`
	Burst         int           `mapstructure:"burst"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// LimitReads subjects GET / to the same buckets as POST /. When false,
	// the read path bypasses admission control entirely.
	LimitReads bool `mapstructure:"limit_reads"`
}

// HealthConfig contains health probing and drain configuration.
type HealthConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`

	// DrainDeadline bounds how long shutdown waits for in-flight requests
	// before the coordinator transitions to Stopped regardless.
	DrainDeadline time.Duration `mapstructure:"drain_deadline"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level.
	// Valid values: debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is exposed
	Enabled bool `mapstructure:"enabled"`
}
