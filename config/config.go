// Package config loads cacheandra's runtime configuration: which tiers
// to dial, the keyspace/column-family layout, and the timing knobs the
// Coordinator's retry policy depends on.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"
)

// Config holds the recognized runtime options. Every duration field is
// stored as a TOML-friendly string (e.g. "30s") and parsed once at
// Load/Validate time.
type Config struct {
	FastServers      []string `toml:"fast_servers"`
	FastMaxIdleConns int      `toml:"fast_max_idle_conns"`

	CassandraServers []string `toml:"cassandra"`
	Keyspace         string   `toml:"keyspace"`
	ColumnFamily     string   `toml:"columnfamily"`

	DefaultTimeout string `toml:"default_timeout"`
	RetryBackoff   string `toml:"retry_backoff"`
	DurableTimeout string `toml:"durable_timeout"`
	DurableRetries int    `toml:"durable_retries"`

	KeyPrefix    string `toml:"key_prefix"`
	KeyDelimiter string `toml:"key_delimiter"`

	HTTPAddr string `toml:"http_addr"`

	defaultTimeout time.Duration
	retryBackoff   time.Duration
	durableTimeout time.Duration
}

// Default returns a Config with every documented default applied,
// matching the Python original's class-level defaults.
func Default() *Config {
	return &Config{
		Keyspace:       "cacheandra",
		ColumnFamily:   "cache",
		DefaultTimeout: "30s",
		RetryBackoff:   "200ms",
		DurableTimeout: "10s",
		DurableRetries: 1,
		KeyDelimiter:   ":",
		HTTPAddr:       ":9191",
	}
}

// Load reads a TOML file at path on top of Default, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills any still-blank default and parses the duration
// fields, failing loudly on a malformed duration rather than silently
// falling back.
func (c *Config) Validate() error {
	if c.Keyspace == "" {
		c.Keyspace = "cacheandra"
	}
	if c.ColumnFamily == "" {
		c.ColumnFamily = "cache"
	}
	if c.KeyDelimiter == "" {
		c.KeyDelimiter = ":"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":9191"
	}

	var err error
	if c.defaultTimeout, err = parseDuration(c.DefaultTimeout, 30*time.Second); err != nil {
		return fmt.Errorf("config: default_timeout: %w", err)
	}
	if c.retryBackoff, err = parseDuration(c.RetryBackoff, 200*time.Millisecond); err != nil {
		return fmt.Errorf("config: retry_backoff: %w", err)
	}
	if c.durableTimeout, err = parseDuration(c.DurableTimeout, 10*time.Second); err != nil {
		return fmt.Errorf("config: durable_timeout: %w", err)
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// CounterTable is the counter column family name derived from
// ColumnFamily, matching durabletier's naming convention.
func (c *Config) CounterTable() string { return c.ColumnFamily + "_counter" }

func (c *Config) DefaultTimeoutDuration() time.Duration { return c.defaultTimeout }
func (c *Config) RetryBackoffDuration() time.Duration   { return c.retryBackoff }
func (c *Config) DurableTimeoutDuration() time.Duration { return c.durableTimeout }
