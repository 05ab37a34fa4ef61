// Package config loads the YAML configuration used to open a filtered
// session.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/veil/dialect"
)

// Identity lookup policies.
const (
	LookupReverify   = "reverify"
	LookupTrustCache = "trust-cache"
)

// Config describes the database and the behavior of the visibility layer.
type Config struct {
	// Dialect is one of "sqlite", "postgres" or "mysql".
	Dialect string `yaml:"dialect"`

	// DSN is the data source name passed to the database driver.
	DSN string `yaml:"dsn"`

	// IdentityLookup selects how primary key lookups treat cached
	// instances: "reverify" (default) always reads the database,
	// "trust-cache" re-checks the cached instance only.
	IdentityLookup string `yaml:"identity_lookup,omitempty"`

	// Debug logs every statement at debug level.
	Debug bool `yaml:"debug,omitempty"`

	// SlowQueryThreshold enables query statistics and logs statements
	// slower than the threshold. Zero disables them.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold,omitempty"`
}

// Default returns the configuration of an in-memory SQLite database.
func Default() *Config {
	return &Config{
		Dialect:        dialect.SQLite,
		DSN:            "file::memory:?cache=shared",
		IdentityLookup: LookupReverify,
	}
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a YAML configuration. Unknown keys are rejected and
// omitted keys take their Default value.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	if !dialect.Supported(c.Dialect) {
		errs = append(errs, fmt.Errorf("unsupported dialect %q", c.Dialect))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	switch c.IdentityLookup {
	case "", LookupReverify, LookupTrustCache:
	default:
		errs = append(errs, fmt.Errorf("invalid identity_lookup %q", c.IdentityLookup))
	}
	if c.SlowQueryThreshold < 0 {
		errs = append(errs, errors.New("slow_query_threshold must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
