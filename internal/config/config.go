// Package config handles loading and parsing of unistore profile
// configuration.
//
// A profile names a backend scheme plus its options, so commands can say
// `--profile prod` instead of repeating connection settings:
//
//	default_profile: local
//	profiles:
//	  local:
//	    scheme: fs
//	    options:
//	      root: /var/lib/unistore
//	  prod:
//	    scheme: s3
//	    options:
//	      bucket: my-bucket
//	      region: us-east-1
//	    retry:
//	      max_times: 5
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level unistore configuration.
type Config struct {
	// DefaultProfile is used when no profile is named on the command line.
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
	Logging        LoggingConfig      `yaml:"logging"`
}

// Profile describes one configured backend.
type Profile struct {
	// Scheme is the backend scheme (e.g. "fs", "s3", "memory", "bolt").
	Scheme string `yaml:"scheme"`
	// Options are passed verbatim to the backend factory.
	Options map[string]string `yaml:"options"`
	// Retry, when present, wraps the backend in a retry layer.
	Retry *RetryConfig `yaml:"retry"`
	// Concurrency, when positive, caps in-flight backend operations.
	Concurrency int `yaml:"concurrency"`
}

// RetryConfig tunes the retry layer for a profile.
type RetryConfig struct {
	MaxTimes int      `yaml:"max_times"`
	MinDelay Duration `yaml:"min_delay"`
	MaxDelay Duration `yaml:"max_delay"`
	Factor   float64  `yaml:"factor"`
	Jitter   *bool    `yaml:"jitter"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "200ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with a single in-memory profile, used
// when no config file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "memory",
		Profiles: map[string]Profile{
			"memory": {Scheme: "memory"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the YAML configuration at path. A missing file
// yields the default configuration rather than an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("no profiles defined")
	}
	for name, p := range c.Profiles {
		if p.Scheme == "" {
			return fmt.Errorf("profile %q: scheme is required", name)
		}
		if p.Concurrency < 0 {
			return fmt.Errorf("profile %q: concurrency must not be negative", name)
		}
		if p.Retry != nil && p.Retry.MaxTimes < 0 {
			return fmt.Errorf("profile %q: retry max_times must not be negative", name)
		}
	}
	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			return fmt.Errorf("default_profile %q is not defined", c.DefaultProfile)
		}
	}
	return nil
}

// Profile resolves a profile by name, falling back to the default profile
// when name is empty.
func (c *Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" {
		return Profile{}, fmt.Errorf("no profile named and no default_profile set")
	}
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}
