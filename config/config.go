// Package config loads server configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings in
// time.ParseDuration syntax ("5m", "30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config holds every tunable of the server.
type Config struct {
	Cache    CacheConfig   `yaml:"cache"`
	Scripts  ScriptsConfig `yaml:"scripts"`
	Mail     MailConfig    `yaml:"mail"`
	LogLevel string        `yaml:"log_level"`
}

// CacheConfig tunes the contact resolver cache.
type CacheConfig struct {
	TTL           Duration `yaml:"ttl"`
	EnrichTimeout Duration `yaml:"enrich_timeout"`
}

// ScriptsConfig tunes osascript execution.
type ScriptsConfig struct {
	SearchTimeout Duration `yaml:"search_timeout"`
	LongTimeout   Duration `yaml:"long_timeout"`
}

// MailConfig carries mail server overrides. Credentials come from the
// environment, never from the config file.
type MailConfig struct {
	IMAPAddr string `yaml:"imap_addr"`
	SMTPAddr string `yaml:"smtp_addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			TTL:           Duration(5 * time.Minute),
			EnrichTimeout: Duration(5 * time.Second),
		},
		Scripts: ScriptsConfig{
			SearchTimeout: Duration(8 * time.Second),
			LongTimeout:   Duration(30 * time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path, merges it over Default, and applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Env override names. Durations use time.ParseDuration syntax.
const (
	envCacheTTL      = "PIMBRIDGE_CACHE_TTL"
	envEnrichTimeout = "PIMBRIDGE_ENRICH_TIMEOUT"
	envSearchTimeout = "PIMBRIDGE_SEARCH_TIMEOUT"
	envLongTimeout   = "PIMBRIDGE_LONG_TIMEOUT"
	envLogLevel      = "PIMBRIDGE_LOG_LEVEL"
)

func applyEnv(cfg *Config) {
	overrideDuration(envCacheTTL, &cfg.Cache.TTL)
	overrideDuration(envEnrichTimeout, &cfg.Cache.EnrichTimeout)
	overrideDuration(envSearchTimeout, &cfg.Scripts.SearchTimeout)
	overrideDuration(envLongTimeout, &cfg.Scripts.LongTimeout)
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func overrideDuration(name string, target *Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return
	}
	*target = Duration(d)
}

func (c Config) validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.EnrichTimeout <= 0 {
		return fmt.Errorf("config: enrich timeout must be positive, got %s", c.Cache.EnrichTimeout)
	}
	if c.Scripts.SearchTimeout <= 0 {
		return fmt.Errorf("config: search timeout must be positive, got %s", c.Scripts.SearchTimeout)
	}
	if c.Scripts.LongTimeout <= 0 {
		return fmt.Errorf("config: long timeout must be positive, got %s", c.Scripts.LongTimeout)
	}
	return nil
}
