// Package config loads schemasync configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/schemasync/internal/build"
	"github.com/roach88/schemasync/internal/engine"
	"github.com/roach88/schemasync/internal/remote"
	"github.com/roach88/schemasync/internal/schema"
)

// Environment variables read by Load.
const (
	EnvAPIToken    = "SCHEMASYNC_API_TOKEN"
	EnvEnvironment = "SCHEMASYNC_ENVIRONMENT"
	EnvBaseURL     = "SCHEMASYNC_BASE_URL"
	EnvCachePath   = "SCHEMASYNC_CACHE_PATH"
	EnvConcurrency = "SCHEMASYNC_CONCURRENCY"
)

// Config is the root configuration structure.
type Config struct {
	Remote RemoteConfig `yaml:"remote"`
	Build  BuildConfig  `yaml:"build"`
	Cache  CacheConfig  `yaml:"cache"`
}

// RemoteConfig configures the remote schema service.
type RemoteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIToken    string        `yaml:"api_token,omitempty"`
	Environment string        `yaml:"environment,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryMax    *int          `yaml:"retry_max"`
	RetryWait   time.Duration `yaml:"retry_wait"`
}

// BuildConfig configures builds.
type BuildConfig struct {
	OverwriteExisting bool   `yaml:"overwrite_existing"`
	SkipDeletion      bool   `yaml:"skip_deletion"`
	APIKeySuffix      string `yaml:"api_key_suffix,omitempty"`
	BlockSuffix       string `yaml:"block_suffix,omitempty"`
	Concurrency       int    `yaml:"concurrency"`
	FlushEachItem     bool   `yaml:"flush_each_item"`
}

// CacheConfig configures the build cache.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// Defaults.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultRetryMax    = 3
	DefaultRetryWait   = 500 * time.Millisecond
	DefaultConcurrency = 4
	DefaultCachePath   = ".schemasync/cache.db"
)

// Default returns a Config with defaults and environment overrides applied.
func Default() (*Config, error) {
	var cfg Config
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	return &cfg, nil
}

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults. An empty path is the same as Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies SCHEMASYNC_* environment variables. They
// always override the file.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.Remote.APIToken = v
	}
	if v := os.Getenv(EnvEnvironment); v != "" {
		cfg.Remote.Environment = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvCachePath); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", EnvConcurrency, v)
		}
		cfg.Build.Concurrency = n
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = DefaultTimeout
	}
	if cfg.Remote.RetryMax == nil {
		n := DefaultRetryMax
		cfg.Remote.RetryMax = &n
	}
	if cfg.Remote.RetryWait == 0 {
		cfg.Remote.RetryWait = DefaultRetryWait
	}
	if cfg.Build.Concurrency == 0 {
		cfg.Build.Concurrency = DefaultConcurrency
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
}

// Validate checks the configuration. With dryRun no remote service is
// contacted, so the remote settings are not required.
func (c *Config) Validate(dryRun bool) error {
	var errs []error
	if !dryRun {
		if c.Remote.BaseURL == "" {
			errs = append(errs, fmt.Errorf("remote.base_url is required"))
		}
		if c.Remote.APIToken == "" {
			errs = append(errs, fmt.Errorf("remote.api_token is required (or set %s)", EnvAPIToken))
		}
	}
	if c.Remote.RetryMax != nil && *c.Remote.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("remote.retry_max must not be negative, got %d", *c.Remote.RetryMax))
	}
	if c.Build.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("build.concurrency must be at least 1, got %d", c.Build.Concurrency))
	}
	if c.Build.APIKeySuffix != "" && !schema.ValidAPIKey(c.Build.APIKeySuffix) {
		errs = append(errs, fmt.Errorf("build.api_key_suffix %q must be lowercase snake_case", c.Build.APIKeySuffix))
	}
	return errors.Join(errs...)
}

// Naming returns the naming policy.
func (c *Config) Naming() schema.Naming {
	return schema.Naming{APIKeySuffix: c.Build.APIKeySuffix, BlockSuffix: c.Build.BlockSuffix}
}

// BuildPolicy returns the orchestrator policy.
func (c *Config) BuildPolicy() build.Policy {
	return build.Policy{
		Sync: engine.Policy{
			OverwriteExisting: c.Build.OverwriteExisting,
			SkipDeletion:      c.Build.SkipDeletion,
		},
		Naming:        c.Naming(),
		Concurrency:   c.Build.Concurrency,
		FlushEachItem: c.Build.FlushEachItem,
	}
}

// ClientConfig returns the HTTP adapter configuration.
func (c *Config) ClientConfig() remote.ClientConfig {
	retryMax := DefaultRetryMax
	if c.Remote.RetryMax != nil {
		retryMax = *c.Remote.RetryMax
	}
	return remote.ClientConfig{
		BaseURL:     c.Remote.BaseURL,
		APIToken:    c.Remote.APIToken,
		Environment: c.Remote.Environment,
		Timeout:     c.Remote.Timeout,
		RetryMax:    retryMax,
		RetryWait:   c.Remote.RetryWait,
	}
}

// CacheTarget names the remote schema the cache entries belong to: the
// base URL and the environment. Entries built for one target are never
// reused for another.
func (c *Config) CacheTarget() string {
	target := strings.TrimRight(c.Remote.BaseURL, "/")
	if c.Remote.Environment != "" {
		target += "#" + c.Remote.Environment
	}
	return target
}
