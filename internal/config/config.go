// Package config loads the process configuration once at start-up. The
// resulting value is passed explicitly to constructors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/signalsfoundry/geoloc/internal/cache"
	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/internal/observability"
)

// Cache configures where and how artifacts are stored.
type Cache struct {
	// Root holds full-disk and static-region artifacts.
	Root string `yaml:"root"`
	// DynamicRoot holds dynamic-region artifacts. Defaults to Root.
	DynamicRoot      string        `yaml:"dynamic_root"`
	Backend          string        `yaml:"backend"`
	ChunkSize        int           `yaml:"chunk_size"`
	Timeout          time.Duration `yaml:"timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	CacheSolarAngles bool          `yaml:"cache_solar_angles"`
}

// AutoGen controls automatic generation of dynamic-region artifacts.
type AutoGen struct {
	DisableDynamic bool     `yaml:"disable_dynamic"`
	Exceptions     []string `yaml:"exceptions"`
}

// Logging mirrors logging.Config in YAML form.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the whole process configuration.
type Config struct {
	Cache       Cache                       `yaml:"cache"`
	AutoGen     AutoGen                     `yaml:"autogen"`
	Logging     Logging                     `yaml:"logging"`
	Tracing     observability.TracingConfig `yaml:"tracing"`
	MetricsAddr string                      `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Cache: Cache{
			Root:         "cache",
			Backend:      string(cache.KindFlat),
			Timeout:      cache.DefaultTimeout,
			PollInterval: cache.DefaultPollInterval,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GEOLOC_CACHE_ROOT"); v != "" {
		c.Cache.Root = v
	}
	if v := os.Getenv("GEOLOC_CACHE_DYNAMIC_ROOT"); v != "" {
		c.Cache.DynamicRoot = v
	}
	if v := os.Getenv("GEOLOC_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("GEOLOC_CACHE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GEOLOC_CACHE_TIMEOUT: %w", err)
		}
		c.Cache.Timeout = d
	}
	if v := os.Getenv("GEOLOC_DISABLE_DYNAMIC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GEOLOC_DISABLE_DYNAMIC: %w", err)
		}
		c.AutoGen.DisableDynamic = b
	}
	if v := os.Getenv("GEOLOC_AUTOGEN_EXCEPTIONS"); v != "" {
		c.AutoGen.Exceptions = splitList(v)
	}
	if v := os.Getenv("GEOLOC_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	c.Tracing = c.Tracing.ApplyEnv()
	return nil
}

// Validate rejects configurations the cache cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Cache.Root) == "" {
		return fmt.Errorf("%w: cache.root is required", cache.ErrConfiguration)
	}
	if _, err := cache.ParseBackendKind(c.Cache.Backend); err != nil {
		return err
	}
	if c.Cache.ChunkSize < 0 {
		return fmt.Errorf("%w: cache.chunk_size must not be negative", cache.ErrConfiguration)
	}
	if c.Cache.Timeout < 0 || c.Cache.PollInterval < 0 {
		return fmt.Errorf("%w: cache timings must not be negative", cache.ErrConfiguration)
	}
	return nil
}

// BackendKind returns the parsed cache backend.
func (c Config) BackendKind() cache.BackendKind {
	kind, err := cache.ParseBackendKind(c.Cache.Backend)
	if err != nil {
		return cache.KindFlat
	}
	return kind
}

// LoggingConfig converts the logging section.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
