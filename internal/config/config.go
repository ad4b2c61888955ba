// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all fedicache configuration.
type Config struct {
	Instance Instance `yaml:"instance"`
	Fetch    Fetch    `yaml:"fetch"`
	Stream   Stream   `yaml:"stream"`
	Logging  Logging  `yaml:"logging"`
	Inspect  Inspect  `yaml:"inspect"`
	Snapshot Snapshot `yaml:"snapshot"`
}

// Instance identifies the server and the credentials used against it.
type Instance struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Fetch holds list fetching settings.
type Fetch struct {
	PageSize      int           `yaml:"page_size"`
	MaxPages      int           `yaml:"max_pages"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	StaleAfter    time.Duration `yaml:"stale_after"` // 0 disables staleness checks
}

// Stream holds streaming API settings.
type Stream struct {
	Enabled        bool          `yaml:"enabled"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Logging holds logger settings.
type Logging struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "console" | "json"
}

// Inspect holds the debug HTTP server settings.
type Inspect struct {
	Addr string `yaml:"addr"`
}

// Snapshot holds warm-start snapshot settings.
type Snapshot struct {
	Dir string `yaml:"dir"` // empty disables snapshots
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Instance: Instance{
			Timeout: 30 * time.Second,
		},
		Fetch: Fetch{
			PageSize:      20,
			MaxPages:      1,
			RetryAttempts: 3,
		},
		Stream: Stream{
			Enabled:        false,
			ReconnectDelay: 5 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Inspect: Inspect{
			Addr: "127.0.0.1:8089",
		},
		Snapshot: Snapshot{
			Dir: ".fedicache/snapshots",
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	return LoadLayered(path)
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones field by field. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Instance.URL == "" {
		return errors.New("config: instance.url cannot be empty")
	}
	u, err := url.Parse(c.Instance.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: instance.url must be an http(s) URL, got %q", c.Instance.URL)
	}
	if c.Instance.Timeout <= 0 {
		return fmt.Errorf("config: instance.timeout must be positive, got %v", c.Instance.Timeout)
	}
	if c.Fetch.PageSize <= 0 {
		return fmt.Errorf("config: fetch.page_size must be positive, got %d", c.Fetch.PageSize)
	}
	if c.Fetch.MaxPages <= 0 {
		return fmt.Errorf("config: fetch.max_pages must be positive, got %d", c.Fetch.MaxPages)
	}
	if c.Fetch.StaleAfter < 0 {
		return fmt.Errorf("config: fetch.stale_after must be non-negative, got %v", c.Fetch.StaleAfter)
	}
	if c.Stream.Enabled && c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("config: stream.reconnect_delay must be positive, got %v", c.Stream.ReconnectDelay)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("config: logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
		// valid
	default:
		return fmt.Errorf("config: logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	if c.Inspect.Addr == "" {
		return errors.New("config: inspect.addr cannot be empty")
	}
	return nil
}

// envOverrides lists the supported environment variables. Unset variables
// leave their pointer nil so only explicitly set values override the file layers.
type envOverrides struct {
	InstanceURL   *string        `env:"INSTANCE_URL"`
	Token         *string        `env:"TOKEN"`
	Timeout       *time.Duration `env:"TIMEOUT"`
	PageSize      *int           `env:"PAGE_SIZE"`
	StreamEnabled *bool          `env:"STREAM"`
	LogLevel      *string        `env:"LOG_LEVEL"`
	LogFormat     *string        `env:"LOG_FORMAT"`
	InspectAddr   *string        `env:"INSPECT_ADDR"`
	SnapshotDir   *string        `env:"SNAPSHOT_DIR"`
}

// EnvPrefix prefixes every supported environment variable.
const EnvPrefix = "FEDICACHE_"

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: FEDICACHE_INSTANCE_URL, FEDICACHE_TOKEN, FEDICACHE_TIMEOUT,
// FEDICACHE_PAGE_SIZE, FEDICACHE_STREAM, FEDICACHE_LOG_LEVEL, FEDICACHE_LOG_FORMAT,
// FEDICACHE_INSPECT_ADDR, FEDICACHE_SNAPSHOT_DIR.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parsing environment: %w", err)
	}
	setIf(&c.Instance.URL, o.InstanceURL)
	setIf(&c.Instance.Token, o.Token)
	setIf(&c.Instance.Timeout, o.Timeout)
	setIf(&c.Fetch.PageSize, o.PageSize)
	setIf(&c.Stream.Enabled, o.StreamEnabled)
	setIf(&c.Logging.Level, o.LogLevel)
	setIf(&c.Logging.Format, o.LogFormat)
	setIf(&c.Inspect.Addr, o.InspectAddr)
	setIf(&c.Snapshot.Dir, o.SnapshotDir)
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Instance *rawInstance `yaml:"instance"`
	Fetch    *rawFetch    `yaml:"fetch"`
	Stream   *rawStream   `yaml:"stream"`
	Logging  *rawLogging  `yaml:"logging"`
	Inspect  *rawInspect  `yaml:"inspect"`
	Snapshot *rawSnapshot `yaml:"snapshot"`
}

type rawInstance struct {
	URL     *string        `yaml:"url"`
	Token   *string        `yaml:"token"`
	Timeout *time.Duration `yaml:"timeout"`
}

type rawFetch struct {
	PageSize      *int           `yaml:"page_size"`
	MaxPages      *int           `yaml:"max_pages"`
	RetryAttempts *uint          `yaml:"retry_attempts"`
	StaleAfter    *time.Duration `yaml:"stale_after"`
}

type rawStream struct {
	Enabled        *bool          `yaml:"enabled"`
	ReconnectDelay *time.Duration `yaml:"reconnect_delay"`
}

type rawLogging struct {
	Level  *string `yaml:"level"`
	Format *string `yaml:"format"`
}

type rawInspect struct {
	Addr *string `yaml:"addr"`
}

type rawSnapshot struct {
	Dir *string `yaml:"dir"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if l := layer.Instance; l != nil {
		setIf(&c.Instance.URL, l.URL)
		setIf(&c.Instance.Token, l.Token)
		setIf(&c.Instance.Timeout, l.Timeout)
	}
	if l := layer.Fetch; l != nil {
		setIf(&c.Fetch.PageSize, l.PageSize)
		setIf(&c.Fetch.MaxPages, l.MaxPages)
		setIf(&c.Fetch.RetryAttempts, l.RetryAttempts)
		setIf(&c.Fetch.StaleAfter, l.StaleAfter)
	}
	if l := layer.Stream; l != nil {
		setIf(&c.Stream.Enabled, l.Enabled)
		setIf(&c.Stream.ReconnectDelay, l.ReconnectDelay)
	}
	if l := layer.Logging; l != nil {
		setIf(&c.Logging.Level, l.Level)
		setIf(&c.Logging.Format, l.Format)
	}
	if l := layer.Inspect; l != nil {
		setIf(&c.Inspect.Addr, l.Addr)
	}
	if l := layer.Snapshot; l != nil {
		setIf(&c.Snapshot.Dir, l.Dir)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
