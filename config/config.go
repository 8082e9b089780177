// Package config loads the settings of the nxipc tool.
//
// Values come from three layers, later ones winning: Default, an optional
// TOML file, then NXIPC_* environment variables. Nested keys join with an
// underscore, so Server.Workers is NXIPC_SERVER_WORKERS.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"nx-ipc/loadbalance"
	"nx-ipc/version"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NXIPC"

const (
	BackendMemory = "memory"
	BackendEtcd   = "etcd"
)

// Duration reads "250ms" style strings from TOML and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds all settings.
type Config struct {
	SystemVersion string `toml:"system_version" split_words:"true"`
	ProcessID     uint64 `toml:"process_id" split_words:"true"`

	Server   ServerConfig   `toml:"server"`
	Client   ClientConfig   `toml:"client"`
	Registry RegistryConfig `toml:"registry"`
	Balancer string         `toml:"balancer"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	PointerBufferSize int      `toml:"pointer_buffer_size" split_words:"true"`
	Workers           int      `toml:"workers"`
	MaxSessions       int      `toml:"max_sessions" split_words:"true"`
	RequestTimeout    Duration `toml:"request_timeout" split_words:"true"`
	// RateLimit is in commands per second. Zero disables limiting.
	RateLimit float64 `toml:"rate_limit" split_words:"true"`
	RateBurst int     `toml:"rate_burst" split_words:"true"`
}

type ClientConfig struct {
	BufferPoolSize int         `toml:"buffer_pool_size" split_words:"true"`
	Retry          RetryConfig `toml:"retry"`
}

// RetryConfig controls how often a command failing with ResultBusy is
// repeated.
type RetryConfig struct {
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
}

type RegistryConfig struct {
	Backend   string   `toml:"backend"`
	Endpoints []string `toml:"endpoints"`
	// TTL of etcd leases, in seconds.
	TTL int64 `toml:"ttl"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SystemVersion: version.Current().String(),
		ProcessID:     0x80,
		Server: ServerConfig{
			PointerBufferSize: 0x500,
			Workers:           4,
			MaxSessions:       32,
			RequestTimeout:    Duration(5 * time.Second),
			RateBurst:         100,
		},
		Client: ClientConfig{
			BufferPoolSize: 4,
			Retry: RetryConfig{
				Attempts: 3,
				Delay:    Duration(100 * time.Millisecond),
			},
		},
		Registry: RegistryConfig{
			Backend: BackendMemory,
			TTL:     10,
		},
		Balancer: loadbalance.StrategyRoundRobin,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Version parses SystemVersion.
func (c *Config) Version() (version.Version, error) {
	return version.Parse(c.SystemVersion)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Version(); err != nil {
		errs = append(errs, fmt.Errorf("system_version: %w", err))
	}
	switch c.Registry.Backend {
	case BackendMemory:
	case BackendEtcd:
		if len(c.Registry.Endpoints) == 0 {
			errs = append(errs, errors.New("registry: etcd backend needs endpoints"))
		}
	default:
		errs = append(errs, fmt.Errorf("registry: unknown backend %q", c.Registry.Backend))
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		errs = append(errs, fmt.Errorf("balancer: %w", err))
	}
	if c.Client.BufferPoolSize <= 0 {
		errs = append(errs, errors.New("client: buffer_pool_size must be positive"))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, errors.New("server: workers must be positive"))
	}
	if c.Server.PointerBufferSize < 0 {
		errs = append(errs, errors.New("server: pointer_buffer_size must not be negative"))
	}
	return errors.Join(errs...)
}
