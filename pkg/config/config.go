// Package config loads the intcode TOML configuration file.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default. Unknown keys are rejected so typos do not pass silently.
package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Configuration errors.
var (
	ErrConfigInvalid = errors.New("invalid configuration")
	ErrUnknownKey    = errors.New("unknown configuration key")
)

// Config is the complete configuration.
type Config struct {
	Log   LogConfig   `toml:"log"`
	Store StoreConfig `toml:"store"`
	Cache CacheConfig `toml:"cache"`
	RPC   RPCConfig   `toml:"rpc"`
	GRPC  GRPCConfig  `toml:"grpc"`
	VM    VMConfig    `toml:"vm"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`

	// Development switches to human-friendly output with stack traces on warnings.
	Development bool `toml:"development"`
}

// StoreConfig configures the image catalog.
type StoreConfig struct {
	// Path is the bbolt database file.
	Path string `toml:"path"`

	// CacheSize is the number of decoded images kept in memory.
	CacheSize int `toml:"cache-size"`

	// NoSync skips fsync on commit. Faster, but unsafe on power loss.
	NoSync bool `toml:"no-sync"`
}

// CacheConfig configures the run cache.
type CacheConfig struct {
	Enabled bool `toml:"enabled"`

	// Path is the badger directory. Ignored when InMemory is set.
	Path string `toml:"path"`

	InMemory   bool `toml:"in-memory"`
	SyncWrites bool `toml:"sync-writes"`
}

// RPCConfig configures the JSON-RPC session server.
type RPCConfig struct {
	Enabled        bool          `toml:"enabled"`
	Addr           string        `toml:"addr"`
	ReadTimeout    time.Duration `toml:"read-timeout"`
	WriteTimeout   time.Duration `toml:"write-timeout"`
	MaxRequestSize int64         `toml:"max-request-size"`
	MaxSessions    int           `toml:"max-sessions"`
	LogRequests    bool          `toml:"log-requests"`
}

// GRPCConfig configures the gRPC execution service.
type GRPCConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	MaxMessageSize int    `toml:"max-message-size"`
}

// VMConfig configures machines started by the services.
type VMConfig struct {
	// StepLimit bounds every run (0 means unlimited).
	StepLimit uint64 `toml:"step-limit"`
}

// Default returns the default configuration, with data kept under dataDir.
func Default(dataDir string) Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Path:      filepath.Join(dataDir, "images.db"),
			CacheSize: 128,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "runs"),
		},
		RPC: RPCConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:8970",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxRequestSize: 8 * 1024 * 1024,
			MaxSessions:    256,
		},
		GRPC: GRPCConfig{
			Enabled:        false,
			Addr:           "127.0.0.1:8971",
			MaxMessageSize: 16 * 1024 * 1024,
		},
		VM: VMConfig{
			StepLimit: 100_000_000,
		},
	}
}

// Load reads a configuration file on top of Default("./data").
func Load(path string) (*Config, error) {
	cfg := Default("./data")
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w in %s: %s", ErrUnknownKey, path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrConfigInvalid, c.Log.Level)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store path is required", ErrConfigInvalid)
	}
	if c.Store.CacheSize <= 0 {
		return fmt.Errorf("%w: store cache-size must be positive", ErrConfigInvalid)
	}
	if c.Cache.Enabled && !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("%w: cache path is required unless in-memory", ErrConfigInvalid)
	}
	if c.RPC.Enabled {
		if c.RPC.Addr == "" {
			return fmt.Errorf("%w: rpc addr is required", ErrConfigInvalid)
		}
		if c.RPC.MaxRequestSize <= 0 {
			return fmt.Errorf("%w: rpc max-request-size must be positive", ErrConfigInvalid)
		}
		if c.RPC.MaxSessions < 0 {
			return fmt.Errorf("%w: rpc max-sessions must not be negative", ErrConfigInvalid)
		}
	}
	if c.GRPC.Enabled {
		if c.GRPC.Addr == "" {
			return fmt.Errorf("%w: grpc addr is required", ErrConfigInvalid)
		}
		if c.GRPC.MaxMessageSize <= 0 {
			return fmt.Errorf("%w: grpc max-message-size must be positive", ErrConfigInvalid)
		}
	}
	return nil
}

// Write encodes the configuration as TOML.
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
