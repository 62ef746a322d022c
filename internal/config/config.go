// Package config provides configuration loading for switchd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults. It covers the HTTP server, logging,
// the data directory, and the capacity policy of each resource cache.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete switchd configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	Data    DataConfig    `koanf:"data"`
	Caches  CachesConfig  `koanf:"caches"`
	Adapter AdapterConfig `koanf:"adapter"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// DataConfig holds on-disk layout configuration.
type DataConfig struct {
	// Dir is the base directory for the registry, adapter artifacts,
	// vector indexes, and conversation contexts.
	// Default: ~/.config/switchd
	Dir string `koanf:"dir"`

	// CompressVectorStore enables gzip compression for persisted
	// vector index data.
	CompressVectorStore bool `koanf:"compress_vectorstore"`
}

// AdapterConfig holds adapter loading configuration.
type AdapterConfig struct {
	// BaseModel is the shared base model projects fall back to when
	// they have no trained adapter.
	BaseModel string `koanf:"base_model"`
}

// CachePolicy holds one cache's capacity policy.
type CachePolicy struct {
	MaxEntries  int           `koanf:"max_entries"`
	MaxBytes    int64         `koanf:"max_bytes"`
	LoadTimeout time.Duration `koanf:"load_timeout"`
}

// CachesConfig holds the per-resource-kind capacity policies.
// Adapters are small and numerous, vector stores large and few,
// contexts cheap and many.
type CachesConfig struct {
	Adapters     CachePolicy `koanf:"adapters"`
	VectorStores CachePolicy `koanf:"vectorstores"`
	Contexts     CachePolicy `koanf:"contexts"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Adapter.BaseModel == "" {
		cfg.Adapter.BaseModel = "base"
	}
	if cfg.Caches.Adapters.MaxEntries == 0 {
		cfg.Caches.Adapters.MaxEntries = 16
	}
	if cfg.Caches.Adapters.MaxBytes == 0 {
		cfg.Caches.Adapters.MaxBytes = 256 << 20 // 256 MiB
	}
	if cfg.Caches.Adapters.LoadTimeout == 0 {
		cfg.Caches.Adapters.LoadTimeout = 10 * time.Second
	}
	if cfg.Caches.VectorStores.MaxEntries == 0 {
		cfg.Caches.VectorStores.MaxEntries = 4
	}
	if cfg.Caches.VectorStores.MaxBytes == 0 {
		cfg.Caches.VectorStores.MaxBytes = 2 << 30 // 2 GiB
	}
	if cfg.Caches.VectorStores.LoadTimeout == 0 {
		cfg.Caches.VectorStores.LoadTimeout = 30 * time.Second
	}
	if cfg.Caches.Contexts.MaxEntries == 0 {
		cfg.Caches.Contexts.MaxEntries = 32
	}
	if cfg.Caches.Contexts.MaxBytes == 0 {
		cfg.Caches.Contexts.MaxBytes = 64 << 20 // 64 MiB
	}
	if cfg.Caches.Contexts.LoadTimeout == 0 {
		cfg.Caches.Contexts.LoadTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or console)", c.Logging.Format)
	}
	for name, policy := range map[string]CachePolicy{
		"adapters":     c.Caches.Adapters,
		"vectorstores": c.Caches.VectorStores,
		"contexts":     c.Caches.Contexts,
	} {
		if policy.MaxEntries <= 0 {
			return fmt.Errorf("caches.%s.max_entries must be positive", name)
		}
		if policy.MaxBytes <= 0 {
			return fmt.Errorf("caches.%s.max_bytes must be positive", name)
		}
		if policy.LoadTimeout <= 0 {
			return fmt.Errorf("caches.%s.load_timeout must be positive", name)
		}
	}
	return nil
}
