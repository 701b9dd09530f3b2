package config

import (
	"fmt"
)

// AdjustmentLogConfig defines settings for adjustment log storage.
type AdjustmentLogConfig struct {
	// Backend selects the log store type: "memory", "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the log store. Unused for memory.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *AdjustmentLogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend != "memory" {
		c.Path = "adjustments.log"
	}
}

// Validate checks mandatory fields.
func (c AdjustmentLogConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "jsonl", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("adjustment_log: path is required")
		}
		return nil
	default:
		return fmt.Errorf("adjustment_log: unknown backend %s", c.Backend)
	}
}

// SentryConfig enables error reporting when a DSN is set.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
}

// CacheConfig selects the priority score cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string `json:"backend"`
	// Redis holds connection settings for the redis backend.
	Redis RedisConfig `json:"redis"`
}

// RedisConfig mirrors infra/cache.Config for unmarshalling.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// SetDefaults applies sane defaults.
func (c *CacheConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks mandatory fields.
func (c CacheConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("cache: redis addr is required")
		}
		return nil
	default:
		return fmt.Errorf("cache: unknown backend %s", c.Backend)
	}
}
