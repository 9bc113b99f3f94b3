package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// Store
	Backend        string `toml:"backend"`
	DefaultVersion string `toml:"default_version"`
	DefaultTTLMs   int64  `toml:"default_ttl_ms"`
	LabelPolicy    string `toml:"label_policy"`
	DeepHash       bool   `toml:"deep_hash"`
	Digest         string `toml:"digest"`
	RecordFormat   string `toml:"record_format"`

	// Expiry
	SweepIntervalMs int `toml:"sweep_interval_ms"`

	// Limits
	MaxKeyBytes   int   `toml:"max_key_bytes"`
	MaxValueBytes int   `toml:"max_value_bytes"`
	QuotaBytes    int64 `toml:"quota_bytes"`

	// Persistence
	DataDir     string `toml:"data_dir"`
	WALMaxBytes int64  `toml:"wal_max_bytes"`
	SyncPolicy  string `toml:"sync_policy"`

	// Redis
	RedisAddr      string `toml:"redis_addr"`
	RedisDB        int    `toml:"redis_db"`
	RedisNamespace string `toml:"redis_namespace"`
	RedisTimeoutMs int    `toml:"redis_timeout_ms"`

	// Object store
	ObjectEndpoint  string `toml:"object_endpoint"`
	ObjectAccessKey string `toml:"object_access_key"`
	ObjectSecretKey string `toml:"object_secret_key"`
	ObjectBucket    string `toml:"object_bucket"`
	ObjectPrefix    string `toml:"object_prefix"`
	ObjectSecure    bool   `toml:"object_secure"`

	// Logging
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend:         "file",
		DefaultVersion:  "v1",
		DefaultTTLMs:    0,
		LabelPolicy:     "hash",
		DeepHash:        false,
		Digest:          "md5",
		RecordFormat:    "json",
		SweepIntervalMs: 0,
		MaxKeyBytes:     256,
		MaxValueBytes:   16 * 1024 * 1024, // 16 MiB
		QuotaBytes:      0,
		DataDir:         "./data",
		WALMaxBytes:     256 * 1024 * 1024, // 256 MiB
		SyncPolicy:      "batch",
		RedisAddr:       "localhost:6379",
		RedisDB:         0,
		RedisNamespace:  "verstash",
		RedisTimeoutMs:  1000,
		ObjectEndpoint:  "localhost:9000",
		ObjectBucket:    "verstash",
		ObjectPrefix:    "records/",
		LogLevel:        "INFO",
		LogFile:         "",
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Use defaults if config file doesn't exist
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the enumerated settings and limits.
func (c *Config) Validate() error {
	if err := oneOf("backend", c.Backend, "memory", "file", "redis", "object"); err != nil {
		return err
	}
	if err := oneOf("label_policy", c.LabelPolicy, "hash", "reuse"); err != nil {
		return err
	}
	if err := oneOf("digest", c.Digest, "md5", "murmur3", "xxhash"); err != nil {
		return err
	}
	if err := oneOf("record_format", c.RecordFormat, "json", "msgpack"); err != nil {
		return err
	}
	if err := oneOf("sync_policy", c.SyncPolicy, "always", "batch", "os"); err != nil {
		return err
	}
	if c.DefaultVersion == "" {
		return fmt.Errorf("default_version must not be empty")
	}
	if c.DefaultTTLMs < 0 {
		return fmt.Errorf("default_ttl_ms must not be negative")
	}
	if c.SweepIntervalMs < 0 {
		return fmt.Errorf("sweep_interval_ms must not be negative")
	}
	if c.MaxKeyBytes < 0 || c.MaxValueBytes < 0 || c.QuotaBytes < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", name, value, strings.Join(allowed, ", "))
}

func (c *Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMs) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

func (c *Config) RedisTimeout() time.Duration {
	return time.Duration(c.RedisTimeoutMs) * time.Millisecond
}
