package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends selectable via config.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

// Config holds the full server configuration.
type Config struct {
	ListenAddr string        `json:"listen_addr" yaml:"listen_addr"`
	LogLevel   string        `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Storage    StorageConfig `json:"storage" yaml:"storage"`
	Collab     CollabConfig  `json:"collab" yaml:"collab"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Backend   string `json:"backend" yaml:"backend"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
}

// CollabConfig tunes the collaboration engine.
type CollabConfig struct {
	SaveInterval      time.Duration `json:"save_interval,omitempty" yaml:"save_interval,omitempty"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval,omitempty" yaml:"heartbeat_interval,omitempty"`
	MaxMessageSize    int64         `json:"max_message_size,omitempty" yaml:"max_message_size,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddr: ":8081",
		LogLevel:   "info",
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Collab: CollabConfig{
			SaveInterval:      5 * time.Second,
			HeartbeatInterval: 25 * time.Second,
			MaxMessageSize:    1 << 20,
		},
	}
}

// Load reads a yaml file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Collab.SaveInterval <= 0 {
		return fmt.Errorf("collab.save_interval must be positive")
	}
	if c.Collab.HeartbeatInterval <= 0 {
		return fmt.Errorf("collab.heartbeat_interval must be positive")
	}
	if c.Collab.MaxMessageSize <= 0 {
		return fmt.Errorf("collab.max_message_size must be positive")
	}
	return nil
}

// Validate checks the storage section.
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case BackendMemory:
		return nil
	case BackendPebble:
		if s.Path == "" {
			return fmt.Errorf("storage.path is required for the pebble backend")
		}
		return nil
	case BackendRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", s.Backend)
	}
}
