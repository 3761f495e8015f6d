// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// RelayConfig configures the IRC side of the bridge.
type RelayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
	// Nickname is the control session's nickname.
	Nickname string `yaml:"nickname"`
	// NickSuffix is appended to every sanitized participant nickname so
	// mirrored identities are recognizable (and suppressible) on both sides.
	NickSuffix string `yaml:"nick_suffix"`
	// NickServPassword authenticates every session with the relay's
	// identity-verification service.
	NickServPassword string `yaml:"nickserv_password"`
	// NickRetryDelay is how long a participant session waits before trying
	// to reclaim its intended nickname after a collision or rename.
	NickRetryDelay time.Duration `yaml:"nick_retry_delay"`
}

// HubConfig configures the Slack side of the bridge.
type HubConfig struct {
	Token string `yaml:"token"`
	// SelfUserID is the hub user id the bridge itself posts as.
	SelfUserID string `yaml:"self_user_id"`
	// PollInterval must be no tighter than the hub's per-connection rate
	// limit (one request per second for the RTM feed).
	PollInterval time.Duration `yaml:"poll_interval"`
	// DrainInterval controls how often queued events are dispatched; it
	// should be shorter than PollInterval.
	DrainInterval time.Duration `yaml:"drain_interval"`
	// DMPrefix identifies direct-message channel ids.
	DMPrefix string `yaml:"dm_prefix"`
}

// FileHostConfig configures the external file host attachments are
// republished to.
type FileHostConfig struct {
	URL string `yaml:"url"`
}

// AvatarConfig configures gravatar-based avatar derivation.
type AvatarConfig struct {
	// Domain is the mail domain assumed for <nick>@<domain> avatar lookups.
	Domain string `yaml:"domain"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root bridge configuration.
type Config struct {
	Relay    RelayConfig    `yaml:"relay"`
	Hub      HubConfig      `yaml:"hub"`
	FileHost FileHostConfig `yaml:"file_host"`
	Avatar   AvatarConfig   `yaml:"avatar"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess applies defaults and rejects unusable configurations.
func (c *Config) PostProcess() error {
	if c.Relay.Host == "" {
		return fmt.Errorf("relay.host is required")
	}
	if c.Hub.Token == "" {
		return fmt.Errorf("hub.token is required")
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = 6697
		c.Relay.TLS = true
	}
	if c.Relay.Nickname == "" {
		c.Relay.Nickname = "slack-bridge"
	}
	if c.Relay.NickSuffix == "" {
		c.Relay.NickSuffix = "-slack"
	}
	if c.Relay.NickRetryDelay == 0 {
		c.Relay.NickRetryDelay = 10 * time.Second
	}
	if c.Hub.PollInterval < time.Second {
		c.Hub.PollInterval = time.Second
	}
	if c.Hub.DrainInterval == 0 {
		c.Hub.DrainInterval = 500 * time.Millisecond
	}
	if c.Hub.DMPrefix == "" {
		c.Hub.DMPrefix = "D"
	}
	if c.FileHost.URL == "" {
		c.FileHost.URL = "https://fluffy.cc"
	}
	if c.Avatar.Domain == "" {
		c.Avatar.Domain = "example.com"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}
