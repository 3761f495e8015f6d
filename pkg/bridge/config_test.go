// Copyright 2024-2026 Aiku AI

package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
relay:
    host: irc.example.org
    nickname: bridge
hub:
    token: xoxb-123
    self_user_id: U0BRIDGE
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Relay.Host != "irc.example.org" || cfg.Relay.Nickname != "bridge" {
		t.Errorf("relay config: %+v", cfg.Relay)
	}
	if cfg.Hub.SelfUserID != "U0BRIDGE" {
		t.Errorf("hub config: %+v", cfg.Hub)
	}
}

func TestPostProcessDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Relay.Host = "irc.example.org"
	cfg.Hub.Token = "xoxb-123"
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}

	if cfg.Relay.Port != 6697 || !cfg.Relay.TLS {
		t.Errorf("default relay endpoint: port %d, tls %v", cfg.Relay.Port, cfg.Relay.TLS)
	}
	if cfg.Relay.NickSuffix != "-slack" {
		t.Errorf("default suffix: %q", cfg.Relay.NickSuffix)
	}
	if cfg.Relay.NickRetryDelay != 10*time.Second {
		t.Errorf("default nick retry delay: %v", cfg.Relay.NickRetryDelay)
	}
	if cfg.Hub.PollInterval != time.Second {
		t.Errorf("default poll interval: %v", cfg.Hub.PollInterval)
	}
	if cfg.Hub.DrainInterval != 500*time.Millisecond {
		t.Errorf("default drain interval: %v", cfg.Hub.DrainInterval)
	}
	if cfg.Hub.DMPrefix != "D" {
		t.Errorf("default DM prefix: %q", cfg.Hub.DMPrefix)
	}
	if cfg.FileHost.URL == "" || cfg.Avatar.Domain == "" || cfg.Logging.Level != "info" {
		t.Errorf("defaults missing: %+v", cfg)
	}
}

func TestPostProcessFloorsPollInterval(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Relay.Host = "irc.example.org"
	cfg.Hub.Token = "xoxb-123"
	cfg.Hub.PollInterval = 100 * time.Millisecond
	if err := cfg.PostProcess(); err != nil {
		t.Fatal(err)
	}
	if cfg.Hub.PollInterval < time.Second {
		t.Errorf("poll interval must respect the feed rate limit, got %v", cfg.Hub.PollInterval)
	}
}

func TestPostProcessRequiredFields(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Hub.Token = "xoxb-123"
	if err := cfg.PostProcess(); err == nil {
		t.Error("missing relay.host should be rejected")
	}

	cfg = &Config{}
	cfg.Relay.Host = "irc.example.org"
	if err := cfg.PostProcess(); err == nil {
		t.Error("missing hub.token should be rejected")
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	if cfg.Relay.Host == "" {
		t.Error("example config should set relay.host")
	}
	if cfg.Hub.Token == "" {
		t.Error("example config should set hub.token")
	}
}
