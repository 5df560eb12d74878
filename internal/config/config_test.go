package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p2pdrop.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxEnvelopeSize != DefaultMaxEnvelopeSize {
		t.Errorf("MaxEnvelopeSize = %d", cfg.MaxEnvelopeSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
base_url: https://drop.example/join
relay_url: wss://relay.example/ws
max_envelope_size: 1024
stats_interval: 5s
relay:
  redis_addr: localhost:6379
  presence_ttl: 1m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.BaseURL != "https://drop.example/join" || cfg.RelayURL != "wss://relay.example/ws" {
		t.Errorf("urls = %q, %q", cfg.BaseURL, cfg.RelayURL)
	}
	if cfg.MaxEnvelopeSize != 1024 || cfg.StatsInterval != 5*time.Second {
		t.Errorf("size = %d, interval = %s", cfg.MaxEnvelopeSize, cfg.StatsInterval)
	}
	if cfg.Relay.RedisAddr != "localhost:6379" || cfg.Relay.PresenceTTL != time.Minute {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	// Unset keys keep their defaults.
	if len(cfg.ICEServers) != 1 || cfg.Relay.Addr != ":8080" {
		t.Errorf("defaults lost: ice %v, addr %q", cfg.ICEServers, cfg.Relay.Addr)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "base_url: [", "parse config"},
		{"negative size", "max_envelope_size: -1", "max_envelope_size"},
		{"bad relay scheme", "relay_url: http://relay.example/ws", "scheme must be ws or wss"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
