// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Role represents the user's chosen role.
type Role string

const (
	RoleHost  Role = "host"  // publish a locator and wait for a peer
	RoleJoin  Role = "join"  // dial the identity carried by a locator
	RoleScan  Role = "scan"  // read locators from a code reader, then join
	RoleRelay Role = "relay" // run the signaling relay
)

// DefaultMaxEnvelopeSize is the largest encoded envelope handed to the data
// channel. Files are sent whole, so this also bounds the file size
// (roughly three quarters of it after base64).
const DefaultMaxEnvelopeSize = 16 << 20

// Config stores every parameter of a run, gathered from defaults, an optional
// YAML file and command-line flags, in that order of precedence.
type Config struct {
	Role Role `yaml:"-"`

	BaseURL         string        `yaml:"base_url"`          // locator base URL
	RelayURL        string        `yaml:"relay_url"`         // signaling WebSocket URL
	ICEServers      []string      `yaml:"ice_servers"`       // STUN/TURN URLs
	MaxEnvelopeSize int           `yaml:"max_envelope_size"` // bytes
	DownloadDir     string        `yaml:"download_dir"`      // default /save target
	StatsInterval   time.Duration `yaml:"stats_interval"`    // 0 disables the reporter
	Debug           bool          `yaml:"debug"`

	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig configures the signaling relay.
type RelayConfig struct {
	Addr        string        `yaml:"addr"`       // listen address
	RedisAddr   string        `yaml:"redis_addr"` // empty: in-memory presence
	RedisDB     int           `yaml:"redis_db"`
	PresenceTTL time.Duration `yaml:"presence_ttl"` // Redis key lifetime, refreshed while connected
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:         "https://p2pdrop.app/",
		RelayURL:        "ws://localhost:8080/ws",
		ICEServers:      []string{"stun:stun.l.google.com:19302"},
		MaxEnvelopeSize: DefaultMaxEnvelopeSize,
		DownloadDir:     ".",
		StatsInterval:   10 * time.Second,
		Relay: RelayConfig{
			Addr:        ":8080",
			PresenceTTL: 2 * time.Minute,
		},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.MaxEnvelopeSize < 0 {
		return errors.New("max_envelope_size must not be negative")
	}
	if c.StatsInterval < 0 {
		return errors.New("stats_interval must not be negative")
	}
	if c.RelayURL != "" {
		u, err := url.Parse(c.RelayURL)
		if err != nil {
			return fmt.Errorf("relay_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("relay_url: scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	if c.Relay.PresenceTTL <= 0 && c.Relay.RedisAddr != "" {
		return errors.New("relay.presence_ttl must be positive when redis_addr is set")
	}
	return nil
}
