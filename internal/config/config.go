// Package config handles walletd configuration loading and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/sat20-labs/walletd/pkg/protocol"
)

// Config is the top-level walletd configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Engine    EngineConfig    `json:"engine"`
	Storage   StorageConfig   `json:"storage"`
	Authz     AuthzConfig     `json:"authz"`
	Approval  ApprovalConfig  `json:"approval"`
	KeepAlive KeepAliveConfig `json:"keep_alive"`
	LogLevel  string          `json:"log_level,omitempty"`
}

// ServerConfig defines the background HTTP/WebSocket surface.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	JWTSecret      string   `json:"jwt_secret"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	RequestTimeout Duration `json:"request_timeout,omitempty"`
}

// EngineConfig defines how the backing wallet engine is launched.
type EngineConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Network string   `json:"network,omitempty"` // "livenet" or "testnet"
	Env     string   `json:"env,omitempty"`     // engine environment profile
}

// StorageConfig selects the authorized-origin / wallet store driver.
type StorageConfig struct {
	Driver string `json:"driver,omitempty"` // "sqlite" (default), "postgres", "redis"
	DSN    string `json:"dsn,omitempty"`
}

// AuthzConfig defines the origin-authorization gate.
type AuthzConfig struct {
	CacheTTL Duration `json:"cache_ttl,omitempty"`
	// Actions requiring a pre-authorized origin; empty means the
	// reference default set.
	Actions []protocol.Action `json:"actions,omitempty"`
}

// ApprovalConfig defines the interactive-approval gate.
type ApprovalConfig struct {
	// Actions requiring an approval popup; empty means the reference
	// default set.
	Actions []protocol.Action `json:"actions,omitempty"`
	Route   string            `json:"route,omitempty"` // popup route, default "/wallet/approve"
}

// KeepAliveConfig tunes the keep-alive reconnection state machine.
type KeepAliveConfig struct {
	HeartbeatInterval Duration `json:"heartbeat_interval,omitempty"`
	InitialDelay      Duration `json:"initial_delay,omitempty"`
	MaxDelay          Duration `json:"max_delay,omitempty"`
	MaxAttempts       int      `json:"max_attempts,omitempty"`
}

// Duration wraps time.Duration for JSON: strings parse with
// time.ParseDuration, bare numbers are seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads a config file. Files may carry comments and trailing commas;
// they are standardized with hujson before decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("standardize config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if c.Engine.Command == "" {
		return fmt.Errorf("engine.command is required")
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields with the reference defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.RequestTimeout.Duration == 0 {
		c.Server.RequestTimeout.Duration = 30 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = "walletd.db"
	}
	if c.Authz.CacheTTL.Duration == 0 {
		c.Authz.CacheTTL.Duration = 5 * time.Minute
	}
	if c.Approval.Route == "" {
		c.Approval.Route = "/wallet/approve"
	}
	if c.KeepAlive.HeartbeatInterval.Duration == 0 {
		c.KeepAlive.HeartbeatInterval.Duration = 5 * time.Second
	}
	if c.KeepAlive.InitialDelay.Duration == 0 {
		c.KeepAlive.InitialDelay.Duration = time.Second
	}
	if c.KeepAlive.MaxDelay.Duration == 0 {
		c.KeepAlive.MaxDelay.Duration = 30 * time.Second
	}
	if c.KeepAlive.MaxAttempts == 0 {
		c.KeepAlive.MaxAttempts = 5
	}
	if c.Engine.Network == "" {
		c.Engine.Network = "testnet"
	}
}
