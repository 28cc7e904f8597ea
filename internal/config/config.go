package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.teamchat/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Server         Server   `toml:"server"`
	Realtime       Realtime `toml:"realtime"`
	Typing         Typing   `toml:"typing"`
	History        History  `toml:"history"`
	Metrics        Metrics  `toml:"metrics"`
}

// Server holds the chat server endpoints.
type Server struct {
	APIURL string `toml:"api_url"`
	WSURL  string `toml:"ws_url"`
}

// Realtime tunes the websocket connection manager.
type Realtime struct {
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	ReconnectBaseDelay   Duration `toml:"reconnect_base_delay"`
	HeartbeatInterval    Duration `toml:"heartbeat_interval"`
	HandshakeTimeout     Duration `toml:"handshake_timeout"`
}

// Typing tunes the typing indicator.
type Typing struct {
	StopAfter Duration `toml:"stop_after"`
}

// History controls paginated history loading.
type History struct {
	PerPage int `toml:"per_page"`
}

// Metrics configures the optional prometheus listener. Empty Addr disables it.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration that reads and writes as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Server: Server{
			APIURL: "http://localhost:8000/api",
			WSURL:  "ws://localhost:8000/ws",
		},
		Realtime: Realtime{
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   Duration{time.Second},
			HeartbeatInterval:    Duration{30 * time.Second},
			HandshakeTimeout:     Duration{10 * time.Second},
		},
		Typing:  Typing{StopAfter: Duration{3 * time.Second}},
		History: History{PerPage: 50},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is like Load but falls back to defaults when the file does
// not exist. Environment overrides are applied and the result validated.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.APIURL = getEnv("TEAMCHAT_API_URL", c.Server.APIURL)
	c.Server.WSURL = getEnv("TEAMCHAT_WS_URL", c.Server.WSURL)
	c.Metrics.Addr = getEnv("TEAMCHAT_METRICS_ADDR", c.Metrics.Addr)
}

// Validate checks the values the daemon cannot work without.
func (c *Config) Validate() error {
	if err := validateURL("server.api_url", c.Server.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("server.ws_url", c.Server.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Realtime.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("realtime.max_reconnect_attempts must be greater than 0")
	}
	if c.Realtime.ReconnectBaseDelay.Duration <= 0 {
		return fmt.Errorf("realtime.reconnect_base_delay must be greater than 0")
	}
	if c.Realtime.HeartbeatInterval.Duration < 0 {
		return fmt.Errorf("realtime.heartbeat_interval must not be negative")
	}
	if c.Typing.StopAfter.Duration <= 0 {
		return fmt.Errorf("typing.stop_after must be greater than 0")
	}
	if c.History.PerPage <= 0 {
		return fmt.Errorf("history.per_page must be greater than 0")
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want a %v URL", field, raw, schemes)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
