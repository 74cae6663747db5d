package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// Transport kinds.
const (
	TransportRelay    = "relay"
	TransportWhatsApp = "whatsapp"
)

// Config represents the global ~/.chatline/config.toml.
type Config struct {
	DefaultSession string    `toml:"default_session"`
	Transport      Transport `toml:"transport"`
	Log            Log       `toml:"log"`
	Relay          Relay     `toml:"relay"`
}

// Transport selects and tunes the chat network connection.
type Transport struct {
	Kind         string        `toml:"kind"`
	RelayURL     string        `toml:"relay_url"`
	SelfID       string        `toml:"self_id"`
	SendTimeout  time.Duration `toml:"send_timeout"`
	ReconnectMin time.Duration `toml:"reconnect_min"`
	ReconnectMax time.Duration `toml:"reconnect_max"`
	PingInterval time.Duration `toml:"ping_interval"`
	HistoryLimit int           `toml:"history_limit"`
}

// Log configures the daemon logger.
type Log struct {
	Level string `toml:"level"`
}

// Relay configures chatrelay.
type Relay struct {
	Listen string `toml:"listen"`
	DBPath string `toml:"db_path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Transport: Transport{
			Kind:         TransportRelay,
			RelayURL:     "ws://127.0.0.1:8765/ws",
			SendTimeout:  15 * time.Second,
			ReconnectMin: time.Second,
			ReconnectMax: 30 * time.Second,
			PingInterval: 30 * time.Second,
			HistoryLimit: 200,
		},
		Log:   Log{Level: "info"},
		Relay: Relay{Listen: "127.0.0.1:8765"},
	}
}

// Load reads config from the given path on top of the defaults. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the settings the daemon depends on.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportRelay:
		if c.Transport.RelayURL == "" {
			return errors.New("transport.relay_url is required for the relay transport")
		}
		if c.Transport.SelfID == "" {
			return errors.New("transport.self_id is required for the relay transport")
		}
	case TransportWhatsApp:
	default:
		return fmt.Errorf("unknown transport.kind %q (want %q or %q)", c.Transport.Kind, TransportRelay, TransportWhatsApp)
	}
	if c.Transport.SendTimeout <= 0 {
		return errors.New("transport.send_timeout must be positive")
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	return nil
}

// ZapLevel parses the configured log level. Empty means info.
func (l Log) ZapLevel() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
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
