package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Transport.SelfID = "alice"
	cfg.Transport.SendTimeout = 5 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Transport.SelfID != "alice" || loaded.Transport.SendTimeout != 5*time.Second {
		t.Errorf("Transport = %+v", loaded.Transport)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Transport.Kind != TransportRelay {
		t.Errorf("default kind = %q, want relay", cfg.Transport.Kind)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[transport]
self_id = "bob"
send_timeout = "3s"

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.SendTimeout != 3*time.Second {
		t.Errorf("SendTimeout = %v, want 3s", cfg.Transport.SendTimeout)
	}
	if cfg.Transport.ReconnectMax != 30*time.Second {
		t.Errorf("ReconnectMax = %v, want default 30s", cfg.Transport.ReconnectMax)
	}
	if cfg.Transport.RelayURL == "" {
		t.Error("RelayURL default lost")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"relay ok", func(c *Config) { c.Transport.SelfID = "alice" }, ""},
		{"relay without self", func(c *Config) {}, "self_id"},
		{"relay without url", func(c *Config) { c.Transport.SelfID = "a"; c.Transport.RelayURL = "" }, "relay_url"},
		{"whatsapp ok", func(c *Config) { c.Transport.Kind = TransportWhatsApp }, ""},
		{"unknown kind", func(c *Config) { c.Transport.Kind = "smoke-signals" }, "unknown transport.kind"},
		{"bad timeout", func(c *Config) { c.Transport.Kind = TransportWhatsApp; c.Transport.SendTimeout = 0 }, "send_timeout"},
		{"bad level", func(c *Config) { c.Transport.Kind = TransportWhatsApp; c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
