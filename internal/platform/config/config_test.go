package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "todosync.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), Default())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.Driver != StoreDriverPostgres || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[http]
addr = ":9090"
shutdown_timeout = "3s"

[store]
driver = "sqlite"
sqlite_path = "/tmp/todos.db"

[log]
level = "debug"
`)
	cfg, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Store.Driver != StoreDriverSQLite || cfg.Store.SQLitePath != "/tmp/todos.db" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Log.Format != "text" {
		t.Fatalf("unset keys must keep defaults, got %q", cfg.Log.Format)
	}
	if cfg.HTTP.ShutdownTimeoutDuration() != 3*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", cfg.HTTP.ShutdownTimeoutDuration())
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "[http\naddr=")
	if _, err := Load(path, Default()); err == nil || !strings.Contains(err.Error(), "decode toml") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestResolve_EnvWinsOverFile(t *testing.T) {
	path := writeConfig(t, "[store]\ndriver = \"sqlite\"\n")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.Store.Driver != StoreDriverMemory || cfg.HTTP.Addr != ":7070" {
		t.Fatalf("env did not win: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "invalid store.driver"},
		{"missing sqlite path", func(c *Config) { c.Store.Driver = StoreDriverSQLite; c.Store.SQLitePath = "" }, "sqlite_path"},
		{"bad shutdown timeout", func(c *Config) { c.HTTP.ShutdownTimeout = "soon" }, "shutdown_timeout"},
		{"bad nats timeout", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.ConnectTimeout = "0s" }, "connect_timeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
