package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/todo-1m/todosync/internal/platform/env"
)

type StoreDriver string

const (
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverMemory   StoreDriver = "memory"
)

type Config struct {
	HTTP  HTTPConfig  `toml:"http"`
	Store StoreConfig `toml:"store"`
	NATS  NATSConfig  `toml:"nats"`
	Log   LogConfig   `toml:"log"`
}

type HTTPConfig struct {
	Addr            string `toml:"addr"`
	AllowedOrigin   string `toml:"allowed_origin"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver      StoreDriver `toml:"driver"`
	DatabaseURL string      `toml:"database_url"`
	SQLitePath  string      `toml:"sqlite_path"`
}

// NATSConfig enables change notifications when URL is set.
type NATSConfig struct {
	URL            string `toml:"url"`
	ConnectTimeout string `toml:"connect_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | logfmt | json
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            env.DefaultHTTPAddr,
			AllowedOrigin:   "*",
			ShutdownTimeout: "10s",
		},
		Store: StoreConfig{
			Driver:      StoreDriverPostgres,
			DatabaseURL: env.DefaultDatabaseURL,
			SQLitePath:  env.DefaultSQLitePath,
		},
		NATS: NATSConfig{
			ConnectTimeout: "20s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the TOML file at path over defaults. A missing or empty file
// leaves defaults untouched.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables, which win over the file.
func ApplyEnv(cfg Config) Config {
	cfg.HTTP.Addr = env.String("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.AllowedOrigin = env.String("ALLOWED_ORIGIN", cfg.HTTP.AllowedOrigin)
	cfg.HTTP.ShutdownTimeout = env.String("SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)
	cfg.Store.Driver = StoreDriver(env.String("STORE_DRIVER", string(cfg.Store.Driver)))
	cfg.Store.DatabaseURL = env.String("DATABASE_URL", cfg.Store.DatabaseURL)
	cfg.Store.SQLitePath = env.String("SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.NATS.URL = env.String("NATS_URL", cfg.NATS.URL)
	cfg.NATS.ConnectTimeout = env.String("NATS_CONNECT_TIMEOUT", cfg.NATS.ConnectTimeout)
	cfg.Log.Level = env.String("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = env.String("LOG_FORMAT", cfg.Log.Format)
	return cfg
}

// Resolve loads path, applies the environment and validates the result.
func Resolve(path string) (Config, error) {
	cfg, err := Load(path, Default())
	if err != nil {
		return Config{}, err
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if _, err := parsePositiveDuration(c.HTTP.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid http.shutdown_timeout: %w", err)
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return errors.New("store.database_url is required for the postgres driver")
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("invalid store.driver: %q", c.Store.Driver)
	}
	if c.NATS.URL != "" {
		if _, err := parsePositiveDuration(c.NATS.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid nats.connect_timeout: %w", err)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "logfmt", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	return nil
}

func (c HTTPConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := parsePositiveDuration(c.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func (c NATSConfig) ConnectTimeoutDuration() time.Duration {
	d, err := parsePositiveDuration(c.ConnectTimeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", raw)
	}
	return d, nil
}
