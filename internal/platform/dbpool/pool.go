package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/todo-1m/todosync/internal/platform/env"
)

// Options sizes the pool. Every mutation holds one connection for the length
// of its transaction, so MaxConns bounds concurrent writers.
type Options struct {
	MinConns          int
	MaxConns          int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func DefaultOptions() Options {
	return Options{
		MinConns:          2,
		MaxConns:          20,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// OptionsFromEnv reads DB_* overrides on top of DefaultOptions and clamps
// nonsensical combinations.
func OptionsFromEnv() Options {
	def := DefaultOptions()
	opts := Options{
		MinConns:          env.Int("DB_MIN_CONNS", def.MinConns),
		MaxConns:          env.Int("DB_MAX_CONNS", def.MaxConns),
		MaxConnLifetime:   env.Duration("DB_MAX_CONN_LIFETIME", def.MaxConnLifetime),
		MaxConnIdleTime:   env.Duration("DB_MAX_CONN_IDLE_TIME", def.MaxConnIdleTime),
		HealthCheckPeriod: env.Duration("DB_HEALTH_CHECK_PERIOD", def.HealthCheckPeriod),
	}
	if opts.MinConns < 0 {
		opts.MinConns = def.MinConns
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = def.MaxConns
	}
	if opts.MinConns > opts.MaxConns {
		opts.MinConns = opts.MaxConns
	}
	return opts
}

func New(ctx context.Context, databaseURL string, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MinConns = int32(opts.MinConns)
	cfg.MaxConns = int32(opts.MaxConns)
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	return pgxpool.NewWithConfig(ctx, cfg)
}
