package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/todo-1m/todosync/internal/app/todos"
	"github.com/todo-1m/todosync/internal/platform/config"
	"github.com/todo-1m/todosync/internal/platform/dbpool"
	"github.com/todo-1m/todosync/internal/platform/env"
	"github.com/todo-1m/todosync/internal/platform/logging"
	"github.com/todo-1m/todosync/internal/platform/metrics"
	"github.com/todo-1m/todosync/internal/platform/natsutil"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Resolve(env.String("TODOSYNC_CONFIG", ""))
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format, "todo-api")

	store, closeStore, err := openStore(runCtx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("open store", "driver", cfg.Store.Driver, "err", err)
	}
	defer closeStore()

	var nc *natsutil.Client
	var publish todos.PublishFunc
	if cfg.NATS.URL != "" {
		nc, err = natsutil.ConnectJetStreamWithRetry(cfg.NATS.URL, "todo-api", cfg.NATS.ConnectTimeoutDuration())
		if err != nil {
			logger.Warn("change notifications disabled", "err", err)
		} else {
			defer nc.Close()
			publish = nc.Publish
		}
	}

	reg := metrics.NewRegistry()
	metrics.RegisterRuntime(reg)

	service := todos.NewService(store, publish)
	service.Logger = logger
	service.Metrics = todos.NewMetrics(reg)
	handler := todos.NewHandler(service, logger, cfg.HTTP.AllowedOrigin)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), store, cfg.NATS.URL != "", nc); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("todo-api listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver, "notifications", publish != nil)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Fatal("http server failed", "err", err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeoutDuration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *log.Logger) (todos.Store, func(), error) {
	switch cfg.Driver {
	case config.StoreDriverPostgres:
		pool, err := dbpool.New(ctx, cfg.DatabaseURL, dbpool.OptionsFromEnv())
		if err != nil {
			return nil, nil, err
		}
		store := todos.NewPostgresStore(pool)
		if err := waitForSchema(ctx, store, logger, 30*time.Second); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case config.StoreDriverSQLite:
		store, err := todos.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close sqlite", "err", err)
			}
		}, nil
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; todos are lost on restart")
		return todos.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func waitForSchema(ctx context.Context, store *todos.PostgresStore, logger *log.Logger, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = store.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		logger.Warn("waiting for postgres schema readiness", "err", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return lastErr
}

func checkReadiness(ctx context.Context, store todos.Store, wantNATS bool, nc *natsutil.Client) error {
	if wantNATS && !nc.Connected() {
		return errors.New("nats is not connected")
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}
