package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/todo-1m/todosync/internal/app/changelog"
	"github.com/todo-1m/todosync/internal/app/syncclient"
	"github.com/todo-1m/todosync/internal/platform/env"
	"github.com/todo-1m/todosync/internal/platform/logging"
	"github.com/todo-1m/todosync/internal/platform/metrics"
)

type config struct {
	APIBase                   string
	Clients                   int
	StartupWait               time.Duration
	Duration                  time.Duration
	RampUp                    time.Duration
	ActionsPerClientPerSecond float64
	RequestTimeout            time.Duration
	MetricsAddr               string
	Verify                    bool
	LogLevel                  string
}

func main() {
	cfg := loadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel, "text", "load-generator")
	if cfg.Clients <= 0 {
		logger.Fatal("LOADGEN_CLIENTS must be > 0")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	reg := metrics.NewRegistry()
	r := newRunner(cfg, reg, logger)
	go runMetricsServer(cfg.MetricsAddr, reg, logger)

	if err := r.waitForHTTPStatus(ctx, cfg.APIBase+"/readyz", http.StatusOK, cfg.StartupWait); err != nil {
		logger.Fatal("todo-api not ready", "err", err)
	}

	start, err := r.latestVersion(baseCtx)
	if err != nil {
		logger.Fatal("read starting watermark", "err", err)
	}
	logger.Info("load generator starting", "clients", cfg.Clients, "duration", cfg.Duration, "rate_per_client", cfg.ActionsPerClientPerSecond, "watermark", start)

	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func(c *virtualClient) {
			defer wg.Done()
			r.runClient(ctx, c)
		}(&virtualClient{Index: i})
	}
	<-ctx.Done()
	wg.Wait()

	logger.Info("load test complete", "mutations", r.mutationsOK.Load(), "errors", r.requestsError.Load())
	if !cfg.Verify {
		return
	}

	verifyCtx, cancel := context.WithTimeout(baseCtx, time.Minute)
	defer cancel()
	entries, err := syncclient.NewClient(cfg.APIBase).FetchChanges(verifyCtx, start)
	if err != nil {
		logger.Fatal("fetch changelist", "err", err)
	}
	if err := verifyChangelist(entries, start, r.mutationsOK.Load()); err != nil {
		logger.Fatal("changelist verification failed", "err", err)
	}
	logger.Info("changelist verified", "entries", len(entries), "first", start+1, "last", start+int64(len(entries)))
}

func loadConfig() config {
	return config{
		APIBase:                   strings.TrimRight(env.String("LOADGEN_API_BASE", env.DefaultServerURL), "/"),
		Clients:                   env.Int("LOADGEN_CLIENTS", 50),
		StartupWait:               env.Duration("LOADGEN_STARTUP_WAIT", 2*time.Minute),
		Duration:                  env.Duration("LOADGEN_DURATION", time.Minute),
		RampUp:                    env.Duration("LOADGEN_RAMP_UP", 5*time.Second),
		ActionsPerClientPerSecond: env.Float("LOADGEN_ACTIONS_PER_CLIENT_PER_SECOND", 2),
		RequestTimeout:            env.Duration("LOADGEN_REQUEST_TIMEOUT", 10*time.Second),
		MetricsAddr:               env.String("LOADGEN_METRICS_ADDR", ":9099"),
		Verify:                    env.String("LOADGEN_VERIFY", "true") != "false",
		LogLevel:                  env.String("LOG_LEVEL", "info"),
	}
}

// verifyChangelist checks that a quiesced server recorded exactly one entry
// per successful mutation, numbered consecutively after since.
func verifyChangelist(entries []changelog.Entry, since int64, mutations int64) error {
	if int64(len(entries)) != mutations {
		return fmt.Errorf("expected %d entries after version %d, got %d", mutations, since, len(entries))
	}
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		want := since + 1 + int64(i)
		if entry.Version != want {
			return fmt.Errorf("entry %d has version %d, want %d", i, entry.Version, want)
		}
		if _, dup := seen[entry.ID]; dup {
			return fmt.Errorf("duplicate entry id %s", entry.ID)
		}
		seen[entry.ID] = struct{}{}
	}
	return nil
}

func runMetricsServer(addr string, reg *metrics.Registry, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server failed", "err", err)
	}
}
