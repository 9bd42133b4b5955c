package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/todo-1m/todosync/internal/app/changelog"
	"github.com/todo-1m/todosync/internal/platform/metrics"
)

type todoResponse struct {
	ID string `json:"id"`
}

type virtualClient struct {
	Index int

	mu    sync.Mutex
	todos []string
}

type runner struct {
	cfg    config
	client *http.Client
	logger *log.Logger

	requests      *metrics.CounterVec
	actions       *metrics.CounterVec
	activeClients *metrics.Gauge

	mutationsOK   atomic.Int64
	requestsError atomic.Int64
	active        atomic.Int64
}

func newRunner(cfg config, reg *metrics.Registry, logger *log.Logger) *runner {
	r := &runner{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Clients * 2,
				MaxIdleConnsPerHost: cfg.Clients * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
		requests: metrics.NewCounterVec(metrics.Opts{
			Name: "todosync_loadgen_requests_total",
			Help: "HTTP requests sent by the load generator.",
		}, []string{"endpoint", "status", "outcome"}),
		actions: metrics.NewCounterVec(metrics.Opts{
			Name: "todosync_loadgen_actions_total",
			Help: "Client actions executed by the load generator.",
		}, []string{"action", "outcome"}),
		activeClients: metrics.NewGauge(metrics.Opts{
			Name: "todosync_loadgen_active_clients",
			Help: "Virtual clients currently sending actions.",
		}),
	}
	reg.MustRegister(r.requests, r.actions, r.activeClients)
	return r
}

func (r *runner) waitForHTTPStatus(ctx context.Context, requestURL string, expectedStatus int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == expectedStatus {
				return nil
			}
			err = fmt.Errorf("status=%d", resp.StatusCode)
		}
		lastErr = err
		time.Sleep(time.Second)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

// latestVersion returns the newest recorded version, or NoWatermark for an
// empty changelog.
func (r *runner) latestVersion(ctx context.Context) (int64, error) {
	var entries []changelog.Entry
	if _, err := r.requestJSON(ctx, "changelist", http.MethodGet, r.cfg.APIBase+"/todos/changelist", nil, &entries, http.StatusOK); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return changelog.NoWatermark, nil
	}
	return entries[len(entries)-1].Version, nil
}

func (r *runner) runClient(ctx context.Context, c *virtualClient) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration(float64(r.cfg.RampUp) / float64(max(r.cfg.Clients, 1)) * float64(c.Index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	r.activeClients.Set(float64(r.active.Add(1)))
	defer func() { r.activeClients.Set(float64(r.active.Add(-1))) }()

	interval := time.Second
	if r.cfg.ActionsPerClientPerSecond > 0 {
		interval = max(time.Duration(float64(time.Second)/r.cfg.ActionsPerClientPerSecond), 10*time.Millisecond)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(c.Index*7)))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// In-flight requests finish after shutdown so every committed
			// mutation is counted.
			r.runAction(context.WithoutCancel(ctx), c, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, c *virtualClient, rng *rand.Rand) {
	todoID, hasTodo := c.randomTodo(rng)
	choice := rng.Float64()
	switch {
	case !hasTodo || choice < 0.5:
		r.createTodos(ctx, c, rng)
	case choice < 0.85:
		r.updateTodo(ctx, rng, todoID)
	default:
		r.deleteTodo(ctx, c, todoID)
	}
}

func (r *runner) createTodos(ctx context.Context, c *virtualClient, rng *rand.Rand) {
	n := 1 + rng.Intn(3)
	batch := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, map[string]any{
			"title": fmt.Sprintf("Load Todo %d", rng.Intn(1_000_000)),
			"tags":  []string{"load"},
		})
	}
	var created []todoResponse
	if _, err := r.requestJSON(ctx, "create", http.MethodPost, r.cfg.APIBase+"/todos", batch, &created, http.StatusCreated); err != nil {
		r.actions.WithLabelValues("create", "error").Inc()
		return
	}
	for _, todo := range created {
		c.addTodo(todo.ID)
	}
	r.mutationsOK.Add(int64(len(created)))
	r.actions.WithLabelValues("create", "success").Inc()
}

func (r *runner) updateTodo(ctx context.Context, rng *rand.Rand, todoID string) {
	if _, err := r.requestJSON(ctx, "update", http.MethodPatch, r.cfg.APIBase+"/todos/"+todoID, map[string]any{
		"title":     fmt.Sprintf("Updated Load Todo %d", rng.Intn(1_000_000)),
		"completed": rng.Intn(2) == 0,
	}, nil, http.StatusOK); err != nil {
		r.actions.WithLabelValues("update", "error").Inc()
		return
	}
	r.mutationsOK.Add(1)
	r.actions.WithLabelValues("update", "success").Inc()
}

func (r *runner) deleteTodo(ctx context.Context, c *virtualClient, todoID string) {
	if _, err := r.requestJSON(ctx, "delete", http.MethodDelete, r.cfg.APIBase+"/todos/"+todoID, nil, nil, http.StatusOK); err != nil {
		r.actions.WithLabelValues("delete", "error").Inc()
		return
	}
	c.removeTodo(todoID)
	r.mutationsOK.Add(1)
	r.actions.WithLabelValues("delete", "success").Inc()
}

func (r *runner) requestJSON(ctx context.Context, endpoint, method, requestURL string, payload, out any, expectedStatuses ...int) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.requests.WithLabelValues(endpoint, "0", "error").Inc()
		r.requestsError.Add(1)
		return 0, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	statusText := strconv.Itoa(resp.StatusCode)
	if err != nil {
		r.requests.WithLabelValues(endpoint, statusText, "error").Inc()
		r.requestsError.Add(1)
		return resp.StatusCode, err
	}
	if !slices.Contains(expectedStatuses, resp.StatusCode) {
		r.requests.WithLabelValues(endpoint, statusText, "error").Inc()
		r.requestsError.Add(1)
		return resp.StatusCode, fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, truncate(string(responseBody), 240))
	}

	r.requests.WithLabelValues(endpoint, statusText, "success").Inc()
	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("progress",
				"mutations", r.mutationsOK.Load(),
				"errors", r.requestsError.Load(),
				"active_clients", r.active.Load(),
			)
		}
	}
}

func (c *virtualClient) addTodo(todoID string) {
	if strings.TrimSpace(todoID) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.todos = append(c.todos, todoID)
}

func (c *virtualClient) randomTodo(rng *rand.Rand) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.todos) == 0 {
		return "", false
	}
	return c.todos[rng.Intn(len(c.todos))], true
}

func (c *virtualClient) removeTodo(todoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := slices.Index(c.todos, todoID); idx >= 0 {
		c.todos[idx] = c.todos[len(c.todos)-1]
		c.todos = c.todos[:len(c.todos)-1]
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
