package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/todo-1m/todosync/internal/app/changelog"
	"github.com/todo-1m/todosync/internal/app/todos"
)

// maxIDsPerRequest keeps id-filtered list URLs well under common limits.
const maxIDsPerRequest = 100

// Client talks to the todo-api HTTP surface.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("todo-api returned %d: %s", e.Status, e.Message)
}

// FetchChanges returns entries strictly newer than since.
func (c *Client) FetchChanges(ctx context.Context, since int64) ([]changelog.Entry, error) {
	q := url.Values{}
	q.Set("lastSyncedVersion", strconv.FormatInt(since, 10))
	var entries []changelog.Entry
	if err := c.get(ctx, "/todos/changelist?"+q.Encode(), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchTodos returns the current state of ids. Ids that no longer exist are
// simply absent from the result.
func (c *Client) FetchTodos(ctx context.Context, ids []string) ([]todos.Todo, error) {
	var out []todos.Todo
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(ids))
		q := url.Values{}
		for _, id := range ids[start:end] {
			q.Add("id", id)
		}
		var page []todos.Todo
		if err := c.get(ctx, "/todos?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
