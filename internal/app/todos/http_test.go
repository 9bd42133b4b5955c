package todos

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/todo-1m/todosync/internal/app/changelog"
)

func newHandlerForTests() *Handler {
	svc, _ := newTestService(NewMemoryStore())
	return NewHandler(svc, log.New(io.Discard), "http://localhost:3000")
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid response JSON: %v body=%s", err, rr.Body.String())
	}
	return out
}

func TestHandleCreate_SingleAndBatch(t *testing.T) {
	router := newHandlerForTests().Router()

	rr := doRequest(t, router, http.MethodPost, "/todos", `{"title":"Buy Milk","tags":["home"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	single := decodeBody[Todo](t, rr)
	if single.Title != "Buy Milk" || single.Priority != DefaultPriority || single.Completed {
		t.Fatalf("unexpected todo: %+v", single)
	}

	rr = doRequest(t, router, http.MethodPost, "/todos", `[{"title":"one"},{"title":"two"}]`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	batch := decodeBody[[]Todo](t, rr)
	if len(batch) != 2 || batch[0].Title != "one" || batch[1].Title != "two" {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	rr = doRequest(t, router, http.MethodGet, "/todos/changelist", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	entries := decodeBody[[]changelog.Entry](t, rr)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[1].ResourceID != batch[0].ID || entries[2].ResourceID != batch[1].ID || entries[2].Version != entries[1].Version+1 {
		t.Fatalf("batch entries out of order: %+v", entries)
	}
}

func TestHandleCreate_BadRequests(t *testing.T) {
	router := newHandlerForTests().Router()
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"null body", "null"},
		{"empty array", "[]"},
		{"invalid json", "{"},
		{"missing title", `{"description":"x"}`},
		{"blank title in batch", `[{"title":"ok"},{"title":" "}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, http.MethodPost, "/todos", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}

	rr := doRequest(t, router, http.MethodGet, "/todos", "")
	if todos := decodeBody[[]Todo](t, rr); len(todos) != 0 {
		t.Fatalf("rejected requests must not write: %+v", todos)
	}
}

func TestHandleList_FiltersByID(t *testing.T) {
	router := newHandlerForTests().Router()
	rr := doRequest(t, router, http.MethodPost, "/todos", `[{"title":"A"},{"title":"B"}]`)
	created := decodeBody[[]Todo](t, rr)
	a, b := created[0], created[1]

	rr = doRequest(t, router, http.MethodGet, "/todos?id="+a.ID, "")
	only := decodeBody[[]Todo](t, rr)
	if len(only) != 1 || only[0].ID != a.ID {
		t.Fatalf("expected only A, got %+v", only)
	}

	rr = doRequest(t, router, http.MethodGet, "/todos?id="+a.ID+"&id="+b.ID, "")
	both := decodeBody[[]Todo](t, rr)
	if len(both) != 2 || both[0].ID != b.ID || both[1].ID != a.ID {
		t.Fatalf("expected B then A, got %+v", both)
	}

	rr = doRequest(t, router, http.MethodGet, "/todos?id=nope", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rr.Code)
	}
}

func TestHandleGet(t *testing.T) {
	router := newHandlerForTests().Router()
	created := decodeBody[Todo](t, doRequest(t, router, http.MethodPost, "/todos", `{"title":"A"}`))

	rr := doRequest(t, router, http.MethodGet, "/todos/"+created.ID, "")
	if rr.Code != http.StatusOK || decodeBody[Todo](t, rr).ID != created.ID {
		t.Fatalf("unexpected get: %d %s", rr.Code, rr.Body.String())
	}
	if rr := doRequest(t, router, http.MethodGet, "/todos/"+testID(404), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodGet, "/todos/xyz", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleUpdateAndDelete(t *testing.T) {
	router := newHandlerForTests().Router()
	created := decodeBody[Todo](t, doRequest(t, router, http.MethodPost, "/todos", `{"title":"A"}`))

	rr := doRequest(t, router, http.MethodPatch, "/todos/"+created.ID, `{"title":"A2","completed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	updated := decodeBody[Todo](t, rr)
	if updated.Title != "A2" || !updated.Completed {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if rr := doRequest(t, router, http.MethodPatch, "/todos/"+created.ID, `{"title":""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodPatch, "/todos/"+testID(404), `{"title":"x"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodDelete, "/todos/"+testID(404), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodDelete, "/todos/not-a-uuid", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed delete id, got %d", rr.Code)
	}
	if rr := doRequest(t, router, http.MethodDelete, "/todos/"+created.ID, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	entries := decodeBody[[]changelog.Entry](t, doRequest(t, router, http.MethodGet, "/todos/changelist?lastSyncedVersion=0", ""))
	if len(entries) != 2 {
		t.Fatalf("expected update and delete entries, got %+v", entries)
	}
	if entries[0].Version != 1 || entries[0].IsDeleted || entries[1].Version != 2 || !entries[1].IsDeleted {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestHandleChangelist(t *testing.T) {
	router := newHandlerForTests().Router()

	rr := doRequest(t, router, http.MethodGet, "/todos/changelist", "")
	if rr.Code != http.StatusOK || bytes.TrimSpace(rr.Body.Bytes())[0] != '[' {
		t.Fatalf("expected empty JSON array, got %d %s", rr.Code, rr.Body.String())
	}
	if entries := decodeBody[[]changelog.Entry](t, rr); len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}

	doRequest(t, router, http.MethodPost, "/todos", `{"title":"A"}`)
	entries := decodeBody[[]changelog.Entry](t, doRequest(t, router, http.MethodGet, "/todos/changelist", ""))
	if len(entries) != 1 || entries[0].Version != 0 {
		t.Fatalf("expected the first entry, got %+v", entries)
	}
	entries = decodeBody[[]changelog.Entry](t, doRequest(t, router, http.MethodGet, "/todos/changelist?lastSyncedVersion=-1", ""))
	if len(entries) != 1 {
		t.Fatalf("expected the first entry, got %+v", entries)
	}
	entries = decodeBody[[]changelog.Entry](t, doRequest(t, router, http.MethodGet, "/todos/changelist?lastSyncedVersion=0", ""))
	if len(entries) != 0 {
		t.Fatalf("expected nothing after version 0, got %+v", entries)
	}

	if rr := doRequest(t, router, http.MethodGet, "/todos/changelist?lastSyncedVersion=abc", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newHandlerForTests().Router()
	req := httptest.NewRequest(http.MethodOptions, "/todos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
