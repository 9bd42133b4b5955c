package todos

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/todo-1m/todosync/internal/app/changelog"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Service       *Service
	Logger        *log.Logger
	AllowedOrigin string
}

func NewHandler(service *Service, logger *log.Logger, allowedOrigin string) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Service:       service,
		Logger:        logger,
		AllowedOrigin: allowedOrigin,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware)

	r.Route("/todos", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/changelist", h.handleChangelist)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
	return r
}

type batchFailure struct {
	Error   string `json:"error"`
	Created []Todo `json:"created"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	todos, err := h.Service.List(r.Context(), r.URL.Query()["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, todos)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	todo, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, todo)
}

func (h *Handler) handleChangelist(w http.ResponseWriter, r *http.Request) {
	since, err := changelog.ParseWatermark(r.URL.Query().Get("lastSyncedVersion"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.Service.Changes(r.Context(), since)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqs, batch, err := decodeCreateBody(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.Service.Create(r.Context(), reqs)
	if err != nil {
		if len(created) > 0 {
			h.writeJSON(w, statusFor(err), batchFailure{Error: err.Error(), Created: created})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	if batch {
		h.writeJSON(w, http.StatusCreated, created)
		return
	}
	h.writeJSON(w, http.StatusCreated, created[0])
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := ParseID(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	var req UpdateTodoRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	todo, err := h.Service.Update(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, todo)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	todo, err := h.Service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, todo)
}

// decodeCreateBody accepts either one todo object or an array of them.
func decodeCreateBody(body io.Reader) ([]CreateTodoRequest, bool, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, false, ErrInvalidPayload
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, ErrEmptyBody
	}
	if raw[0] == '[' {
		var reqs []CreateTodoRequest
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, true, ErrInvalidPayload
		}
		if len(reqs) == 0 {
			return nil, true, ErrEmptyBody
		}
		return reqs, true, nil
	}
	var req CreateTodoRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, false, ErrInvalidPayload
	}
	return []CreateTodoRequest{req}, false, nil
}

func decodeJSON(body io.Reader, dst any) error {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return ErrInvalidPayload
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrTodoNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedID),
		errors.Is(err, ErrTitleRequired),
		errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, changelog.ErrInvalidWatermark):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && errors.Is(err, ErrStorage) {
		msg = ErrStorage.Error()
	}
	h.writeError(w, status, msg)
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := strings.TrimSpace(h.AllowedOrigin)
		if allowed == "" {
			allowed = "*"
		}
		if origin := r.Header.Get("Origin"); allowed != "*" && strings.EqualFold(origin, allowed) {
			allowed = origin
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
