package syncclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/todo-1m/todosync/internal/app/changelog"
	"github.com/todo-1m/todosync/internal/app/todos"
)

// State is the local replica persisted between runs.
type State struct {
	Watermark int64                 `json:"watermark"`
	SyncedAt  time.Time             `json:"syncedAt,omitzero"`
	Todos     map[string]todos.Todo `json:"todos"`
}

func NewState() State {
	return State{Watermark: changelog.NoWatermark, Todos: map[string]todos.Todo{}}
}

// LoadState reads the state file at path. A missing file yields an empty
// replica that will pull the full history.
func LoadState(path string) (State, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return State{}, fmt.Errorf("read state: %w", err)
	}
	st := NewState()
	if err := json.Unmarshal(content, &st); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	if st.Todos == nil {
		st.Todos = map[string]todos.Todo{}
	}
	if st.Watermark < changelog.NoWatermark {
		st.Watermark = changelog.NoWatermark
	}
	return st, nil
}

// SaveState writes st next to path and renames it into place.
func SaveState(path string, st State) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".todosync-state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
