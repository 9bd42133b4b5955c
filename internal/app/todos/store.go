package todos

import (
	"context"

	"github.com/todo-1m/todosync/internal/app/changelog"
)

// Store persists todos together with their changelog. Every mutation runs
// inside WithinTx so the todo write and its changelog entry commit or fail
// together.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (Todo, error)
	// List returns todos newest-created first. An empty ids slice lists everything.
	List(ctx context.Context, ids []string) ([]Todo, error)
	Changelog() changelog.Store
	Ping(ctx context.Context) error
}

// Tx is the transactional view handed to WithinTx callbacks.
type Tx interface {
	Insert(ctx context.Context, todo Todo) error
	// Update and Delete return ErrTodoNotFound for unknown ids.
	Update(ctx context.Context, id string, patch UpdateTodoRequest) (Todo, error)
	Delete(ctx context.Context, id string) (Todo, error)
	Changelog() changelog.Store
	Sequencer() changelog.Sequencer
}
