package todos

import (
	"context"
	"sort"
	"sync"

	"github.com/todo-1m/todosync/internal/app/changelog"
)

// MemoryStore keeps todos in process memory. Transactions are serialized and
// todo writes are staged in an overlay that is only applied on success.
type MemoryStore struct {
	mu        sync.RWMutex
	todos     map[string]Todo
	changelog changelog.Store
	versions  *changelog.Counter
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWith(changelog.NewMemoryStore(), changelog.NewCounter(0))
}

// NewMemoryStoreWith uses the given changelog and version counter.
func NewMemoryStoreWith(log changelog.Store, versions *changelog.Counter) *MemoryStore {
	return &MemoryStore{
		todos:     map[string]Todo{},
		changelog: log,
		versions:  versions,
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, written: map[string]Todo{}, deleted: map[string]struct{}{}}
	next := s.versions.Peek()
	if err := fn(ctx, tx); err != nil {
		s.versions.Rewind(next)
		return err
	}
	for id := range tx.deleted {
		delete(s.todos, id)
	}
	for id, todo := range tx.written {
		s.todos[id] = todo
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	todo, ok := s.todos[id]
	if !ok {
		return Todo{}, ErrTodoNotFound
	}
	return cloneTodo(todo), nil
}

func (s *MemoryStore) List(_ context.Context, ids []string) ([]Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Todo{}
	if len(ids) == 0 {
		for _, todo := range s.todos {
			out = append(out, cloneTodo(todo))
		}
	} else {
		seen := map[string]struct{}{}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if todo, ok := s.todos[id]; ok {
				out = append(out, cloneTodo(todo))
			}
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Changelog() changelog.Store { return s.changelog }

func (s *MemoryStore) Ping(context.Context) error { return nil }

type memoryTx struct {
	store   *MemoryStore
	written map[string]Todo
	deleted map[string]struct{}
}

func (tx *memoryTx) lookup(id string) (Todo, bool) {
	if _, gone := tx.deleted[id]; gone {
		return Todo{}, false
	}
	if todo, ok := tx.written[id]; ok {
		return todo, true
	}
	todo, ok := tx.store.todos[id]
	return todo, ok
}

func (tx *memoryTx) Insert(_ context.Context, todo Todo) error {
	delete(tx.deleted, todo.ID)
	tx.written[todo.ID] = cloneTodo(todo)
	return nil
}

func (tx *memoryTx) Update(_ context.Context, id string, patch UpdateTodoRequest) (Todo, error) {
	todo, ok := tx.lookup(id)
	if !ok {
		return Todo{}, ErrTodoNotFound
	}
	todo = cloneTodo(todo).apply(patch)
	tx.written[id] = todo
	return cloneTodo(todo), nil
}

func (tx *memoryTx) Delete(_ context.Context, id string) (Todo, error) {
	todo, ok := tx.lookup(id)
	if !ok {
		return Todo{}, ErrTodoNotFound
	}
	delete(tx.written, id)
	tx.deleted[id] = struct{}{}
	return cloneTodo(todo), nil
}

func (tx *memoryTx) Changelog() changelog.Store     { return tx.store.changelog }
func (tx *memoryTx) Sequencer() changelog.Sequencer { return tx.store.versions }

func cloneTodo(t Todo) Todo {
	t.Dependencies = append([]string{}, t.Dependencies...)
	t.Tags = append([]string{}, t.Tags...)
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}

func sortNewestFirst(todos []Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		if todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].ID > todos[j].ID
		}
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
}
