package todos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/todo-1m/todosync/internal/app/changelog"
)

const createTodosTableSQL = `
CREATE TABLE IF NOT EXISTS todos (
  id text PRIMARY KEY,
  title text NOT NULL,
  description text NOT NULL DEFAULT '',
  completed boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL,
  due_date timestamptz,
  dependencies text[] NOT NULL DEFAULT '{}',
  image text NOT NULL DEFAULT '',
  tags text[] NOT NULL DEFAULT '{}',
  priority text NOT NULL DEFAULT 'medium'
)`

const createTodosCreatedAtIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_todos_created_at ON todos (created_at DESC, id DESC)`

const todoColumns = `id, title, description, completed, created_at, due_date, dependencies, image, tags, priority`

const insertTodoSQL = `
INSERT INTO todos (` + todoColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const updateTodoSQL = `
UPDATE todos
SET title = COALESCE($2, title),
    description = COALESCE($3, description),
    completed = COALESCE($4, completed)
WHERE id = $1
RETURNING ` + todoColumns

const deleteTodoSQL = `
DELETE FROM todos
WHERE id = $1
RETURNING ` + todoColumns

const getTodoSQL = `
SELECT ` + todoColumns + `
FROM todos
WHERE id = $1`

const listTodosSQL = `
SELECT ` + todoColumns + `
FROM todos
ORDER BY created_at DESC, id DESC`

const listTodosByIDSQL = `
SELECT ` + todoColumns + `
FROM todos
WHERE id = ANY($1)
ORDER BY created_at DESC, id DESC`

// PostgresStore keeps todos and the changelog in one Postgres database so a
// mutation and its changelog entry share a transaction.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, createTodosTableSQL); err != nil {
		return fmt.Errorf("%w: create todos table: %w", ErrStorage, err)
	}
	if _, err := s.Pool.Exec(ctx, createTodosCreatedAtIndexSQL); err != nil {
		return fmt.Errorf("%w: create todos index: %w", ErrStorage, err)
	}
	return changelog.EnsurePostgresSchema(ctx, s.Pool)
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %w", ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Todo, error) {
	return scanPgTodo(s.Pool.QueryRow(ctx, getTodoSQL, id))
}

func (s *PostgresStore) List(ctx context.Context, ids []string) ([]Todo, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) == 0 {
		rows, err = s.Pool.Query(ctx, listTodosSQL)
	} else {
		rows, err = s.Pool.Query(ctx, listTodosByIDSQL, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list todos: %w", ErrStorage, err)
	}
	defer rows.Close()

	result := []Todo{}
	for rows.Next() {
		t, err := scanPgTodo(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list todos: %w", ErrStorage, err)
	}
	return result, nil
}

func (s *PostgresStore) Changelog() changelog.Store {
	return changelog.NewPostgresStore(s.Pool)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Insert(ctx context.Context, todo Todo) error {
	if _, err := t.tx.Exec(ctx, insertTodoSQL,
		todo.ID,
		todo.Title,
		todo.Description,
		todo.Completed,
		todo.CreatedAt,
		todo.DueDate,
		orEmpty(todo.Dependencies),
		todo.Image,
		orEmpty(todo.Tags),
		todo.Priority,
	); err != nil {
		return fmt.Errorf("%w: insert todo: %w", ErrStorage, err)
	}
	return nil
}

func (t *postgresTx) Update(ctx context.Context, id string, patch UpdateTodoRequest) (Todo, error) {
	return scanPgTodo(t.tx.QueryRow(ctx, updateTodoSQL, id, patch.Title, patch.Description, patch.Completed))
}

func (t *postgresTx) Delete(ctx context.Context, id string) (Todo, error) {
	return scanPgTodo(t.tx.QueryRow(ctx, deleteTodoSQL, id))
}

func (t *postgresTx) Changelog() changelog.Store {
	return changelog.NewPostgresStore(t.tx)
}

func (t *postgresTx) Sequencer() changelog.Sequencer {
	return changelog.NewPostgresSequencer(t.tx)
}

func scanPgTodo(row pgx.Row) (Todo, error) {
	var (
		t   Todo
		due *time.Time
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.CreatedAt,
		&due,
		&t.Dependencies,
		&t.Image,
		&t.Tags,
		&t.Priority,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Todo{}, ErrTodoNotFound
		}
		return Todo{}, fmt.Errorf("%w: scan todo: %w", ErrStorage, err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if due != nil {
		d := due.UTC()
		t.DueDate = &d
	}
	t.Dependencies = orEmpty(t.Dependencies)
	t.Tags = orEmpty(t.Tags)
	return t, nil
}
