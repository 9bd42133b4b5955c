package todos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/todo-1m/todosync/internal/app/changelog"
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// Fixed width so that created_at orders correctly as text.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

const sqliteTodoColumns = `id, title, description, completed, created_at, due_date, dependencies_json, image, tags_json, priority`

// SQLiteStore is a single-file Store for local and development use.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	return openSQLite(ctx, path)
}

// OpenSQLiteInMemory opens a private in-memory database named name.
func OpenSQLiteInMemory(ctx context.Context, name string) (*SQLiteStore, error) {
	return openSQLite(ctx, "file:"+name+"?mode=memory&cache=shared")
}

func openSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single connection keeps transactions serialized.
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todos (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			due_date TEXT,
			dependencies_json TEXT NOT NULL DEFAULT '[]',
			image TEXT NOT NULL DEFAULT '',
			tags_json TEXT NOT NULL DEFAULT '[]',
			priority TEXT NOT NULL DEFAULT 'medium'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_todos_created_at ON todos(created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate sqlite: %w", ErrStorage, err)
		}
	}
	return changelog.EnsureSQLiteSchema(ctx, s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %w", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Todo, error) {
	return scanSQLiteTodo(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTodoColumns+` FROM todos WHERE id = ?`, id))
}

func (s *SQLiteStore) List(ctx context.Context, ids []string) ([]Todo, error) {
	query := `SELECT ` + sqliteTodoColumns + ` FROM todos`
	args := make([]any, 0, len(ids))
	if len(ids) > 0 {
		query += ` WHERE id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list todos: %w", ErrStorage, err)
	}
	defer rows.Close()

	result := []Todo{}
	for rows.Next() {
		t, err := scanSQLiteTodo(rows)
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

func (s *SQLiteStore) Changelog() changelog.Store {
	return changelog.NewSQLStore(s.db)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Insert(ctx context.Context, todo Todo) error {
	deps, err := json.Marshal(orEmpty(todo.Dependencies))
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}
	tags, err := json.Marshal(orEmpty(todo.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	var due any
	if todo.DueDate != nil {
		due = formatSQLiteTime(*todo.DueDate)
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO todos (`+sqliteTodoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		todo.ID,
		todo.Title,
		todo.Description,
		boolToInt(todo.Completed),
		formatSQLiteTime(todo.CreatedAt),
		due,
		string(deps),
		todo.Image,
		string(tags),
		todo.Priority,
	); err != nil {
		return fmt.Errorf("%w: insert todo: %w", ErrStorage, err)
	}
	return nil
}

func (t *sqliteTx) Update(ctx context.Context, id string, patch UpdateTodoRequest) (Todo, error) {
	var completed any
	if patch.Completed != nil {
		completed = boolToInt(*patch.Completed)
	}
	var title, description any
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	return scanSQLiteTodo(t.tx.QueryRowContext(ctx,
		`UPDATE todos
		 SET title = COALESCE(?, title),
		     description = COALESCE(?, description),
		     completed = COALESCE(?, completed)
		 WHERE id = ?
		 RETURNING `+sqliteTodoColumns,
		title, description, completed, id,
	))
}

func (t *sqliteTx) Delete(ctx context.Context, id string) (Todo, error) {
	return scanSQLiteTodo(t.tx.QueryRowContext(ctx,
		`DELETE FROM todos WHERE id = ? RETURNING `+sqliteTodoColumns, id))
}

func (t *sqliteTx) Changelog() changelog.Store {
	return changelog.NewSQLStore(t.tx)
}

func (t *sqliteTx) Sequencer() changelog.Sequencer {
	return changelog.NewSQLSequencer(t.tx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTodo(row rowScanner) (Todo, error) {
	var (
		t         Todo
		completed int
		createdAt string
		due       sql.NullString
		deps      string
		tags      string
	)
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&completed,
		&createdAt,
		&due,
		&deps,
		&t.Image,
		&tags,
		&t.Priority,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrTodoNotFound
		}
		return Todo{}, fmt.Errorf("%w: scan todo: %w", ErrStorage, err)
	}

	t.Completed = completed != 0
	ts, err := time.Parse(sqliteTimeFormat, createdAt)
	if err != nil {
		return Todo{}, fmt.Errorf("%w: parse created_at %q: %w", ErrStorage, createdAt, err)
	}
	t.CreatedAt = ts
	if due.Valid {
		d, err := time.Parse(sqliteTimeFormat, due.String)
		if err != nil {
			return Todo{}, fmt.Errorf("%w: parse due_date %q: %w", ErrStorage, due.String, err)
		}
		t.DueDate = &d
	}
	if err := json.Unmarshal([]byte(deps), &t.Dependencies); err != nil {
		return Todo{}, fmt.Errorf("%w: decode dependencies: %w", ErrStorage, err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return Todo{}, fmt.Errorf("%w: decode tags: %w", ErrStorage, err)
	}
	t.Dependencies = orEmpty(t.Dependencies)
	t.Tags = orEmpty(t.Tags)
	return t, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
