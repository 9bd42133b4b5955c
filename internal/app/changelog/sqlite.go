package changelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS changelog_entries (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		version INTEGER NOT NULL UNIQUE,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_changelog_entries_resource ON changelog_entries(resource_type, resource_id, version);`,
	`CREATE TABLE IF NOT EXISTS changelog_sequences (
		name TEXT PRIMARY KEY,
		next_version INTEGER NOT NULL
	);`,
}

const nextVersionSQLiteSQL = `
INSERT INTO changelog_sequences (name, next_version)
VALUES (?, COALESCE((SELECT MAX(version) FROM changelog_entries), -1) + 2)
ON CONFLICT (name) DO UPDATE
SET next_version = changelog_sequences.next_version + 1
RETURNING next_version - 1
`

// SQLQuerier is satisfied by *sql.DB and *sql.Tx.
type SQLQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureSQLiteSchema creates the changelog tables in a sqlite database.
func EnsureSQLiteSchema(ctx context.Context, q SQLQuerier) error {
	for _, stmt := range sqliteSchema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate sqlite changelog: %w", ErrStorage, err)
		}
	}
	return nil
}

// SQLStore is the changelog over database/sql, used with the sqlite driver.
type SQLStore struct {
	DB SQLQuerier
}

func NewSQLStore(db SQLQuerier) *SQLStore {
	return &SQLStore{DB: db}
}

func (s *SQLStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO changelog_entries (id, resource_id, resource_type, version, is_deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ResourceID,
		entry.ResourceType,
		entry.Version,
		boolToInt(entry.IsDeleted),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueVersionErr(err) {
			return Entry{}, ErrDuplicateVersion
		}
		return Entry{}, fmt.Errorf("%w: insert changelog entry: %w", ErrStorage, err)
	}
	return entry, nil
}

func (s *SQLStore) FindSince(ctx context.Context, version int64) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, resource_id, resource_type, version, is_deleted, created_at
		 FROM changelog_entries
		 WHERE version > ?
		 ORDER BY version ASC`,
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query changelog: %w", ErrStorage, err)
	}
	defer rows.Close()

	result := []Entry{}
	for rows.Next() {
		e, err := scanSQLEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate changelog: %w", ErrStorage, err)
	}
	return result, nil
}

func (s *SQLStore) Latest(ctx context.Context) (Entry, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, resource_id, resource_type, version, is_deleted, created_at
		 FROM changelog_entries
		 ORDER BY version DESC
		 LIMIT 1`,
	)
	e, err := scanSQLEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNoEntries
		}
		return Entry{}, err
	}
	return e, nil
}

// SQLSequencer is the database/sql twin of PostgresSequencer.
type SQLSequencer struct {
	DB   SQLQuerier
	Name string
}

func NewSQLSequencer(db SQLQuerier) *SQLSequencer {
	return &SQLSequencer{DB: db, Name: SequenceName}
}

func (s *SQLSequencer) NextVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.DB.QueryRowContext(ctx, nextVersionSQLiteSQL, s.Name).Scan(&version); err != nil {
		return 0, fmt.Errorf("%w: advance changelog sequence: %w", ErrStorage, err)
	}
	return version, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLEntry(row scanner) (Entry, error) {
	var (
		e         Entry
		isDeleted int
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.ResourceID, &e.ResourceType, &e.Version, &isDeleted, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("%w: scan changelog entry: %w", ErrStorage, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: parse changelog created_at %q: %w", ErrStorage, createdAt, err)
	}
	e.IsDeleted = isDeleted != 0
	e.CreatedAt = ts.UTC()
	return e, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isUniqueVersionErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed: changelog_entries.version")
}
