package changelog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SequenceName is the counter row shared by every todo mutation.
const SequenceName = "changelog"

const createChangelogTableSQL = `
CREATE TABLE IF NOT EXISTS changelog_entries (
  id text PRIMARY KEY,
  resource_id text NOT NULL,
  resource_type text NOT NULL,
  version bigint NOT NULL,
  is_deleted boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL,
  CONSTRAINT changelog_entries_version_key UNIQUE (version)
)`

const createChangelogResourceIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_changelog_entries_resource
ON changelog_entries (resource_type, resource_id, version)`

const createSequencesTableSQL = `
CREATE TABLE IF NOT EXISTS changelog_sequences (
  name text PRIMARY KEY,
  next_version bigint NOT NULL
)`

const insertChangelogEntrySQL = `
INSERT INTO changelog_entries (id, resource_id, resource_type, version, is_deleted, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

const findChangelogSinceSQL = `
SELECT id, resource_id, resource_type, version, is_deleted, created_at
FROM changelog_entries
WHERE version > $1
ORDER BY version ASC
`

const latestChangelogEntrySQL = `
SELECT id, resource_id, resource_type, version, is_deleted, created_at
FROM changelog_entries
ORDER BY version DESC
LIMIT 1
`

// The first call seeds the counter from the ledger so that existing history is
// never reused. The conflicting row is locked until the transaction ends.
const nextVersionPostgresSQL = `
INSERT INTO changelog_sequences (name, next_version)
VALUES ($1, COALESCE((SELECT MAX(version) FROM changelog_entries), -1) + 2)
ON CONFLICT (name) DO UPDATE
SET next_version = changelog_sequences.next_version + 1
RETURNING next_version - 1
`

// PgxQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsurePostgresSchema creates the changelog tables.
func EnsurePostgresSchema(ctx context.Context, q PgxQuerier) error {
	for _, stmt := range []string{createChangelogTableSQL, createChangelogResourceIndexSQL, createSequencesTableSQL} {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure changelog schema: %w", ErrStorage, err)
		}
	}
	return nil
}

type PostgresStore struct {
	DB PgxQuerier
}

func NewPostgresStore(db PgxQuerier) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	if _, err := s.DB.Exec(ctx, insertChangelogEntrySQL,
		entry.ID,
		entry.ResourceID,
		entry.ResourceType,
		entry.Version,
		entry.IsDeleted,
		entry.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "changelog_entries_version_key" {
			return Entry{}, ErrDuplicateVersion
		}
		return Entry{}, fmt.Errorf("%w: insert changelog entry: %w", ErrStorage, err)
	}
	return entry, nil
}

func (s *PostgresStore) FindSince(ctx context.Context, version int64) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, findChangelogSinceSQL, version)
	if err != nil {
		return nil, fmt.Errorf("%w: query changelog: %w", ErrStorage, err)
	}
	defer rows.Close()

	result := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ResourceID, &e.ResourceType, &e.Version, &e.IsDeleted, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan changelog entry: %w", ErrStorage, err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate changelog: %w", ErrStorage, err)
	}
	return result, nil
}

func (s *PostgresStore) Latest(ctx context.Context) (Entry, error) {
	var e Entry
	err := s.DB.QueryRow(ctx, latestChangelogEntrySQL).Scan(
		&e.ID, &e.ResourceID, &e.ResourceType, &e.Version, &e.IsDeleted, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNoEntries
		}
		return Entry{}, fmt.Errorf("%w: query latest changelog entry: %w", ErrStorage, err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// PostgresSequencer advances the counter row. Run it inside the transaction
// that appends the entry so a rollback returns the version.
type PostgresSequencer struct {
	DB   PgxQuerier
	Name string
}

func NewPostgresSequencer(db PgxQuerier) *PostgresSequencer {
	return &PostgresSequencer{DB: db, Name: SequenceName}
}

func (s *PostgresSequencer) NextVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.DB.QueryRow(ctx, nextVersionPostgresSQL, s.Name).Scan(&version); err != nil {
		return 0, fmt.Errorf("%w: advance changelog sequence: %w", ErrStorage, err)
	}
	return version, nil
}
