package changelog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSQLiteSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSQLiteSchema error: %v", err)
	}
	return db
}

func TestSQLStore_AppendAndFindSince(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)
	store := NewSQLStore(db)
	created := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	for _, e := range []Entry{
		{ID: "e1", ResourceID: "A", ResourceType: ResourceTypeTodo, Version: 1, CreatedAt: created},
		{ID: "e0", ResourceID: "A", ResourceType: ResourceTypeTodo, Version: 0, CreatedAt: created},
		{ID: "e2", ResourceID: "B", ResourceType: ResourceTypeTodo, Version: 2, IsDeleted: true, CreatedAt: created},
	} {
		if _, err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append(%s) error: %v", e.ID, err)
		}
	}

	got, err := store.FindSince(ctx, 0)
	if err != nil {
		t.Fatalf("FindSince error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e2" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if !got[1].IsDeleted || !got[1].CreatedAt.Equal(created) {
		t.Fatalf("entry fields not round-tripped: %+v", got[1])
	}

	if _, err := store.Append(ctx, Entry{ID: "dup", ResourceID: "C", ResourceType: ResourceTypeTodo, Version: 2, CreatedAt: created}); !errors.Is(err, ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}
}

func TestSQLStore_LatestEmpty(t *testing.T) {
	store := NewSQLStore(openTestSQLite(t))
	if _, err := store.Latest(context.Background()); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("expected ErrNoEntries, got %v", err)
	}
}

func TestSQLSequencer_StartsAtZeroAndIncrements(t *testing.T) {
	ctx := context.Background()
	seq := NewSQLSequencer(openTestSQLite(t))
	for want := int64(0); want < 3; want++ {
		got, err := seq.NextVersion(ctx)
		if err != nil {
			t.Fatalf("NextVersion error: %v", err)
		}
		if got != want {
			t.Fatalf("expected version %d, got %d", want, got)
		}
	}
}

func TestSQLSequencer_SeedsFromExistingLedger(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)
	store := NewSQLStore(db)
	if _, err := store.Append(ctx, Entry{ID: "old", ResourceID: "A", ResourceType: ResourceTypeTodo, Version: 41, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	got, err := NewSQLSequencer(db).NextVersion(ctx)
	if err != nil {
		t.Fatalf("NextVersion error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected version 42, got %d", got)
	}
}

func TestSQLSequencer_RollbackReturnsVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx error: %v", err)
	}
	if v, err := NewSQLSequencer(tx).NextVersion(ctx); err != nil || v != 0 {
		t.Fatalf("NextVersion = %d, %v", v, err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback error: %v", err)
	}

	v, err := NewSQLSequencer(db).NextVersion(ctx)
	if err != nil {
		t.Fatalf("NextVersion error: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected rolled back version 0 to be reissued, got %d", v)
	}
}
