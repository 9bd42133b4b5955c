package todos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nuid"
	"github.com/todo-1m/todosync/internal/app/changelog"
	"github.com/todo-1m/todosync/internal/contracts"
	"github.com/todo-1m/todosync/internal/sharding"
)

// PublishFunc delivers a change notification. Delivery is best effort.
type PublishFunc func(subject string, payload []byte) error

// Service is the request-handling layer: it mutates the Store and has the
// changelog coordinator record each mutation in the same transaction.
type Service struct {
	Store      Store
	Publish    PublishFunc
	Metrics    *Metrics
	Logger     *log.Logger
	Now        func() time.Time
	NewID      func() string
	NewEntryID func() string
}

func NewService(store Store, publish PublishFunc) *Service {
	return &Service{
		Store:      store,
		Publish:    publish,
		Logger:     log.Default(),
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      NewID,
		NewEntryID: nuid.Next,
	}
}

// Create stores each todo with its own changelog entry, in input order. The
// whole batch is validated before anything is written. A storage failure
// part way through keeps the todos already committed; they are returned
// alongside the error.
func (s *Service) Create(ctx context.Context, reqs []CreateTodoRequest) ([]Todo, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBody
	}
	for i, req := range reqs {
		if err := req.validate(); err != nil {
			if len(reqs) > 1 {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			return nil, err
		}
	}

	created := make([]Todo, 0, len(reqs))
	for _, req := range reqs {
		todo := req.build(s.NewID(), s.Now())
		var entry changelog.Entry
		err := s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Insert(ctx, todo); err != nil {
				return err
			}
			var err error
			entry, err = s.coordinator(tx).RecordCreate(ctx, todo)
			return err
		})
		s.Metrics.observeMutation(contracts.OperationCreated, err)
		if err != nil {
			s.Logger.Error("create todo failed", "todo_id", todo.ID, "committed", len(created), "err", err)
			return created, err
		}
		s.announce(contracts.OperationCreated, entry)
		created = append(created, todo)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (Todo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return Todo{}, err
	}
	return s.Store.Get(ctx, id)
}

// List returns the todos matching rawIDs, or all todos when rawIDs is empty.
func (s *Service) List(ctx context.Context, rawIDs []string) ([]Todo, error) {
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return nil, err
	}
	return s.Store.List(ctx, ids)
}

// Update applies patch and records a single changelog entry however many
// fields changed.
func (s *Service) Update(ctx context.Context, rawID string, patch UpdateTodoRequest) (Todo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return Todo{}, err
	}
	if err := patch.validate(); err != nil {
		return Todo{}, err
	}
	patch = patch.normalized()

	var (
		updated Todo
		entry   changelog.Entry
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if updated, err = tx.Update(ctx, id, patch); err != nil {
			return err
		}
		entry, err = s.coordinator(tx).RecordUpdate(ctx, updated)
		return err
	})
	s.Metrics.observeMutation(contracts.OperationUpdated, err)
	if err != nil {
		if !errors.Is(err, ErrTodoNotFound) {
			s.Logger.Error("update todo failed", "todo_id", id, "err", err)
		}
		return Todo{}, err
	}
	s.announce(contracts.OperationUpdated, entry)
	return updated, nil
}

// Delete hard deletes the todo and records its tombstone. Unknown ids return
// ErrTodoNotFound and leave the changelog untouched.
func (s *Service) Delete(ctx context.Context, rawID string) (Todo, error) {
	id, err := ParseID(rawID)
	if err != nil {
		return Todo{}, err
	}

	var (
		deleted Todo
		entry   changelog.Entry
	)
	err = s.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if deleted, err = tx.Delete(ctx, id); err != nil {
			return err
		}
		entry, err = s.coordinator(tx).RecordDelete(ctx, deleted)
		return err
	})
	s.Metrics.observeMutation(contracts.OperationDeleted, err)
	if err != nil {
		if !errors.Is(err, ErrTodoNotFound) {
			s.Logger.Error("delete todo failed", "todo_id", id, "err", err)
		}
		return Todo{}, err
	}
	s.announce(contracts.OperationDeleted, entry)
	return deleted, nil
}

// Changes returns the changelog entries newer than the watermark, oldest first.
func (s *Service) Changes(ctx context.Context, since int64) ([]changelog.Entry, error) {
	return changelog.NewCoordinator(nil, s.Store.Changelog()).ChangesSince(ctx, since)
}

func (s *Service) coordinator(tx Tx) *changelog.Coordinator {
	c := changelog.NewCoordinator(tx.Sequencer(), tx.Changelog())
	c.Now = s.Now
	c.NewID = s.NewEntryID
	return c
}

func (s *Service) announce(operation string, entry changelog.Entry) {
	s.Metrics.observeVersion(entry.Version)
	if s.Publish == nil {
		return
	}
	event := contracts.ChangeEvent{
		EventID:      nuid.Next(),
		EntryID:      entry.ID,
		ResourceID:   entry.ResourceID,
		ResourceType: entry.ResourceType,
		Operation:    operation,
		Version:      entry.Version,
		IsDeleted:    entry.IsDeleted,
		OccurredAt:   entry.CreatedAt,
		ShardID:      sharding.GetShardID(entry.ResourceID),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.Logger.Warn("encode change event failed", "version", entry.Version, "err", err)
		return
	}
	if err := s.Publish(sharding.GetSubject(entry.ResourceType, entry.ResourceID), payload); err != nil {
		s.Logger.Warn("publish change event failed", "version", entry.Version, "resource_id", entry.ResourceID, "err", err)
	}
}
