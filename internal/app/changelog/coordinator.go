package changelog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nuid"
)

var ErrResourceIDRequired = errors.New("resource id is required")

// Coordinator records exactly one changelog entry per todo mutation and serves
// the read path for sync clients. Callers invoke Record* only after the
// mutation itself succeeded.
type Coordinator struct {
	Sequencer Sequencer
	Store     Store
	Now       func() time.Time
	NewID     func() string
}

func NewCoordinator(sequencer Sequencer, store Store) *Coordinator {
	return &Coordinator{
		Sequencer: sequencer,
		Store:     store,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
	}
}

func (c *Coordinator) RecordCreate(ctx context.Context, resource Resource) (Entry, error) {
	return c.record(ctx, resource, false)
}

func (c *Coordinator) RecordUpdate(ctx context.Context, resource Resource) (Entry, error) {
	return c.record(ctx, resource, false)
}

// RecordDelete writes the tombstone for a resource that was hard deleted.
func (c *Coordinator) RecordDelete(ctx context.Context, resource Resource) (Entry, error) {
	return c.record(ctx, resource, true)
}

// ChangesSince returns every entry newer than the watermark in ascending version order.
func (c *Coordinator) ChangesSince(ctx context.Context, version int64) ([]Entry, error) {
	if version < NoWatermark {
		version = NoWatermark
	}
	entries, err := c.Store.FindSince(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("find changelog entries since %d: %w", version, err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Version < entries[j].Version
	})
	return entries, nil
}

func (c *Coordinator) record(ctx context.Context, resource Resource, deleted bool) (Entry, error) {
	resourceID := strings.TrimSpace(resource.ResourceID())
	if resourceID == "" {
		return Entry{}, ErrResourceIDRequired
	}
	resourceType := resource.ResourceType()
	if resourceType == "" {
		resourceType = ResourceTypeTodo
	}

	version, err := c.Sequencer.NextVersion(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("next changelog version: %w", err)
	}

	entry := Entry{
		ID:           c.NewID(),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Version:      version,
		IsDeleted:    deleted,
		CreatedAt:    c.Now(),
	}
	stored, err := c.Store.Append(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("append changelog entry %d: %w", version, err)
	}
	return stored, nil
}
