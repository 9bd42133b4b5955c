package changelog

import (
	"context"
	"errors"
	"sync/atomic"
)

// Sequencer hands out changelog versions. Two callers never receive the same value.
type Sequencer interface {
	NextVersion(ctx context.Context) (int64, error)
}

// Counter is an in-process Sequencer backed by an atomic increment.
type Counter struct {
	next atomic.Int64
}

// NewCounter returns a Counter whose first version is start.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.next.Store(start)
	return c
}

// SeedCounter starts a Counter one past the latest version in store, or at 0
// when the store is empty.
func SeedCounter(ctx context.Context, store Store) (*Counter, error) {
	latest, err := store.Latest(ctx)
	if err != nil {
		if errors.Is(err, ErrNoEntries) {
			return NewCounter(0), nil
		}
		return nil, err
	}
	return NewCounter(latest.Version + 1), nil
}

func (c *Counter) NextVersion(_ context.Context) (int64, error) {
	return c.next.Add(1) - 1, nil
}

// Peek reports the version the next call will return.
func (c *Counter) Peek() int64 {
	return c.next.Load()
}

// Rewind resets the next version to v. Only valid while the caller holds
// every NextVersion call off, as a serialized store transaction does.
func (c *Counter) Rewind(v int64) {
	c.next.Store(v)
}
