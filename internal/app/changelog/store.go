package changelog

import "context"

// Store is the append-only ledger of changelog entries.
type Store interface {
	// Append persists entry. Entries are never modified afterwards.
	Append(ctx context.Context, entry Entry) (Entry, error)
	// FindSince returns the entries with Version > version, oldest first.
	FindSince(ctx context.Context, version int64) ([]Entry, error)
	// Latest returns the entry with the highest version or ErrNoEntries.
	Latest(ctx context.Context) (Entry, error)
}
