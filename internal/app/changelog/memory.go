package changelog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps the changelog in process memory. Entries are kept sorted by version.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	versions map[int64]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: map[int64]struct{}{}}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.versions[entry.Version]; exists {
		return Entry{}, ErrDuplicateVersion
	}
	s.versions[entry.Version] = struct{}{}

	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Version > entry.Version
	})
	s.entries = append(s.entries, Entry{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = entry
	return entry, nil
}

func (s *MemoryStore) FindSince(_ context.Context, version int64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Version > version
	})
	out := make([]Entry, len(s.entries)-idx)
	copy(out, s.entries[idx:])
	return out, nil
}

func (s *MemoryStore) Latest(_ context.Context) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, ErrNoEntries
	}
	return s.entries[len(s.entries)-1], nil
}
