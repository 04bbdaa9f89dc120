package versions

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	versions map[string]ContentVersion
}

// NewInMemoryStore creates a new empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{versions: make(map[string]ContentVersion)}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Add implements Store.
func (s *InMemoryStore) Add(_ context.Context, v ContentVersion) (string, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ID] = v
	return v.ID, nil
}

// List implements Store.
func (s *InMemoryStore) List(_ context.Context, contentID string) ([]ContentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ContentVersion
	for _, v := range s.versions {
		if v.ContentID == contentID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b ContentVersion) int {
		if c := b.VersionDate.Compare(a.VersionDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Candidates implements Store.
func (s *InMemoryStore) Candidates(_ context.Context, olderThan time.Time) ([]ContentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ContentVersion
	for _, v := range s.versions {
		if !v.Protected() && v.VersionDate.Before(olderThan) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		v, ok := s.versions[id]
		if !ok || v.Protected() {
			continue
		}
		delete(s.versions, id)
		n++
	}
	return n, nil
}

// Len implements Store.
func (s *InMemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions), nil
}
