// Package memory provides an in-process ThreadStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/adaptiverag/store"
)

// ThreadStore keeps threads in a map. Loaded threads are copies, so callers
// never share message slices with the store.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*store.Thread
}

var _ store.ThreadStore = (*ThreadStore)(nil)

// NewThreadStore creates an empty store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string]*store.Thread)}
}

// Load returns a copy of the thread.
func (s *ThreadStore) Load(ctx context.Context, id string) (*store.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
	}
	return t.Clone(), nil
}

// Save stores a copy of t.
func (s *ThreadStore) Save(ctx context.Context, t *store.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := 0
	if existing, ok := s.threads[t.ID]; ok {
		current = existing.Version
	}
	if current != t.Version {
		return fmt.Errorf("%w: %s is at version %d, not %d", store.ErrVersionConflict, t.ID, current, t.Version)
	}

	t.Version++
	t.UpdatedAt = time.Now().UTC()
	s.threads[t.ID] = t.Clone()
	return nil
}

// Delete removes the thread.
func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrThreadNotFound, id)
	}
	delete(s.threads, id)
	return nil
}

// List returns the ids of all stored threads.
func (s *ThreadStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *ThreadStore) Close() error { return nil }
