package memory

import (
	"context"
	"sort"
	"sync"
)

// SeenStore is the in-process set of scanned logs, used when no redis is
// configured. It is lost on restart.
type SeenStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewSeenStore() *SeenStore {
	return &SeenStore{keys: make(map[string]struct{})}
}

func (s *SeenStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *SeenStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}

func (s *SeenStore) ListSeen(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
