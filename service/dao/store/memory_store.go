package store

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/kcore/service/dao"
)

// MemoryStore is a generic, optionally bounded, in-memory implementation of
// dao.Service. Keys are obtained from the supplied keySelector function.
// A limit of zero means unbounded.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	limit       int
	less        func(a, b K) bool
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, limit int, less func(a, b K) bool) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		limit:       limit,
		less:        less,
	}
}

// Save stores or overwrites a record. Adding a new key to a full store
// returns dao.ErrFull.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok && s.limit > 0 && len(s.records) >= s.limit {
		return dao.ErrFull
	}
	s.records[key] = v
	return nil
}

// Load returns a record by key.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return v, nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns all stored records, ordered by key when an ordering was
// supplied. Higher-level stores apply their own filters.
func (s *MemoryStore[K, T]) List(_ context.Context, _ ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	if s.less != nil {
		sort.Slice(keys, func(i, j int) bool { return s.less(keys[i], keys[j]) })
	}
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.records[k])
	}
	return out, nil
}

// Len returns the number of stored records
func (s *MemoryStore[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Limit returns the configured bound (0 means unbounded)
func (s *MemoryStore[K, T]) Limit() int {
	return s.limit
}
