// Package dedup guards against pagination overlap: each slug is processed
// at most once per run.
package dedup

import (
	"context"
	"sync"
)

// Store marks slugs as seen. MarkIfNew returns true exactly once per slug.
type Store interface {
	MarkIfNew(ctx context.Context, slug string) (bool, error)
}

// MemoryStore is the in-process implementation, scoped to one run.
type MemoryStore struct {
	seen sync.Map
}

// NewMemoryStore returns an empty seen-set.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MarkIfNew stores the slug if unseen and reports whether it was new.
func (s *MemoryStore) MarkIfNew(_ context.Context, slug string) (bool, error) {
	if slug == "" {
		return false, nil
	}
	_, loaded := s.seen.LoadOrStore(slug, struct{}{})
	return !loaded, nil
}
