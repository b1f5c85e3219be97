package persistence

import (
	"context"
	"sync"
)

// MemoryStore keeps the document in process memory. It honours the same
// versioning contract as the SQLite store and is used by tests and by the
// "memory" DSN.
type MemoryStore struct {
	mu  sync.RWMutex
	doc Document
}

// NewMemoryStore returns an empty store, optionally primed with an initial document.
func NewMemoryStore(initial ...Document) *MemoryStore {
	s := &MemoryStore{}
	if len(initial) > 0 {
		s.doc = initial[0].Clone()
		if s.doc.Version == 0 {
			s.doc.Version = 1
		}
	}
	return s
}

// Load returns a copy of the stored document.
func (s *MemoryStore) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

// Save replaces the stored document when doc.Version matches.
func (s *MemoryStore) Save(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Version != s.doc.Version {
		return Document{}, ErrVersionConflict
	}

	next := doc.Clone()
	next.Version = s.doc.Version + 1
	s.doc = next
	return next.Clone(), nil
}
