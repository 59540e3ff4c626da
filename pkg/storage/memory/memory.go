// Package memory provides an in-memory implementation of storage.Store
// for testing and lightweight deployments. Documents are lost when the
// process restarts. An optional per-collection size limit evicts the
// oldest document when reached.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/rhuss/ribamar/pkg/storage"
)

// Store is an in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]storage.Document // insertion order
	maxSize     int                           // per collection, 0 = unlimited
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, collections grow
// without limit.
func New(maxSize int) *Store {
	return &Store{
		collections: make(map[string][]storage.Document),
		maxSize:     maxSize,
	}
}

// Get returns a copy of the first document whose key equals value.
func (s *Store) Get(ctx context.Context, collection, key string, value any) (storage.Document, error) {
	cond, err := condition(storage.Eq(key, value))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.collections[collection] {
		if storage.Match(doc, cond) {
			return storage.Normalize(doc)
		}
	}
	return nil, storage.ErrNotFound
}

// Find returns copies of every document matching all conditions.
func (s *Store) Find(ctx context.Context, collection string, conds ...storage.Condition) ([]storage.Document, error) {
	normalized := make([]storage.Condition, 0, len(conds))
	for _, c := range conds {
		nc, err := condition(c)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, nc)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []storage.Document{}
	for _, doc := range s.collections[collection] {
		if !storage.Match(doc, normalized...) {
			continue
		}
		cp, err := storage.Normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Insert stores a copy of doc, generating an id when missing.
func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (string, error) {
	cp, err := storage.Normalize(doc)
	if err != nil {
		return "", err
	}
	id := cp.ID()
	if id == "" {
		id = uuid.NewString()
		cp[storage.IDKey] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	for _, existing := range docs {
		if existing.ID() == id {
			return "", storage.ErrConflict
		}
	}

	// Evict if at capacity.
	if s.maxSize > 0 && len(docs) >= s.maxSize {
		docs = slices.Delete(docs, 0, len(docs)-s.maxSize+1)
	}
	s.collections[collection] = append(docs, cp)
	return id, nil
}

// Update sets the fields in set on the first matching document. The id
// field cannot be changed.
func (s *Store) Update(ctx context.Context, collection, key string, value any, set storage.Document) error {
	cond, err := condition(storage.Eq(key, value))
	if err != nil {
		return err
	}
	patch, err := storage.Normalize(set)
	if err != nil {
		return err
	}
	delete(patch, storage.IDKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.collections[collection] {
		if !storage.Match(doc, cond) {
			continue
		}
		for k, v := range patch {
			doc[k] = v
		}
		return nil
	}
	return storage.ErrNotFound
}

// Delete removes every matching document.
func (s *Store) Delete(ctx context.Context, collection, key string, value any) (int, error) {
	cond, err := condition(storage.Eq(key, value))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	kept := docs[:0]
	removed := 0
	for _, doc := range docs {
		if storage.Match(doc, cond) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	clear(docs[len(kept):])
	s.collections[collection] = kept
	return removed, nil
}

// Exists reports whether any document matches.
func (s *Store) Exists(ctx context.Context, collection, key string, value any) (bool, error) {
	_, err := s.Get(ctx, collection, key, value)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// condition validates c and normalizes its value for comparison against
// stored documents.
func condition(c storage.Condition) (storage.Condition, error) {
	if err := storage.ValidateConditions([]storage.Condition{c}); err != nil {
		return c, err
	}
	v, err := storage.NormalizeValue(c.Value)
	if err != nil {
		return c, err
	}
	c.Value = v
	return c, nil
}
