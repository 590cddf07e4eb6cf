// Package memstore keeps CMS documents in process memory. It backs development runs and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Techyishu/writerly/cms"
	"github.com/google/uuid"
)

// Store - in-memory cms.Client
type Store struct {
	mu   sync.RWMutex
	docs map[string]cms.Document
	now  func() time.Time
}

// New - creates empty store
func New() *Store {
	return &Store{
		docs: make(map[string]cms.Document),
		now:  time.Now,
	}
}

// Fetch - returns copies of all documents matching the query
func (s *Store) Fetch(_ context.Context, q *cms.Query) ([]cms.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]cms.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		all = append(all, doc)
	}

	selected := q.Select(all)
	result := make([]cms.Document, 0, len(selected))
	for _, doc := range selected {
		clone := doc.Clone()
		q.ResolveAssetRefs(clone, s.lookup)
		result = append(result, clone)
	}
	return result, nil
}

// GetDocument - returns copy of the document
func (s *Store) GetDocument(_ context.Context, id string) (cms.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, cms.ErrNotFound
	}
	return doc.Clone(), nil
}

// Create - stores a copy of the document
func (s *Store) Create(_ context.Context, doc cms.Document) (cms.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		id = uuid.New().String()
		stored["_id"] = id
	}
	if _, exists := s.docs[id]; exists {
		return nil, cms.ErrConflict
	}
	now := cms.FormatTime(s.now())
	stored["_createdAt"] = now
	stored["_updatedAt"] = now
	s.docs[id] = stored
	return stored.Clone(), nil
}

// Patch - applies patch to a copy and swaps it in, so a failed patch leaves the document untouched
func (s *Store) Patch(_ context.Context, id string, p *cms.Patch) (cms.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, cms.ErrNotFound
	}
	patched := doc.Clone()
	if err := p.Apply(patched); err != nil {
		return nil, &cms.Error{StatusCode: 400, Message: err.Error(), Err: err}
	}
	patched["_updatedAt"] = cms.FormatTime(s.now())
	s.docs[id] = patched
	return patched.Clone(), nil
}

// Delete - removes the document
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return cms.ErrNotFound
	}
	for otherID, other := range s.docs {
		if otherID != id && cms.References(other, id) {
			return cms.ErrReferenced
		}
	}
	delete(s.docs, id)
	return nil
}

// Len - number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// lookup is called with s.mu held
func (s *Store) lookup(id string) (cms.Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}
