package memory

import (
	"sort"
	"sync"

	"Doc_Indexer/docstore"

	"golang.org/x/xerrors"
)

// InMemoryStore is a document store held entirely in memory. It is safe for
// concurrent access.
type InMemoryStore struct {
	mu sync.RWMutex

	docs    map[uint64]*docstore.Document
	deleted map[uint64]bool
	maxID   uint64
}

// NewInMemoryStore creates a new in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:    make(map[uint64]*docstore.Document),
		deleted: make(map[uint64]bool),
	}
}

// Get implements docstore.Store.
func (s *InMemoryStore) Get(id uint64) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.docs[id]
	if doc == nil {
		return nil, xerrors.Errorf("get document %d: %w", id, docstore.ErrNotFound)
	}
	return doc.Clone(), nil
}

// GetProperty implements docstore.Store.
func (s *InMemoryStore) GetProperty(id uint64, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.docs[id]
	if doc == nil {
		return "", xerrors.Errorf("get property %q of %d: %w", name, id, docstore.ErrNotFound)
	}
	v, ok := doc.Properties[name]
	if !ok {
		return "", xerrors.Errorf("get property %q of %d: %w", name, id, docstore.ErrUnknownProperty)
	}
	return v, nil
}

// Insert implements docstore.Store.
func (s *InMemoryStore) Insert(doc *docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists && !s.deleted[doc.ID] {
		return xerrors.Errorf("insert document %d: %w", doc.ID, docstore.ErrExists)
	}
	s.docs[doc.ID] = doc.Clone()
	delete(s.deleted, doc.ID)
	if doc.ID > s.maxID {
		s.maxID = doc.ID
	}
	return nil
}

// UpdatePartial implements docstore.Store.
func (s *InMemoryStore) UpdatePartial(id uint64, props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[id]
	if doc == nil {
		return xerrors.Errorf("partial update of document %d: %w", id, docstore.ErrNotFound)
	}
	for k, v := range props {
		doc.Properties[k] = v
	}
	return nil
}

// Remove implements docstore.Store.
func (s *InMemoryStore) Remove(id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists || s.deleted[id] {
		return false, nil
	}
	s.deleted[id] = true
	return true, nil
}

// IsDeleted implements docstore.Store.
func (s *InMemoryStore) IsDeleted(id uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.docs[id]; !exists {
		return false, xerrors.Errorf("is deleted %d: %w", id, docstore.ErrNotFound)
	}
	return s.deleted[id], nil
}

// MaxID implements docstore.Store.
func (s *InMemoryStore) MaxID() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxID, nil
}

// Documents implements docstore.Store.
func (s *InMemoryStore) Documents() (docstore.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*docstore.Document, 0, len(s.docs))
	for id, doc := range s.docs {
		if s.deleted[id] {
			continue
		}
		docs = append(docs, doc.Clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return &documentIterator{docs: docs}, nil
}

// documentIterator iterates a snapshot of the store's live documents.
type documentIterator struct {
	docs []*docstore.Document
	cur  *docstore.Document
}

func (it *documentIterator) Next() bool {
	if len(it.docs) == 0 {
		return false
	}
	it.cur = it.docs[0]
	it.docs = it.docs[1:]
	return true
}

func (it *documentIterator) Document() *docstore.Document { return it.cur }

func (it *documentIterator) Error() error { return nil }

func (it *documentIterator) Close() error { return nil }
