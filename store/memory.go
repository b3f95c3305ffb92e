package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/CreativeUnicorns/elasticcache"
)

// MemoryStore implements elasticcache.DocumentStore in process memory.
// It follows the same contract as ElasticStore and is useful for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	indices map[string]*memoryIndex
	closed  bool
	// readyAfter is the number of readiness checks a new index fails before reporting ready.
	readyAfter int
}

type memoryIndex struct {
	schema    map[string]any
	docs      map[string]elasticcache.Entry
	readyPoll int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		indices: make(map[string]*memoryIndex),
	}
}

// SetReadyAfter makes indices created afterwards report ready only after n readiness checks.
func (s *MemoryStore) SetReadyAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyAfter = n
}

// IndexExists reports whether the index has been created.
func (s *MemoryStore) IndexExists(ctx context.Context, index string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx); err != nil {
		return false, err
	}
	_, ok := s.indices[index]
	return ok, nil
}

// CreateIndex creates the index, remembering its schema.
func (s *MemoryStore) CreateIndex(ctx context.Context, index string, schema map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.indices[index]; ok {
		return elasticcache.ErrIndexExists
	}
	s.indices[index] = &memoryIndex{
		schema: schema,
		docs:   make(map[string]elasticcache.Entry),
	}
	return nil
}

// IndexReady reports whether the index accepts queries.
func (s *MemoryStore) IndexReady(ctx context.Context, index string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index(ctx, index)
	if err != nil {
		return false, err
	}
	idx.readyPoll++
	return idx.readyPoll > s.readyAfter, nil
}

// Schema returns the schema the index was created with, or nil.
func (s *MemoryStore) Schema(index string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, ok := s.indices[index]; ok {
		return idx.schema
	}
	return nil
}

// Count returns the number of documents physically stored in the index, expired or not.
func (s *MemoryStore) Count(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, ok := s.indices[index]; ok {
		return len(idx.docs)
	}
	return 0
}

// PutDocument stores a copy of entry, replacing any document with the same identifier.
func (s *MemoryStore) PutDocument(ctx context.Context, index string, entry *elasticcache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index(ctx, index)
	if err != nil {
		return err
	}
	idx.docs[entry.Identifier] = copyEntry(entry)
	return nil
}

// GetDocument returns a copy of the stored document, or elasticcache.ErrNotFound.
func (s *MemoryStore) GetDocument(ctx context.Context, index, id string) (*elasticcache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.index(ctx, index)
	if err != nil {
		return nil, err
	}
	entry, ok := idx.docs[id]
	if !ok {
		return nil, elasticcache.ErrNotFound
	}
	found := copyEntry(&entry)
	return &found, nil
}

// DeleteDocument removes the document, or returns elasticcache.ErrNotFound.
func (s *MemoryStore) DeleteDocument(ctx context.Context, index, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index(ctx, index)
	if err != nil {
		return err
	}
	if _, ok := idx.docs[id]; !ok {
		return elasticcache.ErrNotFound
	}
	delete(idx.docs, id)
	return nil
}

// DeleteByQuery removes every document matching q.
func (s *MemoryStore) DeleteByQuery(ctx context.Context, index string, q elasticcache.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.index(ctx, index)
	if err != nil {
		return err
	}
	for id, entry := range idx.docs {
		if q.Matches(&entry) {
			delete(idx.docs, id)
		}
	}
	return nil
}

// Search snapshots the identifiers matching q, sorted, and pages through them.
func (s *MemoryStore) Search(ctx context.Context, index string, q elasticcache.Query, pageSize int) (elasticcache.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.index(ctx, index)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", elasticcache.ErrInvalidInput)
	}

	ids := make([]string, 0, len(idx.docs))
	for id, entry := range idx.docs {
		if q.Matches(&entry) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return &memoryCursor{store: s, ids: ids, pageSize: pageSize}, nil
}

// Close makes every subsequent call fail with elasticcache.ErrStoreUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// check must be called with s.mu held.
func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("%w: store closed", elasticcache.ErrStoreUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", elasticcache.ErrStoreUnavailable, err)
	}
	return nil
}

// index must be called with s.mu held.
func (s *MemoryStore) index(ctx context.Context, name string) (*memoryIndex, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	idx, ok := s.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: no such index [%s]", elasticcache.ErrStoreUnavailable, name)
	}
	return idx, nil
}

func copyEntry(e *elasticcache.Entry) elasticcache.Entry {
	c := *e
	c.Tags = append(make([]string, 0, len(e.Tags)), e.Tags...)
	return c
}

type memoryCursor struct {
	store    *MemoryStore
	ids      []string
	pageSize int
	pos      int
	closed   bool
}

func (c *memoryCursor) Next(ctx context.Context) ([]string, error) {
	c.store.mu.RLock()
	err := c.store.check(ctx)
	c.store.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("%w: cursor closed", elasticcache.ErrStoreUnavailable)
	}

	end := c.pos + c.pageSize
	if end > len(c.ids) {
		end = len(c.ids)
	}
	page := c.ids[c.pos:end]
	c.pos = end
	return page, nil
}

func (c *memoryCursor) Close(_ context.Context) error {
	c.closed = true
	return nil
}
