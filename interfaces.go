// Package elasticcache defines the interfaces for document stores, cache backends and logging.
package elasticcache

import (
	"context"
	"time"
)

// DocumentStore is the capability set the backend needs from a document-search engine.
// Implementations must return ErrNotFound (wrapped or bare) only when the addressed document
// does not exist, and wrap every other failure in ErrStoreUnavailable.
type DocumentStore interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	// CreateIndex creates the index with the given settings/mappings body; a nil schema uses
	// the store defaults. Returns ErrIndexExists if another caller created it first.
	CreateIndex(ctx context.Context, index string, schema map[string]any) error
	IndexReady(ctx context.Context, index string) (bool, error)
	PutDocument(ctx context.Context, index string, entry *Entry) error
	GetDocument(ctx context.Context, index, id string) (*Entry, error)
	DeleteDocument(ctx context.Context, index, id string) error
	DeleteByQuery(ctx context.Context, index string, q Query) error
	// Search opens a cursor over the identifiers of every document matching q.
	Search(ctx context.Context, index string, q Query, pageSize int) (Cursor, error)
	Close() error
}

// Cursor pages through a search result set. Next returns an empty page once the result set
// is exhausted. Close must be called even after an error.
type Cursor interface {
	Next(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

// TaggableBackend is the cache backend contract exposed to frontends.
type TaggableBackend interface {
	Set(ctx context.Context, identifier, content string, tags []string) error
	SetWithLifetime(ctx context.Context, identifier, content string, tags []string, lifetime time.Duration) error
	Get(ctx context.Context, identifier string) (string, bool, error)
	Has(ctx context.Context, identifier string) (bool, error)
	Remove(ctx context.Context, identifier string) (bool, error)
	Flush(ctx context.Context) error
	FlushByTag(ctx context.Context, tag string) error
	FlushByTags(ctx context.Context, tags ...string) error
	CollectGarbage(ctx context.Context) error
	FindIdentifiersByTag(ctx context.Context, tag string) ([]string, error)
	Close() error
}

// Logger defines the methods required for logging within the cache backend.
// The args should be alternating key-value pairs, similar to slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
