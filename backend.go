// backend.go
package elasticcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CreativeUnicorns/elasticcache/metrics"
)

// Backend is a TaggableBackend storing one document per cache entry in a single index.
//
// The backend holds no mutable state beyond its store handle and takes no locks. Atomicity is
// whatever the store offers: single document writes and deletes are atomic, bulk deletes and
// tag lookups are not atomic with concurrent writes. Writes are not guaranteed to be visible
// to queries immediately; a Set followed by FindIdentifiersByTag or a bulk delete may observe
// the state before the write unless the store refreshes on write.
type Backend struct {
	store  DocumentStore
	config *Config
}

// New creates a Backend on top of store. The target index is created when absent, using the
// configured schema, and New blocks until the store reports it ready. Failures are returned
// as ErrConfiguration or ErrInitialization; a Backend is only returned in a usable state.
func New(ctx context.Context, store DocumentStore, opts ...Option) (*Backend, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: document store is required", ErrConfiguration)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = NewDefaultLogger()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	schema := cfg.schema
	if schema == nil && cfg.indexConfiguration != "" {
		loaded, err := LoadIndexConfiguration(cfg.indexConfiguration)
		if err != nil {
			return nil, err
		}
		schema = loaded
	}
	schema = withDocumentMappings(schema)

	b := &Backend{
		store:  store,
		config: cfg,
	}

	if err := b.ensureIndex(ctx, schema); err != nil {
		return nil, err
	}

	return b, nil
}

// Index returns the name of the index backing this cache.
func (b *Backend) Index() string {
	return b.config.indexName
}

// Set stores content under identifier with the configured default lifetime, replacing any
// previous entry including its tags.
func (b *Backend) Set(ctx context.Context, identifier, content string, tags []string) error {
	return b.SetWithLifetime(ctx, identifier, content, tags, b.config.defaultLifetime)
}

// SetWithLifetime stores content under identifier. A zero lifetime means the entry never
// expires; partial seconds are rounded up.
func (b *Backend) SetWithLifetime(ctx context.Context, identifier, content string, tags []string, lifetime time.Duration) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("set", start, err) }()

	if identifier == "" || lifetime < 0 {
		return ErrInvalidInput
	}

	entry := &Entry{
		Identifier: identifier,
		Content:    content,
		Tags:       uniqueTags(tags),
		ExpiresAt:  expiresAtFor(b.config.now(), lifetime),
	}

	reqCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	if err := b.store.PutDocument(reqCtx, b.config.indexName, entry); err != nil {
		b.config.logger.Error("Failed to store cache entry", "index", b.config.indexName, "identifier", identifier, "error", err)
		return unavailable("put document", err)
	}

	return nil
}

// Get returns the content stored under identifier. The boolean is false when there is no
// entry or the entry has expired; expired entries are left for CollectGarbage.
func (b *Backend) Get(ctx context.Context, identifier string) (content string, found bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("get", start, err) }()

	entry, err := b.lookup(ctx, identifier)
	if err != nil {
		return "", false, err
	}
	metrics.ObserveLookup(entry != nil)
	if entry == nil {
		return "", false, nil
	}

	return entry.Content, true, nil
}

// Has reports whether Get would find an entry for identifier.
func (b *Backend) Has(ctx context.Context, identifier string) (found bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("has", start, err) }()

	entry, err := b.lookup(ctx, identifier)
	if err != nil {
		return false, err
	}

	return entry != nil, nil
}

// Remove deletes the entry stored under identifier. It returns false without touching the
// store when there is no live entry. The check and the delete are not atomic; an entry removed
// by someone else in between is reported as not removed.
func (b *Backend) Remove(ctx context.Context, identifier string) (removed bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("remove", start, err) }()

	entry, err := b.lookup(ctx, identifier)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	reqCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	err = b.store.DeleteDocument(reqCtx, b.config.indexName, identifier)
	if errors.Is(err, ErrNotFound) {
		b.config.logger.Debug("Cache entry vanished before removal", "index", b.config.indexName, "identifier", identifier)
		return false, nil
	}
	if err != nil {
		b.config.logger.Error("Failed to remove cache entry", "index", b.config.indexName, "identifier", identifier, "error", err)
		return false, unavailable("delete document", err)
	}

	return true, nil
}

// Flush removes every entry of this cache.
func (b *Backend) Flush(ctx context.Context) error {
	return b.deleteByQuery(ctx, "flush", MatchAllQuery())
}

// FlushByTag removes every entry tagged with tag. An empty tag matches nothing.
func (b *Backend) FlushByTag(ctx context.Context, tag string) error {
	if tag == "" {
		return nil
	}
	return b.deleteByQuery(ctx, "flush_by_tag", TagQuery(tag))
}

// FlushByTags removes every entry tagged with any of tags, one tag at a time. It stops at the
// first failure.
func (b *Backend) FlushByTags(ctx context.Context, tags ...string) error {
	for _, tag := range uniqueTags(tags) {
		if err := b.FlushByTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// CollectGarbage physically removes every entry whose finite lifetime has elapsed.
// Entries without expiry are never selected.
func (b *Backend) CollectGarbage(ctx context.Context) error {
	return b.deleteByQuery(ctx, "collect_garbage", ExpiredQuery(b.config.now()))
}

// FindIdentifiersByTag returns the identifiers of every entry tagged with tag, paging through
// the whole result set. Expiry is not applied: entries that expired but were not yet collected
// are included. Identifiers are de-duplicated in first-seen order.
func (b *Backend) FindIdentifiersByTag(ctx context.Context, tag string) (identifiers []string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation("find_identifiers_by_tag", start, err) }()

	identifiers = []string{}
	if tag == "" {
		return identifiers, nil
	}

	reqCtx, cancel := b.withTimeout(ctx)
	cursor, err := b.store.Search(reqCtx, b.config.indexName, TagQuery(tag), b.config.pageSize)
	cancel()
	if err != nil {
		b.config.logger.Error("Failed to search by tag", "index", b.config.indexName, "tag", tag, "error", err)
		return nil, unavailable("search", err)
	}
	defer b.closeCursor(ctx, cursor)

	seen := make(map[string]struct{})
	for {
		pageCtx, cancel := b.withTimeout(ctx)
		page, err := cursor.Next(pageCtx)
		cancel()
		if err != nil {
			b.config.logger.Error("Failed to scroll search results", "index", b.config.indexName, "tag", tag, "error", err)
			return nil, unavailable("scroll", err)
		}
		if len(page) == 0 {
			break
		}

		for _, id := range page {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			identifiers = append(identifiers, id)
		}
	}

	return identifiers, nil
}

// Close releases the underlying store.
func (b *Backend) Close() error {
	return b.store.Close()
}

// lookup fetches the live entry for identifier. A missing or expired entry yields nil
// without error; only ErrNotFound is treated as a miss.
func (b *Backend) lookup(ctx context.Context, identifier string) (*Entry, error) {
	if identifier == "" {
		return nil, ErrInvalidInput
	}

	reqCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	entry, err := b.store.GetDocument(reqCtx, b.config.indexName, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		b.config.logger.Error("Failed to load cache entry", "index", b.config.indexName, "identifier", identifier, "error", err)
		return nil, unavailable("get document", err)
	}
	if isExpired(entry.ExpiresAt, b.config.now()) {
		return nil, nil
	}

	return entry, nil
}

func (b *Backend) deleteByQuery(ctx context.Context, operation string, q Query) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveOperation(operation, start, err) }()

	reqCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	if err := b.store.DeleteByQuery(reqCtx, b.config.indexName, q); err != nil {
		b.config.logger.Error("Failed to delete by query", "index", b.config.indexName, "operation", operation, "query", q.Kind.String(), "error", err)
		return unavailable("delete by query", err)
	}
	b.config.logger.Debug("Deleted by query", "index", b.config.indexName, "operation", operation, "query", q.Kind.String())

	return nil
}

func (b *Backend) closeCursor(ctx context.Context, cursor Cursor) {
	reqCtx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := cursor.Close(reqCtx); err != nil {
		b.config.logger.Warn("Failed to release search cursor", "index", b.config.indexName, "error", err)
	}
}

func (b *Backend) ensureIndex(ctx context.Context, schema map[string]any) error {
	index := b.config.indexName

	reqCtx, cancel := b.withTimeout(ctx)
	exists, err := b.store.IndexExists(reqCtx, index)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: failed to check index %q: %w", ErrInitialization, index, err)
	}
	if exists {
		b.config.logger.Debug("Using existing index", "index", index)
		return nil
	}

	reqCtx, cancel = b.withTimeout(ctx)
	err = b.store.CreateIndex(reqCtx, index, schema)
	cancel()
	switch {
	case errors.Is(err, ErrIndexExists):
		b.config.logger.Info("Index was created concurrently", "index", index)
	case err != nil:
		return fmt.Errorf("%w: failed to create index %q: %w", ErrInitialization, index, err)
	default:
		metrics.IndexCreationsTotal.Inc()
		b.config.logger.Info("Created index", "index", index, "custom_schema", schema != nil)
	}

	return b.waitReady(ctx)
}

// waitReady polls the store until the index reports ready or the ready timeout elapses.
func (b *Backend) waitReady(ctx context.Context) error {
	index := b.config.indexName
	timeout := b.config.readyTimeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(b.config.readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		reqCtx, reqCancel := b.withTimeout(ctx)
		ready, err := b.store.IndexReady(reqCtx, index)
		reqCancel()
		if err == nil && ready {
			b.config.logger.Info("Index is ready", "index", index)
			return nil
		}
		if err != nil {
			lastErr = err
			b.config.logger.Debug("Index readiness check failed", "index", index, "error", err)
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w: index %q not ready within %s: %w", ErrInitialization, index, timeout, lastErr)
			}
			return fmt.Errorf("%w: index %q not ready within %s", ErrInitialization, index, timeout)
		case <-ticker.C:
		}
	}
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.config.requestTimeout)
}

// unavailable classifies err as ErrStoreUnavailable unless the store already did.
func unavailable(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
