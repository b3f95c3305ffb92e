// Package elasticcache defines the core types used by the cache backend.
package elasticcache

import (
	"time"
)

// Entry is a single cache entry as stored in the index: one document per identifier.
// JSON tags give the persisted document layout; the identifier is the document id.
type Entry struct {
	// Identifier is the cache key and the document id. It is not part of the document source.
	Identifier string `json:"-"`
	// Content is the opaque cached payload.
	Content string `json:"content"`
	// Tags label the entry for bulk invalidation.
	Tags []string `json:"tags"`
	// ExpiresAt is the absolute expiry in epoch seconds; 0 means the entry never expires.
	ExpiresAt int64 `json:"expiresAt"`
}

// HasTag reports whether tag is one of the entry's tags.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// QueryKind selects the predicate a Query represents.
type QueryKind int

const (
	// QueryMatchAll matches every document in the index.
	QueryMatchAll QueryKind = iota
	// QueryTag matches documents whose tag set contains Query.Tag.
	QueryTag
	// QueryExpiresAtRange matches documents with From <= expiresAt <= To.
	QueryExpiresAtRange
)

// String returns a short name for the query kind, used in logs.
func (k QueryKind) String() string {
	switch k {
	case QueryMatchAll:
		return "match_all"
	case QueryTag:
		return "tag"
	case QueryExpiresAtRange:
		return "expires_at_range"
	}
	return "unknown"
}

// Query is a store-independent document predicate. Stores translate it into their own
// query language.
type Query struct {
	Kind QueryKind
	Tag  string
	From int64
	To   int64
}

// MatchAllQuery returns a predicate matching every document.
func MatchAllQuery() Query {
	return Query{Kind: QueryMatchAll}
}

// TagQuery returns a predicate matching documents tagged with tag.
func TagQuery(tag string) Query {
	return Query{Kind: QueryTag, Tag: tag}
}

// ExpiresAtRangeQuery returns a predicate matching documents whose expiresAt lies in the
// closed range [from, to].
func ExpiresAtRangeQuery(from, to int64) Query {
	return Query{Kind: QueryExpiresAtRange, From: from, To: to}
}

// Matches reports whether the entry satisfies the predicate.
func (q Query) Matches(e *Entry) bool {
	switch q.Kind {
	case QueryMatchAll:
		return true
	case QueryTag:
		return e.HasTag(q.Tag)
	case QueryExpiresAtRange:
		return e.ExpiresAt >= q.From && e.ExpiresAt <= q.To
	}
	return false
}

// Config holds the internal configuration for a Backend instance.
// It is populated by applying functional Options when a Backend is created with New().
type Config struct {
	// indexName is the target index; one index per configured cache.
	indexName string
	// indexConfiguration is the path of a YAML file holding the index settings/mappings.
	indexConfiguration string
	// schema is an index body supplied directly; it takes precedence over indexConfiguration.
	schema map[string]any
	// defaultLifetime is used by Set; 0 means unlimited.
	defaultLifetime time.Duration
	// requestTimeout bounds every single store call.
	requestTimeout time.Duration
	// readyTimeout bounds the wait for a freshly created index to become ready.
	readyTimeout time.Duration
	// readyPollInterval is the delay between readiness checks.
	readyPollInterval time.Duration
	// pageSize is the number of identifiers requested per scroll page.
	pageSize int
	logger   Logger
	now      func() time.Time
}

// Default configuration values.
const (
	DefaultIndexName         = "t3cache"
	DefaultLifetime          = time.Hour
	DefaultRequestTimeout    = 10 * time.Second
	DefaultReadyTimeout      = 30 * time.Second
	DefaultReadyPollInterval = 250 * time.Millisecond
	DefaultPageSize          = 100
)

func defaultConfig() *Config {
	return &Config{
		indexName:         DefaultIndexName,
		defaultLifetime:   DefaultLifetime,
		requestTimeout:    DefaultRequestTimeout,
		readyTimeout:      DefaultReadyTimeout,
		readyPollInterval: DefaultReadyPollInterval,
		pageSize:          DefaultPageSize,
		now:               time.Now,
	}
}

// Option defines the signature for a functional option that configures a Backend.
type Option func(*Config)

// WithIndexName sets the index the backend stores its entries in.
func WithIndexName(name string) Option {
	return func(c *Config) {
		c.indexName = name
	}
}

// WithIndexConfiguration sets the path of a YAML file whose content is used as the index
// body (settings and mappings) when the index has to be created.
func WithIndexConfiguration(path string) Option {
	return func(c *Config) {
		c.indexConfiguration = path
	}
}

// WithIndexSchema sets the index body used when the index has to be created.
func WithIndexSchema(schema map[string]any) Option {
	return func(c *Config) {
		c.schema = schema
	}
}

// WithDefaultLifetime sets the lifetime applied by Set. A zero lifetime means unlimited.
func WithDefaultLifetime(d time.Duration) Option {
	return func(c *Config) {
		c.defaultLifetime = d
	}
}

// WithRequestTimeout bounds each individual store request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.requestTimeout = d
	}
}

// WithReadiness configures how long New waits for a created index to become ready, and how
// often it checks.
func WithReadiness(timeout, pollInterval time.Duration) Option {
	return func(c *Config) {
		c.readyTimeout = timeout
		c.readyPollInterval = pollInterval
	}
}

// WithPageSize sets the number of identifiers fetched per scroll page.
func WithPageSize(n int) Option {
	return func(c *Config) {
		c.pageSize = n
	}
}

// WithLogger sets the Logger used by the backend.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// WithClock replaces the wall clock used for expiry computations.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.now = now
	}
}
