// Package store provides document store implementations for the elasticcache backend.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/CreativeUnicorns/elasticcache"
)

// ElasticConfig holds the connection parameters of an Elasticsearch cluster.
type ElasticConfig struct {
	Hostname  string
	Port      int
	Path      string
	Transport string // "http" or "https"
	Username  string
	Password  string
	// Refresh makes writes and deletes wait until they are visible to search.
	Refresh bool
	// ScrollKeepAlive is how long the cluster keeps a scroll context between pages.
	ScrollKeepAlive time.Duration
	// HTTPTransport replaces the default HTTP transport.
	HTTPTransport http.RoundTripper
}

// DefaultElasticConfig returns the connection parameters of a local single-node cluster.
func DefaultElasticConfig() ElasticConfig {
	return ElasticConfig{
		Hostname:        "localhost",
		Port:            9200,
		Path:            "/",
		Transport:       "http",
		ScrollKeepAlive: time.Minute,
	}
}

// URL returns the cluster base address built from the connection parameters.
func (c ElasticConfig) URL() string {
	scheme := c.Transport
	if scheme == "" {
		scheme = "http"
	}
	host := c.Hostname
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 9200
	}
	path := strings.Trim(c.Path, "/")
	if path != "" {
		path = "/" + path
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// ElasticStore implements elasticcache.DocumentStore on an Elasticsearch cluster.
type ElasticStore struct {
	client    *elasticsearch.Client
	transport http.RoundTripper
	refresh   bool
	keepAlive time.Duration
}

// NewElasticStore connects to the cluster described by cfg.
// It pings the cluster, giving up after 5s or when ctx is done, and fails with
// elasticcache.ErrStoreUnavailable when it is unreachable.
func NewElasticStore(ctx context.Context, cfg ElasticConfig) (*ElasticStore, error) {
	if cfg.Transport != "" && cfg.Transport != "http" && cfg.Transport != "https" {
		return nil, fmt.Errorf("%w: unsupported transport %q", elasticcache.ErrConfiguration, cfg.Transport)
	}

	transport := cfg.HTTPTransport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	keepAlive := cfg.ScrollKeepAlive
	if keepAlive <= 0 {
		keepAlive = time.Minute
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL()},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create elasticsearch client: %w", elasticcache.ErrStoreUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to elasticsearch at %s: %w", elasticcache.ErrStoreUnavailable, cfg.URL(), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: failed to connect to elasticsearch at %s: %s", elasticcache.ErrStoreUnavailable, cfg.URL(), res.Status())
	}

	return &ElasticStore{
		client:    client,
		transport: transport,
		refresh:   cfg.Refresh,
		keepAlive: keepAlive,
	}, nil
}

// IndexExists reports whether the index exists.
func (s *ElasticStore) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, requestError("index exists", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, responseError("index exists", res, nil)
}

// CreateIndex creates the index with schema as request body, or with cluster defaults when
// schema is nil.
func (s *ElasticStore) CreateIndex(ctx context.Context, index string, schema map[string]any) error {
	opts := []func(*esapi.IndicesCreateRequest){
		s.client.Indices.Create.WithContext(ctx),
	}
	if schema != nil {
		body, err := json.Marshal(schema)
		if err != nil {
			return fmt.Errorf("%w: failed to encode index schema: %w", elasticcache.ErrConfiguration, err)
		}
		opts = append(opts, s.client.Indices.Create.WithBody(bytes.NewReader(body)))
	}

	res, err := s.client.Indices.Create(index, opts...)
	if err != nil {
		return requestError("create index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		if cause := decodeErrorCause(data); cause.Type == "resource_already_exists_exception" {
			return elasticcache.ErrIndexExists
		}
		return responseError("create index", res, data)
	}
	return nil
}

// IndexReady reports whether the index has reached at least yellow health.
func (s *ElasticStore) IndexReady(ctx context.Context, index string) (bool, error) {
	res, err := s.client.Cluster.Health(
		s.client.Cluster.Health.WithContext(ctx),
		s.client.Cluster.Health.WithIndex(index),
		s.client.Cluster.Health.WithWaitForStatus("yellow"),
		s.client.Cluster.Health.WithTimeout(time.Second),
	)
	if err != nil {
		return false, requestError("cluster health", err)
	}
	defer res.Body.Close()

	// The cluster answers 408 when the wait times out before the status is reached.
	if res.StatusCode == http.StatusRequestTimeout {
		return false, nil
	}
	if res.IsError() {
		return false, responseError("cluster health", res, nil)
	}

	var health struct {
		Status   string `json:"status"`
		TimedOut bool   `json:"timed_out"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return false, decodeError("cluster health", err)
	}

	return !health.TimedOut && (health.Status == "green" || health.Status == "yellow"), nil
}

// PutDocument writes entry at its identifier, replacing any previous document.
func (s *ElasticStore) PutDocument(ctx context.Context, index string, entry *elasticcache.Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: failed to encode document: %w", elasticcache.ErrInvalidInput, err)
	}

	opts := []func(*esapi.IndexRequest){
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(entry.Identifier),
	}
	if s.refresh {
		opts = append(opts, s.client.Index.WithRefresh("wait_for"))
	}

	res, err := s.client.Index(index, bytes.NewReader(body), opts...)
	if err != nil {
		return requestError("index document", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index document", res, nil)
	}
	return nil
}

// GetDocument loads the document stored at id. It returns elasticcache.ErrNotFound only when
// the index exists and holds no such document.
func (s *ElasticStore) GetDocument(ctx context.Context, index, id string) (*elasticcache.Entry, error) {
	res, err := s.client.Get(index, id, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, requestError("get document", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, requestError("get document", err)
	}

	if res.StatusCode == http.StatusNotFound && !hasErrorField(data) {
		return nil, elasticcache.ErrNotFound
	}
	if res.IsError() {
		return nil, responseError("get document", res, data)
	}

	var doc struct {
		Found  bool                `json:"found"`
		Source *elasticcache.Entry `json:"_source"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, decodeError("get document", err)
	}
	if !doc.Found || doc.Source == nil {
		return nil, elasticcache.ErrNotFound
	}

	entry := doc.Source
	entry.Identifier = id
	return entry, nil
}

// DeleteDocument deletes the document at id, returning elasticcache.ErrNotFound when there
// was none.
func (s *ElasticStore) DeleteDocument(ctx context.Context, index, id string) error {
	opts := []func(*esapi.DeleteRequest){
		s.client.Delete.WithContext(ctx),
	}
	if s.refresh {
		opts = append(opts, s.client.Delete.WithRefresh("wait_for"))
	}

	res, err := s.client.Delete(index, id, opts...)
	if err != nil {
		return requestError("delete document", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return requestError("delete document", err)
	}

	if res.StatusCode == http.StatusNotFound && !hasErrorField(data) {
		return elasticcache.ErrNotFound
	}
	if res.IsError() {
		return responseError("delete document", res, data)
	}
	return nil
}

// DeleteByQuery deletes every document matching q. Version conflicts with concurrent
// writers are skipped rather than aborting the request.
func (s *ElasticStore) DeleteByQuery(ctx context.Context, index string, q elasticcache.Query) error {
	query, err := queryDSL(q)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return fmt.Errorf("%w: failed to encode query: %w", elasticcache.ErrInvalidInput, err)
	}

	opts := []func(*esapi.DeleteByQueryRequest){
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithConflicts("proceed"),
	}
	if s.refresh {
		opts = append(opts, s.client.DeleteByQuery.WithRefresh(true))
	}

	res, err := s.client.DeleteByQuery([]string{index}, bytes.NewReader(body), opts...)
	if err != nil {
		return requestError("delete by query", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("delete by query", res, nil)
	}

	var result struct {
		Deleted  int               `json:"deleted"`
		Failures []json.RawMessage `json:"failures"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return decodeError("delete by query", err)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%w: delete by query: %d failures, first: %s", elasticcache.ErrStoreUnavailable, len(result.Failures), result.Failures[0])
	}
	return nil
}

// Search opens a scroll over the identifiers of the documents matching q. The first page is
// fetched eagerly.
func (s *ElasticStore) Search(ctx context.Context, index string, q elasticcache.Query, pageSize int) (elasticcache.Cursor, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", elasticcache.ErrInvalidInput)
	}
	query, err := queryDSL(q)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{
		"query":   query,
		"_source": false,
		"sort":    []string{"_doc"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode query: %w", elasticcache.ErrInvalidInput, err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithScroll(s.keepAlive),
		s.client.Search.WithSize(pageSize),
	)
	if err != nil {
		return nil, requestError("search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search", res, nil)
	}

	page, err := decodeScrollPage(res.Body)
	if err != nil {
		return nil, decodeError("search", err)
	}

	return &scrollCursor{
		client:    s.client,
		keepAlive: s.keepAlive,
		scrollID:  page.ScrollID,
		pending:   page.ids(),
		buffered:  true,
	}, nil
}

// Close releases idle connections held by the store.
func (s *ElasticStore) Close() error {
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

type scrollCursor struct {
	client    *elasticsearch.Client
	keepAlive time.Duration
	scrollID  string
	pending   []string
	buffered  bool
	done      bool
}

// Next returns the next page of identifiers, or an empty page when the scroll is exhausted.
func (c *scrollCursor) Next(ctx context.Context) ([]string, error) {
	if c.buffered {
		c.buffered = false
		if len(c.pending) == 0 {
			c.done = true
		}
		page := c.pending
		c.pending = nil
		return page, nil
	}
	if c.done || c.scrollID == "" {
		return nil, nil
	}

	body, err := json.Marshal(map[string]string{
		"scroll":    strconv.FormatInt(c.keepAlive.Milliseconds(), 10) + "ms",
		"scroll_id": c.scrollID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode scroll request: %w", elasticcache.ErrInvalidInput, err)
	}

	res, err := c.client.Scroll(
		c.client.Scroll.WithContext(ctx),
		c.client.Scroll.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, requestError("scroll", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("scroll", res, nil)
	}

	page, err := decodeScrollPage(res.Body)
	if err != nil {
		return nil, decodeError("scroll", err)
	}
	if page.ScrollID != "" {
		c.scrollID = page.ScrollID
	}

	ids := page.ids()
	if len(ids) == 0 {
		c.done = true
	}
	return ids, nil
}

// Close clears the scroll context on the cluster.
func (c *scrollCursor) Close(ctx context.Context) error {
	if c.scrollID == "" {
		return nil
	}
	body, err := json.Marshal(map[string][]string{"scroll_id": {c.scrollID}})
	if err != nil {
		return fmt.Errorf("%w: failed to encode clear scroll request: %w", elasticcache.ErrInvalidInput, err)
	}
	c.scrollID = ""

	res, err := c.client.ClearScroll(
		c.client.ClearScroll.WithContext(ctx),
		c.client.ClearScroll.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return requestError("clear scroll", err)
	}
	defer res.Body.Close()

	// An expired scroll context is already gone.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("clear scroll", res, nil)
	}
	return nil
}

type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func (p *scrollPage) ids() []string {
	ids := make([]string, 0, len(p.Hits.Hits))
	for _, hit := range p.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids
}

func decodeScrollPage(r io.Reader) (*scrollPage, error) {
	var page scrollPage
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

// queryDSL translates a store-independent predicate into the Elasticsearch query DSL.
func queryDSL(q elasticcache.Query) (map[string]any, error) {
	switch q.Kind {
	case elasticcache.QueryMatchAll:
		return map[string]any{"match_all": map[string]any{}}, nil
	case elasticcache.QueryTag:
		// tags is mapped as keyword, so a term query is an exact match on one tag.
		return map[string]any{
			"term": map[string]any{"tags": q.Tag},
		}, nil
	case elasticcache.QueryExpiresAtRange:
		return map[string]any{
			"range": map[string]any{
				"expiresAt": map[string]any{"gte": q.From, "lte": q.To},
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported query kind %d", elasticcache.ErrInvalidInput, q.Kind)
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// decodeErrorCause extracts the root error of an Elasticsearch error body. The "error" field
// is either an object or, in older responses, a plain string.
func decodeErrorCause(data []byte) errorCause {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Error) == 0 {
		return errorCause{}
	}

	var cause errorCause
	if err := json.Unmarshal(body.Error, &cause); err == nil {
		return cause
	}
	var reason string
	if err := json.Unmarshal(body.Error, &reason); err == nil {
		return errorCause{Reason: reason}
	}
	return errorCause{}
}

func hasErrorField(data []byte) bool {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	return json.Unmarshal(data, &body) == nil && len(body.Error) > 0 && string(body.Error) != "null"
}

func requestError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", elasticcache.ErrStoreUnavailable, op, err)
}

func decodeError(op string, err error) error {
	return fmt.Errorf("%w: %s: failed to decode response: %w", elasticcache.ErrStoreUnavailable, op, err)
}

// responseError describes an error response. data is the already consumed body, if any.
func responseError(op string, res *esapi.Response, data []byte) error {
	if data == nil && res.Body != nil {
		data, _ = io.ReadAll(res.Body)
	}
	cause := decodeErrorCause(data)
	if cause.Type == "" && cause.Reason == "" {
		return fmt.Errorf("%w: %s: %s", elasticcache.ErrStoreUnavailable, op, res.Status())
	}
	return fmt.Errorf("%w: %s: %s: %s: %s", elasticcache.ErrStoreUnavailable, op, res.Status(), cause.Type, cause.Reason)
}
