package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeElastic emulates the subset of the Elasticsearch REST API used by ElasticStore.
type fakeElastic struct {
	mu           sync.Mutex
	indices      map[string]map[string]map[string]any
	schemas      map[string]map[string]any
	scrolls      map[string][]string
	cleared      []string
	requests     []*http.Request
	healthStatus string
	failStatus   int
	nextScroll   int
}

func newFakeElastic(t *testing.T) (*fakeElastic, *httptest.Server) {
	t.Helper()
	f := &fakeElastic{
		indices:      make(map[string]map[string]map[string]any),
		schemas:      make(map[string]map[string]any),
		scrolls:      make(map[string][]string),
		healthStatus: "green",
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestElasticStore(t *testing.T, srv *httptest.Server, refresh bool) *ElasticStore {
	t.Helper()
	cfg := elasticConfigFor(t, srv)
	cfg.Refresh = refresh
	s, err := NewElasticStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewElasticStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func elasticConfigFor(t *testing.T, srv *httptest.Server) ElasticConfig {
	t.Helper()
	host, portStr, ok := strings.Cut(strings.TrimPrefix(srv.URL, "http://"), ":")
	if !ok {
		t.Fatalf("unexpected test server URL %q", srv.URL)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("unexpected test server port %q", portStr)
	}
	cfg := DefaultElasticConfig()
	cfg.Hostname = host
	cfg.Port = port
	return cfg
}

func (f *fakeElastic) failWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
}

func (f *fakeElastic) setHealth(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthStatus = status
}

func (f *fakeElastic) count(index string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indices[index])
}

func (f *fakeElastic) lastRequest(method, pathSuffix string) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		r := f.requests[i]
		if r.Method == method && strings.HasSuffix(r.URL.Path, pathSuffix) {
			return r
		}
	}
	return nil
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Clone(r.Context()))
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if f.failStatus != 0 && r.URL.Path != "/" {
		writeJSON(w, f.failStatus, esError("internal_server_error", "injected failure", f.failStatus))
		return
	}

	body, _ := io.ReadAll(r.Body)
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/":
		writeJSON(w, http.StatusOK, map[string]any{"tagline": "You Know, for Search"})
	case len(parts) == 3 && parts[0] == "_cluster" && parts[1] == "health":
		f.health(w, parts[2])
	case len(parts) == 2 && parts[0] == "_search" && parts[1] == "scroll":
		f.scroll(w, r, body)
	case len(parts) == 1:
		f.index(w, r, parts[0], body)
	case len(parts) == 3 && parts[1] == "_doc":
		f.document(w, r, parts[0], parts[2], body)
	case len(parts) == 2 && parts[1] == "_delete_by_query":
		f.deleteByQuery(w, parts[0], body)
	case len(parts) == 2 && parts[1] == "_search":
		f.search(w, r, parts[0], body)
	default:
		writeJSON(w, http.StatusBadRequest, esError("illegal_argument_exception", "unsupported path "+r.URL.Path, 400))
	}
}

func (f *fakeElastic) health(w http.ResponseWriter, index string) {
	if _, ok := f.indices[index]; !ok || f.healthStatus == "red" {
		writeJSON(w, http.StatusRequestTimeout, map[string]any{"status": "red", "timed_out": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": f.healthStatus, "timed_out": false})
}

func (f *fakeElastic) index(w http.ResponseWriter, r *http.Request, index string, body []byte) {
	_, exists := f.indices[index]
	switch r.Method {
	case http.MethodHead:
		if exists {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		if exists {
			writeJSON(w, http.StatusBadRequest, esError("resource_already_exists_exception", "index ["+index+"] already exists", 400))
			return
		}
		var schema map[string]any
		if len(body) > 0 {
			_ = json.Unmarshal(body, &schema)
		}
		f.indices[index] = make(map[string]map[string]any)
		f.schemas[index] = schema
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "index": index})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, esError("method_not_allowed", r.Method, 405))
	}
}

func (f *fakeElastic) document(w http.ResponseWriter, r *http.Request, index, id string, body []byte) {
	docs, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, esError("index_not_found_exception", "no such index ["+index+"]", 404))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var src map[string]any
		if err := json.Unmarshal(body, &src); err != nil {
			writeJSON(w, http.StatusBadRequest, esError("mapper_parsing_exception", err.Error(), 400))
			return
		}
		_, existed := docs[id]
		docs[id] = src
		result, status := "created", http.StatusCreated
		if existed {
			result, status = "updated", http.StatusOK
		}
		writeJSON(w, status, map[string]any{"_index": index, "_id": id, "result": result})
	case http.MethodGet:
		src, ok := docs[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_id": id, "found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "found": true, "_source": src})
	case http.MethodDelete:
		if _, ok := docs[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_id": id, "result": "not_found"})
			return
		}
		delete(docs, id)
		writeJSON(w, http.StatusOK, map[string]any{"_index": index, "_id": id, "result": "deleted"})
	}
}

func (f *fakeElastic) deleteByQuery(w http.ResponseWriter, index string, body []byte) {
	docs, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, esError("index_not_found_exception", "no such index ["+index+"]", 404))
		return
	}
	match, err := parseFakeQuery(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, esError("parsing_exception", err.Error(), 400))
		return
	}
	deleted := 0
	for id, src := range docs {
		if match(src) {
			delete(docs, id)
			deleted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "failures": []any{}})
}

func (f *fakeElastic) search(w http.ResponseWriter, r *http.Request, index string, body []byte) {
	docs, ok := f.indices[index]
	if !ok {
		writeJSON(w, http.StatusNotFound, esError("index_not_found_exception", "no such index ["+index+"]", 404))
		return
	}
	match, err := parseFakeQuery(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, esError("parsing_exception", err.Error(), 400))
		return
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		size = 10
	}

	var ids []string
	for id, src := range docs {
		if match(src) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	f.nextScroll++
	scrollID := fmt.Sprintf("scroll-%d", f.nextScroll)
	page, rest := splitPage(ids, size)
	f.scrolls[scrollID] = rest
	f.scrolls[scrollID+":size"] = []string{strconv.Itoa(size)}

	writeJSON(w, http.StatusOK, scrollResponse(scrollID, index, page))
}

func (f *fakeElastic) scroll(w http.ResponseWriter, r *http.Request, body []byte) {
	switch r.Method {
	case http.MethodDelete:
		var req struct {
			ScrollID []string `json:"scroll_id"`
		}
		_ = json.Unmarshal(body, &req)
		for _, id := range req.ScrollID {
			delete(f.scrolls, id)
			f.cleared = append(f.cleared, id)
		}
		writeJSON(w, http.StatusOK, map[string]any{"succeeded": true, "num_freed": len(req.ScrollID)})
	default:
		var req struct {
			ScrollID string `json:"scroll_id"`
		}
		_ = json.Unmarshal(body, &req)
		rest, ok := f.scrolls[req.ScrollID]
		if !ok {
			writeJSON(w, http.StatusNotFound, esError("search_context_missing_exception", "No search context found for id ["+req.ScrollID+"]", 404))
			return
		}
		size, _ := strconv.Atoi(f.scrolls[req.ScrollID+":size"][0])
		page, remaining := splitPage(rest, size)
		f.scrolls[req.ScrollID] = remaining
		writeJSON(w, http.StatusOK, scrollResponse(req.ScrollID, "", page))
	}
}

func splitPage(ids []string, size int) ([]string, []string) {
	if len(ids) <= size {
		return ids, nil
	}
	return ids[:size], ids[size:]
}

func scrollResponse(scrollID, index string, ids []string) map[string]any {
	hits := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, map[string]any{"_index": index, "_id": id, "_score": nil})
	}
	return map[string]any{
		"_scroll_id": scrollID,
		"timed_out":  false,
		"hits":       map[string]any{"hits": hits},
	}
}

// parseFakeQuery understands the three predicates ElasticStore emits. The term query on tags
// is exact, as it is for a keyword field.
func parseFakeQuery(body []byte) (func(map[string]any) bool, error) {
	var req struct {
		Query map[string]map[string]any `json:"query"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	if _, ok := req.Query["match_all"]; ok {
		return func(map[string]any) bool { return true }, nil
	}
	if m, ok := req.Query["term"]; ok {
		tag, _ := m["tags"].(string)
		return func(src map[string]any) bool {
			tags, _ := src["tags"].([]any)
			for _, t := range tags {
				if t == tag {
					return true
				}
			}
			return false
		}, nil
	}
	if r, ok := req.Query["range"]; ok {
		clause, _ := r["expiresAt"].(map[string]any)
		gte, _ := clause["gte"].(float64)
		lte, _ := clause["lte"].(float64)
		return func(src map[string]any) bool {
			v, _ := src["expiresAt"].(float64)
			return v >= gte && v <= lte
		}, nil
	}
	return nil, fmt.Errorf("unsupported query %v", req.Query)
}

func esError(typ, reason string, status int) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"root_cause": []any{map[string]any{"type": typ, "reason": reason}},
			"type":       typ,
			"reason":     reason,
		},
		"status": status,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
