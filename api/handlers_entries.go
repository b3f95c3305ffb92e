// Package api provides HTTP handlers, middleware, and routing for the cache backend.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/CreativeUnicorns/elasticcache"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes limits the size of an entry upload.
const maxBodyBytes = 8 << 20

// setEntryRequest is the body of PUT /entries/{identifier}.
type setEntryRequest struct {
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	// Lifetime in seconds; omitted means the backend default, 0 means unlimited.
	Lifetime *int64 `json:"lifetime,omitempty"`
}

type entryResponse struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
}

type identifiersResponse struct {
	Identifiers []string `json:"identifiers"`
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identifier(w, r)
	if !ok {
		return
	}

	content, found, err := s.backend.Get(r.Context(), id)
	if err != nil {
		s.respondWithError(w, r, "Failed to get entry", err)
		return
	}
	if !found {
		s.respondWithStatus(w, http.StatusNotFound, "entry not found")
		return
	}

	s.respondWithJSON(w, http.StatusOK, entryResponse{Identifier: id, Content: content})
}

func (s *Server) handleHasEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identifier(w, r)
	if !ok {
		return
	}

	found, err := s.backend.Has(r.Context(), id)
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identifier(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req setEntryRequest
	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, r, "Invalid request payload", errors.Join(elasticcache.ErrInvalidInput, err))
		return
	}

	var err error
	if req.Lifetime == nil {
		err = s.backend.Set(r.Context(), id, req.Content, req.Tags)
	} else {
		err = s.backend.SetWithLifetime(r.Context(), id, req.Content, req.Tags, time.Duration(*req.Lifetime)*time.Second)
	}
	if err != nil {
		s.respondWithError(w, r, "Failed to set entry", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identifier(w, r)
	if !ok {
		return
	}

	removed, err := s.backend.Remove(r.Context(), id)
	if err != nil {
		s.respondWithError(w, r, "Failed to remove entry", err)
		return
	}
	if !removed {
		s.respondWithStatus(w, http.StatusNotFound, "entry not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Flush(r.Context()); err != nil {
		s.respondWithError(w, r, "Failed to flush cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlushByTag(w http.ResponseWriter, r *http.Request) {
	tag, ok := s.pathParam(w, r, "tag")
	if !ok {
		return
	}

	if err := s.backend.FlushByTag(r.Context(), tag); err != nil {
		s.respondWithError(w, r, "Failed to flush by tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFindIdentifiersByTag(w http.ResponseWriter, r *http.Request) {
	tag, ok := s.pathParam(w, r, "tag")
	if !ok {
		return
	}

	ids, err := s.backend.FindIdentifiersByTag(r.Context(), tag)
	if err != nil {
		s.respondWithError(w, r, "Failed to find identifiers by tag", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	s.respondWithJSON(w, http.StatusOK, identifiersResponse{Identifiers: ids})
}

func (s *Server) handleCollectGarbage(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.CollectGarbage(r.Context()); err != nil {
		s.respondWithError(w, r, "Failed to collect garbage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) identifier(w http.ResponseWriter, r *http.Request) (string, bool) {
	return s.pathParam(w, r, "identifier")
}

// pathParam returns the decoded URL parameter name, answering 400 when it is malformed.
// chi routes on the raw path only when the request carries one (an escaped "/" for instance);
// otherwise the parameter is already decoded and must not be unescaped again.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(value)
		if err != nil {
			s.respondWithStatus(w, http.StatusBadRequest, "invalid "+name)
			return "", false
		}
		value = unescaped
	}
	if value == "" {
		s.respondWithStatus(w, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return value, true
}

// statusFor maps backend errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, elasticcache.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, elasticcache.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError logs err and sends it as a JSON error with the status statusFor selects.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	s.logger.Error("API Error", "status", status, "message", message, "path", r.URL.Path, "error", err)
	s.respondWithStatus(w, status, err.Error())
}

func (s *Server) respondWithStatus(w http.ResponseWriter, status int, message string) {
	s.respondWithJSON(w, status, map[string]string{"error": message})
}

// respondWithJSON is a helper to send JSON responses.
func (s *Server) respondWithJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
