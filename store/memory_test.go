package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/elasticcache"
)

// TestStoreInterfaces ensures both stores implement elasticcache.DocumentStore.
func TestStoreInterfaces(t *testing.T) {
	t.Name()
	var _ elasticcache.DocumentStore = NewMemoryStore()
	var _ elasticcache.DocumentStore = (*ElasticStore)(nil)
}

func TestMemoryStore_IndexLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetReadyAfter(2)

	exists, err := s.IndexExists(ctx, "t3cache")
	require.NoError(t, err)
	assert.False(t, exists)

	schema := map[string]any{"settings": map[string]any{"number_of_shards": 1}}
	require.NoError(t, s.CreateIndex(ctx, "t3cache", schema))
	assert.Equal(t, schema, s.Schema("t3cache"))
	assert.True(t, errors.Is(s.CreateIndex(ctx, "t3cache", nil), elasticcache.ErrIndexExists))

	for i := 0; i < 2; i++ {
		ready, err := s.IndexReady(ctx, "t3cache")
		require.NoError(t, err)
		assert.False(t, ready, "poll %d", i+1)
	}
	ready, err := s.IndexReady(ctx, "t3cache")
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestMemoryStore_Documents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, "t3cache", nil))

	entry := &elasticcache.Entry{Identifier: "id", Content: "v1", Tags: []string{"a"}}
	require.NoError(t, s.PutDocument(ctx, "t3cache", entry))

	// Stored copies are independent of the caller's value.
	entry.Tags[0] = "mutated"
	got, err := s.GetDocument(ctx, "t3cache", "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Tags)

	require.NoError(t, s.PutDocument(ctx, "t3cache", &elasticcache.Entry{Identifier: "id", Content: "v2", Tags: []string{}}))
	got, err = s.GetDocument(ctx, "t3cache", "id")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.Empty(t, got.Tags)
	assert.Equal(t, 1, s.Count("t3cache"))
	assert.NotNil(t, got.Tags, "an empty tag set stays an empty list")

	require.NoError(t, s.DeleteDocument(ctx, "t3cache", "id"))
	_, err = s.GetDocument(ctx, "t3cache", "id")
	assert.True(t, errors.Is(err, elasticcache.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteDocument(ctx, "t3cache", "id"), elasticcache.ErrNotFound))
}

func TestMemoryStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetDocument(ctx, "missing", "id")
	assert.True(t, errors.Is(err, elasticcache.ErrStoreUnavailable))
	assert.False(t, errors.Is(err, elasticcache.ErrNotFound))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.IndexExists(cancelled, "t3cache")
	assert.True(t, errors.Is(err, elasticcache.ErrStoreUnavailable))
	assert.True(t, errors.Is(err, context.Canceled))

	require.NoError(t, s.Close())
	_, err = s.IndexExists(ctx, "t3cache")
	assert.True(t, errors.Is(err, elasticcache.ErrStoreUnavailable))
}

func TestMemoryStore_DeleteByQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, "t3cache", nil))

	for i, tag := range []string{"a", "b", "a", "b"} {
		require.NoError(t, s.PutDocument(ctx, "t3cache", &elasticcache.Entry{
			Identifier: fmt.Sprintf("id%d", i),
			Tags:       []string{tag},
			ExpiresAt:  int64(i * 10),
		}))
	}

	require.NoError(t, s.DeleteByQuery(ctx, "t3cache", elasticcache.ExpiresAtRangeQuery(1, 10)))
	assert.Equal(t, 3, s.Count("t3cache"))

	require.NoError(t, s.DeleteByQuery(ctx, "t3cache", elasticcache.TagQuery("a")))
	assert.Equal(t, 1, s.Count("t3cache"))

	require.NoError(t, s.DeleteByQuery(ctx, "t3cache", elasticcache.MatchAllQuery()))
	assert.Equal(t, 0, s.Count("t3cache"))
}

func TestMemoryStore_SearchPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIndex(ctx, "t3cache", nil))

	for i := 0; i < 7; i++ {
		require.NoError(t, s.PutDocument(ctx, "t3cache", &elasticcache.Entry{Identifier: fmt.Sprintf("id%d", i), Tags: []string{"t"}}))
	}

	cursor, err := s.Search(ctx, "t3cache", elasticcache.TagQuery("t"), 3)
	require.NoError(t, err)

	var pages [][]string
	for {
		page, err := cursor.Next(ctx)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
	}
	require.NoError(t, cursor.Close(ctx))

	assert.Equal(t, [][]string{{"id0", "id1", "id2"}, {"id3", "id4", "id5"}, {"id6"}}, pages)

	_, err = cursor.Next(ctx)
	assert.True(t, errors.Is(err, elasticcache.ErrStoreUnavailable))

	_, err = s.Search(ctx, "t3cache", elasticcache.TagQuery("t"), 0)
	assert.True(t, errors.Is(err, elasticcache.ErrInvalidInput))
}
