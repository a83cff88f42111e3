package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/gamerag/types"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type mapResolver map[string]types.EntityRecord

func (m mapResolver) GetByIDs(ctx context.Context, ids []string) (map[string]types.EntityRecord, error) {
	out := map[string]types.EntityRecord{}
	for _, id := range ids {
		if rec, ok := m[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

type failResolver struct{}

func (failResolver) GetByIDs(ctx context.Context, ids []string) (map[string]types.EntityRecord, error) {
	return nil, errors.New("db down")
}

// newMilvusServer 返回固定 chunk 命中的 Milvus stub。
func newMilvusServer(t *testing.T, hits []map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/vectordb/entities/search", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "game_chunks", req["collectionName"])

		rows := make([]map[string]any, 0, len(hits))
		for _, h := range hits {
			rows = append(rows, map[string]any{
				"id":       h["chunk_id"],
				"distance": h["similarity"],
				"entity":   map[string]any{"chunk_id": h["chunk_id"], "entity_id": h["entity_id"]},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": []any{rows}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestStore(t *testing.T, srv *httptest.Server, resolver EntityResolver) *Store {
	t.Helper()
	client := NewMilvusClient(MilvusConfig{
		BaseURL:    srv.URL,
		Collection: "game_chunks",
	}, nil)
	return NewStore(fixedEmbedder{vec: []float32{0.1, 0.2}}, client, resolver, 5, nil)
}

func TestSearch_DedupesChunksPerEntity(t *testing.T) {
	t.Parallel()

	// 10 条 chunk 全部指向同一实体 → 只有相似度最高的一条存活
	var hits []map[string]any
	for i := 0; i < 10; i++ {
		hits = append(hits, map[string]any{
			"chunk_id":   "chunk:" + string(rune('a'+i)),
			"entity_id":  "npc:mina",
			"similarity": 0.5 + float64(i)*0.01,
		})
	}
	srv := newMilvusServer(t, hits)

	resolver := mapResolver{
		"npc:mina": {ID: "npc:mina", CanonicalName: "미나", Category: types.CategoryNPC},
	}
	s := newTestStore(t, srv, resolver)

	got, err := s.Search(context.Background(), "물약 파는 사람", 5, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "npc:mina", got[0].Entity.ID)
	assert.InDelta(t, 0.59, got[0].Score, 1e-9)
	assert.Equal(t, types.MatchVector, got[0].MatchType)
}

func TestSearch_DropsEntitiesUnknownToKeywordStore(t *testing.T) {
	t.Parallel()

	srv := newMilvusServer(t, []map[string]any{
		{"chunk_id": "c1", "entity_id": "npc:mina", "similarity": 0.9},
		{"chunk_id": "c2", "entity_id": "npc:ghost", "similarity": 0.8},
	})
	resolver := mapResolver{
		"npc:mina": {ID: "npc:mina", CanonicalName: "미나", Category: types.CategoryNPC},
	}
	s := newTestStore(t, srv, resolver)

	got, err := s.Search(context.Background(), "q", 5, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "npc:mina", got[0].Entity.ID)
}

func TestSearch_OrdersBySimilarity(t *testing.T) {
	t.Parallel()

	srv := newMilvusServer(t, []map[string]any{
		{"chunk_id": "c1", "entity_id": "a", "similarity": 0.3},
		{"chunk_id": "c2", "entity_id": "b", "similarity": 0.9},
		{"chunk_id": "c3", "entity_id": "c", "similarity": 0.6},
	})
	resolver := mapResolver{
		"a": {ID: "a", CanonicalName: "A", Category: types.CategoryItem},
		"b": {ID: "b", CanonicalName: "B", Category: types.CategoryItem},
		"c": {ID: "c", CanonicalName: "C", Category: types.CategoryItem},
	}
	s := newTestStore(t, srv, resolver)

	got, err := s.Search(context.Background(), "q", 5, "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Entity.ID)
	assert.Equal(t, "c", got[1].Entity.ID)
	assert.Equal(t, "a", got[2].Entity.ID)
}

func TestSearch_EmbedderFailureFailsOpen(t *testing.T) {
	t.Parallel()

	srv := newMilvusServer(t, nil)
	client := NewMilvusClient(MilvusConfig{BaseURL: srv.URL, Collection: "game_chunks"}, nil)
	s := NewStore(fixedEmbedder{err: errors.New("embedding service down")}, client, mapResolver{}, 5, nil)

	got, err := s.Search(context.Background(), "q", 5, "")
	assert.Empty(t, got)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeStoreTransport, types.GetErrorCode(err))
}

func TestSearch_MilvusErrorCodeFailsOpen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 1100, "message": "collection not loaded"})
	}))
	t.Cleanup(srv.Close)

	s := newTestStore(t, srv, mapResolver{})
	got, err := s.Search(context.Background(), "q", 5, "")
	assert.Empty(t, got)
	require.Error(t, err)

	var structured *types.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, types.SourceVector, structured.Source)
}

func TestSearch_ResolverFailureFailsOpen(t *testing.T) {
	t.Parallel()

	srv := newMilvusServer(t, []map[string]any{
		{"chunk_id": "c1", "entity_id": "a", "similarity": 0.5},
	})
	s := newTestStore(t, srv, failResolver{})

	got, err := s.Search(context.Background(), "q", 5, "")
	assert.Empty(t, got)
	assert.Error(t, err)
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	t.Cleanup(srv.Close)

	e := NewHTTPEmbedder(HTTPEmbedderConfig{URL: srv.URL, Model: "m", Dimension: 384}, nil)
	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestHTTPEmbedder_RoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"물약 파는 사람"}, req.Input)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	}))
	t.Cleanup(srv.Close)

	e := NewHTTPEmbedder(HTTPEmbedderConfig{URL: srv.URL, Model: "m", Dimension: 2}, nil)
	vec, err := e.Embed(context.Background(), "물약 파는 사람")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}
