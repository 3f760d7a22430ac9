package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/backend"
	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/embedding"
	"github.com/vectorgate/vectorgate/domain/registry"
)

type stubEmbedder struct {
	modelID string
	dims    int
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, s.dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, s.dims)
	v[0] = float32(len(text))
	return v, nil
}

func (s *stubEmbedder) ModelID() string           { return s.modelID }
func (s *stubEmbedder) Dimensions() int           { return s.dims }
func (s *stubEmbedder) ActiveProviders() []string { return []string{"cpu"} }
func (s *stubEmbedder) Ready() bool               { return true }
func (s *stubEmbedder) Close() error              { return nil }

func testPool() *embedding.Pool {
	return embedding.NewPool(func(_ context.Context, model registry.ModelDescriptor) (embedding.Embedder, error) {
		return &stubEmbedder{modelID: model.ModelID(), dims: model.Dimensions()}, nil
	})
}

// searchAdapter extends fakeAdapter with a scripted Search result so Find
// can be exercised independently of a real backend.
type searchAdapter struct {
	*fakeAdapter
	hits []collection.SearchResult

	mu      sync.Mutex
	upserts []collection.Point
}

func (a *searchAdapter) UpsertPoints(_ context.Context, _ string, points []collection.Point) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upserts = append(a.upserts, points...)
	return nil
}

func (a *searchAdapter) Search(_ context.Context, _ string, _ backend.SearchQuery) ([]collection.SearchResult, error) {
	return a.hits, nil
}

func newSearchAdapter() *searchAdapter {
	return &searchAdapter{fakeAdapter: newFakeAdapter()}
}

func testEngine(t *testing.T, adapter backend.Adapter, autoCreate bool) *Engine {
	t.Helper()
	reg := testRegistry(t)
	mapping := testMapping()
	mgr := NewManager(adapter, mapping, reg, ManagerConfig{AutoCreate: autoCreate})
	return NewEngine(testPool(), mgr, adapter, reg, mapping, EngineConfig{})
}

func TestEngine_Store_RoundTrip(t *testing.T) {
	adapter := newSearchAdapter()
	eng := testEngine(t, adapter, true)

	result, err := eng.Store(context.Background(), "notes", "hello world", map[string]any{"tag": "a"})
	require.NoError(t, err)
	require.NotEmpty(t, result.PointID)
	require.Equal(t, "BGE Small", result.ModelDisplayName)
	require.Equal(t, 384, result.Dimensions)
	require.Len(t, adapter.upserts, 1)
	require.Equal(t, "hello world", adapter.upserts[0].Payload.Document())
}

func TestEngine_Store_RejectsEmptyInputs(t *testing.T) {
	eng := testEngine(t, newSearchAdapter(), true)

	_, err := eng.Store(context.Background(), "", "text", nil)
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	_, err = eng.Store(context.Background(), "notes", "   ", nil)
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestEngine_BulkStore_PreservesPositionalOrder(t *testing.T) {
	adapter := newSearchAdapter()
	eng := testEngine(t, adapter, true)
	eng.cfg.BulkParallelism = 4

	docs := make([]string, 37)
	for i := range docs {
		docs[i] = fmt.Sprintf("doc-%02d", i)
	}

	result, err := eng.BulkStore(context.Background(), "notes", docs, nil, 5)
	require.NoError(t, err)
	require.Equal(t, len(docs), result.StoredCount)
	require.Equal(t, 0, result.FailedCount)
	require.Len(t, result.PointIDs, len(docs))
	for _, id := range result.PointIDs {
		require.NotEmpty(t, id)
	}

	idToDoc := map[string]string{}
	for _, p := range adapter.upserts {
		idToDoc[p.ID] = p.Payload.Document()
	}
	for i, id := range result.PointIDs {
		require.Equal(t, docs[i], idToDoc[id])
	}
}

func TestEngine_BulkStore_ValidatesMetadataLength(t *testing.T) {
	eng := testEngine(t, newSearchAdapter(), true)
	_, err := eng.BulkStore(context.Background(), "notes", []string{"a", "b"}, []map[string]any{{"x": 1}}, 10)
	require.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
}

func TestEngine_Find_NoSuchCollection_ReturnsFlagNotError(t *testing.T) {
	eng := testEngine(t, newSearchAdapter(), false)

	result, err := eng.Find(context.Background(), "missing", "query text", 5, 0)
	require.NoError(t, err)
	require.True(t, result.NoSuchCollection)
	require.Empty(t, result.Results)
}

func TestEngine_Find_SortsByScoreDescendingThenPointID(t *testing.T) {
	adapter := newSearchAdapter()
	adapter.collections["notes"] = backend.CollectionDetail{
		CollectionSummary: backend.CollectionSummary{
			Name: "notes", Dimensions: 384, VectorName: "bge_small",
		},
	}
	adapter.hits = []collection.SearchResult{
		{PointID: "b", Score: 0.5},
		{PointID: "a", Score: 0.9},
		{PointID: "c", Score: 0.9},
	}
	eng := testEngine(t, adapter, false)

	result, err := eng.Find(context.Background(), "notes", "query", 10, 0)
	require.NoError(t, err)
	require.False(t, result.NoSuchCollection)
	require.Equal(t, []string{"a", "c", "b"}, []string{
		result.Results[0].PointID, result.Results[1].PointID, result.Results[2].PointID,
	})
}

func TestEngine_GetPoint_NotFound(t *testing.T) {
	adapter := newSearchAdapter()
	adapter.collections["notes"] = backend.CollectionDetail{
		CollectionSummary: backend.CollectionSummary{Name: "notes", Dimensions: 384, VectorName: "bge_small"},
	}
	eng := testEngine(t, adapter, false)

	_, err := eng.GetPoint(context.Background(), "notes", "nope")
	require.Equal(t, apperr.KindPointNotFound, apperr.KindOf(err))
}

func TestEngine_GetPoint_NeverAutoCreates(t *testing.T) {
	adapter := newSearchAdapter()
	eng := testEngine(t, adapter, true)

	_, err := eng.GetPoint(context.Background(), "absent", "id")
	require.Equal(t, apperr.KindNoSuchCollection, apperr.KindOf(err))
	require.EqualValues(t, 0, adapter.createCalls)
}

func TestEngine_DeletePoints_Idempotent(t *testing.T) {
	adapter := newSearchAdapter()
	adapter.collections["notes"] = backend.CollectionDetail{
		CollectionSummary: backend.CollectionSummary{Name: "notes", Dimensions: 384, VectorName: "bge_small"},
	}
	eng := testEngine(t, adapter, false)

	result, err := eng.DeletePoints(context.Background(), "notes", []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, 2, result.DeletedCount)
}

func TestEngine_UpdatePayload_DelegatesToAdapter(t *testing.T) {
	adapter := newSearchAdapter()
	adapter.collections["notes"] = backend.CollectionDetail{
		CollectionSummary: backend.CollectionSummary{Name: "notes", Dimensions: 384, VectorName: "bge_small"},
	}
	eng := testEngine(t, adapter, false)

	result, err := eng.UpdatePayload(context.Background(), "notes", []string{"a"}, map[string]any{"k": "v"}, "metadata")
	require.NoError(t, err)
	require.Equal(t, 1, result.UpdatedCount)
}

func TestEngine_ModelMappings_IsPure(t *testing.T) {
	eng := testEngine(t, newSearchAdapter(), true)
	report := eng.ModelMappings()
	require.Equal(t, "bge-small", report.DefaultModelID)
	require.Len(t, report.Models, 2)
}
