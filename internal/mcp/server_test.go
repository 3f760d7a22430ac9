package mcp

import (
	"context"
	"encoding/json"
	"testing"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/backend"
	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/embedding"
	"github.com/vectorgate/vectorgate/domain/registry"
	"github.com/vectorgate/vectorgate/domain/resolver"
	"github.com/vectorgate/vectorgate/domain/service"
)

// memAdapter is an in-memory backend.Adapter for exercising the MCP tool
// handlers without a live Qdrant instance.
type memAdapter struct {
	collections map[string]backend.CollectionDetail
	points      map[string]map[string]collection.Point
}

func newMemAdapter() *memAdapter {
	return &memAdapter{
		collections: map[string]backend.CollectionDetail{},
		points:      map[string]map[string]collection.Point{},
	}
}

func (a *memAdapter) CollectionExists(_ context.Context, name string) (bool, error) {
	_, ok := a.collections[name]
	return ok, nil
}

func (a *memAdapter) CreateCollection(_ context.Context, name string, spec collection.VectorSpec) error {
	if _, ok := a.collections[name]; ok {
		return backend.ErrAlreadyExists
	}
	a.collections[name] = backend.CollectionDetail{
		CollectionSummary: backend.CollectionSummary{
			Name:       name,
			Dimensions: spec.Size,
			Distance:   spec.Distance,
			VectorName: spec.VectorName,
			Status:     backend.StatusGreen,
		},
	}
	a.points[name] = map[string]collection.Point{}
	return nil
}

func (a *memAdapter) GetCollection(_ context.Context, name string) (backend.CollectionDetail, error) {
	d, ok := a.collections[name]
	if !ok {
		return backend.CollectionDetail{}, apperr.NoSuchCollection(name)
	}
	return d, nil
}

func (a *memAdapter) ListCollections(_ context.Context) ([]backend.CollectionSummary, error) {
	var out []backend.CollectionSummary
	for _, d := range a.collections {
		out = append(out, d.CollectionSummary)
	}
	return out, nil
}

func (a *memAdapter) UpsertPoints(_ context.Context, collectionName string, points []collection.Point) error {
	for _, p := range points {
		a.points[collectionName][p.ID] = p
	}
	return nil
}

func (a *memAdapter) Search(_ context.Context, collectionName string, query backend.SearchQuery) ([]collection.SearchResult, error) {
	var out []collection.SearchResult
	for _, p := range a.points[collectionName] {
		out = append(out, collection.SearchResult{
			PointID:  p.ID,
			Score:    1,
			Content:  p.Payload.Document(),
			Metadata: p.Payload.Metadata(),
		})
		if len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}

func (a *memAdapter) RetrievePoints(_ context.Context, collectionName string, ids []string, _ backend.RetrieveOptions) ([]collection.Point, error) {
	var out []collection.Point
	for _, id := range ids {
		if p, ok := a.points[collectionName][id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *memAdapter) SetPayload(_ context.Context, collectionName string, ids []string, payload collection.Payload, _ string) error {
	for _, id := range ids {
		p := a.points[collectionName][id]
		merged := map[string]any(p.Payload)
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range payload {
			merged[k] = v
		}
		p.Payload = merged
		a.points[collectionName][id] = p
	}
	return nil
}

func (a *memAdapter) DeletePoints(_ context.Context, collectionName string, ids []string) error {
	for _, id := range ids {
		delete(a.points[collectionName], id)
	}
	return nil
}

type stubEmbedder struct {
	modelID string
	dims    int
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, s.dims), nil
}

func (s *stubEmbedder) ModelID() string           { return s.modelID }
func (s *stubEmbedder) Dimensions() int           { return s.dims }
func (s *stubEmbedder) ActiveProviders() []string { return []string{"cpu"} }
func (s *stubEmbedder) Ready() bool               { return true }
func (s *stubEmbedder) Close() error              { return nil }

func testEngine(t *testing.T) *service.Engine {
	t.Helper()
	model, err := registry.NewModelDescriptor("bge-small", "BGE Small", 4, registry.DistanceCosine, "")
	require.NoError(t, err)
	reg, err := registry.New(model)
	require.NoError(t, err)
	mapping := resolver.NewMapping(nil, nil, "bge-small")

	adapter := newMemAdapter()
	pool := embedding.NewPool(func(_ context.Context, m registry.ModelDescriptor) (embedding.Embedder, error) {
		return &stubEmbedder{modelID: m.ModelID(), dims: m.Dimensions()}, nil
	})
	mgr := service.NewManager(adapter, mapping, reg, service.ManagerConfig{AutoCreate: true})
	return service.NewEngine(pool, mgr, adapter, reg, mapping, service.EngineConfig{})
}

func callTool(name string, args map[string]any) gomcp.CallToolRequest {
	req := gomcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *gomcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(gomcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_StoreAndGetPoint(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)
	ctx := context.Background()

	storeRes, err := s.handleStore(ctx, callTool("store", map[string]any{
		"collection":  "notes",
		"information": "hello world",
		"metadata":    map[string]any{"k": "v"},
	}))
	require.NoError(t, err)
	require.False(t, storeRes.IsError)

	var stored service.StoreResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, storeRes)), &stored))
	require.NotEmpty(t, stored.PointID)

	getRes, err := s.handleGetPoint(ctx, callTool("get_point", map[string]any{
		"collection": "notes",
		"id":         stored.PointID,
	}))
	require.NoError(t, err)
	require.False(t, getRes.IsError)

	var point struct {
		ID       string         `json:"id"`
		Document string         `json:"document"`
		Metadata map[string]any `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, getRes)), &point))
	require.Equal(t, "hello world", point.Document)
	require.Equal(t, "v", point.Metadata["k"])
}

func TestServer_GetPoint_NotFound(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)
	ctx := context.Background()

	_, err := s.handleStore(ctx, callTool("store", map[string]any{
		"collection":  "notes",
		"information": "hello world",
	}))
	require.NoError(t, err)

	res, err := s.handleGetPoint(ctx, callTool("get_point", map[string]any{
		"collection": "notes",
		"id":         "does-not-exist",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestServer_BulkStore_PreservesOrder(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)
	ctx := context.Background()

	res, err := s.handleBulkStore(ctx, callTool("bulk_store", map[string]any{
		"collection": "notes",
		"documents":  []any{"doc-0", "doc-1", "doc-2"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var bulk service.BulkResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &bulk))
	require.Equal(t, 3, bulk.StoredCount)
	require.Len(t, bulk.PointIDs, 3)
	for _, id := range bulk.PointIDs {
		require.NotEmpty(t, id)
	}
}

func TestServer_Find_NoSuchCollection(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)
	ctx := context.Background()

	res, err := s.handleFind(ctx, callTool("find", map[string]any{
		"collection": "missing",
		"query":      "anything",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var found service.FindResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &found))
	require.True(t, found.NoSuchCollection)
	require.Empty(t, found.Results)
}

func TestServer_DeletePoints_Idempotent(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)
	ctx := context.Background()

	storeRes, err := s.handleStore(ctx, callTool("store", map[string]any{
		"collection":  "notes",
		"information": "to be deleted",
	}))
	require.NoError(t, err)
	var stored service.StoreResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, storeRes)), &stored))

	for i := 0; i < 2; i++ {
		res, err := s.handleDeletePoints(ctx, callTool("delete_points", map[string]any{
			"collection": "notes",
			"point_ids":  []any{stored.PointID},
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)
	}

	getRes, err := s.handleGetPoint(ctx, callTool("get_point", map[string]any{
		"collection": "notes",
		"id":         stored.PointID,
	}))
	require.NoError(t, err)
	require.True(t, getRes.IsError)
}

func TestServer_ModelMappings(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)

	res, err := s.handleModelMappings(context.Background(), callTool("model_mappings", nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var report service.MappingsReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	require.Equal(t, "bge-small", report.DefaultModelID)
}

func TestServer_DefaultCollection_UsedWhenArgOmitted(t *testing.T) {
	s := NewServer(testEngine(t), "test", "fallback_notes", nil)
	ctx := context.Background()

	res, err := s.handleStore(ctx, callTool("store", map[string]any{
		"information": "no collection given",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	listRes, err := s.handleListCollections(ctx, callTool("list_collections", nil))
	require.NoError(t, err)
	require.Contains(t, resultText(t, listRes), "fallback_notes")
}

func TestServer_NoDefaultCollection_OmittedArgIsError(t *testing.T) {
	s := NewServer(testEngine(t), "test", "", nil)

	res, err := s.handleStore(context.Background(), callTool("store", map[string]any{
		"information": "no collection given",
	}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestArgStringSlice_RejectsNonString(t *testing.T) {
	req := callTool("update_payload", map[string]any{"point_ids": []any{"a", 1}})
	_, err := argStringSlice(req, "point_ids")
	require.Error(t, err)
}

func TestArgObjectSlice_AllowsAbsent(t *testing.T) {
	req := callTool("bulk_store", map[string]any{})
	out, err := argObjectSlice(req, "metadata_list")
	require.NoError(t, err)
	require.Nil(t, out)
}
