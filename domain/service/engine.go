// Package service implements the Query/Store Engine: the orchestration
// layer that composes the resolver, embedder pool, collection manager, and
// backend adapter into the nine public operations the transport layer
// exposes as MCP tools.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vectorgate/vectorgate/domain/apperr"
	"github.com/vectorgate/vectorgate/domain/backend"
	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/embedding"
	"github.com/vectorgate/vectorgate/domain/registry"
	"github.com/vectorgate/vectorgate/domain/resolver"
)

// EngineConfig carries the request-level defaults: default search
// limit/threshold and default bulk batch size.
type EngineConfig struct {
	SearchDefaultLimit     int
	SearchDefaultThreshold float32
	DefaultBatchSize       int
	BulkParallelism        int
}

// Engine is the Query/Store Engine.
type Engine struct {
	pool     *embedding.Pool
	manager  *Manager
	adapter  backend.Adapter
	registry *registry.Registry
	mapping  resolver.Mapping
	cfg      EngineConfig
}

// NewEngine wires the engine's collaborators together.
func NewEngine(pool *embedding.Pool, manager *Manager, adapter backend.Adapter, reg *registry.Registry, mapping resolver.Mapping, cfg EngineConfig) *Engine {
	if cfg.SearchDefaultLimit <= 0 {
		cfg.SearchDefaultLimit = 10
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 100
	}
	if cfg.BulkParallelism <= 0 {
		cfg.BulkParallelism = 4
	}
	return &Engine{pool: pool, manager: manager, adapter: adapter, registry: reg, mapping: mapping, cfg: cfg}
}

// Store indexes a single document.
func (e *Engine) Store(ctx context.Context, collectionName, information string, metadata map[string]any) (StoreResult, error) {
	if collectionName == "" {
		return StoreResult{}, apperr.InvalidInput("collection", "must not be empty")
	}
	if strings.TrimSpace(information) == "" {
		return StoreResult{}, apperr.InvalidInput("information", "must not be empty")
	}

	rc, err := e.manager.Ensure(ctx, collectionName)
	if err != nil {
		return StoreResult{}, err
	}

	embedder, err := e.pool.Get(ctx, rc.Model)
	if err != nil {
		return StoreResult{}, err
	}

	vectors, err := embedder.EmbedDocuments(ctx, []string{information})
	if err != nil {
		return StoreResult{}, apperr.Internal("embed document", err)
	}
	if len(vectors) != 1 {
		return StoreResult{}, apperr.Internal(fmt.Sprintf("embedder returned %d vectors for 1 input", len(vectors)), nil)
	}

	point := collection.Point{
		ID:      uuid.NewString(),
		Vector:  vectors[0],
		Payload: collection.NewPayload(information, metadata),
	}

	if err := e.adapter.UpsertPoints(ctx, collectionName, []collection.Point{point}); err != nil {
		return StoreResult{}, err
	}

	return StoreResult{
		PointID:          point.ID,
		ModelDisplayName: rc.Model.DisplayName(),
		Dimensions:       rc.Model.Dimensions(),
	}, nil
}

// BulkStore indexes many documents in chunks. Chunks embed and upsert
// concurrently, bounded by cfg.BulkParallelism, but result positions
// always correspond to the input order because each chunk writes into
// its own pre-computed slice offset rather than appending.
func (e *Engine) BulkStore(ctx context.Context, collectionName string, documents []string, metadataList []map[string]any, batchSize int) (BulkResult, error) {
	if collectionName == "" {
		return BulkResult{}, apperr.InvalidInput("collection", "must not be empty")
	}
	if len(documents) == 0 {
		return BulkResult{}, apperr.InvalidInput("documents", "must not be empty")
	}
	if metadataList != nil && len(metadataList) != len(documents) {
		return BulkResult{}, apperr.InvalidInput("metadata_list", "length must match documents when provided")
	}
	if batchSize <= 0 {
		batchSize = e.cfg.DefaultBatchSize
	}

	rc, err := e.manager.Ensure(ctx, collectionName)
	if err != nil {
		return BulkResult{}, err
	}

	embedder, err := e.pool.Get(ctx, rc.Model)
	if err != nil {
		return BulkResult{}, err
	}

	type chunk struct {
		start, end int
		docs       []string
	}
	var chunks []chunk
	for start := 0; start < len(documents); start += batchSize {
		end := start + batchSize
		if end > len(documents) {
			end = len(documents)
		}
		chunks = append(chunks, chunk{start: start, end: end, docs: documents[start:end]})
	}

	pointIDs := make([]string, len(documents))
	var (
		mu          sync.Mutex
		stored      int
		chunkErrors []error
	)

	sem := make(chan struct{}, e.cfg.BulkParallelism)
	var wg sync.WaitGroup

	for _, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(c chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			vectors, embErr := embedder.EmbedDocuments(ctx, c.docs)
			if embErr != nil {
				mu.Lock()
				chunkErrors = append(chunkErrors, fmt.Errorf("embed chunk [%d:%d]: %w", c.start, c.end, embErr))
				mu.Unlock()
				return
			}
			if len(vectors) != len(c.docs) {
				mu.Lock()
				chunkErrors = append(chunkErrors, fmt.Errorf("embed chunk [%d:%d]: count mismatch: got %d, expected %d", c.start, c.end, len(vectors), len(c.docs)))
				mu.Unlock()
				return
			}

			points := make([]collection.Point, len(c.docs))
			ids := make([]string, len(c.docs))
			for i, doc := range c.docs {
				var meta map[string]any
				if metadataList != nil {
					meta = metadataList[c.start+i]
				}
				id := uuid.NewString()
				ids[i] = id
				points[i] = collection.Point{ID: id, Vector: vectors[i], Payload: collection.NewPayload(doc, meta)}
			}

			if upsertErr := e.adapter.UpsertPoints(ctx, collectionName, points); upsertErr != nil {
				mu.Lock()
				chunkErrors = append(chunkErrors, fmt.Errorf("upsert chunk [%d:%d]: %w", c.start, c.end, upsertErr))
				mu.Unlock()
				return
			}

			mu.Lock()
			for i, id := range ids {
				pointIDs[c.start+i] = id
			}
			stored += len(c.docs)
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	result := BulkResult{
		StoredCount:      stored,
		PointIDs:         pointIDs,
		ModelDisplayName: rc.Model.DisplayName(),
		FailedCount:      len(documents) - stored,
	}
	for _, cErr := range chunkErrors {
		result.Errors = append(result.Errors, cErr.Error())
	}
	return result, nil
}

// Find embeds the query and performs a similarity search. If the
// collection does not exist, it returns an empty result with
// NoSuchCollection set rather than creating it or returning an error.
func (e *Engine) Find(ctx context.Context, collectionName, query string, limit int, scoreThreshold float32) (FindResult, error) {
	if collectionName == "" {
		return FindResult{}, apperr.InvalidInput("collection", "must not be empty")
	}
	if strings.TrimSpace(query) == "" {
		return FindResult{}, apperr.InvalidInput("query", "must not be empty")
	}
	if limit <= 0 {
		limit = e.cfg.SearchDefaultLimit
	}
	if scoreThreshold < 0 {
		return FindResult{}, apperr.InvalidInput("score_threshold", "must be >= 0")
	}
	if scoreThreshold == 0 {
		scoreThreshold = e.cfg.SearchDefaultThreshold
	}

	rc, err := e.manager.Peek(ctx, collectionName)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNoSuchCollection {
			return FindResult{
				Query:            query,
				Collection:       collectionName,
				SearchParams:     SearchParams{Limit: limit, ScoreThreshold: scoreThreshold},
				Timestamp:        time.Now(),
				NoSuchCollection: true,
			}, nil
		}
		return FindResult{}, err
	}

	embedder, err := e.pool.Get(ctx, rc.Model)
	if err != nil {
		return FindResult{}, err
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return FindResult{}, apperr.Internal("embed query", err)
	}

	hits, err := e.adapter.Search(ctx, collectionName, backend.SearchQuery{
		VectorName:     rc.VectorName,
		Vector:         vector,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
	})
	if err != nil {
		return FindResult{}, err
	}

	for i := range hits {
		hits[i].VectorModel = rc.Model.DisplayName()
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].PointID < hits[j].PointID
	})

	return FindResult{
		Results:      hits,
		Query:        query,
		Collection:   collectionName,
		SearchParams: SearchParams{Limit: limit, ScoreThreshold: scoreThreshold},
		TotalFound:   len(hits),
		Timestamp:    time.Now(),
		VectorModel:  rc.Model.DisplayName(),
	}, nil
}

// GetPoint returns a single point's payload, read-only.
func (e *Engine) GetPoint(ctx context.Context, collectionName, pointID string) (collection.Point, error) {
	if collectionName == "" {
		return collection.Point{}, apperr.InvalidInput("collection", "must not be empty")
	}
	if pointID == "" {
		return collection.Point{}, apperr.InvalidInput("id", "must not be empty")
	}

	if _, err := e.manager.Peek(ctx, collectionName); err != nil {
		return collection.Point{}, err
	}

	points, err := e.adapter.RetrievePoints(ctx, collectionName, []string{pointID}, backend.RetrieveOptions{WithPayload: true, WithVector: false})
	if err != nil {
		return collection.Point{}, err
	}
	if len(points) == 0 {
		return collection.Point{}, apperr.PointNotFound(collectionName, pointID)
	}
	return points[0], nil
}

// UpdatePayload merges fields into one or more points' payloads. The
// merge itself is performed by the backend's own SetPayload semantics;
// the engine only validates inputs and resolves the collection.
func (e *Engine) UpdatePayload(ctx context.Context, collectionName string, pointIDs []string, payload map[string]any, key string) (UpdateResult, error) {
	if collectionName == "" {
		return UpdateResult{}, apperr.InvalidInput("collection", "must not be empty")
	}
	if len(pointIDs) == 0 {
		return UpdateResult{}, apperr.InvalidInput("point_ids", "must not be empty")
	}
	if payload == nil {
		return UpdateResult{}, apperr.InvalidInput("payload", "must not be nil")
	}

	if _, err := e.manager.Peek(ctx, collectionName); err != nil {
		return UpdateResult{}, err
	}

	if err := e.adapter.SetPayload(ctx, collectionName, pointIDs, collection.Payload(payload), key); err != nil {
		return UpdateResult{}, err
	}

	return UpdateResult{UpdatedCount: len(pointIDs)}, nil
}

// DeletePoints removes points by id. Idempotent: deleting an
// already-absent id is a no-op success.
func (e *Engine) DeletePoints(ctx context.Context, collectionName string, pointIDs []string) (DeleteResult, error) {
	if collectionName == "" {
		return DeleteResult{}, apperr.InvalidInput("collection", "must not be empty")
	}
	if len(pointIDs) == 0 {
		return DeleteResult{}, apperr.InvalidInput("point_ids", "must not be empty")
	}

	if _, err := e.manager.Peek(ctx, collectionName); err != nil {
		return DeleteResult{}, err
	}

	if err := e.adapter.DeletePoints(ctx, collectionName, pointIDs); err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{DeletedCount: len(pointIDs)}, nil
}

// ListCollections returns a summary of every backend collection.
func (e *Engine) ListCollections(ctx context.Context) ([]backend.CollectionSummary, error) {
	return e.adapter.ListCollections(ctx)
}

// CollectionInfo returns the detailed view of a single collection.
func (e *Engine) CollectionInfo(ctx context.Context, collectionName string) (backend.CollectionDetail, error) {
	if collectionName == "" {
		return backend.CollectionDetail{}, apperr.InvalidInput("collection", "must not be empty")
	}
	return e.adapter.GetCollection(ctx, collectionName)
}

// ModelMappings reports the resolver's configured mappings and the
// registry. Pure: no backend I/O.
func (e *Engine) ModelMappings() MappingsReport {
	var patterns []PatternRuleView
	for _, r := range e.mapping.Patterns() {
		patterns = append(patterns, PatternRuleView{Substring: r.Substring, ModelID: r.ModelID})
	}

	var models []ModelView
	for _, m := range e.registry.All() {
		models = append(models, ModelView{
			ModelID:     m.ModelID(),
			DisplayName: m.DisplayName(),
			Dimensions:  m.Dimensions(),
			Distance:    string(m.Distance()),
			Description: m.Description(),
		})
	}

	return MappingsReport{
		DefaultModelID: e.mapping.Default(),
		Exact:          e.mapping.Exact(),
		Patterns:       patterns,
		Models:         models,
	}
}
