// Package backend defines the thin interface the core consumes from the
// vector database: collection CRUD, point upsert/search/retrieve, payload
// merge, and delete. Any implementation satisfying this contract — Qdrant
// or otherwise — is acceptable to the Query/Store Engine.
package backend

import (
	"context"
	"errors"

	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/registry"
)

// ErrAlreadyExists is returned by CreateCollection when the backend lost a
// create race to another caller. The Collection Manager treats this as
// success and re-verifies geometry rather than failing the request.
var ErrAlreadyExists = errors.New("backend: collection already exists")

// CollectionStatus mirrors the backend's own reported health for a
// collection (segment optimization in progress, degraded, etc).
type CollectionStatus string

// Reported collection statuses.
const (
	StatusGreen  CollectionStatus = "green"
	StatusYellow CollectionStatus = "yellow"
	StatusRed    CollectionStatus = "red"
)

// CollectionSummary is the per-collection row returned by list_collections.
type CollectionSummary struct {
	Name                string            `json:"name"`
	PointCount          int64             `json:"point_count"`
	Dimensions          int               `json:"dimensions"`
	Distance            registry.Distance `json:"distance"`
	VectorName          string            `json:"vector_name"`
	Status              CollectionStatus  `json:"status"`
	QuantizationEnabled bool              `json:"quantization_enabled"`
}

// CollectionDetail is the richer view returned by collection_info.
type CollectionDetail struct {
	CollectionSummary
	HNSW            collection.HNSWParams `json:"hnsw"`
	SegmentCount    int                   `json:"segment_count"`
	OptimizerStatus string                `json:"optimizer_status,omitempty"`
}

// RetrieveOptions controls how much of a point retrieve_points returns.
type RetrieveOptions struct {
	WithPayload bool
	WithVector  bool
}

// SearchQuery is the parameters for a single similarity search.
type SearchQuery struct {
	VectorName     string
	Vector         []float32
	Limit          int
	ScoreThreshold float32
}

// Adapter is the contract the engine consumes from the vector database.
// Every method returns apperr-wrapped errors:
// BackendUnavailable for transport failures, NoSuchCollection/PointNotFound
// for lookup misses.
type Adapter interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, spec collection.VectorSpec) error
	GetCollection(ctx context.Context, name string) (CollectionDetail, error)
	ListCollections(ctx context.Context) ([]CollectionSummary, error)

	UpsertPoints(ctx context.Context, collectionName string, points []collection.Point) error
	Search(ctx context.Context, collectionName string, query SearchQuery) ([]collection.SearchResult, error)
	RetrievePoints(ctx context.Context, collectionName string, ids []string, opts RetrieveOptions) ([]collection.Point, error)
	SetPayload(ctx context.Context, collectionName string, ids []string, payload collection.Payload, key string) error
	DeletePoints(ctx context.Context, collectionName string, ids []string) error
}
