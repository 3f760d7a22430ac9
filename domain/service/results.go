package service

import (
	"time"

	"github.com/vectorgate/vectorgate/domain/backend"
	"github.com/vectorgate/vectorgate/domain/collection"
)

// StoreResult is returned by Store.
type StoreResult struct {
	PointID          string `json:"point_id"`
	ModelDisplayName string `json:"model_display_name"`
	Dimensions       int    `json:"dimensions"`
}

// BulkResult is returned by BulkStore. PointIDs is positional with respect
// to the input documents; entries for chunks that failed are
// the empty string.
type BulkResult struct {
	StoredCount      int      `json:"stored_count"`
	PointIDs         []string `json:"point_ids"`
	ModelDisplayName string   `json:"model_display_name"`
	FailedCount      int      `json:"failed_count"`
	Errors           []string `json:"errors,omitempty"`
}

// SearchParams echoes the effective parameters a find call ran with.
type SearchParams struct {
	Limit          int     `json:"limit"`
	ScoreThreshold float32 `json:"score_threshold"`
}

// FindResult is returned by Find. When NoSuchCollection is true, Results is
// empty and no embedding or search was performed — find never creates a
// collection on read.
type FindResult struct {
	Results          []collection.SearchResult `json:"results"`
	Query            string                    `json:"query"`
	Collection       string                    `json:"collection"`
	SearchParams     SearchParams              `json:"search_params"`
	TotalFound       int                       `json:"total_found"`
	Timestamp        time.Time                 `json:"timestamp"`
	VectorModel      string                    `json:"vector_model,omitempty"`
	NoSuchCollection bool                      `json:"no_such_collection,omitempty"`
}

// UpdateResult is returned by UpdatePayload.
type UpdateResult struct {
	UpdatedCount int `json:"updated_count"`
}

// DeleteResult is returned by DeletePoints.
type DeleteResult struct {
	DeletedCount int `json:"deleted_count"`
}

// MappingsReport is returned by ModelMappings: the resolver's configured
// mappings plus the registry, for introspection.
type MappingsReport struct {
	DefaultModelID string            `json:"default_model_id"`
	Exact          map[string]string `json:"exact_mappings"`
	Patterns       []PatternRuleView `json:"pattern_mappings"`
	Models         []ModelView       `json:"models"`
}

// PatternRuleView is the read-only projection of a resolver.PatternRule.
type PatternRuleView struct {
	Substring string `json:"substring"`
	ModelID   string `json:"model_id"`
}

// ModelView is the read-only projection of a registry.ModelDescriptor.
type ModelView struct {
	ModelID     string `json:"model_id"`
	DisplayName string `json:"display_name"`
	Dimensions  int    `json:"dimensions"`
	Distance    string `json:"distance"`
	Description string `json:"description,omitempty"`
}

// CollectionSummaryView re-exports backend.CollectionSummary for callers
// that only import the service package.
type CollectionSummaryView = backend.CollectionSummary

// CollectionDetailView re-exports backend.CollectionDetail.
type CollectionDetailView = backend.CollectionDetail
