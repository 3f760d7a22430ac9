// Package collection holds the value types that flow between the Query/Store
// Engine and the Backend Adapter: points, payloads, search results, and the
// per-collection vector geometry and state machine.
package collection

import (
	"strings"

	"github.com/vectorgate/vectorgate/domain/registry"
)

// HNSWParams are the HNSW index build-time knobs forwarded opaquely to the
// backend on collection creation.
type HNSWParams struct {
	EfConstruct int `json:"ef_construct"`
	M           int `json:"m"`
}

// Quantization describes the scalar quantization applied on collection
// creation. The parameters are opaque configuration the core never
// interprets.
type Quantization struct {
	Enabled   bool
	Quantile  float64
	AlwaysRAM bool
}

// VectorSpec is the vector geometry a collection must be created with
// (or verified against) for a given model.
type VectorSpec struct {
	VectorName   string
	Size         int
	Distance     registry.Distance
	HNSW         HNSWParams
	Quantization Quantization
}

// VectorName derives the stable slug a model's display name is encoded as
// in the backend's named-vector slot. This is a persisted format: once a
// collection exists with a given vector_name, the derivation must never
// change for that model without an operator-level migration.
//
// Rule: lowercase, collapse every run of non-[a-z0-9] characters to a
// single underscore, trim leading/trailing underscores.
func VectorName(displayName string) string {
	lower := strings.ToLower(displayName)
	var b strings.Builder
	pendingSep := false
	for _, r := range lower {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
		} else {
			pendingSep = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// Payload is the arbitrary JSON-compatible map attached to a point. The
// conventional top-level keys are "document" (string) and "metadata"
// (map); other keys are permitted and preserved but discouraged.
type Payload map[string]any

// NewPayload builds a Payload with the conventional document/metadata
// shape. metadata may be nil, in which case an empty map is stored so
// callers always observe {} rather than a missing key.
func NewPayload(document string, metadata map[string]any) Payload {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Payload{
		"document": document,
		"metadata": metadata,
	}
}

// Document returns the conventional "document" field, or "" if absent or
// not a string (payloads produced by older or external writers are
// accepted without being broken).
func (p Payload) Document() string {
	if v, ok := p["document"].(string); ok {
		return v
	}
	return ""
}

// Metadata returns the conventional "metadata" field, or an empty map if
// absent or not a map.
func (p Payload) Metadata() map[string]any {
	if v, ok := p["metadata"].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// Point is a single vector entry in a collection: an id, its vector, and
// its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult is one ranked hit returned by find.
type SearchResult struct {
	PointID     string         `json:"point_id"`
	Score       float32        `json:"score"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	VectorModel string         `json:"vector_model,omitempty"`
}

// ResolvedCollection is what the Collection Manager hands back once a
// collection is confirmed ready for use under its bound model.
type ResolvedCollection struct {
	Name       string
	VectorName string
	Model      registry.ModelDescriptor
}

// State is a per-collection lifecycle state, tracked in-process by the
// Collection Manager.
type State int

// Collection states. Mismatched is terminal for the process: every
// subsequent operation on that collection fails fast without calling the
// backend.
const (
	StateUnknown State = iota
	StateEnsuring
	StateReady
	StateMismatched
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateEnsuring:
		return "ensuring"
	case StateReady:
		return "ready"
	case StateMismatched:
		return "mismatched"
	default:
		return "invalid"
	}
}
