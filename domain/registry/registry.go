// Package registry holds the catalogue of embedding models known to the
// gateway. The catalogue is immutable once built: it is assembled at
// process init from configuration and never mutated afterward.
package registry

import "fmt"

// Distance identifies the similarity metric a model's vector space uses.
type Distance string

// Supported distance metrics.
const (
	DistanceCosine    Distance = "cosine"
	DistanceDot       Distance = "dot"
	DistanceEuclidean Distance = "euclidean"
)

// ModelDescriptor describes one embedding model the gateway can resolve
// collections to. Every field is fixed at construction.
type ModelDescriptor struct {
	modelID     string
	displayName string
	dimensions  int
	distance    Distance
	description string
}

// NewModelDescriptor validates and builds a ModelDescriptor.
func NewModelDescriptor(modelID, displayName string, dimensions int, distance Distance, description string) (ModelDescriptor, error) {
	if modelID == "" {
		return ModelDescriptor{}, fmt.Errorf("registry: model_id must not be empty")
	}
	if displayName == "" {
		return ModelDescriptor{}, fmt.Errorf("registry: display_name must not be empty for model %q", modelID)
	}
	if dimensions <= 0 {
		return ModelDescriptor{}, fmt.Errorf("registry: dimensions must be positive for model %q, got %d", modelID, dimensions)
	}
	switch distance {
	case DistanceCosine, DistanceDot, DistanceEuclidean:
	default:
		return ModelDescriptor{}, fmt.Errorf("registry: unknown distance %q for model %q", distance, modelID)
	}
	return ModelDescriptor{
		modelID:     modelID,
		displayName: displayName,
		dimensions:  dimensions,
		distance:    distance,
		description: description,
	}, nil
}

// ModelID returns the model's unique identifier.
func (m ModelDescriptor) ModelID() string { return m.modelID }

// DisplayName returns the human-readable name used to derive a
// collection's vector_name.
func (m ModelDescriptor) DisplayName() string { return m.displayName }

// Dimensions returns the fixed length of vectors this model produces.
func (m ModelDescriptor) Dimensions() int { return m.dimensions }

// Distance returns the model's similarity metric.
func (m ModelDescriptor) Distance() Distance { return m.distance }

// Description returns the free-text description of the model.
func (m ModelDescriptor) Description() string { return m.description }

// Registry is an immutable, validated catalogue of ModelDescriptors keyed
// by model_id.
type Registry struct {
	models map[string]ModelDescriptor
	order  []string
}

// New builds a Registry from the given descriptors. Duplicate model_ids
// are rejected; construction fails closed rather than silently picking one.
func New(models ...ModelDescriptor) (*Registry, error) {
	r := &Registry{models: make(map[string]ModelDescriptor, len(models))}
	for _, m := range models {
		if _, exists := r.models[m.modelID]; exists {
			return nil, fmt.Errorf("registry: duplicate model_id %q", m.modelID)
		}
		r.models[m.modelID] = m
		r.order = append(r.order, m.modelID)
	}
	return r, nil
}

// Get returns the descriptor for modelID, and whether it was found.
func (r *Registry) Get(modelID string) (ModelDescriptor, bool) {
	m, ok := r.models[modelID]
	return m, ok
}

// MustGet returns the descriptor for modelID and panics if it is absent.
// Used only during init-time validation where absence is a programming
// error, never on a request path.
func (r *Registry) MustGet(modelID string) ModelDescriptor {
	m, ok := r.models[modelID]
	if !ok {
		panic(fmt.Sprintf("registry: model_id %q not found", modelID))
	}
	return m
}

// All returns every descriptor, in registration order.
func (r *Registry) All() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Validate confirms every model_id in ids is present in the registry.
// Intended to be called once at startup against the resolver's mapping
// table; failure means refuse to start.
func (r *Registry) Validate(ids ...string) error {
	for _, id := range ids {
		if _, ok := r.models[id]; !ok {
			return fmt.Errorf("registry: mapping references unknown model_id %q", id)
		}
	}
	return nil
}
