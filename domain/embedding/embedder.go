// Package embedding defines the Embedder capability the core depends on
// and the Pool that lazily constructs and shares one Embedder per model_id
// across the process.
package embedding

import "context"

// Embedder owns a loaded model runtime and turns batches of text into
// batches of vectors. Document- and query-embedding are kept distinct in
// the interface even where a given runtime treats them identically, for
// forward compatibility with models that apply query-specific prefixes.
type Embedder interface {
	// EmbedDocuments embeds a batch of documents. An empty batch returns
	// an empty result with no I/O.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// ModelID returns the model_id this embedder was constructed for.
	ModelID() string

	// Dimensions returns the fixed vector length this embedder produces.
	Dimensions() int

	// ActiveProviders returns the ordered list of execution providers
	// negotiated at construction (e.g. ["cuda", "cpu"] or ["cpu"]),
	// recorded for observability.
	ActiveProviders() []string

	// Ready reports whether the underlying runtime finished construction
	// successfully.
	Ready() bool

	// Close releases any resources held by the runtime.
	Close() error
}
