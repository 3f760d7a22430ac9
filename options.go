package vectorgate

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vectorgate/vectorgate/domain/collection"
	"github.com/vectorgate/vectorgate/domain/registry"
	"github.com/vectorgate/vectorgate/domain/resolver"
	"github.com/vectorgate/vectorgate/infrastructure/embedder"
)

// modelSource records how a registered model's embeddings are actually
// produced: in-process via ONNX Runtime, or against a hosted
// OpenAI-compatible endpoint.
type modelSource struct {
	local      bool
	cacheDir   string
	gpu        bool
	cloud      embedder.CloudConfig
	cloudModel string
}

// gatewayConfig holds configuration for Gateway construction. Use
// newGatewayConfig() to create one with sane defaults.
type gatewayConfig struct {
	models   []registry.ModelDescriptor
	sources  map[string]modelSource
	exact    map[string]string
	patterns []resolver.PatternRule
	defaultModelID string

	backendAddr    string
	backendAPIKey  string
	backendTimeout time.Duration

	autoCreate   bool
	hnsw         collection.HNSWParams
	quantization collection.Quantization

	searchDefaultLimit     int
	searchDefaultThreshold float32
	defaultBatchSize       int
	bulkParallelism        int

	logger  *slog.Logger
	closers []io.Closer
}

func newGatewayConfig() *gatewayConfig {
	return &gatewayConfig{
		sources:      make(map[string]modelSource),
		exact:        make(map[string]string),
		backendAddr:  "localhost:6334",
		autoCreate:   true,
		hnsw:         collection.HNSWParams{EfConstruct: 100, M: 16},
		quantization: collection.Quantization{Enabled: true, Quantile: 0.99},
	}
}

// Option configures the Gateway.
type Option func(*gatewayConfig) error

// WithLocalModel registers model as served by the in-process ONNX Runtime
// embedder, looking for model files under cacheDir. gpu requests the GPU
// execution provider, falling back to CPU if unavailable.
func WithLocalModel(model registry.ModelDescriptor, cacheDir string, gpu bool) Option {
	return func(c *gatewayConfig) error {
		c.models = append(c.models, model)
		c.sources[model.ModelID()] = modelSource{local: true, cacheDir: cacheDir, gpu: gpu}
		return nil
	}
}

// WithCloudModel registers model as served by a hosted OpenAI-compatible
// embeddings endpoint. providerModelName is the model name the provider's
// API itself expects, which may differ from model.ModelID().
func WithCloudModel(model registry.ModelDescriptor, cfg embedder.CloudConfig, providerModelName string) Option {
	return func(c *gatewayConfig) error {
		c.models = append(c.models, model)
		c.sources[model.ModelID()] = modelSource{cloud: cfg, cloudModel: providerModelName}
		return nil
	}
}

// WithExactMapping binds collectionName to modelID exactly.
func WithExactMapping(collectionName, modelID string) Option {
	return func(c *gatewayConfig) error {
		c.exact[collectionName] = modelID
		return nil
	}
}

// WithPatternMapping appends a substring rule: any collection name
// containing substring resolves to modelID, unless an exact mapping
// already claimed it. Rules are tried in the order they were added.
func WithPatternMapping(substring, modelID string) Option {
	return func(c *gatewayConfig) error {
		c.patterns = append(c.patterns, resolver.PatternRule{Substring: substring, ModelID: modelID})
		return nil
	}
}

// WithDefaultModel sets the model_id used when a collection name matches
// neither an exact nor a pattern mapping. Required.
func WithDefaultModel(modelID string) Option {
	return func(c *gatewayConfig) error {
		c.defaultModelID = modelID
		return nil
	}
}

// WithBackendAddr sets the Qdrant gRPC address. Defaults to
// localhost:6334.
func WithBackendAddr(addr string) Option {
	return func(c *gatewayConfig) error {
		c.backendAddr = addr
		return nil
	}
}

// WithBackendAPIKey sets the Qdrant api-key header, for deployments that
// require one.
func WithBackendAPIKey(key string) Option {
	return func(c *gatewayConfig) error {
		c.backendAPIKey = key
		return nil
	}
}

// WithBackendTimeout bounds every individual backend RPC. Defaults to 30s.
func WithBackendTimeout(d time.Duration) Option {
	return func(c *gatewayConfig) error {
		c.backendTimeout = d
		return nil
	}
}

// WithAutoCreateCollections controls whether Store/BulkStore may create a
// missing collection. Defaults to true. When false, Store and BulkStore
// against a missing collection fail with NoSuchCollection, the same as
// the read operations always do.
func WithAutoCreateCollections(enabled bool) Option {
	return func(c *gatewayConfig) error {
		c.autoCreate = enabled
		return nil
	}
}

// WithHNSWParams sets the HNSW index build parameters applied to every
// collection this process creates. Defaults to ef_construct=100, m=16.
func WithHNSWParams(efConstruct, m int) Option {
	return func(c *gatewayConfig) error {
		c.hnsw = collection.HNSWParams{EfConstruct: efConstruct, M: m}
		return nil
	}
}

// WithQuantization enables or disables scalar int8 quantization on
// collection creation. Defaults to enabled, quantile 0.99, always_ram
// false.
func WithQuantization(enabled bool, quantile float64, alwaysRAM bool) Option {
	return func(c *gatewayConfig) error {
		c.quantization = collection.Quantization{Enabled: enabled, Quantile: quantile, AlwaysRAM: alwaysRAM}
		return nil
	}
}

// WithSearchDefaults sets the limit and score threshold applied to find
// when the caller doesn't specify one. Defaults to limit=10, threshold=0.
func WithSearchDefaults(limit int, threshold float32) Option {
	return func(c *gatewayConfig) error {
		c.searchDefaultLimit = limit
		c.searchDefaultThreshold = threshold
		return nil
	}
}

// WithBulkDefaults sets bulk_store's default chunk size and the number of
// chunks processed concurrently. Defaults to batch_size=100,
// parallelism=4.
func WithBulkDefaults(batchSize, parallelism int) Option {
	return func(c *gatewayConfig) error {
		c.defaultBatchSize = batchSize
		c.bulkParallelism = parallelism
		return nil
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *gatewayConfig) error {
		c.logger = l
		return nil
	}
}

// WithCloser registers a resource to be closed when the Gateway shuts
// down, after the embedder pool and backend adapter.
func WithCloser(closer io.Closer) Option {
	return func(c *gatewayConfig) error {
		c.closers = append(c.closers, closer)
		return nil
	}
}

func (c *gatewayConfig) validate() error {
	if c.defaultModelID == "" {
		return fmt.Errorf("vectorgate: WithDefaultModel is required")
	}
	if len(c.models) == 0 {
		return fmt.Errorf("vectorgate: at least one model must be registered (WithLocalModel/WithCloudModel)")
	}
	return nil
}
