// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                   = "0.0.0.0"
	DefaultPort                   = 8080
	DefaultLogLevel               = "INFO"
	DefaultBackendAddr            = "localhost:6334"
	DefaultBackendTimeout         = 30 * time.Second
	DefaultAutoCreateCollections  = true
	DefaultEnableQuantization     = true
	DefaultQuantizationQuantile   = 0.99
	DefaultHNSWEfConstruct        = 100
	DefaultHNSWM                  = 16
	DefaultSearchLimit            = 10
	DefaultSearchThreshold        = 0.0
	DefaultBulkBatchSize          = 100
	DefaultBulkParallelism        = 4
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// PatternMapping is one (substring, model_id) rule from
// collection_pattern_map, evaluated in the order configured.
type PatternMapping struct {
	Substring string
	ModelID   string
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dataDir            string
	logLevel           string
	logFormat          LogFormat
	apiKeys            []string
	corsAllowedOrigins []string

	backendURL     string
	backendAPIKey  string
	backendTimeout time.Duration

	modelsFile    string
	localModelDir string
	gpuEnabled    bool
	cloudBaseURL  string
	cloudAPIKey   string

	defaultCollection    string
	defaultModelID       string
	collectionModelMap   map[string]string
	collectionPatternMap []PatternMapping

	autoCreateCollections bool
	enableQuantization    bool
	quantizationQuantile  float64
	quantizationAlwaysRAM bool
	hnswEfConstruct       int
	hnswM                 int

	searchDefaultLimit     int
	searchDefaultThreshold float32
	bulkBatchSize          int
	bulkParallelism        int
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vectorgate"
	}
	return filepath.Join(home, ".vectorgate")
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:                  DefaultHost,
		port:                  DefaultPort,
		dataDir:               dataDir,
		logLevel:              DefaultLogLevel,
		logFormat:             LogFormatPretty,
		apiKeys:               []string{},
		corsAllowedOrigins:    []string{"*"},
		backendURL:            DefaultBackendAddr,
		backendTimeout:        DefaultBackendTimeout,
		localModelDir:         filepath.Join(dataDir, "models"),
		collectionModelMap:    map[string]string{},
		collectionPatternMap:  []PatternMapping{},
		autoCreateCollections: DefaultAutoCreateCollections,
		enableQuantization:    DefaultEnableQuantization,
		quantizationQuantile:  DefaultQuantizationQuantile,
		hnswEfConstruct:       DefaultHNSWEfConstruct,
		hnswM:                 DefaultHNSWM,
		searchDefaultLimit:    DefaultSearchLimit,
		searchDefaultThreshold: DefaultSearchThreshold,
		bulkBatchSize:         DefaultBulkBatchSize,
		bulkParallelism:       DefaultBulkParallelism,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys, used to gate mutating HTTP
// requests and authenticate MCP clients.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// CORSAllowedOrigins returns the origins allowed to call the HTTP API and
// mounted MCP endpoint from a browser.
func (c AppConfig) CORSAllowedOrigins() []string {
	out := make([]string, len(c.corsAllowedOrigins))
	copy(out, c.corsAllowedOrigins)
	return out
}

// BackendURL returns the Qdrant gRPC address.
func (c AppConfig) BackendURL() string { return c.backendURL }

// BackendAPIKey returns the Qdrant api-key credential, if any.
func (c AppConfig) BackendAPIKey() string { return c.backendAPIKey }

// BackendTimeout bounds every individual backend RPC.
func (c AppConfig) BackendTimeout() time.Duration { return c.backendTimeout }

// ModelsFile returns the path to the YAML catalogue describing every
// embedding model this process registers, or "" if unset (in which case
// the caller is expected to register models programmatically).
func (c AppConfig) ModelsFile() string { return c.modelsFile }

// LocalModelDir returns the directory local embedding runtimes look for
// model files under.
func (c AppConfig) LocalModelDir() string { return c.localModelDir }

// GPUEnabled returns whether local embedders should attempt the GPU
// execution provider before falling back to CPU.
func (c AppConfig) GPUEnabled() bool { return c.gpuEnabled }

// CloudBaseURL returns the base URL for cloud (OpenAI-compatible)
// embedding models, or "" to use the provider default.
func (c AppConfig) CloudBaseURL() string { return c.cloudBaseURL }

// CloudAPIKey returns the credential for cloud embedding models.
func (c AppConfig) CloudAPIKey() string { return c.cloudAPIKey }

// DefaultCollection returns the collection name used when a transport
// tool call omits one, or "" if that convenience is disabled.
func (c AppConfig) DefaultCollection() string { return c.defaultCollection }

// DefaultModelID returns the resolver's fallback model_id.
func (c AppConfig) DefaultModelID() string { return c.defaultModelID }

// CollectionModelMap returns the explicit collection-name to model_id
// mappings.
func (c AppConfig) CollectionModelMap() map[string]string {
	out := make(map[string]string, len(c.collectionModelMap))
	for k, v := range c.collectionModelMap {
		out[k] = v
	}
	return out
}

// CollectionPatternMap returns the ordered substring-rule mappings.
func (c AppConfig) CollectionPatternMap() []PatternMapping {
	out := make([]PatternMapping, len(c.collectionPatternMap))
	copy(out, c.collectionPatternMap)
	return out
}

// AutoCreateCollections returns whether store/bulk_store may create a
// missing collection.
func (c AppConfig) AutoCreateCollections() bool { return c.autoCreateCollections }

// EnableQuantization returns whether scalar quantization is applied on
// collection creation.
func (c AppConfig) EnableQuantization() bool { return c.enableQuantization }

// QuantizationQuantile returns the scalar quantization quantile.
func (c AppConfig) QuantizationQuantile() float64 { return c.quantizationQuantile }

// QuantizationAlwaysRAM returns whether quantized vectors are pinned to
// RAM.
func (c AppConfig) QuantizationAlwaysRAM() bool { return c.quantizationAlwaysRAM }

// HNSWEfConstruct returns the HNSW ef_construct build parameter.
func (c AppConfig) HNSWEfConstruct() int { return c.hnswEfConstruct }

// HNSWM returns the HNSW m build parameter.
func (c AppConfig) HNSWM() int { return c.hnswM }

// SearchDefaultLimit returns the default find() result limit.
func (c AppConfig) SearchDefaultLimit() int { return c.searchDefaultLimit }

// SearchDefaultThreshold returns the default find() score threshold.
func (c AppConfig) SearchDefaultThreshold() float32 { return c.searchDefaultThreshold }

// BulkBatchSize returns the default bulk_store chunk size.
func (c AppConfig) BulkBatchSize() int { return c.bulkBatchSize }

// BulkParallelism returns the number of bulk_store chunks processed
// concurrently.
func (c AppConfig) BulkParallelism() int { return c.bulkParallelism }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		if c.localModelDir == "" || strings.HasSuffix(c.localModelDir, "/models") {
			c.localModelDir = filepath.Join(dir, "models")
		}
	}
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithCORSAllowedOrigins sets the origins allowed to call the HTTP API from
// a browser. An empty list disables CORS headers entirely.
func WithCORSAllowedOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsAllowedOrigins = make([]string, len(origins))
		copy(c.corsAllowedOrigins, origins)
	}
}

// WithBackendURL sets the Qdrant gRPC address.
func WithBackendURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.backendURL = url }
}

// WithBackendAPIKey sets the Qdrant api-key credential.
func WithBackendAPIKey(key string) AppConfigOption {
	return func(c *AppConfig) { c.backendAPIKey = key }
}

// WithBackendTimeout sets the per-RPC backend timeout.
func WithBackendTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.backendTimeout = d }
}

// WithModelsFile sets the path to the YAML model catalogue.
func WithModelsFile(path string) AppConfigOption {
	return func(c *AppConfig) { c.modelsFile = path }
}

// WithLocalModelDir sets the directory local embedding runtimes look
// for model files under.
func WithLocalModelDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.localModelDir = dir }
}

// WithGPUEnabled sets whether local embedders attempt the GPU execution
// provider first.
func WithGPUEnabled(enabled bool) AppConfigOption {
	return func(c *AppConfig) { c.gpuEnabled = enabled }
}

// WithCloudBaseURL sets the base URL for cloud embedding models.
func WithCloudBaseURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.cloudBaseURL = url }
}

// WithCloudAPIKey sets the credential for cloud embedding models.
func WithCloudAPIKey(key string) AppConfigOption {
	return func(c *AppConfig) { c.cloudAPIKey = key }
}

// WithDefaultCollection sets the collection name used when a transport
// call omits one.
func WithDefaultCollection(name string) AppConfigOption {
	return func(c *AppConfig) { c.defaultCollection = name }
}

// WithDefaultModelID sets the resolver's fallback model_id.
func WithDefaultModelID(modelID string) AppConfigOption {
	return func(c *AppConfig) { c.defaultModelID = modelID }
}

// WithCollectionModelMap sets the explicit collection-name to model_id
// mappings.
func WithCollectionModelMap(m map[string]string) AppConfigOption {
	return func(c *AppConfig) {
		c.collectionModelMap = make(map[string]string, len(m))
		for k, v := range m {
			c.collectionModelMap[k] = v
		}
	}
}

// WithCollectionPatternMap sets the ordered substring-rule mappings.
func WithCollectionPatternMap(rules []PatternMapping) AppConfigOption {
	return func(c *AppConfig) {
		c.collectionPatternMap = make([]PatternMapping, len(rules))
		copy(c.collectionPatternMap, rules)
	}
}

// WithAutoCreateCollections sets whether store/bulk_store may create a
// missing collection.
func WithAutoCreateCollections(enabled bool) AppConfigOption {
	return func(c *AppConfig) { c.autoCreateCollections = enabled }
}

// WithEnableQuantization sets whether scalar quantization is applied on
// collection creation.
func WithEnableQuantization(enabled bool) AppConfigOption {
	return func(c *AppConfig) { c.enableQuantization = enabled }
}

// WithQuantizationQuantile sets the scalar quantization quantile.
func WithQuantizationQuantile(q float64) AppConfigOption {
	return func(c *AppConfig) { c.quantizationQuantile = q }
}

// WithQuantizationAlwaysRAM sets whether quantized vectors are pinned
// to RAM.
func WithQuantizationAlwaysRAM(always bool) AppConfigOption {
	return func(c *AppConfig) { c.quantizationAlwaysRAM = always }
}

// WithHNSWParams sets the HNSW index build parameters.
func WithHNSWParams(efConstruct, m int) AppConfigOption {
	return func(c *AppConfig) { c.hnswEfConstruct, c.hnswM = efConstruct, m }
}

// WithSearchDefaults sets the default find() limit and score threshold.
func WithSearchDefaults(limit int, threshold float32) AppConfigOption {
	return func(c *AppConfig) { c.searchDefaultLimit, c.searchDefaultThreshold = limit, threshold }
}

// WithBulkDefaults sets the default bulk_store chunk size and
// parallelism.
func WithBulkDefaults(batchSize, parallelism int) AppConfigOption {
	return func(c *AppConfig) { c.bulkBatchSize, c.bulkParallelism = batchSize, parallelism }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied. This
// copies all fields from the receiver and then applies the options,
// making it safe to use when adding new fields to AppConfig.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Sensitive values like API keys are masked or shown as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("backend_url", c.backendURL),
		slog.Bool("backend_api_key_set", c.backendAPIKey != ""),
		slog.String("default_model_id", c.defaultModelID),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.Bool("auto_create_collections", c.autoCreateCollections),
		slog.Bool("enable_quantization", c.enableQuantization),
		slog.Bool("gpu_enabled", c.gpuEnabled),
	}
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	return ParseCommaList(s)
}

// ParseCommaList splits a comma-separated string into trimmed, non-empty
// elements. Used for both API_KEYS and CORS_ALLOWED_ORIGINS.
func ParseCommaList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
