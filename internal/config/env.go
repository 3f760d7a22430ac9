package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig mirrors AppConfig's surface as flat, envconfig-tagged
// fields. Maps and ordered rules aren't expressible directly in
// envconfig, so CollectionModelMap/CollectionPatternMap are encoded as
// comma-separated "key=value" strings and parsed by ToAppConfig.
type EnvConfig struct {
	Host               string `envconfig:"HOST" default:"0.0.0.0"`
	Port               int    `envconfig:"PORT" default:"8080"`
	DataDir            string `envconfig:"DATA_DIR"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat          string `envconfig:"LOG_FORMAT" default:"pretty"`
	APIKeys            string `envconfig:"API_KEYS"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"localhost:6334"`
	BackendAPIKey  string        `envconfig:"BACKEND_API_KEY"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`

	ModelsFile    string `envconfig:"MODELS_FILE"`
	LocalModelDir string `envconfig:"LOCAL_MODEL_DIR"`
	GPUEnabled    bool   `envconfig:"GPU_ENABLED" default:"false"`
	CloudBaseURL  string `envconfig:"CLOUD_BASE_URL"`
	CloudAPIKey   string `envconfig:"CLOUD_API_KEY"`

	DefaultCollection    string `envconfig:"DEFAULT_COLLECTION"`
	DefaultModelID       string `envconfig:"DEFAULT_MODEL_ID"`
	CollectionModelMap   string `envconfig:"COLLECTION_MODEL_MAP"`
	CollectionPatternMap string `envconfig:"COLLECTION_PATTERN_MAP"`

	AutoCreateCollections bool    `envconfig:"AUTO_CREATE_COLLECTIONS" default:"true"`
	EnableQuantization    bool    `envconfig:"ENABLE_QUANTIZATION" default:"true"`
	QuantizationQuantile  float64 `envconfig:"QUANTIZATION_QUANTILE" default:"0.99"`
	QuantizationAlwaysRAM bool    `envconfig:"QUANTIZATION_ALWAYS_RAM" default:"false"`
	HNSWEfConstruct       int     `envconfig:"HNSW_EF_CONSTRUCT" default:"100"`
	HNSWM                 int     `envconfig:"HNSW_M" default:"16"`

	SearchDefaultLimit     int     `envconfig:"SEARCH_DEFAULT_LIMIT" default:"10"`
	SearchDefaultThreshold float64 `envconfig:"SEARCH_DEFAULT_THRESHOLD" default:"0"`
	BulkBatchSize          int     `envconfig:"BULK_BATCH_SIZE" default:"100"`
	BulkParallelism        int     `envconfig:"BULK_PARALLELISM" default:"4"`
}

// LoadFromEnv populates an EnvConfig from VECTORGATE_-prefixed
// environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("VECTORGATE")
}

// LoadFromEnvWithPrefix populates an EnvConfig from environment
// variables under the given prefix.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("config: load environment: %w", err)
	}
	return cfg, nil
}

// ToAppConfig converts an EnvConfig into an AppConfig.
func (e EnvConfig) ToAppConfig() (AppConfig, error) {
	modelMap, err := parseKeyValueList(e.CollectionModelMap)
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: collection_model_map: %w", err)
	}

	patterns, err := parsePatternList(e.CollectionPatternMap)
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: collection_pattern_map: %w", err)
	}

	dataDir := e.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	cfg := NewAppConfig().Apply(
		WithHost(e.Host),
		WithPort(e.Port),
		WithDataDir(dataDir),
		WithLogLevel(e.LogLevel),
		WithLogFormat(parseLogFormat(e.LogFormat)),
		WithAPIKeys(ParseAPIKeys(e.APIKeys)),
		WithCORSAllowedOrigins(ParseCommaList(e.CORSAllowedOrigins)),
		WithBackendURL(e.BackendURL),
		WithBackendAPIKey(e.BackendAPIKey),
		WithBackendTimeout(e.BackendTimeout),
		WithModelsFile(e.ModelsFile),
		WithLocalModelDir(e.LocalModelDir),
		WithGPUEnabled(e.GPUEnabled),
		WithCloudBaseURL(e.CloudBaseURL),
		WithCloudAPIKey(e.CloudAPIKey),
		WithDefaultCollection(e.DefaultCollection),
		WithDefaultModelID(e.DefaultModelID),
		WithCollectionModelMap(modelMap),
		WithCollectionPatternMap(patterns),
		WithAutoCreateCollections(e.AutoCreateCollections),
		WithEnableQuantization(e.EnableQuantization),
		WithQuantizationQuantile(e.QuantizationQuantile),
		WithQuantizationAlwaysRAM(e.QuantizationAlwaysRAM),
		WithHNSWParams(e.HNSWEfConstruct, e.HNSWM),
		WithSearchDefaults(e.SearchDefaultLimit, float32(e.SearchDefaultThreshold)),
		WithBulkDefaults(e.BulkBatchSize, e.BulkParallelism),
	)
	return cfg, nil
}

// Normalize returns e unchanged. It exists so LoadConfig's conversion
// pipeline reads the same whether or not a given load path needs
// post-processing; today there is none.
func (e EnvConfig) Normalize() EnvConfig { return e }

func parseLogFormat(s string) LogFormat {
	if strings.EqualFold(s, "json") {
		return LogFormatJSON
	}
	return LogFormatPretty
}

// parseKeyValueList parses a comma-separated "key=value" list, as used
// for COLLECTION_MODEL_MAP. The returned map has no defined iteration
// order; callers that need evaluation order (pattern rules) must use
// parsePatternList instead, which preserves the comma-split order.
func parseKeyValueList(s string) (map[string]string, error) {
	out := map[string]string{}
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q, expected key=value", pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// parsePatternList parses COLLECTION_PATTERN_MAP's comma-separated
// "substring=model_id" list into an ordered []PatternMapping, preserving
// the order rules were listed in so first-match-wins resolution is
// deterministic across process restarts.
func parsePatternList(s string) ([]PatternMapping, error) {
	if s == "" {
		return []PatternMapping{}, nil
	}
	pairs := strings.Split(s, ",")
	out := make([]PatternMapping, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		substring, modelID, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q, expected substring=model_id", pair)
		}
		out = append(out, PatternMapping{
			Substring: strings.TrimSpace(substring),
			ModelID:   strings.TrimSpace(modelID),
		})
	}
	return out, nil
}
