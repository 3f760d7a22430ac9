package config

import (
	"testing"
	"time"
)

func TestDefaultConstants(t *testing.T) {
	if DefaultHost != "0.0.0.0" {
		t.Errorf("DefaultHost = %v, want '0.0.0.0'", DefaultHost)
	}
	if DefaultPort != 8080 {
		t.Errorf("DefaultPort = %v, want 8080", DefaultPort)
	}
	if DefaultLogLevel != "INFO" {
		t.Errorf("DefaultLogLevel = %v, want 'INFO'", DefaultLogLevel)
	}
	if DefaultBackendAddr != "localhost:6334" {
		t.Errorf("DefaultBackendAddr = %v, want 'localhost:6334'", DefaultBackendAddr)
	}
	if DefaultBackendTimeout != 30*time.Second {
		t.Errorf("DefaultBackendTimeout = %v, want 30s", DefaultBackendTimeout)
	}
	if !DefaultAutoCreateCollections {
		t.Error("DefaultAutoCreateCollections should be true")
	}
	if !DefaultEnableQuantization {
		t.Error("DefaultEnableQuantization should be true")
	}
	if DefaultQuantizationQuantile != 0.99 {
		t.Errorf("DefaultQuantizationQuantile = %v, want 0.99", DefaultQuantizationQuantile)
	}
	if DefaultHNSWEfConstruct != 100 {
		t.Errorf("DefaultHNSWEfConstruct = %v, want 100", DefaultHNSWEfConstruct)
	}
	if DefaultHNSWM != 16 {
		t.Errorf("DefaultHNSWM = %v, want 16", DefaultHNSWM)
	}
	if DefaultSearchLimit != 10 {
		t.Errorf("DefaultSearchLimit = %v, want 10", DefaultSearchLimit)
	}
	if DefaultBulkBatchSize != 100 {
		t.Errorf("DefaultBulkBatchSize = %v, want 100", DefaultBulkBatchSize)
	}
	if DefaultBulkParallelism != 4 {
		t.Errorf("DefaultBulkParallelism = %v, want 4", DefaultBulkParallelism)
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	cfg := NewAppConfig()

	if cfg.Host() != DefaultHost {
		t.Errorf("Host() = %v, want '%v'", cfg.Host(), DefaultHost)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %v, want %v", cfg.Port(), DefaultPort)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %v, want '0.0.0.0:8080'", cfg.Addr())
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %v, want '%v'", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.LogFormat() != LogFormatPretty {
		t.Errorf("LogFormat() = %v, want 'pretty'", cfg.LogFormat())
	}
	if len(cfg.APIKeys()) != 0 {
		t.Errorf("APIKeys() should be empty by default, got %v", cfg.APIKeys())
	}
	if cfg.BackendURL() != DefaultBackendAddr {
		t.Errorf("BackendURL() = %v, want '%v'", cfg.BackendURL(), DefaultBackendAddr)
	}
	if cfg.BackendAPIKey() != "" {
		t.Error("BackendAPIKey() should be empty by default")
	}
	if cfg.BackendTimeout() != DefaultBackendTimeout {
		t.Errorf("BackendTimeout() = %v, want %v", cfg.BackendTimeout(), DefaultBackendTimeout)
	}
	if !cfg.AutoCreateCollections() {
		t.Error("AutoCreateCollections() should be true by default")
	}
	if !cfg.EnableQuantization() {
		t.Error("EnableQuantization() should be true by default")
	}
	if cfg.HNSWEfConstruct() != DefaultHNSWEfConstruct {
		t.Errorf("HNSWEfConstruct() = %v, want %v", cfg.HNSWEfConstruct(), DefaultHNSWEfConstruct)
	}
	if cfg.HNSWM() != DefaultHNSWM {
		t.Errorf("HNSWM() = %v, want %v", cfg.HNSWM(), DefaultHNSWM)
	}
	if cfg.SearchDefaultLimit() != DefaultSearchLimit {
		t.Errorf("SearchDefaultLimit() = %v, want %v", cfg.SearchDefaultLimit(), DefaultSearchLimit)
	}
	if cfg.BulkBatchSize() != DefaultBulkBatchSize {
		t.Errorf("BulkBatchSize() = %v, want %v", cfg.BulkBatchSize(), DefaultBulkBatchSize)
	}
	if cfg.BulkParallelism() != DefaultBulkParallelism {
		t.Errorf("BulkParallelism() = %v, want %v", cfg.BulkParallelism(), DefaultBulkParallelism)
	}
	if cfg.DefaultModelID() != "" {
		t.Error("DefaultModelID() should be empty by default")
	}
	if len(cfg.CollectionModelMap()) != 0 {
		t.Error("CollectionModelMap() should be empty by default")
	}
	if len(cfg.CollectionPatternMap()) != 0 {
		t.Error("CollectionPatternMap() should be empty by default")
	}
	if cfg.LocalModelDir() != cfg.DataDir()+"/models" {
		t.Errorf("LocalModelDir() = %v, want %v/models", cfg.LocalModelDir(), cfg.DataDir())
	}
}

func TestAppConfig_WithOptions(t *testing.T) {
	cfg := NewAppConfigWithOptions(
		WithHost("127.0.0.1"),
		WithPort(9000),
		WithLogLevel("DEBUG"),
		WithLogFormat(LogFormatJSON),
		WithAPIKeys([]string{"key1", "key2"}),
		WithBackendURL("qdrant.internal:6334"),
		WithBackendAPIKey("secret"),
		WithBackendTimeout(10*time.Second),
		WithDefaultModelID("bge-small-en"),
		WithCollectionModelMap(map[string]string{"notes": "bge-small-en"}),
		WithCollectionPatternMap([]PatternMapping{{Substring: "code", ModelID: "code-embed"}}),
		WithAutoCreateCollections(false),
		WithEnableQuantization(false),
		WithHNSWParams(200, 32),
		WithSearchDefaults(25, 0.5),
		WithBulkDefaults(50, 2),
	)

	if cfg.Host() != "127.0.0.1" {
		t.Errorf("Host() = %v, want '127.0.0.1'", cfg.Host())
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %v, want 9000", cfg.Port())
	}
	if cfg.LogLevel() != "DEBUG" {
		t.Errorf("LogLevel() = %v, want 'DEBUG'", cfg.LogLevel())
	}
	if cfg.LogFormat() != LogFormatJSON {
		t.Errorf("LogFormat() = %v, want 'json'", cfg.LogFormat())
	}
	if len(cfg.APIKeys()) != 2 {
		t.Errorf("APIKeys() length = %v, want 2", len(cfg.APIKeys()))
	}
	if cfg.BackendURL() != "qdrant.internal:6334" {
		t.Errorf("BackendURL() = %v, want 'qdrant.internal:6334'", cfg.BackendURL())
	}
	if cfg.BackendAPIKey() != "secret" {
		t.Errorf("BackendAPIKey() = %v, want 'secret'", cfg.BackendAPIKey())
	}
	if cfg.BackendTimeout() != 10*time.Second {
		t.Errorf("BackendTimeout() = %v, want 10s", cfg.BackendTimeout())
	}
	if cfg.DefaultModelID() != "bge-small-en" {
		t.Errorf("DefaultModelID() = %v, want 'bge-small-en'", cfg.DefaultModelID())
	}
	if cfg.CollectionModelMap()["notes"] != "bge-small-en" {
		t.Errorf("CollectionModelMap()[notes] = %v, want 'bge-small-en'", cfg.CollectionModelMap()["notes"])
	}
	if len(cfg.CollectionPatternMap()) != 1 || cfg.CollectionPatternMap()[0].ModelID != "code-embed" {
		t.Errorf("CollectionPatternMap() = %v, want one rule mapping to 'code-embed'", cfg.CollectionPatternMap())
	}
	if cfg.AutoCreateCollections() {
		t.Error("AutoCreateCollections() should be false")
	}
	if cfg.EnableQuantization() {
		t.Error("EnableQuantization() should be false")
	}
	if cfg.HNSWEfConstruct() != 200 {
		t.Errorf("HNSWEfConstruct() = %v, want 200", cfg.HNSWEfConstruct())
	}
	if cfg.HNSWM() != 32 {
		t.Errorf("HNSWM() = %v, want 32", cfg.HNSWM())
	}
	if cfg.SearchDefaultLimit() != 25 {
		t.Errorf("SearchDefaultLimit() = %v, want 25", cfg.SearchDefaultLimit())
	}
	if cfg.SearchDefaultThreshold() != 0.5 {
		t.Errorf("SearchDefaultThreshold() = %v, want 0.5", cfg.SearchDefaultThreshold())
	}
	if cfg.BulkBatchSize() != 50 {
		t.Errorf("BulkBatchSize() = %v, want 50", cfg.BulkBatchSize())
	}
	if cfg.BulkParallelism() != 2 {
		t.Errorf("BulkParallelism() = %v, want 2", cfg.BulkParallelism())
	}
}

func TestAppConfig_WithDataDir_UpdatesDefaultLocalModelDir(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithDataDir("/tmp/custom"))
	if cfg.DataDir() != "/tmp/custom" {
		t.Errorf("DataDir() = %v, want '/tmp/custom'", cfg.DataDir())
	}
	if cfg.LocalModelDir() != "/tmp/custom/models" {
		t.Errorf("LocalModelDir() = %v, want '/tmp/custom/models'", cfg.LocalModelDir())
	}
}

func TestAppConfig_WithLocalModelDir_OverridesDataDirDefault(t *testing.T) {
	cfg := NewAppConfigWithOptions(
		WithDataDir("/tmp/custom"),
		WithLocalModelDir("/srv/models"),
	)
	if cfg.LocalModelDir() != "/srv/models" {
		t.Errorf("LocalModelDir() = %v, want '/srv/models'", cfg.LocalModelDir())
	}
}

func TestAppConfig_APIKeys_Copy(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithAPIKeys([]string{"key1"}))

	keys := cfg.APIKeys()
	keys[0] = "modified"

	if cfg.APIKeys()[0] == "modified" {
		t.Error("APIKeys() should return a copy")
	}
}

func TestAppConfig_CollectionModelMap_Copy(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithCollectionModelMap(map[string]string{"notes": "m1"}))

	m := cfg.CollectionModelMap()
	m["notes"] = "mutated"

	if cfg.CollectionModelMap()["notes"] != "m1" {
		t.Error("CollectionModelMap() should return a copy")
	}
}

func TestAppConfig_CollectionPatternMap_Copy(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithCollectionPatternMap([]PatternMapping{{Substring: "code", ModelID: "m1"}}))

	rules := cfg.CollectionPatternMap()
	rules[0].ModelID = "mutated"

	if cfg.CollectionPatternMap()[0].ModelID != "m1" {
		t.Error("CollectionPatternMap() should return a copy")
	}
}

func TestAppConfig_Apply(t *testing.T) {
	cfg := NewAppConfig()
	updated := cfg.Apply(WithPort(9999))

	if cfg.Port() != DefaultPort {
		t.Error("Apply should not mutate the receiver")
	}
	if updated.Port() != 9999 {
		t.Errorf("updated.Port() = %v, want 9999", updated.Port())
	}
}

func TestAppConfig_LogAttrs(t *testing.T) {
	cfg := NewAppConfigWithOptions(
		WithBackendAPIKey("secret"),
		WithAPIKeys([]string{"a", "b"}),
	)
	attrs := cfg.LogAttrs()

	var foundKeySet, foundCount bool
	for _, a := range attrs {
		switch a.Key {
		case "backend_api_key_set":
			foundKeySet = true
			if !a.Value.Bool() {
				t.Error("backend_api_key_set should be true when BackendAPIKey is set")
			}
		case "api_keys_count":
			foundCount = true
			if a.Value.Int64() != 2 {
				t.Errorf("api_keys_count = %v, want 2", a.Value.Int64())
			}
		}
	}
	if !foundKeySet || !foundCount {
		t.Error("LogAttrs() missing expected attrs")
	}
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: []string{},
		},
		{
			name:     "single key",
			input:    "key1",
			expected: []string{"key1"},
		},
		{
			name:     "multiple keys",
			input:    "key1,key2,key3",
			expected: []string{"key1", "key2", "key3"},
		},
		{
			name:     "with whitespace",
			input:    "key1 , key2 , key3",
			expected: []string{"key1", "key2", "key3"},
		},
		{
			name:     "with empty entries",
			input:    "key1,,key2",
			expected: []string{"key1", "key2"},
		},
		{
			name:     "whitespace only entries",
			input:    "key1,  ,key2",
			expected: []string{"key1", "key2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseAPIKeys(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("ParseAPIKeys(%q) length = %v, want %v", tt.input, len(result), len(tt.expected))
				return
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("ParseAPIKeys(%q)[%d] = %v, want %v", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

func TestAppConfig_CORSAllowedOrigins_DefaultsToWildcard(t *testing.T) {
	cfg := NewAppConfig()
	got := cfg.CORSAllowedOrigins()
	if len(got) != 1 || got[0] != "*" {
		t.Errorf("CORSAllowedOrigins() = %v, want [*]", got)
	}
}

func TestAppConfig_CORSAllowedOrigins_OptionOverrides(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithCORSAllowedOrigins([]string{"https://a.example", "https://b.example"}))
	got := cfg.CORSAllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins() = %v, want [https://a.example https://b.example]", got)
	}
}

func TestAppConfig_CORSAllowedOrigins_Copy(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithCORSAllowedOrigins([]string{"https://a.example"}))
	origins := cfg.CORSAllowedOrigins()
	origins[0] = "modified"
	if cfg.CORSAllowedOrigins()[0] == "modified" {
		t.Error("CORSAllowedOrigins() should return a copy")
	}
}
