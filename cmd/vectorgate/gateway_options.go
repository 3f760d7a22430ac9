package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vectorgate/vectorgate"
	"github.com/vectorgate/vectorgate/domain/registry"
	"github.com/vectorgate/vectorgate/infrastructure/embedder"
	"github.com/vectorgate/vectorgate/internal/config"
)

// buildGatewayOptions translates an AppConfig (and the models it names via
// ModelsFile) into the vectorgate.Option slice that constructs a Gateway.
// Shared between serve and stdio so both transports register the same
// models and mapping rules from the same configuration.
func buildGatewayOptions(cfg config.AppConfig, logger *slog.Logger) ([]vectorgate.Option, error) {
	if cfg.ModelsFile() == "" {
		return nil, fmt.Errorf("MODELS_FILE must name a model catalogue (see config.LoadModelsFile)")
	}
	entries, err := config.LoadModelsFile(cfg.ModelsFile())
	if err != nil {
		return nil, err
	}

	opts := []vectorgate.Option{
		vectorgate.WithBackendAddr(cfg.BackendURL()),
		vectorgate.WithBackendAPIKey(cfg.BackendAPIKey()),
		vectorgate.WithBackendTimeout(cfg.BackendTimeout()),
		vectorgate.WithAutoCreateCollections(cfg.AutoCreateCollections()),
		vectorgate.WithHNSWParams(cfg.HNSWEfConstruct(), cfg.HNSWM()),
		vectorgate.WithQuantization(cfg.EnableQuantization(), cfg.QuantizationQuantile(), cfg.QuantizationAlwaysRAM()),
		vectorgate.WithSearchDefaults(cfg.SearchDefaultLimit(), cfg.SearchDefaultThreshold()),
		vectorgate.WithBulkDefaults(cfg.BulkBatchSize(), cfg.BulkParallelism()),
		vectorgate.WithLogger(logger),
		vectorgate.WithDefaultModel(cfg.DefaultModelID()),
	}

	for _, m := range entries {
		model, err := registry.NewModelDescriptor(m.ModelID, m.DisplayName, m.Dimensions, registry.Distance(m.Distance), m.Description)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.ModelID, err)
		}

		switch m.Source {
		case "local":
			cacheDir := m.CacheDir
			if cacheDir == "" {
				cacheDir = cfg.LocalModelDir()
			}
			gpu := m.GPU || cfg.GPUEnabled()
			opts = append(opts, vectorgate.WithLocalModel(model, cacheDir, gpu))
		case "cloud":
			cloudCfg := embedder.CloudConfig{
				BaseURL:       cfg.CloudBaseURL(),
				APIKey:        cfg.CloudAPIKey(),
				Timeout:       30 * time.Second,
				MaxRetries:    5,
				InitialDelay:  2 * time.Second,
				BackoffFactor: 2.0,
			}
			providerModel := m.ProviderModel
			if providerModel == "" {
				providerModel = m.ModelID
			}
			opts = append(opts, vectorgate.WithCloudModel(model, cloudCfg, providerModel))
		default:
			return nil, fmt.Errorf("model %q: unknown source %q", m.ModelID, m.Source)
		}
	}

	for name, modelID := range cfg.CollectionModelMap() {
		opts = append(opts, vectorgate.WithExactMapping(name, modelID))
	}
	for _, rule := range cfg.CollectionPatternMap() {
		opts = append(opts, vectorgate.WithPatternMapping(rule.Substring, rule.ModelID))
	}

	return opts, nil
}
