package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelEntry is one row of the YAML model catalogue: everything needed
// to both register a registry.ModelDescriptor and decide how its
// embedder is constructed (in-process runtime or hosted endpoint).
type ModelEntry struct {
	ModelID       string `yaml:"model_id"`
	DisplayName   string `yaml:"display_name"`
	Dimensions    int    `yaml:"dimensions"`
	Distance      string `yaml:"distance"`
	Description   string `yaml:"description"`
	Source        string `yaml:"source"` // "local" or "cloud"
	CacheDir      string `yaml:"cache_dir"`
	GPU           bool   `yaml:"gpu"`
	ProviderModel string `yaml:"provider_model"`
}

// modelsFile is the top-level shape of a models catalogue file.
type modelsFile struct {
	Models []ModelEntry `yaml:"models"`
}

// LoadModelsFile reads and parses a YAML model catalogue from path.
func LoadModelsFile(path string) ([]ModelEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read models file %s: %w", path, err)
	}

	var parsed modelsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse models file %s: %w", path, err)
	}
	if len(parsed.Models) == 0 {
		return nil, fmt.Errorf("config: models file %s defines no models", path)
	}
	for _, m := range parsed.Models {
		if m.ModelID == "" {
			return nil, fmt.Errorf("config: models file %s: entry missing model_id", path)
		}
		if m.Source != "local" && m.Source != "cloud" {
			return nil, fmt.Errorf("config: models file %s: model %q has invalid source %q (must be local or cloud)", path, m.ModelID, m.Source)
		}
	}
	return parsed.Models, nil
}
