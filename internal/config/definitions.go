package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantops/sentinel/internal/alerting"
)

// definitionsFile is the on-disk layout of bootstrap alert definitions.
type definitionsFile struct {
	Alerts []map[string]interface{} `yaml:"alerts"`
}

// LoadDefinitions reads a YAML file of alert configs. The YAML is bridged
// through the JSON field names, so definitions use the same shape the API
// accepts. Validation happens when the configs are registered, not here.
func LoadDefinitions(path string) ([]alerting.AlertConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alert definitions: %w", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing alert definitions: %w", err)
	}

	configs := make([]alerting.AlertConfig, 0, len(file.Alerts))
	for i, raw := range file.Alerts {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("alert definition %d: %w", i, err)
		}
		var cfg alerting.AlertConfig
		if err := json.Unmarshal(encoded, &cfg); err != nil {
			return nil, fmt.Errorf("alert definition %d: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
