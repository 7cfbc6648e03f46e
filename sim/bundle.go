package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadClusterConfig reads a YAML configuration file and overlays it on
// DefaultClusterConfig. Keys missing from the file keep their defaults.
// The result is validated before it is returned.
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cluster config: %w", err)
	}
	cfg := DefaultClusterConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing cluster config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster config %s: %w", path, err)
	}
	return &cfg, nil
}
