package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Render emits the normalized configuration as canonical YAML: defaults
// filled in, variables already interpolated, map keys sorted. This is what
// `berth config` prints.
func (c Config) Render() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return data, nil
}
