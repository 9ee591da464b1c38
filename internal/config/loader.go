package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Load reads the project configuration from the given filename (e.g., "berth.yaml"),
// expands ${VAR} references from the process environment, and returns the
// validated, normalized configuration.
func Load(filename string) (*Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found. Run 'berth init' to create one", filename)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	raw = Interpolate(raw, os.LookupEnv)

	// Viper fills the struct fields based on the mapstructure tags.
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.BaseDir = filepath.Dir(abs)

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills in the parts the file may leave implicit: the default
// network, bridge drivers, and dockerfile names.
func (c *Config) normalize() {
	usesDefault := false
	for _, s := range c.Services {
		for _, n := range s.ServiceNetworks() {
			if n == DefaultNetwork {
				usesDefault = true
			}
		}
	}
	if usesDefault {
		if c.Networks == nil {
			c.Networks = make(map[string]Network)
		}
		if _, ok := c.Networks[DefaultNetwork]; !ok {
			c.Networks[DefaultNetwork] = Network{}
		}
	}
	for name, n := range c.Networks {
		if n.Driver == "" && !n.External {
			n.Driver = "bridge"
			c.Networks[name] = n
		}
	}
	for name, s := range c.Services {
		if s.Build != nil && s.Build.Dockerfile == "" {
			s.Build.Dockerfile = "Dockerfile"
		}
		c.Services[name] = s
	}
}

// Resolve returns the absolute form of a path from the config file, resolving
// relative paths against the directory the file lives in.
func (c Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
