package config

import (
	"crypto/sha256"
	"fmt"

	"gopkg.in/yaml.v2"
)

// ServiceHash fingerprints the effective definition of one service: the
// declared fields plus the materialized environment and the image the
// container should run. Containers are stamped with it so a later run can
// tell whether the running container still matches the file.
func ServiceHash(name string, s Service, env []string, image string) (string, error) {
	doc := struct {
		Name    string   `yaml:"name"`
		Image   string   `yaml:"image"`
		Env     []string `yaml:"env"`
		Service Service  `yaml:"service"`
	}{name, image, env, s}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("hashing service %s: %w", name, err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
