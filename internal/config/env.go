package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ServiceEnv materializes the environment for a service: env_file entries in
// file order first, then inline environment entries. The runtime keeps the
// last occurrence of a key, so inline values override file values.
func (c Config) ServiceEnv(s Service) ([]string, error) {
	var env []string
	for _, ef := range s.EnvFile {
		entries, err := readEnvFile(c.Resolve(ef))
		if err != nil {
			return nil, fmt.Errorf("env_file %s: %w", ef, err)
		}
		env = append(env, entries...)
	}
	env = append(env, s.Environment...)
	return env, nil
}

// readEnvFile parses KEY=VALUE lines. Blank lines and #-comments are skipped.
func readEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var env []string
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "=") {
			return nil, fmt.Errorf("line %d: not KEY=VALUE: %q", n, line)
		}
		env = append(env, line)
	}
	return env, sc.Err()
}
