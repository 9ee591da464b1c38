package config

import (
	"fmt"
	"sort"
	"strings"
)

// StartOrder resolves the depends_on graph into startup stages. Services in
// the same stage have no ordering between them and may start concurrently;
// a service only appears after all its dependencies. The result is
// deterministic: names are sorted within each stage.
func (c Config) StartOrder() ([][]string, error) {
	return c.StartOrderFor(c.ServiceNames())
}

// StartOrderFor resolves stages for the named services plus their transitive
// dependencies. Unknown names are an error.
func (c Config) StartOrderFor(names []string) ([][]string, error) {
	include, err := c.closure(names)
	if err != nil {
		return nil, err
	}

	// Kahn's algorithm, level by level.
	indegree := make(map[string]int, len(include))
	for name := range include {
		indegree[name] = 0
	}
	for name := range include {
		for _, dep := range c.Services[name].DependsOn {
			if _, ok := include[dep]; ok {
				indegree[name]++
			}
		}
	}

	var stages [][]string
	placed := 0
	for placed < len(include) {
		var stage []string
		for name, deg := range indegree {
			if deg == 0 {
				stage = append(stage, name)
			}
		}
		if len(stage) == 0 {
			var stuck []string
			for name := range indegree {
				stuck = append(stuck, name)
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("dependency cycle between services: %s", strings.Join(stuck, ", "))
		}
		sort.Strings(stage)
		for _, name := range stage {
			delete(indegree, name)
		}
		for name := range indegree {
			for _, dep := range c.Services[name].DependsOn {
				for _, done := range stage {
					if dep == done {
						indegree[name]--
					}
				}
			}
		}
		stages = append(stages, stage)
		placed += len(stage)
	}
	return stages, nil
}

// StopOrder is the reverse of StartOrder: dependents stop before the services
// they depend on.
func (c Config) StopOrder() ([][]string, error) {
	stages, err := c.StartOrder()
	if err != nil {
		return nil, err
	}
	reversed := make([][]string, len(stages))
	for i, stage := range stages {
		reversed[len(stages)-1-i] = stage
	}
	return reversed, nil
}

// closure returns the requested services and everything they transitively
// depend on.
func (c Config) closure(names []string) (map[string]bool, error) {
	include := make(map[string]bool)
	var add func(string) error
	add = func(name string) error {
		if include[name] {
			return nil
		}
		s, ok := c.Services[name]
		if !ok {
			return fmt.Errorf("unknown service %q", name)
		}
		include[name] = true
		for _, dep := range s.DependsOn {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := add(name); err != nil {
			return nil, err
		}
	}
	return include, nil
}
