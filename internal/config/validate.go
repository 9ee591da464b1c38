package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
)

// ErrInvalidConfig marks every validation failure so callers can distinguish
// a broken file from an unreachable daemon.
var ErrInvalidConfig = errors.New("invalid config")

var nameRx = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// RestartPolicy is the parsed form of a service restart keyword.
type RestartPolicy struct {
	Name       string // no, always, on-failure, unless-stopped
	MaxRetries int    // only for on-failure
}

// ParseRestartPolicy parses "no", "always", "unless-stopped", "on-failure" and
// "on-failure:N". The empty string means "no".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "", "no":
		return RestartPolicy{Name: "no"}, nil
	case "always", "unless-stopped", "on-failure":
		return RestartPolicy{Name: s}, nil
	}
	if rest, ok := strings.CutPrefix(s, "on-failure:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return RestartPolicy{}, fmt.Errorf("invalid on-failure retry count %q", rest)
		}
		return RestartPolicy{Name: "on-failure", MaxRetries: n}, nil
	}
	return RestartPolicy{}, fmt.Errorf("unknown restart policy %q", s)
}

// VolumeSpec is one parsed "source:target[:ro]" entry.
type VolumeSpec struct {
	Source   string
	Target   string
	ReadOnly bool
	Named    bool // source is a named volume, not a host path
}

// ParseVolumeSpec splits a service volume entry. A source that does not look
// like a path ("/", "./", "../", "~") refers to a named volume.
func ParseVolumeSpec(spec string) (VolumeSpec, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return VolumeSpec{}, fmt.Errorf("invalid volume spec %q, want source:target[:ro]", spec)
	}
	vs := VolumeSpec{Source: parts[0], Target: parts[1]}
	if len(parts) == 3 {
		if parts[2] != "ro" {
			return VolumeSpec{}, fmt.Errorf("invalid volume option %q in %q", parts[2], spec)
		}
		vs.ReadOnly = true
	}
	if !strings.HasPrefix(vs.Source, "/") && !strings.HasPrefix(vs.Source, "./") &&
		!strings.HasPrefix(vs.Source, "../") && !strings.HasPrefix(vs.Source, "~") {
		vs.Named = true
	}
	return vs, nil
}

// Validate checks the whole service graph. It returns the first problem found,
// wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: project name is required", ErrInvalidConfig)
	}
	if !nameRx.MatchString(c.Name) {
		return fmt.Errorf("%w: project name %q must match %s", ErrInvalidConfig, c.Name, nameRx)
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("%w: no services defined", ErrInvalidConfig)
	}

	hostPorts := make(map[string]string) // "ip:port" -> service that claimed it
	for _, name := range c.ServiceNames() {
		s := c.Services[name]
		if err := c.validateService(name, s, hostPorts); err != nil {
			return fmt.Errorf("%w: service %s: %v", ErrInvalidConfig, name, err)
		}
	}
	for _, name := range sortedKeys(c.Secrets) {
		if c.Secrets[name].File == "" {
			return fmt.Errorf("%w: secret %s: file is required", ErrInvalidConfig, name)
		}
	}
	return nil
}

func (c Config) validateService(name string, s Service, hostPorts map[string]string) error {
	if !nameRx.MatchString(name) {
		return fmt.Errorf("name must match %s", nameRx)
	}
	if s.Image == "" && s.Build == nil {
		return errors.New("needs image or build")
	}
	if s.Image != "" && s.Build != nil {
		return errors.New("image and build are mutually exclusive")
	}
	if s.Build != nil && s.Build.Context == "" {
		return errors.New("build.context is required")
	}
	if _, err := ParseRestartPolicy(s.Restart); err != nil {
		return err
	}
	for _, p := range s.Ports {
		mappings, err := nat.ParsePortSpec(p)
		if err != nil {
			return fmt.Errorf("invalid port mapping %q: %w", p, err)
		}
		for _, pm := range mappings {
			if pm.Binding.HostPort == "" {
				continue
			}
			key := pm.Binding.HostIP + ":" + pm.Binding.HostPort
			if other, taken := hostPorts[key]; taken && other != name {
				return fmt.Errorf("host port %s already published by service %s", pm.Binding.HostPort, other)
			}
			hostPorts[key] = name
		}
	}
	for _, v := range s.Volumes {
		vs, err := ParseVolumeSpec(v)
		if err != nil {
			return err
		}
		if vs.Named {
			if _, ok := c.Volumes[vs.Source]; !ok {
				return fmt.Errorf("named volume %q is not declared under volumes", vs.Source)
			}
		}
	}
	for _, dep := range s.DependsOn {
		if dep == name {
			return errors.New("depends on itself")
		}
		if _, ok := c.Services[dep]; !ok {
			return fmt.Errorf("depends on unknown service %q", dep)
		}
	}
	for _, n := range s.ServiceNetworks() {
		if _, ok := c.Networks[n]; !ok {
			return fmt.Errorf("joins unknown network %q", n)
		}
	}
	for _, sec := range s.Secrets {
		if _, ok := c.Secrets[sec]; !ok {
			return fmt.Errorf("references unknown secret %q", sec)
		}
	}
	for _, ef := range s.EnvFile {
		if _, err := os.Stat(c.Resolve(ef)); err != nil {
			return fmt.Errorf("env_file %s: %w", ef, err)
		}
	}
	if hc := s.Healthcheck; hc != nil && !hc.Disable {
		if len(hc.Test) == 0 {
			return errors.New("healthcheck needs a test command")
		}
		for _, d := range []string{hc.Interval, hc.Timeout, hc.StartPeriod} {
			if d == "" {
				continue
			}
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("invalid healthcheck duration %q", d)
			}
		}
		if hc.Retries < 0 {
			return errors.New("healthcheck retries must not be negative")
		}
	}
	return nil
}
