package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/aholstad/berth/internal/config"
)

// Labels stamped on everything berth creates, so that listing, cleanup and
// reconciliation only ever touch resources berth owns.
const (
	LabelProject = "berth.project"
	LabelService = "berth.service"
	LabelManaged = "berth.managed"
	LabelHash    = "berth.config-hash"
)

// ContainerName returns the container name for a service, e.g. "berth-homeserver-postgres".
func ContainerName(project, service string) string {
	return fmt.Sprintf("berth-%s-%s", project, service)
}

// NetworkName returns the runtime network name for a declared network. The
// default network is just "berth-<project>"; external networks keep their own
// name.
func NetworkName(project, network string, external bool) string {
	if external {
		return network
	}
	if network == config.DefaultNetwork {
		return fmt.Sprintf("berth-%s", project)
	}
	return fmt.Sprintf("berth-%s-%s", project, network)
}

// VolumeName returns the runtime volume name for a declared volume. External
// volumes keep their own name.
func VolumeName(project, volume string, external bool) string {
	if external {
		return volume
	}
	return fmt.Sprintf("berth-%s-%s", project, volume)
}

// ImageRef returns the image a service runs: the declared one, or the local
// build tag for services built from source.
func ImageRef(project, service string, s config.Service) string {
	if s.Build != nil {
		return fmt.Sprintf("berth-%s-%s", project, service)
	}
	return s.Image
}

// NetworkAttachment is one network a container joins, with its DNS aliases.
type NetworkAttachment struct {
	Name    string
	Aliases []string
}

// ContainerSpec is everything the engine needs to create one container. It is
// produced by Translate from the declarative service definition, so the
// daemon-facing code never looks at config types.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           []string
	Command       []string
	Entrypoint    []string
	User          string
	WorkingDir    string
	ExposedPorts  nat.PortSet
	PortBindings  nat.PortMap
	Binds         []string
	Labels        map[string]string
	RestartPolicy container.RestartPolicy
	Healthcheck   *container.HealthConfig
	Networks      []NetworkAttachment
}

// Translate builds a ContainerSpec from a validated service definition. The
// returned spec is fully resolved: ports parsed, env materialized, named
// volumes and secret files turned into binds, and the config hash stamped
// into the labels.
func Translate(cfg *config.Config, name string, s config.Service) (ContainerSpec, error) {
	spec := ContainerSpec{
		Name:  ContainerName(cfg.Name, name),
		Image: ImageRef(cfg.Name, name, s),

		Command:    s.Command,
		Entrypoint: s.Entrypoint,
		User:       s.User,
		WorkingDir: s.WorkingDir,
	}

	env, err := cfg.ServiceEnv(s)
	if err != nil {
		return spec, err
	}
	spec.Env = env

	// Port mappings: parse "8080:80" into the daemon's format.
	spec.ExposedPorts = nat.PortSet{}
	spec.PortBindings = nat.PortMap{}
	for _, p := range s.Ports {
		mappings, err := nat.ParsePortSpec(p)
		if err != nil {
			return spec, fmt.Errorf("invalid port mapping %s: %w", p, err)
		}
		for _, pm := range mappings {
			spec.ExposedPorts[pm.Port] = struct{}{}
			hostIP := pm.Binding.HostIP
			if hostIP == "" {
				hostIP = "0.0.0.0"
			}
			spec.PortBindings[pm.Port] = append(spec.PortBindings[pm.Port], nat.PortBinding{
				HostIP:   hostIP,
				HostPort: pm.Binding.HostPort,
			})
		}
	}

	// Volumes: named volumes get the project prefix, bind sources resolve
	// against the config file, secrets mount read-only under /run/secrets.
	for _, v := range s.Volumes {
		vs, err := config.ParseVolumeSpec(v)
		if err != nil {
			return spec, err
		}
		src := vs.Source
		if vs.Named {
			src = VolumeName(cfg.Name, vs.Source, cfg.Volumes[vs.Source].External)
		} else {
			src = cfg.Resolve(src)
		}
		bind := src + ":" + vs.Target
		if vs.ReadOnly {
			bind += ":ro"
		}
		spec.Binds = append(spec.Binds, bind)
	}
	for _, sec := range s.Secrets {
		spec.Binds = append(spec.Binds, fmt.Sprintf("%s:/run/secrets/%s:ro", cfg.Resolve(cfg.Secrets[sec].File), sec))
	}

	spec.Labels = map[string]string{
		LabelProject: cfg.Name,
		LabelService: name,
		LabelManaged: "true",
	}
	for _, l := range s.Labels {
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			return spec, fmt.Errorf("invalid label %q, want key=value", l)
		}
		spec.Labels[k] = v
	}
	hash, err := config.ServiceHash(name, s, env, spec.Image)
	if err != nil {
		return spec, err
	}
	spec.Labels[LabelHash] = hash

	rp, err := config.ParseRestartPolicy(s.Restart)
	if err != nil {
		return spec, err
	}
	spec.RestartPolicy = restartPolicy(rp)

	hc, err := healthConfig(s.Healthcheck)
	if err != nil {
		return spec, err
	}
	spec.Healthcheck = hc

	for _, n := range s.ServiceNetworks() {
		spec.Networks = append(spec.Networks, NetworkAttachment{
			Name:    NetworkName(cfg.Name, n, cfg.Networks[n].External),
			Aliases: []string{name},
		})
	}

	return spec, nil
}

func restartPolicy(rp config.RestartPolicy) container.RestartPolicy {
	switch rp.Name {
	case "always":
		return container.RestartPolicy{Name: container.RestartPolicyAlways}
	case "unless-stopped":
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	case "on-failure":
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure, MaximumRetryCount: rp.MaxRetries}
	default:
		return container.RestartPolicy{Name: container.RestartPolicyDisabled}
	}
}

// healthConfig converts the declared healthcheck to the daemon's form. The
// daemon runs the probe itself; berth only reads the resulting health state.
func healthConfig(hc *config.Healthcheck) (*container.HealthConfig, error) {
	if hc == nil {
		return nil, nil
	}
	if hc.Disable {
		return &container.HealthConfig{Test: []string{"NONE"}}, nil
	}
	out := &container.HealthConfig{
		Test:    hc.Test,
		Retries: hc.Retries,
	}
	var err error
	if out.Interval, err = parseDuration(hc.Interval); err != nil {
		return nil, err
	}
	if out.Timeout, err = parseDuration(hc.Timeout); err != nil {
		return nil, err
	}
	if out.StartPeriod, err = parseDuration(hc.StartPeriod); err != nil {
		return nil, err
	}
	return out, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
