package config

// Config represents the root of berth.yaml.
type Config struct {
	Name     string             `mapstructure:"name" yaml:"name"`
	Version  string             `mapstructure:"version" yaml:"version,omitempty"`
	Services map[string]Service `mapstructure:"services" yaml:"services"` // Map keys are service names (e.g., "postgres")
	Networks map[string]Network `mapstructure:"networks" yaml:"networks,omitempty"`
	Volumes  map[string]Volume  `mapstructure:"volumes" yaml:"volumes,omitempty"`
	Secrets  map[string]Secret  `mapstructure:"secrets" yaml:"secrets,omitempty"`

	// BaseDir is the directory containing the loaded file. Relative paths
	// (build contexts, env files, secret files, bind mounts) resolve against it.
	BaseDir string `mapstructure:"-" yaml:"-"`
}

// Service represents a single container definition.
type Service struct {
	Image       string       `mapstructure:"image" yaml:"image,omitempty"` // e.g., "postgres:14"
	Build       *Build       `mapstructure:"build" yaml:"build,omitempty"` // mutually exclusive with Image
	Command     []string     `mapstructure:"command" yaml:"command,omitempty"`
	Entrypoint  []string     `mapstructure:"entrypoint" yaml:"entrypoint,omitempty"`
	User        string       `mapstructure:"user" yaml:"user,omitempty"`
	WorkingDir  string       `mapstructure:"working_dir" yaml:"working_dir,omitempty"`
	Ports       []string     `mapstructure:"ports" yaml:"ports,omitempty"`             // e.g., ["8080:80"]
	Environment []string     `mapstructure:"environment" yaml:"environment,omitempty"` // e.g., ["POSTGRES_PASSWORD=secret"]
	EnvFile     []string     `mapstructure:"env_file" yaml:"env_file,omitempty"`
	Volumes     []string     `mapstructure:"volumes" yaml:"volumes,omitempty"` // e.g., ["pgdata:/var/lib/postgresql/data"]
	Networks    []string     `mapstructure:"networks" yaml:"networks,omitempty"`
	DependsOn   []string     `mapstructure:"depends_on" yaml:"depends_on,omitempty"`
	Restart     string       `mapstructure:"restart" yaml:"restart,omitempty"` // no, always, on-failure[:retries], unless-stopped
	Healthcheck *Healthcheck `mapstructure:"healthcheck" yaml:"healthcheck,omitempty"`
	Secrets     []string     `mapstructure:"secrets" yaml:"secrets,omitempty"`
	Labels      []string     `mapstructure:"labels" yaml:"labels,omitempty"`
}

// Build describes how to build the image for a service instead of pulling one.
type Build struct {
	Context    string   `mapstructure:"context" yaml:"context"`
	Dockerfile string   `mapstructure:"dockerfile" yaml:"dockerfile,omitempty"` // relative to Context, default "Dockerfile"
	Args       []string `mapstructure:"args" yaml:"args,omitempty"`             // e.g., ["VERSION=1.2"]
}

// Healthcheck mirrors the runtime's container health probe. Durations are kept
// as strings ("10s") so the file round-trips cleanly; they are validated at
// load time and parsed where the probe is configured.
type Healthcheck struct {
	Test        []string `mapstructure:"test" yaml:"test,omitempty"` // e.g., ["CMD", "pg_isready"]
	Interval    string   `mapstructure:"interval" yaml:"interval,omitempty"`
	Timeout     string   `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Retries     int      `mapstructure:"retries" yaml:"retries,omitempty"`
	StartPeriod string   `mapstructure:"start_period" yaml:"start_period,omitempty"`
	Disable     bool     `mapstructure:"disable" yaml:"disable,omitempty"`
}

// Network represents a virtual network that services can join.
type Network struct {
	Driver   string `mapstructure:"driver" yaml:"driver,omitempty"` // default "bridge"
	External bool   `mapstructure:"external" yaml:"external,omitempty"`
}

// Volume represents a named data volume.
type Volume struct {
	External bool `mapstructure:"external" yaml:"external,omitempty"`
}

// Secret references a file whose contents are mounted read-only into the
// services that list it, at /run/secrets/<name>.
type Secret struct {
	File string `mapstructure:"file" yaml:"file"`
}

// DefaultNetwork is the network services join when they declare none.
const DefaultNetwork = "default"

// ServiceNetworks returns the networks the service joins, applying the default.
func (s Service) ServiceNetworks() []string {
	if len(s.Networks) == 0 {
		return []string{DefaultNetwork}
	}
	return s.Networks
}

// ServiceNames returns all service names in deterministic order.
func (c Config) ServiceNames() []string {
	return sortedKeys(c.Services)
}

// NetworkNames returns all declared network names in deterministic order.
func (c Config) NetworkNames() []string {
	return sortedKeys(c.Networks)
}

// VolumeNames returns all declared volume names in deterministic order.
func (c Config) VolumeNames() []string {
	return sortedKeys(c.Volumes)
}
