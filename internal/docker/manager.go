package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/term"
)

// Manager handles all interactions with the Docker daemon.
type Manager struct {
	cli *client.Client
}

// NewManager creates a new Docker client connected to the local daemon.
func NewManager() (*Manager, error) {
	// FromEnv looks for standard env vars like DOCKER_HOST,
	// or defaults to the unix socket /var/run/docker.sock.
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Manager{cli: cli}, nil
}

// Close releases the client connection.
func (m *Manager) Close() error {
	return m.cli.Close()
}

// EnsureImage makes an image available locally, pulling it when it is missing
// or when pull forces a refresh.
func (m *Manager) EnsureImage(ctx context.Context, imageName string, pull bool) error {
	if !pull {
		if _, _, err := m.cli.ImageInspectWithRaw(ctx, imageName); err == nil {
			return nil
		}
	}

	fmt.Printf("Pulling image %s...\n", imageName)
	reader, err := m.cli.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// The pull happens while we consume the progress stream; abandoning the
	// reader would cancel it.
	if err := streamProgress(reader); err != nil {
		return fmt.Errorf("pulling image %s: %w", imageName, err)
	}
	return nil
}

// ImageID returns the local ID of an image reference, or "" when the image
// is not present. Comparing it against a container's image ID tells whether
// the container runs a stale image.
func (m *Manager) ImageID(ctx context.Context, ref string) (string, error) {
	inspect, _, err := m.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	return inspect.ID, nil
}

// BuildImage builds a service image from a local context directory and tags
// it. The whole context is sent to the daemon as a tar stream.
func (m *Manager) BuildImage(ctx context.Context, contextDir, dockerfile string, args []string, tag string) error {
	fmt.Printf("Building image %s from %s...\n", tag, contextDir)

	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to tar build context %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	buildArgs := make(map[string]*string, len(args))
	for _, a := range args {
		k, v, _ := strings.Cut(a, "=")
		buildArgs[k] = &v
	}

	resp, err := m.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfile,
		Remove:     true,
		BuildArgs:  buildArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	if err := streamProgress(resp.Body); err != nil {
		return fmt.Errorf("building image %s: %w", tag, err)
	}
	return nil
}

// EnsureNetwork creates a network if it doesn't exist. External networks are
// only looked up: they must already exist and are never created here.
func (m *Manager) EnsureNetwork(ctx context.Context, networkName, driver string, external bool, labels map[string]string) error {
	// The name filter matches substrings, so compare exact names ourselves.
	filterArgs := filters.NewArgs()
	filterArgs.Add("name", networkName)
	networks, err := m.cli.NetworkList(ctx, types.NetworkListOptions{Filters: filterArgs})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, net := range networks {
		if net.Name == networkName {
			return nil
		}
	}
	if external {
		return fmt.Errorf("external network %s not found", networkName)
	}

	fmt.Printf("Creating network %s...\n", networkName)
	_, err = m.cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: driver,
		Labels: labels,
	})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", networkName, err)
	}
	return nil
}

// RemoveNetwork deletes a project network. A network that is already gone is
// fine, so a second down stays quiet.
func (m *Manager) RemoveNetwork(ctx context.Context, networkName string) error {
	err := m.cli.NetworkRemove(ctx, networkName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove network %s: %w", networkName, err)
	}
	fmt.Printf("Removed network %s\n", networkName)
	return nil
}

// EnsureVolume creates a named volume if it doesn't exist. External volumes
// are only looked up.
func (m *Manager) EnsureVolume(ctx context.Context, volumeName string, external bool, labels map[string]string) error {
	if _, err := m.cli.VolumeInspect(ctx, volumeName); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect volume %s: %w", volumeName, err)
	}
	if external {
		return fmt.Errorf("external volume %s not found", volumeName)
	}

	fmt.Printf("Creating volume %s...\n", volumeName)
	_, err := m.cli.VolumeCreate(ctx, volume.CreateOptions{Name: volumeName, Labels: labels})
	if err != nil {
		return fmt.Errorf("failed to create volume %s: %w", volumeName, err)
	}
	return nil
}

// VolumePath returns the host mountpoint of a named volume, used for backups.
func (m *Manager) VolumePath(ctx context.Context, volumeName string) (string, error) {
	v, err := m.cli.VolumeInspect(ctx, volumeName)
	if err != nil {
		return "", fmt.Errorf("failed to inspect volume %s: %w", volumeName, err)
	}
	return v.Mountpoint, nil
}

// RemoveVolume deletes a named volume and the data in it. Removing a volume
// that does not exist is not an error.
func (m *Manager) RemoveVolume(ctx context.Context, volumeName string) error {
	err := m.cli.VolumeRemove(ctx, volumeName, false)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove volume %s: %w", volumeName, err)
	}
	fmt.Printf("Removed volume %s\n", volumeName)
	return nil
}

// CreateContainer creates (but does not start) a container from a resolved
// spec. The first declared network is attached at create time so the
// container never appears on the default bridge; remaining networks are
// connected before start.
func (m *Manager) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Cmd:          spec.Command,
		Entrypoint:   spec.Entrypoint,
		User:         spec.User,
		WorkingDir:   spec.WorkingDir,
		ExposedPorts: spec.ExposedPorts,
		Labels:       spec.Labels,
		Healthcheck:  spec.Healthcheck,
	}
	hostCfg := &container.HostConfig{
		PortBindings:  spec.PortBindings,
		Binds:         spec.Binds,
		RestartPolicy: spec.RestartPolicy,
	}
	netCfg := &network.NetworkingConfig{EndpointsConfig: map[string]*network.EndpointSettings{}}
	if len(spec.Networks) > 0 {
		first := spec.Networks[0]
		netCfg.EndpointsConfig[first.Name] = &network.EndpointSettings{Aliases: first.Aliases}
	}

	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	for i, attach := range spec.Networks {
		if i == 0 {
			continue // attached at create time
		}
		err := m.cli.NetworkConnect(ctx, attach.Name, resp.ID, &network.EndpointSettings{Aliases: attach.Aliases})
		if err != nil {
			return resp.ID, fmt.Errorf("failed to connect %s to network %s: %w", spec.Name, attach.Name, err)
		}
	}
	return resp.ID, nil
}

// StartContainer starts a created or stopped container.
func (m *Manager) StartContainer(ctx context.Context, nameOrID string) error {
	if err := m.cli.ContainerStart(ctx, nameOrID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", nameOrID, err)
	}
	return nil
}

// StopContainer stops a container, waiting up to timeout seconds for a
// graceful shutdown (nil means the daemon default of 10 seconds).
func (m *Manager) StopContainer(ctx context.Context, nameOrID string, timeout *int) error {
	if err := m.cli.ContainerStop(ctx, nameOrID, container.StopOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", nameOrID, err)
	}
	return nil
}

// RestartContainer stops and starts a container in one daemon call.
func (m *Manager) RestartContainer(ctx context.Context, nameOrID string) error {
	if err := m.cli.ContainerRestart(ctx, nameOrID, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", nameOrID, err)
	}
	return nil
}

// RemoveContainer force-deletes a container. Volumes survive: data outlives
// the containers that use it.
func (m *Manager) RemoveContainer(ctx context.Context, nameOrID string) error {
	err := m.cli.ContainerRemove(ctx, nameOrID, container.RemoveOptions{
		RemoveVolumes: false,
		Force:         true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", nameOrID, err)
	}
	return nil
}

// OwnedContainer is one project-labeled container as seen in a listing.
type OwnedContainer struct {
	ID      string
	Name    string
	Service string // from the berth.service label
	Running bool
}

// ListContainers returns all containers belonging to a project, running or
// not. Containers are matched by ownership label, so it also finds leftovers
// from services that were since renamed or removed from the file.
func (m *Manager) ListContainers(ctx context.Context, project string) ([]OwnedContainer, error) {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", fmt.Sprintf("%s=%s", LabelProject, project))

	list, err := m.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]OwnedContainer, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			// The daemon reports names as "/berth-home-db".
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, OwnedContainer{
			ID:      c.ID,
			Name:    name,
			Service: c.Labels[LabelService],
			Running: c.State == "running",
		})
	}
	return out, nil
}

// ContainerState is the distilled inspect result the rest of berth consumes.
type ContainerState struct {
	ID           string
	Exists       bool
	Running      bool
	Status       string // created, running, exited, ...
	Health       string // empty when the container has no healthcheck
	ExitCode     int
	StartedAt    time.Time
	RestartCount int
	Image        string // image reference the container was created from
	ImageID      string // resolved image ID, for staleness checks
	ConfigHash   string
}

// InspectContainer reports the current state of a service container. A
// missing container is not an error: Exists is false.
func (m *Manager) InspectContainer(ctx context.Context, nameOrID string) (ContainerState, error) {
	info, err := m.cli.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return ContainerState{}, nil
		}
		return ContainerState{}, fmt.Errorf("failed to inspect container %s: %w", nameOrID, err)
	}

	st := ContainerState{
		ID:           info.ID,
		Exists:       true,
		ImageID:      info.Image,
		RestartCount: info.RestartCount,
	}
	if info.Config != nil {
		st.Image = info.Config.Image
		st.ConfigHash = info.Config.Labels[LabelHash]
	}
	if s := info.State; s != nil {
		st.Running = s.Running
		st.Status = s.Status
		st.ExitCode = s.ExitCode
		if t, err := time.Parse(time.RFC3339Nano, s.StartedAt); err == nil {
			st.StartedAt = t
		}
		if s.Health != nil {
			st.Health = s.Health.Status
		}
	}
	return st, nil
}

// LogsOptions control what Logs streams.
type LogsOptions struct {
	Follow     bool
	Tail       string // "" or "all" for everything, otherwise a line count
	Timestamps bool
}

// Logs streams a container's output. Stdout and stderr are multiplexed on the
// wire; stdcopy splits them back apart.
func (m *Manager) Logs(ctx context.Context, nameOrID string, opts LogsOptions, stdout, stderr io.Writer) error {
	reader, err := m.cli.ContainerLogs(ctx, nameOrID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	})
	if err != nil {
		return fmt.Errorf("failed to read logs of %s: %w", nameOrID, err)
	}
	defer reader.Close()

	_, err = stdcopy.StdCopy(stdout, stderr, reader)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("streaming logs of %s: %w", nameOrID, err)
	}
	return nil
}

// WaitHealthy blocks until the container is running and, when it has a
// healthcheck, until the daemon reports it healthy. It keeps polling through
// "unhealthy": a slow starter may still come around before the timeout.
func (m *Manager) WaitHealthy(ctx context.Context, nameOrID string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	last := "unknown"
	for {
		st, err := m.InspectContainer(ctx, nameOrID)
		if err != nil {
			return err
		}
		switch {
		case !st.Exists:
			last = "missing"
		case !st.Running:
			return fmt.Errorf("container %s is not running (status %s, exit code %d)", nameOrID, st.Status, st.ExitCode)
		case st.Health == "" || st.Health == "healthy":
			return nil
		default:
			last = st.Health
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("container %s did not become healthy within %s (last state: %s)", nameOrID, timeout, last)
		case <-tick.C:
		}
	}
}

// streamProgress renders a daemon JSON progress stream (pull, build) to the
// terminal, or as plain lines when stdout is not a tty. Errors reported in
// the stream come back as errors here.
func streamProgress(r io.Reader) error {
	fd, isTerm := term.GetFdInfo(os.Stdout)
	return jsonmessage.DisplayJSONMessagesStream(r, os.Stdout, fd, isTerm, nil)
}
