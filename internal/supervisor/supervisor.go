// Package supervisor converges the declared service graph onto a container
// runtime: it creates what is missing, recreates what drifted, starts what
// stopped and leaves alone what already matches the project file.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aholstad/berth/internal/config"
	"github.com/aholstad/berth/internal/docker"
)

// DefaultHealthTimeout bounds how long a service may take to become healthy
// before its stage is considered failed.
const DefaultHealthTimeout = 60 * time.Second

// ErrUnknownService is returned when a requested service is not in the
// project file.
var ErrUnknownService = errors.New("unknown service")

// Engine is the slice of the container runtime the supervisor drives. It is
// satisfied by *docker.Manager; tests substitute a fake.
type Engine interface {
	EnsureImage(ctx context.Context, image string, pull bool) error
	BuildImage(ctx context.Context, contextDir, dockerfile string, args []string, tag string) error
	ImageID(ctx context.Context, ref string) (string, error)
	EnsureNetwork(ctx context.Context, name, driver string, external bool, labels map[string]string) error
	RemoveNetwork(ctx context.Context, name string) error
	EnsureVolume(ctx context.Context, name string, external bool, labels map[string]string) error
	RemoveVolume(ctx context.Context, name string) error
	CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string, timeout *int) error
	RestartContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	InspectContainer(ctx context.Context, name string) (docker.ContainerState, error)
	ListContainers(ctx context.Context, project string) ([]docker.OwnedContainer, error)
	WaitHealthy(ctx context.Context, name string, timeout time.Duration) error
}

// Supervisor drives one project against one engine.
type Supervisor struct {
	cfg    *config.Config
	engine Engine

	// Events, when non-nil, receives a notification for every lifecycle
	// action taken. Service is empty for project-level events.
	Events func(service, action, detail string)
}

// New returns a supervisor for the given project.
func New(cfg *config.Config, engine Engine) *Supervisor {
	return &Supervisor{cfg: cfg, engine: engine}
}

func (s *Supervisor) report(service, action, detail string) {
	if s.Events != nil {
		s.Events(service, action, detail)
	}
}

// UpOptions control what Up converges and how.
type UpOptions struct {
	Services []string      // empty means every service
	Pull     bool          // refresh images even when present locally
	Timeout  time.Duration // per-service health gate, default DefaultHealthTimeout
	NoWait   bool          // skip the health gate; the agent reconciles without blocking
}

// Up makes the running state match the project file. Networks, volumes and
// images are ensured first, then services come up stage by stage in
// dependency order; services within a stage converge concurrently. A stage
// must be healthy before the next one starts, so a database is ready before
// the application that needs it.
func (s *Supervisor) Up(ctx context.Context, opts UpOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHealthTimeout
	}

	stages, err := s.stagesFor(opts.Services)
	if err != nil {
		return err
	}

	if err := s.ensureNetworks(ctx); err != nil {
		return err
	}
	if err := s.ensureVolumes(ctx); err != nil {
		return err
	}
	targets := flatten(stages)
	if err := s.ensureImages(ctx, targets, opts.Pull); err != nil {
		return err
	}

	err = forEachStage(ctx, stages, func(ctx context.Context, name string) error {
		return s.converge(ctx, name, opts)
	})
	if err != nil {
		return err
	}
	s.warnOrphans(ctx)
	s.report("", "up", fmt.Sprintf("%d services", len(targets)))
	return nil
}

// warnOrphans points out project containers whose service is no longer in the
// file, usually after a rename. Down removes them; Up only warns.
func (s *Supervisor) warnOrphans(ctx context.Context) {
	owned, err := s.engine.ListContainers(ctx, s.cfg.Name)
	if err != nil {
		log.Printf("up: %v", err)
		return
	}
	for _, c := range owned {
		if _, ok := s.cfg.Services[c.Service]; !ok {
			fmt.Printf("Warning: %s is not in the project file anymore, 'berth down' will remove it\n", c.Name)
		}
	}
}

// converge brings a single service to its declared state and waits for it to
// be running, and healthy when it declares a healthcheck.
func (s *Supervisor) converge(ctx context.Context, name string, opts UpOptions) error {
	svc := s.cfg.Services[name]
	spec, err := docker.Translate(s.cfg, name, svc)
	if err != nil {
		return err
	}

	st, err := s.engine.InspectContainer(ctx, spec.Name)
	if err != nil {
		return err
	}
	imageID, err := s.engine.ImageID(ctx, spec.Image)
	if err != nil {
		return err
	}

	switch {
	case !st.Exists:
		fmt.Printf("Creating %s...\n", name)
		if _, err := s.engine.CreateContainer(ctx, spec); err != nil {
			return err
		}
		if err := s.engine.StartContainer(ctx, spec.Name); err != nil {
			return err
		}
		s.report(name, "start", "created")

	case st.ConfigHash != spec.Labels[docker.LabelHash]:
		if err := s.recreate(ctx, name, spec, "configuration changed"); err != nil {
			return err
		}

	case imageID != "" && st.ImageID != imageID:
		if err := s.recreate(ctx, name, spec, "image updated"); err != nil {
			return err
		}

	case !st.Running:
		fmt.Printf("Starting %s...\n", name)
		if err := s.engine.StartContainer(ctx, spec.Name); err != nil {
			return err
		}
		s.report(name, "start", "")
	}

	if opts.NoWait {
		return nil
	}
	return s.engine.WaitHealthy(ctx, spec.Name, opts.Timeout)
}

// recreate replaces a container whose definition no longer matches reality.
// Named volumes are left in place, so recreation never loses data.
func (s *Supervisor) recreate(ctx context.Context, name string, spec docker.ContainerSpec, reason string) error {
	fmt.Printf("Recreating %s (%s)...\n", name, reason)
	if err := s.engine.StopContainer(ctx, spec.Name, nil); err != nil {
		return err
	}
	if err := s.engine.RemoveContainer(ctx, spec.Name); err != nil {
		return err
	}
	if _, err := s.engine.CreateContainer(ctx, spec); err != nil {
		return err
	}
	if err := s.engine.StartContainer(ctx, spec.Name); err != nil {
		return err
	}
	s.report(name, "recreate", reason)
	return nil
}

func (s *Supervisor) ensureNetworks(ctx context.Context) error {
	for _, name := range s.cfg.NetworkNames() {
		n := s.cfg.Networks[name]
		runtimeName := docker.NetworkName(s.cfg.Name, name, n.External)
		if err := s.engine.EnsureNetwork(ctx, runtimeName, n.Driver, n.External, s.ownerLabels()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) ensureVolumes(ctx context.Context) error {
	for _, name := range s.cfg.VolumeNames() {
		v := s.cfg.Volumes[name]
		runtimeName := docker.VolumeName(s.cfg.Name, name, v.External)
		if err := s.engine.EnsureVolume(ctx, runtimeName, v.External, s.ownerLabels()); err != nil {
			return err
		}
	}
	return nil
}

// ensureImages makes every target service's image available: pulled for
// image services, built when a build service's tag is missing locally. A
// forced rebuild is what the build command is for.
func (s *Supervisor) ensureImages(ctx context.Context, names []string, pull bool) error {
	for _, name := range names {
		svc := s.cfg.Services[name]
		if svc.Build != nil {
			id, err := s.engine.ImageID(ctx, docker.ImageRef(s.cfg.Name, name, svc))
			if err != nil {
				return err
			}
			if id == "" {
				if err := s.buildService(ctx, name, svc); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.engine.EnsureImage(ctx, svc.Image, pull); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) buildService(ctx context.Context, name string, svc config.Service) error {
	b := svc.Build
	tag := docker.ImageRef(s.cfg.Name, name, svc)
	return s.engine.BuildImage(ctx, s.cfg.Resolve(b.Context), b.Dockerfile, b.Args, tag)
}

func (s *Supervisor) ownerLabels() map[string]string {
	return map[string]string{
		docker.LabelProject: s.cfg.Name,
		docker.LabelManaged: "true",
	}
}

// stagesFor returns the start stages for the named services and their
// transitive dependencies, or for the whole project when names is empty.
func (s *Supervisor) stagesFor(names []string) ([][]string, error) {
	if len(names) == 0 {
		return s.cfg.StartOrder()
	}
	return s.cfg.StartOrderFor(names)
}

// forEachStage runs fn for every service of a stage concurrently, then moves
// on. The first failing stage stops the walk.
func forEachStage(ctx context.Context, stages [][]string, fn func(ctx context.Context, name string) error) error {
	for _, stage := range stages {
		var wg sync.WaitGroup
		errs := make([]error, len(stage))
		for i, name := range stage {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = fn(ctx, name)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func flatten(stages [][]string) []string {
	var names []string
	for _, stage := range stages {
		names = append(names, stage...)
	}
	return names
}
