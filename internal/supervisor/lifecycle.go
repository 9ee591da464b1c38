package supervisor

import (
	"context"
	"fmt"
	"log"

	"github.com/aholstad/berth/internal/docker"
)

// DownOptions control what Down tears down besides the containers.
type DownOptions struct {
	Volumes bool // also remove project-owned named volumes, deleting their data
}

// Down stops and removes all project containers in reverse dependency order,
// then removes the networks the project created. Named volumes survive unless
// explicitly asked for: data outlives the stack. External networks and
// volumes are never touched. Failures on individual resources are logged and
// the teardown continues, so one stuck container does not leave the rest
// behind.
func (s *Supervisor) Down(ctx context.Context, opts DownOptions) error {
	stages, err := s.cfg.StopOrder()
	if err != nil {
		return err
	}

	failures := 0
	for _, stage := range stages {
		for _, name := range stage {
			cname := docker.ContainerName(s.cfg.Name, name)
			st, err := s.engine.InspectContainer(ctx, cname)
			if err != nil {
				log.Printf("down: %v", err)
				failures++
				continue
			}
			if !st.Exists {
				continue
			}
			if st.Running {
				fmt.Printf("Stopping %s...\n", name)
				if err := s.engine.StopContainer(ctx, cname, nil); err != nil {
					log.Printf("down: %v", err)
					failures++
				}
			}
			if err := s.engine.RemoveContainer(ctx, cname); err != nil {
				log.Printf("down: %v", err)
				failures++
				continue
			}
			s.report(name, "stop", "removed")
		}
	}

	// Containers still carrying the project label belong to services that
	// were renamed or dropped from the file. Down means gone, so sweep them
	// before the networks they might be attached to.
	owned, err := s.engine.ListContainers(ctx, s.cfg.Name)
	if err != nil {
		log.Printf("down: %v", err)
		failures++
	}
	for _, c := range owned {
		if _, ok := s.cfg.Services[c.Service]; ok {
			continue
		}
		fmt.Printf("Removing orphan %s...\n", c.Name)
		if c.Running {
			if err := s.engine.StopContainer(ctx, c.Name, nil); err != nil {
				log.Printf("down: %v", err)
				failures++
			}
		}
		if err := s.engine.RemoveContainer(ctx, c.Name); err != nil {
			log.Printf("down: %v", err)
			failures++
			continue
		}
		s.report(c.Service, "stop", "removed orphan")
	}

	for _, name := range s.cfg.NetworkNames() {
		if s.cfg.Networks[name].External {
			continue
		}
		if err := s.engine.RemoveNetwork(ctx, docker.NetworkName(s.cfg.Name, name, false)); err != nil {
			log.Printf("down: %v", err)
			failures++
		}
	}
	if opts.Volumes {
		for _, name := range s.cfg.VolumeNames() {
			if s.cfg.Volumes[name].External {
				continue
			}
			if err := s.engine.RemoveVolume(ctx, docker.VolumeName(s.cfg.Name, name, false)); err != nil {
				log.Printf("down: %v", err)
				failures++
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("down finished with %d errors", failures)
	}
	s.report("", "down", "")
	return nil
}

// Start brings existing stopped containers back up in dependency order,
// including the dependencies of the named services. It never creates or
// recreates anything; a service that was never brought up is an error.
func (s *Supervisor) Start(ctx context.Context, services []string) error {
	stages, err := s.stagesFor(services)
	if err != nil {
		return err
	}
	return forEachStage(ctx, stages, func(ctx context.Context, name string) error {
		cname := docker.ContainerName(s.cfg.Name, name)
		st, err := s.engine.InspectContainer(ctx, cname)
		if err != nil {
			return err
		}
		if !st.Exists {
			return fmt.Errorf("service %s has no container, run 'berth up' first", name)
		}
		if !st.Running {
			fmt.Printf("Starting %s...\n", name)
			if err := s.engine.StartContainer(ctx, cname); err != nil {
				return err
			}
			s.report(name, "start", "")
		}
		return s.engine.WaitHealthy(ctx, cname, DefaultHealthTimeout)
	})
}

// Stop stops the named services, or every service, without removing
// anything. Only the named services stop; their dependencies keep running
// for whatever else uses them.
func (s *Supervisor) Stop(ctx context.Context, services []string) error {
	stages, err := s.cfg.StopOrder()
	if err != nil {
		return err
	}
	if len(services) > 0 {
		if err := s.checkServices(services); err != nil {
			return err
		}
		stages = filterStages(stages, services)
	}

	for _, stage := range stages {
		for _, name := range stage {
			cname := docker.ContainerName(s.cfg.Name, name)
			st, err := s.engine.InspectContainer(ctx, cname)
			if err != nil {
				return err
			}
			if !st.Exists || !st.Running {
				continue
			}
			fmt.Printf("Stopping %s...\n", name)
			if err := s.engine.StopContainer(ctx, cname, nil); err != nil {
				return err
			}
			s.report(name, "stop", "")
		}
	}
	return nil
}

// Restart bounces the named services, or every service, in dependency order,
// waiting for health between stages like Up does.
func (s *Supervisor) Restart(ctx context.Context, services []string) error {
	stages, err := s.cfg.StartOrder()
	if err != nil {
		return err
	}
	if len(services) > 0 {
		if err := s.checkServices(services); err != nil {
			return err
		}
		stages = filterStages(stages, services)
	}

	return forEachStage(ctx, stages, func(ctx context.Context, name string) error {
		cname := docker.ContainerName(s.cfg.Name, name)
		st, err := s.engine.InspectContainer(ctx, cname)
		if err != nil {
			return err
		}
		if !st.Exists {
			return fmt.Errorf("service %s has no container, run 'berth up' first", name)
		}
		fmt.Printf("Restarting %s...\n", name)
		if err := s.engine.RestartContainer(ctx, cname); err != nil {
			return err
		}
		s.report(name, "restart", "")
		return s.engine.WaitHealthy(ctx, cname, DefaultHealthTimeout)
	})
}

// RestartService bounces a single service without waiting for health. The
// agent uses it to kick persistently unhealthy services, and the status API
// exposes it for manual restarts.
func (s *Supervisor) RestartService(ctx context.Context, name, reason string) error {
	if _, ok := s.cfg.Services[name]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownService, name)
	}
	if err := s.engine.RestartContainer(ctx, docker.ContainerName(s.cfg.Name, name)); err != nil {
		return err
	}
	s.report(name, "restart", reason)
	return nil
}

// Pull refreshes every image-based service from its registry. Built services
// are skipped; rebuilding is what Build is for.
func (s *Supervisor) Pull(ctx context.Context) error {
	for _, name := range s.cfg.ServiceNames() {
		svc := s.cfg.Services[name]
		if svc.Build != nil {
			continue
		}
		if err := s.engine.EnsureImage(ctx, svc.Image, true); err != nil {
			return err
		}
	}
	return nil
}

// Build rebuilds every service that declares a build context, whether or not
// the image already exists.
func (s *Supervisor) Build(ctx context.Context) error {
	built := 0
	for _, name := range s.cfg.ServiceNames() {
		svc := s.cfg.Services[name]
		if svc.Build == nil {
			continue
		}
		if err := s.buildService(ctx, name, svc); err != nil {
			return err
		}
		built++
	}
	if built == 0 {
		fmt.Println("No services declare a build context.")
	}
	return nil
}

func (s *Supervisor) checkServices(names []string) error {
	for _, name := range names {
		if _, ok := s.cfg.Services[name]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownService, name)
		}
	}
	return nil
}

// filterStages restricts stages to the named services, preserving their
// relative order and dropping stages left empty.
func filterStages(stages [][]string, names []string) [][]string {
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
	}
	var out [][]string
	for _, stage := range stages {
		var kept []string
		for _, name := range stage {
			if keep[name] {
				kept = append(kept, name)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
