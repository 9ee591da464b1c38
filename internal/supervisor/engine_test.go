package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aholstad/berth/internal/docker"
)

// fakeEngine is an in-memory Engine. It records every call as "verb name" so
// tests can assert what happened and in what order.
type fakeEngine struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	networks   map[string]bool
	volumes    map[string]bool
	images     map[string]string // ref -> image ID
	unhealthy  map[string]bool   // containers that never report healthy
	builds     int
	calls      []string
}

type fakeContainer struct {
	spec    docker.ContainerSpec
	running bool
	imageID string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: map[string]*fakeContainer{},
		networks:   map[string]bool{},
		volumes:    map[string]bool{},
		images:     map[string]string{},
		unhealthy:  map[string]bool{},
	}
}

func (e *fakeEngine) record(verb, name string) {
	e.calls = append(e.calls, verb+" "+name)
}

// called reports whether an exact "verb name" call was made.
func (e *fakeEngine) called(call string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if c == call {
			return true
		}
	}
	return false
}

// callIndex returns the position of the first matching call, or -1.
func (e *fakeEngine) callIndex(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.calls {
		if c == call {
			return i
		}
	}
	return -1
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// callsSince returns the calls recorded after position n.
func (e *fakeEngine) callsSince(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls[n:]...)
}

// setImage overrides the local ID of an image, simulating a newer pull.
func (e *fakeEngine) setImage(ref, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[ref] = id
}

func (e *fakeEngine) EnsureImage(ctx context.Context, image string, pull bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !pull && e.images[image] != "" {
		return nil
	}
	e.images[image] = "sha256:" + image
	e.record("pull", image)
	return nil
}

func (e *fakeEngine) BuildImage(ctx context.Context, contextDir, dockerfile string, args []string, tag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds++
	e.images[tag] = fmt.Sprintf("sha256:%s#%d", tag, e.builds)
	e.record("build", tag)
	return nil
}

func (e *fakeEngine) ImageID(ctx context.Context, ref string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[ref], nil
}

func (e *fakeEngine) EnsureNetwork(ctx context.Context, name, driver string, external bool, labels map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.networks[name] {
		return nil
	}
	if external {
		return fmt.Errorf("external network %s not found", name)
	}
	e.networks[name] = true
	e.record("create-network", name)
	return nil
}

func (e *fakeEngine) RemoveNetwork(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.networks, name)
	e.record("remove-network", name)
	return nil
}

func (e *fakeEngine) EnsureVolume(ctx context.Context, name string, external bool, labels map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.volumes[name] {
		return nil
	}
	if external {
		return fmt.Errorf("external volume %s not found", name)
	}
	e.volumes[name] = true
	e.record("create-volume", name)
	return nil
}

func (e *fakeEngine) RemoveVolume(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.volumes, name)
	e.record("remove-volume", name)
	return nil
}

func (e *fakeEngine) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.containers[spec.Name]; ok {
		return "", fmt.Errorf("container %s already exists", spec.Name)
	}
	e.containers[spec.Name] = &fakeContainer{spec: spec, imageID: e.images[spec.Image]}
	e.record("create", spec.Name)
	return "id-" + spec.Name, nil
}

func (e *fakeEngine) StartContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return fmt.Errorf("no such container %s", name)
	}
	c.running = true
	e.record("start", name)
	return nil
}

func (e *fakeEngine) StopContainer(ctx context.Context, name string, timeout *int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return fmt.Errorf("no such container %s", name)
	}
	c.running = false
	e.record("stop", name)
	return nil
}

func (e *fakeEngine) RestartContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return fmt.Errorf("no such container %s", name)
	}
	c.running = true
	e.record("restart", name)
	return nil
}

func (e *fakeEngine) RemoveContainer(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.containers, name)
	e.record("remove", name)
	return nil
}

func (e *fakeEngine) ListContainers(ctx context.Context, project string) ([]docker.OwnedContainer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []docker.OwnedContainer
	for name, c := range e.containers {
		if c.spec.Labels[docker.LabelProject] != project {
			continue
		}
		out = append(out, docker.OwnedContainer{
			ID:      "id-" + name,
			Name:    name,
			Service: c.spec.Labels[docker.LabelService],
			Running: c.running,
		})
	}
	return out, nil
}

func (e *fakeEngine) InspectContainer(ctx context.Context, name string) (docker.ContainerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return docker.ContainerState{}, nil
	}
	st := docker.ContainerState{
		ID:         "id-" + name,
		Exists:     true,
		Running:    c.running,
		Status:     "exited",
		ImageID:    c.imageID,
		Image:      c.spec.Image,
		ConfigHash: c.spec.Labels[docker.LabelHash],
	}
	if c.running {
		st.Status = "running"
	}
	if c.spec.Healthcheck != nil {
		st.Health = "healthy"
		if e.unhealthy[name] {
			st.Health = "unhealthy"
		}
	}
	return st, nil
}

func (e *fakeEngine) WaitHealthy(ctx context.Context, name string, timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return fmt.Errorf("container %s does not exist", name)
	}
	if !c.running {
		return fmt.Errorf("container %s is not running", name)
	}
	if e.unhealthy[name] {
		return fmt.Errorf("container %s did not become healthy", name)
	}
	return nil
}
