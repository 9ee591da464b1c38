package supervisor

import (
	"context"
	"time"

	"github.com/aholstad/berth/internal/docker"
)

// ServiceStatus pairs a declared service with the observed container state.
// It feeds both the ps table and the agent's status API.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Ports     []string  `json:"ports,omitempty"`
	Exists    bool      `json:"exists"`
	Running   bool      `json:"running"`
	Status    string    `json:"status,omitempty"`
	Health    string    `json:"health,omitempty"`
	ExitCode  int       `json:"exit_code"`
	StartedAt time.Time `json:"started_at"`
	Restarts  int       `json:"restarts"`
	Drifted   bool      `json:"drifted"` // definition changed since the container was created
}

// Status reports every declared service in name order, whether its container
// exists or not.
func (s *Supervisor) Status(ctx context.Context) ([]ServiceStatus, error) {
	var out []ServiceStatus
	for _, name := range s.cfg.ServiceNames() {
		svc := s.cfg.Services[name]
		spec, err := docker.Translate(s.cfg, name, svc)
		if err != nil {
			return nil, err
		}
		st, err := s.engine.InspectContainer(ctx, spec.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, ServiceStatus{
			Name:      name,
			Image:     spec.Image,
			Ports:     svc.Ports,
			Exists:    st.Exists,
			Running:   st.Running,
			Status:    st.Status,
			Health:    st.Health,
			ExitCode:  st.ExitCode,
			StartedAt: st.StartedAt,
			Restarts:  st.RestartCount,
			Drifted:   st.Exists && st.ConfigHash != spec.Labels[docker.LabelHash],
		})
	}
	return out, nil
}
