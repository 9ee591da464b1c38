// Package agent runs berth in the foreground: a reconcile loop that keeps
// the running containers matched to the project file, restarts services that
// stay unhealthy, and serves a small status API with metrics.
package agent

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/aholstad/berth/internal/config"
	"github.com/aholstad/berth/internal/journal"
	"github.com/aholstad/berth/internal/supervisor"
)

// Options configure the agent.
type Options struct {
	Listen      string        // API listen address
	Interval    time.Duration // time between reconcile passes
	HealthFails int           // consecutive unhealthy observations before a restart
	Version     string        // reported in berth_build_info
}

// Agent reconciles one project until its context ends.
type Agent struct {
	cfg  *config.Config
	sup  *supervisor.Supervisor
	jrnl *journal.Journal
	opts Options

	mu        sync.Mutex
	statuses  []supervisor.ServiceStatus
	observed  time.Time
	unhealthy map[string]int // consecutive unhealthy observations per service
}

// New returns an agent. The journal must be open; lifecycle events from the
// supervisor are expected to be wired to it by the caller.
func New(cfg *config.Config, sup *supervisor.Supervisor, jrnl *journal.Journal, opts Options) *Agent {
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:8787"
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.HealthFails <= 0 {
		opts.HealthFails = 3
	}
	metricBuildInfo.WithLabelValues(opts.Version).Set(1)
	return &Agent{
		cfg:       cfg,
		sup:       sup,
		jrnl:      jrnl,
		opts:      opts,
		unhealthy: map[string]int{},
	}
}

// Run reconciles immediately, then on every tick, while serving the API.
// It returns when ctx is canceled (after a graceful listener shutdown) or
// when the listener fails.
func (a *Agent) Run(ctx context.Context) error {
	log.Printf("agent: reconciling project %s every %s", a.cfg.Name, a.opts.Interval)
	a.reconcile(ctx)

	srv := &http.Server{Addr: a.opts.Listen, Handler: a.Router()}
	errc := make(chan error, 1)
	go func() {
		log.Printf("agent: listening on %s", a.opts.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	tick := time.NewTicker(a.opts.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Print("agent: shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		case err := <-errc:
			return err
		case <-tick.C:
			a.reconcile(ctx)
		}
	}
}

// reconcile converges the project and acts on what it observes. Errors are
// counted and logged, never fatal: the next tick gets another chance.
func (a *Agent) reconcile(ctx context.Context) {
	metricReconcileRuns.Inc()
	if err := a.sup.Up(ctx, supervisor.UpOptions{NoWait: true}); err != nil {
		metricReconcileErrors.Inc()
		log.Printf("agent: reconcile: %v", err)
	}

	statuses, err := a.sup.Status(ctx)
	if err != nil {
		metricReconcileErrors.Inc()
		log.Printf("agent: status: %v", err)
		return
	}
	turned, kick := a.ingest(statuses)

	for _, name := range turned {
		a.journalEvent(ctx, name, "unhealthy", "health check failing")
	}
	for _, name := range kick {
		log.Printf("agent: restarting %s, unhealthy for %d checks", name, a.opts.HealthFails)
		reason := fmt.Sprintf("unhealthy for %d checks", a.opts.HealthFails)
		if err := a.sup.RestartService(ctx, name, reason); err != nil {
			metricReconcileErrors.Inc()
			log.Printf("agent: restart %s: %v", name, err)
			continue
		}
		metricRestarts.WithLabelValues(name).Inc()
	}
}

// ingest stores an observation, updates the metrics and advances the
// unhealthy counters. It returns the services that just turned unhealthy and
// the ones unhealthy long enough to be restarted.
func (a *Agent) ingest(statuses []supervisor.ServiceStatus) (turned, kick []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.statuses = statuses
	a.observed = time.Now()

	for _, st := range statuses {
		up, healthy := 0.0, 0.0
		if st.Running {
			up = 1
			if st.Health == "" || st.Health == "healthy" {
				healthy = 1
			}
		}
		metricServiceUp.WithLabelValues(st.Name).Set(up)
		metricServiceHealthy.WithLabelValues(st.Name).Set(healthy)

		if st.Running && st.Health == "unhealthy" {
			a.unhealthy[st.Name]++
			if a.unhealthy[st.Name] == 1 {
				turned = append(turned, st.Name)
			}
			if a.unhealthy[st.Name] >= a.opts.HealthFails {
				kick = append(kick, st.Name)
				a.unhealthy[st.Name] = 0
			}
		} else {
			delete(a.unhealthy, st.Name)
		}
	}
	return turned, kick
}

func (a *Agent) journalEvent(ctx context.Context, service, action, detail string) {
	if err := a.jrnl.Record(ctx, a.cfg.Name, service, action, detail); err != nil {
		log.Printf("agent: %v", err)
	}
}

// snapshot returns the last observation for the API.
func (a *Agent) snapshot() ([]supervisor.ServiceStatus, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statuses, a.observed
}
