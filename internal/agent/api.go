package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aholstad/berth/internal/supervisor"
)

// Router returns the agent's HTTP API.
func (a *Agent) Router() http.Handler {
	r := httprouter.New()

	r.GET("/api/services", a.handleServices)
	r.POST("/api/services/:name/restart", a.handleRestart)
	r.GET("/api/events", a.handleEvents)
	r.GET("/healthz", a.handleHealthz)
	r.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type servicesResponse struct {
	Project  string                     `json:"project"`
	Observed time.Time                  `json:"observed"`
	Services []supervisor.ServiceStatus `json:"services"`
}

// handleServices reports the state of every service as of the last reconcile.
func (a *Agent) handleServices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	statuses, observed := a.snapshot()
	apiSuccess(w, servicesResponse{
		Project:  a.cfg.Name,
		Observed: observed,
		Services: statuses,
	})
}

// handleRestart bounces one service on request.
func (a *Agent) handleRestart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("name")
	if err := a.sup.RestartService(r.Context(), name, "requested via api"); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrUnknownService) {
			code = http.StatusNotFound
		}
		apiError(w, code, err)
		return
	}
	apiSuccess(w, map[string]string{"restarted": name})
}

// handleEvents returns recent journal entries, newest first. ?n= bounds the
// count, default 50.
func (a *Agent) handleEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			apiError(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", v))
			return
		}
		n = parsed
	}
	events, err := a.jrnl.List(r.Context(), n)
	if err != nil {
		apiError(w, http.StatusInternalServerError, err)
		return
	}
	apiSuccess(w, events)
}

func (a *Agent) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	apiSuccess(w, map[string]string{"status": "ok"})
}

func apiSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Println(err)
	}
}

func apiError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); err != nil {
		log.Println(err)
	}
}
