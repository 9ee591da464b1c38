package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricServiceUp = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "berth_service_up",
		Help: "Whether the service container is running, by service.",
	},
	[]string{
		"service",
	},
)

var metricServiceHealthy = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "berth_service_healthy",
		Help: "Whether the service is running and passing its health check, by service.",
	},
	[]string{
		"service",
	},
)

var metricRestarts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "berth_service_restarts_total",
		Help: "Number of restarts the agent issued for unhealthy services, by service.",
	},
	[]string{
		"service",
	},
)

var metricReconcileRuns = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "berth_reconcile_runs_total",
		Help: "Number of reconcile passes.",
	},
)

var metricReconcileErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "berth_reconcile_errors_total",
		Help: "Number of reconcile passes that reported an error.",
	},
)

var metricBuildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "berth_build_info",
		Help: "Constant 1, labeled with the running berth version.",
	},
	[]string{
		"version",
	},
)
