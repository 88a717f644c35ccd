package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

// MetricsService exposes sweep and HTTP counters on a prometheus registry.
type MetricsService struct {
	registry *prometheus.Registry

	sweepRuns      prometheus.Counter
	sweepPostponed prometheus.Counter
	sweepConfirmed prometheus.Counter
	sweepErrors    prometheus.Counter

	httpRequests *prometheus.CounterVec
}

// NewMetricsService builds the registry and registers all collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postponement_sweep_runs_total",
			Help: "Completed postponement sweep runs.",
		}),
		sweepPostponed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postponement_sweep_postponed_total",
			Help: "Course dates auto-postponed by the sweep.",
		}),
		sweepConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postponement_sweep_confirmed_total",
			Help: "Course dates confirmed by the sweep.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postponement_sweep_errors_total",
			Help: "Per-item errors during sweep runs.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
	}
	m.registry.MustRegister(m.sweepRuns, m.sweepPostponed, m.sweepConfirmed, m.sweepErrors, m.httpRequests)
	return m
}

// Registry returns the underlying registry for the metrics endpoint.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSweep records the outcome of one sweep run.
func (m *MetricsService) ObserveSweep(result models.SweepResult) {
	m.sweepRuns.Inc()
	m.sweepPostponed.Add(float64(result.Postponed))
	m.sweepConfirmed.Add(float64(result.Confirmed))
	m.sweepErrors.Add(float64(result.Errors))
}

// ObserveRequest records one HTTP request.
func (m *MetricsService) ObserveRequest(method, path, status string) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
}
