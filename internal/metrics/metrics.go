// Package metrics exposes Prometheus collectors for discovery sessions,
// the supervised worker handle and the worker's HTTP surface.
package metrics

import (
	"context"
	"net/http"

	"github.com/aretw0/sidecar/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several instances (tests, embedded hosts) never collide.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	attempts    *prometheus.CounterVec
	sessions    *prometheus.CounterVec
	duration    prometheus.Histogram
	handleState prometheus.Gauge
	requests    *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_discovery_attempts_total",
				Help: "Total number of port discovery attempts by outcome",
			},
			[]string{"outcome"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_discovery_sessions_total",
				Help: "Total number of finished discovery sessions by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sidecar_discovery_duration_seconds",
				Help:    "Time from session start to a terminal state",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
		),
		handleState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sidecar_handle_state",
				Help: "Current worker handle state (0=starting 1=port_known 2=ready 3=failed 4=stopped)",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_worker_requests_total",
				Help: "Total number of HTTP requests served by the worker",
			},
			[]string{"path"},
		),
	}
	m.Registry.MustRegister(m.attempts, m.sessions, m.duration, m.handleState, m.requests)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// DiscoveryHooks returns lifecycle hooks that record session activity.
// Extra hooks, if given, run after the recording.
func (m *Metrics) DiscoveryHooks(next domain.LifecycleHooks) domain.LifecycleHooks {
	if m == nil {
		return next
	}
	return domain.LifecycleHooks{
		OnAttempt: func(ctx context.Context, e *domain.AttemptEvent) {
			m.attempts.WithLabelValues(string(e.Attempt.Outcome)).Inc()
			if next.OnAttempt != nil {
				next.OnAttempt(ctx, e)
			}
		},
		OnReady: func(ctx context.Context, e *domain.SessionEvent) {
			m.sessions.WithLabelValues("ready").Inc()
			m.duration.Observe(e.Elapsed.Seconds())
			if next.OnReady != nil {
				next.OnReady(ctx, e)
			}
		},
		OnFailed: func(ctx context.Context, e *domain.SessionEvent) {
			m.sessions.WithLabelValues("failed").Inc()
			m.duration.Observe(e.Elapsed.Seconds())
			if next.OnFailed != nil {
				next.OnFailed(ctx, e)
			}
		},
	}
}

// ObserveHandleState records the supervisor's view of the worker.
func (m *Metrics) ObserveHandleState(s domain.HandleState) {
	if m == nil {
		return
	}
	m.handleState.Set(float64(s))
}

// ObserveRequest counts one worker HTTP request.
func (m *Metrics) ObserveRequest(path string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path).Inc()
}
