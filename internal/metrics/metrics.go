// Package metrics exposes prometheus collectors for the planning engine and HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hylla/waypoint/internal/planning"
)

// Recorder owns a private registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	dependencyDecisions *prometheus.CounterVec
	layoutRows          prometheus.Histogram
	layoutMilestones    prometheus.Histogram
	degenerateTasks     prometheus.Counter
	httpDuration        *prometheus.HistogramVec
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		dependencyDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_dependency_decisions_total",
				Help: "Dependency validation outcomes by result",
			},
			[]string{"outcome"}, // outcome: accepted or a rejection reason
		),
		layoutRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "waypoint_layout_rows",
			Help:    "Rows used by a roadmap layout",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		}),
		layoutMilestones: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "waypoint_layout_milestones",
			Help:    "Milestones placed by a roadmap layout",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		degenerateTasks: factory.NewCounter(prometheus.CounterOpts{
			Name: "waypoint_progress_degenerate_tasks_total",
			Help: "Linked tasks whose non-positive weight was floored to 1",
		}),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"method", "status"},
		),
	}
}

// DependencyDecision counts one validation outcome.
func (r *Recorder) DependencyDecision(reason planning.RejectReason) {
	outcome := string(reason)
	if reason == planning.ReasonNone {
		outcome = "accepted"
	}
	r.dependencyDecisions.WithLabelValues(outcome).Inc()
}

// LayoutComputed records the size of one layout pass.
func (r *Recorder) LayoutComputed(milestones, rows int) {
	r.layoutMilestones.Observe(float64(milestones))
	r.layoutRows.Observe(float64(rows))
}

// DegenerateTasks counts tasks whose weight had to be floored.
func (r *Recorder) DegenerateTasks(_ string, count int) {
	r.degenerateTasks.Add(float64(count))
}

// ObserveHTTPRequest records one HTTP request duration.
func (r *Recorder) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	r.httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Registry returns the private registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
