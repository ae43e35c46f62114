// Package metrics provides Prometheus metrics for the orasim web terminal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Shell metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orasim_commands_total",
			Help: "Total number of shell commands dispatched",
		},
		[]string{"command", "result"},
	)

	commandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orasim_command_duration_seconds",
			Help:    "Time to evaluate one submitted line",
			Buckets: prometheus.DefBuckets,
		},
	)

	modalSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orasim_modal_sessions_total",
			Help: "Total number of interactive tool sessions entered",
		},
		[]string{"tool"},
	)

	checkpointsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orasim_checkpoints_completed_total",
			Help: "Checkpoints observed transitioning to complete",
		},
		[]string{"checkpoint"},
	)

	persistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orasim_persist_failures_total",
			Help: "Blob writes that failed",
		},
		[]string{"key"},
	)

	// Web metrics
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orasim_active_sessions",
			Help: "Number of connected web terminal sessions",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orasim_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand records one dispatched command. Unknown commands are
// recorded under a single label so arbitrary input cannot explode cardinality.
func RecordCommand(name string, found bool) {
	result := "ok"
	if !found {
		result = "not_found"
		name = "unknown"
	}
	commandsTotal.WithLabelValues(name, result).Inc()
}

// ObserveLine records how long a submitted line took to evaluate.
func ObserveLine(d time.Duration) {
	commandDuration.Observe(d.Seconds())
}

// RecordModalEnter records entry into an interactive tool.
func RecordModalEnter(tool string) {
	modalSessionsTotal.WithLabelValues(tool).Inc()
}

// RecordCheckpoint records a checkpoint becoming complete.
func RecordCheckpoint(id string) {
	checkpointsCompleted.WithLabelValues(id).Inc()
}

// RecordPersistFailure records a failed blob write.
func RecordPersistFailure(key string) {
	persistFailures.WithLabelValues(key).Inc()
}

// SessionOpened increments the active web session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active web session gauge.
func SessionClosed() { activeSessions.Dec() }

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
