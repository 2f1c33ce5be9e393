package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsDiscovered      = prometheus.NewCounter(prometheus.CounterOpts{Name: "alphabuddy_jobs_discovered_total", Help: "Descriptor files picked up from the input directory"})
	JobsRejected        = prometheus.NewCounter(prometheus.CounterOpts{Name: "alphabuddy_jobs_rejected_total", Help: "Jobs failed during parsing or resolution"})
	JobsSucceeded       = prometheus.NewCounter(prometheus.CounterOpts{Name: "alphabuddy_jobs_succeeded_total", Help: "Jobs completed successfully"})
	JobsFailed          = prometheus.NewCounter(prometheus.CounterOpts{Name: "alphabuddy_jobs_failed_total", Help: "Jobs failed during execution"})
	PostProcessWarnings = prometheus.NewCounter(prometheus.CounterOpts{Name: "alphabuddy_postprocess_warnings_total", Help: "Post-processing failures downgraded to warnings"})
	QueueDepthGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "alphabuddy_queue_depth", Help: "Resolved jobs waiting to run"})
	InFlightGauge       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "alphabuddy_inflight", Help: "Jobs currently running (0 or 1)"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsDiscovered,
			JobsRejected,
			JobsSucceeded,
			JobsFailed,
			PostProcessWarnings,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
