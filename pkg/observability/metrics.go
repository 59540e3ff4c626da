// Package observability provides Prometheus metrics, HTTP middleware and
// the structured log sink for the ribamar service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RequestBuckets defines histogram buckets for request latencies, ranging
// from 1ms to 10s.
var RequestBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ribamar_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ribamar_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RequestBuckets,
		},
		[]string{"method"},
	)

	// DispatchTotal counts resolved dispatches by verb, entity, and outcome kind.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ribamar_dispatch_total",
			Help: "Dispatched operations",
		},
		[]string{"verb", "entity", "kind"},
	)

	// SchedulerTicksTotal counts scheduled task executions by result.
	SchedulerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ribamar_scheduler_ticks_total",
			Help: "Scheduler ticks",
		},
		[]string{"task", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		DispatchTotal,
		SchedulerTicksTotal,
	)
}
