// Package metrics provides Prometheus instrumentation for the execution
// pipeline. All metric collectors are registered via the Init function and
// exposed through the Handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CallsTotal counts pipeline calls by pipeline name and outcome
	// (success, failure, rejected, rate_limited, fallback).
	CallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_calls_total",
			Help: "Total pipeline calls by outcome",
		},
		[]string{"pipeline", "outcome"},
	)

	// CallDuration observes end-to-end call latency in seconds, including
	// all retry attempts.
	CallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_call_duration_seconds",
			Help:    "Call latency in seconds including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline"},
	)

	// RetryAttempts counts individual command attempts by pipeline name.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_retry_attempts_total",
			Help: "Total command attempts including the first",
		},
		[]string{"pipeline"},
	)

	// PermitsInFlight tracks currently held admission permits.
	PermitsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_permits_in_flight",
			Help: "Admission permits currently held",
		},
		[]string{"pipeline"},
	)

	// AdmissionRejections counts fail-fast permit rejections.
	AdmissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_admission_rejections_total",
			Help: "Calls rejected because no permit was available",
		},
		[]string{"pipeline"},
	)

	// ThrottleRejections counts calls shed by the requests-per-second gate.
	ThrottleRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_throttle_rejections_total",
			Help: "Calls rejected by the request rate throttle",
		},
		[]string{"pipeline"},
	)

	// BreakerState reports the breaker state as a number (0=closed, 1=open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open)",
		},
		[]string{"pipeline"},
	)

	// BreakerTransitions counts breaker state changes by direction.
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"pipeline", "from", "to"},
	)

	// WindowEvents counts events recorded into the sliding windows.
	WindowEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_window_events_total",
			Help: "Events recorded into the health windows",
		},
		[]string{"pipeline", "kind"},
	)
)

// Init registers all metric collectors with the default Prometheus registry.
// Must be called once at startup before executing calls.
func Init() {
	prometheus.MustRegister(
		CallsTotal,
		CallDuration,
		RetryAttempts,
		PermitsInFlight,
		AdmissionRejections,
		ThrottleRejections,
		BreakerState,
		BreakerTransitions,
		WindowEvents,
	)
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
