// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmoz_api_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cosmoz_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cosmoz_api_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	TSDBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cosmoz_tsdb_query_duration_seconds",
			Help:    "Time until the time-series store returned the first chunk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	TSDBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmoz_tsdb_query_errors_total",
			Help: "Time-series store query failures",
		},
		[]string{"kind"}, // "transport", "store", "rejected"
	)

	ObservationRowsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmoz_observation_rows_rendered_total",
			Help: "Observation rows written to clients",
		},
		[]string{"representation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cosmoz_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	DocStoreStatements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmoz_docstore_statements_total",
			Help: "SQL statements executed against the document store",
		},
		[]string{"op"},
	)

	TelemetryIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cosmoz_telemetry_messages_total",
			Help: "Telemetry messages received over MQTT",
		},
		[]string{"result"}, // "stored", "invalid", "failed"
	)
)

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}
