// Package metrics holds the Prometheus collectors for relaybot. They are
// registered on the default registry and served by the health server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var startTime = time.Now()

var (
	// Pipeline metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_events_total",
			Help: "Source events seen, by kind and filter verdict",
		},
		[]string{"kind", "verdict"},
	)

	RenderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_render_errors_total",
			Help: "Events dropped because rendering failed",
		},
	)

	AnnotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_annotations_total",
			Help: "Annotation sections appended, by section",
		},
		[]string{"section"},
	)

	// Delivery metrics
	BatchesFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_batches_flushed_total",
			Help: "Batches handed to the destination sender",
		},
	)

	BatchItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relaybot_batch_items",
			Help:    "Texts plus media items per flushed batch",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_send_errors_total",
			Help: "Failed sends, by destination",
		},
		[]string{"destination"},
	)

	// Oracle metrics
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_oracle_calls_total",
			Help: "Oracle calls, by operation and status",
		},
		[]string{"op", "status"},
	)

	OracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaybot_oracle_duration_seconds",
			Help:    "Oracle call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Signal metrics
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_signals_total",
			Help: "Signal extraction outcomes",
		},
		[]string{"result"},
	)

	Uptime = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "relaybot_uptime_seconds",
			Help: "Seconds since process start",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

// ObserveOracle records one oracle call.
func ObserveOracle(op string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	OracleCalls.WithLabelValues(op, status).Inc()
	OracleDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
