package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across every route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sentry",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// ReadingsIngestedTotal counts accepted device samples.
var ReadingsIngestedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sentry",
		Subsystem: "ingest",
		Name:      "readings_total",
		Help:      "Total number of device readings ingested.",
	},
)

// AlertsDerivedTotal counts alerts produced by the threshold evaluator, by type and severity.
var AlertsDerivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sentry",
		Subsystem: "alerts",
		Name:      "derived_total",
		Help:      "Total number of alerts derived from readings, by type and severity.",
	},
	[]string{"type", "severity"},
)

// FanoutDroppedTotal counts messages dropped due to a full per-connection outbound queue.
var FanoutDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sentry",
		Subsystem: "eventbus",
		Name:      "fanout_dropped_total",
		Help:      "Total number of fan-out messages dropped due to backpressure.",
	},
)

// ActiveConnections reports the number of currently authenticated socket connections.
var ActiveConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "sentry",
		Subsystem: "eventbus",
		Name:      "active_connections",
		Help:      "Number of currently connected, authenticated socket clients.",
	},
)

// RoomMembers reports the current membership size of each room.
var RoomMembers = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "sentry",
		Subsystem: "eventbus",
		Name:      "room_members",
		Help:      "Number of connections currently subscribed to a room.",
	},
	[]string{"room"},
)

// AttendanceSweepInsertedTotal counts absent rows inserted by the daily sweep.
var AttendanceSweepInsertedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sentry",
		Subsystem: "attendance",
		Name:      "sweep_inserted_total",
		Help:      "Total number of absent attendance rows inserted by the daily sweep.",
	},
)

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// and all Sentry-specific collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		ReadingsIngestedTotal,
		AlertsDerivedTotal,
		FanoutDroppedTotal,
		ActiveConnections,
		RoomMembers,
		AttendanceSweepInsertedTotal,
	)
	return reg
}
