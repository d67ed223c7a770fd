package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	reconstructBucketStart  = 0.005
	reconstructBucketFactor = 2.0
	reconstructBucketCount  = 14
)

const (
	busLatencyBucketStart  = 0.05
	busLatencyBucketFactor = 2.5
	busLatencyBucketCount  = 12
)

var ReconstructDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "call_log_reconstruct_duration_seconds",
		Help: "Time taken to rebuild one call log from its CEL set",
		Buckets: prometheus.ExponentialBuckets(
			reconstructBucketStart,
			reconstructBucketFactor,
			reconstructBucketCount,
		),
	},
	[]string{"driver"},
)

var BusNotificationLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "cel_bus_notification_latency_seconds",
		Help: "Time between the end-of-call marker and its consumption",
		Buckets: prometheus.ExponentialBuckets(
			busLatencyBucketStart,
			busLatencyBucketFactor,
			busLatencyBucketCount,
		),
	},
)

var CelRowsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cel_rows_processed_total",
		Help: "CEL rows consumed into call logs",
	},
	[]string{"driver"},
)

var CallLogsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "call_logs_created_total",
		Help: "Call logs persisted from CEL sets",
	},
)

var MediaOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "recording_media_operation_duration_seconds",
		Help: "Time taken by recording media store operations",
		Buckets: prometheus.ExponentialBuckets(
			reconstructBucketStart,
			reconstructBucketFactor,
			reconstructBucketCount,
		),
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(ReconstructDuration)
	prometheus.MustRegister(BusNotificationLatency)
	prometheus.MustRegister(CelRowsProcessed)
	prometheus.MustRegister(CallLogsCreated)
	prometheus.MustRegister(MediaOperationDuration)
}
