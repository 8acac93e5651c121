package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mangashelf",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mangashelf",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mangashelf",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	pagesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mangashelf",
			Subsystem: "pages",
			Name:      "uploaded_total",
			Help:      "Page files written to disk.",
		},
	)

	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mangashelf",
			Subsystem: "pages",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of page files written to disk.",
		},
	)

	uploadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mangashelf",
			Subsystem: "pages",
			Name:      "upload_failures_total",
			Help:      "Rejected or aborted upload requests.",
		},
		[]string{"reason"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mangashelf",
			Subsystem: "events",
			Name:      "active_connections",
			Help:      "Connected event feed clients.",
		},
	)

	broadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mangashelf",
			Subsystem: "events",
			Name:      "broadcasts_total",
			Help:      "Events fanned out to clients.",
		},
	)

	broadcastDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mangashelf",
			Subsystem: "events",
			Name:      "broadcast_drops_total",
			Help:      "Events dropped because the hub queue was full.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pagesUploaded,
		uploadBytes,
		uploadFailures,
		activeConnections,
		broadcastsTotal,
		broadcastDrops,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func RecordPageUploaded(bytes int64) {
	pagesUploaded.Inc()
	uploadBytes.Add(float64(bytes))
}

func RecordUploadFailure(reason string) {
	uploadFailures.WithLabelValues(reason).Inc()
}

func SetActiveConnections(count int64) {
	activeConnections.Set(float64(count))
}

func IncrementBroadcasts() {
	broadcastsTotal.Inc()
}

func IncrementBroadcastDrops() {
	broadcastDrops.Inc()
}
