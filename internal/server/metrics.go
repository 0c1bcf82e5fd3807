package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netthinne_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netthinne_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Recognition metrics
	detectRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netthinne_detect_requests_total",
			Help: "Total number of detect requests",
		},
		[]string{"source", "status"}, // source: http, websocket
	)

	detectProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netthinne_detect_processing_duration_seconds",
			Help:    "Pipeline processing duration in seconds",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	objectsPerImage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netthinne_objects_per_image",
			Help:    "Number of recognized objects per image",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		},
		[]string{"source"},
	)

	droppedDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netthinne_dropped_detections_total",
			Help: "Detections discarded because their crop could not be prepared",
		},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netthinne_rate_limit_hits_total",
			Help: "Requests refused by the per-client rate limiter",
		},
		[]string{"limit"}, // minute, requests, bytes
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netthinne_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netthinne_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netthinne_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// observeResult records the outcome of one pipeline run.
func observeResult(source string, seconds float64, objects, dropped int) {
	detectRequestsTotal.WithLabelValues(source, "success").Inc()
	detectProcessingDuration.WithLabelValues(source).Observe(seconds)
	objectsPerImage.WithLabelValues(source).Observe(float64(objects))
	if dropped > 0 {
		droppedDetectionsTotal.Add(float64(dropped))
	}
}
