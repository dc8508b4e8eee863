package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photocheck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Photo check metrics
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_checks_total",
			Help: "Total number of full compliance checks by outcome",
		},
		[]string{"source", "reason_code"}, // source: order, upload, websocket
	)

	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photocheck_check_duration_seconds",
			Help:    "Full compliance check duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25},
		},
		[]string{"source"},
	)

	quickChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_quick_checks_total",
			Help: "Total number of quick face-count checks",
		},
		[]string{"result"}, // result: face, no_face, multiple_faces
	)

	facesDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photocheck_faces_detected",
			Help:    "Number of faces found per checked photo",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	storageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	printSheetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_print_sheets_total",
			Help: "Total number of rendered print sheets",
		},
		[]string{"format"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photocheck_upload_size_bytes",
			Help:    "Size of uploaded photos in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 25 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photocheck_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photocheck_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
