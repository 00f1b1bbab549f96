package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"camera_id"})

	FrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "frame_errors_total",
		Help:      "Frames whose processing failed",
	}, []string{"camera_id"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded by the capture reader because the worker fell behind",
	}, []string{"camera_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "faces_detected_total",
		Help:      "Faces above the detector confidence floor",
	}, []string{"camera_id"})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "faces_matched_total",
		Help:      "Faces resolved by the matcher, split by known and unknown",
	}, []string{"camera_id", "result"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vms",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	EnrolledIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vms",
		Name:      "enrolled_identities",
		Help:      "Identities currently loaded in the matcher cache",
	})

	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vms",
		Name:      "active_cameras",
		Help:      "Number of currently running camera workers",
	})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "alerts_raised_total",
		Help:      "Alerts produced by the behavior and geofence engines",
	}, []string{"event_type"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "alerts_suppressed_total",
		Help:      "Alerts withheld by the duplicate suppression window",
	}, []string{"event_type"})

	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "dispatch_attempts_total",
		Help:      "Webhook delivery attempts by outcome",
	}, []string{"outcome"})

	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vms",
		Name:      "dispatch_queue_depth",
		Help:      "Alerts waiting for delivery",
	})

	DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vms",
		Name:      "dispatch_dropped_total",
		Help:      "Alerts dropped because the delivery queue was full",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vms",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vms",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
