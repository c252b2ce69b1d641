package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamgate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	UploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_uploads_total",
			Help: "Total number of movie uploads",
		},
	)

	UploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamgate_upload_size_bytes",
			Help:    "Size of uploaded movies in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 15), // 1MB to 16GB
		},
	)

	// Pipeline Metrics
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_pipeline_runs_total",
			Help: "Total number of completed pipeline runs",
		},
		[]string{"status"},
	)

	PipelineRunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamgate_pipeline_runs_in_progress",
			Help: "Number of pipeline runs currently executing",
		},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamgate_pipeline_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
	)

	// Streaming Metrics
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_tokens_issued_total",
			Help: "Total number of streaming tokens issued",
		},
		[]string{"class"},
	)

	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_token_verifications_total",
			Help: "Total number of streaming token verifications",
		},
		[]string{"result"},
	)

	SegmentsServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_segments_served_total",
			Help: "Total number of video segments served",
		},
	)

	PlaylistsServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_playlists_served_total",
			Help: "Total number of tokenized playlists served",
		},
	)

	AccessDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_access_denied_total",
			Help: "Total number of denied streaming requests",
		},
		[]string{"phase"},
	)
)
