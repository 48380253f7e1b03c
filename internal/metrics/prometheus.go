package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the meeting action items service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	SessionDuration prometheus.Histogram
	LivePeers       prometheus.Gauge

	// Audio input metrics
	UploadBytes       prometheus.Histogram
	InputRejected     *prometheus.CounterVec
	FramesReceived    prometheus.Counter
	FrameDecodeErrors prometheus.Counter
	CaptureDuration   prometheus.Histogram

	// Level meter metrics
	LevelDBFS  prometheus.Histogram
	LevelDrops prometheus.Counter

	// Transcription metrics
	ModelLoads            *prometheus.CounterVec
	ModelLoadDuration     prometheus.Histogram
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// Extraction metrics
	ExtractionRequests *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram

	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram

	// Event metrics
	EventsPublished *prometheus.CounterVec
	EventDuration   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mom_active_sessions",
			Help: "Current number of user sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "mom_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "mom_sessions_expired_total",
			Help: "Total number of sessions removed for inactivity",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_session_duration_seconds",
			Help:    "Lifetime of sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~85 minutes
		}),
		LivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mom_live_peers",
			Help: "Current number of connected live capture peers",
		}),

		// Audio input metrics
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_upload_size_bytes",
			Help:    "Size of uploaded recordings",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10), // 64KB to ~16GB
		}),
		InputRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_input_rejected_total",
			Help: "Inputs rejected before transcription",
		}, []string{"reason"}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "mom_frames_received_total",
			Help: "Total number of decoded live audio frames",
		}),
		FrameDecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mom_frame_decode_errors_total",
			Help: "Total number of live audio packets that failed to decode",
		}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_capture_duration_seconds",
			Help:    "Length of live captures handed to transcription",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Level meter metrics
		LevelDBFS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_level_dbfs",
			Help:    "Distribution of live frame levels in dBFS",
			Buckets: prometheus.LinearBuckets(-120, 10, 13), // -120 to 0
		}),
		LevelDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "mom_level_drops_total",
			Help: "Level readings dropped because the display consumer lagged",
		}),

		// Transcription metrics
		ModelLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_model_loads_total",
			Help: "Transcription model load attempts",
		}, []string{"status"}),
		ModelLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_model_load_duration_seconds",
			Help:    "Time spent loading the transcription model",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_transcription_requests_total",
			Help: "Transcription requests by status",
		}, []string{"status"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27 minutes
		}),

		// Extraction metrics
		ExtractionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_extraction_requests_total",
			Help: "Chat completion requests by status",
		}, []string{"status"}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_extraction_duration_seconds",
			Help:    "Duration of chat completion requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		// Pipeline metrics
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_pipeline_runs_total",
			Help: "Pipeline runs by outcome (ok, malformed_json, schema, error)",
		}, []string{"outcome"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_pipeline_duration_seconds",
			Help:    "End to end pipeline run duration",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),

		// Event metrics
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_events_published_total",
			Help: "Result events written to Kafka by status",
		}, []string{"topic", "status"}),
		EventDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mom_event_publish_duration_seconds",
			Help:    "Time spent writing result events",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mom_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mom_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionRemoved records a session's lifetime; expired marks removal by the cleanup routine
func (m *Metrics) RecordSessionRemoved(lifetime time.Duration, expired bool) {
	if expired {
		m.SessionsExpired.Inc()
	}
	m.SessionDuration.Observe(lifetime.Seconds())
}

// AddLivePeers adjusts the connected peer gauge
func (m *Metrics) AddLivePeers(delta int) {
	m.LivePeers.Add(float64(delta))
}

// RecordUpload records an accepted upload
func (m *Metrics) RecordUpload(sizeBytes int64) {
	m.UploadBytes.Observe(float64(sizeBytes))
}

// RecordInputRejected records an input error by reason
func (m *Metrics) RecordInputRejected(reason string) {
	m.InputRejected.WithLabelValues(reason).Inc()
}

// RecordCapture records the length of a finished live capture
func (m *Metrics) RecordCapture(duration time.Duration) {
	m.CaptureDuration.Observe(duration.Seconds())
}

// RecordFrameReceived increments the decoded frame counter
func (m *Metrics) RecordFrameReceived() {
	m.FramesReceived.Inc()
}

// RecordFrameDecodeError increments the decode error counter
func (m *Metrics) RecordFrameDecodeError() {
	m.FrameDecodeErrors.Inc()
}

// RecordLevel observes a frame level
func (m *Metrics) RecordLevel(dbfs float64) {
	m.LevelDBFS.Observe(dbfs)
}

// RecordLevelDropped increments the dropped level counter
func (m *Metrics) RecordLevelDropped() {
	m.LevelDrops.Inc()
}

// RecordModelLoad records a transcription model load attempt
func (m *Metrics) RecordModelLoad(duration time.Duration, err error) {
	m.ModelLoads.WithLabelValues(status(err)).Inc()
	m.ModelLoadDuration.Observe(duration.Seconds())
}

// RecordTranscription records a transcription request
func (m *Metrics) RecordTranscription(duration time.Duration, err error) {
	m.TranscriptionRequests.WithLabelValues(status(err)).Inc()
	m.TranscriptionDuration.Observe(duration.Seconds())
}

// RecordExtraction records a chat completion request
func (m *Metrics) RecordExtraction(duration time.Duration, err error) {
	m.ExtractionRequests.WithLabelValues(status(err)).Inc()
	m.ExtractionDuration.Observe(duration.Seconds())
}

// RecordPipeline records a finished pipeline run
func (m *Metrics) RecordPipeline(outcome string, duration time.Duration) {
	m.PipelineRuns.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(duration.Seconds())
}

// RecordEventPublish records a Kafka write
func (m *Metrics) RecordEventPublish(topic string, err error, duration time.Duration) {
	m.EventsPublished.WithLabelValues(topic, status(err)).Inc()
	m.EventDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
