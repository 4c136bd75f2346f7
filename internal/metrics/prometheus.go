package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the speech gateway.
// All record methods are safe on a nil receiver so components can run
// unmetered in tests.
type Metrics struct {
	// Inbound event metrics
	EventsReceived *prometheus.CounterVec
	DecodeErrors   prometheus.Counter
	EventsDropped  prometheus.Counter

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Utterance metrics
	UtterancesFlushed prometheus.Counter
	UtteranceBytes    prometheus.Histogram
	TimeoutFlushes    prometheus.Counter

	// Recognition metrics
	RecognitionRequests  prometheus.Counter
	RecognitionSuccesses prometheus.Counter
	RecognitionFailures  prometheus.Counter
	RecognitionTimeouts  prometheus.Counter
	RecognitionDuration  prometheus.Histogram
	StreamResults        *prometheus.CounterVec

	// Dispatcher metrics
	EventsPublished    *prometheus.CounterVec
	PublishesDropped   prometheus.Counter
	CompletionRequests prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speechgw_events_received_total",
			Help: "Total number of inbound client events by type",
		}, []string{"type"}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_audio_decode_errors_total",
			Help: "Total number of malformed audio payloads",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_events_dropped_total",
			Help: "Total number of events dropped for unknown or evicted sessions",
		}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "speechgw_active_sessions",
			Help: "Current number of active client sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechgw_session_duration_seconds",
			Help:    "Lifetime of client sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		UtterancesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_utterances_flushed_total",
			Help: "Total number of utterances handed to recognition",
		}),
		UtteranceBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechgw_utterance_bytes",
			Help:    "Size of flushed utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KiB to ~2MiB
		}),
		TimeoutFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_timeout_flushes_total",
			Help: "Total number of utterances flushed by the silence watchdog",
		}),

		RecognitionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_recognition_requests_total",
			Help: "Total number of recognition requests",
		}),
		RecognitionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_recognition_successes_total",
			Help: "Total number of successful recognitions",
		}),
		RecognitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_recognition_failures_total",
			Help: "Total number of failed recognitions",
		}),
		RecognitionTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_recognition_timeouts_total",
			Help: "Total number of recognitions treated as no speech detected",
		}),
		RecognitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechgw_recognition_duration_seconds",
			Help:    "Time spent waiting on the recognition backend",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		StreamResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speechgw_stream_results_total",
			Help: "Total number of streaming recognition results by finality",
		}, []string{"final"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speechgw_events_published_total",
			Help: "Total number of outbound events published by type",
		}, []string{"type"}),
		PublishesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_publishes_dropped_total",
			Help: "Total number of outbound events dropped for removed clients",
		}),
		CompletionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speechgw_completion_requests_total",
			Help: "Total number of completion service calls",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speechgw_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speechgw_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speechgw_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordEventReceived counts one inbound client event
func (m *Metrics) RecordEventReceived(eventType string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordDecodeError counts one malformed audio payload
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordEventDropped counts one event for an unknown session
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// RecordSessionCreated tracks session creation
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionDestroyed tracks session teardown and its lifetime
func (m *Metrics) RecordSessionDestroyed(lifetime time.Duration) {
	if m == nil {
		return
	}
	m.SessionsDestroyed.Inc()
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(lifetime.Seconds())
}

// RecordUtteranceFlushed tracks one utterance boundary
func (m *Metrics) RecordUtteranceFlushed(sizeBytes int, byTimeout bool) {
	if m == nil {
		return
	}
	m.UtterancesFlushed.Inc()
	m.UtteranceBytes.Observe(float64(sizeBytes))
	if byTimeout {
		m.TimeoutFlushes.Inc()
	}
}

// RecordRecognition tracks one completed recognition request
func (m *Metrics) RecordRecognition(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.RecognitionRequests.Inc()
	m.RecognitionDuration.Observe(duration.Seconds())

	switch outcome {
	case "success":
		m.RecognitionSuccesses.Inc()
	case "timeout":
		m.RecognitionTimeouts.Inc()
	default:
		m.RecognitionFailures.Inc()
	}
}

// RecordStreamResult tracks one asynchronous streaming result
func (m *Metrics) RecordStreamResult(isFinal bool) {
	if m == nil {
		return
	}
	if isFinal {
		m.StreamResults.WithLabelValues("true").Inc()
	} else {
		m.StreamResults.WithLabelValues("false").Inc()
	}
}

// RecordEventPublished counts one outbound event
func (m *Metrics) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordPublishDropped counts one event dropped for a removed client
func (m *Metrics) RecordPublishDropped() {
	if m == nil {
		return
	}
	m.PublishesDropped.Inc()
}

// RecordCompletionRequest counts one completion service call
func (m *Metrics) RecordCompletionRequest() {
	if m == nil {
		return
	}
	m.CompletionRequests.Inc()
}

// RecordHTTPRequest records metrics for an HTTP API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records an HTTP API error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
