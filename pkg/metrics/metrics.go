// Package metrics exposes Prometheus instrumentation for live sessions.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics sink without branching at every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audio directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Reasons a captured frame is not sent.
const (
	DropMuted   = "muted"
	DropOverrun = "overrun"
	DropSend    = "send"
)

// Metrics holds all Prometheus metrics for the session engine.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	ConnectDuration prometheus.Histogram

	// Audio metrics
	AudioBytesTotal    *prometheus.CounterVec
	FramesDroppedTotal *prometheus.CounterVec
	DecodeErrorsTotal  prometheus.Counter
	ChunksScheduled    prometheus.Counter
	PlaybackQueue      prometheus.Gauge
	Activity           prometheus.Gauge

	// Conversation metrics
	TurnsTotal         *prometheus.CounterVec
	InterruptionsTotal prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on its own
// registry under namespace. An empty namespace defaults to "live".
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "live"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active live sessions",
		}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of live sessions by outcome",
		}, []string{"status"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		ConnectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time from connect request to setup complete",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		AudioBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM16 audio bytes by direction",
		}, []string{"direction"}),
		FramesDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Captured frames that were not sent",
		}, []string{"reason"}),
		DecodeErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound audio chunks dropped because they could not be decoded",
		}),
		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_scheduled_total",
			Help:      "Total number of audio chunks scheduled for playback",
		}),
		PlaybackQueue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_active_chunks",
			Help:      "Chunks currently scheduled or playing",
		}),
		Activity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_activity",
			Help:      "Activity level of the most recent output chunk (0..1)",
		}),

		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_turns_total",
			Help:      "Completed transcript turns by speaker",
		}, []string{"speaker"}),
		InterruptionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Total number of barge-in interruptions",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of session errors by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session reaching the active state.
func (m *Metrics) RecordSessionStart(connect time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.ConnectDuration.Observe(connect.Seconds())
}

// RecordSessionEnd records an active session ending with status.
func (m *Metrics) RecordSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordConnectFailure records a connect attempt that never became active.
func (m *Metrics) RecordConnectFailure(kind string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues("failed").Inc()
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordAudio records audio bytes in direction.
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrameDropped records a captured frame that was not sent.
func (m *Metrics) RecordFrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordDecodeError records a malformed inbound chunk.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrorsTotal.Inc()
}

// RecordScheduled records a scheduled chunk and the resulting queue depth.
func (m *Metrics) RecordScheduled(active int, activity float64) {
	if m == nil {
		return
	}
	m.ChunksScheduled.Inc()
	m.PlaybackQueue.Set(float64(active))
	m.Activity.Set(activity)
}

// SetPlayback sets the playback gauges.
func (m *Metrics) SetPlayback(active int, activity float64) {
	if m == nil {
		return
	}
	m.PlaybackQueue.Set(float64(active))
	m.Activity.Set(activity)
}

// RecordTurn records a completed transcript turn.
func (m *Metrics) RecordTurn(speaker string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(speaker).Inc()
}

// RecordInterruption records a barge-in.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.InterruptionsTotal.Inc()
}

// RecordError records a runtime error of kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}
