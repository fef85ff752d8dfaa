package live

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the orchestrator.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	AudioBytesTotal  *prometheus.CounterVec
	VideoFramesTotal prometheus.Counter

	ToolCallsTotal       *prometheus.CounterVec
	BackgroundTasksTotal *prometheus.CounterVec

	KeepAliveFramesTotal prometheus.Counter
	InterruptsTotal      prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors
// registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vai_agent"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions_active",
		Help:      "Number of active live sessions",
	})

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_sessions_total",
		Help:      "Total number of live sessions",
	}, []string{"status"})

	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "live_session_duration_seconds",
		Help:      "Live session duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	audioBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_audio_bytes_total",
		Help:      "Total audio bytes processed in live sessions",
	}, []string{"direction"})

	videoFramesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_video_frames_total",
		Help:      "Total video still frames forwarded",
	})

	toolCallsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Total tool calls by strategy and outcome",
	}, []string{"strategy", "outcome"})

	backgroundTasksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "background_tasks_total",
		Help:      "Total background tasks reaching a terminal status",
	}, []string{"status"})

	keepAliveFramesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "keepalive_frames_total",
		Help:      "Total silent keep-alive frames sent",
	})

	interruptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interrupts_total",
		Help:      "Total playback flushes caused by model interruption",
	})

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		videoFramesTotal,
		toolCallsTotal,
		backgroundTasksTotal,
		keepAliveFramesTotal,
		interruptsTotal,
	)

	return &Metrics{
		registry:             registry,
		SessionsActive:       sessionsActive,
		SessionsTotal:        sessionsTotal,
		SessionDuration:      sessionDuration,
		AudioBytesTotal:      audioBytesTotal,
		VideoFramesTotal:     videoFramesTotal,
		ToolCallsTotal:       toolCallsTotal,
		BackgroundTasksTotal: backgroundTasksTotal,
		KeepAliveFramesTotal: keepAliveFramesTotal,
		InterruptsTotal:      interruptsTotal,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
