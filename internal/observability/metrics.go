package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Caption session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_translator_active_sessions",
		Help: "Number of connected caption sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_translator_sessions_total",
		Help: "Total number of caption sessions accepted",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_translator_session_duration_seconds",
		Help:    "Duration of caption sessions in seconds",
		Buckets: []float64{5, 30, 60, 300, 900, 1800, 3600},
	})

	// Recognition engine lifecycle
	engineRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_translator_engine_restarts_total",
		Help: "Recognition engine restarts by cause",
	}, []string{"reason"})

	watchdogStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_translator_watchdog_stalls_total",
		Help: "Engine stalls detected while speech was ongoing",
	})

	forcedFinalizations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_translator_forced_finalizations_total",
		Help: "Graceful engine stops issued to flush a lingering interim hypothesis",
	})

	proactiveRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_translator_proactive_refreshes_total",
		Help: "Graceful engine stops issued to bound session age",
	})

	// Transcript reconciliation
	segmentsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_translator_segments_committed_total",
		Help: "Final segments committed by origin (final, punctuation)",
	}, []string{"origin"})

	previews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_translator_previews_total",
		Help: "Interim preview updates by outcome (emitted, suppressed)",
	}, []string{"outcome"})

	// Translation
	translationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_translator_translation_requests_total",
		Help: "Translation requests by kind and status",
	}, []string{"kind", "status"})

	translationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "live_translator_translation_latency_seconds",
		Help:    "Translation round trip latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	}, []string{"kind"})

	staleTranslations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_translator_translation_stale_total",
		Help: "Translation results discarded because their job was superseded",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_translator_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "live_translator_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_translator_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_translator_audio_bytes_total",
		Help: "Total microphone audio bytes received from clients",
	})
)

// Metrics tracks metrics for a single caption session
type Metrics struct {
	sessionID string
	startTime time.Time
	endOnce   sync.Once
}

// NewSessionMetrics creates a new metrics tracker for a caption session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Safe to call more than once.
func (m *Metrics) RecordSessionEnd() {
	m.endOnce.Do(func() {
		activeSessions.Dec()
		sessionDuration.Observe(time.Since(m.startTime).Seconds())
	})
}

// RecordAudioBytes records microphone audio bytes received
func (m *Metrics) RecordAudioBytes(bytes int) {
	audioBytesReceived.Add(float64(bytes))
}

// RecordEngineRestart records an engine restart and its cause
func RecordEngineRestart(reason string) {
	engineRestarts.WithLabelValues(reason).Inc()
}

// RecordWatchdogStall records a stall detected by the watchdog
func RecordWatchdogStall() {
	watchdogStalls.Inc()
}

// RecordForcedFinalization records a VAD-driven graceful stop
func RecordForcedFinalization() {
	forcedFinalizations.Inc()
}

// RecordProactiveRefresh records a session-age driven graceful stop
func RecordProactiveRefresh() {
	proactiveRefreshes.Inc()
}

// RecordSegmentCommitted records a committed final segment
func RecordSegmentCommitted(origin string) {
	segmentsCommitted.WithLabelValues(origin).Inc()
}

// RecordPreview records whether an interim update was emitted or throttled
func RecordPreview(emitted bool) {
	outcome := "emitted"
	if !emitted {
		outcome = "suppressed"
	}
	previews.WithLabelValues(outcome).Inc()
}

// RecordTranslation records a finished translation request
func RecordTranslation(kind string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	translationRequests.WithLabelValues(kind, status).Inc()
	translationLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordStaleTranslation records a translation result dropped by the staleness filter
func RecordStaleTranslation() {
	staleTranslations.Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
