package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Live is a snapshot of session counters. Latency fields are nil until the
// first measurement of the current session arrives.
type Live struct {
	SessionStarts       uint64  `json:"sessionStarts"`
	SessionErrors       uint64  `json:"sessionErrors"`
	Reconnects          uint64  `json:"reconnects"`
	ChunksSent          uint64  `json:"chunksSent"`
	ChunksDropped       uint64  `json:"chunksDropped"`
	AvgInputRMS         float64 `json:"avgInputRms"`
	FirstAudioLatencyMs *int64  `json:"firstAudioLatencyMs"`
	FirstTextLatencyMs  *int64  `json:"firstTextLatencyMs"`
	LastRoundTripMs     *int64  `json:"lastRoundTripMs"`
}

// Collector accumulates live-session metrics. All methods are safe for
// concurrent use.
type Collector struct {
	mu       sync.Mutex
	live     Live
	rmsCount uint64

	sessionStarts prometheus.Counter
	sessionErrors prometheus.Counter
	reconnects    prometheus.Counter
	chunksSent    prometheus.Counter
	chunksDropped prometheus.Counter
	inputRMS      prometheus.Histogram
	firstAudio    prometheus.Histogram
	firstText     prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector registering its Prometheus metrics with
// the given registerer. Pass a fresh registry in tests to avoid duplicate
// registration panics.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		sessionStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_session_starts_total",
			Help: "Total number of live session connection attempts",
		}),
		sessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_session_errors_total",
			Help: "Total number of live session errors",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_session_reconnects_total",
			Help: "Total number of live session reconnects",
		}),
		chunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_audio_chunks_sent_total",
			Help: "Total number of audio chunks sent to the model",
		}),
		chunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_audio_chunks_dropped_total",
			Help: "Total number of audio chunks dropped from the outbound queue",
		}),
		inputRMS: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "live_input_rms",
			Help:    "RMS level of captured audio chunks",
			Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
		}),
		firstAudio: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "live_first_audio_latency_seconds",
			Help:    "Latency from voice onset to first model audio",
			Buckets: prometheus.DefBuckets,
		}),
		firstText: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "live_first_text_latency_seconds",
			Help:    "Latency from voice onset to first model text",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RecordSessionStart counts a connection attempt and resets the per-session
// latency measurements.
func (c *Collector) RecordSessionStart() {
	c.mu.Lock()
	c.live.SessionStarts++
	c.live.FirstAudioLatencyMs = nil
	c.live.FirstTextLatencyMs = nil
	c.live.LastRoundTripMs = nil
	c.mu.Unlock()
	c.sessionStarts.Inc()
}

// RecordSessionError counts a session-level failure.
func (c *Collector) RecordSessionError() {
	c.mu.Lock()
	c.live.SessionErrors++
	c.mu.Unlock()
	c.sessionErrors.Inc()
}

// RecordReconnect counts an explicit reconnect.
func (c *Collector) RecordReconnect() {
	c.mu.Lock()
	c.live.Reconnects++
	c.mu.Unlock()
	c.reconnects.Inc()
}

// RecordChunkSent counts an audio chunk delivered to the session.
func (c *Collector) RecordChunkSent() {
	c.mu.Lock()
	c.live.ChunksSent++
	c.mu.Unlock()
	c.chunksSent.Inc()
}

// RecordChunkDropped counts a chunk evicted from the outbound queue.
func (c *Collector) RecordChunkDropped() {
	c.mu.Lock()
	c.live.ChunksDropped++
	c.mu.Unlock()
	c.chunksDropped.Inc()
}

// ObserveInputRMS folds a chunk's RMS into the running average.
func (c *Collector) ObserveInputRMS(rms float64) {
	c.mu.Lock()
	c.rmsCount++
	c.live.AvgInputRMS += (rms - c.live.AvgInputRMS) / float64(c.rmsCount)
	c.mu.Unlock()
	c.inputRMS.Observe(rms)
}

// RecordFirstAudioLatency records the delay from voice onset to the first
// model audio of the turn.
func (c *Collector) RecordFirstAudioLatency(ms int64) {
	c.mu.Lock()
	v := ms
	c.live.FirstAudioLatencyMs = &v
	c.mu.Unlock()
	c.firstAudio.Observe(float64(ms) / 1000)
}

// RecordFirstTextLatency records the delay from voice onset to the first
// model text of the turn. Text closes the round trip, so it also updates
// the last round-trip measurement.
func (c *Collector) RecordFirstTextLatency(ms int64) {
	c.mu.Lock()
	v := ms
	c.live.FirstTextLatencyMs = &v
	rt := ms
	c.live.LastRoundTripMs = &rt
	c.mu.Unlock()
	c.firstText.Observe(float64(ms) / 1000)
}

// ObserveHTTPRequest records a served HTTP request for the metrics endpoint.
func (c *Collector) ObserveHTTPRequest(method, path, status string, seconds float64) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(seconds)
}

// Snapshot returns a copy of the live counters.
func (c *Collector) Snapshot() Live {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.live
	if c.live.FirstAudioLatencyMs != nil {
		v := *c.live.FirstAudioLatencyMs
		out.FirstAudioLatencyMs = &v
	}
	if c.live.FirstTextLatencyMs != nil {
		v := *c.live.FirstTextLatencyMs
		out.FirstTextLatencyMs = &v
	}
	if c.live.LastRoundTripMs != nil {
		v := *c.live.LastRoundTripMs
		out.LastRoundTripMs = &v
	}
	return out
}
