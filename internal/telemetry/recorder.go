// Package telemetry records per-stream and adapter-wide transcription
// statistics as structured log summaries and Prometheus metrics.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stt_whisper"

// Recorder tracks adapter-level telemetry.
type Recorder struct {
	log     *slog.Logger
	metrics *collectors

	totalStreams          atomic.Uint64
	activeStreams         atomic.Int64
	totalSegments         atomic.Uint64
	totalBytes            atomic.Uint64
	totalTranscripts      atomic.Uint64
	totalFinalTranscripts atomic.Uint64
	totalFlushes          atomic.Uint64
	totalErrors           atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalStreams          uint64
	ActiveStreams         int64
	TotalSegments         uint64
	TotalBytes            uint64
	TotalTranscripts      uint64
	TotalFinalTranscripts uint64
	TotalFlushes          uint64
	TotalErrors           uint64
}

type collectors struct {
	streams     prometheus.Counter
	active      prometheus.Gauge
	segments    prometheus.Counter
	bytes       prometheus.Counter
	transcripts *prometheus.CounterVec
	flushes     prometheus.Counter
	errors      prometheus.Counter
	inference   prometheus.Histogram
}

func newCollectors(reg prometheus.Registerer) *collectors {
	factory := promauto.With(reg)
	return &collectors{
		streams: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Transcription streams opened.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Transcription streams currently open.",
		}),
		segments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Audio segments received.",
		}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio payload bytes received.",
		}),
		transcripts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Transcripts emitted, by finality.",
		}, []string{"final"}),
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Stream flush requests handled.",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Streams that ended with an error.",
		}),
		inference: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent in whisper inference per segment.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// Option customises a Recorder.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the recorder's Prometheus collectors on reg.
// Without it the collectors are kept on a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}
	return &Recorder{
		log:     logger.With("component", "telemetry.Recorder"),
		metrics: newCollectors(o.registerer),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalStreams:          r.totalStreams.Load(),
		ActiveStreams:         r.activeStreams.Load(),
		TotalSegments:         r.totalSegments.Load(),
		TotalBytes:            r.totalBytes.Load(),
		TotalTranscripts:      r.totalTranscripts.Load(),
		TotalFinalTranscripts: r.totalFinalTranscripts.Load(),
		TotalFlushes:          r.totalFlushes.Load(),
		TotalErrors:           r.totalErrors.Load(),
	}
}

// StreamMetrics accumulates statistics for a single transcription stream.
// It is owned by the goroutine serving the stream.
type StreamMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	sessionID string
	streamID  string
	metadata  map[string]string

	started          time.Time
	segments         int
	bytes            int
	transcripts      int
	finalTranscripts int
	flushes          int
	inference        time.Duration
	lastSequence     uint64
	closed           atomic.Bool
}

// StartStream initialises a StreamMetrics instance bound to the recorder.
func (r *Recorder) StartStream(sessionID, streamID string, metadata map[string]string) *StreamMetrics {
	if r == nil {
		return nil
	}

	clonedMetadata := cloneMetadata(metadata)

	streamLogger := r.log.With(
		"session_id", sessionID,
		"stream_id", streamID,
	)
	if len(clonedMetadata) > 0 {
		streamLogger = streamLogger.With("metadata", clonedMetadata)
	}

	r.totalStreams.Add(1)
	r.activeStreams.Add(1)
	r.metrics.streams.Inc()
	r.metrics.active.Inc()

	return &StreamMetrics{
		recorder: r,
		log:      streamLogger,

		sessionID: sessionID,
		streamID:  streamID,
		metadata:  clonedMetadata,

		started: time.Now(),
	}
}

// RecordSegment updates counters for an incoming audio segment.
func (s *StreamMetrics) RecordSegment(sequence uint64, size int, final bool) {
	if s == nil || size <= 0 {
		return
	}
	s.segments++
	s.bytes += size
	s.lastSequence = sequence
	s.recorder.totalSegments.Add(1)
	s.recorder.totalBytes.Add(uint64(size))
	s.recorder.metrics.segments.Inc()
	s.recorder.metrics.bytes.Add(float64(size))

	s.log.Debug("segment received",
		"sequence", sequence,
		"bytes", size,
		"final", final,
	)
}

// RecordInferenceDuration accounts time spent transcribing one segment.
func (s *StreamMetrics) RecordInferenceDuration(d time.Duration) {
	if s == nil || d < 0 {
		return
	}
	s.inference += d
	s.recorder.metrics.inference.Observe(d.Seconds())
}

// RecordTranscript stores statistics for an emitted transcript.
func (s *StreamMetrics) RecordTranscript(sequence uint64, text string, final bool) {
	if s == nil {
		return
	}
	s.transcripts++
	label := "false"
	if final {
		s.finalTranscripts++
		s.recorder.totalFinalTranscripts.Add(1)
		label = "true"
	}
	s.recorder.totalTranscripts.Add(1)
	s.recorder.metrics.transcripts.WithLabelValues(label).Inc()

	s.log.Debug("transcript emitted",
		"sequence", sequence,
		"final", final,
		"chars", len(text),
		"runes", utf8.RuneCountInString(text),
	)
}

// RecordFlush increments counters for a stream flush event.
func (s *StreamMetrics) RecordFlush() {
	if s == nil {
		return
	}
	s.flushes++
	s.recorder.totalFlushes.Add(1)
	s.recorder.metrics.flushes.Inc()
}

// Finish logs a summary and updates active stream counters.
func (s *StreamMetrics) Finish(err error) {
	if s == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	defer func() {
		s.recorder.activeStreams.Add(-1)
		s.recorder.metrics.active.Dec()
	}()

	duration := time.Since(s.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"inference_ms", s.inference.Milliseconds(),
		"segments", s.segments,
		"bytes", s.bytes,
		"last_sequence", s.lastSequence,
		"transcripts", s.transcripts,
		"final_transcripts", s.finalTranscripts,
		"flushes", s.flushes,
	}

	if err != nil {
		s.recorder.totalErrors.Add(1)
		s.recorder.metrics.errors.Inc()
		s.log.Error("stream completed with error", append(args, "error", err)...)
		return
	}

	s.log.Info("stream completed", args...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
