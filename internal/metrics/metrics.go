package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for transcription requests. Failures use the
// transcriber error kind as their label.
const OutcomeSuccess = "success"

// Metrics contains all Prometheus metrics for the recording pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Session metrics
	SessionsStarted prometheus.Counter
	DeviceErrors    prometheus.Counter
	Recording       prometheus.Gauge

	// Chunking metrics
	ChunksEmitted prometheus.Counter
	ChunkSize     prometheus.Histogram
	ChunkDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	InFlight              prometheus.Gauge
	StaleResults          prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		DeviceErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_device_errors_total",
			Help: "Total number of failed audio device acquisitions",
		}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_recording",
			Help: "1 while a recording session is active",
		}),

		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_chunks_emitted_total",
			Help: "Total number of audio chunks emitted by the chunker",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_chunk_size_bytes",
			Help:    "Size of emitted audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_chunk_duration_seconds",
			Help:    "Audio duration of emitted chunks",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		}),

		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_transcription_requests_total",
			Help: "Total number of transcription requests by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_transcriptions_in_flight",
			Help: "Current number of transcription requests in flight",
		}),
		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_stale_results_total",
			Help: "Results discarded because their session was no longer current",
		}),
	}
}

func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.Recording.Set(1)
}

func (m *Metrics) RecordSessionStopped() {
	if m == nil {
		return
	}
	m.Recording.Set(0)
}

func (m *Metrics) RecordDeviceError() {
	if m == nil {
		return
	}
	m.DeviceErrors.Inc()
}

func (m *Metrics) RecordChunk(sizeBytes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ChunksEmitted.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
	m.ChunkDuration.Observe(duration.Seconds())
}

// RecordTranscriptionStart marks a request as in flight.
func (m *Metrics) RecordTranscriptionStart() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// RecordTranscriptionDone records the outcome of a request started with
// RecordTranscriptionStart.
func (m *Metrics) RecordTranscriptionDone(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.TranscriptionRequests.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordStaleResult() {
	if m == nil {
		return
	}
	m.StaleResults.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Metrics: listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
