// Package session drives one recording session at a time: it acquires the
// microphone, feeds the chunker and fans every chunk out to the transcription
// client without waiting for earlier chunks to finish.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/livescribe/internal/chunker"
	"github.com/leonardotrapani/livescribe/internal/metrics"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
	"github.com/leonardotrapani/livescribe/internal/transcript"
)

type State string

const (
	Idle      State = "idle"
	Recording State = "recording"
)

// Transcriber turns one chunk into one result. Implementations must be safe
// for concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk chunker.AudioChunk) transcriber.Result
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State        State
	ID           uuid.UUID
	NextSequence int
	StartedAt    time.Time
	InFlight     int
	Transcript   transcript.Stats
	Revision     uint64
}

type Option func(*Controller)

func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithChunkerOptions is passed through to every chunker the controller creates.
func WithChunkerOptions(opts ...chunker.Option) Option {
	return func(c *Controller) { c.chunkerOpts = append(c.chunkerOpts, opts...) }
}

type Controller struct {
	ctx         context.Context
	source      recording.Source
	assembler   *transcript.Assembler
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	chunkerOpts []chunker.Option

	mu          sync.Mutex // guards everything below
	client      Transcriber
	chunkConfig chunker.Config
	state       State
	id          uuid.UUID
	startedAt   time.Time
	stream      recording.Stream
	chunker     *chunker.Chunker

	inflight  sync.WaitGroup
	inflightN atomic.Int64
}

// New creates an idle controller. ctx bounds the lifetime of capture and of
// every transcription call; Stop does not cancel calls already in flight.
func New(ctx context.Context, source recording.Source, client Transcriber, assembler *transcript.Assembler,
	chunkConfig chunker.Config, opts ...Option) *Controller {
	c := &Controller{
		ctx:         ctx,
		source:      source,
		assembler:   assembler,
		notifier:    notify.Nop{},
		client:      client,
		chunkConfig: chunkConfig,
		state:       Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure replaces the client and chunking config. A running session keeps
// the ones it started with; the next Start picks up the new values.
func (c *Controller) Configure(client Transcriber, chunkConfig chunker.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
	c.chunkConfig = chunkConfig
}

// Toggle starts a session when idle and stops it when recording. It reports
// whether a session is running afterwards.
func (c *Controller) Toggle() (bool, error) {
	c.mu.Lock()
	recordingNow := c.state == Recording
	c.mu.Unlock()

	if recordingNow {
		return false, c.Stop()
	}
	if err := c.Start(); err != nil {
		return false, err
	}
	return true, nil
}

// Start opens the audio source and begins segmenting. It is a no-op while a
// session is already running. A device failure leaves the controller idle
// and returns an error matching recording.ErrDeviceUnavailable.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Recording {
		return nil
	}
	if c.client == nil {
		return errors.New("no transcription client configured")
	}

	id := uuid.New()

	stream, err := c.source.Open(c.ctx)
	if err != nil {
		log.Printf("Session: failed to open audio source: %v", err)
		if errors.Is(err, recording.ErrDeviceUnavailable) {
			c.metrics.RecordDeviceError()
		}
		c.notifier.Error("Microphone unavailable")
		return fmt.Errorf("start session: %w", err)
	}

	// Reset before the first chunk of this session can exist.
	c.assembler.Reset(id)

	client := c.client
	ch := chunker.New(c.chunkConfig, c.chunkerOpts...)
	ch.Subscribe(func(chunk chunker.AudioChunk) {
		c.dispatch(client, chunk)
	})

	if err := ch.Start(stream.Frames(), id); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start chunker: %w", err)
	}

	c.state = Recording
	c.id = id
	c.startedAt = time.Now()
	c.stream = stream
	c.chunker = ch

	c.metrics.RecordSessionStarted()
	c.notifier.RecordingChanged(true)
	log.Printf("Session: started %s", id)

	go c.watch(id, stream, ch.Done())
	return nil
}

// Stop flushes the open segment as the final chunk and releases the device.
// Transcriptions already in flight keep running. Stop is a no-op when idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return nil
	}
	err := c.teardown()
	c.notifier.RecordingChanged(false)
	return err
}

// teardown must be called with mu held.
func (c *Controller) teardown() error {
	id := c.id
	c.chunker.Stop()
	err := c.stream.Close()

	c.state = Idle
	c.stream = nil
	c.metrics.RecordSessionStopped()
	log.Printf("Session: stopped %s after %d chunks", id, c.chunker.NextSequence())

	if err != nil {
		return fmt.Errorf("close audio source: %w", err)
	}
	return nil
}

// watch ends the session on its own when capture fails or the frame stream
// runs dry. Effects are applied only if id is still the current session.
func (c *Controller) watch(id uuid.UUID, stream recording.Stream, done <-chan struct{}) {
	errs := stream.Err()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.endSession(id, err)
			return
		case <-done:
			c.endSession(id, nil)
			return
		}
	}
}

func (c *Controller) endSession(id uuid.UUID, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording || c.id != id {
		return
	}

	if cause != nil {
		log.Printf("Session: capture failed: %v", cause)
	} else {
		log.Printf("Session: capture ended")
	}
	if err := c.teardown(); err != nil {
		log.Printf("Session: %v", err)
	}
	if cause != nil {
		c.notifier.Error("Recording stopped: " + cause.Error())
	}
	c.notifier.RecordingChanged(false)
}

// dispatch runs on the chunker goroutine and must not block.
func (c *Controller) dispatch(client Transcriber, chunk chunker.AudioChunk) {
	c.metrics.RecordChunk(len(chunk.Payload), chunk.Duration)
	c.metrics.RecordTranscriptionStart()
	c.inflight.Add(1)
	c.inflightN.Add(1)

	go func() {
		defer c.inflight.Done()
		defer c.inflightN.Add(-1)

		result := client.Transcribe(c.ctx, chunk)

		outcome := metrics.OutcomeSuccess
		if result.Failed() {
			outcome = "error"
			if kind, ok := transcriber.KindOf(result.Err); ok {
				outcome = string(kind)
			}
		}
		c.metrics.RecordTranscriptionDone(outcome, result.Latency)

		if !c.assembler.OnResult(result) {
			c.metrics.RecordStaleResult()
		}
	}()
}

// Wait blocks until every dispatched transcription has delivered its result
// or ctx is done. Call it after Stop.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) InFlight() int {
	return int(c.inflightN.Load())
}

func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Recording
}

// Transcript is the settled transcript of the current (or last) session.
func (c *Controller) Transcript() []string {
	return c.assembler.CurrentTranscript()
}

// Populated includes text that follows a chunk still in flight.
func (c *Controller) Populated() []string {
	return c.assembler.Populated()
}

// WaitForChange blocks until the transcript revision differs from since, or
// ctx is done. It returns the revision it observed.
func (c *Controller) WaitForChange(ctx context.Context, since uint64) uint64 {
	for {
		changed := c.assembler.Changes()
		if rev := c.assembler.Revision(); rev != since {
			return rev
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return c.assembler.Revision()
		}
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:      c.state,
		ID:         c.id,
		StartedAt:  c.startedAt,
		InFlight:   c.InFlight(),
		Transcript: c.assembler.Stats(),
		Revision:   c.assembler.Revision(),
	}
	if c.chunker != nil {
		s.NextSequence = c.chunker.NextSequence()
	}
	return s
}
