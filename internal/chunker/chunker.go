// Package chunker slices a continuous capture stream into fixed-interval
// audio chunks.
//
// A single goroutine owns the open segment and selects over incoming frames,
// the interval ticker and the stop signal. Closing a segment and opening the
// next one therefore happens between two frame receives, so no frame can
// fall between segments.
package chunker

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/livescribe/internal/audio"
	"github.com/leonardotrapani/livescribe/internal/recording"
)

// AudioChunk is one closed segment. It is never mutated after emission.
type AudioChunk struct {
	Session    uuid.UUID
	Sequence   int
	Payload    []byte
	CapturedAt time.Time
	Duration   time.Duration
}

type State string

const (
	Idle       State = "idle"
	Segmenting State = "segmenting"
)

type Config struct {
	Interval time.Duration
	Format   audio.Format
}

func DefaultConfig() Config {
	return Config{
		Interval: 3 * time.Second,
		Format:   audio.DefaultFormat(),
	}
}

// Ticker is the subset of *time.Ticker the chunker needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

type Option func(*Chunker)

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Chunker) { c.newTicker = fn }
}

// WithClock replaces time.Now for chunk timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chunker) { c.now = now }
}

type Chunker struct {
	config    Config
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	mu          sync.Mutex // guards state, subscribers, stopCh and done
	state       State
	subscribers []func(AudioChunk)
	stopCh      chan struct{}
	done        chan struct{}

	nextSequence atomic.Int64
}

func New(config Config, opts ...Option) *Chunker {
	c := &Chunker{
		config:    config,
		newTicker: newTimeTicker,
		now:       time.Now,
		state:     Idle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn to receive every emitted chunk. Subscribers run on
// the segmentation goroutine and must not block.
func (c *Chunker) Subscribe(fn func(AudioChunk)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *Chunker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextSequence is the sequence number the next emitted chunk will carry.
func (c *Chunker) NextSequence() int {
	return int(c.nextSequence.Load())
}

// Done is closed once the segmentation goroutine of the current run exits.
// It is nil before the first Start.
func (c *Chunker) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Chunker) Start(frames <-chan recording.AudioFrame, session uuid.UUID) error {
	if c.config.Interval <= 0 {
		return fmt.Errorf("invalid chunk interval: %v", c.config.Interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Segmenting {
		return fmt.Errorf("chunker: already segmenting")
	}

	c.state = Segmenting
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.nextSequence.Store(0)

	subscribers := make([]func(AudioChunk), len(c.subscribers))
	copy(subscribers, c.subscribers)

	ticker := c.newTicker(c.config.Interval)
	go c.run(frames, session, ticker, subscribers, c.stopCh, c.done)

	log.Printf("Chunker: segmenting session %s every %v", session, c.config.Interval)
	return nil
}

// Stop closes the open segment, emits it as the final chunk and waits for
// the segmentation goroutine. Calling Stop more than once is safe.
func (c *Chunker) Stop() {
	c.mu.Lock()
	if c.state == Segmenting {
		c.state = Idle
		close(c.stopCh)
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

type segment struct {
	data     []byte
	openedAt time.Time
}

func (c *Chunker) run(frames <-chan recording.AudioFrame, session uuid.UUID, ticker Ticker,
	subscribers []func(AudioChunk), stopCh <-chan struct{}, done chan<- struct{}) {
	defer func() {
		ticker.Stop()
		c.mu.Lock()
		if c.done == done {
			c.state = Idle
		}
		c.mu.Unlock()
		close(done)
	}()

	seg := segment{openedAt: c.now()}

	cut := func() {
		closed := seg
		seg = segment{openedAt: c.now()}
		c.emit(closed, session, subscribers)
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				log.Printf("Chunker: frame stream closed, flushing final chunk")
				cut()
				return
			}
			seg.data = append(seg.data, frame.Data...)

		case <-ticker.C():
			cut()

		case <-stopCh:
			ticker.Stop()
			// Frames already captured belong to this session.
		drain:
			for {
				select {
				case frame, ok := <-frames:
					if !ok {
						break drain
					}
					seg.data = append(seg.data, frame.Data...)
				default:
					break drain
				}
			}
			cut()
			return
		}
	}
}

func (c *Chunker) emit(seg segment, session uuid.UUID, subscribers []func(AudioChunk)) {
	if len(seg.data) == 0 {
		return
	}

	chunk := AudioChunk{
		Session:    session,
		Sequence:   int(c.nextSequence.Add(1) - 1),
		Payload:    seg.data,
		CapturedAt: seg.openedAt,
		Duration:   c.config.Format.Duration(len(seg.data)),
	}

	for _, fn := range subscribers {
		fn(chunk)
	}
}
