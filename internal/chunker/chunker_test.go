package chunker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/livescribe/internal/audio"
	"github.com/leonardotrapani/livescribe/internal/recording"
)

// unitBytes is one "time unit" of audio (100ms of 16kHz mono s16).
const unitBytes = 3200

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type harness struct {
	t       *testing.T
	chunker *Chunker
	frames  chan recording.AudioFrame
	ticker  *manualTicker
	chunks  chan AudioChunk
	session uuid.UUID
}

// newHarness wires a chunker to unbuffered channels so every frame and tick
// is observed by the segmentation goroutine in the order the test sends them.
func newHarness(t *testing.T, tickerBuffer int) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		frames:  make(chan recording.AudioFrame),
		ticker:  &manualTicker{ch: make(chan time.Time, tickerBuffer)},
		chunks:  make(chan AudioChunk, 128),
		session: uuid.New(),
	}
	config := Config{Interval: 300 * time.Millisecond, Format: audio.DefaultFormat()}
	h.chunker = New(config, WithTicker(func(time.Duration) Ticker { return h.ticker }))
	h.chunker.Subscribe(func(c AudioChunk) { h.chunks <- c })
	if err := h.chunker.Start(h.frames, h.session); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return h
}

func (h *harness) feedUnits(n int) {
	for i := 0; i < n; i++ {
		h.frames <- recording.AudioFrame{Data: make([]byte, unitBytes), Timestamp: time.Now()}
	}
}

func (h *harness) tick() {
	h.ticker.ch <- time.Now()
}

func (h *harness) collect() []AudioChunk {
	var out []AudioChunk
	for {
		select {
		case c := <-h.chunks:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Interval != 3*time.Second {
		t.Errorf("default interval should be 3s, got %v", config.Interval)
	}
	if config.Format != audio.DefaultFormat() {
		t.Errorf("unexpected default format: %+v", config.Format)
	}
}

func TestChunker_SevenUnitsAtIntervalThree(t *testing.T) {
	h := newHarness(t, 0)

	h.feedUnits(3)
	h.tick()
	h.feedUnits(3)
	h.tick()
	h.feedUnits(1)
	h.chunker.Stop()

	chunks := h.collect()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantSizes := []int{3 * unitBytes, 3 * unitBytes, unitBytes}
	for i, c := range chunks {
		if c.Sequence != i {
			t.Errorf("chunk %d has sequence %d", i, c.Sequence)
		}
		if len(c.Payload) != wantSizes[i] {
			t.Errorf("chunk %d payload = %d bytes, want %d", i, len(c.Payload), wantSizes[i])
		}
		if c.Session != h.session {
			t.Errorf("chunk %d carries session %s, want %s", i, c.Session, h.session)
		}
	}

	if chunks[0].Duration != 300*time.Millisecond {
		t.Errorf("chunk 0 duration = %v, want 300ms", chunks[0].Duration)
	}
	if chunks[2].Duration != 100*time.Millisecond {
		t.Errorf("final chunk duration = %v, want 100ms", chunks[2].Duration)
	}
}

func TestChunker_ChunkCountProperty(t *testing.T) {
	const interval = 3

	for d := 0; d <= 20; d++ {
		h := newHarness(t, 0)

		for u := 1; u <= d; u++ {
			h.feedUnits(1)
			if u%interval == 0 {
				h.tick()
			}
		}
		h.chunker.Stop()

		chunks := h.collect()
		full := d / interval
		rest := d % interval

		want := full
		if rest > 0 {
			want++
		}
		if len(chunks) != want {
			t.Fatalf("D=%d: expected %d chunks, got %d", d, want, len(chunks))
		}

		total := 0
		for i, c := range chunks {
			if c.Sequence != i {
				t.Errorf("D=%d: sequence gap at %d (got %d)", d, i, c.Sequence)
			}
			if i < full && len(c.Payload) != interval*unitBytes {
				t.Errorf("D=%d: chunk %d has %d bytes, want %d", d, i, len(c.Payload), interval*unitBytes)
			}
			total += len(c.Payload)
		}
		if rest > 0 && len(chunks[full].Payload) != rest*unitBytes {
			t.Errorf("D=%d: final chunk has %d bytes, want %d", d, len(chunks[full].Payload), rest*unitBytes)
		}
		if total != d*unitBytes {
			t.Errorf("D=%d: lost audio, emitted %d of %d bytes", d, total, d*unitBytes)
		}
	}
}

func TestChunker_EmptySegmentsAreDropped(t *testing.T) {
	h := newHarness(t, 0)

	h.tick() // nothing captured yet
	h.feedUnits(2)
	h.tick()
	h.tick() // empty again
	h.chunker.Stop()

	chunks := h.collect()
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Sequence != 0 {
		t.Errorf("empty segments must not consume sequence numbers, got %d", chunks[0].Sequence)
	}
	if h.chunker.NextSequence() != 1 {
		t.Errorf("NextSequence() = %d, want 1", h.chunker.NextSequence())
	}
}

func TestChunker_StopRacingTick(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, 1)

		h.feedUnits(2)
		h.ticker.ch <- time.Now() // pending, not yet consumed
		h.chunker.Stop()

		chunks := h.collect()
		if len(chunks) != 1 {
			t.Fatalf("iteration %d: expected exactly 1 chunk, got %d", i, len(chunks))
		}
		if len(chunks[0].Payload) != 2*unitBytes {
			t.Fatalf("iteration %d: expected %d bytes, got %d", i, 2*unitBytes, len(chunks[0].Payload))
		}
	}
}

func TestChunker_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, 0)
	h.feedUnits(1)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.chunker.Stop()
		}()
	}
	wg.Wait()
	h.chunker.Stop()

	if got := len(h.collect()); got != 1 {
		t.Errorf("expected 1 final chunk, got %d", got)
	}
	if h.chunker.State() != Idle {
		t.Errorf("state = %s, want idle", h.chunker.State())
	}
	if !h.ticker.stopped.Load() {
		t.Error("ticker should be disarmed on stop")
	}
}

func TestChunker_FrameStreamClosed(t *testing.T) {
	h := newHarness(t, 0)
	h.feedUnits(2)
	close(h.frames)

	select {
	case <-h.chunker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("chunker did not finish after frame stream closed")
	}

	chunks := h.collect()
	if len(chunks) != 1 || len(chunks[0].Payload) != 2*unitBytes {
		t.Fatalf("expected one final chunk of %d bytes, got %+v", 2*unitBytes, chunks)
	}
	if h.chunker.State() != Idle {
		t.Errorf("state = %s, want idle", h.chunker.State())
	}

	// Stop after self-termination is a no-op.
	h.chunker.Stop()
	if got := len(h.collect()); got != 0 {
		t.Errorf("Stop emitted %d extra chunks", got)
	}
}

func TestChunker_StartTwice(t *testing.T) {
	h := newHarness(t, 0)
	defer h.chunker.Stop()

	if err := h.chunker.Start(make(chan recording.AudioFrame), uuid.New()); err == nil {
		t.Error("second Start should fail while segmenting")
	}
}

func TestChunker_RestartResetsSequence(t *testing.T) {
	h := newHarness(t, 0)
	h.feedUnits(1)
	h.tick()
	h.feedUnits(1)
	h.chunker.Stop()
	if got := len(h.collect()); got != 2 {
		t.Fatalf("first run: expected 2 chunks, got %d", got)
	}

	frames := make(chan recording.AudioFrame)
	second := uuid.New()
	if err := h.chunker.Start(frames, second); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	frames <- recording.AudioFrame{Data: make([]byte, unitBytes)}
	h.chunker.Stop()

	chunks := h.collect()
	if len(chunks) != 1 {
		t.Fatalf("second run: expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Sequence != 0 || chunks[0].Session != second {
		t.Errorf("second run chunk = seq %d session %s, want seq 0 session %s",
			chunks[0].Sequence, chunks[0].Session, second)
	}
}

func TestChunker_InvalidInterval(t *testing.T) {
	c := New(Config{Interval: 0, Format: audio.DefaultFormat()})
	if err := c.Start(make(chan recording.AudioFrame), uuid.New()); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestChunker_AllSubscribersReceiveEachChunkOnce(t *testing.T) {
	frames := make(chan recording.AudioFrame)
	ticker := &manualTicker{ch: make(chan time.Time)}
	c := New(DefaultConfig(), WithTicker(func(time.Duration) Ticker { return ticker }))

	var a, b []int
	c.Subscribe(func(ch AudioChunk) { a = append(a, ch.Sequence) })
	c.Subscribe(func(ch AudioChunk) { b = append(b, ch.Sequence) })

	if err := c.Start(frames, uuid.New()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	frames <- recording.AudioFrame{Data: []byte{1, 2}}
	ticker.ch <- time.Now()
	frames <- recording.AudioFrame{Data: []byte{3, 4}}
	c.Stop()

	if len(a) != 2 || len(b) != 2 || a[0] != 0 || a[1] != 1 || b[0] != 0 || b[1] != 1 {
		t.Errorf("subscribers saw a=%v b=%v, want [0 1] each", a, b)
	}
}

func TestChunker_WallClockTickerLosesNoAudio(t *testing.T) {
	frames := make(chan recording.AudioFrame, 30)
	c := New(Config{Interval: 15 * time.Millisecond, Format: audio.DefaultFormat()})

	var mu sync.Mutex
	var total, count int
	c.Subscribe(func(ch AudioChunk) {
		mu.Lock()
		total += len(ch.Payload)
		count++
		mu.Unlock()
	})

	if err := c.Start(frames, uuid.New()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sent := 0
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		frames <- recording.AudioFrame{Data: make([]byte, 320)}
		sent += 320
		time.Sleep(time.Millisecond)
	}
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if total != sent {
		t.Errorf("emitted %d bytes, sent %d", total, sent)
	}
	if count < 2 {
		t.Errorf("expected several chunks, got %d", count)
	}
}

func TestChunker_WithClock(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	frames := make(chan recording.AudioFrame)
	ticker := &manualTicker{ch: make(chan time.Time)}
	c := New(DefaultConfig(),
		WithTicker(func(time.Duration) Ticker { return ticker }),
		WithClock(func() time.Time { return fixed }),
	)

	var got AudioChunk
	c.Subscribe(func(ch AudioChunk) { got = ch })
	if err := c.Start(frames, uuid.New()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	frames <- recording.AudioFrame{Data: []byte{0, 0}}
	c.Stop()

	if !got.CapturedAt.Equal(fixed) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, fixed)
	}
}
