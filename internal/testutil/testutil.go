package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/recording"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Transcription.APIKey = "test-api-key"
	cfg.Notifications.Type = "log"
	return cfg
}

// MockAudioFrame creates a test audio frame of n bytes
func MockAudioFrame(n int) recording.AudioFrame {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return recording.AudioFrame{
		Data:      data,
		Timestamp: time.Now(),
	}
}

// FakeStream is a recording.Stream driven by the test through FrameCh and
// ErrCh.
type FakeStream struct {
	FrameCh chan recording.AudioFrame
	ErrCh   chan error

	closed    chan struct{}
	closeOnce sync.Once
	endOnce   sync.Once
}

func NewFakeStream() *FakeStream {
	return &FakeStream{
		FrameCh: make(chan recording.AudioFrame),
		ErrCh:   make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (s *FakeStream) Frames() <-chan recording.AudioFrame { return s.FrameCh }
func (s *FakeStream) Err() <-chan error                   { return s.ErrCh }

func (s *FakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// End closes the frame channel as a capture process exiting would.
func (s *FakeStream) End() {
	s.endOnce.Do(func() { close(s.FrameCh) })
}

func (s *FakeStream) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// FakeSource opens FakeStreams, or fails with Err when set.
type FakeSource struct {
	Err error

	mu      sync.Mutex
	streams []*FakeStream
}

func (f *FakeSource) Open(ctx context.Context) (recording.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	s := NewFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

// SetErr makes subsequent Open calls fail with err.
func (f *FakeSource) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Opened returns how many streams have been opened.
func (f *FakeSource) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// Last returns the most recently opened stream.
func (f *FakeSource) Last() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

// RecordingNotifier records every notification it receives.
type RecordingNotifier struct {
	mu      sync.Mutex
	changes []bool
	errors  []string
}

func (n *RecordingNotifier) RecordingChanged(on bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, on)
}

func (n *RecordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *RecordingNotifier) Snapshot() ([]bool, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]bool(nil), n.changes...), append([]string(nil), n.errors...)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, what string, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("%s: condition not met within %v", what, timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}
