package testutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTestConfigIsValid(t *testing.T) {
	if err := TestConfig().Validate(); err != nil {
		t.Fatalf("TestConfig().Validate() = %v", err)
	}
}

func TestFakeSource(t *testing.T) {
	src := &FakeSource{}
	s, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.Opened() != 1 || src.Last() != s {
		t.Fatal("Last() does not return the opened stream")
	}

	go func() { src.Last().FrameCh <- MockAudioFrame(4) }()
	select {
	case f := <-s.Frames():
		if len(f.Data) != 4 || f.Data[3] != 3 {
			t.Errorf("unexpected frame %v", f.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}

	src.Last().End()
	src.Last().End()
	if _, ok := <-s.Frames(); ok {
		t.Error("frames channel still open after End()")
	}

	s.Close()
	s.Close()
	if !src.Last().IsClosed() {
		t.Error("IsClosed() = false after Close()")
	}

	src.SetErr(errors.New("no device"))
	if _, err := src.Open(context.Background()); err == nil {
		t.Error("Open() should fail after SetErr")
	}
}

func TestRecordingNotifier(t *testing.T) {
	n := &RecordingNotifier{}
	n.RecordingChanged(true)
	n.Error("boom")
	changes, errs := n.Snapshot()
	if len(changes) != 1 || !changes[0] || len(errs) != 1 || errs[0] != "boom" {
		t.Errorf("Snapshot() = %v, %v", changes, errs)
	}
}

func TestWaitForCondition(t *testing.T) {
	start := time.Now()
	WaitForCondition(t, "after 20ms", func() bool { return time.Since(start) > 20*time.Millisecond }, time.Second)
}
