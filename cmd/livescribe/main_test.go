package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/chunker"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/daemon"
	"github.com/leonardotrapani/livescribe/internal/deps"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/testutil"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
	"github.com/leonardotrapani/livescribe/internal/tui"
	"github.com/muesli/termenv"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "toggle", "status", "transcript", "version", "stop", "configure", "doctor"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}

	cmd, _, _ := rootCmd.Find([]string{"transcript"})
	for _, flag := range []string{"all", "follow", "copy"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("transcript is missing --%s", flag)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	idle := formatStatus(bus.ParseFields("status=idle session=- started=- chunks=0 inflight=0"))
	if strings.Contains(idle, "Session:") {
		t.Errorf("idle status should not show a session:\n%s", idle)
	}

	rec := formatStatus(bus.ParseFields("status=recording session=abc started=2024-01-01T00:00:00Z chunks=4 inflight=2 filled=1 failed=1 pending=2"))
	for _, want := range []string{"Status:     recording", "Session:    abc", "Chunks:     4", "In flight:  2",
		"Transcript: 1 filled, 1 failed, 2 pending"} {
		if !strings.Contains(rec, want) {
			t.Errorf("status missing %q:\n%s", want, rec)
		}
	}
}

func TestFormatDeps(t *testing.T) {
	out := formatDeps([]deps.Status{
		{Name: "pw-record", Purpose: "audio capture", Installed: true, Required: true, Version: "1.0"},
		{Name: "notify-send", Purpose: "desktop notifications"},
	})
	want := "[x] pw-record (audio capture) - 1.0\n[ ] notify-send (desktop notifications) [optional]\n"
	if out != want {
		t.Errorf("formatDeps() = %q, want %q", out, want)
	}
}

func TestLoadEnv(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LIVESCRIBE_TEST_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("LIVESCRIBE_TEST_KEY") })

	if err := loadEnv(path); err != nil {
		t.Fatalf("loadEnv() error = %v", err)
	}
	if got := os.Getenv("LIVESCRIBE_TEST_KEY"); got != "from-file" {
		t.Errorf("LIVESCRIBE_TEST_KEY = %q", got)
	}
}

func TestNewDaemonFromConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := config.Save(testutil.TestConfig()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	d, err := newDaemon()
	if err != nil {
		t.Fatalf("newDaemon() error = %v", err)
	}
	if d.Session().IsRecording() {
		t.Error("new daemon should be idle")
	}
}

func TestNewDaemonRejectsInvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	cfg := testutil.TestConfig()
	cfg.Transcription.APIKey = ""
	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := newDaemon(); err == nil {
		t.Fatal("expected error without an API key")
	}
}

type staticTranscriber struct{}

func (staticTranscriber) Transcribe(ctx context.Context, chunk chunker.AudioChunk) transcriber.Result {
	return transcriber.Result{Session: chunk.Session, Sequence: chunk.Sequence, Text: "hello"}
}

func TestRequestAgainstDaemon(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if _, _, err := request(bus.CmdStatus, "get status"); err == nil {
		t.Fatal("expected error with no daemon running")
	}

	source := &testutil.FakeSource{}
	d := daemon.New(source, staticTranscriber{}, chunker.Config{Interval: time.Hour, Format: chunker.DefaultConfig().Format},
		daemon.WithNotifier(notify.Nop{}))
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run() }()
	defer func() {
		d.Stop()
		<-errCh
	}()

	testutil.WaitForCondition(t, "daemon socket", func() bool {
		_, err := bus.SendCommand(bus.CmdStatus)
		return err == nil
	}, 2*time.Second)

	kind, body, err := request(bus.CmdToggle, "toggle recording")
	if err != nil || kind != "STATUS" || bus.ParseFields(body)["recording"] != "true" {
		t.Fatalf("toggle = %q %q %v", kind, body, err)
	}

	source.Last().FrameCh <- testutil.MockAudioFrame(3200)
	if _, _, err := request(bus.CmdToggle, "toggle recording"); err != nil {
		t.Fatalf("second toggle: %v", err)
	}

	testutil.WaitForCondition(t, "transcript", func() bool {
		_, body, err := request(bus.CmdTranscript, "get transcript")
		return err == nil && body == "hello"
	}, 2*time.Second)

	source.SetErr(errors.New("device gone"))
	if _, _, err := request(bus.CmdToggle, "toggle recording"); !errors.Is(err, bus.ErrDaemon) {
		t.Errorf("toggle with failing device = %v, want ErrDaemon", err)
	}
}

func TestFollowRejectsAll(t *testing.T) {
	cmd := transcriptCmd()
	cmd.SetArgs([]string{"--follow", "--all"})
	cmd.SetOut(new(strings.Builder))
	cmd.SetErr(new(strings.Builder))
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--all") {
		t.Errorf("transcript --follow --all = %v, want rejection", err)
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestFollowTranscriptUntilDaemonStops(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	source := &testutil.FakeSource{}
	d := daemon.New(source, staticTranscriber{}, chunker.Config{Interval: time.Hour, Format: chunker.DefaultConfig().Format},
		daemon.WithNotifier(notify.Nop{}))
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run() }()

	testutil.WaitForCondition(t, "daemon socket", func() bool {
		_, err := bus.SendCommand(bus.CmdStatus)
		return err == nil
	}, 2*time.Second)

	var out syncBuffer
	view := tui.NewTranscriptView(&out, 80, termenv.Ascii)
	followed := make(chan error, 1)
	go func() { followed <- followTranscript(context.Background(), view) }()

	if _, _, err := request(bus.CmdToggle, "toggle recording"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	source.Last().FrameCh <- testutil.MockAudioFrame(3200)
	if _, _, err := request(bus.CmdToggle, "toggle recording"); err != nil {
		t.Fatalf("second toggle: %v", err)
	}

	testutil.WaitForCondition(t, "followed text", func() bool {
		return strings.Contains(out.String(), "hello")
	}, 2*time.Second)

	d.Stop()
	<-errCh

	select {
	case err := <-followed:
		if err != nil {
			t.Errorf("followTranscript() = %v, want nil when the daemon stops", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("followTranscript did not return after the daemon stopped")
	}
	if !strings.Contains(out.String(), "Daemon stopped") {
		t.Errorf("follow output missing stop notice: %q", out.String())
	}
}
