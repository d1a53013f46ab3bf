package notify

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		kind    string
		want    Notifier
	}{
		{"disabled", false, "desktop", Nop{}},
		{"desktop", true, "desktop", Desktop{}},
		{"unknown falls back to desktop", true, "", Desktop{}},
		{"log", true, "log", Log{}},
		{"none", true, "none", Nop{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.enabled, tt.kind); got != tt.want {
				t.Errorf("New(%v, %q) = %#v, want %#v", tt.enabled, tt.kind, got, tt.want)
			}
		})
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	tests := []struct {
		name string
		call func(Notifier)
		want string
	}{
		{"started", func(n Notifier) { n.RecordingChanged(true) }, "Livescribe: Started Recording"},
		{"stopped", func(n Notifier) { n.RecordingChanged(false) }, "Livescribe: Stopped Recording"},
		{"error", func(n Notifier) { n.Error("microphone busy") }, "microphone busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.call(Log{})
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestDesktopMissingBinary(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	d := Desktop{Command: "/nonexistent/notify-send"}
	d.RecordingChanged(true)
	d.Error("boom")

	if !strings.Contains(buf.String(), "Failed to send notification") ||
		!strings.Contains(buf.String(), "Failed to send error notification") {
		t.Errorf("missing failure logs: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	n.RecordingChanged(true)
	n.Error("ignored")
}
