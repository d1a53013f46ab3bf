package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSessionStarted()
	m.RecordChunk(96000, 3*time.Second)
	m.RecordChunk(32000, time.Second)
	m.RecordTranscriptionStart()
	m.RecordTranscriptionStart()
	m.RecordTranscriptionDone(OutcomeSuccess, 200*time.Millisecond)
	m.RecordTranscriptionStart()
	m.RecordTranscriptionDone("service_error", time.Second)
	m.RecordStaleResult()
	m.RecordDeviceError()

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"sessions started", m.SessionsStarted, 1},
		{"recording", m.Recording, 1},
		{"chunks emitted", m.ChunksEmitted, 2},
		{"in flight", m.InFlight, 1},
		{"successes", m.TranscriptionRequests.WithLabelValues(OutcomeSuccess), 1},
		{"service errors", m.TranscriptionRequests.WithLabelValues("service_error"), 1},
		{"stale results", m.StaleResults, 1},
		{"device errors", m.DeviceErrors, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	m.RecordSessionStopped()
	if got := testutil.ToFloat64(m.Recording); got != 0 {
		t.Errorf("recording after stop = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSessionStopped()
	m.RecordDeviceError()
	m.RecordChunk(1, time.Second)
	m.RecordTranscriptionStart()
	m.RecordTranscriptionDone(OutcomeSuccess, time.Second)
	m.RecordStaleResult()
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordChunk(2048, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "livescribe_chunks_emitted_total 1") {
		t.Errorf("body missing chunk counter:\n%s", rec.Body.String())
	}
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := New(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Serve(ctx, addr) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "livescribe_sessions_started_total") {
		t.Errorf("unexpected body:\n%s", body)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
