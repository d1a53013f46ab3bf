package config

import (
	"context"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	useTempConfigDir(t)
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestManager_Reload(t *testing.T) {
	m := newTestManager(t)

	var got *Config
	m.OnChange(func(c *Config) { got = c })

	updated := m.GetConfig()
	updated.Chunking.Interval = 7 * time.Second
	if err := Save(updated); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !m.Reload() {
		t.Fatal("Reload() rejected a valid config")
	}
	if got == nil || got.Chunking.Interval != 7*time.Second {
		t.Errorf("listener got %+v", got)
	}
	if m.GetConfig().Chunking.Interval != 7*time.Second {
		t.Errorf("GetConfig().Chunking.Interval = %v", m.GetConfig().Chunking.Interval)
	}
}

func TestManager_ReloadKeepsPreviousOnInvalid(t *testing.T) {
	m := newTestManager(t)
	before := m.GetConfig()

	called := false
	m.OnChange(func(*Config) { called = true })

	invalid := m.GetConfig()
	invalid.Chunking.Interval = 0
	if err := Save(invalid); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if m.Reload() {
		t.Fatal("Reload() accepted an invalid config")
	}
	if called {
		t.Error("listener called for invalid config")
	}
	if *m.GetConfig() != *before {
		t.Errorf("config changed after rejected reload")
	}
}

func TestManager_GetConfigReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	c := m.GetConfig()
	c.Transcription.Provider = "mutated"
	if m.GetConfig().Transcription.Provider == "mutated" {
		t.Error("GetConfig() exposed internal state")
	}
}

func TestManager_WatchPicksUpSave(t *testing.T) {
	m := newTestManager(t)

	changes := make(chan *Config, 8)
	m.OnChange(func(c *Config) {
		select {
		case changes <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartWatching(ctx); err != nil {
		t.Fatalf("StartWatching() error = %v", err)
	}
	defer m.Stop()

	updated := m.GetConfig()
	updated.Transcription.Language = "fr"
	if err := Save(updated); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Transcription.Language == "fr" {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
