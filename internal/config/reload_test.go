package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return logger, &buf
}

func writeTestConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const validConfig = `
pipeline:
  name: orders
  capacity: 4
  attempts: 3
breaker:
  trip_error_rate: 0.5
  trip_min_failures: 5
`

const validConfigUpdated = `
pipeline:
  name: orders
  capacity: 4
  attempts: 3
breaker:
  trip_error_rate: 0.25
  trip_min_failures: 2
`

const invalidConfig = `
pipeline:
  capacity: -1
`

func TestReloader_Current(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)
	cfg := r.Current()
	if cfg.Pipeline.Name != "orders" {
		t.Errorf("expected pipeline name orders, got %q", cfg.Pipeline.Name)
	}
	if cfg.Breaker.TripErrorRate != 0.5 {
		t.Errorf("expected trip rate 0.5, got %v", cfg.Breaker.TripErrorRate)
	}
}

func TestReloader_Reload_ValidConfig(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	if !r.Reload() {
		t.Fatal("expected reload to succeed")
	}

	cfg := r.Current()
	if cfg.Breaker.TripErrorRate != 0.25 {
		t.Errorf("expected trip rate 0.25 after reload, got %v", cfg.Breaker.TripErrorRate)
	}
	if cfg.Breaker.TripMinFailures != 2 {
		t.Errorf("expected min failures 2 after reload, got %v", cfg.Breaker.TripMinFailures)
	}
}

func TestReloader_Reload_InvalidConfig(t *testing.T) {
	logger, logBuf := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	if err := os.WriteFile(path, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	if r.Reload() {
		t.Fatal("expected reload to fail for invalid config")
	}

	// Original config must be preserved.
	cfg := r.Current()
	if cfg.Breaker.TripErrorRate != 0.5 {
		t.Errorf("expected original trip rate preserved, got %v", cfg.Breaker.TripErrorRate)
	}

	if !strings.Contains(logBuf.String(), "config reload failed") {
		t.Error("expected error to be logged")
	}
}

func TestReloader_OnReload_Callback(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	var callbackCalled bool
	var callbackRate float64
	r.OnReload(func(cfg *Config) {
		callbackCalled = true
		callbackRate = cfg.Breaker.TripErrorRate
	})

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	r.Reload()

	if !callbackCalled {
		t.Fatal("expected callback to be called")
	}
	if callbackRate != 0.25 {
		t.Errorf("expected callback to receive trip rate 0.25, got %v", callbackRate)
	}
}

func TestReloader_OnReload_NotCalledOnFailure(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	callbackCalled := false
	r.OnReload(func(cfg *Config) {
		callbackCalled = true
	})

	if err := os.WriteFile(path, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	r.Reload()

	if callbackCalled {
		t.Fatal("callback should not be called on failed reload")
	}
}

func TestReloader_FileWatch(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	reloadDone := make(chan struct{}, 1)
	r.OnReload(func(cfg *Config) {
		select {
		case reloadDone <- struct{}{}:
		default:
		}
	})

	r.Start()
	defer r.Stop()

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	select {
	case <-reloadDone:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for file watch reload")
	}

	if got := r.Current().Breaker.TripMinFailures; got != 2 {
		t.Errorf("expected min failures 2 after watched reload, got %v", got)
	}
}

func TestReloader_StopIsIdempotentAcrossWatcher(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	// Stop without Start must not panic; the watcher was never created.
	r := NewReloader(path, initial, logger)
	r.Stop()
}
