package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`{}`))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	if cfg.Pipeline.Name != "pipeline" {
		t.Errorf("pipeline.name = %q, want pipeline", cfg.Pipeline.Name)
	}
	if cfg.Pipeline.Capacity != 4 {
		t.Errorf("pipeline.capacity = %d, want 4", cfg.Pipeline.Capacity)
	}
	if cfg.Pipeline.Attempts != 3 {
		t.Errorf("pipeline.attempts = %d, want 3", cfg.Pipeline.Attempts)
	}
	if cfg.Windows.CountersSpan != 10*time.Second {
		t.Errorf("windows.counters_span = %v, want 10s", cfg.Windows.CountersSpan)
	}
	if cfg.Windows.TrafficSpan != 2*time.Minute {
		t.Errorf("windows.traffic_span = %v, want 2m", cfg.Windows.TrafficSpan)
	}
	if cfg.Windows.LatencySpan != time.Minute {
		t.Errorf("windows.latency_span = %v, want 1m", cfg.Windows.LatencySpan)
	}
	if cfg.Breaker.TripErrorRate != 0.5 {
		t.Errorf("breaker.trip_error_rate = %v, want 0.5", cfg.Breaker.TripErrorRate)
	}
	if cfg.Breaker.TripMinFailures != 5 {
		t.Errorf("breaker.trip_min_failures = %d, want 5", cfg.Breaker.TripMinFailures)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Metrics.IsEnabled() {
		t.Error("metrics should default to enabled")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics.path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("logging.output = %q, want stdout", cfg.Logging.Output)
	}
}

func TestLoadFromBytes_FullDocument(t *testing.T) {
	doc := `
pipeline:
  name: payments
  capacity: 8
  attempts: 2
throttle:
  enabled: true
  requests_per_second: 25
  burst_size: 10
windows:
  counters_span: 5s
  traffic_span: 1m
  latency_span: 30s
breaker:
  trip_error_rate: 0.2
  trip_min_failures: 3
target:
  url: http://localhost:3001/
  interval: 250ms
  timeout: 2s
  fallback: "{}"
server:
  port: 9090
logging:
  level: debug
admin:
  enabled: true
  ip_allowlist: ["127.0.0.0/8"]
`
	cfg, err := LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	if cfg.Pipeline.Name != "payments" || cfg.Pipeline.Capacity != 8 || cfg.Pipeline.Attempts != 2 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if !cfg.Throttle.Enabled || cfg.Throttle.RequestsPerSecond != 25 || cfg.Throttle.BurstSize != 10 {
		t.Errorf("throttle = %+v", cfg.Throttle)
	}
	if cfg.Windows.CountersSpan != 5*time.Second || cfg.Windows.LatencySpan != 30*time.Second {
		t.Errorf("windows = %+v", cfg.Windows)
	}
	if cfg.Breaker.TripErrorRate != 0.2 || cfg.Breaker.TripMinFailures != 3 {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
	if cfg.Target.URL != "http://localhost:3001/" || cfg.Target.Interval != 250*time.Millisecond {
		t.Errorf("target = %+v", cfg.Target)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Admin.Enabled {
		t.Error("admin should be enabled")
	}
}

func TestLoadFromBytes_EnvSubstitution(t *testing.T) {
	t.Setenv("TARGET_URL", "http://backend:3001/")

	doc := "target:\n  url: ${TARGET_URL}\n"
	cfg, err := LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if cfg.Target.URL != "http://backend:3001/" {
		t.Fatalf("target.url = %q, want substitution", cfg.Target.URL)
	}
}

func TestLoadFromBytes_UnsetEnvVarLeftVerbatim(t *testing.T) {
	doc := "pipeline:\n  name: ${DEFINITELY_NOT_SET_XYZ}\n"
	cfg, err := LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if cfg.Pipeline.Name != "${DEFINITELY_NOT_SET_XYZ}" {
		t.Fatalf("name = %q, want verbatim placeholder", cfg.Pipeline.Name)
	}
}

func TestLoadFromBytes_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"negative capacity", "pipeline:\n  capacity: -1\n", "pipeline.capacity"},
		{"negative attempts", "pipeline:\n  attempts: -1\n", "pipeline.attempts"},
		{"bad throttle", "throttle:\n  enabled: true\n  requests_per_second: -5\n", "throttle.requests_per_second"},
		{"bad target scheme", "target:\n  url: ftp://example.com/\n", "target.url"},
		{"bad port", "server:\n  port: 99999\n", "server.port"},
		{"bad log level", "logging:\n  level: verbose\n", "logging.level"},
		{"admin without allowlist", "admin:\n  enabled: true\n", "admin.ip_allowlist"},
		{"admin bad cidr", "admin:\n  enabled: true\n  ip_allowlist: [\"not-a-cidr\"]\n", "invalid CIDR"},
		{"bad breaker rate", "breaker:\n  trip_error_rate: -0.5\n", "breaker.trip_error_rate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoadFromBytes_Warnings(t *testing.T) {
	doc := `
pipeline:
  attempts: 20
breaker:
  trip_min_failures: 1
admin:
  enabled: true
  ip_allowlist: ["0.0.0.0/0"]
`
	cfg, err := LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if len(cfg.Warnings) != 3 {
		t.Fatalf("got %d warnings, want 3: %v", len(cfg.Warnings), cfg.Warnings)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_RoundTripFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.yaml")
	doc := "pipeline:\n  name: disk\n  capacity: 2\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Name != "disk" || cfg.Pipeline.Capacity != 2 {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}
}

func TestLoadFromBytes_MalformedYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("pipeline: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
