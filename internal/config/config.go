// Package config provides YAML configuration loading with validation and
// environment variable substitution for the resilience pipeline and its
// demo runner.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Throttle ThrottleConfig `yaml:"throttle" json:"throttle"`
	Windows  WindowsConfig  `yaml:"windows" json:"windows"`
	Breaker  BreakerConfig  `yaml:"breaker" json:"breaker"`
	Target   TargetConfig   `yaml:"target" json:"target"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Admin    AdminConfig    `yaml:"admin" json:"admin"`

	// Warnings holds non-fatal config issues detected during loading.
	// Stored on the Config itself (not a package-level var) so it is
	// safe to call Load concurrently from the hot-reload goroutine.
	Warnings []string `yaml:"-" json:"-"`
}

// PipelineConfig holds the core execution pipeline settings.
type PipelineConfig struct {
	Name     string `yaml:"name" json:"name"`         // default: "pipeline"
	Capacity int    `yaml:"capacity" json:"capacity"` // max concurrent calls; default: 4
	Attempts int    `yaml:"attempts" json:"attempts"` // retry budget per call; default: 3
}

// ThrottleConfig holds the optional requests-per-second admission gate.
type ThrottleConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
}

// WindowsConfig holds the health-window spans.
type WindowsConfig struct {
	CountersSpan time.Duration `yaml:"counters_span" json:"counters_span"` // default: 10s
	TrafficSpan  time.Duration `yaml:"traffic_span" json:"traffic_span"`   // default: 2m
	LatencySpan  time.Duration `yaml:"latency_span" json:"latency_span"`   // default: 1m
}

// BreakerConfig holds the trip policy the pipeline evaluates after each
// failed call. The breaker recovers only through an explicit reset (admin
// API or code); there is no automatic half-open probing.
type BreakerConfig struct {
	// TripErrorRate is failures per second over the latency window at or
	// above which the breaker opens. Default: 0.5.
	TripErrorRate float64 `yaml:"trip_error_rate" json:"trip_error_rate"`

	// TripMinFailures is the failure floor in the counters window before
	// the rate is trusted. Default: 5.
	TripMinFailures int `yaml:"trip_min_failures" json:"trip_min_failures"`
}

// TargetConfig describes the backend the demo runner drives commands at.
type TargetConfig struct {
	URL      string        `yaml:"url" json:"url"`
	Interval time.Duration `yaml:"interval" json:"interval"` // delay between calls; default: 1s
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`   // per-attempt HTTP timeout; default: 5s
	Fallback string        `yaml:"fallback" json:"fallback"` // substitute body on rejection/exhaustion
}

// ServerConfig holds the HTTP server settings for the metrics and admin
// endpoints.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
// Enabled defaults to true; set to false to disable metrics.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// IsEnabled returns whether metrics are enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// LoggingConfig holds log output and rotation settings.
type LoggingConfig struct {
	Output     string `yaml:"output" json:"output"`           // "stdout", "stderr", or file path; default: "stdout"
	Level      string `yaml:"level" json:"level"`             // "debug", "info", "warn", "error"; default: "info"
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // max log file size before rotation; default: 100
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // number of rotated files to keep; default: 3
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// ValidLogLevels are the accepted level strings.
var ValidLogLevels = map[string]bool{
	"":      true, // empty means default ("info")
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`           // default: false
	IPAllowlist []string `yaml:"ip_allowlist" json:"ip_allowlist"` // CIDR notation
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromBytes parses configuration from raw YAML bytes. Useful for testing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Warnings = collectWarnings(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Name == "" {
		cfg.Pipeline.Name = "pipeline"
	}
	if cfg.Pipeline.Capacity == 0 {
		cfg.Pipeline.Capacity = 4
	}
	if cfg.Pipeline.Attempts == 0 {
		cfg.Pipeline.Attempts = 3
	}

	if cfg.Throttle.Enabled {
		if cfg.Throttle.RequestsPerSecond == 0 {
			cfg.Throttle.RequestsPerSecond = 100
		}
		if cfg.Throttle.BurstSize == 0 {
			cfg.Throttle.BurstSize = 50
		}
	}

	if cfg.Windows.CountersSpan == 0 {
		cfg.Windows.CountersSpan = 10 * time.Second
	}
	if cfg.Windows.TrafficSpan == 0 {
		cfg.Windows.TrafficSpan = 2 * time.Minute
	}
	if cfg.Windows.LatencySpan == 0 {
		cfg.Windows.LatencySpan = time.Minute
	}

	if cfg.Breaker.TripErrorRate == 0 {
		cfg.Breaker.TripErrorRate = 0.5
	}
	if cfg.Breaker.TripMinFailures == 0 {
		cfg.Breaker.TripMinFailures = 5
	}

	if cfg.Target.Interval == 0 {
		cfg.Target.Interval = time.Second
	}
	if cfg.Target.Timeout == 0 {
		cfg.Target.Timeout = 5 * time.Second
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
}

func validate(cfg *Config) error {
	if cfg.Pipeline.Capacity < 1 {
		return fmt.Errorf("pipeline.capacity must be positive, got %d", cfg.Pipeline.Capacity)
	}
	if cfg.Pipeline.Attempts < 1 {
		return fmt.Errorf("pipeline.attempts must be positive, got %d", cfg.Pipeline.Attempts)
	}

	if cfg.Throttle.Enabled {
		if cfg.Throttle.RequestsPerSecond <= 0 {
			return fmt.Errorf("throttle.requests_per_second must be positive")
		}
		if cfg.Throttle.BurstSize <= 0 {
			return fmt.Errorf("throttle.burst_size must be positive")
		}
	}

	if cfg.Windows.CountersSpan <= 0 || cfg.Windows.TrafficSpan <= 0 || cfg.Windows.LatencySpan <= 0 {
		return fmt.Errorf("windows spans must be positive")
	}

	if cfg.Breaker.TripErrorRate <= 0 {
		return fmt.Errorf("breaker.trip_error_rate must be positive")
	}
	if cfg.Breaker.TripMinFailures < 1 {
		return fmt.Errorf("breaker.trip_min_failures must be positive")
	}

	if cfg.Target.URL != "" {
		u, err := url.Parse(cfg.Target.URL)
		if err != nil {
			return fmt.Errorf("target.url: invalid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("target.url: scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("target.url: host is required")
		}
		if cfg.Target.Interval <= 0 {
			return fmt.Errorf("target.interval must be positive")
		}
		if cfg.Target.Timeout <= 0 {
			return fmt.Errorf("target.timeout must be positive")
		}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if !ValidLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		if cfg.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
	}

	if cfg.Admin.Enabled {
		if len(cfg.Admin.IPAllowlist) == 0 {
			return fmt.Errorf("admin.ip_allowlist is required when admin is enabled")
		}
		for i, cidr := range cfg.Admin.IPAllowlist {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("admin.ip_allowlist[%d]: invalid CIDR %q: %w", i, cidr, err)
			}
		}
	}

	return nil
}

// collectWarnings flags legal but suspicious settings.
func collectWarnings(cfg *Config) []string {
	var warnings []string

	if cfg.Pipeline.Attempts > 10 {
		warnings = append(warnings,
			fmt.Sprintf("pipeline.attempts is %d; retries are serial and undelayed, large budgets amplify load on a failing dependency", cfg.Pipeline.Attempts))
	}
	if cfg.Windows.CountersSpan > cfg.Windows.LatencySpan {
		warnings = append(warnings,
			"windows.counters_span exceeds latency_span; the trip policy's failure floor will lag its rate")
	}
	if cfg.Breaker.TripMinFailures == 1 {
		warnings = append(warnings,
			"breaker.trip_min_failures is 1; a single failure can open the breaker")
	}
	if cfg.Admin.Enabled {
		for _, cidr := range cfg.Admin.IPAllowlist {
			if strings.HasSuffix(cidr, "/0") {
				warnings = append(warnings,
					fmt.Sprintf("admin.ip_allowlist contains %s, which allows every address", cidr))
			}
		}
	}

	return warnings
}
