// Package main is the resilience pipeline runner. It loads configuration,
// assembles a pipeline in front of an HTTP target, exposes metrics and the
// admin API, and drives periodic calls until shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dskow/resilience-core/internal/admin"
	"github.com/dskow/resilience-core/internal/config"
	"github.com/dskow/resilience-core/internal/logging"
	"github.com/dskow/resilience-core/internal/metrics"
	"github.com/dskow/resilience-core/internal/pipeline"
	"github.com/dskow/resilience-core/internal/throttle"
	"github.com/dskow/resilience-core/internal/window"
)

func main() {
	configPath := flag.String("config", "configs/resilio.yaml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger for errors before the configured one exists.
	boot := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.Setup(logging.Options{
		Output:     cfg.Logging.Output,
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		boot.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}

	logger.Info("configuration loaded",
		"pipeline", cfg.Pipeline.Name,
		"capacity", cfg.Pipeline.Capacity,
		"attempts", cfg.Pipeline.Attempts,
		"throttle_enabled", cfg.Throttle.Enabled,
		"target", cfg.Target.URL,
		"port", cfg.Server.Port,
		"metrics_enabled", cfg.Metrics.IsEnabled(),
		"admin_enabled", cfg.Admin.Enabled,
	)

	if cfg.Metrics.IsEnabled() {
		metrics.Init()
	}

	var gate *throttle.Gate
	if cfg.Throttle.Enabled {
		gate, err = throttle.New(cfg.Pipeline.Name, cfg.Throttle.RequestsPerSecond, cfg.Throttle.BurstSize)
		if err != nil {
			logger.Error("failed to create throttle", "error", err)
			os.Exit(1)
		}
	}

	pipe, err := pipeline.New(pipeline.Options{
		Name:     cfg.Pipeline.Name,
		Capacity: cfg.Pipeline.Capacity,
		Attempts: cfg.Pipeline.Attempts,
		Spans: window.Spans{
			Counters: cfg.Windows.CountersSpan,
			Traffic:  cfg.Windows.TrafficSpan,
			Latency:  cfg.Windows.LatencySpan,
		},
		Policy: pipeline.Policy{
			TripErrorRate:   cfg.Breaker.TripErrorRate,
			TripMinFailures: cfg.Breaker.TripMinFailures,
		},
		Throttle: gate,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		os.Exit(1)
	}

	reloader := config.NewReloader(*configPath, cfg, logger)
	reloader.Start()
	defer reloader.Stop()

	reloader.OnReload(func(newCfg *config.Config) {
		pipe.SetPolicy(pipeline.Policy{
			TripErrorRate:   newCfg.Breaker.TripErrorRate,
			TripMinFailures: newCfg.Breaker.TripMinFailures,
		})
		if gate != nil && newCfg.Throttle.Enabled {
			gate.Update(newCfg.Throttle.RequestsPerSecond, newCfg.Throttle.BurstSize)
		}
	})

	mux := http.NewServeMux()
	if cfg.Metrics.IsEnabled() {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		logger.Info("metrics endpoint registered", "path", cfg.Metrics.Path)
	}
	if cfg.Admin.Enabled {
		adminHandler := admin.New(pipe, reloader, cfg.Admin.IPAllowlist, logger)
		adminHandler.RegisterRoutes(mux)
		logger.Info("admin endpoints registered", "allowlist", cfg.Admin.IPAllowlist)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	runCtx, stopDriver := context.WithCancel(context.Background())
	driverDone := make(chan struct{})
	if cfg.Target.URL != "" {
		go func() {
			defer close(driverDone)
			driveTarget(runCtx, pipe, cfg.Target, logger)
		}()
	} else {
		close(driverDone)
		logger.Info("no target configured; serving metrics and admin only")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	stopDriver()
	<-driverDone

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped gracefully")
}

// driveTarget issues one pipeline-protected GET against the target per
// interval until ctx is cancelled. On rejection or exhaustion the configured
// fallback body substitutes for the response.
func driveTarget(ctx context.Context, pipe *pipeline.Pipeline, target config.TargetConfig, logger *slog.Logger) {
	client := &http.Client{Timeout: target.Timeout}

	cmd := func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", err
		}
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("target returned %s", resp.Status)
		}
		return string(body), nil
	}

	var fallback pipeline.Fallback[string]
	if target.Fallback != "" {
		fallback = func(ctx context.Context, cause error) (string, error) {
			logger.Debug("serving fallback body", "cause", cause)
			return target.Fallback, nil
		}
	}

	ticker := time.NewTicker(target.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			body, err := pipeline.Execute(ctx, pipe, cmd, fallback)
			if err != nil {
				logger.Warn("call failed", "error", err)
				continue
			}
			logger.Debug("call completed", "bytes", len(body))
		}
	}
}
