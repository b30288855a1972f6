// Package pipeline composes the resilience primitives into one call path:
// rate throttle, admission permit, circuit breaker, timed retried attempts,
// health-window bookkeeping, trip policy, and fallback. Callers wrap a
// potentially-unreliable operation once instead of assembling these
// concerns at every call site.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dskow/resilience-core/internal/admission"
	"github.com/dskow/resilience-core/internal/circuitbreaker"
	"github.com/dskow/resilience-core/internal/fault"
	"github.com/dskow/resilience-core/internal/metrics"
	"github.com/dskow/resilience-core/internal/retry"
	"github.com/dskow/resilience-core/internal/throttle"
	"github.com/dskow/resilience-core/internal/timing"
	"github.com/dskow/resilience-core/internal/window"
)

// Command is the unit of work the pipeline protects.
type Command[T any] func(ctx context.Context) (T, error)

// Fallback produces a substitute result when the Command is rejected or
// fails terminally. It receives the cause: fault.ErrRateLimited,
// fault.ErrRejected, or a *retry.CompoundError.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Policy decides when the pipeline trips its breaker. The breaker itself
// stores no threshold; the pipeline evaluates this policy after every
// failed call.
type Policy struct {
	// TripErrorRate is the failures-per-second over the latency window at
	// or above which the breaker trips.
	TripErrorRate float64

	// TripMinFailures is the minimum failure count in the counters window
	// before the rate is trusted; guards against tripping on a single
	// failure in an idle pipeline.
	TripMinFailures int
}

// DefaultPolicy trips at 0.5 failures/sec with at least 5 recent failures.
func DefaultPolicy() Policy {
	return Policy{TripErrorRate: 0.5, TripMinFailures: 5}
}

// Options configures a Pipeline.
type Options struct {
	// Name labels logs, metrics, and timer reports.
	Name string

	// Capacity bounds concurrently admitted calls. Required, positive.
	Capacity int

	// Attempts is the retry budget per call. Required, positive.
	Attempts int

	// Spans configures the health windows; zero fields use defaults.
	Spans window.Spans

	// Policy is the breaker trip policy; zero value uses DefaultPolicy.
	Policy Policy

	// Throttle optionally sheds calls above a sustained rate before
	// admission. Nil disables the gate.
	Throttle *throttle.Gate

	Logger *slog.Logger
}

// Pipeline executes commands behind admission control, a circuit breaker,
// bounded retries, and health measurement. Safe for concurrent use; timer
// trees are per call.
type Pipeline struct {
	name     string
	attempts int

	breaker  *circuitbreaker.Breaker
	limiter  *admission.Limiter
	stats    *window.Stats
	throttle *throttle.Gate
	logger   *slog.Logger

	mu         sync.Mutex
	policy     Policy
	lastReport *timing.Timer
}

// New validates opts and assembles a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Name == "" {
		opts.Name = "pipeline"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}

	limiter, err := admission.New(opts.Name, opts.Capacity)
	if err != nil {
		return nil, fmt.Errorf("building limiter: %w", err)
	}
	// Validate the retry budget up front so Execute never has to.
	if _, err := retry.New(opts.Attempts); err != nil {
		return nil, fmt.Errorf("building retry executor: %w", err)
	}

	return &Pipeline{
		name:     opts.Name,
		attempts: opts.Attempts,
		breaker:  circuitbreaker.New(opts.Name, opts.Logger),
		limiter:  limiter,
		stats:    window.New(opts.Name, opts.Spans),
		throttle: opts.Throttle,
		logger:   opts.Logger,
		policy:   opts.Policy,
	}, nil
}

// Execute runs cmd through the pipeline: throttle and admission checks,
// breaker check, timed retried attempts, window update, and trip policy.
// On rejection or exhaustion the fallback (when non-nil) produces the
// result; otherwise the cause propagates to the caller.
func Execute[T any](ctx context.Context, p *Pipeline, cmd Command[T], fallback Fallback[T]) (T, error) {
	var zero T

	if p.throttle != nil {
		if err := p.throttle.Allow(); err != nil {
			metrics.CallsTotal.WithLabelValues(p.name, "rate_limited").Inc()
			p.logger.Warn("call shed by throttle", "pipeline", p.name)
			return resolve(ctx, fallback, err, zero)
		}
	}

	if err := p.limiter.Acquire(); err != nil {
		metrics.CallsTotal.WithLabelValues(p.name, "rate_limited").Inc()
		p.logger.Warn("call shed, no permit available", "pipeline", p.name)
		return resolve(ctx, fallback, err, zero)
	}
	// The permit is released exactly once on every exit path, and before
	// any fallback runs so a slow fallback never holds admission capacity.
	released := false
	release := func() {
		if !released {
			released = true
			p.limiter.Release()
		}
	}
	defer release()

	if !p.breaker.Allow() {
		metrics.CallsTotal.WithLabelValues(p.name, "rejected").Inc()
		p.logger.Warn("call rejected, circuit open", "pipeline", p.name)
		release()
		return resolve(ctx, fallback, fmt.Errorf("executing %s: %w", p.name, fault.ErrRejected), zero)
	}

	root := timing.New(p.name, "")
	if err := root.Start(); err != nil {
		return zero, err
	}
	started := time.Now()

	exec, _ := retry.New(p.attempts,
		retry.WithLogger(p.logger),
		retry.WithObserver(func(attempt int) {
			metrics.RetryAttempts.WithLabelValues(p.name).Inc()
		}),
	)

	attempt := 0
	val, err := retry.Do(ctx, exec, func(ctx context.Context) (T, error) {
		attempt++
		span := root.Child(fmt.Sprintf("attempt.%d", attempt), "")
		if serr := span.Start(); serr != nil {
			return zero, serr
		}
		v, cerr := cmd(ctx)
		if serr := span.Stop(); serr != nil {
			p.logger.Error("attempt span stop failed", "pipeline", p.name, "error", serr)
		}
		return v, cerr
	})

	if err == nil {
		p.stats.RecordSuccess()
		p.finishCall(root, started, "success")
		release()
		return val, nil
	}

	p.stats.RecordFailure()
	p.evaluateTripPolicy()
	p.finishCall(root, started, "failure")
	release()

	p.logger.Error("call failed after all attempts",
		"pipeline", p.name,
		"attempts", p.attempts,
		"error", err,
	)
	return resolve(ctx, fallback, err, zero)
}

// finishCall stops the root span, retains it as the last report, and
// records call-level metrics.
func (p *Pipeline) finishCall(root *timing.Timer, started time.Time, outcome string) {
	if err := root.Stop(); err != nil {
		p.logger.Error("call span stop failed", "pipeline", p.name, "error", err)
	}

	p.mu.Lock()
	p.lastReport = root
	p.mu.Unlock()

	metrics.CallsTotal.WithLabelValues(p.name, outcome).Inc()
	metrics.CallDuration.WithLabelValues(p.name).Observe(time.Since(started).Seconds())
}

// evaluateTripPolicy trips the breaker when the error rate over the latency
// window reaches the threshold and enough recent failures back the rate.
func (p *Pipeline) evaluateTripPolicy() {
	p.mu.Lock()
	pol := p.policy
	p.mu.Unlock()

	snap := p.stats.Snapshot()
	if snap.ErrorRate >= pol.TripErrorRate && snap.Failures >= pol.TripMinFailures {
		if p.breaker.Allow() {
			p.logger.Warn("trip policy met, opening breaker",
				"pipeline", p.name,
				"error_rate", snap.ErrorRate,
				"recent_failures", snap.Failures,
			)
		}
		p.breaker.Trip()
	}
}

// resolve routes a terminal cause through the fallback when one is
// supplied, otherwise propagates it unmodified.
func resolve[T any](ctx context.Context, fallback Fallback[T], cause error, zero T) (T, error) {
	if fallback == nil {
		return zero, cause
	}
	val, err := fallback(ctx, cause)
	if err != nil {
		return zero, fmt.Errorf("fallback failed: %w", errors.Join(err, cause))
	}
	return val, nil
}

// Stats returns a point-in-time view of the health windows.
func (p *Pipeline) Stats() window.Snapshot {
	return p.stats.Snapshot()
}

// BreakerState returns the breaker's current state.
func (p *Pipeline) BreakerState() circuitbreaker.State {
	return p.breaker.State()
}

// TripBreaker opens the breaker explicitly.
func (p *Pipeline) TripBreaker() {
	p.breaker.Trip()
}

// ResetBreaker closes the breaker, re-admitting calls.
func (p *Pipeline) ResetBreaker() {
	p.breaker.Reset()
}

// SetPolicy hot-swaps the trip policy; used by config reload.
func (p *Pipeline) SetPolicy(pol Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = pol
}

// LastReport renders the timer tree of the most recently completed call,
// or "" when no call has completed.
func (p *Pipeline) LastReport() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastReport == nil {
		return ""
	}
	return p.lastReport.Render()
}

// InFlight returns the number of permits currently held.
func (p *Pipeline) InFlight() int {
	return p.limiter.InFlight()
}

// Capacity returns the admission limit.
func (p *Pipeline) Capacity() int {
	return p.limiter.Capacity()
}

// Name returns the pipeline's label.
func (p *Pipeline) Name() string { return p.name }
