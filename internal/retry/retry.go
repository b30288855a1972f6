// Package retry executes an operation up to a fixed number of times,
// strictly serially, and aggregates every failure into one CompoundError
// when all attempts are exhausted. No delay is injected between attempts;
// an attempt observer hook is the extension point where a backoff policy
// could live.
package retry

import (
	"context"
	"log/slog"

	"github.com/dskow/resilience-core/internal/fault"
)

// Operation is one unit of work producing a value or failing.
type Operation[T any] func(ctx context.Context) (T, error)

// AttemptObserver is invoked before each attempt with its 1-based ordinal.
type AttemptObserver func(attempt int)

// Executor runs operations with bounded serial retries.
type Executor struct {
	attempts int
	observer AttemptObserver
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver registers a per-attempt hook, called before every attempt.
func WithObserver(fn AttemptObserver) Option {
	return func(e *Executor) { e.observer = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an Executor making up to attempts tries per operation.
// Attempts must be positive.
func New(attempts int, opts ...Option) (*Executor, error) {
	if attempts <= 0 {
		return nil, &fault.ConfigError{Field: "attempts", Reason: "must be positive"}
	}
	e := &Executor{
		attempts: attempts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Attempts returns the configured attempt budget.
func (e *Executor) Attempts() int { return e.attempts }

// Do invokes op until it succeeds or the attempt budget is spent. Attempts
// are strictly sequential; a success returns immediately and earlier
// failures are discarded. When every attempt fails, the returned error is a
// *CompoundError carrying all failures in attempt order.
func Do[T any](ctx context.Context, e *Executor, op Operation[T]) (T, error) {
	var zero T
	errs := make([]error, 0, e.attempts)

	for i := 1; i <= e.attempts; i++ {
		if e.observer != nil {
			e.observer(i)
		}

		val, err := op(ctx)
		if err == nil {
			return val, nil
		}

		e.logger.Debug("attempt failed",
			"attempt", i,
			"of", e.attempts,
			"error", err,
		)
		errs = append(errs, err)
	}

	e.logger.Debug("all attempts failed, aborting", "attempts", e.attempts)
	return zero, &CompoundError{errs: errs}
}

// Run is the error-only form of Do.
func (e *Executor) Run(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
