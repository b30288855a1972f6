// Package circuitbreaker provides the two-state gate that protects the
// execution pipeline from hammering a failing dependency. The breaker holds
// no trip policy of its own: the pipeline decides when to call Trip and
// Reset based on the health windows it owns.
package circuitbreaker

import (
	"log/slog"
	"sync"

	"github.com/dskow/resilience-core/internal/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota // Normal operation; calls pass through.
	StateOpen                // Tripped; calls are rejected immediately.
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker is a manually driven two-state circuit breaker. It is created
// closed and changes state only through explicit Trip and Reset calls;
// there is no time-based recovery and no half-open probing.
type Breaker struct {
	mu     sync.Mutex
	state  State
	name   string
	logger *slog.Logger
}

// New creates a closed Breaker for the named pipeline.
func New(name string, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		state:  StateClosed,
		name:   name,
		logger: logger,
	}
}

// Allow reports whether a call may proceed. True iff the breaker is closed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateClosed
}

// Trip opens the breaker. Subsequent calls are rejected until Reset.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateOpen)
}

// Reset closes the breaker, allowing calls again regardless of how long
// it has been open.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionTo changes the breaker state, emitting metrics and logging.
// Must be called with b.mu held.
func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	from := b.state
	b.state = newState

	metrics.BreakerTransitions.WithLabelValues(b.name, from.String(), newState.String()).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(newState))

	b.logger.Info("circuit breaker state change",
		"pipeline", b.name,
		"from", from.String(),
		"to", newState.String(),
	)
}
