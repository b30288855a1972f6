// Package admission provides a bounded, fail-fast concurrency gate for the
// execution pipeline. A fixed number of permits bounds in-flight calls;
// when none is free, acquisition fails immediately rather than queuing,
// shedding load instead of building a backlog.
package admission

import (
	"fmt"

	"github.com/dskow/resilience-core/internal/fault"
	"github.com/dskow/resilience-core/internal/metrics"
)

// Limiter bounds concurrently admitted calls to a fixed capacity.
type Limiter struct {
	sem  chan struct{}
	name string
}

// New creates a Limiter admitting at most capacity concurrent calls.
// Capacity must be positive.
func New(name string, capacity int) (*Limiter, error) {
	if capacity <= 0 {
		return nil, &fault.ConfigError{Field: "capacity", Reason: "must be positive"}
	}
	return &Limiter{
		sem:  make(chan struct{}, capacity),
		name: name,
	}, nil
}

// Acquire takes one permit without blocking. When no permit is free it
// returns fault.ErrRateLimited immediately. If Acquire returns nil, the
// caller MUST call Release exactly once, on every exit path.
func (l *Limiter) Acquire() error {
	select {
	case l.sem <- struct{}{}:
		metrics.PermitsInFlight.WithLabelValues(l.name).Set(float64(len(l.sem)))
		return nil
	default:
		metrics.AdmissionRejections.WithLabelValues(l.name).Inc()
		return fmt.Errorf("acquiring permit: %w", fault.ErrRateLimited)
	}
}

// Release returns a permit. Must be called exactly once per successful
// Acquire.
func (l *Limiter) Release() {
	<-l.sem
	metrics.PermitsInFlight.WithLabelValues(l.name).Set(float64(len(l.sem)))
}

// InFlight returns the number of permits currently held.
func (l *Limiter) InFlight() int {
	return len(l.sem)
}

// Capacity returns the configured permit capacity.
func (l *Limiter) Capacity() int {
	return cap(l.sem)
}
