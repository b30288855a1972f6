// Package fault defines the error taxonomy shared by all pipeline
// components. Error codes form a public API contract; callers can program
// against these stable codes. Do not rename or remove existing codes.
package fault

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification string.
type Code string

const (
	// Rejected: the circuit breaker is open; the call was never attempted.
	Rejected Code = "PIPELINE_REJECTED"

	// RateLimited: no admission permit (or throttle token) was available;
	// the call was never attempted.
	RateLimited Code = "PIPELINE_RATE_LIMITED"

	// RetryExhausted: every retry attempt failed.
	RetryExhausted Code = "PIPELINE_RETRY_EXHAUSTED"

	// TimerState: a timer span was started twice or stopped without having
	// started. Programmer error; never routed to fallback.
	TimerState Code = "PIPELINE_TIMER_STATE"

	// Config: invalid retry count, limiter capacity, or similar. Programmer
	// error; never routed to fallback.
	Config Code = "PIPELINE_CONFIG"
)

// Sentinel conditions for the two admission-stage rejections. Both are
// matched with errors.Is; the pipeline wraps them with call context.
var (
	ErrRejected    = errors.New("circuit breaker open")
	ErrRateLimited = errors.New("admission limit reached")
)

// CodeOf reports the stable code for err, or "" when err carries none.
func CodeOf(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.FaultCode()
	}
	switch {
	case errors.Is(err, ErrRejected):
		return Rejected
	case errors.Is(err, ErrRateLimited):
		return RateLimited
	}
	return ""
}

// Coder is implemented by errors that carry a stable fault code.
type Coder interface {
	FaultCode() Code
}

// ConfigError reports an invalid component configuration, such as a retry
// count or limiter capacity of zero. It always propagates to the caller and
// is never retried or routed to a fallback.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// FaultCode implements Coder.
func (e *ConfigError) FaultCode() Code { return Config }

// TimerStateError reports an illegal timer transition: starting a span that
// already started, or stopping one that never started or already stopped.
type TimerStateError struct {
	Name string
	Op   string // "start" or "stop"
}

func (e *TimerStateError) Error() string {
	return fmt.Sprintf("timer %q: illegal %s", e.Name, e.Op)
}

// FaultCode implements Coder.
func (e *TimerStateError) FaultCode() Code { return TimerState }
