package retry

import (
	"fmt"
	"strings"

	"github.com/dskow/resilience-core/internal/fault"
)

// CompoundError aggregates the ordered failures of an exhausted retry. It
// acts as a single failure for generic handling (Error, Unwrap to the final
// attempt's failure as the immediate cause) while failure-introspecting
// callers enumerate every underlying cause via Failures.
type CompoundError struct {
	errs []error
}

// Error summarizes the failure, naming the final cause.
func (e *CompoundError) Error() string {
	return fmt.Sprintf("%d attempts failed, last: %v", len(e.errs), e.errs[len(e.errs)-1])
}

// Unwrap returns the final attempt's failure, preserving it as the
// immediate cause-chain parent for errors.Is and errors.As.
func (e *CompoundError) Unwrap() error {
	return e.errs[len(e.errs)-1]
}

// Failures returns every attempt's failure in attempt order. The slice is
// a copy; mutating it does not affect the error.
func (e *CompoundError) Failures() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Len returns the number of failed attempts.
func (e *CompoundError) Len() int {
	return len(e.errs)
}

// FaultCode implements fault.Coder.
func (e *CompoundError) FaultCode() fault.Code { return fault.RetryExhausted }

// String lists all causes, most recent last.
func (e *CompoundError) String() string {
	parts := make([]string, len(e.errs))
	for i, err := range e.errs {
		parts[i] = err.Error()
	}
	return "CompoundError(" + strings.Join(parts, ", ") + ")"
}
