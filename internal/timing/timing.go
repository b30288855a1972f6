// Package timing records hierarchical call timings for the execution
// pipeline. A Timer is one named interval; it owns an ordered tree of child
// timers and zero-duration marks, and renders the whole tree as a
// human-readable profile. The text format is a compatibility artifact and
// must not change.
package timing

import (
	"time"

	"github.com/dskow/resilience-core/internal/fault"
)

// Timer is one named interval or mark in a call tree. A timer is created
// stopped-and-unstarted, started at most once, and stopped at most once;
// it is never mutated after stopping. Children are recorded in insertion
// order, which is the structural nesting order of the call.
//
// Timers are per-call state and are not safe for concurrent use; the
// pipeline gives each call its own tree.
type Timer struct {
	name        string
	description string

	start time.Time
	end   time.Time

	children []*Timer

	clock func() time.Time
}

// New creates an unstarted Timer with the given name and optional
// description.
func New(name, description string) *Timer {
	return &Timer{
		name:        name,
		description: description,
		clock:       time.Now,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string { return t.name }

// Description returns the timer's description, which may be empty.
func (t *Timer) Description() string { return t.description }

// Start begins the interval. It fails with a state error if the timer has
// already been started.
func (t *Timer) Start() error {
	if !t.start.IsZero() {
		return &fault.TimerStateError{Name: t.name, Op: "start"}
	}
	t.start = t.clock()
	return nil
}

// Stop ends the interval. It fails with a state error if the timer was
// never started or has already been stopped.
func (t *Timer) Stop() error {
	if t.start.IsZero() {
		return &fault.TimerStateError{Name: t.name, Op: "stop"}
	}
	if !t.end.IsZero() {
		return &fault.TimerStateError{Name: t.name, Op: "stop"}
	}
	t.end = t.clock()
	return nil
}

// Child creates a new unstarted timer registered under t, preserving
// call-tree order.
func (t *Timer) Child(name, description string) *Timer {
	child := &Timer{
		name:        name,
		description: description,
		clock:       t.clock,
	}
	t.children = append(t.children, child)
	return child
}

// Mark records a zero-duration point event: a child that is started and
// deliberately never stopped.
func (t *Timer) Mark(name, description string) {
	child := t.Child(name, description)
	child.start = t.clock()
}

// IsMark reports whether t is a point event: started but never stopped.
func (t *Timer) IsMark() bool {
	return !t.start.IsZero() && t.end.IsZero()
}

// IsInterval reports whether t is an interval rather than a point event.
func (t *Timer) IsInterval() bool {
	return !t.IsMark()
}

// Duration returns the recorded interval length. Zero until the timer has
// been stopped.
func (t *Timer) Duration() time.Duration {
	if t.start.IsZero() || t.end.IsZero() {
		return 0
	}
	return t.end.Sub(t.start)
}

// Walk returns t followed by a depth-first traversal of all descendants.
func (t *Timer) Walk() []*Timer {
	out := []*Timer{t}
	for _, child := range t.children {
		out = append(out, child.Walk()...)
	}
	return out
}

// Len returns the total number of nodes in the tree, including t.
func (t *Timer) Len() int {
	total := 1
	for _, child := range t.children {
		total += child.Len()
	}
	return total
}
