// Package window implements sliding-window health statistics for the
// execution pipeline. Two independent timestamp windows (successes and
// failures) back the request-rate, error-rate, and short-term counter
// queries that drive the breaker trip policy.
package window

import (
	"sort"
	"sync"
	"time"

	"github.com/dskow/resilience-core/internal/metrics"
)

// Spans configures the three lookback horizons. Counters backs the
// fast-reacting success/failure counts, Traffic backs the request rate,
// and Latency backs the error rate.
type Spans struct {
	Counters time.Duration
	Traffic  time.Duration
	Latency  time.Duration
}

// DefaultSpans returns the standard horizons: 10s counters, 2m traffic,
// 1m latency.
func DefaultSpans() Spans {
	return Spans{
		Counters: 10 * time.Second,
		Traffic:  2 * time.Minute,
		Latency:  time.Minute,
	}
}

// Stats records success and failure timestamps and derives rates over the
// configured spans. Timestamps are insertion-ordered and monotonically
// non-decreasing, so eviction is a prefix trim found by binary search.
// Safe for concurrent use.
type Stats struct {
	mu    sync.Mutex
	name  string
	spans Spans

	// retain is the longest span; both windows keep that much history so
	// every query span can be answered from the retained suffix.
	retain time.Duration

	successes []time.Time
	failures  []time.Time

	clock func() time.Time
}

// New creates a Stats collector for the named pipeline. Zero span fields
// are filled from DefaultSpans.
func New(name string, spans Spans) *Stats {
	def := DefaultSpans()
	if spans.Counters <= 0 {
		spans.Counters = def.Counters
	}
	if spans.Traffic <= 0 {
		spans.Traffic = def.Traffic
	}
	if spans.Latency <= 0 {
		spans.Latency = def.Latency
	}

	retain := spans.Counters
	if spans.Traffic > retain {
		retain = spans.Traffic
	}
	if spans.Latency > retain {
		retain = spans.Latency
	}

	return &Stats{
		name:   name,
		spans:  spans,
		retain: retain,
		clock:  time.Now,
	}
}

// RecordSuccess appends the current time to the success window and evicts
// expired entries.
func (s *Stats) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.successes = trim(append(s.successes, now), now.Add(-s.retain))
	metrics.WindowEvents.WithLabelValues(s.name, "success").Inc()
}

// RecordFailure appends the current time to the failure window and evicts
// expired entries.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.failures = trim(append(s.failures, now), now.Add(-s.retain))
	metrics.WindowEvents.WithLabelValues(s.name, "failure").Inc()
}

// Successes returns the success count within the counters span.
func (s *Stats) Successes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countSince(s.successes, s.clock().Add(-s.spans.Counters))
}

// Failures returns the failure count within the counters span.
func (s *Stats) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countSince(s.failures, s.clock().Add(-s.spans.Counters))
}

// RequestRate returns requests per second (successes plus failures) over
// the traffic span.
func (s *Stats) RequestRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-s.spans.Traffic)
	n := countSince(s.successes, cutoff) + countSince(s.failures, cutoff)
	return float64(n) / s.spans.Traffic.Seconds()
}

// ErrorRate returns failures per second over the latency span.
func (s *Stats) ErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock().Add(-s.spans.Latency)
	return float64(countSince(s.failures, cutoff)) / s.spans.Latency.Seconds()
}

// Snapshot is a point-in-time view of the windows, served by the admin API.
type Snapshot struct {
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	RequestRate float64 `json:"request_rate"`
	ErrorRate   float64 `json:"error_rate"`
}

// Snapshot returns all queries evaluated atomically under one lock.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	counters := now.Add(-s.spans.Counters)
	traffic := now.Add(-s.spans.Traffic)
	latency := now.Add(-s.spans.Latency)

	return Snapshot{
		Successes:   countSince(s.successes, counters),
		Failures:    countSince(s.failures, counters),
		RequestRate: float64(countSince(s.successes, traffic)+countSince(s.failures, traffic)) / s.spans.Traffic.Seconds(),
		ErrorRate:   float64(countSince(s.failures, latency)) / s.spans.Latency.Seconds(),
	}
}

// trim drops the prefix of entries older than cutoff. Entries are
// non-decreasing, so the first surviving index is found by binary search
// rather than a linear scan.
func trim(win []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(win), func(i int) bool {
		return !win[i].Before(cutoff)
	})
	if i == 0 {
		return win
	}
	return append(win[:0], win[i:]...)
}

// countSince returns how many entries are at or after cutoff.
func countSince(win []time.Time, cutoff time.Time) int {
	i := sort.Search(len(win), func(i int) bool {
		return !win[i].Before(cutoff)
	})
	return len(win) - i
}
