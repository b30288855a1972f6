package window

import (
	"sync"
	"testing"
	"time"

	"github.com/dskow/resilience-core/internal/metrics"
)

func init() {
	// Register metrics once for all tests in this package.
	metrics.Init()
}

// fakeClock returns a controllable clock starting at a fixed instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStats(spans Spans) (*Stats, *fakeClock) {
	s := New("test", spans)
	clk := newFakeClock()
	s.clock = clk.Now
	return s, clk
}

func TestStats_CountsWithinCountersSpan(t *testing.T) {
	s, clk := newTestStats(Spans{Counters: 10 * time.Second})

	s.RecordSuccess()
	s.RecordSuccess()
	s.RecordFailure()

	if got := s.Successes(); got != 2 {
		t.Fatalf("Successes() = %d, want 2", got)
	}
	if got := s.Failures(); got != 1 {
		t.Fatalf("Failures() = %d, want 1", got)
	}

	// Step past the counters span; counts drop to zero.
	clk.Advance(11 * time.Second)
	if got := s.Successes(); got != 0 {
		t.Fatalf("Successes() after span = %d, want 0", got)
	}
	if got := s.Failures(); got != 0 {
		t.Fatalf("Failures() after span = %d, want 0", got)
	}
}

func TestStats_EvictionInvariant(t *testing.T) {
	// Retention is the longest span (traffic here).
	s, clk := newTestStats(Spans{Counters: time.Second, Traffic: 5 * time.Second, Latency: 2 * time.Second})

	for i := 0; i < 10; i++ {
		s.RecordFailure()
		clk.Advance(time.Second)
	}

	// Every retained timestamp must be within the retention horizon.
	cutoff := clk.Now().Add(-s.retain)
	for _, ts := range s.failures {
		if ts.Before(cutoff) {
			t.Fatalf("retained timestamp %v older than cutoff %v", ts, cutoff)
		}
	}
}

func TestStats_RequestRate(t *testing.T) {
	s, clk := newTestStats(Spans{Traffic: 10 * time.Second})

	for i := 0; i < 5; i++ {
		s.RecordSuccess()
	}
	for i := 0; i < 5; i++ {
		s.RecordFailure()
	}

	// 10 events over a 10s span = 1 req/s.
	if got := s.RequestRate(); got != 1.0 {
		t.Fatalf("RequestRate() = %v, want 1.0", got)
	}

	// Events age out of the traffic span.
	clk.Advance(11 * time.Second)
	if got := s.RequestRate(); got != 0 {
		t.Fatalf("RequestRate() after span = %v, want 0", got)
	}
}

func TestStats_ErrorRate(t *testing.T) {
	s, clk := newTestStats(Spans{Latency: 20 * time.Second})

	for i := 0; i < 10; i++ {
		s.RecordFailure()
	}
	// 10 failures over a 20s span = 0.5 failures/s.
	if got := s.ErrorRate(); got != 0.5 {
		t.Fatalf("ErrorRate() = %v, want 0.5", got)
	}

	// Successes never move the error rate.
	for i := 0; i < 100; i++ {
		s.RecordSuccess()
	}
	if got := s.ErrorRate(); got != 0.5 {
		t.Fatalf("ErrorRate() after successes = %v, want 0.5", got)
	}

	clk.Advance(21 * time.Second)
	if got := s.ErrorRate(); got != 0 {
		t.Fatalf("ErrorRate() after span = %v, want 0", got)
	}
}

func TestStats_SnapshotMatchesQueries(t *testing.T) {
	s, _ := newTestStats(Spans{})

	s.RecordSuccess()
	s.RecordFailure()
	s.RecordFailure()

	snap := s.Snapshot()
	if snap.Successes != s.Successes() {
		t.Errorf("snapshot successes %d != %d", snap.Successes, s.Successes())
	}
	if snap.Failures != s.Failures() {
		t.Errorf("snapshot failures %d != %d", snap.Failures, s.Failures())
	}
	if snap.ErrorRate != s.ErrorRate() {
		t.Errorf("snapshot error rate %v != %v", snap.ErrorRate, s.ErrorRate())
	}
	if snap.RequestRate != s.RequestRate() {
		t.Errorf("snapshot request rate %v != %v", snap.RequestRate, s.RequestRate())
	}
}

func TestStats_DefaultSpansFill(t *testing.T) {
	s := New("test", Spans{})
	def := DefaultSpans()
	if s.spans != def {
		t.Fatalf("spans = %+v, want defaults %+v", s.spans, def)
	}
	if s.retain != def.Traffic {
		t.Fatalf("retain = %v, want %v", s.retain, def.Traffic)
	}
}

func TestStats_ConcurrentAccess(t *testing.T) {
	s := New("test", Spans{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordSuccess()
			s.RecordFailure()
			_ = s.RequestRate()
			_ = s.ErrorRate()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	if got := s.Successes(); got != 100 {
		t.Fatalf("Successes() = %d, want 100", got)
	}
	if got := s.Failures(); got != 100 {
		t.Fatalf("Failures() = %d, want 100", got)
	}
}
