// Package throttle provides an optional non-blocking requests-per-second
// gate evaluated before admission. It sheds calls that exceed a token
// bucket rather than queuing them, matching the pipeline's fail-fast
// admission philosophy.
package throttle

import (
	"fmt"
	"sync"

	"github.com/dskow/resilience-core/internal/fault"
	"github.com/dskow/resilience-core/internal/metrics"
	"golang.org/x/time/rate"
)

// Gate limits call admission to a sustained rate with a burst allowance.
type Gate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	name    string
}

// New creates a Gate allowing rps sustained calls per second with the
// given burst. Both must be positive.
func New(name string, rps float64, burst int) (*Gate, error) {
	if rps <= 0 {
		return nil, &fault.ConfigError{Field: "requests_per_second", Reason: "must be positive"}
	}
	if burst <= 0 {
		return nil, &fault.ConfigError{Field: "burst_size", Reason: "must be positive"}
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}, nil
}

// Allow takes one token without blocking. When the bucket is empty it
// returns fault.ErrRateLimited immediately.
func (g *Gate) Allow() error {
	g.mu.Lock()
	l := g.limiter
	g.mu.Unlock()

	if !l.Allow() {
		metrics.ThrottleRejections.WithLabelValues(g.name).Inc()
		return fmt.Errorf("taking rate token: %w", fault.ErrRateLimited)
	}
	return nil
}

// Update hot-reloads the sustained rate and burst. The bucket is replaced,
// so the new limits take effect immediately.
func (g *Gate) Update(rps float64, burst int) {
	if rps <= 0 || burst <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}
