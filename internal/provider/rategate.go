package provider

import (
	"context"
	"sync"
	"time"
)

// RateGate serializes a minimum interval between calls across all callers
// in the process. It is a single mutex-protected "time of last call";
// concurrent callers queue on the mutex, so ordering is FIFO-ish with
// bounded waiting but no stronger fairness guarantee.
//
// One gate instance is constructed per process and passed by handle to
// everything that issues chat calls, including map-reduce shard workers.
type RateGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewRateGate creates a gate enforcing the given minimum interval.
// A non-positive interval disables the gate.
func NewRateGate(interval time.Duration) *RateGate {
	return &RateGate{interval: interval}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous call, then records the current time as the new last call.
func (g *RateGate) Wait(ctx context.Context) error {
	if g == nil || g.interval <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	wait := g.interval - time.Since(g.last)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	g.last = time.Now()
	return nil
}
