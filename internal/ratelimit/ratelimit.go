// Package ratelimit provides the process-wide singleton that serializes
// every outbound observation-catalog and taxon-catalog request against
// the iNaturalist API. It wraps golang.org/x/time/rate: the first wait
// returns immediately, and every subsequent wait blocks until at least
// the configured interval has elapsed since the previous one returned.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dwca-toolkit/downloader/internal/metrics"
)

// DefaultInterval is the out-of-the-box wait interval: a safety margin
// below a nominal one-request-per-second budget.
const DefaultInterval = 1100 * time.Millisecond

var (
	mu        sync.Mutex
	limiter   *rate.Limiter
	interval  time.Duration
	configured bool
)

// Configure sets the wait interval used by the singleton. It must be
// called, if at all, before the first call to WaitForSlot; later calls
// are no-ops once the limiter has been constructed.
func Configure(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if configured {
		return
	}
	interval = d
	configured = true
}

func ensureLimiter() *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()
	if limiter == nil {
		if !configured {
			interval = DefaultInterval
			configured = true
		}
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return limiter
}

// WaitForSlot blocks until a slot is available or ctx is cancelled.
// Concurrent callers are serialized; no call returns earlier than
// interval after the previous one returned.
func WaitForSlot(ctx context.Context) error {
	l := ensureLimiter()
	start := time.Now()
	err := l.Wait(ctx)
	metrics.ObserveRateLimiterWait(time.Since(start))
	return err
}

// reset clears the singleton state. Test-only: production callers never
// need to reconstruct the limiter mid-process.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	limiter = nil
	configured = false
	interval = 0
}
