package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OriginLimiter enforces spec.md §5's per-origin minimum inter-request
// delay (~1.5s) across the Fetch stage's bounded worker pool, keeping the
// request rate to a single origin serialized even when multiple workers are
// fetching different detail pages concurrently.
type OriginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval rate.Limit
}

// DefaultInterRequestDelay is spec.md §4.2's DetailPageFetcher rate, reused
// as the OriginLimiter default.
const DefaultInterRequestDelay = 1500 // milliseconds

// NewOriginLimiter builds a limiter allowing one request every delayMS
// milliseconds per origin, with a burst of 1 (no bursting past the floor).
func NewOriginLimiter(delayMS int) *OriginLimiter {
	if delayMS <= 0 {
		delayMS = DefaultInterRequestDelay
	}
	return &OriginLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: rate.Every(time.Duration(delayMS) * time.Millisecond),
	}
}

func (l *OriginLimiter) limiterFor(origin string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[origin]
	if !ok {
		lim = rate.NewLimiter(l.interval, 1)
		l.limiters[origin] = lim
	}
	return lim
}

// Wait blocks until rawURL's origin is allowed another request.
func (l *OriginLimiter) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return l.limiterFor(u.Host).Wait(ctx)
}
