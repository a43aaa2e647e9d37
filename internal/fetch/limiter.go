package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter enforces a minimum gap between consecutive requests to the
// same domain, one token-bucket limiter per domain (burst 1, so a request
// is only ever admitted once the configured interval has fully elapsed),
// mutex-protected so it is safe for concurrent workers. Built on
// golang.org/x/time/rate rather than a hand-rolled timestamp map so Wait
// honors ctx cancellation instead of sleeping unconditionally.
type DomainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter builds an empty DomainLimiter.
func NewDomainLimiter() *DomainLimiter {
	return &DomainLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until domain's limiter admits a request (at least minDelay
// since the last one), or returns early with ctx's error if it is canceled
// first. A source's configured rate can change between calls (robots.txt
// Crawl-delay overriding the default), so an existing limiter's rate is
// adjusted in place rather than discarded.
func (l *DomainLimiter) Wait(ctx context.Context, domain string, minDelay time.Duration) error {
	limit := rate.Every(minDelay)

	l.mu.Lock()
	lim, ok := l.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(limit, 1)
		l.limiters[domain] = lim
	} else if lim.Limit() != limit {
		lim.SetLimit(limit)
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// DomainOf extracts the host portion of rawURL, suitable for use as a
// DomainLimiter key.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
