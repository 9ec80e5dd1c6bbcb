package collection

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter throttles captures per target domain.
type DomainLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter allows rps requests per second per domain with the given burst.
// A non-positive rps disables throttling.
func NewDomainLimiter(rps float64, burst int) *DomainLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &DomainLimiter{limit: limit, burst: burst, limiters: map[string]*rate.Limiter{}}
}

// Wait blocks until domain may be hit again. It returns throttled=true when
// the call had to wait, and an error if ctx ends first.
func (l *DomainLimiter) Wait(ctx context.Context, domain string) (throttled bool, err error) {
	r := l.get(domain).Reserve()
	delay := r.Delay()
	if delay == 0 {
		return false, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true, nil
	case <-ctx.Done():
		r.Cancel()
		return true, ctx.Err()
	}
}

func (l *DomainLimiter) get(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[domain] = lim
	}
	return lim
}

// DomainOf extracts the lower-cased host of a website, tolerating missing schemes.
func DomainOf(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
