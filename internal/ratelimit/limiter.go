// Package ratelimit implements fixed-window request budgets keyed by tier
// and subject.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"meetmap-backend/internal/config"
	"meetmap-backend/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Tiers of the write limiter.
const (
	TierIP          = "ip"
	TierUser        = "user"
	TierCreateEvent = "create_event"
	TierCreatePost  = "create_post"
)

// Check asks for one unit of a tier's budget on behalf of a subject.
type Check struct {
	Tier    string
	Subject string
	Limit   config.Limit
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed bool
	// RetryAfter is the number of whole seconds until the most restrictive
	// rejecting window closes. Zero when allowed.
	RetryAfter int
	// Tiers lists the tiers that rejected the request.
	Tiers []string
}

type window struct {
	count int
	end   time.Time
}

// Limiter counts requests in fixed windows. Windows are identified by
// (tier, subject, window index) so a new window starts empty without any
// reset bookkeeping.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{windows: make(map[string]*window), now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow evaluates every check. Each tier still under its limit is charged
// even when another tier rejects the request.
func (l *Limiter) Allow(checks ...Check) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	d := Decision{Allowed: true}
	for _, c := range checks {
		if c.Limit.Max <= 0 || c.Limit.Window <= 0 {
			continue
		}
		idx := now.UnixNano() / int64(c.Limit.Window)
		key := fmt.Sprintf("%s|%s|%d", c.Tier, c.Subject, idx)

		w, ok := l.windows[key]
		if !ok {
			w = &window{end: time.Unix(0, (idx+1)*int64(c.Limit.Window))}
			l.windows[key] = w
		}
		if w.count < c.Limit.Max {
			w.count++
			continue
		}

		d.Allowed = false
		d.Tiers = append(d.Tiers, c.Tier)
		retry := int(math.Ceil(w.end.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		if retry > d.RetryAfter {
			d.RetryAfter = retry
		}
		metrics.RateLimitRejections.WithLabelValues(c.Tier).Inc()
	}
	return d
}

// Sweep drops every window that has closed and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !w.end.After(now) {
			delete(l.windows, key)
			removed++
		}
	}
	metrics.RateLimitWindows.Set(float64(len(l.windows)))
	return removed
}

// Len returns the number of live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// RunSweeper sweeps every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("Rate limit windows swept")
			}
		}
	}
}
