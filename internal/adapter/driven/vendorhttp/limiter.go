package vendorhttp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// Limiter paces requests to one vendor account and counts them against the
// vendor's daily quota. The quota is advisory: crossing it is logged but
// requests are not refused.
type Limiter struct {
	vendor model.Vendor
	pacer  *rate.Limiter
	quota  int
	now    func() time.Time

	mu     sync.Mutex
	day    string
	count  int
	warned bool
}

// NewLimiter creates a Limiter that leaves at least minInterval between
// requests. A non-positive minInterval disables pacing.
func NewLimiter(vendor model.Vendor, minInterval time.Duration, dailyQuota int) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{
		vendor: vendor,
		pacer:  rate.NewLimiter(limit, 1),
		quota:  dailyQuota,
		now:    time.Now,
	}
}

// Wait blocks until the next request may be issued, then counts it.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.pacer.Wait(ctx); err != nil {
		return err
	}
	l.record()
	return nil
}

func (l *Limiter) record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	l.count++

	if l.quota > 0 && l.count > l.quota && !l.warned {
		l.warned = true
		slog.Warn("vendor daily request quota exceeded",
			"vendor", l.vendor,
			"count", l.count,
			"quota", l.quota,
		)
	}
}

// rollover resets the counter at the UTC day boundary. Caller holds mu.
func (l *Limiter) rollover() {
	day := l.now().UTC().Format(time.DateOnly)
	if day != l.day {
		l.day = day
		l.count = 0
		l.warned = false
	}
}

// Usage returns the request count for the current UTC day.
func (l *Limiter) Usage() model.QuotaUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	return model.QuotaUsage{
		Vendor: l.vendor,
		Day:    l.day,
		Count:  l.count,
		Quota:  l.quota,
	}
}
