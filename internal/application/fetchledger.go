package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

const (
	// DefaultCooldown applies after a rate limit that carried no Retry-After.
	DefaultCooldown = 15 * time.Minute
	// MaxCooldown caps the escalating default cooldown.
	MaxCooldown = 6 * time.Hour
)

// FetchLedger decides whether a vendor resource may be polled and records the
// outcome of every attempt. It owns the cooldown policy applied after rate
// limits.
type FetchLedger struct {
	store           driven.FetchLedgerStore
	defaultCooldown time.Duration
	maxCooldown     time.Duration
	now             func() time.Time
}

// LedgerOption configures a FetchLedger.
type LedgerOption func(*FetchLedger)

// WithLedgerClock replaces the ledger's time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *FetchLedger) { l.now = now }
}

// WithMaxCooldown overrides the cap on escalating default cooldowns.
func WithMaxCooldown(d time.Duration) LedgerOption {
	return func(l *FetchLedger) { l.maxCooldown = d }
}

// NewFetchLedger creates a FetchLedger. A non-positive defaultCooldown falls
// back to DefaultCooldown.
func NewFetchLedger(store driven.FetchLedgerStore, defaultCooldown time.Duration, opts ...LedgerOption) *FetchLedger {
	if defaultCooldown <= 0 {
		defaultCooldown = DefaultCooldown
	}
	l := &FetchLedger{
		store:           store,
		defaultCooldown: defaultCooldown,
		maxCooldown:     MaxCooldown,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Eligible reports whether key is outside any cooldown. The second return
// value is the stored record, nil if the key was never attempted.
func (l *FetchLedger) Eligible(ctx context.Context, key model.FetchKey) (bool, *model.FetchRecord, error) {
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return false, nil, fmt.Errorf("read fetch ledger: %w", err)
	}
	if rec == nil {
		return true, nil, nil
	}
	return rec.Eligible(l.now()), rec, nil
}

// Record classifies the outcome of an attempt on key, persists it and returns
// the status reported to callers. The status is returned even when the ledger
// cannot be read or written. NotSupported is stored as a success, since
// the vendor answered as well as it can.
func (l *FetchLedger) Record(ctx context.Context, key model.FetchKey, fetchErr error) (model.FetchStatus, error) {
	status := StatusOf(fetchErr)

	prev, err := l.store.Get(ctx, key)
	if err != nil {
		return status, fmt.Errorf("read fetch ledger: %w", err)
	}

	now := l.now()
	rec := model.FetchRecord{FetchKey: key, LastAttemptAt: &now}
	if prev != nil {
		rec.LastSuccessAt = prev.LastSuccessAt
	}

	switch status {
	case model.FetchStatusSuccess, model.FetchStatusNotSupported:
		rec.LastStatus = model.FetchStatusSuccess
		rec.LastSuccessAt = &now

	case model.FetchStatusRateLimited:
		rec.LastStatus = status
		rec.ErrorMessage = fetchErr.Error()
		rec.ConsecutiveRateLimits = 1
		if prev != nil {
			rec.ConsecutiveRateLimits = prev.ConsecutiveRateLimits + 1
		}

		wait := driven.RetryAfterOf(fetchErr)
		if wait > 0 {
			rec.RetryAfterSeconds = int(wait.Round(time.Second) / time.Second)
		} else {
			wait = l.backoff(rec.ConsecutiveRateLimits)
		}
		until := now.Add(wait)
		rec.CooldownUntil = &until

		slog.Warn("vendor rate limit, resource cooling down",
			"vendor", key.Vendor,
			"site_id", key.SiteID,
			"resource", key.Resource,
			"cooldown_until", until.Format(time.RFC3339),
			"consecutive", rec.ConsecutiveRateLimits,
		)

	default:
		rec.LastStatus = status
		rec.ErrorMessage = fetchErr.Error()
	}

	if err := l.store.Upsert(ctx, rec); err != nil {
		return status, fmt.Errorf("write fetch ledger: %w", err)
	}
	return status, nil
}

// StatusOf maps the outcome of a vendor call to the status reported for it.
func StatusOf(fetchErr error) model.FetchStatus {
	if fetchErr == nil {
		return model.FetchStatusSuccess
	}
	switch driven.KindOf(fetchErr) {
	case driven.KindNotSupported:
		return model.FetchStatusNotSupported
	case driven.KindRateLimit:
		return model.FetchStatusRateLimited
	default:
		return model.FetchStatusError
	}
}

// List returns ledger records, optionally for one vendor.
func (l *FetchLedger) List(ctx context.Context, vendor model.Vendor) ([]model.FetchRecord, error) {
	return l.store.List(ctx, vendor)
}

// backoff returns the default cooldown for the nth consecutive rate limit:
// the base cooldown doubled per repeat, capped at maxCooldown.
func (l *FetchLedger) backoff(consecutive int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.defaultCooldown
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = l.maxCooldown
	b.MaxElapsedTime = 0
	b.Reset()

	wait := b.NextBackOff()
	for i := 1; i < consecutive && wait < l.maxCooldown; i++ {
		wait = b.NextBackOff()
	}
	if wait > l.maxCooldown {
		wait = l.maxCooldown
	}
	return wait
}
