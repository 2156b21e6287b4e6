package model

import "time"

// FetchKey identifies one ledger entry. SiteID is empty for vendor-scoped
// resources such as the site listing.
type FetchKey struct {
	Vendor   Vendor
	SiteID   string
	Resource Resource
}

// FetchRecord is the fetch ledger entry for one FetchKey.
type FetchRecord struct {
	FetchKey
	LastSuccessAt         *time.Time
	LastAttemptAt         *time.Time
	LastStatus            FetchStatus
	ErrorMessage          string
	CooldownUntil         *time.Time
	RetryAfterSeconds     int
	ConsecutiveRateLimits int
}

// Eligible reports whether the resource may be polled at now. A resource is
// ineligible while now is before CooldownUntil.
func (r FetchRecord) Eligible(now time.Time) bool {
	return r.CooldownUntil == nil || !now.Before(*r.CooldownUntil)
}

// FetchResult is the outcome of one orchestrator operation.
type FetchResult struct {
	Vendor   Vendor
	SiteID   string
	Resource Resource
	Status   FetchStatus
	Error    string
	Records  int
}

// VendorResult summarizes one vendor's pass within a polling cycle.
type VendorResult struct {
	Vendor       Vendor
	SitesFetched int
	SitesUpdated int
	Status       FetchStatus
	Error        string
}

// Trigger records what started a polling cycle.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// CycleSummary is the result of one polling cycle across all vendors.
type CycleSummary struct {
	ID         string
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt time.Time
	Vendors    []VendorResult
	Items      []FetchResult
}

// SitesUpdated totals updated sites across vendors.
func (c CycleSummary) SitesUpdated() int {
	total := 0
	for _, v := range c.Vendors {
		total += v.SitesUpdated
	}
	return total
}

// QuotaUsage reports a vendor's request count against its daily quota for
// the current UTC day.
type QuotaUsage struct {
	Vendor Vendor
	Day    string
	Count  int
	Quota  int
}

// Exceeded reports whether the day's request count passed the quota.
func (q QuotaUsage) Exceeded() bool {
	return q.Quota > 0 && q.Count > q.Quota
}
