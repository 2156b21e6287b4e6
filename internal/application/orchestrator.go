// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// DefaultMaxDetailSites is the per-vendor cap on sites receiving per-site
// calls in one cycle.
const DefaultMaxDetailSites = 5

// OrchestratorConfig holds the per-cycle request volume settings.
type OrchestratorConfig struct {
	// MaxDetailSites caps how many sites per vendor get overview, details,
	// device and energy calls each cycle. Sites polled least recently go first.
	MaxDetailSites int
	// EnergyLookbackDays enables energy timeseries fetches covering that many
	// past days. Zero disables them.
	EnergyLookbackDays int
}

// VendorFetch is the outcome of listing one vendor's sites.
type VendorFetch struct {
	Result model.FetchResult
	// Sites holds the stored records after the listing was merged in.
	Sites []model.Site
}

// Orchestrator drives connectors and writes their normalized output to
// storage. No connector error or panic escapes it: every outcome becomes a
// model.FetchResult and is recorded in the fetch ledger.
type Orchestrator struct {
	factory  driven.ConnectorFactory
	sites    driven.SiteStore
	devices  driven.DeviceStore
	energy   driven.EnergyStore
	ledger   *FetchLedger
	cfg      OrchestratorConfig
	observer driven.FetchObserver
	logger   *slog.Logger
	now      func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithObserver reports every fetch result and cycle to obs.
func WithObserver(obs driven.FetchObserver) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock replaces the orchestrator's time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an Orchestrator with all required dependencies.
func NewOrchestrator(
	factory driven.ConnectorFactory,
	sites driven.SiteStore,
	devices driven.DeviceStore,
	energy driven.EnergyStore,
	ledger *FetchLedger,
	cfg OrchestratorConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	if cfg.MaxDetailSites <= 0 {
		cfg.MaxDetailSites = DefaultMaxDetailSites
	}
	o := &Orchestrator{
		factory: factory,
		sites:   sites,
		devices: devices,
		energy:  energy,
		ledger:  ledger,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchAllSites lists the vendor's sites and upserts each one, merged onto
// whatever is already stored for it.
func (o *Orchestrator) FetchAllSites(ctx context.Context, cred model.Credential) VendorFetch {
	vf, _ := o.listSites(ctx, cred)
	return vf
}

// FetchSiteOverview refreshes a stored site's live metrics.
func (o *Orchestrator) FetchSiteOverview(ctx context.Context, siteID string, cred model.Credential) model.FetchResult {
	return o.runSiteOp(ctx, siteID, cred, model.ResourceOverview, o.overview)
}

// FetchSiteDevices refreshes a stored site's equipment.
func (o *Orchestrator) FetchSiteDevices(ctx context.Context, siteID string, cred model.Credential) model.FetchResult {
	return o.runSiteOp(ctx, siteID, cred, model.ResourceDevices, o.deviceList)
}

// FetchSiteDetails refreshes a stored site's full record, including any
// metrics the vendor returns alongside it.
func (o *Orchestrator) FetchSiteDetails(ctx context.Context, siteID string, cred model.Credential) model.FetchResult {
	return o.runSiteOp(ctx, siteID, cred, model.ResourceDetails, o.details)
}

// FetchSiteEnergy stores a site's daily energy readings between start and end.
func (o *Orchestrator) FetchSiteEnergy(ctx context.Context, siteID string, cred model.Credential, start, end time.Time) model.FetchResult {
	return o.runSiteOp(ctx, siteID, cred, model.ResourceEnergy, o.energyRange(start, end))
}

// RunCycle processes every credential's vendor in order and returns the
// summary. It never fails: a vendor whose pass errors is reported as such and
// the remaining vendors still run.
func (o *Orchestrator) RunCycle(ctx context.Context, trigger model.Trigger, creds []model.Credential) model.CycleSummary {
	summary := model.CycleSummary{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: o.now(),
		Vendors:   []model.VendorResult{},
		Items:     []model.FetchResult{},
	}

	o.logger.Info("fetch cycle started", "cycle_id", summary.ID, "trigger", trigger, "vendors", len(creds))

	for _, cred := range creds {
		if err := ctx.Err(); err != nil {
			summary.Vendors = append(summary.Vendors, model.VendorResult{
				Vendor: cred.Vendor,
				Status: model.FetchStatusSkipped,
				Error:  err.Error(),
			})
			continue
		}

		vr, items := o.runVendor(ctx, cred)
		summary.Vendors = append(summary.Vendors, vr)
		summary.Items = append(summary.Items, items...)
	}

	summary.FinishedAt = o.now()
	if o.observer != nil {
		o.observer.ObserveCycle(summary.FinishedAt.Sub(summary.StartedAt))
		for _, usage := range o.factory.Usage() {
			o.observer.ObserveQuota(usage)
		}
	}

	o.logger.Info("fetch cycle complete",
		"cycle_id", summary.ID,
		"trigger", trigger,
		"sites_updated", summary.SitesUpdated(),
		"items", len(summary.Items),
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
	)

	return summary
}

// runVendor performs one vendor's pass: list, then per-site calls for the
// capped subset of sites. A panic anywhere in the pass is reported as the
// vendor's error.
func (o *Orchestrator) runVendor(ctx context.Context, cred model.Credential) (vr model.VendorResult, items []model.FetchResult) {
	vr = model.VendorResult{Vendor: cred.Vendor}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("vendor pass panicked",
				"vendor", cred.Vendor,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			vr.Status = model.FetchStatusError
			vr.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	listing, conn := o.listSites(ctx, cred)
	items = append(items, listing.Result)
	vr.SitesFetched = len(listing.Sites)
	vr.Status = listing.Result.Status
	vr.Error = listing.Result.Error

	sites := listing.Sites
	switch listing.Result.Status {
	case model.FetchStatusSuccess, model.FetchStatusNotSupported:
		vr.Status = model.FetchStatusSuccess
	case model.FetchStatusSkipped:
		// Listing is cooling down; per-site resources have their own ledger
		// entries and may still be due.
		stored, err := o.sites.ListByVendor(ctx, cred.Vendor)
		if err != nil {
			o.logger.Error("load stored sites failed", "vendor", cred.Vendor, "error", err)
			return vr, items
		}
		sites = stored
		if conn, err = o.connect(cred); err != nil {
			vr.Status = model.FetchStatusError
			vr.Error = err.Error()
			return vr, items
		}
	default:
		o.logger.Error("vendor listing failed", "vendor", cred.Vendor, "status", vr.Status, "error", vr.Error)
		return vr, items
	}

	for _, site := range o.pickDetailSites(ctx, cred.Vendor, sites) {
		if ctx.Err() != nil {
			break
		}
		siteItems, updated := o.runSite(ctx, conn, site)
		items = append(items, siteItems...)
		if updated {
			vr.SitesUpdated++
		}
	}

	o.logger.Info("vendor pass complete",
		"vendor", cred.Vendor,
		"sites_fetched", vr.SitesFetched,
		"sites_updated", vr.SitesUpdated,
		"status", vr.Status,
	)
	return vr, items
}

// runSite issues the per-site calls. Each resource is its own unit of
// failure; a devices error leaves a committed overview in place. The site
// counts as updated only when some call wrote data.
func (o *Orchestrator) runSite(ctx context.Context, conn driven.Connector, site model.Site) ([]model.FetchResult, bool) {
	var items []model.FetchResult
	updated := false
	collect := func(res model.FetchResult) model.FetchResult {
		items = append(items, res)
		if res.Status == model.FetchStatusSuccess && res.Records > 0 {
			updated = true
		}
		return res
	}

	overview := collect(o.fetchSite(ctx, conn, site, model.ResourceOverview, o.overview))
	if overview.Status == model.FetchStatusNotSupported {
		// Vendors without an overview endpoint return metrics with details.
		collect(o.fetchSite(ctx, conn, site, model.ResourceDetails, o.details))
	}
	collect(o.fetchSite(ctx, conn, site, model.ResourceDevices, o.deviceList))

	if o.cfg.EnergyLookbackDays > 0 {
		end := o.now().UTC()
		start := end.Truncate(24*time.Hour).AddDate(0, 0, -o.cfg.EnergyLookbackDays)
		collect(o.fetchSite(ctx, conn, site, model.ResourceEnergy, o.energyRange(start, end)))
	}

	return items, updated
}

// pickDetailSites returns at most MaxDetailSites sites, least recently
// attempted first, so that every site is eventually polled.
func (o *Orchestrator) pickDetailSites(ctx context.Context, vendor model.Vendor, sites []model.Site) []model.Site {
	if len(sites) <= o.cfg.MaxDetailSites {
		return sites
	}

	lastAttempt := make(map[string]time.Time, len(sites))
	for _, s := range sites {
		_, rec, err := o.ledger.Eligible(ctx, model.FetchKey{Vendor: vendor, SiteID: s.ID, Resource: model.ResourceOverview})
		if err == nil && rec != nil && rec.LastAttemptAt != nil {
			lastAttempt[s.ID] = *rec.LastAttemptAt
		}
	}

	ordered := make([]model.Site, len(sites))
	copy(ordered, sites)
	sort.SliceStable(ordered, func(i, j int) bool {
		return lastAttempt[ordered[i].ID].Before(lastAttempt[ordered[j].ID])
	})
	return ordered[:o.cfg.MaxDetailSites]
}

// listSites runs the listing under the ledger and also returns the connector
// it built, nil when none could be built or the listing was skipped.
func (o *Orchestrator) listSites(ctx context.Context, cred model.Credential) (VendorFetch, driven.Connector) {
	var conn driven.Connector
	var stored []model.Site

	key := model.FetchKey{Vendor: cred.Vendor, Resource: model.ResourceSites}
	res := o.guard(ctx, key, func(ctx context.Context) (int, error) {
		c, err := o.connect(cred)
		if err != nil {
			return 0, err
		}
		conn = c

		listed, err := c.ListSites(ctx)
		if err != nil {
			return 0, err
		}

		now := o.now()
		for _, l := range listed {
			site, err := o.sites.GetByID(ctx, l.ID)
			if err != nil && !errors.Is(err, driven.ErrSiteNotFound) {
				o.logger.Error("load stored site failed", "site_id", l.ID, "error", err)
				continue
			}
			site.MergeListing(l)
			site.LastUpdated = now
			if err := o.sites.Upsert(ctx, site); err != nil {
				o.logger.Error("upsert site failed", "site_id", site.ID, "error", err)
				continue
			}
			stored = append(stored, site)
		}
		return len(stored), nil
	})

	return VendorFetch{Result: res, Sites: stored}, conn
}

type siteOp func(ctx context.Context, conn driven.Connector, site model.Site) (int, error)

// fetchSite runs op for one site under the ledger.
func (o *Orchestrator) fetchSite(ctx context.Context, conn driven.Connector, site model.Site, resource model.Resource, op siteOp) model.FetchResult {
	key := model.FetchKey{Vendor: site.Vendor, SiteID: site.ID, Resource: resource}
	return o.guard(ctx, key, func(ctx context.Context) (int, error) {
		return op(ctx, conn, site)
	})
}

// runSiteOp resolves a stored site and builds a connector for a single
// on-demand operation.
func (o *Orchestrator) runSiteOp(ctx context.Context, siteID string, cred model.Credential, resource model.Resource, op siteOp) model.FetchResult {
	key := model.FetchKey{Vendor: cred.Vendor, SiteID: siteID, Resource: resource}
	return o.guard(ctx, key, func(ctx context.Context) (int, error) {
		site, err := o.sites.GetByID(ctx, siteID)
		if err != nil {
			return 0, fmt.Errorf("load site %s: %w", siteID, err)
		}
		if site.Vendor != cred.Vendor {
			return 0, driven.NewError(driven.KindValidation, cred.Vendor, string(resource),
				fmt.Errorf("site %s belongs to %s", siteID, site.Vendor))
		}
		conn, err := o.connect(cred)
		if err != nil {
			return 0, err
		}
		return op(ctx, conn, site)
	})
}

func (o *Orchestrator) overview(ctx context.Context, conn driven.Connector, site model.Site) (int, error) {
	ov, err := conn.GetSiteOverview(ctx, site.VendorSiteID)
	if err != nil {
		return 0, err
	}
	if ov.Empty() {
		return 0, nil
	}

	current, err := o.sites.GetByID(ctx, site.ID)
	if err != nil {
		return 0, fmt.Errorf("load site %s: %w", site.ID, err)
	}
	current.ApplyOverview(ov)
	current.LastUpdated = o.now()
	if err := o.sites.Upsert(ctx, current); err != nil {
		return 0, err
	}
	return 1, nil
}

func (o *Orchestrator) details(ctx context.Context, conn driven.Connector, site model.Site) (int, error) {
	d, err := conn.GetSiteDetails(ctx, site.VendorSiteID)
	if err != nil {
		return 0, err
	}
	if d.Site.ID != site.ID {
		return 0, driven.NewError(driven.KindValidation, site.Vendor, "site details",
			fmt.Errorf("details for %s returned site %s", site.ID, d.Site.ID))
	}

	current, err := o.sites.GetByID(ctx, site.ID)
	if err != nil {
		return 0, fmt.Errorf("load site %s: %w", site.ID, err)
	}
	current.MergeListing(d.Site)
	current.ApplyOverview(d.Overview)
	current.LastUpdated = o.now()
	if err := o.sites.Upsert(ctx, current); err != nil {
		return 0, err
	}
	return 1, nil
}

func (o *Orchestrator) deviceList(ctx context.Context, conn driven.Connector, site model.Site) (int, error) {
	devices, err := conn.GetDevices(ctx, site.VendorSiteID)
	if err != nil {
		return 0, err
	}

	now := o.now()
	for i := range devices {
		devices[i].SiteID = site.ID
		devices[i].LastUpdated = now
	}
	if err := o.devices.UpsertForSite(ctx, site.ID, devices); err != nil {
		return 0, err
	}
	return len(devices), nil
}

func (o *Orchestrator) energyRange(start, end time.Time) siteOp {
	return func(ctx context.Context, conn driven.Connector, site model.Site) (int, error) {
		readings, err := conn.GetSiteEnergy(ctx, site.VendorSiteID, start, end)
		if err != nil {
			return 0, err
		}
		for i := range readings {
			readings[i].SiteID = site.ID
		}
		if err := o.energy.UpsertReadings(ctx, site.ID, readings); err != nil {
			return 0, err
		}
		return len(readings), nil
	}
}

// guard checks key's cooldown, runs fn when eligible and records the outcome.
// It is the only place connector errors are converted into results.
func (o *Orchestrator) guard(ctx context.Context, key model.FetchKey, fn func(context.Context) (int, error)) model.FetchResult {
	res := model.FetchResult{Vendor: key.Vendor, SiteID: key.SiteID, Resource: key.Resource}
	defer func() {
		if o.observer != nil {
			o.observer.ObserveFetch(res)
		}
	}()

	eligible, rec, err := o.ledger.Eligible(ctx, key)
	if err != nil {
		res.Status = model.FetchStatusError
		res.Error = err.Error()
		o.logger.Error("fetch ledger unavailable", "vendor", key.Vendor, "site_id", key.SiteID, "resource", key.Resource, "error", err)
		return res
	}
	if !eligible {
		res.Status = model.FetchStatusSkipped
		res.Error = "cooling down until " + rec.CooldownUntil.UTC().Format(time.RFC3339)
		o.logger.Debug("fetch skipped, resource cooling down",
			"vendor", key.Vendor,
			"site_id", key.SiteID,
			"resource", key.Resource,
			"cooldown_until", rec.CooldownUntil.UTC().Format(time.RFC3339),
		)
		return res
	}

	n, fetchErr := call(ctx, fn)
	res.Records = n

	status, err := o.ledger.Record(ctx, key, fetchErr)
	if err != nil {
		o.logger.Error("record fetch outcome failed", "vendor", key.Vendor, "site_id", key.SiteID, "resource", key.Resource, "error", err)
	}
	res.Status = status

	if fetchErr != nil && status != model.FetchStatusNotSupported {
		res.Error = fetchErr.Error()
		o.logger.Error("fetch failed",
			"vendor", key.Vendor,
			"site_id", key.SiteID,
			"resource", key.Resource,
			"kind", driven.KindOf(fetchErr).String(),
			"error", fetchErr,
		)
	}
	return res
}

func (o *Orchestrator) connect(cred model.Credential) (driven.Connector, error) {
	conn, err := o.factory.New(cred)
	if err != nil {
		return nil, err
	}
	if conn.Vendor() != cred.Vendor {
		return nil, fmt.Errorf("factory built %s connector for %s credential", conn.Vendor(), cred.Vendor)
	}
	return conn, nil
}

// call runs fn, converting a panic into an error.
func call(ctx context.Context, fn func(context.Context) (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("fetch panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
