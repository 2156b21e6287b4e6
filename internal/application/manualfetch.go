package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// ErrNoCredential is returned when an on-demand fetch targets a vendor with no
// configured credential.
var ErrNoCredential = errors.New("no credential configured for vendor")

// BackgroundRunner runs work in the background, refusing while a cycle holds
// the fetch lock.
type BackgroundRunner interface {
	TryRun(op string, fn func(ctx context.Context)) error
}

// ManualFetcher starts single-vendor and single-site fetches outside the
// polling cycle. Inputs are validated synchronously; the vendor calls run
// through the runner so they never overlap a cycle.
type ManualFetcher struct {
	orch   *Orchestrator
	creds  CredentialSource
	sites  driven.SiteStore
	runner BackgroundRunner
	logger *slog.Logger
}

// NewManualFetcher creates a ManualFetcher.
func NewManualFetcher(orch *Orchestrator, creds CredentialSource, sites driven.SiteStore, runner BackgroundRunner, logger *slog.Logger) *ManualFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManualFetcher{
		orch:   orch,
		creds:  creds,
		sites:  sites,
		runner: runner,
		logger: logger,
	}
}

// FetchVendor starts a refresh of vendor's site listing.
func (m *ManualFetcher) FetchVendor(ctx context.Context, vendor model.Vendor) error {
	cred, err := m.credential(ctx, vendor)
	if err != nil {
		return err
	}

	return m.runner.TryRun("fetch "+string(vendor), func(ctx context.Context) {
		vf := m.orch.FetchAllSites(ctx, cred)
		m.logger.Info("vendor sites refreshed",
			"vendor", vendor,
			"status", vf.Result.Status,
			"sites", len(vf.Sites),
			"error", vf.Result.Error,
		)
	})
}

// RefreshSite starts a refresh of one stored site's overview and devices.
// Details are fetched instead of the overview when the vendor has no
// overview endpoint.
func (m *ManualFetcher) RefreshSite(ctx context.Context, siteID string) error {
	site, err := m.sites.GetByID(ctx, siteID)
	if err != nil {
		return err
	}
	cred, err := m.credential(ctx, site.Vendor)
	if err != nil {
		return err
	}

	return m.runner.TryRun("refresh "+site.ID, func(ctx context.Context) {
		results := []model.FetchResult{m.orch.FetchSiteOverview(ctx, site.ID, cred)}
		if results[0].Status == model.FetchStatusNotSupported {
			results = append(results, m.orch.FetchSiteDetails(ctx, site.ID, cred))
		}
		results = append(results, m.orch.FetchSiteDevices(ctx, site.ID, cred))

		for _, res := range results {
			m.logger.Info("site resource refreshed",
				"site_id", site.ID,
				"resource", res.Resource,
				"status", res.Status,
				"records", res.Records,
				"error", res.Error,
			)
		}
	})
}

func (m *ManualFetcher) credential(ctx context.Context, vendor model.Vendor) (model.Credential, error) {
	for _, c := range m.creds.Resolve(ctx) {
		if c.Vendor == vendor {
			return c, nil
		}
	}
	return model.Credential{}, fmt.Errorf("%w: %s", ErrNoCredential, vendor)
}
