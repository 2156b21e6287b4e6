// Package generac implements the Connector port for the Generac PWRfleet
// API. Credentials arrive as a base64 JSON bundle holding the fleet account
// ID and OAuth tokens.
package generac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

const (
	// DefaultBaseURL is the production fleet API endpoint.
	DefaultBaseURL = "https://generac-api.neur.io"
	// DefaultMinInterval is the minimum spacing Generac requires between calls.
	DefaultMinInterval = 10 * time.Second
	// DefaultDailyQuota bounds a day of 10-second spaced polling.
	DefaultDailyQuota = 144

	pageSize = 100
	vendor   = model.VendorGenerac
)

// Compile-time interface satisfaction check.
var _ driven.Connector = (*Connector)(nil)

// Connector implements driven.Connector for Generac.
type Connector struct {
	client  *vendorhttp.Client
	fleetID string
}

// New decodes the credential bundle and creates a Generac connector. An
// expired token is logged but not rejected; the API answers 401 if it is.
func New(bundle string, httpClient *http.Client, baseURL string, limiter *vendorhttp.Limiter) (*Connector, error) {
	creds, err := ParseCredentials(bundle)
	if err != nil {
		return nil, err
	}
	if exp := creds.ExpiresAt(); exp != nil && time.Now().After(*exp) {
		slog.Warn("generac access token has expired; token refresh is not supported",
			"account_id", creds.AccountID,
			"expired_at", exp.Format(time.RFC3339),
		)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base := vendorhttp.NewTransport()
	timeout := 30 * time.Second
	if httpClient != nil {
		if httpClient.Transport != nil {
			base = httpClient.Transport
		} else {
			base = http.DefaultTransport
		}
		timeout = httpClient.Timeout
	}

	authed := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken:  creds.AccessToken,
				RefreshToken: creds.RefreshToken,
				TokenType:    "Bearer",
			}),
			Base: base,
		},
	}

	client, err := vendorhttp.New(vendor, authed, baseURL, limiter)
	if err != nil {
		return nil, err
	}
	return &Connector{client: client, fleetID: creds.AccountID}, nil
}

// Vendor returns model.VendorGenerac.
func (c *Connector) Vendor() model.Vendor { return vendor }

// Usage reports the day's request count for this account.
func (c *Connector) Usage() model.QuotaUsage { return c.client.Usage() }

// ListSites pages through the fleet's sites, newest installs first.
func (c *Connector) ListSites(ctx context.Context) ([]model.Site, error) {
	sites := []model.Site{}
	seen := 0

	for page := 1; page <= vendorhttp.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, driven.NewError(driven.KindTransient, vendor, "list sites", err)
		}

		params := url.Values{
			"sort":    {"installedDate:DESC"},
			"perPage": {strconv.Itoa(pageSize)},
			"page":    {strconv.Itoa(page)},
		}

		var resp sitesResponse
		if err := c.client.GetJSON(ctx, "list sites", c.fleetPath("/sites/paginated"), params, &resp); err != nil {
			if errors.Is(err, driven.ErrNotSupported) {
				return sites, nil
			}
			return nil, err
		}

		resp.Data.LogSkipped(vendor, "list sites")
		for _, raw := range resp.Data.Items {
			if site, ok := mapSite(raw); ok {
				sites = append(sites, site)
			}
		}

		seen += resp.Data.Len()
		if resp.Data.Len() == 0 || seen >= resp.Total {
			break
		}
	}

	return sites, nil
}

// GetSiteDetails fetches a single fleet site.
func (c *Connector) GetSiteDetails(ctx context.Context, vendorSiteID string) (model.SiteDetails, error) {
	var raw siteJSON
	if err := c.client.GetJSON(ctx, "site details", c.sitePath(vendorSiteID, ""), nil, &raw); err != nil {
		return model.SiteDetails{}, err
	}

	site, ok := mapSite(raw)
	if !ok {
		return model.SiteDetails{}, driven.NewError(driven.KindValidation, vendor, "site details",
			fmt.Errorf("site %s: response has no siteId", vendorSiteID))
	}
	return model.SiteDetails{Site: site}, nil
}

// GetSiteOverview fetches live metrics. currentPower is W; energy values are Wh.
func (c *Connector) GetSiteOverview(ctx context.Context, vendorSiteID string) (model.SiteOverview, error) {
	var resp overviewResponse
	if err := c.client.GetJSON(ctx, "site overview", c.sitePath(vendorSiteID, "/overview"), nil, &resp); err != nil {
		return model.SiteOverview{}, err
	}

	var overview model.SiteOverview
	if resp.CurrentPower != nil {
		overview.CurrentPowerKW = model.Float(model.WattsToKW(*resp.CurrentPower))
	}
	if resp.DailyEnergy != nil {
		overview.DailyEnergyKWh = model.Float(model.WhToKWh(*resp.DailyEnergy))
	}
	if resp.LifetimeEnergy != nil {
		overview.LifetimeEnergyMWh = model.Float(model.WhToMWh(*resp.LifetimeEnergy))
	}
	overview.LastUpdate = vendorhttp.ParseTime(resp.LastUpdated, nil)

	return overview, nil
}

// GetSiteEnergy fetches daily energy between start and end.
func (c *Connector) GetSiteEnergy(ctx context.Context, vendorSiteID string, start, end time.Time) ([]model.EnergyReading, error) {
	params := url.Values{
		"startDate": {start.Format(time.DateOnly)},
		"endDate":   {end.Format(time.DateOnly)},
		"timeUnit":  {"DAY"},
	}

	var resp energyResponse
	if err := c.client.GetJSON(ctx, "site energy", c.sitePath(vendorSiteID, "/energy"), params, &resp); err != nil {
		return nil, err
	}

	siteID := model.SiteID(vendor, vendorSiteID)
	resp.Data.LogSkipped(vendor, "site energy")
	readings := make([]model.EnergyReading, 0, len(resp.Data.Items))
	for _, p := range resp.Data.Items {
		ts := vendorhttp.ParseTime(p.Timestamp, nil)
		if ts == nil || p.Energy == nil {
			slog.Warn("skipping malformed energy sample", "vendor", vendor, "site_id", siteID, "timestamp", p.Timestamp)
			continue
		}
		readings = append(readings, model.EnergyReading{
			SiteID:    siteID,
			Timestamp: *ts,
			EnergyKWh: model.WhToKWh(*p.Energy),
		})
	}
	return readings, nil
}

// GetDevices lists the site's PWRcell equipment.
func (c *Connector) GetDevices(ctx context.Context, vendorSiteID string) ([]model.Device, error) {
	var resp devicesResponse
	if err := c.client.GetJSON(ctx, "site devices", c.sitePath(vendorSiteID, "/devices"), nil, &resp); err != nil {
		return nil, err
	}

	siteID := model.SiteID(vendor, vendorSiteID)
	resp.Devices.LogSkipped(vendor, "site devices")
	devices := make([]model.Device, 0, len(resp.Devices.Items))
	for _, raw := range resp.Devices.Items {
		if d, ok := mapDevice(siteID, raw); ok {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

// RefreshToken is not implemented: the bundle must be replaced out of band.
func (c *Connector) RefreshToken(context.Context) error {
	return driven.NewError(driven.KindNotSupported, vendor, "refresh token",
		errors.New("token refresh is not implemented"))
}

func (c *Connector) fleetPath(suffix string) string {
	return "/fleets/v4/" + url.PathEscape(c.fleetID) + suffix
}

func (c *Connector) sitePath(vendorSiteID, suffix string) string {
	return c.fleetPath("/sites/" + url.PathEscape(vendorSiteID) + suffix)
}
