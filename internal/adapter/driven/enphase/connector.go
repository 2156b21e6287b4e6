// Package enphase implements the Connector port for the Enphase Monitoring
// API v4. Requests carry an OAuth bearer token and the developer
// application key as the "key" query parameter.
package enphase

import (
	"context"
	"errors"
	"fmt"
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
	// DefaultBaseURL is the production API v4 endpoint.
	DefaultBaseURL = "https://api.enphaseenergy.com/api/v4"
	// DefaultMinInterval keeps requests under the plan's 10 per minute limit.
	DefaultMinInterval = 6 * time.Second
	// DefaultDailyQuota is a conservative daily share of the monthly allowance.
	DefaultDailyQuota = 1000

	pageSize = 100
	vendor   = model.VendorEnphase
)

// Compile-time interface satisfaction check.
var _ driven.Connector = (*Connector)(nil)

// Connector implements driven.Connector for Enphase.
type Connector struct {
	client *vendorhttp.Client
}

// New creates an Enphase connector. The access token is attached as a bearer
// header by an oauth2 transport layered over httpClient's transport.
func New(accessToken, appKey string, httpClient *http.Client, baseURL string, limiter *vendorhttp.Limiter) (*Connector, error) {
	if accessToken == "" {
		return nil, driven.NewError(driven.KindAuth, vendor, "authenticate", errors.New("access token is empty"))
	}
	if appKey == "" {
		return nil, driven.NewError(driven.KindAuth, vendor, "authenticate", errors.New("application key is empty"))
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
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	client, err := vendorhttp.New(vendor, authed, baseURL, limiter, vendorhttp.WithQuery("key", appKey))
	if err != nil {
		return nil, err
	}
	return &Connector{client: client}, nil
}

// Vendor returns model.VendorEnphase.
func (c *Connector) Vendor() model.Vendor { return vendor }

// Usage reports the day's request count for this account.
func (c *Connector) Usage() model.QuotaUsage { return c.client.Usage() }

// ListSites pages through /systems until total is reached or a page is empty.
func (c *Connector) ListSites(ctx context.Context) ([]model.Site, error) {
	sites := []model.Site{}
	seen := 0

	for page := 1; page <= vendorhttp.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, driven.NewError(driven.KindTransient, vendor, "list systems", err)
		}

		params := url.Values{
			"page": {strconv.Itoa(page)},
			"size": {strconv.Itoa(pageSize)},
		}

		var resp systemsResponse
		if err := c.client.GetJSON(ctx, "list systems", "/systems", params, &resp); err != nil {
			if errors.Is(err, driven.ErrNotSupported) {
				return sites, nil
			}
			return nil, err
		}

		resp.Systems.LogSkipped(vendor, "list systems")
		for _, raw := range resp.Systems.Items {
			if site, ok := mapSystem(raw); ok {
				sites = append(sites, site)
			}
		}

		seen += resp.Systems.Len()
		if resp.Systems.Len() == 0 || seen >= resp.Total {
			break
		}
	}

	return sites, nil
}

// GetSiteDetails combines /systems/{id} with /systems/{id}/summary, which is
// where Enphase reports live power and energy.
func (c *Connector) GetSiteDetails(ctx context.Context, vendorSiteID string) (model.SiteDetails, error) {
	var sys systemJSON
	if err := c.client.GetJSON(ctx, "system details", systemPath(vendorSiteID, ""), nil, &sys); err != nil {
		return model.SiteDetails{}, err
	}

	site, ok := mapSystem(sys)
	if !ok {
		return model.SiteDetails{}, driven.NewError(driven.KindValidation, vendor, "system details",
			fmt.Errorf("system %s: response has no system_id", vendorSiteID))
	}

	var summary summaryResponse
	if err := c.client.GetJSON(ctx, "system summary", systemPath(vendorSiteID, "/summary"), nil, &summary); err != nil {
		return model.SiteDetails{}, err
	}

	if summary.SizeW != nil {
		site.PeakPowerKW = model.WattsToKW(*summary.SizeW)
	}
	if summary.Status != "" {
		site.Status = siteStatuses.Map(summary.Status)
	}

	var overview model.SiteOverview
	if summary.CurrentPower != nil {
		overview.CurrentPowerKW = model.Float(model.WattsToKW(*summary.CurrentPower))
	}
	if summary.EnergyToday != nil {
		overview.DailyEnergyKWh = model.Float(model.WhToKWh(*summary.EnergyToday))
	}
	if summary.EnergyLifetime != nil {
		overview.LifetimeEnergyMWh = model.Float(model.WhToMWh(*summary.EnergyLifetime))
	}
	overview.LastUpdate = vendorhttp.EpochTime(summary.LastReportAt)

	return model.SiteDetails{Site: site, Overview: overview}, nil
}

// GetSiteOverview is not offered by Enphase; live metrics come from
// GetSiteDetails instead.
func (c *Connector) GetSiteOverview(context.Context, string) (model.SiteOverview, error) {
	return model.SiteOverview{}, driven.NewError(driven.KindNotSupported, vendor, "site overview",
		errors.New("no overview endpoint"))
}

// GetSiteEnergy reads /energy_lifetime, which returns one Wh value per day
// starting at start_date.
func (c *Connector) GetSiteEnergy(ctx context.Context, vendorSiteID string, start, end time.Time) ([]model.EnergyReading, error) {
	params := url.Values{
		"start_date": {start.Format(time.DateOnly)},
		"end_date":   {end.Format(time.DateOnly)},
	}

	var resp energyLifetimeResponse
	if err := c.client.GetJSON(ctx, "energy lifetime", systemPath(vendorSiteID, "/energy_lifetime"), params, &resp); err != nil {
		return nil, err
	}

	first, err := time.Parse(time.DateOnly, resp.StartDate)
	if err != nil {
		return nil, driven.NewError(driven.KindValidation, vendor, "energy lifetime",
			fmt.Errorf("start_date %q: %w", resp.StartDate, err))
	}

	siteID := model.SiteID(vendor, vendorSiteID)
	readings := make([]model.EnergyReading, 0, len(resp.Production))
	for i, wh := range resp.Production {
		readings = append(readings, model.EnergyReading{
			SiteID:    siteID,
			Timestamp: first.AddDate(0, 0, i),
			EnergyKWh: model.WhToKWh(wh),
		})
	}
	return readings, nil
}

// GetDevices flattens /systems/{id}/devices into canonical devices.
func (c *Connector) GetDevices(ctx context.Context, vendorSiteID string) ([]model.Device, error) {
	var resp devicesResponse
	if err := c.client.GetJSON(ctx, "system devices", systemPath(vendorSiteID, "/devices"), nil, &resp); err != nil {
		return nil, err
	}

	siteID := model.SiteID(vendor, vendorSiteID)
	d := resp.Devices

	var devices []model.Device
	devices = appendDevices(devices, siteID, "micro", model.DeviceTypeMicroinverter, d.Micros)
	devices = appendDevices(devices, siteID, "meter", model.DeviceTypeMeter, d.Meters)
	devices = appendDevices(devices, siteID, "gateway", model.DeviceTypeGateway, d.Gateways)
	devices = appendDevices(devices, siteID, "battery", model.DeviceTypeBattery, d.Encharges)
	devices = appendDevices(devices, siteID, "acb", model.DeviceTypeBattery, d.ACBs)
	if devices == nil {
		devices = []model.Device{}
	}
	return devices, nil
}

// RefreshToken is not implemented: tokens must be renewed out of band.
func (c *Connector) RefreshToken(context.Context) error {
	return driven.NewError(driven.KindNotSupported, vendor, "refresh token",
		errors.New("token refresh is not implemented"))
}

func systemPath(vendorSiteID, suffix string) string {
	return "/systems/" + url.PathEscape(vendorSiteID) + suffix
}
