// Package solaredge implements the Connector port for the SolarEdge
// monitoring API. Requests authenticate with an api_key query parameter.
package solaredge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

const (
	// DefaultBaseURL is the production monitoring API endpoint.
	DefaultBaseURL = "https://monitoringapi.solaredge.com"
	// DefaultMinInterval spaces requests; the API allows 3 concurrent calls per key.
	DefaultMinInterval = time.Second
	// DefaultDailyQuota is the per-account daily request allowance.
	DefaultDailyQuota = 300

	pageSize = 100
	vendor   = model.VendorSolarEdge
)

// Compile-time interface satisfaction check.
var _ driven.Connector = (*Connector)(nil)

// Connector implements driven.Connector for SolarEdge.
type Connector struct {
	client *vendorhttp.Client
}

// New creates a SolarEdge connector. limiter is shared across connectors for
// the same account so request spacing holds between cycles.
func New(apiKey string, httpClient *http.Client, baseURL string, limiter *vendorhttp.Limiter) (*Connector, error) {
	if apiKey == "" {
		return nil, driven.NewError(driven.KindAuth, vendor, "authenticate", errors.New("api key is empty"))
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client, err := vendorhttp.New(vendor, httpClient, baseURL, limiter, vendorhttp.WithQuery("api_key", apiKey))
	if err != nil {
		return nil, err
	}
	return &Connector{client: client}, nil
}

// Vendor returns model.VendorSolarEdge.
func (c *Connector) Vendor() model.Vendor { return vendor }

// Usage reports the day's request count for this account.
func (c *Connector) Usage() model.QuotaUsage { return c.client.Usage() }

// ListSites pages through /sites/list until count is reached.
func (c *Connector) ListSites(ctx context.Context) ([]model.Site, error) {
	sites := []model.Site{}

	for page := 0; page < vendorhttp.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, driven.NewError(driven.KindTransient, vendor, "list sites", err)
		}

		params := url.Values{
			"size":       {strconv.Itoa(pageSize)},
			"startIndex": {strconv.Itoa(page * pageSize)},
		}

		var resp sitesListResponse
		if err := c.client.GetJSON(ctx, "list sites", "/sites/list", params, &resp); err != nil {
			if errors.Is(err, driven.ErrNotSupported) {
				return sites, nil
			}
			return nil, err
		}

		resp.Sites.Site.LogSkipped(vendor, "list sites")
		for _, raw := range resp.Sites.Site.Items {
			site, ok := mapSite(raw)
			if !ok {
				continue
			}
			sites = append(sites, site)
		}

		fetched := (page + 1) * pageSize
		if resp.Sites.Site.Len() == 0 || fetched >= resp.Sites.Count {
			break
		}
	}

	return sites, nil
}

// GetSiteDetails fetches /site/{id}/details.
func (c *Connector) GetSiteDetails(ctx context.Context, vendorSiteID string) (model.SiteDetails, error) {
	var resp siteDetailsResponse
	if err := c.client.GetJSON(ctx, "site details", sitePath(vendorSiteID, "details"), nil, &resp); err != nil {
		return model.SiteDetails{}, err
	}

	site, ok := mapSite(resp.Details)
	if !ok {
		return model.SiteDetails{}, driven.NewError(driven.KindValidation, vendor, "site details",
			fmt.Errorf("site %s: response has no id", vendorSiteID))
	}
	return model.SiteDetails{Site: site}, nil
}

// GetSiteOverview fetches /site/{id}/overview and converts W and Wh to the
// canonical units.
func (c *Connector) GetSiteOverview(ctx context.Context, vendorSiteID string) (model.SiteOverview, error) {
	var resp overviewResponse
	if err := c.client.GetJSON(ctx, "site overview", sitePath(vendorSiteID, "overview"), nil, &resp); err != nil {
		return model.SiteOverview{}, err
	}

	o := resp.Overview
	var overview model.SiteOverview
	if o.CurrentPower.Power != nil {
		overview.CurrentPowerKW = model.Float(model.WattsToKW(*o.CurrentPower.Power))
	}
	if o.LastDayData.Energy != nil {
		overview.DailyEnergyKWh = model.Float(model.WhToKWh(*o.LastDayData.Energy))
	}
	if o.LifeTimeData.Energy != nil {
		overview.LifetimeEnergyMWh = model.Float(model.WhToMWh(*o.LifeTimeData.Energy))
	}
	overview.LastUpdate = vendorhttp.ParseTime(o.LastUpdateTime, nil)

	return overview, nil
}

// GetSiteEnergy fetches daily production between start and end.
func (c *Connector) GetSiteEnergy(ctx context.Context, vendorSiteID string, start, end time.Time) ([]model.EnergyReading, error) {
	params := url.Values{
		"timeUnit":  {"DAY"},
		"startDate": {start.Format(time.DateOnly)},
		"endDate":   {end.Format(time.DateOnly)},
	}

	var resp energyResponse
	if err := c.client.GetJSON(ctx, "site energy", sitePath(vendorSiteID, "energy"), params, &resp); err != nil {
		return nil, err
	}

	siteID := model.SiteID(vendor, vendorSiteID)
	resp.Energy.Values.LogSkipped(vendor, "site energy")
	readings := make([]model.EnergyReading, 0, len(resp.Energy.Values.Items))
	for _, v := range resp.Energy.Values.Items {
		ts := vendorhttp.ParseTime(v.Date, nil)
		if ts == nil || v.Value == nil {
			continue
		}
		readings = append(readings, model.EnergyReading{
			SiteID:    siteID,
			Timestamp: *ts,
			EnergyKWh: model.WhToKWh(*v.Value),
		})
	}
	return readings, nil
}

// GetDevices flattens /site/{id}/inventory into canonical devices.
func (c *Connector) GetDevices(ctx context.Context, vendorSiteID string) ([]model.Device, error) {
	var resp inventoryResponse
	if err := c.client.GetJSON(ctx, "site inventory", sitePath(vendorSiteID, "inventory"), nil, &resp); err != nil {
		return nil, err
	}

	siteID := model.SiteID(vendor, vendorSiteID)
	inv := resp.Inventory

	devices := make([]model.Device, 0, len(inv.Inverters.Items)+len(inv.Meters.Items)+len(inv.Batteries.Items)+len(inv.Gateways.Items))
	devices = appendDevices(devices, siteID, "inv", model.DeviceTypeInverter, inv.Inverters)
	devices = appendDevices(devices, siteID, "meter", model.DeviceTypeMeter, inv.Meters)
	devices = appendDevices(devices, siteID, "battery", model.DeviceTypeBattery, inv.Batteries)
	devices = appendDevices(devices, siteID, "gateway", model.DeviceTypeGateway, inv.Gateways)

	return devices, nil
}

// RefreshToken is not applicable to API-key authentication.
func (c *Connector) RefreshToken(context.Context) error {
	return driven.NewError(driven.KindNotSupported, vendor, "refresh token", errors.New("api keys do not expire"))
}

func appendDevices(devices []model.Device, siteID, category string, deviceType model.DeviceType, items vendorhttp.Records[inventoryItem]) []model.Device {
	items.LogSkipped(vendor, "site inventory "+category)
	for _, item := range items.Items {
		serial := item.serial()
		if serial == "" {
			slog.Warn("skipping device without serial number",
				"vendor", vendor, "site_id", siteID, "category", category, "name", item.Name)
			continue
		}
		devices = append(devices, model.Device{
			ID:             model.DeviceID(vendor, category, serial),
			SiteID:         siteID,
			Vendor:         vendor,
			VendorDeviceID: serial,
			DeviceType:     deviceType,
			Model:          item.Model,
			Manufacturer:   item.Manufacturer,
			SerialNumber:   serial,
			Status:         deviceStatuses.Map(item.Status),
		})
	}
	return devices
}

func sitePath(vendorSiteID, resource string) string {
	return "/site/" + url.PathEscape(vendorSiteID) + "/" + resource
}
