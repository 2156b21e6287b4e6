package enphase

import (
	"log/slog"
	"strings"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// siteStatuses maps system-level status codes. Enphase treats anything it
// cannot classify as needing attention, so the default is Warning.
var siteStatuses = model.StatusTable{
	Codes: map[string]model.Status{
		"normal":       model.StatusOnline,
		"comm":         model.StatusWarning,
		"micro":        model.StatusWarning,
		"power":        model.StatusWarning,
		"meter_issue":  model.StatusWarning,
		"storage_idle": model.StatusOnline,
		"warning":      model.StatusWarning,
		"error":        model.StatusOffline,
		"no_data":      model.StatusOffline,
		"on_grid":      model.StatusOnline,
		"off_grid":     model.StatusOffline,
		"unknown":      model.StatusWarning,
	},
	Default: model.StatusWarning,
}

// deviceStatuses maps device-level codes. "comm" on a single device means it
// stopped reporting, unlike the system-level code.
var deviceStatuses = model.StatusTable{
	Codes: map[string]model.Status{
		"normal":  model.StatusOnline,
		"comm":    model.StatusOffline,
		"micro":   model.StatusWarning,
		"power":   model.StatusWarning,
		"error":   model.StatusOffline,
		"warning": model.StatusWarning,
		"unknown": model.StatusWarning,
	},
	Default: model.StatusWarning,
}

type systemJSON struct {
	SystemID      vendorhttp.ID `json:"system_id"`
	Name          string        `json:"name"`
	PublicName    string        `json:"public_name"`
	Timezone      string        `json:"timezone"`
	Status        string        `json:"status"`
	SystemSize    *float64      `json:"system_size"`
	OperationalAt int64         `json:"operational_at"`
	Address       struct {
		City       string `json:"city"`
		State      string `json:"state"`
		Country    string `json:"country"`
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

type systemsResponse struct {
	Total   int                            `json:"total"`
	Systems vendorhttp.Records[systemJSON] `json:"systems"`
}

type summaryResponse struct {
	CurrentPower   *float64 `json:"current_power"`
	EnergyToday    *float64 `json:"energy_today"`
	EnergyLifetime *float64 `json:"energy_lifetime"`
	SizeW          *float64 `json:"size_w"`
	Status         string   `json:"status"`
	LastReportAt   int64    `json:"last_report_at"`
}

type energyLifetimeResponse struct {
	StartDate  string    `json:"start_date"`
	Production []float64 `json:"production"`
}

type deviceJSON struct {
	ID           vendorhttp.ID `json:"id"`
	SerialNumber string        `json:"serial_number"`
	Model        string        `json:"model"`
	SKU          string        `json:"sku"`
	Status       string        `json:"status"`
	LastReportAt int64         `json:"last_report_at"`
}

type devicesResponse struct {
	Devices struct {
		Micros    vendorhttp.Records[deviceJSON] `json:"micros"`
		Meters    vendorhttp.Records[deviceJSON] `json:"meters"`
		Gateways  vendorhttp.Records[deviceJSON] `json:"gateways"`
		Encharges vendorhttp.Records[deviceJSON] `json:"encharges"`
		ACBs      vendorhttp.Records[deviceJSON] `json:"acbs"`
	} `json:"devices"`
}

// mapSystem converts a raw system. system_size is reported in W.
func mapSystem(raw systemJSON) (model.Site, bool) {
	nativeID := raw.SystemID.String()
	if nativeID == "" {
		slog.Warn("skipping system without system_id", "vendor", vendor, "name", raw.Name)
		return model.Site{}, false
	}

	name := raw.Name
	if name == "" {
		name = raw.PublicName
	}

	site := model.Site{
		ID:           model.SiteID(vendor, nativeID),
		Vendor:       vendor,
		VendorSiteID: nativeID,
		Name:         name,
		Status:       siteStatuses.Map(raw.Status),
		HealthScore:  model.DefaultHealthScore,
		Address:      joinAddress(raw.Address.City, raw.Address.State, raw.Address.PostalCode, raw.Address.Country),
		Timezone:     raw.Timezone,
		InstalledAt:  vendorhttp.EpochTime(raw.OperationalAt),
	}
	if raw.SystemSize != nil {
		site.PeakPowerKW = model.WattsToKW(*raw.SystemSize)
	}
	return site, true
}

func appendDevices(devices []model.Device, siteID, category string, deviceType model.DeviceType, items vendorhttp.Records[deviceJSON]) []model.Device {
	items.LogSkipped(vendor, "system devices "+category)
	for _, item := range items.Items {
		serial := item.SerialNumber
		if serial == "" {
			serial = item.ID.String()
		}
		if serial == "" {
			slog.Warn("skipping device without serial number", "vendor", vendor, "site_id", siteID, "category", category)
			continue
		}
		modelName := item.Model
		if modelName == "" {
			modelName = item.SKU
		}
		devices = append(devices, model.Device{
			ID:             model.DeviceID(vendor, category, serial),
			SiteID:         siteID,
			Vendor:         vendor,
			VendorDeviceID: serial,
			DeviceType:     deviceType,
			Model:          modelName,
			Manufacturer:   "Enphase",
			SerialNumber:   item.SerialNumber,
			Status:         deviceStatuses.Map(item.Status),
			LastReported:   vendorhttp.EpochTime(item.LastReportAt),
		})
	}
	return devices
}

func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
