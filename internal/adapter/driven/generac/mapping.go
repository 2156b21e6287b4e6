package generac

import (
	"log/slog"
	"strings"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// siteStatuses maps site status values; unrecognized and empty values are Unknown.
var siteStatuses = model.StatusTable{
	Codes: map[string]model.Status{
		"online":   model.StatusOnline,
		"active":   model.StatusOnline,
		"normal":   model.StatusOnline,
		"offline":  model.StatusOffline,
		"inactive": model.StatusOffline,
		"warning":  model.StatusWarning,
		"degraded": model.StatusWarning,
		"error":    model.StatusError,
		"fault":    model.StatusError,
	},
	Default: model.StatusUnknown,
}

// deviceStatuses maps device states, which add communication and standby
// states not reported at site level.
var deviceStatuses = model.StatusTable{
	Codes: map[string]model.Status{
		"online":            model.StatusOnline,
		"active":            model.StatusOnline,
		"normal":            model.StatusOnline,
		"running":           model.StatusOnline,
		"offline":           model.StatusOffline,
		"inactive":          model.StatusOffline,
		"disconnected":      model.StatusOffline,
		"not_communicating": model.StatusOffline,
		"standby":           model.StatusWarning,
		"warning":           model.StatusWarning,
		"degraded":          model.StatusWarning,
		"error":             model.StatusError,
		"fault":             model.StatusError,
		"maintenance":       model.StatusMaintenance,
		"service":           model.StatusMaintenance,
	},
	Default: model.StatusUnknown,
}

var deviceTypes = map[string]model.DeviceType{
	"inverter":      model.DeviceTypeInverter,
	"microinverter": model.DeviceTypeMicroinverter,
	"battery":       model.DeviceTypeBattery,
	"meter":         model.DeviceTypeMeter,
	"rgm":           model.DeviceTypeMeter,
	"beacon":        model.DeviceTypeGateway,
	"gateway":       model.DeviceTypeGateway,
}

type siteJSON struct {
	SiteID        vendorhttp.ID `json:"siteId"`
	SiteName      string        `json:"siteName"`
	Status        string        `json:"status"`
	InstalledPV   *float64      `json:"installedPV"`
	InstalledDate string        `json:"installedDate"`
	Timezone      string        `json:"timezone"`
	SiteAddress   struct {
		StreetAddress string   `json:"streetAddress"`
		City          string   `json:"city"`
		State         string   `json:"state"`
		Zip           string   `json:"zip"`
		Country       string   `json:"country"`
		Latitude      *float64 `json:"latitude"`
		Longitude     *float64 `json:"longitude"`
	} `json:"siteAddress"`
}

type sitesResponse struct {
	Data  vendorhttp.Records[siteJSON] `json:"data"`
	Total int                          `json:"total"`
}

type overviewResponse struct {
	CurrentPower   *float64 `json:"currentPower"`
	DailyEnergy    *float64 `json:"dailyEnergy"`
	LifetimeEnergy *float64 `json:"lifetimeEnergy"`
	LastUpdated    string   `json:"lastUpdated"`
}

type energySample struct {
	Timestamp string   `json:"timestamp"`
	Energy    *float64 `json:"energy"`
}

type energyResponse struct {
	Data vendorhttp.Records[energySample] `json:"data"`
}

type deviceJSON struct {
	ID           vendorhttp.ID `json:"id"`
	Type         string        `json:"type"`
	Model        string        `json:"model"`
	SerialNumber string        `json:"serialNumber"`
	Status       string        `json:"status"`
	LastHeard    string        `json:"lastHeard"`
}

type devicesResponse struct {
	Devices vendorhttp.Records[deviceJSON] `json:"devices"`
}

// mapSite converts a raw fleet site. installedPV is already reported in kW
// and is stored as-is.
func mapSite(raw siteJSON) (model.Site, bool) {
	nativeID := raw.SiteID.String()
	if nativeID == "" {
		slog.Warn("skipping site without siteId", "vendor", vendor, "name", raw.SiteName)
		return model.Site{}, false
	}

	addr := raw.SiteAddress
	site := model.Site{
		ID:           model.SiteID(vendor, nativeID),
		Vendor:       vendor,
		VendorSiteID: nativeID,
		Name:         raw.SiteName,
		Status:       siteStatuses.Map(raw.Status),
		HealthScore:  model.DefaultHealthScore,
		Address:      joinAddress(addr.StreetAddress, addr.City, addr.State, addr.Zip, addr.Country),
		Latitude:     addr.Latitude,
		Longitude:    addr.Longitude,
		Timezone:     raw.Timezone,
		InstalledAt:  vendorhttp.ParseTime(raw.InstalledDate, nil),
	}
	if raw.InstalledPV != nil {
		site.PeakPowerKW = *raw.InstalledPV
	}
	return site, true
}

func mapDevice(siteID string, raw deviceJSON) (model.Device, bool) {
	nativeID := raw.ID.String()
	if nativeID == "" {
		nativeID = raw.SerialNumber
	}
	if nativeID == "" {
		slog.Warn("skipping device without id", "vendor", vendor, "site_id", siteID, "type", raw.Type)
		return model.Device{}, false
	}

	deviceType, ok := deviceTypes[strings.ToLower(strings.TrimSpace(raw.Type))]
	if !ok {
		deviceType = model.DeviceTypeOther
	}

	return model.Device{
		ID:             model.DeviceID(vendor, "device", nativeID),
		SiteID:         siteID,
		Vendor:         vendor,
		VendorDeviceID: nativeID,
		DeviceType:     deviceType,
		Model:          raw.Model,
		Manufacturer:   "Generac",
		SerialNumber:   raw.SerialNumber,
		Status:         deviceStatuses.Map(raw.Status),
		LastReported:   vendorhttp.ParseTime(raw.LastHeard, nil),
	}, true
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
