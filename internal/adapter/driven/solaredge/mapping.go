package solaredge

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// siteStatuses maps site status values. Unrecognized values are Unknown.
var siteStatuses = model.StatusTable{
	Codes: map[string]model.Status{
		"active":               model.StatusOnline,
		"pending":              model.StatusOffline,
		"pendingcommunication": model.StatusOffline,
		"disabled":             model.StatusMaintenance,
	},
	Default: model.StatusUnknown,
}

// deviceStatuses maps inverter operation modes. The inventory endpoint does
// not always report a mode, in which case the device is Unknown.
var deviceStatuses = model.StatusTable{
	Codes: map[string]model.Status{
		"mppt":                  model.StatusOnline,
		"throttled":             model.StatusOnline,
		"sleeping":              model.StatusOnline,
		"starting":              model.StatusOnline,
		"off":                   model.StatusOffline,
		"shutting_down":         model.StatusOffline,
		"standby":               model.StatusWarning,
		"fault":                 model.StatusError,
		"locked_stdby":          model.StatusMaintenance,
		"locked_pre_commission": model.StatusMaintenance,
		"locked_comm_timeout":   model.StatusOffline,
		"locked_inv_trip":       model.StatusError,
	},
	Default: model.StatusUnknown,
}

type location struct {
	Country  string `json:"country"`
	State    string `json:"state"`
	City     string `json:"city"`
	Address  string `json:"address"`
	Address2 string `json:"address2"`
	Zip      string `json:"zip"`
	TimeZone string `json:"timeZone"`
}

type siteJSON struct {
	ID               vendorhttp.ID `json:"id"`
	Name             string        `json:"name"`
	Status           string        `json:"status"`
	PeakPower        float64       `json:"peakPower"`
	InstallationDate string        `json:"installationDate"`
	Location         location      `json:"location"`
}

type sitesListResponse struct {
	Sites struct {
		Count int                          `json:"count"`
		Site  vendorhttp.Records[siteJSON] `json:"site"`
	} `json:"sites"`
}

type siteDetailsResponse struct {
	Details siteJSON `json:"details"`
}

type energyValue struct {
	Energy *float64 `json:"energy"`
}

type overviewResponse struct {
	Overview struct {
		LastUpdateTime string      `json:"lastUpdateTime"`
		LifeTimeData   energyValue `json:"lifeTimeData"`
		LastDayData    energyValue `json:"lastDayData"`
		CurrentPower   struct {
			Power *float64 `json:"power"`
		} `json:"currentPower"`
	} `json:"overview"`
}

type energyResponse struct {
	Energy struct {
		TimeUnit string                          `json:"timeUnit"`
		Unit     string                          `json:"unit"`
		Values   vendorhttp.Records[energyPoint] `json:"values"`
	} `json:"energy"`
}

type energyPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

type inventoryItem struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SN           string `json:"SN"`
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
}

// serial prefers the inverter-style SN field; meters and gateways use
// serialNumber.
func (i inventoryItem) serial() string {
	if i.SN != "" {
		return i.SN
	}
	return i.SerialNumber
}

type inventoryResponse struct {
	Inventory struct {
		Inverters vendorhttp.Records[inventoryItem] `json:"inverters"`
		Meters    vendorhttp.Records[inventoryItem] `json:"meters"`
		Batteries vendorhttp.Records[inventoryItem] `json:"batteries"`
		Gateways  vendorhttp.Records[inventoryItem] `json:"gateways"`
	} `json:"Inventory"`
}

// mapSite converts a raw site. peakPower is reported in W. It reports false
// for records without an id, which are skipped.
func mapSite(raw siteJSON) (model.Site, bool) {
	nativeID := raw.ID.String()
	if nativeID == "" {
		slog.Warn("skipping site without id", "vendor", vendor, "name", raw.Name)
		return model.Site{}, false
	}

	loc := time.UTC
	if raw.Location.TimeZone != "" {
		if l, err := time.LoadLocation(raw.Location.TimeZone); err == nil {
			loc = l
		}
	}

	return model.Site{
		ID:           model.SiteID(vendor, nativeID),
		Vendor:       vendor,
		VendorSiteID: nativeID,
		Name:         raw.Name,
		Status:       siteStatuses.Map(raw.Status),
		PeakPowerKW:  model.WattsToKW(raw.PeakPower),
		HealthScore:  model.DefaultHealthScore,
		Address:      joinAddress(raw.Location),
		Timezone:     raw.Location.TimeZone,
		InstalledAt:  vendorhttp.ParseTime(raw.InstallationDate, loc),
	}, true
}

func joinAddress(l location) string {
	parts := make([]string, 0, 6)
	for _, p := range []string{l.Address, l.Address2, l.City, l.State, l.Zip, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
