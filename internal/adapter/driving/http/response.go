package httphandler

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	Time         string `json:"time"`
	CycleRunning bool   `json:"cycle_running"`
}

// FetchStartedResponse is returned when a manual cycle was accepted.
type FetchStartedResponse struct {
	Cycle string `json:"cycle"`
}

// ManualFetchResponse is returned when an on-demand vendor or site fetch was
// accepted.
type ManualFetchResponse struct {
	Status string `json:"status"`
	Vendor string `json:"vendor,omitempty"`
	SiteID string `json:"site_id,omitempty"`
}

// SiteResponse is the JSON representation of a canonical site.
type SiteResponse struct {
	ID                 string   `json:"id"`
	Vendor             string   `json:"vendor"`
	VendorSiteID       string   `json:"vendor_site_id"`
	Name               string   `json:"name"`
	Status             string   `json:"status"`
	PeakPowerKW        float64  `json:"peak_power_kw"`
	CurrentPowerKW     float64  `json:"current_power_kw"`
	DailyProductionKWh float64  `json:"daily_production_kwh"`
	LifetimeEnergyMWh  float64  `json:"lifetime_energy_mwh"`
	HealthScore        float64  `json:"health_score"`
	Address            string   `json:"address"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
	Timezone           string   `json:"timezone,omitempty"`
	InstalledAt        string   `json:"installed_at,omitempty"`
	LastUpdated        string   `json:"last_updated"`
}

// DeviceResponse is the JSON representation of a canonical device.
type DeviceResponse struct {
	ID             string `json:"id"`
	SiteID         string `json:"site_id"`
	Vendor         string `json:"vendor"`
	VendorDeviceID string `json:"vendor_device_id"`
	DeviceType     string `json:"device_type"`
	Model          string `json:"model"`
	Manufacturer   string `json:"manufacturer"`
	SerialNumber   string `json:"serial_number"`
	Status         string `json:"status"`
	LastReported   string `json:"last_reported,omitempty"`
	LastUpdated    string `json:"last_updated"`
}

// EnergyReadingResponse is one sample of a site's energy timeseries.
type EnergyReadingResponse struct {
	Timestamp string  `json:"timestamp"`
	EnergyKWh float64 `json:"energy_kwh"`
}

// FetchRecordResponse is the JSON representation of a fetch ledger entry.
type FetchRecordResponse struct {
	Vendor                string `json:"vendor"`
	SiteID                string `json:"site_id,omitempty"`
	Resource              string `json:"resource"`
	LastStatus            string `json:"last_status"`
	LastSuccessAt         string `json:"last_success_at,omitempty"`
	LastAttemptAt         string `json:"last_attempt_at,omitempty"`
	ErrorMessage          string `json:"error_message,omitempty"`
	CooldownUntil         string `json:"cooldown_until,omitempty"`
	RetryAfterSeconds     int    `json:"retry_after_seconds,omitempty"`
	ConsecutiveRateLimits int    `json:"consecutive_rate_limits"`
}

// FetchResultResponse is the outcome of one fetch within a cycle.
type FetchResultResponse struct {
	Vendor   string `json:"vendor"`
	SiteID   string `json:"site_id,omitempty"`
	Resource string `json:"resource"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Records  int    `json:"records"`
}

// VendorResultResponse summarizes one vendor's pass.
type VendorResultResponse struct {
	Vendor       string `json:"vendor"`
	Status       string `json:"status"`
	SitesFetched int    `json:"sites_fetched"`
	SitesUpdated int    `json:"sites_updated"`
	Error        string `json:"error,omitempty"`
}

// CycleSummaryResponse is the JSON representation of a finished cycle.
type CycleSummaryResponse struct {
	ID           string                 `json:"id"`
	Trigger      string                 `json:"trigger"`
	StartedAt    string                 `json:"started_at"`
	FinishedAt   string                 `json:"finished_at"`
	SitesUpdated int                    `json:"sites_updated"`
	Vendors      []VendorResultResponse `json:"vendors"`
	Items        []FetchResultResponse  `json:"items"`
}

// QuotaResponse reports a vendor's request count for the current UTC day.
type QuotaResponse struct {
	Vendor   string `json:"vendor"`
	Day      string `json:"day"`
	Count    int    `json:"count"`
	Quota    int    `json:"quota"`
	Exceeded bool   `json:"exceeded"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// toSiteResponse converts a domain Site to its JSON response representation.
func toSiteResponse(s model.Site) SiteResponse {
	return SiteResponse{
		ID:                 s.ID,
		Vendor:             string(s.Vendor),
		VendorSiteID:       s.VendorSiteID,
		Name:               s.Name,
		Status:             string(s.Status),
		PeakPowerKW:        s.PeakPowerKW,
		CurrentPowerKW:     s.CurrentPowerKW,
		DailyProductionKWh: s.DailyProductionKWh,
		LifetimeEnergyMWh:  s.LifetimeEnergyMWh,
		HealthScore:        s.HealthScore,
		Address:            s.Address,
		Latitude:           s.Latitude,
		Longitude:          s.Longitude,
		Timezone:           s.Timezone,
		InstalledAt:        formatTimePtr(s.InstalledAt),
		LastUpdated:        formatTime(s.LastUpdated),
	}
}

// toDeviceResponse converts a domain Device to its JSON response representation.
func toDeviceResponse(d model.Device) DeviceResponse {
	return DeviceResponse{
		ID:             d.ID,
		SiteID:         d.SiteID,
		Vendor:         string(d.Vendor),
		VendorDeviceID: d.VendorDeviceID,
		DeviceType:     string(d.DeviceType),
		Model:          d.Model,
		Manufacturer:   d.Manufacturer,
		SerialNumber:   d.SerialNumber,
		Status:         string(d.Status),
		LastReported:   formatTimePtr(d.LastReported),
		LastUpdated:    formatTime(d.LastUpdated),
	}
}

func toFetchRecordResponse(r model.FetchRecord) FetchRecordResponse {
	return FetchRecordResponse{
		Vendor:                string(r.Vendor),
		SiteID:                r.SiteID,
		Resource:              string(r.Resource),
		LastStatus:            string(r.LastStatus),
		LastSuccessAt:         formatTimePtr(r.LastSuccessAt),
		LastAttemptAt:         formatTimePtr(r.LastAttemptAt),
		ErrorMessage:          r.ErrorMessage,
		CooldownUntil:         formatTimePtr(r.CooldownUntil),
		RetryAfterSeconds:     r.RetryAfterSeconds,
		ConsecutiveRateLimits: r.ConsecutiveRateLimits,
	}
}

// ToCycleSummaryResponse converts a cycle summary to its JSON representation.
// The CLI prints the same shape.
func ToCycleSummaryResponse(c model.CycleSummary) CycleSummaryResponse {
	vendors := make([]VendorResultResponse, 0, len(c.Vendors))
	for _, v := range c.Vendors {
		vendors = append(vendors, VendorResultResponse{
			Vendor:       string(v.Vendor),
			Status:       string(v.Status),
			SitesFetched: v.SitesFetched,
			SitesUpdated: v.SitesUpdated,
			Error:        v.Error,
		})
	}

	items := make([]FetchResultResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, FetchResultResponse{
			Vendor:   string(item.Vendor),
			SiteID:   item.SiteID,
			Resource: string(item.Resource),
			Status:   string(item.Status),
			Error:    item.Error,
			Records:  item.Records,
		})
	}

	return CycleSummaryResponse{
		ID:           c.ID,
		Trigger:      string(c.Trigger),
		StartedAt:    formatTime(c.StartedAt),
		FinishedAt:   formatTime(c.FinishedAt),
		SitesUpdated: c.SitesUpdated(),
		Vendors:      vendors,
		Items:        items,
	}
}

func toQuotaResponse(q model.QuotaUsage) QuotaResponse {
	return QuotaResponse{
		Vendor:   string(q.Vendor),
		Day:      q.Day,
		Count:    q.Count,
		Quota:    q.Quota,
		Exceeded: q.Exceeded(),
	}
}
