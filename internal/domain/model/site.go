package model

import "time"

// DefaultHealthScore is assigned to sites that have never been scored.
const DefaultHealthScore = 100.0

// Site is the canonical representation of one physical installation.
// All power values are kW and all energy values are kWh or MWh.
type Site struct {
	ID                 string
	Vendor             Vendor
	VendorSiteID       string
	Name               string
	Status             Status
	PeakPowerKW        float64
	CurrentPowerKW     float64
	DailyProductionKWh float64
	LifetimeEnergyMWh  float64
	HealthScore        float64
	Address            string
	Latitude           *float64
	Longitude          *float64
	Timezone           string
	InstalledAt        *time.Time
	LastUpdated        time.Time
}

// SiteID builds the globally unique site ID for a vendor-native site ID.
func SiteID(v Vendor, nativeID string) string {
	return v.Prefix() + "_" + nativeID
}

// MergeListing copies the fields a site listing is authoritative for onto s,
// leaving metrics gathered by overview calls untouched. Zero values in the
// listing do not clear existing data.
func (s *Site) MergeListing(listed Site) {
	s.ID = listed.ID
	s.Vendor = listed.Vendor
	s.VendorSiteID = listed.VendorSiteID
	if listed.Name != "" {
		s.Name = listed.Name
	}
	if listed.Status.Valid() {
		s.Status = listed.Status
	}
	if listed.PeakPowerKW != 0 {
		s.PeakPowerKW = listed.PeakPowerKW
	}
	if listed.Address != "" {
		s.Address = listed.Address
	}
	if listed.Latitude != nil {
		s.Latitude = listed.Latitude
	}
	if listed.Longitude != nil {
		s.Longitude = listed.Longitude
	}
	if listed.Timezone != "" {
		s.Timezone = listed.Timezone
	}
	if listed.InstalledAt != nil {
		s.InstalledAt = listed.InstalledAt
	}
	if s.HealthScore == 0 {
		s.HealthScore = DefaultHealthScore
	}
	if !s.Status.Valid() {
		s.Status = StatusUnknown
	}
}

// ApplyOverview overwrites the metrics present in o. Absent metrics keep
// their stored values.
func (s *Site) ApplyOverview(o SiteOverview) {
	if o.CurrentPowerKW != nil {
		s.CurrentPowerKW = *o.CurrentPowerKW
	}
	if o.DailyEnergyKWh != nil {
		s.DailyProductionKWh = *o.DailyEnergyKWh
	}
	if o.LifetimeEnergyMWh != nil {
		s.LifetimeEnergyMWh = *o.LifetimeEnergyMWh
	}
}

// SiteOverview holds the partial live metrics of a site. Nil fields were not
// reported by the vendor; the zero value is an empty result.
type SiteOverview struct {
	CurrentPowerKW    *float64
	DailyEnergyKWh    *float64
	LifetimeEnergyMWh *float64
	LastUpdate        *time.Time
}

// Empty reports whether the overview carries no metrics.
func (o SiteOverview) Empty() bool {
	return o.CurrentPowerKW == nil && o.DailyEnergyKWh == nil && o.LifetimeEnergyMWh == nil
}

// SiteDetails is a full site record with whatever live metrics the vendor's
// details call returned.
type SiteDetails struct {
	Site     Site
	Overview SiteOverview
}

// EnergyReading is one production sample of a site's energy timeseries.
type EnergyReading struct {
	SiteID    string
	Timestamp time.Time
	EnergyKWh float64
}
