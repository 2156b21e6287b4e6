package model

import (
	"fmt"
	"strings"
)

// Vendor identifies a solar equipment cloud API provider.
type Vendor string

const (
	VendorSolarEdge Vendor = "SolarEdge"
	VendorEnphase   Vendor = "Enphase"
	VendorGenerac   Vendor = "Generac"
)

// Vendors lists every supported vendor in cycle processing order.
var Vendors = []Vendor{VendorSolarEdge, VendorEnphase, VendorGenerac}

// Prefix returns the short identifier used to namespace vendor-native IDs.
func (v Vendor) Prefix() string {
	switch v {
	case VendorSolarEdge:
		return "se"
	case VendorEnphase:
		return "en"
	case VendorGenerac:
		return "gen"
	default:
		return strings.ToLower(string(v))
	}
}

// ParseVendor resolves a vendor name case-insensitively.
func ParseVendor(s string) (Vendor, error) {
	for _, v := range Vendors {
		if strings.EqualFold(s, string(v)) || strings.EqualFold(s, v.Prefix()) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown vendor %q", s)
}

// Status is the canonical operational state of a site or device.
type Status string

const (
	StatusOnline      Status = "Online"
	StatusOffline     Status = "Offline"
	StatusWarning     Status = "Warning"
	StatusError       Status = "Error"
	StatusMaintenance Status = "Maintenance"
	StatusUnknown     Status = "Unknown"
)

// Valid reports whether s is one of the canonical status values.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusWarning, StatusError, StatusMaintenance, StatusUnknown:
		return true
	}
	return false
}

// StatusTable maps raw vendor status codes to canonical statuses. Lookups are
// case-insensitive and fall back to Default for anything not listed.
type StatusTable struct {
	Codes   map[string]Status
	Default Status
}

// Map returns the canonical status for a raw vendor code. It never returns a
// value outside the canonical set.
func (t StatusTable) Map(raw string) Status {
	if s, ok := t.Codes[strings.ToLower(strings.TrimSpace(raw))]; ok && s.Valid() {
		return s
	}
	if t.Default.Valid() {
		return t.Default
	}
	return StatusUnknown
}

// DeviceType is the shared equipment vocabulary all vendor taxonomies flatten into.
type DeviceType string

const (
	DeviceTypeInverter      DeviceType = "inverter"
	DeviceTypeMicroinverter DeviceType = "microinverter"
	DeviceTypeMeter         DeviceType = "meter"
	DeviceTypeGateway       DeviceType = "gateway"
	DeviceTypeBattery       DeviceType = "battery"
	DeviceTypeOther         DeviceType = "other"
)

// Resource names a fetchable vendor resource tracked by the fetch ledger.
type Resource string

const (
	ResourceSites    Resource = "sites"
	ResourceDetails  Resource = "details"
	ResourceOverview Resource = "overview"
	ResourceDevices  Resource = "devices"
	ResourceEnergy   Resource = "energy"
)

// FetchStatus is the outcome recorded for one fetch attempt.
type FetchStatus string

const (
	FetchStatusSuccess      FetchStatus = "success"
	FetchStatusError        FetchStatus = "error"
	FetchStatusRateLimited  FetchStatus = "rate_limited"
	FetchStatusSkipped      FetchStatus = "skipped"
	FetchStatusNotSupported FetchStatus = "not_supported"
)
