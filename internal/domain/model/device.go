package model

import "time"

// Device is one piece of equipment belonging to exactly one site.
type Device struct {
	ID             string
	SiteID         string
	Vendor         Vendor
	VendorDeviceID string
	DeviceType     DeviceType
	Model          string
	Manufacturer   string
	SerialNumber   string
	Status         Status
	LastReported   *time.Time
	LastUpdated    time.Time
}

// DeviceID builds the globally unique device ID from a vendor, a vendor
// category tag (e.g. "inv", "micro") and the vendor-native identifier.
func DeviceID(v Vendor, category, nativeID string) string {
	return v.Prefix() + "_" + category + "_" + nativeID
}
