package model

// WattsToKW converts vendor-native watts to kilowatts.
func WattsToKW(w float64) float64 {
	return w / 1_000
}

// WhToKWh converts vendor-native watt-hours to kilowatt-hours.
func WhToKWh(wh float64) float64 {
	return wh / 1_000
}

// WhToMWh converts vendor-native watt-hours to megawatt-hours.
func WhToMWh(wh float64) float64 {
	return wh / 1_000_000
}

// Float returns a pointer to f, for populating optional metrics.
func Float(f float64) *float64 {
	return &f
}
