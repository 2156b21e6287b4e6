package model

import (
	"log/slog"
	"time"
)

// Credential holds the opaque authentication bundle for one vendor: an API
// key, a bearer token or an encoded structured bundle, depending on vendor.
type Credential struct {
	Vendor    Vendor
	Secret    string
	UpdatedAt time.Time
}

// Masked returns the display form of the secret, revealing at most the last
// six characters.
func (c Credential) Masked() string {
	return MaskSecret(c.Secret)
}

// String never exposes the plaintext secret.
func (c Credential) String() string {
	return string(c.Vendor) + ":" + c.Masked()
}

// LogValue implements slog.LogValuer so credentials are masked in logs.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("vendor", string(c.Vendor)),
		slog.String("secret", c.Masked()),
	)
}

// MaskSecret masks all but the last six characters of s.
func MaskSecret(s string) string {
	if len(s) > 6 {
		return "***********" + s[len(s)-6:]
	}
	return "***"
}
