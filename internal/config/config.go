// Package config loads application configuration from environment variables
// and an optional config file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// EnvPrefix is prepended to every key when read from the environment, e.g.
// poll_interval is read from SUNGAZER_POLL_INTERVAL.
const EnvPrefix = "SUNGAZER"

// VendorSettings overrides one vendor's endpoint and pacing. Zero values keep
// the connector defaults.
type VendorSettings struct {
	BaseURL     string
	MinInterval time.Duration
	DailyQuota  int
}

// Config holds the validated application configuration.
type Config struct {
	ListenAddr         string
	DBPath             string
	PollInterval       time.Duration
	MaxDetailSites     int
	DefaultCooldown    time.Duration
	EnergyLookbackDays int
	RequestTimeout     time.Duration

	// EncryptionKey is the 32-byte AES-256 key for stored credentials. Nil
	// disables the credential store.
	EncryptionKey []byte

	// Credentials are environment fallbacks, used for vendors with no stored
	// credential.
	Credentials   map[model.Vendor]string
	EnphaseAppKey string

	Vendors map[model.Vendor]VendorSettings

	LogLevel  slog.Level
	LogFormat string
}

// HasEncryptionKey reports whether the credential store can be used.
func (c *Config) HasEncryptionKey() bool {
	return len(c.EncryptionKey) > 0
}

var credentialKeys = map[model.Vendor]string{
	model.VendorSolarEdge: "solaredge_api_key",
	model.VendorEnphase:   "enphase_access_token",
	model.VendorGenerac:   "generac_credentials",
}

// SetDefaults registers every key with its default so that AutomaticEnv can
// resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("db_path", "sungazer.db")
	v.SetDefault("poll_interval", "15m")
	v.SetDefault("max_detail_sites", 5)
	v.SetDefault("default_cooldown", "15m")
	v.SetDefault("energy_lookback_days", 0)
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("encryption_key", "")
	v.SetDefault("enphase_app_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	for _, key := range credentialKeys {
		v.SetDefault(key, "")
	}
	for _, vendor := range model.Vendors {
		prefix := vendorKey(vendor)
		v.SetDefault(prefix+"_base_url", "")
		v.SetDefault(prefix+"_min_interval", "")
		v.SetDefault(prefix+"_daily_quota", 0)
	}
}

// Load reads configuration into a validated Config. If v has a config file
// set it is read first; environment variables override file values.
// A nil v reads the environment only.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{
		ListenAddr:    v.GetString("listen_addr"),
		DBPath:        v.GetString("db_path"),
		EnphaseAppKey: v.GetString("enphase_app_key"),
		LogFormat:     strings.ToLower(v.GetString("log_format")),
		Credentials:   map[model.Vendor]string{},
		Vendors:       map[model.Vendor]VendorSettings{},
	}

	var err error
	if cfg.PollInterval, err = positiveDuration(v, "poll_interval"); err != nil {
		return nil, err
	}
	if cfg.DefaultCooldown, err = positiveDuration(v, "default_cooldown"); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = positiveDuration(v, "request_timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxDetailSites, err = intValue(v, "max_detail_sites"); err != nil {
		return nil, err
	}
	if cfg.MaxDetailSites < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", envName("max_detail_sites"), cfg.MaxDetailSites)
	}
	if cfg.EnergyLookbackDays, err = intValue(v, "energy_lookback_days"); err != nil {
		return nil, err
	}
	if cfg.EnergyLookbackDays < 0 {
		return nil, fmt.Errorf("%s must not be negative, got %d", envName("energy_lookback_days"), cfg.EnergyLookbackDays)
	}

	if cfg.EncryptionKey, err = parseEncryptionKey(v.GetString("encryption_key")); err != nil {
		return nil, err
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("%s has invalid level %q: %w", envName("log_level"), v.GetString("log_level"), err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("%s must be text or json, got %q", envName("log_format"), cfg.LogFormat)
	}

	for vendor, key := range credentialKeys {
		if secret := strings.TrimSpace(v.GetString(key)); secret != "" {
			cfg.Credentials[vendor] = secret
		}
	}

	for _, vendor := range model.Vendors {
		s, err := vendorSettings(v, vendor)
		if err != nil {
			return nil, err
		}
		cfg.Vendors[vendor] = s
	}

	return cfg, nil
}

func vendorSettings(v *viper.Viper, vendor model.Vendor) (VendorSettings, error) {
	prefix := vendorKey(vendor)
	s := VendorSettings{BaseURL: strings.TrimRight(v.GetString(prefix+"_base_url"), "/")}

	if raw := v.GetString(prefix + "_min_interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return VendorSettings{}, fmt.Errorf("%s has invalid duration %q: %w", envName(prefix+"_min_interval"), raw, err)
		}
		s.MinInterval = d
	}

	quota, err := intValue(v, prefix+"_daily_quota")
	if err != nil {
		return VendorSettings{}, err
	}
	if quota < 0 {
		return VendorSettings{}, fmt.Errorf("%s must not be negative, got %d", envName(prefix+"_daily_quota"), quota)
	}
	s.DailyQuota = quota

	return s, nil
}

func parseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex encoded: %w", envName("encryption_key"), err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", envName("encryption_key"), len(key))
	}
	return key, nil
}

func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", envName(key), raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", envName(key), d)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", envName(key), raw, errors.Unwrap(err))
	}
	return n, nil
}

func vendorKey(v model.Vendor) string {
	return strings.ToLower(string(v))
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}
