// Package connectors builds vendor connectors from stored credentials. The
// factory owns one request limiter per vendor so that pacing and quota
// accounting survive connectors being rebuilt every cycle.
package connectors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ericfisherdev/sungazer/internal/adapter/driven/enphase"
	"github.com/ericfisherdev/sungazer/internal/adapter/driven/generac"
	"github.com/ericfisherdev/sungazer/internal/adapter/driven/solaredge"
	"github.com/ericfisherdev/sungazer/internal/adapter/driven/vendorhttp"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ConnectorFactory = (*Factory)(nil)

// VendorConfig holds the endpoint and pacing settings for one vendor.
type VendorConfig struct {
	BaseURL     string
	MinInterval time.Duration
	DailyQuota  int
}

// Config configures a Factory. Zero-valued vendor settings fall back to the
// vendor package defaults; a negative MinInterval disables pacing.
type Config struct {
	SolarEdge     VendorConfig
	Enphase       VendorConfig
	Generac       VendorConfig
	EnphaseAppKey string
	Timeout       time.Duration
}

// DefaultConfig returns the production endpoints and vendor-documented limits.
func DefaultConfig() Config {
	return Config{
		SolarEdge: VendorConfig{
			BaseURL:     solaredge.DefaultBaseURL,
			MinInterval: solaredge.DefaultMinInterval,
			DailyQuota:  solaredge.DefaultDailyQuota,
		},
		Enphase: VendorConfig{
			BaseURL:     enphase.DefaultBaseURL,
			MinInterval: enphase.DefaultMinInterval,
			DailyQuota:  enphase.DefaultDailyQuota,
		},
		Generac: VendorConfig{
			BaseURL:     generac.DefaultBaseURL,
			MinInterval: generac.DefaultMinInterval,
			DailyQuota:  generac.DefaultDailyQuota,
		},
		Timeout: 30 * time.Second,
	}
}

// Factory implements driven.ConnectorFactory.
type Factory struct {
	cfg      Config
	limiters map[model.Vendor]*vendorhttp.Limiter
	// transport is shared by every connector so the response cache persists
	// across cycles.
	transport http.RoundTripper
}

// New creates a Factory with one limiter per vendor.
func New(cfg Config) *Factory {
	def := DefaultConfig()
	cfg.SolarEdge = withDefaults(cfg.SolarEdge, def.SolarEdge)
	cfg.Enphase = withDefaults(cfg.Enphase, def.Enphase)
	cfg.Generac = withDefaults(cfg.Generac, def.Generac)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Factory{
		cfg: cfg,
		limiters: map[model.Vendor]*vendorhttp.Limiter{
			model.VendorSolarEdge: vendorhttp.NewLimiter(model.VendorSolarEdge, cfg.SolarEdge.MinInterval, cfg.SolarEdge.DailyQuota),
			model.VendorEnphase:   vendorhttp.NewLimiter(model.VendorEnphase, cfg.Enphase.MinInterval, cfg.Enphase.DailyQuota),
			model.VendorGenerac:   vendorhttp.NewLimiter(model.VendorGenerac, cfg.Generac.MinInterval, cfg.Generac.DailyQuota),
		},
		transport: vendorhttp.NewTransport(),
	}
}

// New builds the connector matching cred.Vendor. Malformed credentials fail
// here with an auth error rather than on the first request.
func (f *Factory) New(cred model.Credential) (driven.Connector, error) {
	httpClient := &http.Client{Transport: f.transport, Timeout: f.cfg.Timeout}

	var (
		conn driven.Connector
		err  error
	)
	switch cred.Vendor {
	case model.VendorSolarEdge:
		conn, err = solaredge.New(cred.Secret, httpClient, f.cfg.SolarEdge.BaseURL, f.limiters[cred.Vendor])
	case model.VendorEnphase:
		conn, err = enphase.New(cred.Secret, f.cfg.EnphaseAppKey, httpClient, f.cfg.Enphase.BaseURL, f.limiters[cred.Vendor])
	case model.VendorGenerac:
		conn, err = generac.New(cred.Secret, httpClient, f.cfg.Generac.BaseURL, f.limiters[cred.Vendor])
	default:
		return nil, driven.NewError(driven.KindValidation, cred.Vendor, "new connector",
			fmt.Errorf("unknown vendor %q", cred.Vendor))
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Usage reports today's request counts for every vendor, in model.Vendors order.
func (f *Factory) Usage() []model.QuotaUsage {
	usage := make([]model.QuotaUsage, 0, len(model.Vendors))
	for _, v := range model.Vendors {
		usage = append(usage, f.limiters[v].Usage())
	}
	return usage
}

func withDefaults(c, def VendorConfig) VendorConfig {
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.MinInterval == 0 {
		c.MinInterval = def.MinInterval
	}
	if c.DailyQuota == 0 {
		c.DailyQuota = def.DailyQuota
	}
	return c
}
