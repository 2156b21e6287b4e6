package model_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

func TestUnitConversions(t *testing.T) {
	assert.Equal(t, 5.0, model.WattsToKW(5000))
	assert.InDelta(t, 12.345, model.WhToMWh(12_345_000), 1e-9)
	assert.InDelta(t, 42.5, model.WhToKWh(42_500), 1e-9)
}

func TestSiteID_NoCollisionAcrossVendors(t *testing.T) {
	a := model.SiteID(model.VendorSolarEdge, "100")
	b := model.SiteID(model.VendorEnphase, "100")
	c := model.SiteID(model.VendorGenerac, "100")

	assert.Equal(t, "se_100", a)
	assert.Equal(t, "en_100", b)
	assert.Equal(t, "gen_100", c)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, "en_micro_1219", model.DeviceID(model.VendorEnphase, "micro", "1219"))
}

func TestParseVendor(t *testing.T) {
	v, err := model.ParseVendor("solaredge")
	require.NoError(t, err)
	assert.Equal(t, model.VendorSolarEdge, v)

	v, err = model.ParseVendor("gen")
	require.NoError(t, err)
	assert.Equal(t, model.VendorGenerac, v)

	_, err = model.ParseVendor("tesla")
	assert.Error(t, err)
}

func TestStatusTable_Map(t *testing.T) {
	table := model.StatusTable{
		Codes:   map[string]model.Status{"normal": model.StatusOnline, "bogus": model.Status("nope")},
		Default: model.StatusWarning,
	}

	assert.Equal(t, model.StatusOnline, table.Map("NORMAL"))
	assert.Equal(t, model.StatusOnline, table.Map(" normal "))
	assert.Equal(t, model.StatusWarning, table.Map("never-seen"))
	assert.Equal(t, model.StatusWarning, table.Map(""))
	// Invalid table entries never leak out.
	assert.Equal(t, model.StatusWarning, table.Map("bogus"))

	assert.Equal(t, model.StatusUnknown, model.StatusTable{}.Map("x"))
}

func TestSite_MergeListingPreservesMetrics(t *testing.T) {
	stored := model.Site{
		ID:                 "se_1",
		Name:               "Old",
		Status:             model.StatusOnline,
		CurrentPowerKW:     3.2,
		DailyProductionKWh: 11,
		LifetimeEnergyMWh:  4.5,
		HealthScore:        80,
	}

	stored.MergeListing(model.Site{
		ID:           "se_1",
		Vendor:       model.VendorSolarEdge,
		VendorSiteID: "1",
		Name:         "New",
		Status:       model.StatusOffline,
		PeakPowerKW:  7.5,
	})

	assert.Equal(t, "New", stored.Name)
	assert.Equal(t, model.StatusOffline, stored.Status)
	assert.Equal(t, 7.5, stored.PeakPowerKW)
	assert.Equal(t, 3.2, stored.CurrentPowerKW)
	assert.Equal(t, 11.0, stored.DailyProductionKWh)
	assert.Equal(t, 80.0, stored.HealthScore)
}

func TestSite_MergeListingDefaults(t *testing.T) {
	var s model.Site
	s.MergeListing(model.Site{ID: "gen_x", Vendor: model.VendorGenerac, VendorSiteID: "x"})

	assert.Equal(t, model.DefaultHealthScore, s.HealthScore)
	assert.Equal(t, model.StatusUnknown, s.Status)
}

func TestSite_ApplyOverview(t *testing.T) {
	s := model.Site{CurrentPowerKW: 1, DailyProductionKWh: 2, LifetimeEnergyMWh: 3}

	s.ApplyOverview(model.SiteOverview{CurrentPowerKW: model.Float(5)})
	assert.Equal(t, 5.0, s.CurrentPowerKW)
	assert.Equal(t, 2.0, s.DailyProductionKWh)
	assert.Equal(t, 3.0, s.LifetimeEnergyMWh)

	assert.True(t, model.SiteOverview{}.Empty())
}

func TestFetchRecord_Eligible(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)

	rec := model.FetchRecord{CooldownUntil: &until}
	assert.False(t, rec.Eligible(now))
	assert.False(t, rec.Eligible(now.Add(59*time.Second)))
	assert.True(t, rec.Eligible(now.Add(time.Minute)))
	assert.True(t, model.FetchRecord{}.Eligible(now))
}

func TestCredential_Masking(t *testing.T) {
	cred := model.Credential{Vendor: model.VendorSolarEdge, Secret: "ABCDEFGH123456"}

	assert.Equal(t, "***********123456", cred.Masked())
	assert.Equal(t, "***", model.MaskSecret("abc123"))
	assert.NotContains(t, cred.String(), "ABCDEFGH")

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("using credential", "cred", cred)
	assert.NotContains(t, buf.String(), "ABCDEFGH")
	assert.Contains(t, buf.String(), "123456")
}

func TestQuotaUsage_Exceeded(t *testing.T) {
	assert.False(t, model.QuotaUsage{Count: 300, Quota: 300}.Exceeded())
	assert.True(t, model.QuotaUsage{Count: 301, Quota: 300}.Exceeded())
	assert.False(t, model.QuotaUsage{Count: 10}.Exceeded())
}
