package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeSite(vendor model.Vendor, nativeID string) model.Site {
	lat := 39.7
	installed := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return model.Site{
		ID:                 model.SiteID(vendor, nativeID),
		Vendor:             vendor,
		VendorSiteID:       nativeID,
		Name:               "Site " + nativeID,
		Status:             model.StatusOnline,
		PeakPowerKW:        7.5,
		CurrentPowerKW:     3.2,
		DailyProductionKWh: 21.4,
		LifetimeEnergyMWh:  12.345,
		HealthScore:        model.DefaultHealthScore,
		Address:            "1 Solar Way, Denver, CO",
		Latitude:           &lat,
		Timezone:           "America/Denver",
		InstalledAt:        &installed,
		LastUpdated:        testNow,
	}
}

// addTestSite inserts a site required for foreign key constraints.
func addTestSite(t *testing.T, db *DB, vendor model.Vendor, nativeID string) model.Site {
	t.Helper()
	site := makeSite(vendor, nativeID)
	require.NoError(t, NewSiteRepo(db).Upsert(context.Background(), site))
	return site
}

func TestSiteRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)
	ctx := context.Background()

	site := makeSite(model.VendorSolarEdge, "1001")
	require.NoError(t, repo.Upsert(ctx, site))

	got, err := repo.GetByID(ctx, "se_1001")
	require.NoError(t, err)
	assert.Equal(t, site, got)
	assert.Nil(t, got.Longitude)
}

func TestSiteRepo_UpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)
	ctx := context.Background()

	site := makeSite(model.VendorEnphase, "77")
	require.NoError(t, repo.Upsert(ctx, site))
	require.NoError(t, repo.Upsert(ctx, site))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, site, all[0])
}

func TestSiteRepo_UpsertOverwritesAllFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)
	ctx := context.Background()

	site := makeSite(model.VendorGenerac, "abc")
	require.NoError(t, repo.Upsert(ctx, site))

	site.Name = "Renamed"
	site.Status = model.StatusError
	site.Latitude = nil
	site.CurrentPowerKW = 0
	site.LastUpdated = testNow.Add(time.Minute)
	require.NoError(t, repo.Upsert(ctx, site))

	got, err := repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Nil(t, got.Latitude)
	assert.Zero(t, got.CurrentPowerKW)
	assert.Equal(t, testNow.Add(time.Minute), got.LastUpdated)
}

func TestSiteRepo_LastUpdatedNeverMovesBackward(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)
	ctx := context.Background()

	site := makeSite(model.VendorSolarEdge, "1")
	site.LastUpdated = testNow.Add(500 * time.Millisecond)
	require.NoError(t, repo.Upsert(ctx, site))

	site.LastUpdated = testNow
	require.NoError(t, repo.Upsert(ctx, site))

	got, err := repo.GetByID(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(500*time.Millisecond), got.LastUpdated)
}

func TestSiteRepo_RejectsInvalidStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)

	site := makeSite(model.VendorSolarEdge, "1")
	site.Status = "Active"
	assert.Error(t, repo.Upsert(context.Background(), site))
}

func TestSiteRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewSiteRepo(db).GetByID(context.Background(), "se_404")
	assert.ErrorIs(t, err, driven.ErrSiteNotFound)
}

func TestSiteRepo_ListByVendor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)
	ctx := context.Background()

	addTestSite(t, db, model.VendorSolarEdge, "2")
	addTestSite(t, db, model.VendorSolarEdge, "1")
	addTestSite(t, db, model.VendorEnphase, "1")

	sites, err := repo.ListByVendor(ctx, model.VendorSolarEdge)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "se_1", sites[0].ID)
	assert.Equal(t, "se_2", sites[1].ID)

	none, err := repo.ListByVendor(ctx, model.VendorGenerac)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSiteRepo_SameNativeIDAcrossVendorsDoesNotCollide(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSiteRepo(db)
	ctx := context.Background()

	for _, v := range model.Vendors {
		addTestSite(t, db, v, "12345")
	}

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSiteRepo_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	site := addTestSite(t, db, model.VendorSolarEdge, "1")

	require.NoError(t, NewDeviceRepo(db).UpsertForSite(ctx, site.ID, []model.Device{makeDevice(site, "inv", "A1")}))
	require.NoError(t, NewEnergyRepo(db).UpsertReadings(ctx, site.ID, []model.EnergyReading{
		{SiteID: site.ID, Timestamp: testNow, EnergyKWh: 10},
	}))

	require.NoError(t, NewSiteRepo(db).Delete(ctx, site.ID))

	devices, err := NewDeviceRepo(db).ListBySite(ctx, site.ID)
	require.NoError(t, err)
	assert.Empty(t, devices)

	readings, err := NewEnergyRepo(db).ListBySite(ctx, site.ID, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, readings)

	assert.ErrorIs(t, NewSiteRepo(db).Delete(ctx, site.ID), driven.ErrSiteNotFound)
}
