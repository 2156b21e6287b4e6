package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SiteStore = (*SiteRepo)(nil)

// SiteRepo is the SQLite implementation of the SiteStore port interface.
type SiteRepo struct {
	db *DB
}

// NewSiteRepo creates a new SiteRepo backed by the given DB.
func NewSiteRepo(db *DB) *SiteRepo {
	return &SiteRepo{db: db}
}

const siteColumns = `
	id, vendor, vendor_site_id, name, status, peak_power_kw, current_power_kw,
	daily_production_kwh, lifetime_energy_mwh, health_score, address, latitude,
	longitude, timezone, installed_at, last_updated`

// Upsert inserts a site or overwrites every column of the existing row.
// last_updated only moves forward.
func (r *SiteRepo) Upsert(ctx context.Context, site model.Site) error {
	const query = `
		INSERT INTO sites (` + siteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vendor = excluded.vendor,
			vendor_site_id = excluded.vendor_site_id,
			name = excluded.name,
			status = excluded.status,
			peak_power_kw = excluded.peak_power_kw,
			current_power_kw = excluded.current_power_kw,
			daily_production_kwh = excluded.daily_production_kwh,
			lifetime_energy_mwh = excluded.lifetime_energy_mwh,
			health_score = excluded.health_score,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone = excluded.timezone,
			installed_at = excluded.installed_at,
			last_updated = MAX(sites.last_updated, excluded.last_updated)
	`

	if !site.Status.Valid() {
		return fmt.Errorf("upsert site %s: invalid status %q", site.ID, site.Status)
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		site.ID, string(site.Vendor), site.VendorSiteID, site.Name, string(site.Status),
		site.PeakPowerKW, site.CurrentPowerKW, site.DailyProductionKWh, site.LifetimeEnergyMWh,
		site.HealthScore, site.Address, nullFloat(site.Latitude), nullFloat(site.Longitude),
		site.Timezone, formatNullTime(site.InstalledAt), formatTime(site.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("upsert site %s: %w", site.ID, err)
	}

	return nil
}

// GetByID retrieves a single site. Returns driven.ErrSiteNotFound if absent.
func (r *SiteRepo) GetByID(ctx context.Context, id string) (model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = ?`

	site, err := scanSite(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Site{}, driven.ErrSiteNotFound
	}
	if err != nil {
		return model.Site{}, fmt.Errorf("get site %s: %w", id, err)
	}

	return site, nil
}

// ListByVendor returns one vendor's sites ordered by ID.
func (r *SiteRepo) ListByVendor(ctx context.Context, vendor model.Vendor) ([]model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE vendor = ? ORDER BY id`
	return r.querySites(ctx, query, string(vendor))
}

// ListAll returns every site ordered by ID.
func (r *SiteRepo) ListAll(ctx context.Context) ([]model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY id`
	return r.querySites(ctx, query)
}

// Delete removes a site. Devices and energy readings go with it.
func (r *SiteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete site %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrSiteNotFound
	}

	return nil
}

func (r *SiteRepo) querySites(ctx context.Context, query string, args ...any) ([]model.Site, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	sites := []model.Site{}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}

	return sites, nil
}

func scanSite(s scanner) (model.Site, error) {
	var site model.Site
	var vendor, status, lastUpdated string
	var lat, lng sql.NullFloat64
	var installedAt sql.NullString

	err := s.Scan(
		&site.ID, &vendor, &site.VendorSiteID, &site.Name, &status,
		&site.PeakPowerKW, &site.CurrentPowerKW, &site.DailyProductionKWh, &site.LifetimeEnergyMWh,
		&site.HealthScore, &site.Address, &lat, &lng, &site.Timezone, &installedAt, &lastUpdated,
	)
	if err != nil {
		return model.Site{}, err
	}

	site.Vendor = model.Vendor(vendor)
	site.Status = model.Status(status)
	site.Latitude = floatPtr(lat)
	site.Longitude = floatPtr(lng)

	site.InstalledAt, err = parseNullTime(installedAt)
	if err != nil {
		return model.Site{}, fmt.Errorf("parse installed_at: %w", err)
	}

	site.LastUpdated, err = parseTime(lastUpdated)
	if err != nil {
		return model.Site{}, fmt.Errorf("parse last_updated: %w", err)
	}

	return site, nil
}
