package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeviceStore = (*DeviceRepo)(nil)

// DeviceRepo is the SQLite implementation of the DeviceStore port interface.
type DeviceRepo struct {
	db *DB
}

// NewDeviceRepo creates a new DeviceRepo backed by the given DB.
func NewDeviceRepo(db *DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// UpsertForSite upserts all devices of one site within a single transaction.
// Either every device is written or none is.
func (r *DeviceRepo) UpsertForSite(ctx context.Context, siteID string, devices []model.Device) error {
	const query = `
		INSERT INTO devices (
			id, site_id, vendor, vendor_device_id, device_type, model, manufacturer,
			serial_number, status, last_reported, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			site_id = excluded.site_id,
			vendor = excluded.vendor,
			vendor_device_id = excluded.vendor_device_id,
			device_type = excluded.device_type,
			model = excluded.model,
			manufacturer = excluded.manufacturer,
			serial_number = excluded.serial_number,
			status = excluded.status,
			last_reported = excluded.last_reported,
			last_updated = MAX(devices.last_updated, excluded.last_updated)
	`

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare device upsert: %w", err)
		}
		defer stmt.Close()

		for _, d := range devices {
			if d.SiteID != siteID {
				return fmt.Errorf("device %s belongs to site %s, not %s", d.ID, d.SiteID, siteID)
			}
			if !d.Status.Valid() {
				return fmt.Errorf("device %s: invalid status %q", d.ID, d.Status)
			}

			_, err := stmt.ExecContext(ctx,
				d.ID, d.SiteID, string(d.Vendor), d.VendorDeviceID, string(d.DeviceType),
				d.Model, d.Manufacturer, d.SerialNumber, string(d.Status),
				formatNullTime(d.LastReported), formatTime(d.LastUpdated),
			)
			if err != nil {
				return fmt.Errorf("upsert device %s: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("devices for site %s: %w", siteID, err)
	}

	return nil
}

// ListBySite returns a site's devices ordered by ID.
func (r *DeviceRepo) ListBySite(ctx context.Context, siteID string) ([]model.Device, error) {
	const query = `
		SELECT id, site_id, vendor, vendor_device_id, device_type, model, manufacturer,
		       serial_number, status, last_reported, last_updated
		FROM devices
		WHERE site_id = ?
		ORDER BY id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("query devices for site %s: %w", siteID, err)
	}
	defer rows.Close()

	devices := []model.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}

	return devices, nil
}

func scanDevice(s scanner) (model.Device, error) {
	var d model.Device
	var vendor, deviceType, status, lastUpdated string
	var lastReported sql.NullString

	err := s.Scan(
		&d.ID, &d.SiteID, &vendor, &d.VendorDeviceID, &deviceType, &d.Model,
		&d.Manufacturer, &d.SerialNumber, &status, &lastReported, &lastUpdated,
	)
	if err != nil {
		return model.Device{}, err
	}

	d.Vendor = model.Vendor(vendor)
	d.DeviceType = model.DeviceType(deviceType)
	d.Status = model.Status(status)

	d.LastReported, err = parseNullTime(lastReported)
	if err != nil {
		return model.Device{}, fmt.Errorf("parse last_reported: %w", err)
	}

	d.LastUpdated, err = parseTime(lastUpdated)
	if err != nil {
		return model.Device{}, fmt.Errorf("parse last_updated: %w", err)
	}

	return d, nil
}
