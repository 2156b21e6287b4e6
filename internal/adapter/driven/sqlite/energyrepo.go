package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EnergyStore = (*EnergyRepo)(nil)

// EnergyRepo is the SQLite implementation of the EnergyStore port interface.
type EnergyRepo struct {
	db *DB
}

// NewEnergyRepo creates a new EnergyRepo backed by the given DB.
func NewEnergyRepo(db *DB) *EnergyRepo {
	return &EnergyRepo{db: db}
}

// UpsertReadings writes a site's readings in one transaction, replacing any
// reading already stored for the same timestamp.
func (r *EnergyRepo) UpsertReadings(ctx context.Context, siteID string, readings []model.EnergyReading) error {
	const query = `
		INSERT INTO energy_readings (site_id, ts, energy_kwh) VALUES (?, ?, ?)
		ON CONFLICT(site_id, ts) DO UPDATE SET energy_kwh = excluded.energy_kwh
	`

	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, reading := range readings {
			if reading.SiteID != siteID {
				return fmt.Errorf("reading for site %s passed with site %s", reading.SiteID, siteID)
			}
			if _, err := tx.ExecContext(ctx, query, siteID, formatTime(reading.Timestamp), reading.EnergyKWh); err != nil {
				return fmt.Errorf("upsert energy reading %s@%s: %w", siteID, reading.Timestamp.Format(time.DateOnly), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("energy readings for site %s: %w", siteID, err)
	}

	return nil
}

// ListBySite returns readings with from <= ts < to in timestamp order.
func (r *EnergyRepo) ListBySite(ctx context.Context, siteID string, from, to time.Time) ([]model.EnergyReading, error) {
	const query = `
		SELECT site_id, ts, energy_kwh
		FROM energy_readings
		WHERE site_id = ? AND ts >= ? AND ts < ?
		ORDER BY ts
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, siteID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("query energy readings for site %s: %w", siteID, err)
	}
	defer rows.Close()

	readings := []model.EnergyReading{}
	for rows.Next() {
		var reading model.EnergyReading
		var ts string
		if err := rows.Scan(&reading.SiteID, &ts, &reading.EnergyKWh); err != nil {
			return nil, fmt.Errorf("scan energy reading: %w", err)
		}
		reading.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse ts: %w", err)
		}
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate energy readings: %w", err)
	}

	return readings, nil
}
