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
var _ driven.FetchLedgerStore = (*LedgerRepo)(nil)

// LedgerRepo is the SQLite implementation of the FetchLedgerStore port interface.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new LedgerRepo backed by the given DB.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

const ledgerColumns = `
	vendor, site_id, resource, last_success_at, last_attempt_at, last_status,
	error_message, cooldown_until, retry_after_seconds, consecutive_rate_limits`

// Get returns the record for key, or nil, nil if the key was never attempted.
func (r *LedgerRepo) Get(ctx context.Context, key model.FetchKey) (*model.FetchRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM fetch_ledger WHERE vendor = ? AND site_id = ? AND resource = ?`

	rec, err := scanLedgerRecord(r.db.Reader.QueryRowContext(ctx, query,
		string(key.Vendor), key.SiteID, string(key.Resource)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger record %s/%s/%s: %w", key.Vendor, key.SiteID, key.Resource, err)
	}

	return &rec, nil
}

// Upsert writes the full record for its key.
func (r *LedgerRepo) Upsert(ctx context.Context, rec model.FetchRecord) error {
	const query = `
		INSERT INTO fetch_ledger (` + ledgerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vendor, site_id, resource) DO UPDATE SET
			last_success_at = excluded.last_success_at,
			last_attempt_at = excluded.last_attempt_at,
			last_status = excluded.last_status,
			error_message = excluded.error_message,
			cooldown_until = excluded.cooldown_until,
			retry_after_seconds = excluded.retry_after_seconds,
			consecutive_rate_limits = excluded.consecutive_rate_limits
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		string(rec.Vendor), rec.SiteID, string(rec.Resource),
		formatNullTime(rec.LastSuccessAt), formatNullTime(rec.LastAttemptAt),
		string(rec.LastStatus), rec.ErrorMessage, formatNullTime(rec.CooldownUntil),
		rec.RetryAfterSeconds, rec.ConsecutiveRateLimits,
	)
	if err != nil {
		return fmt.Errorf("upsert ledger record %s/%s/%s: %w", rec.Vendor, rec.SiteID, rec.Resource, err)
	}

	return nil
}

// List returns ledger records ordered by key, optionally limited to one vendor.
func (r *LedgerRepo) List(ctx context.Context, vendor model.Vendor) ([]model.FetchRecord, error) {
	query := `SELECT ` + ledgerColumns + ` FROM fetch_ledger`
	var args []any
	if vendor != "" {
		query += ` WHERE vendor = ?`
		args = append(args, string(vendor))
	}
	query += ` ORDER BY vendor, site_id, resource`

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fetch ledger: %w", err)
	}
	defer rows.Close()

	records := []model.FetchRecord{}
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch ledger: %w", err)
	}

	return records, nil
}

func scanLedgerRecord(s scanner) (model.FetchRecord, error) {
	var rec model.FetchRecord
	var vendor, resource, status string
	var lastSuccess, lastAttempt, cooldown sql.NullString

	err := s.Scan(
		&vendor, &rec.SiteID, &resource, &lastSuccess, &lastAttempt, &status,
		&rec.ErrorMessage, &cooldown, &rec.RetryAfterSeconds, &rec.ConsecutiveRateLimits,
	)
	if err != nil {
		return model.FetchRecord{}, err
	}

	rec.Vendor = model.Vendor(vendor)
	rec.Resource = model.Resource(resource)
	rec.LastStatus = model.FetchStatus(status)

	if rec.LastSuccessAt, err = parseNullTime(lastSuccess); err != nil {
		return model.FetchRecord{}, fmt.Errorf("parse last_success_at: %w", err)
	}
	if rec.LastAttemptAt, err = parseNullTime(lastAttempt); err != nil {
		return model.FetchRecord{}, fmt.Errorf("parse last_attempt_at: %w", err)
	}
	if rec.CooldownUntil, err = parseNullTime(cooldown); err != nil {
		return model.FetchRecord{}, fmt.Errorf("parse cooldown_until: %w", err)
	}

	return rec, nil
}
