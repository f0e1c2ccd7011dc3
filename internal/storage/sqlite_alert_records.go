package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

type sqliteAlertRecordRepo struct {
	db *sql.DB
}

func (r *sqliteAlertRecordRepo) Get(ctx context.Context, fingerprint string) (*models.AlertRecord, error) {
	rec := &models.AlertRecord{}
	err := r.db.QueryRowContext(ctx,
		"SELECT fingerprint, last_fired_at FROM alert_records WHERE fingerprint = ?",
		fingerprint,
	).Scan(&rec.Fingerprint, &rec.LastFiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert record: %w", err)
	}
	return rec, nil
}

func (r *sqliteAlertRecordRepo) Upsert(ctx context.Context, record *models.AlertRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_records (fingerprint, last_fired_at) VALUES (?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET last_fired_at = excluded.last_fired_at
	`, record.Fingerprint, record.LastFiredAt)
	if err != nil {
		return &PersistenceError{Op: "upsert alert record", Err: err}
	}
	return nil
}

func (r *sqliteAlertRecordRepo) List(ctx context.Context, limit int) ([]*models.AlertRecord, error) {
	query := "SELECT fingerprint, last_fired_at FROM alert_records ORDER BY last_fired_at DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert records: %w", err)
	}
	defer rows.Close()

	var records []*models.AlertRecord
	for rows.Next() {
		rec := &models.AlertRecord{}
		if err := rows.Scan(&rec.Fingerprint, &rec.LastFiredAt); err != nil {
			return nil, fmt.Errorf("scan alert record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
