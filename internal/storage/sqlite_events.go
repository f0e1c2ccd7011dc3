package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

type sqliteEventRepo struct {
	db *sql.DB
}

func (r *sqliteEventRepo) Insert(ctx context.Context, e *models.Event) error {
	var contextJSON sql.NullString
	if len(e.Context) > 0 {
		data, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("marshal event context: %w", err)
		}
		contextJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO events (id, timestamp, severity, source, message,
			context_json, fingerprint, acknowledged, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, string(e.Severity), e.Source, e.Message,
		contextJSON, e.Fingerprint, boolToInt(e.Acknowledged), nullTime(e.AcknowledgedAt),
	)
	if err != nil {
		return &PersistenceError{Op: "insert event", Err: err}
	}
	return nil
}

func (r *sqliteEventRepo) TrimToMostRecent(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM events WHERE rowid NOT IN (
			SELECT rowid FROM events ORDER BY rowid DESC LIMIT ?
		)
	`, n)
	if err != nil {
		return 0, &PersistenceError{Op: "trim events", Err: err}
	}
	return result.RowsAffected()
}

func (r *sqliteEventRepo) List(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	query := `
		SELECT id, timestamp, severity, source, message, context_json,
			fingerprint, acknowledged, acknowledged_at
		FROM events WHERE 1=1
	`
	var args []interface{}

	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	query += " ORDER BY rowid ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events, err := r.scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return events, rows.Err()
}

func (r *sqliteEventRepo) Get(ctx context.Context, id string) (*models.Event, error) {
	query := `
		SELECT id, timestamp, severity, source, message, context_json,
			fingerprint, acknowledged, acknowledged_at
		FROM events WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id)

	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *sqliteEventRepo) Acknowledge(ctx context.Context, id string, at time.Time) (*models.Event, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE events SET acknowledged = 1, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0
	`, at, id)
	if err != nil {
		return nil, &PersistenceError{Op: "acknowledge event", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, &PersistenceError{Op: "acknowledge event", Err: err}
	}
	if affected == 0 {
		// Either missing or already acknowledged; Get distinguishes.
		return r.Get(ctx, id)
	}
	return r.Get(ctx, id)
}

func (r *sqliteEventRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	e := &models.Event{}
	var severity string
	var contextJSON sql.NullString
	var acknowledged int
	var acknowledgedAt sql.NullTime

	err := row.Scan(&e.ID, &e.Timestamp, &severity, &e.Source, &e.Message,
		&contextJSON, &e.Fingerprint, &acknowledged, &acknowledgedAt)
	if err != nil {
		return nil, err
	}

	e.Severity = models.Severity(severity)
	e.Acknowledged = acknowledged != 0
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		e.AcknowledgedAt = &t
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
			return nil, fmt.Errorf("unmarshal event context: %w", err)
		}
	}
	return e, nil
}

func (r *sqliteEventRepo) scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
