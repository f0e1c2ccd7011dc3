package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

type sqliteTargetStateRepo struct {
	db *sql.DB
}

func (r *sqliteTargetStateRepo) Get(ctx context.Context, target string) (*models.TargetState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT target, failed_build_count, pending_update_pr, release_notified, updated_at
		FROM target_states WHERE target = ?
	`, target)

	state, err := scanTargetState(row)
	if err == sql.ErrNoRows {
		// First poll of this target.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get target state: %w", err)
	}
	return state, nil
}

// Put replaces the stored state for a target in a single statement, so
// the write is atomic from the perspective of other targets.
func (r *sqliteTargetStateRepo) Put(ctx context.Context, state *models.TargetState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO target_states (target, failed_build_count, pending_update_pr, release_notified, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(target) DO UPDATE SET
			failed_build_count = excluded.failed_build_count,
			pending_update_pr = excluded.pending_update_pr,
			release_notified = excluded.release_notified,
			updated_at = excluded.updated_at
	`, state.Target, state.FailedBuildCount, nullString(state.PendingUpdatePR),
		boolToInt(state.ReleaseNotified), state.UpdatedAt)
	if err != nil {
		return &PersistenceError{Op: "put target state", Err: err}
	}
	return nil
}

func (r *sqliteTargetStateRepo) List(ctx context.Context) ([]*models.TargetState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT target, failed_build_count, pending_update_pr, release_notified, updated_at
		FROM target_states ORDER BY target ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query target states: %w", err)
	}
	defer rows.Close()

	var states []*models.TargetState
	for rows.Next() {
		state, err := scanTargetState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (r *sqliteTargetStateRepo) ClearPendingPR(ctx context.Context, target string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE target_states SET pending_update_pr = NULL, updated_at = ? WHERE target = ?
	`, time.Now(), target)
	if err != nil {
		return &PersistenceError{Op: "clear pending PR", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "clear pending PR", Err: err}
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteTargetStateRepo) SetReleaseNotified(ctx context.Context, target string, notified bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE target_states SET release_notified = ?, updated_at = ? WHERE target = ?
	`, boolToInt(notified), time.Now(), target)
	if err != nil {
		return &PersistenceError{Op: "set release notified", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "set release notified", Err: err}
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTargetState(row rowScanner) (*models.TargetState, error) {
	state := &models.TargetState{}
	var pendingPR sql.NullString
	var releaseNotified int

	err := row.Scan(&state.Target, &state.FailedBuildCount, &pendingPR,
		&releaseNotified, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}

	state.PendingUpdatePR = pendingPR.String
	state.ReleaseNotified = releaseNotified != 0
	return state, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
