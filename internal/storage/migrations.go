package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Bounded event log. Insertion order (rowid) is also time
			-- order for this process.
			CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp DATETIME NOT NULL,
				severity TEXT NOT NULL,
				source TEXT NOT NULL,
				message TEXT NOT NULL,
				context_json TEXT,
				fingerprint TEXT NOT NULL,
				acknowledged INTEGER NOT NULL DEFAULT 0,
				acknowledged_at DATETIME
			);

			-- One row per fingerprint; firing again replaces the row.
			CREATE TABLE IF NOT EXISTS alert_records (
				fingerprint TEXT PRIMARY KEY,
				last_fired_at DATETIME NOT NULL
			);

			-- Per-target last-observed state.
			CREATE TABLE IF NOT EXISTS target_states (
				target TEXT PRIMARY KEY,
				failed_build_count INTEGER NOT NULL DEFAULT 0,
				pending_update_pr TEXT,
				release_notified INTEGER NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
			CREATE INDEX IF NOT EXISTS idx_events_fingerprint ON events(fingerprint);
			CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
			CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
