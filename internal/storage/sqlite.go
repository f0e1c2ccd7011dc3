package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements the repositories using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	events       *sqliteEventRepo
	alertRecords *sqliteAlertRecordRepo
	targetStates *sqliteTargetStateRepo
}

// NewSQLiteStorage creates a new SQLite storage rooted at path.
// Use ":memory:" for an in-process database (tests).
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	s.events = &sqliteEventRepo{db: db}
	s.alertRecords = &sqliteAlertRecordRepo{db: db}
	s.targetStates = &sqliteTargetStateRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Events returns the event repository.
func (s *SQLiteStorage) Events() EventRepository {
	return s.events
}

// AlertRecords returns the alert record repository.
func (s *SQLiteStorage) AlertRecords() AlertRecordRepository {
	return s.alertRecords
}

// TargetStates returns the target state repository.
func (s *SQLiteStorage) TargetStates() TargetStateRepository {
	return s.targetStates
}
