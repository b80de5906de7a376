package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides persistence for plans, jobs, inventory, and preferences.
type Store struct {
	db      *sql.DB
	logger  zerolog.Logger
	watcher *planWatcher
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  logger,
		watcher: newPlanWatcher(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.watcher.closeAll()
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		current_step TEXT NOT NULL DEFAULT '',
		approval_step TEXT NOT NULL DEFAULT '',
		dispatch_output TEXT,
		route_output TEXT,
		inventory_output TEXT,
		job_ids TEXT NOT NULL DEFAULT '[]',
		created_job_ids TEXT NOT NULL DEFAULT '[]',
		error_state TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		total_duration_mins INTEGER NOT NULL DEFAULT 0,
		total_distance_km REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_plans_user_date ON plans(user_id, date);
	CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		job_type TEXT NOT NULL,
		priority TEXT NOT NULL,
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		address TEXT NOT NULL DEFAULT '',
		estimated_duration_mins INTEGER NOT NULL DEFAULT 0,
		scheduled_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		required_items TEXT NOT NULL DEFAULT '[]',
		instructions TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_user_date ON jobs(user_id, scheduled_date);

	CREATE TABLE IF NOT EXISTS inventory_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity REAL NOT NULL DEFAULT 0,
		unit TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		supplier TEXT NOT NULL DEFAULT '',
		min_stock REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, name)
	);

	CREATE TABLE IF NOT EXISTS preferences (
		user_id TEXT PRIMARY KEY,
		settings TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}
