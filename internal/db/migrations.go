package db

import (
	"database/sql"
	"fmt"
)

// Migration is one schema upgrade step. Up runs inside the transaction that
// also records the version, so a failed step leaves no trace.
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

var migrations = []Migration{
	{Version: 1, Name: "initial_queue_and_process_tables", Up: migrationV1},
	{Version: 2, Name: "add_merge_flags_table", Up: migrationV2},
	{Version: 3, Name: "add_item_number_to_processes", Up: migrationV3},
}

// RunMigrations applies every migration newer than the recorded schema
// version.
func RunMigrations() error {
	db, err := GetDB()
	if err != nil {
		return fmt.Errorf("failed to get database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
		fmt.Printf("✓ Migration %d (%s) applied\n", m.Version, m.Name)
	}
	return nil
}

func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if err := m.Up(tx); err != nil {
		return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// migrationV1 creates the tasks, processes and events tables with their
// indexes.
func migrationV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			kind TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 5,
			payload TEXT,
			status TEXT NOT NULL CHECK(status IN ('queued', 'running', 'completed', 'failed')) DEFAULT 'queued',
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME,
			duration_ms INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS processes (
			pid INTEGER PRIMARY KEY,
			role TEXT NOT NULL,
			task_id TEXT,
			task_kind TEXT,
			status TEXT NOT NULL CHECK(status IN ('spawned', 'running', 'completed', 'failed', 'killed')) DEFAULT 'spawned',
			command TEXT,
			context_path TEXT,
			exit_code INTEGER,
			metadata TEXT,
			spawned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(recipient, status, priority, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(status, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_processes_status ON processes(status)`,
		`CREATE INDEX IF NOT EXISTS idx_processes_task ON processes(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create initial tables: %w", err)
		}
	}
	return nil
}

// migrationV2 adds the merge_flags table for contexts needing manual merges.
func migrationV2(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS merge_flags (
		task_key TEXT PRIMARY KEY,
		task_id TEXT,
		context_path TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		flagged_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create merge_flags table: %w", err)
	}
	return nil
}

// migrationV3 adds the backlog item number to process records.
func migrationV3(tx *sql.Tx) error {
	if _, err := tx.Exec(`ALTER TABLE processes ADD COLUMN item_number INTEGER`); err != nil {
		return fmt.Errorf("failed to add item_number column: %w", err)
	}
	return nil
}
