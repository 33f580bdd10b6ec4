// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/foreman/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// This is the single shared test database setup function for all repository tests.
// Uses db.GetSchemaSQL() to prevent test schemas from drifting.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// A single connection keeps every statement on the same in-memory
	// database and serializes concurrent test writers.
	testDB.SetMaxOpenConns(1)

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedTask inserts a test task and returns its ID.
func seedTask(t *testing.T, db *sql.DB, id, recipient string, priority int) string {
	t.Helper()
	if id == "" {
		id = "TASK-001"
	}
	if recipient == "" {
		recipient = "builder"
	}
	_, err := db.Exec(
		"INSERT INTO tasks (id, sender, recipient, kind, priority, status) VALUES (?, 'controller', ?, 'implement', ?, 'queued')",
		id, recipient, priority,
	)
	if err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}
	return id
}

// seedCompletedTask inserts a completed task with a duration, returning its ID.
func seedCompletedTask(t *testing.T, db *sql.DB, id, recipient string, durationMs int64) string {
	t.Helper()
	if id == "" {
		id = "TASK-done"
	}
	if recipient == "" {
		recipient = "builder"
	}
	_, err := db.Exec(
		`INSERT INTO tasks (id, sender, recipient, kind, priority, status, completed_at, duration_ms)
		 VALUES (?, 'controller', ?, 'implement', 5, 'completed', CURRENT_TIMESTAMP, ?)`,
		id, recipient, durationMs,
	)
	if err != nil {
		t.Fatalf("failed to seed completed task: %v", err)
	}
	return id
}

// seedProcess inserts a test process record and returns its pid.
func seedProcess(t *testing.T, db *sql.DB, pid int, role, status string) int {
	t.Helper()
	if role == "" {
		role = "builder"
	}
	if status == "" {
		status = "spawned"
	}
	_, err := db.Exec(
		"INSERT INTO processes (pid, role, task_id, task_kind, status, command) VALUES (?, ?, 'TASK-001', 'implement', ?, 'foreman-worker')",
		pid, role, status,
	)
	if err != nil {
		t.Fatalf("failed to seed process: %v", err)
	}
	return pid
}
