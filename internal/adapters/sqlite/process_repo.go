package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/foreman/internal/ports/secondary"
)

// ProcessRepository implements secondary.ProcessRepository with SQLite.
type ProcessRepository struct {
	db *sql.DB
}

// NewProcessRepository creates a new SQLite process repository.
func NewProcessRepository(db *sql.DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

const processSelectCols = "pid, role, task_id, task_kind, item_number, status, command, context_path, exit_code, metadata, spawned_at, started_at, completed_at"

// scanProcess scans a process row into a ProcessRecord.
func scanProcess(scanner interface {
	Scan(dest ...any) error
}) (*secondary.ProcessRecord, error) {
	var (
		taskID      sql.NullString
		taskKind    sql.NullString
		itemNumber  sql.NullInt64
		command     sql.NullString
		contextPath sql.NullString
		exitCode    sql.NullInt64
		metadata    sql.NullString
		spawnedAt   sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	record := &secondary.ProcessRecord{}
	err := scanner.Scan(
		&record.PID, &record.Role, &taskID, &taskKind, &itemNumber, &record.Status,
		&command, &contextPath, &exitCode, &metadata,
		&spawnedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	record.TaskID = taskID.String
	record.TaskKind = taskKind.String
	record.ItemNumber = int(itemNumber.Int64)
	record.Command = command.String
	record.ContextPath = contextPath.String
	record.ExitCode = int(exitCode.Int64)
	record.Metadata = metadata.String

	if spawnedAt.Valid {
		record.SpawnedAt = spawnedAt.Time
	}
	if startedAt.Valid {
		record.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time
	}

	return record, nil
}

// Create persists a new process record with status spawned.
func (r *ProcessRepository) Create(ctx context.Context, rec *secondary.ProcessRecord) error {
	var taskID, taskKind, contextPath, metadata sql.NullString
	var itemNumber sql.NullInt64

	if rec.TaskID != "" {
		taskID = sql.NullString{String: rec.TaskID, Valid: true}
	}
	if rec.TaskKind != "" {
		taskKind = sql.NullString{String: rec.TaskKind, Valid: true}
	}
	if rec.ContextPath != "" {
		contextPath = sql.NullString{String: rec.ContextPath, Valid: true}
	}
	if rec.Metadata != "" {
		metadata = sql.NullString{String: rec.Metadata, Valid: true}
	}
	if rec.ItemNumber != 0 {
		itemNumber = sql.NullInt64{Int64: int64(rec.ItemNumber), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO processes (pid, role, task_id, task_kind, item_number, status, command, context_path, metadata) VALUES (?, ?, ?, ?, ?, 'spawned', ?, ?, ?)",
		rec.PID, rec.Role, taskID, taskKind, itemNumber, rec.Command, contextPath, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create process record: %w", err)
	}

	return nil
}

// GetByPID retrieves a process record by its OS pid.
func (r *ProcessRepository) GetByPID(ctx context.Context, pid int) (*secondary.ProcessRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+processSelectCols+" FROM processes WHERE pid = ?",
		pid,
	)

	record, err := scanProcess(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("process %d not found", pid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process: %w", err)
	}

	return record, nil
}

// List retrieves process records matching the given filters, newest first.
func (r *ProcessRepository) List(ctx context.Context, filters secondary.ProcessFilters) ([]*secondary.ProcessRecord, error) {
	query := "SELECT " + processSelectCols + " FROM processes WHERE 1=1"
	args := []any{}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	if filters.Role != "" {
		query += " AND role = ?"
		args = append(args, filters.Role)
	}

	if filters.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, filters.TaskID)
	}

	query += " ORDER BY spawned_at DESC, pid DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()

	var records []*secondary.ProcessRecord
	for rows.Next() {
		record, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// ListLive returns records still in a non-terminal status, oldest first.
func (r *ProcessRepository) ListLive(ctx context.Context) ([]*secondary.ProcessRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+processSelectCols+` FROM processes
		 WHERE status IN ('spawned', 'running')
		 ORDER BY spawned_at ASC, pid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list live processes: %w", err)
	}
	defer rows.Close()

	var records []*secondary.ProcessRecord
	for rows.Next() {
		record, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// MarkRunning confirms the worker started. No-op unless status is spawned,
// so repeated confirmations and late calls against terminal records are safe.
func (r *ProcessRepository) MarkRunning(ctx context.Context, pid int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processes
		 SET status = 'running', started_at = COALESCE(started_at, CURRENT_TIMESTAMP)
		 WHERE pid = ? AND status = 'spawned'`,
		pid,
	)
	if err != nil {
		return fmt.Errorf("failed to mark process running: %w", err)
	}

	return r.checkTransition(ctx, result, pid)
}

// MarkCompleted finishes the record. No-op when already terminal.
func (r *ProcessRepository) MarkCompleted(ctx context.Context, pid int, exitCode int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processes
		 SET status = 'completed', exit_code = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE pid = ? AND status IN ('spawned', 'running')`,
		exitCode, pid,
	)
	if err != nil {
		return fmt.Errorf("failed to mark process completed: %w", err)
	}

	return r.checkTransition(ctx, result, pid)
}

// MarkFailed finishes the record as failed. No-op when already terminal.
func (r *ProcessRepository) MarkFailed(ctx context.Context, pid int, exitCode int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processes
		 SET status = 'failed', exit_code = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE pid = ? AND status IN ('spawned', 'running')`,
		exitCode, pid,
	)
	if err != nil {
		return fmt.Errorf("failed to mark process failed: %w", err)
	}

	return r.checkTransition(ctx, result, pid)
}

// MarkKilled finishes the record as killed with exit code -9. No-op when
// already terminal.
func (r *ProcessRepository) MarkKilled(ctx context.Context, pid int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE processes
		 SET status = 'killed', exit_code = -9, completed_at = CURRENT_TIMESTAMP
		 WHERE pid = ? AND status IN ('spawned', 'running')`,
		pid,
	)
	if err != nil {
		return fmt.Errorf("failed to mark process killed: %w", err)
	}

	return r.checkTransition(ctx, result, pid)
}

// checkTransition distinguishes an idempotent no-op from a missing record
// after a conditional update touched zero rows.
func (r *ProcessRepository) checkTransition(ctx context.Context, result sql.Result, pid int) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processes WHERE pid = ?", pid).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check transition: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("process %d not found", pid)
	}

	return nil
}

// CountByStatus tallies process records per status.
func (r *ProcessRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM processes GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count processes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan process count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// Verify interface compliance at compile time.
var _ secondary.ProcessRepository = (*ProcessRepository)(nil)
