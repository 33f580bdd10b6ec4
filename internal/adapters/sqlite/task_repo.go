// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/example/foreman/internal/ports/secondary"
)

// TaskRepository implements secondary.TaskRepository with SQLite.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new SQLite task repository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskSelectCols = "id, sender, recipient, kind, priority, payload, status, error, created_at, started_at, completed_at, duration_ms"

// scanTask scans a task row into a TaskRecord.
func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*secondary.TaskRecord, error) {
	var (
		payload     sql.NullString
		errMsg      sql.NullString
		createdAt   sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
		durationMs  sql.NullInt64
	)

	record := &secondary.TaskRecord{}
	err := scanner.Scan(
		&record.ID, &record.Sender, &record.Recipient, &record.Kind, &record.Priority,
		&payload, &record.Status, &errMsg,
		&createdAt, &startedAt, &completedAt, &durationMs,
	)
	if err != nil {
		return nil, err
	}

	record.Payload = payload.String
	record.Error = errMsg.String
	record.DurationMs = durationMs.Int64

	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if startedAt.Valid {
		record.StartedAt = startedAt.Time
	}
	if completedAt.Valid {
		record.CompletedAt = completedAt.Time
	}

	return record, nil
}

// Enqueue persists a new task with status queued.
func (r *TaskRepository) Enqueue(ctx context.Context, task *secondary.TaskRecord) error {
	var payload sql.NullString
	if task.Payload != "" {
		payload = sql.NullString{String: task.Payload, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tasks (id, sender, recipient, kind, priority, payload, status) VALUES (?, ?, ?, ?, ?, ?, 'queued')",
		task.ID, task.Sender, task.Recipient, task.Kind, task.Priority, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// Claim atomically hands the most urgent queued task for recipient to the
// caller. Selection and transition are separate statements, but the
// transition is conditional on status still being queued, so a lost race
// simply moves on to the next candidate.
func (r *TaskRepository) Claim(ctx context.Context, recipient string) (*secondary.TaskRecord, error) {
	for {
		var id string
		err := r.db.QueryRowContext(ctx,
			`SELECT id FROM tasks
			 WHERE recipient = ? AND status = 'queued'
			 ORDER BY priority ASC, created_at ASC, id ASC
			 LIMIT 1`,
			recipient,
		).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select claimable task: %w", err)
		}

		result, err := r.db.ExecContext(ctx,
			"UPDATE tasks SET status = 'running', started_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'queued'",
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim task %s: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to claim task %s: %w", id, err)
		}
		if rows == 0 {
			// Another consumer won this candidate; try the next one.
			continue
		}

		return r.GetByID(ctx, id)
	}
}

// GetByID retrieves a task by its ID.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*secondary.TaskRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+taskSelectCols+" FROM tasks WHERE id = ?",
		id,
	)

	record, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return record, nil
}

// List retrieves tasks matching the given filters, newest first.
func (r *TaskRepository) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.TaskRecord, error) {
	query := "SELECT " + taskSelectCols + " FROM tasks WHERE 1=1"
	args := []any{}

	if filters.Recipient != "" {
		query += " AND recipient = ?"
		args = append(args, filters.Recipient)
	}

	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	if filters.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filters.Kind)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var records []*secondary.TaskRecord
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// MarkStarted records that work on the task began. Calling it on a terminal
// task is a no-op.
func (r *TaskRepository) MarkStarted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET status = 'running', started_at = COALESCE(started_at, CURRENT_TIMESTAMP)
		 WHERE id = ? AND status IN ('queued', 'running')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task started: %w", err)
	}

	return r.checkTransition(ctx, result, id)
}

// MarkCompleted finishes the task. Calling it on a terminal task is a no-op.
func (r *TaskRepository) MarkCompleted(ctx context.Context, id string, durationMs int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET status = 'completed', completed_at = CURRENT_TIMESTAMP, duration_ms = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		durationMs, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	return r.checkTransition(ctx, result, id)
}

// MarkFailed finishes the task with an error message. Calling it on a
// terminal task is a no-op.
func (r *TaskRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET status = 'failed', error = ?, completed_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}

	return r.checkTransition(ctx, result, id)
}

// checkTransition distinguishes an idempotent no-op (task already terminal)
// from a missing task after a conditional update touched zero rows.
func (r *TaskRepository) checkTransition(ctx context.Context, result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check transition: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("task %s not found", id)
	}

	return nil
}

// SlowestTasks returns completed tasks ordered by descending duration.
func (r *TaskRepository) SlowestTasks(ctx context.Context, limit int) ([]*secondary.TaskRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+taskSelectCols+` FROM tasks
		 WHERE status = 'completed' AND duration_ms IS NOT NULL
		 ORDER BY duration_ms DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list slowest tasks: %w", err)
	}
	defer rows.Close()

	var records []*secondary.TaskRecord
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// RoleDurations aggregates completed durations and failure counts per
// recipient role.
func (r *TaskRepository) RoleDurations(ctx context.Context) ([]*secondary.RoleDurationsRecord, error) {
	byRole := make(map[string]*secondary.RoleDurationsRecord)
	get := func(role string) *secondary.RoleDurationsRecord {
		rec, ok := byRole[role]
		if !ok {
			rec = &secondary.RoleDurationsRecord{Role: role}
			byRole[role] = rec
		}
		return rec
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT recipient, duration_ms FROM tasks WHERE status = 'completed' AND duration_ms IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed durations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var durationMs int64
		if err := rows.Scan(&role, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan duration: %w", err)
		}
		rec := get(role)
		rec.CompletedMs = append(rec.CompletedMs, float64(durationMs))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts, err := r.db.QueryContext(ctx,
		"SELECT recipient, status, COUNT(*) FROM tasks WHERE status IN ('failed', 'running') GROUP BY recipient, status",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query role counts: %w", err)
	}
	defer counts.Close()

	for counts.Next() {
		var role, status string
		var n int
		if err := counts.Scan(&role, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		rec := get(role)
		switch status {
		case "failed":
			rec.FailedCount = n
		case "running":
			rec.RunningCount = n
		}
	}
	if err := counts.Err(); err != nil {
		return nil, err
	}

	records := make([]*secondary.RoleDurationsRecord, 0, len(byRole))
	for _, rec := range byRole {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Role < records[j].Role })
	return records, nil
}

// QueuedByPriority counts queued tasks per priority value.
func (r *TaskRepository) QueuedByPriority(ctx context.Context) (map[int]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT priority, COUNT(*) FROM tasks WHERE status = 'queued' GROUP BY priority",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue depth: %w", err)
	}
	defer rows.Close()

	depth := make(map[int]int)
	for rows.Next() {
		var priority, n int
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue depth: %w", err)
		}
		depth[priority] = n
	}

	return depth, rows.Err()
}

// CleanupOld deletes terminal tasks whose completion is older than the
// retention cutoff. Returns the number of rows removed.
func (r *TaskRepository) CleanupOld(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks
		 WHERE status IN ('completed', 'failed')
		 AND completed_at IS NOT NULL
		 AND completed_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", retentionDays),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old tasks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old tasks: %w", err)
	}

	return int(rows), nil
}

// Verify interface compliance at compile time.
var _ secondary.TaskRepository = (*TaskRepository)(nil)
