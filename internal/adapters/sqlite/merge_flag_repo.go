package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/foreman/internal/ports/secondary"
)

// MergeFlagRepository implements secondary.MergeFlagRepository with SQLite.
type MergeFlagRepository struct {
	db *sql.DB
}

// NewMergeFlagRepository creates a new SQLite merge flag repository.
func NewMergeFlagRepository(db *sql.DB) *MergeFlagRepository {
	return &MergeFlagRepository{db: db}
}

const mergeFlagSelectCols = "task_key, task_id, context_path, attempts, reason, flagged_at"

// scanMergeFlag scans a merge flag row into a MergeFlagRecord.
func scanMergeFlag(scanner interface {
	Scan(dest ...any) error
}) (*secondary.MergeFlagRecord, error) {
	var (
		taskID      sql.NullString
		contextPath sql.NullString
		reason      sql.NullString
		flaggedAt   sql.NullTime
	)

	record := &secondary.MergeFlagRecord{}
	err := scanner.Scan(&record.TaskKey, &taskID, &contextPath, &record.Attempts, &reason, &flaggedAt)
	if err != nil {
		return nil, err
	}

	record.TaskID = taskID.String
	record.ContextPath = contextPath.String
	record.Reason = reason.String
	if flaggedAt.Valid {
		record.FlaggedAt = flaggedAt.Time
	}

	return record, nil
}

// Flag records (or refreshes) a merge failure for a task key.
func (r *MergeFlagRepository) Flag(ctx context.Context, flag *secondary.MergeFlagRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO merge_flags (task_key, task_id, context_path, attempts, reason, flagged_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(task_key) DO UPDATE SET
		   task_id = excluded.task_id,
		   context_path = excluded.context_path,
		   attempts = excluded.attempts,
		   reason = excluded.reason,
		   flagged_at = CURRENT_TIMESTAMP`,
		flag.TaskKey, flag.TaskID, flag.ContextPath, flag.Attempts, flag.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to flag merge failure: %w", err)
	}

	return nil
}

// List returns all flags, most recent first.
func (r *MergeFlagRepository) List(ctx context.Context) ([]*secondary.MergeFlagRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+mergeFlagSelectCols+" FROM merge_flags ORDER BY flagged_at DESC, task_key ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge flags: %w", err)
	}
	defer rows.Close()

	var records []*secondary.MergeFlagRecord
	for rows.Next() {
		record, err := scanMergeFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge flag: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Keys returns just the flagged task keys, sorted.
func (r *MergeFlagRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT task_key FROM merge_flags ORDER BY task_key ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list merge flag keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan merge flag key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Clear removes the flag for a task key after manual resolution.
func (r *MergeFlagRepository) Clear(ctx context.Context, taskKey string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM merge_flags WHERE task_key = ?", taskKey)
	if err != nil {
		return fmt.Errorf("failed to clear merge flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to clear merge flag: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("merge flag %s not found", taskKey)
	}

	return nil
}

// Verify interface compliance at compile time.
var _ secondary.MergeFlagRepository = (*MergeFlagRepository)(nil)
