// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"time"
)

// TaskRepository defines the secondary port for the durable task queue.
// Implementations must make Claim atomic (at-most-once delivery) and the
// Mark* transitions idempotent: marking an already-terminal task is a no-op.
type TaskRepository interface {
	// Enqueue persists a new task with status queued. The caller supplies a
	// unique task ID; colliding IDs fail.
	Enqueue(ctx context.Context, task *TaskRecord) error

	// Claim atomically selects the queued task for recipient with the lowest
	// priority value (ties broken by earliest creation), transitions it to
	// running, and returns it. Returns nil when nothing is eligible.
	Claim(ctx context.Context, recipient string) (*TaskRecord, error)

	// GetByID retrieves a task by its ID.
	GetByID(ctx context.Context, id string) (*TaskRecord, error)

	// List retrieves tasks matching the given filters, newest first.
	List(ctx context.Context, filters TaskFilters) ([]*TaskRecord, error)

	// MarkStarted records that work on the task began. No-op when terminal.
	MarkStarted(ctx context.Context, id string) error

	// MarkCompleted finishes the task with its wall-clock duration. No-op
	// when the task is already terminal.
	MarkCompleted(ctx context.Context, id string, durationMs int64) error

	// MarkFailed finishes the task with an error message. No-op when the
	// task is already terminal.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// SlowestTasks returns completed tasks ordered by descending duration.
	SlowestTasks(ctx context.Context, limit int) ([]*TaskRecord, error)

	// RoleDurations returns, per recipient role, the durations of completed
	// tasks and the count of failed ones, for performance reporting.
	RoleDurations(ctx context.Context) ([]*RoleDurationsRecord, error)

	// QueuedByPriority returns the number of queued tasks per priority value.
	QueuedByPriority(ctx context.Context) (map[int]int, error)

	// CleanupOld deletes terminal tasks older than the retention cutoff and
	// returns how many were removed.
	CleanupOld(ctx context.Context, retentionDays int) (int, error)
}

// TaskRecord represents a task as stored in persistence. Zero time values
// mean the timestamp was never set.
type TaskRecord struct {
	ID          string
	Sender      string
	Recipient   string
	Kind        string
	Priority    int // lower value = more urgent
	Payload     string
	Status      string // queued, running, completed, failed
	Error       string
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	DurationMs  int64
}

// TaskFilters contains filter options for querying tasks.
type TaskFilters struct {
	Recipient string
	Status    string
	Kind      string
	Limit     int
}

// RoleDurationsRecord aggregates completed-task durations for one role.
type RoleDurationsRecord struct {
	Role         string
	CompletedMs  []float64
	FailedCount  int
	RunningCount int
}

// ProcessRepository defines the secondary port for worker process records.
// Status transitions only move forward: spawned -> running -> terminal.
type ProcessRepository interface {
	// Create persists a new process record with status spawned.
	Create(ctx context.Context, rec *ProcessRecord) error

	// GetByPID retrieves a process record by its OS pid.
	GetByPID(ctx context.Context, pid int) (*ProcessRecord, error)

	// List retrieves process records matching the given filters, newest first.
	List(ctx context.Context, filters ProcessFilters) ([]*ProcessRecord, error)

	// ListLive returns records still in a non-terminal status (spawned or
	// running), oldest first.
	ListLive(ctx context.Context) ([]*ProcessRecord, error)

	// MarkRunning confirms the worker started. No-op unless status is spawned.
	MarkRunning(ctx context.Context, pid int) error

	// MarkCompleted finishes the record with an exit code. No-op when terminal.
	MarkCompleted(ctx context.Context, pid int, exitCode int) error

	// MarkFailed finishes the record as failed with an exit code. No-op when
	// terminal.
	MarkFailed(ctx context.Context, pid int, exitCode int) error

	// MarkKilled finishes the record as killed with exit code -9. No-op when
	// terminal.
	MarkKilled(ctx context.Context, pid int) error

	// CountByStatus tallies records per status.
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// ProcessRecord represents a supervised worker process as stored in
// persistence.
type ProcessRecord struct {
	PID         int
	Role        string
	TaskID      string
	TaskKind    string
	ItemNumber  int    // backlog item the worker is handling, 0 when none
	Status      string // spawned, running, completed, failed, killed
	Command     string
	ContextPath string // isolated execution context, empty when run on trunk
	ExitCode    int
	Metadata    string
	SpawnedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// ProcessFilters contains filter options for querying process records.
type ProcessFilters struct {
	Status string
	Role   string
	TaskID string
	Limit  int
}

// MergeFlagRepository defines the secondary port for reconciliation failures
// that exhausted their retries and need manual attention. Flagged keys are
// excluded from automatic batching until cleared.
type MergeFlagRepository interface {
	// Flag records (or refreshes) a merge failure for a task key.
	Flag(ctx context.Context, flag *MergeFlagRecord) error

	// List returns all flags, most recent first.
	List(ctx context.Context) ([]*MergeFlagRecord, error)

	// Keys returns just the flagged task keys.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes the flag for a task key after manual resolution.
	Clear(ctx context.Context, taskKey string) error
}

// MergeFlagRecord represents a flagged reconciliation failure.
type MergeFlagRecord struct {
	TaskKey     string // e.g. "impl-12"
	TaskID      string
	ContextPath string
	Attempts    int
	Reason      string
	FlaggedAt   time.Time
}

// EventRepository defines the secondary port for the append-only audit trail.
type EventRepository interface {
	// Record appends an event.
	Record(ctx context.Context, event *EventRecord) error

	// ListRecent returns the newest events, most recent first.
	ListRecent(ctx context.Context, limit int) ([]*EventRecord, error)

	// ListForEntity returns the newest events for one entity.
	ListForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*EventRecord, error)
}

// EventRecord represents one audit trail entry.
type EventRecord struct {
	ID         int64
	Actor      string // controller, supervisor, coordinator, cli
	EntityType string // task, process, batch, merge_flag
	EntityID   string
	Action     string
	Detail     string
	CreatedAt  time.Time
}
