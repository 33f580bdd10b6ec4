// Package primary defines the primary ports (driving adapters) for the
// application: the interfaces the CLI and control loop call into.
package primary

import "context"

// QueueService defines the primary port for task queue operations.
type QueueService interface {
	// Enqueue creates a new queued task and returns it.
	Enqueue(ctx context.Context, req EnqueueRequest) (*Task, error)

	// Dequeue atomically claims the most urgent queued task for a recipient
	// role. Returns nil when nothing is eligible.
	Dequeue(ctx context.Context, recipient string) (*Task, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// ListTasks lists tasks with optional filters.
	ListTasks(ctx context.Context, filters TaskFilters) ([]*Task, error)

	// MarkStarted records that work on the task began. Idempotent.
	MarkStarted(ctx context.Context, taskID string) error

	// MarkCompleted finishes a task with its duration. Idempotent.
	MarkCompleted(ctx context.Context, taskID string, durationMs int64) error

	// MarkFailed finishes a task with an error. Idempotent.
	MarkFailed(ctx context.Context, taskID string, errMsg string) error

	// Stats summarizes queue depth, per-role performance, and slow tasks.
	Stats(ctx context.Context) (*QueueStats, error)

	// Cleanup deletes terminal tasks older than the retention cutoff and
	// returns how many were removed.
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

// EnqueueRequest contains parameters for creating a task.
type EnqueueRequest struct {
	TaskID    string // optional; generated when empty
	Sender    string
	Recipient string
	Kind      string
	Priority  int // 0 means the kind's default priority
	Payload   string
}

// Task represents a task entity at the port boundary. Timestamps are
// RFC 3339 strings, empty when unset.
type Task struct {
	ID          string
	Sender      string
	Recipient   string
	Kind        string
	Priority    int
	Payload     string
	Status      string
	Error       string
	CreatedAt   string
	StartedAt   string
	CompletedAt string
	DurationMs  int64
}

// TaskFilters contains filter options for listing tasks.
type TaskFilters struct {
	Recipient string
	Status    string
	Kind      string
	Limit     int
}

// QueueStats summarizes the state of the queue.
type QueueStats struct {
	DepthByBand map[string]int // queued tasks per priority band
	Roles       []RoleStats
	Slowest     []SlowTask
}

// RoleStats reports per-role throughput and duration percentiles.
type RoleStats struct {
	Role      string
	Completed int
	Failed    int
	Running   int
	AvgMs     float64
	P50Ms     float64
	P95Ms     float64
}

// SlowTask is one completed task in the slow list.
type SlowTask struct {
	TaskID     string
	Recipient  string
	Kind       string
	DurationMs int64
}
