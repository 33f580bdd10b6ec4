package secondary

import (
	"context"
	"time"
)

// SnapshotSchemaVersion is written into every snapshot so future readers can
// migrate or reject formats they do not understand.
const SnapshotSchemaVersion = 1

// ActiveTask is one in-flight unit of work tracked across cycles.
type ActiveTask struct {
	TaskID     string    `json:"task_id"`
	PID        int       `json:"pid"`
	Kind       string    `json:"kind"`
	ItemNumber int       `json:"item_number,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// ControllerSnapshot is the controller's durable state, rewritten atomically
// every cycle and loaded once at startup for crash recovery. Tasks recorded
// here are not assumed alive after a restart; the first monitoring step
// re-probes each one.
type ControllerSnapshot struct {
	Version            int                   `json:"version"`
	LastUpdate         time.Time             `json:"last_update"`
	ActiveTasks        map[string]ActiveTask `json:"active_tasks"`
	LastBacklogVersion string                `json:"last_backlog_version"`
	LastPeriodicRuns   map[string]time.Time  `json:"last_periodic_runs"`
}

// NewControllerSnapshot returns an empty snapshot at the current schema
// version, with its maps ready to use.
func NewControllerSnapshot() *ControllerSnapshot {
	return &ControllerSnapshot{
		Version:          SnapshotSchemaVersion,
		ActiveTasks:      make(map[string]ActiveTask),
		LastPeriodicRuns: make(map[string]time.Time),
	}
}

// SnapshotStore persists the controller snapshot.
type SnapshotStore interface {
	// Load returns the last saved snapshot, or nil when none exists yet.
	Load(ctx context.Context) (*ControllerSnapshot, error)

	// Save durably replaces the snapshot. The write is atomic: a crash
	// mid-save never leaves a partially written snapshot behind.
	Save(ctx context.Context, snap *ControllerSnapshot) error
}
