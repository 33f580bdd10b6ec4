package primary

import (
	"context"
	"time"
)

// SupervisorService defines the primary port for worker process supervision.
type SupervisorService interface {
	// Spawn launches a worker for a role and records it. Spawn failures are
	// returned as errors; nothing is recorded for a failed launch.
	Spawn(ctx context.Context, req SpawnRequest) (*Process, error)

	// CheckStatus probes one process and returns its current status,
	// reclassifying records whose OS process has vanished as completed.
	CheckStatus(ctx context.Context, pid int) (string, error)

	// ListActive returns live process records, opportunistically reconciling
	// any whose OS process has exited. With includeCompleted, recently
	// finished records are appended.
	ListActive(ctx context.Context, includeCompleted bool) ([]*Process, error)

	// DetectHung returns live records older than the timeout. Purely
	// advisory: nothing is terminated or mutated.
	DetectHung(ctx context.Context, timeout time.Duration) ([]*Process, error)

	// Kill forcibly terminates a worker and records status killed with
	// exit code -9.
	Kill(ctx context.Context, pid int) error

	// Cleanup finalizes a record and best-effort releases its isolated
	// context when requested. Release failures are logged, not returned.
	Cleanup(ctx context.Context, pid int, releaseContext bool) error
}

// SpawnRequest contains parameters for launching a worker.
type SpawnRequest struct {
	Role       string
	TaskID     string
	ItemNumber int
	ExtraArgs  []string
	ContextDir string // isolated context path; empty runs on the trunk
	Metadata   string
}

// Process represents a supervised worker at the port boundary. Timestamps
// are RFC 3339 strings, empty when unset.
type Process struct {
	PID         int
	Role        string
	TaskID      string
	Kind        string
	ItemNumber  int
	Status      string
	Command     string
	ContextPath string
	ExitCode    int
	SpawnedAt   string
	StartedAt   string
	CompletedAt string
	Age         time.Duration // time since spawn, for live records
}
