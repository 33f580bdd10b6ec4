package primary

import "context"

// CoordinatorService defines the primary port for conflict checking and
// parallel batch execution.
type CoordinatorService interface {
	// CheckIndependence consults the disjointness oracle pairwise and the
	// ownership table, and reports whether the candidates may run in
	// parallel.
	CheckIndependence(ctx context.Context, candidates []BatchCandidate) (*IndependenceVerdict, error)

	// ExecuteBatch runs a coordination attempt. Independent candidates are
	// dispatched concurrently (bounded by MaxParallel), each in its own
	// isolated context; dependent ones fall back to sequential processing of
	// the same set, dropping no candidate. With AutoMerge the call waits
	// for workers and reconciles their contexts before returning; without
	// it, dispatch is fire-and-forget and reconciliation happens later via
	// Reconcile.
	ExecuteBatch(ctx context.Context, req ExecuteBatchRequest) (*BatchResult, error)

	// Reconcile merges one finished worker's isolated context into the
	// trunk. Merges are strictly serialized; failures are retried up to the
	// configured bound and then flagged for manual attention.
	Reconcile(ctx context.Context, pid int) (*MergeResult, error)

	// Flags lists reconciliation failures awaiting manual resolution.
	Flags(ctx context.Context) ([]*MergeFlag, error)

	// ClearFlag re-admits a task key to automatic batching.
	ClearFlag(ctx context.Context, taskKey string) error
}

// BatchCandidate identifies one implementable work item offered for
// coordination.
type BatchCandidate struct {
	Key        string // e.g. "impl-12"
	ItemNumber int
	Title      string
}

// IndependenceVerdict is the outcome of a conflict check.
type IndependenceVerdict struct {
	Valid    bool
	Groups   [][]string // candidate keys cleared to run together
	Reason   string     // why parallel execution was rejected
	Consults int        // oracle consultations performed
}

// ExecuteBatchRequest contains parameters for a coordination attempt.
type ExecuteBatchRequest struct {
	Candidates  []BatchCandidate
	MaxParallel int
	AutoMerge   bool
}

// BatchResult is the outcome of one coordination attempt.
type BatchResult struct {
	BatchID      string
	Mode         string // parallel-dispatch or sequential-dispatch
	Dispatched   []DispatchedTask
	MergeResults []MergeResult
	DurationMs   int64
}

// DispatchedTask links one candidate to the task and worker it produced.
type DispatchedTask struct {
	Key         string
	TaskID      string
	PID         int
	ItemNumber  int
	ContextPath string
}

// MergeResult describes one reconciliation attempt.
type MergeResult struct {
	Key      string
	TaskID   string
	Merged   bool
	Attempts int
	Flagged  bool
	Error    string
}

// MergeFlag is a reconciliation failure awaiting manual attention.
type MergeFlag struct {
	TaskKey     string
	TaskID      string
	ContextPath string
	Attempts    int
	Reason      string
	FlaggedAt   string
}
