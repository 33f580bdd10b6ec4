// Package secondary defines the secondary ports (driven adapters) for the application.
package secondary

import "context"

// WorkspaceAdapter defines the secondary port for isolated execution
// contexts and their reconciliation into the shared trunk. Contexts are
// keyed by the unit of work they serve (e.g. "impl-12").
type WorkspaceAdapter interface {
	// Context operations
	CreateContext(ctx context.Context, key string) (string, error)
	RemoveContext(ctx context.Context, path string) error
	ContextExists(ctx context.Context, path string) (bool, error)

	// MergeToTrunk reconciles one finished context into the trunk. Callers
	// serialize merges; the adapter performs exactly one.
	MergeToTrunk(ctx context.Context, contextPath string) error

	// AbortMerge backs out of a failed reconciliation so the trunk is clean
	// before any retry.
	AbortMerge(ctx context.Context) error

	// Path resolution
	ContextsBasePath() string
	TrunkPath() string
}
