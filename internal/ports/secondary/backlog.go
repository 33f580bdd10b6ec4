package secondary

import "context"

// BacklogSource is the external source of truth for work items. The core
// reads it every cycle and never mutates it; planning collaborators own the
// content.
type BacklogSource interface {
	// Version returns a cheap freshness marker. Callers skip recomputation
	// when the version has not changed since the last cycle.
	Version(ctx context.Context) (string, error)

	// GetAllItems returns every backlog item, ordered by item number.
	GetAllItems(ctx context.Context) ([]BacklogItem, error)
}

// BacklogItem is one work item as the source of truth records it.
type BacklogItem struct {
	Number  int
	Title   string
	Status  string // planned, in_progress, blocked, complete
	HasSpec bool
}
