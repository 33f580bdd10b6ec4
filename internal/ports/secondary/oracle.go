package secondary

import "context"

// IndependenceOracle predicts whether two work items have disjoint file
// footprints and may therefore run in parallel. It is a black box: accuracy
// is the oracle's responsibility, and the coordinator treats its verdict as
// authoritative.
type IndependenceOracle interface {
	// Independent reports whether the two items can safely run concurrently.
	// An error means the oracle could not be consulted, not that the items
	// conflict.
	Independent(ctx context.Context, a, b OracleQuery) (bool, error)
}

// OracleQuery identifies one work item for the oracle.
type OracleQuery struct {
	Key        string // e.g. "impl-12"
	ItemNumber int
	Title      string
}
