// Package batch models one parallel-coordination attempt: a transient set of
// candidate work items moving through checking, dispatch, and reconciliation.
package batch

import (
	"fmt"
	"strings"
)

// Batch lifecycle states.
const (
	StateChecking           = "checking"
	StateParallelDispatch   = "parallel-dispatch"
	StateSequentialDispatch = "sequential-dispatch"
	StateReconciling        = "reconciling"
	StateMerged             = "merged"
	StateFlagged            = "flagged"
)

var transitions = map[string][]string{
	StateChecking:           {StateParallelDispatch, StateSequentialDispatch},
	StateParallelDispatch:   {StateReconciling},
	StateSequentialDispatch: {StateReconciling},
	StateReconciling:        {StateMerged, StateFlagged},
	StateMerged:             {},
	StateFlagged:            {},
}

// Candidate is one work item under consideration for a batch. Key uniquely
// identifies the unit of work (e.g. "impl-12"); WriteScope is the path prefix
// its worker will write, checked against the ownership table before dispatch.
type Candidate struct {
	Key        string
	ItemNumber int
	Title      string
	Role       string
	Kind       string
	WriteScope string
}

// Batch tracks the state of one coordination attempt. Batches are transient:
// created per attempt and discarded once dispatched or fully reconciled.
type Batch struct {
	ID         string
	State      string
	Candidates []Candidate
}

// New starts a batch in the checking state.
func New(id string, candidates []Candidate) *Batch {
	return &Batch{
		ID:         id,
		State:      StateChecking,
		Candidates: append([]Candidate(nil), candidates...),
	}
}

// Transition advances the batch, rejecting moves the lifecycle does not allow.
func (b *Batch) Transition(to string) error {
	for _, allowed := range transitions[b.State] {
		if allowed == to {
			b.State = to
			return nil
		}
	}
	return fmt.Errorf("invalid batch transition %s -> %s", b.State, to)
}

// Terminal reports whether the batch has finished its lifecycle.
func (b *Batch) Terminal() bool {
	return len(transitions[b.State]) == 0
}

// Keys returns the candidate keys in batch order.
func Keys(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Key
	}
	return out
}

// Pairs enumerates every unordered candidate pair, the unit of work for the
// disjointness oracle.
func Pairs(candidates []Candidate) [][2]Candidate {
	var out [][2]Candidate
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			out = append(out, [2]Candidate{candidates[i], candidates[j]})
		}
	}
	return out
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// PlanContext provides context for batch admission guards.
type PlanContext struct {
	Candidates []Candidate
	MaxBatch   int
	Flagged    []string // candidate keys excluded after exhausted merge retries
}

// CanBatch evaluates whether a candidate set may enter coordination.
// Rules:
// - At least one candidate
// - No more candidates than the batch limit
// - Candidate keys must be unique
// - No candidate may be flagged for manual intervention
func CanBatch(ctx PlanContext) GuardResult {
	if len(ctx.Candidates) == 0 {
		return GuardResult{Allowed: false, Reason: "no candidates to batch"}
	}

	if ctx.MaxBatch > 0 && len(ctx.Candidates) > ctx.MaxBatch {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("batch size %d exceeds limit %d", len(ctx.Candidates), ctx.MaxBatch),
		}
	}

	seen := make(map[string]bool, len(ctx.Candidates))
	for _, c := range ctx.Candidates {
		if c.Key == "" {
			return GuardResult{Allowed: false, Reason: "candidate with empty key"}
		}
		if seen[c.Key] {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("duplicate candidate %s", c.Key)}
		}
		seen[c.Key] = true
	}

	flagged := make(map[string]bool, len(ctx.Flagged))
	for _, key := range ctx.Flagged {
		flagged[key] = true
	}
	var blocked []string
	for _, c := range ctx.Candidates {
		if flagged[c.Key] {
			blocked = append(blocked, c.Key)
		}
	}
	if len(blocked) > 0 {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("candidate(s) flagged for manual intervention: %s", strings.Join(blocked, ", ")),
		}
	}

	return GuardResult{Allowed: true}
}
