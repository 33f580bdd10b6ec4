// Package backlog contains the pure selection logic over backlog items: which
// items need a spec written and which are ready to implement. The backlog
// itself is owned by an external source of truth and is read-only here.
package backlog

import "sort"

// Item statuses as the source of truth records them.
const (
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusComplete   = "complete"
)

// Item is one backlog entry. Number orders items: lower numbers are older.
type Item struct {
	Number  int
	Title   string
	Status  string
	HasSpec bool
}

// MissingSpecs returns planned items without a spec, oldest first. Blocked
// and complete items never need spec work.
func MissingSpecs(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.Status == StatusPlanned && !it.HasSpec {
			out = append(out, it)
		}
	}
	sortByNumber(out)
	return out
}

// Implementables returns planned items that already have a spec, oldest
// first. These are the candidates for implementation batches.
func Implementables(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.Status == StatusPlanned && it.HasSpec {
			out = append(out, it)
		}
	}
	sortByNumber(out)
	return out
}

// Oldest returns the lowest-numbered item, false when the set is empty.
func Oldest(items []Item) (Item, bool) {
	if len(items) == 0 {
		return Item{}, false
	}
	best := items[0]
	for _, it := range items[1:] {
		if it.Number < best.Number {
			best = it
		}
	}
	return best, true
}

// CountByStatus tallies items per status for reporting.
func CountByStatus(items []Item) map[string]int {
	out := make(map[string]int)
	for _, it := range items {
		out[it.Status]++
	}
	return out
}

func sortByNumber(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })
}
