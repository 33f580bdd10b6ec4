// Package detection provides hang classification for supervised worker
// processes. Classification is purely advisory: it never mutates records and
// never terminates anything. Termination is a separate, explicit operation.
package detection

import "time"

// Health constants for process classification.
const (
	HealthRunning  = "running"  // alive and within the timeout
	HealthHung     = "hung"     // alive but older than the timeout
	HealthFinished = "finished" // reached a terminal status
	HealthUnknown  = "unknown"  // unrecognized status
)

// Sample is the minimal view of a process record needed for classification.
type Sample struct {
	PID       int
	TaskID    string
	Role      string
	Status    string // spawned|running|completed|failed|killed
	SpawnedAt time.Time
	StartedAt time.Time // zero when the worker never confirmed startup
}

// Age returns how long the process has been live, measured from startup
// confirmation when available, otherwise from spawn time.
func Age(s Sample, now time.Time) time.Duration {
	ref := s.SpawnedAt
	if !s.StartedAt.IsZero() {
		ref = s.StartedAt
	}
	if ref.IsZero() {
		return 0
	}
	return now.Sub(ref)
}

// Classify maps a process sample to a health outcome. A non-positive timeout
// disables hang classification.
func Classify(s Sample, timeout time.Duration, now time.Time) string {
	switch s.Status {
	case "completed", "failed", "killed":
		return HealthFinished
	case "spawned", "running":
		if timeout > 0 && Age(s, now) > timeout {
			return HealthHung
		}
		return HealthRunning
	default:
		return HealthUnknown
	}
}

// FilterHung returns the samples classified as hung, preserving input order.
func FilterHung(samples []Sample, timeout time.Duration, now time.Time) []Sample {
	var out []Sample
	for _, s := range samples {
		if Classify(s, timeout, now) == HealthHung {
			out = append(out, s)
		}
	}
	return out
}
