package detection

import (
	"fmt"
	"time"
)

// Advisory action types for hung workers.
const (
	ActionNone     = "none"     // No action needed
	ActionNotify   = "notify"   // Surface a warning notification
	ActionEscalate = "escalate" // Surface a critical notification
)

// EscalateMultiple is how many timeouts a worker must exceed before the
// advisory severity rises from notify to escalate.
const EscalateMultiple = 2

// Action is an advisory recommendation. Whether to act on it, including
// killing the worker, stays the caller's decision.
type Action struct {
	Type    string // ActionNone, ActionNotify, ActionEscalate
	PID     int
	Message string
}

// SelectAction recommends how to surface a sample's health. Healthy and
// finished workers need nothing; hung workers produce a notification whose
// severity grows with how far past the timeout they are.
func SelectAction(s Sample, timeout time.Duration, now time.Time) Action {
	if Classify(s, timeout, now) != HealthHung {
		return Action{Type: ActionNone, PID: s.PID}
	}

	age := Age(s, now).Round(time.Second)
	if age >= time.Duration(EscalateMultiple)*timeout {
		return Action{
			Type: ActionEscalate,
			PID:  s.PID,
			Message: fmt.Sprintf("worker %d (%s, task %s) has run %s, over %dx the %s timeout",
				s.PID, s.Role, s.TaskID, age, EscalateMultiple, timeout),
		}
	}
	return Action{
		Type: ActionNotify,
		PID:  s.PID,
		Message: fmt.Sprintf("worker %d (%s, task %s) has run %s, past the %s timeout",
			s.PID, s.Role, s.TaskID, age, timeout),
	}
}
