package detection

import (
	"strings"
	"testing"
	"time"
)

func TestSelectAction_HealthyNeedsNothing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{PID: 10, Status: "running", SpawnedAt: now.Add(-5 * time.Minute)}

	action := SelectAction(s, 30*time.Minute, now)
	if action.Type != ActionNone {
		t.Errorf("expected ActionNone, got %q", action.Type)
	}
	if action.PID != 10 {
		t.Errorf("expected pid 10, got %d", action.PID)
	}
}

func TestSelectAction_FinishedNeedsNothing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{PID: 11, Status: "completed", SpawnedAt: now.Add(-5 * time.Hour)}

	if action := SelectAction(s, 30*time.Minute, now); action.Type != ActionNone {
		t.Errorf("expected ActionNone for finished worker, got %q", action.Type)
	}
}

func TestSelectAction_HungNotifies(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{PID: 12, Role: "builder", TaskID: "TASK-001", Status: "running", SpawnedAt: now.Add(-45 * time.Minute)}

	action := SelectAction(s, 30*time.Minute, now)
	if action.Type != ActionNotify {
		t.Fatalf("expected ActionNotify within %dx timeout, got %q", EscalateMultiple, action.Type)
	}
	if !strings.Contains(action.Message, "TASK-001") {
		t.Errorf("message should name the task: %q", action.Message)
	}
}

func TestSelectAction_LongHangEscalates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{PID: 13, Role: "builder", TaskID: "TASK-002", Status: "running", SpawnedAt: now.Add(-3 * time.Hour)}

	action := SelectAction(s, 30*time.Minute, now)
	if action.Type != ActionEscalate {
		t.Fatalf("expected ActionEscalate past %dx timeout, got %q", EscalateMultiple, action.Type)
	}
	if action.Message == "" {
		t.Error("escalation should carry a message")
	}
}
