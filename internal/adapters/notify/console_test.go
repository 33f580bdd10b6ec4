package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/foreman/internal/adapters/notify"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestConsoleNotifier_WritesAlertLine(t *testing.T) {
	var console, logs bytes.Buffer
	n := notify.NewConsoleNotifier(&console, zerolog.New(&logs))

	err := n.Notify(context.Background(), secondary.SeverityCritical, "task timeout", "TASK-9 running for 2h13m")
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	out := console.String()
	if !strings.Contains(out, "CRITICAL") || !strings.Contains(out, "task timeout") || !strings.Contains(out, "TASK-9") {
		t.Errorf("unexpected console output: %q", out)
	}
	if !strings.Contains(logs.String(), `"severity":"critical"`) {
		t.Errorf("alert missing from structured log: %q", logs.String())
	}
}

func TestConsoleNotifier_SeverityLevels(t *testing.T) {
	tests := []struct {
		severity string
		badge    string
		level    string
	}{
		{secondary.SeverityInfo, "INFO", `"level":"info"`},
		{secondary.SeverityWarning, "WARNING", `"level":"warn"`},
		{secondary.SeverityCritical, "CRITICAL", `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			var console, logs bytes.Buffer
			n := notify.NewConsoleNotifier(&console, zerolog.New(&logs))

			if err := n.Notify(context.Background(), tt.severity, "t", "m"); err != nil {
				t.Fatalf("Notify failed: %v", err)
			}
			if !strings.Contains(console.String(), tt.badge) {
				t.Errorf("expected %s badge, got %q", tt.badge, console.String())
			}
			if !strings.Contains(logs.String(), tt.level) {
				t.Errorf("expected %s, got %q", tt.level, logs.String())
			}
		})
	}
}
