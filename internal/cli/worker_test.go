package cli

import (
	"testing"
	"time"
)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{3 * time.Minute, "3m"},
		{59 * time.Minute, "59m"},
		{90 * time.Minute, "1.5h"},
		{36 * time.Hour, "1.5d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// TestWorkerCmdStructure verifies the worker subcommands are registered with
// metadata.
func TestWorkerCmdStructure(t *testing.T) {
	worker := WorkerCmd()

	want := map[string]bool{"list": false, "hung": false, "kill": false, "cleanup": false}
	for _, sub := range worker.Commands() {
		name := sub.Name()
		if _, ok := want[name]; !ok {
			continue
		}
		want[name] = true
		if sub.Short == "" {
			t.Errorf("worker %s should have a Short description", name)
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("worker should register a %s subcommand", name)
		}
	}
}
