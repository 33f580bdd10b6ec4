package cli

import (
	"io"
	"testing"
)

// TestQueueCmdStructure verifies the queue subcommands are registered with
// metadata.
func TestQueueCmdStructure(t *testing.T) {
	queue := QueueCmd()

	want := map[string]bool{"list": false, "show": false, "add": false, "stats": false, "cleanup": false}
	for _, sub := range queue.Commands() {
		name := sub.Name()
		if _, ok := want[name]; !ok {
			continue
		}
		want[name] = true
		if sub.Short == "" {
			t.Errorf("queue %s should have a Short description", name)
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("queue should register a %s subcommand", name)
		}
	}
}

func TestQueueAddRequiresKind(t *testing.T) {
	queue := QueueCmd()
	queue.SetOut(io.Discard)
	queue.SetErr(io.Discard)
	queue.SetArgs([]string{"add", "builder"})
	if err := queue.Execute(); err == nil {
		t.Error("expected an error when --kind is missing")
	}
}
