package oracle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/foreman/internal/adapters/oracle"
	"github.com/example/foreman/internal/ports/secondary"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oracle.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write oracle script: %v", err)
	}
	return path
}

var (
	queryA = secondary.OracleQuery{Key: "impl-12", ItemNumber: 12, Title: "Add rate limiter"}
	queryB = secondary.OracleQuery{Key: "impl-13", ItemNumber: 13, Title: "Fix flaky retry"}
)

func TestExecOracle_Independent(t *testing.T) {
	o, err := oracle.NewExecOracle(writeScript(t, "exit 0\n"), 0)
	if err != nil {
		t.Fatalf("NewExecOracle failed: %v", err)
	}

	independent, err := o.Independent(context.Background(), queryA, queryB)
	if err != nil {
		t.Fatalf("Independent failed: %v", err)
	}
	if !independent {
		t.Error("exit 0 should mean independent")
	}
}

func TestExecOracle_Dependent(t *testing.T) {
	o, err := oracle.NewExecOracle(writeScript(t, "exit 1\n"), 0)
	if err != nil {
		t.Fatalf("NewExecOracle failed: %v", err)
	}

	independent, err := o.Independent(context.Background(), queryA, queryB)
	if err != nil {
		t.Fatalf("Independent failed: %v", err)
	}
	if independent {
		t.Error("exit 1 should mean dependent")
	}
}

func TestExecOracle_OtherExitIsError(t *testing.T) {
	o, err := oracle.NewExecOracle(writeScript(t, "echo broken >&2\nexit 2\n"), 0)
	if err != nil {
		t.Fatalf("NewExecOracle failed: %v", err)
	}

	if _, err := o.Independent(context.Background(), queryA, queryB); err == nil {
		t.Error("exit 2 should be a consultation failure, not a verdict")
	}
}

func TestExecOracle_PassesKeysAsArgs(t *testing.T) {
	// The script only succeeds when both keys arrive in order.
	script := writeScript(t, `test "$1" = "impl-12" || exit 2
test "$2" = "impl-13" || exit 2
exit 0
`)
	o, err := oracle.NewExecOracle(script, 0)
	if err != nil {
		t.Fatalf("NewExecOracle failed: %v", err)
	}

	independent, err := o.Independent(context.Background(), queryA, queryB)
	if err != nil {
		t.Fatalf("Independent failed: %v", err)
	}
	if !independent {
		t.Error("keys did not reach the oracle as arguments")
	}
}

func TestExecOracle_PassesDetailsOnStdin(t *testing.T) {
	// grep reads the JSON payload from stdin.
	o, err := oracle.NewExecOracle(writeScript(t, `grep -q '"item_number":12' || exit 2
exit 0
`), 0)
	if err != nil {
		t.Fatalf("NewExecOracle failed: %v", err)
	}

	independent, err := o.Independent(context.Background(), queryA, queryB)
	if err != nil {
		t.Fatalf("Independent failed: %v", err)
	}
	if !independent {
		t.Error("item details did not reach the oracle on stdin")
	}
}

func TestExecOracle_Timeout(t *testing.T) {
	o, err := oracle.NewExecOracle(writeScript(t, "sleep 5\nexit 0\n"), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewExecOracle failed: %v", err)
	}

	if _, err := o.Independent(context.Background(), queryA, queryB); err == nil {
		t.Error("a hanging oracle should time out with an error")
	}
}

func TestNewExecOracle_EmptyCommand(t *testing.T) {
	if _, err := oracle.NewExecOracle("   ", 0); err == nil {
		t.Error("empty oracle command should be rejected")
	}
}
