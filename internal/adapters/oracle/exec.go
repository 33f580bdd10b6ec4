// Package oracle contains the exec-based independence oracle. The oracle is
// an external command so teams can plug in anything from a static file-list
// diff to a model-backed analyzer without touching the coordinator.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// ExecOracle consults a configured command once per pair. Protocol: the two
// item keys are the last two arguments, the full item details arrive as JSON
// on stdin, exit 0 means independent, exit 1 means dependent, anything else
// is a consultation failure.
type ExecOracle struct {
	command []string
	timeout time.Duration
}

// NewExecOracle parses the configured command line. A timeout of zero means
// the caller's context is the only bound.
func NewExecOracle(command string, timeout time.Duration) (*ExecOracle, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("oracle command is empty")
	}
	return &ExecOracle{command: fields, timeout: timeout}, nil
}

// oracleInput is the stdin payload: both items in full.
type oracleInput struct {
	A oracleItem `json:"a"`
	B oracleItem `json:"b"`
}

type oracleItem struct {
	Key        string `json:"key"`
	ItemNumber int    `json:"item_number"`
	Title      string `json:"title"`
}

// Independent runs the oracle command for the pair.
func (o *ExecOracle) Independent(ctx context.Context, a, b secondary.OracleQuery) (bool, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	input, err := json.Marshal(oracleInput{
		A: oracleItem{Key: a.Key, ItemNumber: a.ItemNumber, Title: a.Title},
		B: oracleItem{Key: b.Key, ItemNumber: b.ItemNumber, Title: b.Title},
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode oracle input: %w", err)
	}

	args := make([]string, 0, len(o.command)+1)
	args = append(args, o.command[1:]...)
	args = append(args, a.Key, b.Key)

	cmd := exec.CommandContext(ctx, o.command[0], args...)
	cmd.Stdin = bytes.NewReader(input)

	output, err := cmd.CombinedOutput()
	if err == nil {
		return true, nil
	}

	if ctx.Err() != nil {
		return false, fmt.Errorf("oracle timed out for %s vs %s: %w", a.Key, b.Key, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("oracle exited %d for %s vs %s: %s", exitErr.ExitCode(), a.Key, b.Key, strings.TrimSpace(string(output)))
	}
	return false, fmt.Errorf("failed to run oracle: %w", err)
}

// Ensure ExecOracle implements the interface
var _ secondary.IndependenceOracle = (*ExecOracle)(nil)
