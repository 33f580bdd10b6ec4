// Package notify contains operator-facing notification sinks.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/example/foreman/internal/ports/secondary"
)

// ConsoleNotifier renders alerts to a terminal stream and mirrors them into
// the structured log so they survive terminal scrollback.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

// NewConsoleNotifier creates a console sink. A nil writer defaults to stderr.
func NewConsoleNotifier(out io.Writer, log zerolog.Logger) *ConsoleNotifier {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleNotifier{out: out, log: log}
}

// Notify writes one alert line and logs it at a level matching the severity.
func (n *ConsoleNotifier) Notify(ctx context.Context, severity, title, message string) error {
	n.mu.Lock()
	_, writeErr := fmt.Fprintf(n.out, "%s %s: %s\n", severityBadge(severity), title, message)
	n.mu.Unlock()

	var event *zerolog.Event
	switch severity {
	case secondary.SeverityCritical:
		event = n.log.Error()
	case secondary.SeverityWarning:
		event = n.log.Warn()
	default:
		event = n.log.Info()
	}
	event.Str("severity", severity).Str("title", title).Msg(message)

	if writeErr != nil {
		return fmt.Errorf("failed to write notification: %w", writeErr)
	}
	return nil
}

func severityBadge(severity string) string {
	switch severity {
	case secondary.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("[CRITICAL]")
	case secondary.SeverityWarning:
		return color.New(color.FgYellow).Sprint("[WARNING]")
	default:
		return color.New(color.FgCyan).Sprint("[INFO]")
	}
}

// Ensure ConsoleNotifier implements the interface
var _ secondary.Notifier = (*ConsoleNotifier)(nil)
