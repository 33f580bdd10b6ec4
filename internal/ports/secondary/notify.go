package secondary

import "context"

// Notification severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notifier delivers fire-and-forget notifications. Delivery failures are
// logged by callers and never retried.
type Notifier interface {
	Notify(ctx context.Context, severity, title, message string) error
}
