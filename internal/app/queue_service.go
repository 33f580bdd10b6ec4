package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/foreman/internal/core/dispatch"
	"github.com/example/foreman/internal/core/stats"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// QueueServiceImpl implements the QueueService interface.
type QueueServiceImpl struct {
	taskRepo secondary.TaskRepository
	events   secondary.EventRepository
}

// NewQueueService creates a new QueueService with injected dependencies.
// events is optional; when nil, no audit trail is written.
func NewQueueService(taskRepo secondary.TaskRepository, events secondary.EventRepository) *QueueServiceImpl {
	return &QueueServiceImpl{
		taskRepo: taskRepo,
		events:   events,
	}
}

// Enqueue creates a new queued task.
func (s *QueueServiceImpl) Enqueue(ctx context.Context, req primary.EnqueueRequest) (*primary.Task, error) {
	role := dispatch.Role(req.Recipient)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown recipient role %q", req.Recipient)
	}
	kind := dispatch.Kind(req.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown task kind %q", req.Kind)
	}
	if expected, _ := dispatch.KindFor(role); kind != expected {
		return nil, fmt.Errorf("role %s does not handle %s tasks", role, kind)
	}

	priority := req.Priority
	if priority == 0 {
		priority = dispatch.DefaultPriority(kind)
	}
	if priority < 0 {
		return nil, fmt.Errorf("priority must not be negative")
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = "TASK-" + uuid.NewString()
	}

	record := &secondary.TaskRecord{
		ID:        taskID,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Kind:      req.Kind,
		Priority:  priority,
		Payload:   req.Payload,
	}
	if err := s.taskRepo.Enqueue(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	created, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch created task: %w", err)
	}

	// Log enqueue
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      req.Sender,
			EntityType: "task",
			EntityID:   taskID,
			Action:     "enqueued",
			Detail:     fmt.Sprintf("recipient %s priority %d", req.Recipient, priority),
		})
	}

	return s.recordToTask(created), nil
}

// Dequeue atomically claims the most urgent queued task for a recipient.
func (s *QueueServiceImpl) Dequeue(ctx context.Context, recipient string) (*primary.Task, error) {
	if !dispatch.Role(recipient).Valid() {
		return nil, fmt.Errorf("unknown recipient role %q", recipient)
	}

	record, err := s.taskRepo.Claim(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if record == nil {
		return nil, nil
	}

	// Log claim
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      recipient,
			EntityType: "task",
			EntityID:   record.ID,
			Action:     "claimed",
		})
	}

	return s.recordToTask(record), nil
}

// GetTask retrieves a task by ID.
func (s *QueueServiceImpl) GetTask(ctx context.Context, taskID string) (*primary.Task, error) {
	record, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.recordToTask(record), nil
}

// ListTasks lists tasks with optional filters.
func (s *QueueServiceImpl) ListTasks(ctx context.Context, filters primary.TaskFilters) ([]*primary.Task, error) {
	records, err := s.taskRepo.List(ctx, secondary.TaskFilters{
		Recipient: filters.Recipient,
		Status:    filters.Status,
		Kind:      filters.Kind,
		Limit:     filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*primary.Task, len(records))
	for i, r := range records {
		tasks[i] = s.recordToTask(r)
	}
	return tasks, nil
}

// MarkStarted records that work on the task began.
func (s *QueueServiceImpl) MarkStarted(ctx context.Context, taskID string) error {
	return s.taskRepo.MarkStarted(ctx, taskID)
}

// MarkCompleted finishes a task with its duration.
func (s *QueueServiceImpl) MarkCompleted(ctx context.Context, taskID string, durationMs int64) error {
	if err := s.taskRepo.MarkCompleted(ctx, taskID, durationMs); err != nil {
		return err
	}
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "queue",
			EntityType: "task",
			EntityID:   taskID,
			Action:     "completed",
			Detail:     fmt.Sprintf("duration %dms", durationMs),
		})
	}
	return nil
}

// MarkFailed finishes a task with an error.
func (s *QueueServiceImpl) MarkFailed(ctx context.Context, taskID string, errMsg string) error {
	if err := s.taskRepo.MarkFailed(ctx, taskID, errMsg); err != nil {
		return err
	}
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "queue",
			EntityType: "task",
			EntityID:   taskID,
			Action:     "failed",
			Detail:     errMsg,
		})
	}
	return nil
}

// Stats summarizes queue depth, per-role performance, and slow tasks.
func (s *QueueServiceImpl) Stats(ctx context.Context) (*primary.QueueStats, error) {
	depth, err := s.taskRepo.QueuedByPriority(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}

	byBand := make(map[string]int, len(stats.Bands()))
	for priority, count := range depth {
		byBand[stats.Band(priority)] += count
	}

	roleRecords, err := s.taskRepo.RoleDurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read role durations: %w", err)
	}

	roles := make([]primary.RoleStats, len(roleRecords))
	for i, r := range roleRecords {
		roles[i] = primary.RoleStats{
			Role:      r.Role,
			Completed: len(r.CompletedMs),
			Failed:    r.FailedCount,
			Running:   r.RunningCount,
			AvgMs:     stats.Mean(r.CompletedMs),
			P50Ms:     stats.Percentile(r.CompletedMs, 50),
			P95Ms:     stats.Percentile(r.CompletedMs, 95),
		}
	}

	slowRecords, err := s.taskRepo.SlowestTasks(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to read slowest tasks: %w", err)
	}

	slowest := make([]primary.SlowTask, len(slowRecords))
	for i, r := range slowRecords {
		slowest[i] = primary.SlowTask{
			TaskID:     r.ID,
			Recipient:  r.Recipient,
			Kind:       r.Kind,
			DurationMs: r.DurationMs,
		}
	}

	return &primary.QueueStats{
		DepthByBand: byBand,
		Roles:       roles,
		Slowest:     slowest,
	}, nil
}

// Cleanup deletes terminal tasks older than the retention cutoff.
func (s *QueueServiceImpl) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	deleted, err := s.taskRepo.CleanupOld(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	if deleted > 0 && s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "queue",
			EntityType: "queue",
			EntityID:   "cleanup",
			Action:     "purged",
			Detail:     fmt.Sprintf("%d tasks past %d day retention", deleted, retentionDays),
		})
	}
	return deleted, nil
}

// Helper methods

func (s *QueueServiceImpl) recordToTask(r *secondary.TaskRecord) *primary.Task {
	return &primary.Task{
		ID:          r.ID,
		Sender:      r.Sender,
		Recipient:   r.Recipient,
		Kind:        r.Kind,
		Priority:    r.Priority,
		Payload:     r.Payload,
		Status:      r.Status,
		Error:       r.Error,
		CreatedAt:   formatTime(r.CreatedAt),
		StartedAt:   formatTime(r.StartedAt),
		CompletedAt: formatTime(r.CompletedAt),
		DurationMs:  r.DurationMs,
	}
}

// formatTime renders a timestamp for the port boundary; zero times render
// empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Ensure QueueServiceImpl implements the interface.
var _ primary.QueueService = (*QueueServiceImpl)(nil)
