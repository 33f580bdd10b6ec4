package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/foreman/internal/core/backlog"
	"github.com/example/foreman/internal/core/detection"
	"github.com/example/foreman/internal/core/dispatch"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// Work loop states.
const (
	statePolling      = "polling"
	stateCoordinating = "coordinating"
	stateMonitoring   = "monitoring"
	statePersisting   = "persisting"
	stateSleeping     = "sleeping"
	stateShuttingDown = "shutting-down"
)

// maxBatchSize caps how many implementable items one coordination attempt
// considers.
const maxBatchSize = 3

// Periodic maintenance job names, used as keys in the persisted snapshot.
const (
	jobQueueCleanup = "queue-cleanup"
	jobReplan       = "replan"
)

// ControllerOptions configures the work loop.
type ControllerOptions struct {
	PollInterval        time.Duration
	SpecBacklogTarget   int
	MaxParallel         int
	TaskTimeout         time.Duration // 0 disables timeout alerts
	MaintenanceInterval time.Duration // 0 disables periodic maintenance
	RetentionDays       int
	MaxCycles           int // 0 runs until the context is cancelled
}

// Controller is the single-threaded work loop. One cycle completes fully
// before the next begins; true concurrency exists only among the spawned
// worker processes.
type Controller struct {
	queue       primary.QueueService
	supervisor  primary.SupervisorService
	coordinator primary.CoordinatorService
	backlogSrc  secondary.BacklogSource
	snapshots   secondary.SnapshotStore
	notifier    secondary.Notifier
	logger      zerolog.Logger
	options     ControllerOptions

	state       string
	snap        *secondary.ControllerSnapshot
	cachedItems []backlog.Item
	alerted     map[string]string
}

// NewController creates the work loop controller.
func NewController(
	queue primary.QueueService,
	supervisor primary.SupervisorService,
	coordinator primary.CoordinatorService,
	backlogSrc secondary.BacklogSource,
	snapshots secondary.SnapshotStore,
	notifier secondary.Notifier,
	logger zerolog.Logger,
	options ControllerOptions,
) *Controller {
	return &Controller{
		queue:       queue,
		supervisor:  supervisor,
		coordinator: coordinator,
		backlogSrc:  backlogSrc,
		snapshots:   snapshots,
		notifier:    notifier,
		logger:      logger,
		options:     options,
		alerted:     make(map[string]string),
	}
}

// Run executes the work loop until the context is cancelled or MaxCycles is
// reached. In-flight workers are left running on shutdown; only scheduling
// stops.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.loadSnapshot(ctx); err != nil {
		return err
	}

	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			return c.shutdown(ctx)
		}

		start := time.Now()
		c.runCycle(ctx)

		if c.options.MaxCycles > 0 && cycle >= c.options.MaxCycles {
			return c.shutdown(ctx)
		}

		c.setState(stateSleeping)
		sleep := c.options.PollInterval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return c.shutdown(ctx)
		case <-time.After(sleep):
		}
	}
}

// runCycle executes one full pass. A panic inside a cycle is caught here so
// the loop survives to the next cycle.
func (c *Controller) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("state", c.state).Msg("cycle panicked")
		}
	}()

	items := c.poll(ctx)

	c.setState(stateCoordinating)
	c.dispatchSpecs(ctx, items)
	c.runMaintenance(ctx)
	c.dispatchImplementables(ctx, items)

	c.setState(stateMonitoring)
	c.monitor(ctx)
	c.alertTimeouts(ctx)

	c.setState(statePersisting)
	c.persist(ctx)
}

// loadSnapshot restores controller state after a restart. Recovered in-flight
// tasks are not assumed alive; the first monitoring pass re-probes each one.
func (c *Controller) loadSnapshot(ctx context.Context) error {
	snap, err := c.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		snap = secondary.NewControllerSnapshot()
	}
	c.snap = snap

	c.logger.Info().
		Int("active_tasks", len(snap.ActiveTasks)).
		Msg("controller started")
	return nil
}

// poll refreshes the backlog view. An unchanged version reuses the cached
// item list; dispatch still runs every cycle so failed spawns retry
// naturally.
func (c *Controller) poll(ctx context.Context) []backlog.Item {
	c.setState(statePolling)

	version, err := c.backlogSrc.Version(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("backlog version unavailable")
		return c.cachedItems
	}
	if version == c.snap.LastBacklogVersion && c.cachedItems != nil {
		return c.cachedItems
	}

	raw, err := c.backlogSrc.GetAllItems(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("backlog unreadable")
		return c.cachedItems
	}

	items := make([]backlog.Item, len(raw))
	for i, it := range raw {
		items[i] = backlog.Item{
			Number:  it.Number,
			Title:   it.Title,
			Status:  it.Status,
			HasSpec: it.HasSpec,
		}
	}
	c.cachedItems = items
	c.snap.LastBacklogVersion = version
	return items
}

// dispatchSpecs keeps the spec look-ahead buffer full: architect workers are
// dispatched for the oldest spec-less items until the target number of spec
// tasks is in flight.
func (c *Controller) dispatchSpecs(ctx context.Context, items []backlog.Item) {
	if c.options.SpecBacklogTarget < 1 {
		return
	}

	inFlight := 0
	for _, at := range c.snap.ActiveTasks {
		if at.Kind == string(dispatch.KindSpec) {
			inFlight++
		}
	}

	for _, item := range backlog.MissingSpecs(items) {
		if inFlight >= c.options.SpecBacklogTarget {
			return
		}
		key := fmt.Sprintf("spec-%d", item.Number)
		if _, tracked := c.snap.ActiveTasks[key]; tracked {
			continue
		}
		if err := c.dispatchWorker(ctx, dispatch.RoleArchitect, key, item.Number, item.Title); err != nil {
			// The item stays eligible; the next cycle is the retry mechanism.
			c.logger.Warn().Err(err).Str("key", key).Msg("spec dispatch failed")
			continue
		}
		inFlight++
	}
}

// runMaintenance executes the low-frequency jobs, each at most once per
// maintenance interval even across restarts.
func (c *Controller) runMaintenance(ctx context.Context) {
	c.runPeriodic(ctx, jobQueueCleanup, func(ctx context.Context) error {
		deleted, err := c.queue.Cleanup(ctx, c.options.RetentionDays)
		if err != nil {
			return err
		}
		if deleted > 0 {
			c.logger.Info().Int("deleted", deleted).Msg("queue cleanup")
		}
		return nil
	})

	c.runPeriodic(ctx, jobReplan, func(ctx context.Context) error {
		if _, tracked := c.snap.ActiveTasks[jobReplan]; tracked {
			return nil
		}
		return c.dispatchWorker(ctx, dispatch.RolePlanner, jobReplan, 0, "periodic replanning")
	})
}

// runPeriodic runs one named job when its interval has elapsed. The run
// timestamp is stamped before the outcome is known so a failing job cannot
// run more than once per interval either.
func (c *Controller) runPeriodic(ctx context.Context, name string, job func(context.Context) error) {
	if c.options.MaintenanceInterval <= 0 {
		return
	}
	last := c.snap.LastPeriodicRuns[name]
	if !last.IsZero() && time.Since(last) < c.options.MaintenanceInterval {
		return
	}
	c.snap.LastPeriodicRuns[name] = time.Now().UTC()

	if err := job(ctx); err != nil {
		c.logger.Warn().Err(err).Str("job", name).Msg("periodic job failed")
	}
}

// dispatchImplementables builds a batch of up to maxBatchSize specced items
// and hands it to the coordinator. When the independence check rejects the
// batch, the single oldest implementable dispatches alone.
func (c *Controller) dispatchImplementables(ctx context.Context, items []backlog.Item) {
	flagged := make(map[string]bool)
	if flags, err := c.coordinator.Flags(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("merge flags unavailable")
	} else {
		for _, f := range flags {
			flagged[f.TaskKey] = true
		}
	}

	var candidates []primary.BatchCandidate
	for _, item := range backlog.Implementables(items) {
		key := fmt.Sprintf("impl-%d", item.Number)
		if _, tracked := c.snap.ActiveTasks[key]; tracked {
			continue
		}
		if flagged[key] {
			continue
		}
		candidates = append(candidates, primary.BatchCandidate{
			Key:        key,
			ItemNumber: item.Number,
			Title:      item.Title,
		})
		if len(candidates) == maxBatchSize {
			break
		}
	}
	if len(candidates) == 0 {
		return
	}

	verdict, err := c.coordinator.CheckIndependence(ctx, candidates)
	if err != nil {
		c.logger.Warn().Err(err).Msg("independence check failed")
		return
	}
	if !verdict.Valid && len(candidates) > 1 {
		c.logger.Info().Str("reason", verdict.Reason).Msg("batch rejected, dispatching oldest item alone")
		candidates = candidates[:1]
	}

	result, err := c.coordinator.ExecuteBatch(ctx, primary.ExecuteBatchRequest{
		Candidates:  candidates,
		MaxParallel: c.options.MaxParallel,
		AutoMerge:   false,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("batch execution failed")
		return
	}

	for _, d := range result.Dispatched {
		c.track(d.Key, d.TaskID, d.PID, string(dispatch.KindImplement), d.ItemNumber)
	}
}

// monitor re-probes every tracked task. Finished workers close out their
// queue tasks, and finished implementation contexts reconcile into the trunk
// one at a time.
func (c *Controller) monitor(ctx context.Context) {
	for _, key := range sortedTaskKeys(c.snap.ActiveTasks) {
		at := c.snap.ActiveTasks[key]

		status, err := c.supervisor.CheckStatus(ctx, at.PID)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Int("pid", at.PID).Msg("process record lost")
			if markErr := c.queue.MarkFailed(ctx, at.TaskID, "process record lost"); markErr != nil {
				c.logger.Warn().Err(markErr).Str("task", at.TaskID).Msg("failed to mark task failed")
			}
			c.untrack(key)
			continue
		}

		switch status {
		case "completed":
			duration := time.Since(at.StartedAt).Milliseconds()
			if err := c.queue.MarkCompleted(ctx, at.TaskID, duration); err != nil {
				c.logger.Warn().Err(err).Str("task", at.TaskID).Msg("failed to mark task completed")
			}
			if at.Kind == string(dispatch.KindImplement) {
				c.reconcile(ctx, key, at)
			}
			c.untrack(key)

		case "failed", "killed":
			if err := c.queue.MarkFailed(ctx, at.TaskID, "worker "+status); err != nil {
				c.logger.Warn().Err(err).Str("task", at.TaskID).Msg("failed to mark task failed")
			}
			// Release the context so the item can retry with a fresh one.
			if err := c.supervisor.Cleanup(ctx, at.PID, true); err != nil {
				c.logger.Warn().Err(err).Int("pid", at.PID).Msg("cleanup failed")
			}
			if c.notifier != nil {
				_ = c.notifier.Notify(ctx, secondary.SeverityWarning, "worker "+status,
					fmt.Sprintf("%s (task %s, pid %d)", key, at.TaskID, at.PID))
			}
			c.untrack(key)
		}
	}
}

// reconcile merges one finished implementation context into the trunk.
// Flagging on exhausted retries is handled inside the coordinator.
func (c *Controller) reconcile(ctx context.Context, key string, at secondary.ActiveTask) {
	result, err := c.coordinator.Reconcile(ctx, at.PID)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("reconciliation failed")
		return
	}
	if result.Merged {
		c.logger.Info().
			Str("key", key).
			Int("attempts", result.Attempts).
			Msg("context merged")
	}
}

// alertTimeouts raises an advisory notification for tracked tasks older than
// the timeout, escalating to critical once a task doubles it. Nothing is
// killed; termination stays a separate, explicit operation.
func (c *Controller) alertTimeouts(ctx context.Context) {
	if c.options.TaskTimeout <= 0 || c.notifier == nil {
		return
	}

	now := time.Now()
	for _, key := range sortedTaskKeys(c.snap.ActiveTasks) {
		at := c.snap.ActiveTasks[key]
		role := at.Kind
		if r, ok := dispatch.RoleFor(dispatch.Kind(at.Kind)); ok {
			role = string(r)
		}
		action := detection.SelectAction(detection.Sample{
			PID:       at.PID,
			TaskID:    at.TaskID,
			Role:      role,
			Status:    "running",
			StartedAt: at.StartedAt,
		}, c.options.TaskTimeout, now)
		if action.Type == detection.ActionNone || c.alerted[key] == action.Type {
			continue
		}
		c.alerted[key] = action.Type
		severity := secondary.SeverityWarning
		if action.Type == detection.ActionEscalate {
			severity = secondary.SeverityCritical
		}
		_ = c.notifier.Notify(ctx, severity, "task timeout", action.Message)
	}
}

// persist writes the snapshot. A failed write is not fatal; the loop keeps
// its in-memory state and tries again next cycle.
func (c *Controller) persist(ctx context.Context) {
	if err := c.snapshots.Save(ctx, c.snap); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist snapshot")
	}
}

// shutdown persists the final snapshot and stops scheduling. Workers are
// deliberately left running.
func (c *Controller) shutdown(ctx context.Context) error {
	c.setState(stateShuttingDown)
	if err := c.snapshots.Save(context.WithoutCancel(ctx), c.snap); err != nil {
		return fmt.Errorf("failed to persist final snapshot: %w", err)
	}
	c.logger.Info().Int("active_tasks", len(c.snap.ActiveTasks)).Msg("controller stopped")
	return nil
}

// dispatchWorker enqueues a task for one unit of work and spawns its worker.
// A spawn failure fails the task; the backlog item stays eligible.
func (c *Controller) dispatchWorker(ctx context.Context, role dispatch.Role, key string, itemNumber int, title string) error {
	kind, ok := dispatch.KindFor(role)
	if !ok {
		return fmt.Errorf("no task kind for role %s", role)
	}

	payload, err := json.Marshal(map[string]any{
		"key":         key,
		"item_number": itemNumber,
		"title":       title,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", key, err)
	}

	task, err := c.queue.Enqueue(ctx, primary.EnqueueRequest{
		Sender:    "controller",
		Recipient: string(role),
		Kind:      string(kind),
		Payload:   string(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task for %s: %w", key, err)
	}

	proc, err := c.supervisor.Spawn(ctx, primary.SpawnRequest{
		Role:       string(role),
		TaskID:     task.ID,
		ItemNumber: itemNumber,
		Metadata:   key,
	})
	if err != nil {
		if markErr := c.queue.MarkFailed(ctx, task.ID, "spawn failed: "+err.Error()); markErr != nil {
			c.logger.Warn().Err(markErr).Str("task", task.ID).Msg("failed to mark task failed")
		}
		return fmt.Errorf("failed to spawn %s worker for %s: %w", role, key, err)
	}

	if err := c.queue.MarkStarted(ctx, task.ID); err != nil {
		c.logger.Warn().Err(err).Str("task", task.ID).Msg("failed to mark task started")
	}

	c.track(key, task.ID, proc.PID, string(kind), itemNumber)
	return nil
}

// track records one in-flight unit of work in the snapshot.
func (c *Controller) track(key, taskID string, pid int, kind string, itemNumber int) {
	c.snap.ActiveTasks[key] = secondary.ActiveTask{
		TaskID:     taskID,
		PID:        pid,
		Kind:       kind,
		ItemNumber: itemNumber,
		StartedAt:  time.Now().UTC(),
	}
}

// untrack drops one unit of work from the snapshot.
func (c *Controller) untrack(key string) {
	delete(c.snap.ActiveTasks, key)
	delete(c.alerted, key)
}

func (c *Controller) setState(state string) {
	c.state = state
	c.logger.Debug().Str("state", state).Msg("state change")
}

func sortedTaskKeys(m map[string]secondary.ActiveTask) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
