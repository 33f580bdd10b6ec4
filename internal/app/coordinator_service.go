package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/foreman/internal/core/batch"
	"github.com/example/foreman/internal/core/dispatch"
	"github.com/example/foreman/internal/core/ownership"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// defaultMergeRetryLimit bounds reconciliation attempts when the caller does
// not configure one.
const defaultMergeRetryLimit = 3

// workerPollInterval is how often auto-merge batches re-probe a dispatched
// worker while waiting for it to finish.
const workerPollInterval = time.Second

// builderWriteScope is the partition prefix implementation workers write
// under. Batches are rejected before dispatch when the builder role does not
// own it.
const builderWriteScope = "src"

// MergeConflictError describes a reconciliation that exhausted its retries.
type MergeConflictError struct {
	TaskKey     string
	ContextPath string
	Attempts    int
	Cause       error
}

// Error implements the error interface.
func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge of %s (%s) failed after %d attempts: %v",
		e.TaskKey, e.ContextPath, e.Attempts, e.Cause)
}

// Unwrap exposes the underlying merge failure.
func (e *MergeConflictError) Unwrap() error {
	return e.Cause
}

// CoordinatorServiceImpl implements the CoordinatorService interface. All
// trunk reconciliation funnels through one mutex so that no two merges are
// ever in flight at the same time, no matter how many workers finish at once.
type CoordinatorServiceImpl struct {
	queue       primary.QueueService
	supervisor  primary.SupervisorService
	oracle      secondary.IndependenceOracle
	flagRepo    secondary.MergeFlagRepository
	workspace   secondary.WorkspaceAdapter
	processRepo secondary.ProcessRepository
	events      secondary.EventRepository
	notifier    secondary.Notifier
	table       *ownership.Table
	logger      zerolog.Logger
	retryLimit  int

	mergeMu sync.Mutex
}

// NewCoordinatorService creates a new coordinator service. retryLimit bounds
// merge attempts per context; values below 1 fall back to the default. The
// event repository and notifier may be nil.
func NewCoordinatorService(
	queue primary.QueueService,
	supervisor primary.SupervisorService,
	oracle secondary.IndependenceOracle,
	flagRepo secondary.MergeFlagRepository,
	workspace secondary.WorkspaceAdapter,
	processRepo secondary.ProcessRepository,
	events secondary.EventRepository,
	notifier secondary.Notifier,
	table *ownership.Table,
	logger zerolog.Logger,
	retryLimit int,
) *CoordinatorServiceImpl {
	if retryLimit < 1 {
		retryLimit = defaultMergeRetryLimit
	}
	return &CoordinatorServiceImpl{
		queue:       queue,
		supervisor:  supervisor,
		oracle:      oracle,
		flagRepo:    flagRepo,
		workspace:   workspace,
		processRepo: processRepo,
		events:      events,
		notifier:    notifier,
		table:       table,
		logger:      logger,
		retryLimit:  retryLimit,
	}
}

// CheckIndependence consults the disjointness oracle pairwise and the
// ownership table. A candidate set is cleared for parallel execution only
// when every pair is independent; one dependent pair rejects the whole set.
func (s *CoordinatorServiceImpl) CheckIndependence(ctx context.Context, candidates []primary.BatchCandidate) (*primary.IndependenceVerdict, error) {
	flagged, err := s.flagRepo.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read merge flags: %w", err)
	}

	cores := coreCandidates(candidates)
	guard := batch.CanBatch(batch.PlanContext{Candidates: cores, Flagged: flagged})
	if !guard.Allowed {
		return &primary.IndependenceVerdict{Valid: false, Reason: guard.Reason}, nil
	}

	if !s.table.CanWrite(string(dispatch.RoleBuilder), builderWriteScope) {
		return &primary.IndependenceVerdict{
			Valid:  false,
			Reason: fmt.Sprintf("role %s may not write %s", dispatch.RoleBuilder, builderWriteScope),
		}, nil
	}

	verdict := &primary.IndependenceVerdict{}
	for _, pair := range batch.Pairs(cores) {
		a, b := pair[0], pair[1]
		independent, err := s.oracle.Independent(ctx, oracleQuery(a), oracleQuery(b))
		verdict.Consults++
		if err != nil {
			// An unreachable oracle is not a conflict, but without a verdict
			// the candidates cannot be cleared to run together.
			verdict.Reason = fmt.Sprintf("oracle unavailable for %s and %s: %v", a.Key, b.Key, err)
			return verdict, nil
		}
		if !independent {
			verdict.Reason = fmt.Sprintf("%s and %s are not independent", a.Key, b.Key)
			return verdict, nil
		}
	}

	verdict.Valid = true
	verdict.Groups = [][]string{batch.Keys(cores)}
	return verdict, nil
}

// ExecuteBatch runs one coordination attempt. Independent candidates
// dispatch concurrently, each in its own isolated context; a failed
// independence check falls back to sequential processing. With AutoMerge the
// call waits for workers and reconciles their contexts before returning;
// without it, dispatch is fire-and-forget and undispatched candidates stay
// eligible for the next attempt.
func (s *CoordinatorServiceImpl) ExecuteBatch(ctx context.Context, req primary.ExecuteBatchRequest) (*primary.BatchResult, error) {
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates to execute")
	}

	start := time.Now()
	verdict, err := s.CheckIndependence(ctx, req.Candidates)
	if err != nil {
		return nil, err
	}

	b := batch.New("BATCH-"+uuid.NewString(), coreCandidates(req.Candidates))
	mode := batch.StateSequentialDispatch
	if verdict.Valid {
		mode = batch.StateParallelDispatch
	}
	if err := b.Transition(mode); err != nil {
		return nil, err
	}

	width := req.MaxParallel
	if width < 1 {
		width = 1
	}
	if mode == batch.StateSequentialDispatch {
		width = 1
	}

	result := &primary.BatchResult{BatchID: b.ID, Mode: mode}

	if !req.AutoMerge {
		// Fire-and-forget: dispatch one width's worth now. Anything beyond
		// the width stays in the backlog and is picked up by a later attempt.
		for _, c := range req.Candidates[:min(width, len(req.Candidates))] {
			d, err := s.dispatchCandidate(ctx, c)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", c.Key).Msg("dispatch failed")
				continue
			}
			result.Dispatched = append(result.Dispatched, *d)
		}
		s.recordBatch(ctx, result)
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	// Auto-merge: process every candidate in waves of the configured width,
	// waiting each wave out and reconciling its contexts one at a time.
	for waveStart := 0; waveStart < len(req.Candidates); waveStart += width {
		wave := req.Candidates[waveStart:min(waveStart+width, len(req.Candidates))]

		var dispatched []*primary.DispatchedTask
		for _, c := range wave {
			d, err := s.dispatchCandidate(ctx, c)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", c.Key).Msg("dispatch failed")
				continue
			}
			dispatched = append(dispatched, d)
			result.Dispatched = append(result.Dispatched, *d)
		}

		for _, d := range dispatched {
			if _, err := s.waitForExit(ctx, d.PID); err != nil {
				result.DurationMs = time.Since(start).Milliseconds()
				return result, fmt.Errorf("failed waiting for worker %d: %w", d.PID, err)
			}
		}

		for _, d := range dispatched {
			merge := s.reconcileContext(ctx, d.Key, d.TaskID, d.ContextPath)
			result.MergeResults = append(result.MergeResults, *merge)
		}
	}

	if err := b.Transition(batch.StateReconciling); err != nil {
		return nil, err
	}
	final := batch.StateMerged
	for _, m := range result.MergeResults {
		if m.Flagged {
			final = batch.StateFlagged
			break
		}
	}
	if err := b.Transition(final); err != nil {
		return nil, err
	}

	s.recordBatch(ctx, result)
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// Reconcile merges one finished worker's isolated context into the trunk.
// It shares the merge mutex and retry/flag policy with auto-merge batches.
func (s *CoordinatorServiceImpl) Reconcile(ctx context.Context, pid int) (*primary.MergeResult, error) {
	rec, err := s.processRepo.GetByPID(ctx, pid)
	if err != nil {
		return nil, err
	}
	if rec.ContextPath == "" {
		return nil, fmt.Errorf("process %d has no isolated context", pid)
	}
	switch rec.Status {
	case "spawned", "running":
		return nil, fmt.Errorf("process %d has not finished", pid)
	}

	key := rec.Metadata
	if key == "" {
		key = rec.TaskID
	}

	return s.reconcileContext(ctx, key, rec.TaskID, rec.ContextPath), nil
}

// Flags lists reconciliation failures awaiting manual resolution.
func (s *CoordinatorServiceImpl) Flags(ctx context.Context) ([]*primary.MergeFlag, error) {
	records, err := s.flagRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge flags: %w", err)
	}

	out := make([]*primary.MergeFlag, len(records))
	for i, rec := range records {
		out[i] = &primary.MergeFlag{
			TaskKey:     rec.TaskKey,
			TaskID:      rec.TaskID,
			ContextPath: rec.ContextPath,
			Attempts:    rec.Attempts,
			Reason:      rec.Reason,
			FlaggedAt:   formatTime(rec.FlaggedAt),
		}
	}
	return out, nil
}

// ClearFlag re-admits a task key to automatic batching. The flagged context
// is released so the next dispatch starts from a fresh one.
func (s *CoordinatorServiceImpl) ClearFlag(ctx context.Context, taskKey string) error {
	if taskKey == "" {
		return fmt.Errorf("task key is required")
	}

	records, err := s.flagRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list merge flags: %w", err)
	}
	var contextPath string
	for _, rec := range records {
		if rec.TaskKey == taskKey {
			contextPath = rec.ContextPath
			break
		}
	}

	if err := s.flagRepo.Clear(ctx, taskKey); err != nil {
		return fmt.Errorf("failed to clear merge flag: %w", err)
	}

	if contextPath != "" {
		if err := s.workspace.RemoveContext(ctx, contextPath); err != nil {
			s.logger.Warn().Err(err).Str("context", contextPath).Msg("failed to remove flagged context")
		}
	}

	// Log clear
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "coordinator",
			EntityType: "merge_flag",
			EntityID:   taskKey,
			Action:     "cleared",
		})
	}
	return nil
}

// dispatchCandidate enqueues a task for one candidate, carves out its
// isolated context, and spawns a builder worker inside it. Failures unwind:
// a task without a worker is marked failed so the item retries next cycle.
func (s *CoordinatorServiceImpl) dispatchCandidate(ctx context.Context, c primary.BatchCandidate) (*primary.DispatchedTask, error) {
	payload, err := json.Marshal(map[string]any{
		"key":         c.Key,
		"item_number": c.ItemNumber,
		"title":       c.Title,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", c.Key, err)
	}

	task, err := s.queue.Enqueue(ctx, primary.EnqueueRequest{
		Sender:    "coordinator",
		Recipient: string(dispatch.RoleBuilder),
		Kind:      string(dispatch.KindImplement),
		Payload:   string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task for %s: %w", c.Key, err)
	}

	contextPath, err := s.workspace.CreateContext(ctx, c.Key)
	if err != nil {
		_ = s.queue.MarkFailed(ctx, task.ID, "context creation failed: "+err.Error())
		return nil, fmt.Errorf("failed to create context for %s: %w", c.Key, err)
	}

	proc, err := s.supervisor.Spawn(ctx, primary.SpawnRequest{
		Role:       string(dispatch.RoleBuilder),
		TaskID:     task.ID,
		ItemNumber: c.ItemNumber,
		ContextDir: contextPath,
		Metadata:   c.Key,
	})
	if err != nil {
		_ = s.queue.MarkFailed(ctx, task.ID, "spawn failed: "+err.Error())
		if removeErr := s.workspace.RemoveContext(ctx, contextPath); removeErr != nil {
			s.logger.Warn().Err(removeErr).Str("context", contextPath).Msg("failed to remove context after spawn failure")
		}
		return nil, fmt.Errorf("failed to spawn worker for %s: %w", c.Key, err)
	}

	if err := s.queue.MarkStarted(ctx, task.ID); err != nil {
		s.logger.Warn().Err(err).Str("task", task.ID).Msg("failed to mark task started")
	}

	return &primary.DispatchedTask{
		Key:         c.Key,
		TaskID:      task.ID,
		PID:         proc.PID,
		ItemNumber:  c.ItemNumber,
		ContextPath: contextPath,
	}, nil
}

// waitForExit polls a worker until its record turns terminal.
func (s *CoordinatorServiceImpl) waitForExit(ctx context.Context, pid int) (string, error) {
	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	for {
		status, err := s.supervisor.CheckStatus(ctx, pid)
		if err != nil {
			return "", err
		}
		switch status {
		case "completed", "failed", "killed":
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// reconcileContext merges one isolated context into the trunk under the
// global merge mutex. Failures are retried up to the configured bound, the
// trunk is restored between attempts, and exhaustion flags the key for
// manual attention.
func (s *CoordinatorServiceImpl) reconcileContext(ctx context.Context, key, taskID, contextPath string) *primary.MergeResult {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	result := &primary.MergeResult{Key: key, TaskID: taskID}

	var lastErr error
	for attempt := 1; attempt <= s.retryLimit; attempt++ {
		result.Attempts = attempt
		lastErr = s.workspace.MergeToTrunk(ctx, contextPath)
		if lastErr == nil {
			result.Merged = true
			if err := s.workspace.RemoveContext(ctx, contextPath); err != nil {
				s.logger.Warn().Err(err).Str("context", contextPath).Msg("failed to remove merged context")
			}

			// Log merge
			if s.events != nil {
				_ = s.events.Record(ctx, &secondary.EventRecord{
					Actor:      "coordinator",
					EntityType: "task",
					EntityID:   taskID,
					Action:     "merged",
					Detail:     fmt.Sprintf("context %s after %d attempt(s)", key, attempt),
				})
			}
			return result
		}

		if abortErr := s.workspace.AbortMerge(ctx); abortErr != nil {
			s.logger.Warn().Err(abortErr).Str("key", key).Msg("failed to abort merge")
		}
		s.logger.Warn().
			Err(lastErr).
			Str("key", key).
			Int("attempt", attempt).
			Msg("merge attempt failed")
	}

	conflict := &MergeConflictError{
		TaskKey:     key,
		ContextPath: contextPath,
		Attempts:    result.Attempts,
		Cause:       lastErr,
	}
	result.Flagged = true
	result.Error = conflict.Error()

	// The context is kept for manual resolution; the flag excludes the key
	// from automatic batching until cleared.
	if err := s.flagRepo.Flag(ctx, &secondary.MergeFlagRecord{
		TaskKey:     key,
		TaskID:      taskID,
		ContextPath: contextPath,
		Attempts:    result.Attempts,
		Reason:      lastErr.Error(),
	}); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to record merge flag")
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, secondary.SeverityCritical, "merge flagged", conflict.Error())
	}

	// Log flag
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "coordinator",
			EntityType: "merge_flag",
			EntityID:   key,
			Action:     "flagged",
			Detail:     conflict.Error(),
		})
	}

	return result
}

// recordBatch writes the audit entry for one coordination attempt.
func (s *CoordinatorServiceImpl) recordBatch(ctx context.Context, result *primary.BatchResult) {
	if s.events == nil {
		return
	}
	keys := make([]string, len(result.Dispatched))
	for i, d := range result.Dispatched {
		keys[i] = d.Key
	}
	_ = s.events.Record(ctx, &secondary.EventRecord{
		Actor:      "coordinator",
		EntityType: "batch",
		EntityID:   result.BatchID,
		Action:     result.Mode,
		Detail:     fmt.Sprintf("dispatched %d: %v", len(result.Dispatched), keys),
	})
}

// coreCandidates converts port candidates for the batch guards.
func coreCandidates(candidates []primary.BatchCandidate) []batch.Candidate {
	out := make([]batch.Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = batch.Candidate{
			Key:        c.Key,
			ItemNumber: c.ItemNumber,
			Title:      c.Title,
			Role:       string(dispatch.RoleBuilder),
			Kind:       string(dispatch.KindImplement),
			WriteScope: builderWriteScope,
		}
	}
	return out
}

// oracleQuery converts a port candidate to an oracle query.
func oracleQuery(c batch.Candidate) secondary.OracleQuery {
	return secondary.OracleQuery{Key: c.Key, ItemNumber: c.ItemNumber, Title: c.Title}
}

// Verify interface compliance at compile time.
var _ primary.CoordinatorService = (*CoordinatorServiceImpl)(nil)
