package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/foreman/internal/core/detection"
	"github.com/example/foreman/internal/core/dispatch"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

// killWaitTimeout bounds how long Kill waits for the OS to reap a worker
// after SIGKILL before reporting the process stuck.
const killWaitTimeout = 5 * time.Second

// recentCompletedLimit caps how many finished records ListActive appends
// when asked to include completed workers.
const recentCompletedLimit = 20

// SupervisorServiceImpl implements the SupervisorService interface.
type SupervisorServiceImpl struct {
	processRepo secondary.ProcessRepository
	launcher    secondary.Launcher
	registry    *dispatch.Registry
	workspace   secondary.WorkspaceAdapter
	events      secondary.EventRepository
	logger      zerolog.Logger
	logDir      string
}

// NewSupervisorService creates a new supervisor service. The workspace and
// event repository may be nil; context release and audit logging are then
// skipped. logDir is where worker output files land, empty discards output.
func NewSupervisorService(
	processRepo secondary.ProcessRepository,
	launcher secondary.Launcher,
	registry *dispatch.Registry,
	workspace secondary.WorkspaceAdapter,
	events secondary.EventRepository,
	logger zerolog.Logger,
	logDir string,
) *SupervisorServiceImpl {
	return &SupervisorServiceImpl{
		processRepo: processRepo,
		launcher:    launcher,
		registry:    registry,
		workspace:   workspace,
		events:      events,
		logger:      logger,
		logDir:      logDir,
	}
}

// Spawn launches a worker for a role and records it.
func (s *SupervisorServiceImpl) Spawn(ctx context.Context, req primary.SpawnRequest) (*primary.Process, error) {
	role := dispatch.Role(req.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role: %s", req.Role)
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}

	strategy, ok := s.registry.StrategyFor(role)
	if !ok {
		return nil, fmt.Errorf("no worker command configured for role %s", role)
	}
	if strategy.NeedsContext && req.ContextDir == "" {
		return nil, fmt.Errorf("role %s requires an isolated context", role)
	}

	args := append(strategy.BaseArgs, "--task", req.TaskID)
	args = append(args, req.ExtraArgs...)

	env := []string{"FOREMAN_TASK=" + req.TaskID}
	if req.ItemNumber > 0 {
		env = append(env, fmt.Sprintf("FOREMAN_ITEM=%d", req.ItemNumber))
	}

	var logPath string
	if s.logDir != "" {
		if err := os.MkdirAll(s.logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logPath = filepath.Join(s.logDir, req.TaskID+".log")
	}

	windowName := string(role)
	if req.ItemNumber > 0 {
		windowName = fmt.Sprintf("%s-%d", role, req.ItemNumber)
	}

	handle, err := s.launcher.Launch(ctx, secondary.LaunchSpec{
		Command:    strategy.Command,
		Args:       args,
		Dir:        req.ContextDir,
		Env:        env,
		LogPath:    logPath,
		WindowName: windowName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s worker: %w", role, err)
	}

	rec := &secondary.ProcessRecord{
		PID:         handle.PID(),
		Role:        string(role),
		TaskID:      req.TaskID,
		TaskKind:    string(strategy.Kind),
		ItemNumber:  req.ItemNumber,
		Command:     strings.Join(append([]string{strategy.Command}, args...), " "),
		ContextPath: req.ContextDir,
		Metadata:    req.Metadata,
	}
	if err := s.processRepo.Create(ctx, rec); err != nil {
		// An unrecorded worker would never be supervised again.
		_ = handle.Kill()
		return nil, fmt.Errorf("failed to record process: %w", err)
	}

	if handle.IsAlive() {
		_ = s.processRepo.MarkRunning(ctx, handle.PID())
	}

	created, err := s.processRepo.GetByPID(ctx, handle.PID())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve created process: %w", err)
	}

	s.logger.Info().
		Int("pid", created.PID).
		Str("role", created.Role).
		Str("task", created.TaskID).
		Msg("worker spawned")

	// Log spawn
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "supervisor",
			EntityType: "process",
			EntityID:   strconv.Itoa(created.PID),
			Action:     "spawned",
			Detail:     fmt.Sprintf("role %s task %s", created.Role, created.TaskID),
		})
	}

	return recordToProcess(created), nil
}

// CheckStatus probes one process and returns its current status. Records
// whose OS process has vanished are reclassified as completed.
func (s *SupervisorServiceImpl) CheckStatus(ctx context.Context, pid int) (string, error) {
	rec, err := s.processRepo.GetByPID(ctx, pid)
	if err != nil {
		return "", err
	}

	switch rec.Status {
	case "completed", "failed", "killed":
		return rec.Status, nil
	}

	handle := s.launcher.Find(pid)
	if handle.IsAlive() {
		if rec.Status == "spawned" {
			if err := s.processRepo.MarkRunning(ctx, pid); err != nil {
				return "", fmt.Errorf("failed to mark process running: %w", err)
			}
		}
		return "running", nil
	}

	// The worker exited between polls. The exit code is unobservable here,
	// so the record closes clean.
	if err := s.processRepo.MarkCompleted(ctx, pid, 0); err != nil {
		return "", fmt.Errorf("failed to reconcile exited process: %w", err)
	}

	// Log reconcile
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "supervisor",
			EntityType: "process",
			EntityID:   strconv.Itoa(pid),
			Action:     "completed",
			Detail:     "reconciled after exit",
		})
	}

	return "completed", nil
}

// ListActive returns live process records, reconciling any whose OS process
// has exited along the way.
func (s *SupervisorServiceImpl) ListActive(ctx context.Context, includeCompleted bool) ([]*primary.Process, error) {
	records, err := s.processRepo.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live processes: %w", err)
	}

	out := make([]*primary.Process, 0, len(records))
	for _, rec := range records {
		if !s.launcher.Find(rec.PID).IsAlive() {
			_ = s.processRepo.MarkCompleted(ctx, rec.PID, 0)
			continue
		}
		out = append(out, recordToProcess(rec))
	}

	if includeCompleted {
		recent, err := s.processRepo.List(ctx, secondary.ProcessFilters{Limit: recentCompletedLimit})
		if err != nil {
			return nil, fmt.Errorf("failed to list recent processes: %w", err)
		}
		for _, rec := range recent {
			switch rec.Status {
			case "completed", "failed", "killed":
				out = append(out, recordToProcess(rec))
			}
		}
	}

	return out, nil
}

// DetectHung returns live records older than the timeout without touching
// them.
func (s *SupervisorServiceImpl) DetectHung(ctx context.Context, timeout time.Duration) ([]*primary.Process, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}

	records, err := s.processRepo.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list live processes: %w", err)
	}

	byPID := make(map[int]*secondary.ProcessRecord, len(records))
	samples := make([]detection.Sample, 0, len(records))
	for _, rec := range records {
		byPID[rec.PID] = rec
		samples = append(samples, detection.Sample{
			PID:       rec.PID,
			TaskID:    rec.TaskID,
			Role:      rec.Role,
			Status:    rec.Status,
			SpawnedAt: rec.SpawnedAt,
			StartedAt: rec.StartedAt,
		})
	}

	hung := detection.FilterHung(samples, timeout, time.Now())
	out := make([]*primary.Process, 0, len(hung))
	for _, sample := range hung {
		out = append(out, recordToProcess(byPID[sample.PID]))
	}

	return out, nil
}

// Kill forcibly terminates a worker and records the kill.
func (s *SupervisorServiceImpl) Kill(ctx context.Context, pid int) error {
	rec, err := s.processRepo.GetByPID(ctx, pid)
	if err != nil {
		return err
	}

	switch rec.Status {
	case "completed", "failed", "killed":
		return fmt.Errorf("process %d already finished with status %s", pid, rec.Status)
	}

	handle := s.launcher.Find(pid)
	if !handle.IsAlive() {
		_ = s.processRepo.MarkCompleted(ctx, pid, 0)
		return fmt.Errorf("process %d already exited", pid)
	}

	if err := handle.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	if _, err := handle.Wait(killWaitTimeout); err != nil {
		return fmt.Errorf("process %d did not exit after kill: %w", pid, err)
	}

	if err := s.processRepo.MarkKilled(ctx, pid); err != nil {
		return fmt.Errorf("failed to record kill: %w", err)
	}

	s.logger.Info().
		Int("pid", pid).
		Str("task", rec.TaskID).
		Msg("worker killed")

	// Log kill
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "supervisor",
			EntityType: "process",
			EntityID:   strconv.Itoa(pid),
			Action:     "killed",
			Detail:     fmt.Sprintf("role %s task %s", rec.Role, rec.TaskID),
		})
	}

	return nil
}

// Cleanup finalizes a record and optionally releases its isolated context.
// A worker that is still alive must be killed first.
func (s *SupervisorServiceImpl) Cleanup(ctx context.Context, pid int, releaseContext bool) error {
	rec, err := s.processRepo.GetByPID(ctx, pid)
	if err != nil {
		return err
	}

	switch rec.Status {
	case "spawned", "running":
		if s.launcher.Find(pid).IsAlive() {
			return fmt.Errorf("process %d is still alive, kill it before cleanup", pid)
		}
		if err := s.processRepo.MarkCompleted(ctx, pid, 0); err != nil {
			return fmt.Errorf("failed to reconcile exited process: %w", err)
		}
	}

	if releaseContext && rec.ContextPath != "" && s.workspace != nil {
		// Release failures are logged, not returned; the record is already
		// final and the context can be removed by hand.
		if err := s.workspace.RemoveContext(ctx, rec.ContextPath); err != nil {
			s.logger.Warn().
				Err(err).
				Int("pid", pid).
				Str("context", rec.ContextPath).
				Msg("failed to release context")
		}
	}

	// Log cleanup
	if s.events != nil {
		_ = s.events.Record(ctx, &secondary.EventRecord{
			Actor:      "supervisor",
			EntityType: "process",
			EntityID:   strconv.Itoa(pid),
			Action:     "cleaned",
			Detail:     fmt.Sprintf("task %s", rec.TaskID),
		})
	}

	return nil
}

// recordToProcess converts a persistence record to a port Process.
func recordToProcess(rec *secondary.ProcessRecord) *primary.Process {
	return &primary.Process{
		PID:         rec.PID,
		Role:        rec.Role,
		TaskID:      rec.TaskID,
		Kind:        rec.TaskKind,
		ItemNumber:  rec.ItemNumber,
		Status:      rec.Status,
		Command:     rec.Command,
		ContextPath: rec.ContextPath,
		ExitCode:    rec.ExitCode,
		SpawnedAt:   formatTime(rec.SpawnedAt),
		StartedAt:   formatTime(rec.StartedAt),
		CompletedAt: formatTime(rec.CompletedAt),
		Age:         processAge(rec),
	}
}

// processAge computes how long a worker has been (or was) running.
func processAge(rec *secondary.ProcessRecord) time.Duration {
	if rec.SpawnedAt.IsZero() {
		return 0
	}
	if !rec.CompletedAt.IsZero() {
		return rec.CompletedAt.Sub(rec.SpawnedAt)
	}
	return time.Since(rec.SpawnedAt)
}

// Verify interface compliance at compile time.
var _ primary.SupervisorService = (*SupervisorServiceImpl)(nil)
