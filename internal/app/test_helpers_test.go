package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// Ensure the mocks implement their secondary ports.
var (
	_ secondary.TaskRepository      = (*mockTaskRepository)(nil)
	_ secondary.ProcessRepository   = (*mockProcessRepository)(nil)
	_ secondary.Launcher            = (*mockLauncher)(nil)
	_ secondary.EventRepository     = (*mockEventRepository)(nil)
	_ secondary.WorkspaceAdapter    = (*mockWorkspaceAdapter)(nil)
	_ secondary.MergeFlagRepository = (*mockMergeFlagRepository)(nil)
	_ secondary.BacklogSource       = (*mockBacklogSource)(nil)
	_ secondary.IndependenceOracle  = (*mockOracle)(nil)
	_ secondary.SnapshotStore       = (*mockSnapshotStore)(nil)
	_ secondary.Notifier            = (*mockNotifier)(nil)
)

// mockTaskRepository implements secondary.TaskRepository in memory.
type mockTaskRepository struct {
	tasks      map[string]*secondary.TaskRecord
	seq        map[string]int
	nextSeq    int
	enqueueErr error
}

func newMockTaskRepository() *mockTaskRepository {
	return &mockTaskRepository{
		tasks: make(map[string]*secondary.TaskRecord),
		seq:   make(map[string]int),
	}
}

func (m *mockTaskRepository) Enqueue(ctx context.Context, task *secondary.TaskRecord) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	if _, ok := m.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	cp := *task
	cp.Status = "queued"
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.tasks[task.ID] = &cp
	m.seq[task.ID] = m.nextSeq
	m.nextSeq++
	return nil
}

func (m *mockTaskRepository) Claim(ctx context.Context, recipient string) (*secondary.TaskRecord, error) {
	var best *secondary.TaskRecord
	for _, t := range m.tasks {
		if t.Status != "queued" || t.Recipient != recipient {
			continue
		}
		if best == nil || t.Priority < best.Priority ||
			(t.Priority == best.Priority && m.seq[t.ID] < m.seq[best.ID]) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = "running"
	best.StartedAt = time.Now().UTC()
	cp := *best
	return &cp, nil
}

func (m *mockTaskRepository) GetByID(ctx context.Context, id string) (*secondary.TaskRecord, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepository) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.TaskRecord, error) {
	var out []*secondary.TaskRecord
	for _, t := range m.tasks {
		if filters.Recipient != "" && t.Recipient != filters.Recipient {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		if filters.Kind != "" && t.Kind != filters.Kind {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] > m.seq[out[j].ID] })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (m *mockTaskRepository) MarkStarted(ctx context.Context, id string) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status == "queued" || t.Status == "running" {
		t.Status = "running"
		if t.StartedAt.IsZero() {
			t.StartedAt = time.Now().UTC()
		}
	}
	return nil
}

func (m *mockTaskRepository) MarkCompleted(ctx context.Context, id string, durationMs int64) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status == "completed" || t.Status == "failed" {
		return nil
	}
	t.Status = "completed"
	t.DurationMs = durationMs
	t.CompletedAt = time.Now().UTC()
	return nil
}

func (m *mockTaskRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status == "completed" || t.Status == "failed" {
		return nil
	}
	t.Status = "failed"
	t.Error = errMsg
	t.CompletedAt = time.Now().UTC()
	return nil
}

func (m *mockTaskRepository) SlowestTasks(ctx context.Context, limit int) ([]*secondary.TaskRecord, error) {
	var out []*secondary.TaskRecord
	for _, t := range m.tasks {
		if t.Status == "completed" {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DurationMs > out[j].DurationMs })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockTaskRepository) RoleDurations(ctx context.Context) ([]*secondary.RoleDurationsRecord, error) {
	byRole := make(map[string]*secondary.RoleDurationsRecord)
	for _, t := range m.tasks {
		rec, ok := byRole[t.Recipient]
		if !ok {
			rec = &secondary.RoleDurationsRecord{Role: t.Recipient}
			byRole[t.Recipient] = rec
		}
		switch t.Status {
		case "completed":
			rec.CompletedMs = append(rec.CompletedMs, float64(t.DurationMs))
		case "failed":
			rec.FailedCount++
		case "running":
			rec.RunningCount++
		}
	}
	var out []*secondary.RoleDurationsRecord
	for _, rec := range byRole {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (m *mockTaskRepository) QueuedByPriority(ctx context.Context) (map[int]int, error) {
	out := make(map[int]int)
	for _, t := range m.tasks {
		if t.Status == "queued" {
			out[t.Priority]++
		}
	}
	return out, nil
}

func (m *mockTaskRepository) CleanupOld(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 1 {
		return 0, errors.New("retention must be at least one day")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for id, t := range m.tasks {
		if (t.Status == "completed" || t.Status == "failed") && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

// mockProcessRepository implements secondary.ProcessRepository in memory.
type mockProcessRepository struct {
	procs     map[int]*secondary.ProcessRecord
	createErr error
}

func newMockProcessRepository() *mockProcessRepository {
	return &mockProcessRepository{procs: make(map[int]*secondary.ProcessRecord)}
}

func (m *mockProcessRepository) Create(ctx context.Context, rec *secondary.ProcessRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *rec
	cp.Status = "spawned"
	cp.SpawnedAt = time.Now().UTC()
	m.procs[rec.PID] = &cp
	return nil
}

func (m *mockProcessRepository) GetByPID(ctx context.Context, pid int) (*secondary.ProcessRecord, error) {
	rec, ok := m.procs[pid]
	if !ok {
		return nil, fmt.Errorf("process %d not found", pid)
	}
	cp := *rec
	return &cp, nil
}

func (m *mockProcessRepository) List(ctx context.Context, filters secondary.ProcessFilters) ([]*secondary.ProcessRecord, error) {
	var out []*secondary.ProcessRecord
	for _, rec := range m.procs {
		if filters.Status != "" && rec.Status != filters.Status {
			continue
		}
		if filters.Role != "" && rec.Role != filters.Role {
			continue
		}
		if filters.TaskID != "" && rec.TaskID != filters.TaskID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID > out[j].PID })
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (m *mockProcessRepository) ListLive(ctx context.Context) ([]*secondary.ProcessRecord, error) {
	var out []*secondary.ProcessRecord
	for _, rec := range m.procs {
		if rec.Status == "spawned" || rec.Status == "running" {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (m *mockProcessRepository) MarkRunning(ctx context.Context, pid int) error {
	rec, ok := m.procs[pid]
	if !ok {
		return fmt.Errorf("process %d not found", pid)
	}
	if rec.Status == "spawned" {
		rec.Status = "running"
		rec.StartedAt = time.Now().UTC()
	}
	return nil
}

func (m *mockProcessRepository) MarkCompleted(ctx context.Context, pid int, exitCode int) error {
	return m.finish(pid, "completed", exitCode)
}

func (m *mockProcessRepository) MarkFailed(ctx context.Context, pid int, exitCode int) error {
	return m.finish(pid, "failed", exitCode)
}

func (m *mockProcessRepository) MarkKilled(ctx context.Context, pid int) error {
	return m.finish(pid, "killed", -9)
}

func (m *mockProcessRepository) finish(pid int, status string, exitCode int) error {
	rec, ok := m.procs[pid]
	if !ok {
		return fmt.Errorf("process %d not found", pid)
	}
	switch rec.Status {
	case "completed", "failed", "killed":
		return nil
	}
	rec.Status = status
	rec.ExitCode = exitCode
	rec.CompletedAt = time.Now().UTC()
	return nil
}

func (m *mockProcessRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, rec := range m.procs {
		out[rec.Status]++
	}
	return out, nil
}

// fakeHandle implements secondary.ProcessHandle without an OS process. When
// aliveProbes is set the handle reports alive for that many IsAlive calls and
// dead afterwards, simulating a worker that exits between two probes.
type fakeHandle struct {
	pid         int
	alive       bool
	aliveProbes int
	exitCode    int
	killErr     error
	waitErr     error
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) IsAlive() bool {
	if h.aliveProbes > 0 {
		h.aliveProbes--
		return true
	}
	return h.alive
}

func (h *fakeHandle) Terminate() error {
	h.alive = false
	h.aliveProbes = 0
	return nil
}

func (h *fakeHandle) Kill() error {
	if h.killErr != nil {
		return h.killErr
	}
	h.alive = false
	h.aliveProbes = 0
	return nil
}

func (h *fakeHandle) Wait(timeout time.Duration) (int, error) {
	if h.waitErr != nil {
		return 0, h.waitErr
	}
	return h.exitCode, nil
}

// mockLauncher implements secondary.Launcher with fake handles. Each launch
// allocates the next pid; Find answers from the handle table, returning a
// dead handle for unknown pids. probesUntilExit makes every launched handle
// survive that many liveness probes and then vanish.
type mockLauncher struct {
	handles         map[int]*fakeHandle
	launched        []secondary.LaunchSpec
	nextPID         int
	launchErr       error
	probesUntilExit int
}

func newMockLauncher() *mockLauncher {
	return &mockLauncher{handles: make(map[int]*fakeHandle), nextPID: 1000}
}

func (m *mockLauncher) Launch(ctx context.Context, spec secondary.LaunchSpec) (secondary.ProcessHandle, error) {
	if m.launchErr != nil {
		return nil, m.launchErr
	}
	m.nextPID++
	h := &fakeHandle{pid: m.nextPID, alive: true}
	if m.probesUntilExit > 0 {
		h.alive = false
		h.aliveProbes = m.probesUntilExit
	}
	m.handles[h.pid] = h
	m.launched = append(m.launched, spec)
	return h, nil
}

func (m *mockLauncher) Find(pid int) secondary.ProcessHandle {
	if h, ok := m.handles[pid]; ok {
		return h
	}
	return &fakeHandle{pid: pid}
}

// exit marks a fake process as finished.
func (m *mockLauncher) exit(pid int, code int) {
	if h, ok := m.handles[pid]; ok {
		h.alive = false
		h.exitCode = code
	}
}

// mockEventRepository implements secondary.EventRepository in memory.
type mockEventRepository struct {
	events []*secondary.EventRecord
}

func newMockEventRepository() *mockEventRepository {
	return &mockEventRepository{}
}

func (m *mockEventRepository) Record(ctx context.Context, event *secondary.EventRecord) error {
	cp := *event
	cp.ID = int64(len(m.events) + 1)
	cp.CreatedAt = time.Now().UTC()
	m.events = append(m.events, &cp)
	return nil
}

func (m *mockEventRepository) ListRecent(ctx context.Context, limit int) ([]*secondary.EventRecord, error) {
	var out []*secondary.EventRecord
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *m.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockEventRepository) ListForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*secondary.EventRecord, error) {
	var out []*secondary.EventRecord
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.events[i].EntityType == entityType && m.events[i].EntityID == entityID {
			cp := *m.events[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// actions returns the recorded actions in order, for assertions.
func (m *mockEventRepository) actions() []string {
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Action
	}
	return out
}

// mockWorkspaceAdapter implements secondary.WorkspaceAdapter in memory.
// failMerges makes the next N merge attempts fail before succeeding.
type mockWorkspaceAdapter struct {
	contexts   map[string]bool
	merged     []string
	removed    []string
	aborts     int
	failMerges int
	createErr  error
}

func newMockWorkspaceAdapter() *mockWorkspaceAdapter {
	return &mockWorkspaceAdapter{contexts: make(map[string]bool)}
}

func (m *mockWorkspaceAdapter) CreateContext(ctx context.Context, key string) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	path := "/tmp/foreman-contexts/" + key
	if m.contexts[path] {
		return "", fmt.Errorf("context %s already exists", path)
	}
	m.contexts[path] = true
	return path, nil
}

func (m *mockWorkspaceAdapter) RemoveContext(ctx context.Context, path string) error {
	delete(m.contexts, path)
	m.removed = append(m.removed, path)
	return nil
}

func (m *mockWorkspaceAdapter) ContextExists(ctx context.Context, path string) (bool, error) {
	return m.contexts[path], nil
}

func (m *mockWorkspaceAdapter) MergeToTrunk(ctx context.Context, contextPath string) error {
	if m.failMerges > 0 {
		m.failMerges--
		return errors.New("merge conflict")
	}
	m.merged = append(m.merged, contextPath)
	return nil
}

func (m *mockWorkspaceAdapter) AbortMerge(ctx context.Context) error {
	m.aborts++
	return nil
}

func (m *mockWorkspaceAdapter) ContextsBasePath() string { return "/tmp/foreman-contexts" }
func (m *mockWorkspaceAdapter) TrunkPath() string        { return "/tmp/trunk" }

// mockMergeFlagRepository implements secondary.MergeFlagRepository in memory.
type mockMergeFlagRepository struct {
	flags map[string]*secondary.MergeFlagRecord
}

func newMockMergeFlagRepository() *mockMergeFlagRepository {
	return &mockMergeFlagRepository{flags: make(map[string]*secondary.MergeFlagRecord)}
}

func (m *mockMergeFlagRepository) Flag(ctx context.Context, flag *secondary.MergeFlagRecord) error {
	cp := *flag
	cp.FlaggedAt = time.Now().UTC()
	m.flags[flag.TaskKey] = &cp
	return nil
}

func (m *mockMergeFlagRepository) List(ctx context.Context) ([]*secondary.MergeFlagRecord, error) {
	var out []*secondary.MergeFlagRecord
	for _, f := range m.flags {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskKey < out[j].TaskKey })
	return out, nil
}

func (m *mockMergeFlagRepository) Keys(ctx context.Context) ([]string, error) {
	var out []string
	for key := range m.flags {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockMergeFlagRepository) Clear(ctx context.Context, taskKey string) error {
	if _, ok := m.flags[taskKey]; !ok {
		return fmt.Errorf("no merge flag for %s", taskKey)
	}
	delete(m.flags, taskKey)
	return nil
}

// mockBacklogSource implements secondary.BacklogSource in memory.
type mockBacklogSource struct {
	version      string
	items        []secondary.BacklogItem
	versionErr   error
	itemsErr     error
	versionCalls int
	itemsCalls   int
}

func newMockBacklogSource(version string, items []secondary.BacklogItem) *mockBacklogSource {
	return &mockBacklogSource{version: version, items: items}
}

func (m *mockBacklogSource) Version(ctx context.Context) (string, error) {
	m.versionCalls++
	if m.versionErr != nil {
		return "", m.versionErr
	}
	return m.version, nil
}

func (m *mockBacklogSource) GetAllItems(ctx context.Context) ([]secondary.BacklogItem, error) {
	m.itemsCalls++
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}
	return append([]secondary.BacklogItem(nil), m.items...), nil
}

// mockOracle implements secondary.IndependenceOracle with a pair table.
// Pairs not listed fall back to the default verdict.
type mockOracle struct {
	dependent   map[string]bool
	err         error
	consults    int
	independent bool
}

func newMockOracle() *mockOracle {
	return &mockOracle{dependent: make(map[string]bool), independent: true}
}

func (m *mockOracle) Independent(ctx context.Context, a, b secondary.OracleQuery) (bool, error) {
	m.consults++
	if m.err != nil {
		return false, m.err
	}
	if m.dependent[a.Key+"|"+b.Key] || m.dependent[b.Key+"|"+a.Key] {
		return false, nil
	}
	return m.independent, nil
}

// markDependent records that two keys conflict.
func (m *mockOracle) markDependent(a, b string) {
	m.dependent[a+"|"+b] = true
}

// mockSnapshotStore implements secondary.SnapshotStore in memory, copying on
// both save and load the way a real serialization round trip would.
type mockSnapshotStore struct {
	snap    *secondary.ControllerSnapshot
	saves   int
	loadErr error
	saveErr error
}

func newMockSnapshotStore() *mockSnapshotStore {
	return &mockSnapshotStore{}
}

func (m *mockSnapshotStore) Load(ctx context.Context) (*secondary.ControllerSnapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.snap == nil {
		return nil, nil
	}
	return copySnapshot(m.snap), nil
}

func (m *mockSnapshotStore) Save(ctx context.Context, snap *secondary.ControllerSnapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	cp := copySnapshot(snap)
	cp.Version = secondary.SnapshotSchemaVersion
	cp.LastUpdate = time.Now().UTC()
	m.snap = cp
	return nil
}

func copySnapshot(snap *secondary.ControllerSnapshot) *secondary.ControllerSnapshot {
	cp := *snap
	cp.ActiveTasks = make(map[string]secondary.ActiveTask, len(snap.ActiveTasks))
	for k, v := range snap.ActiveTasks {
		cp.ActiveTasks[k] = v
	}
	cp.LastPeriodicRuns = make(map[string]time.Time, len(snap.LastPeriodicRuns))
	for k, v := range snap.LastPeriodicRuns {
		cp.LastPeriodicRuns[k] = v
	}
	return &cp
}

// notification is one captured Notify call.
type notification struct {
	severity string
	title    string
	message  string
}

// mockNotifier implements secondary.Notifier, capturing notifications.
type mockNotifier struct {
	sent []notification
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{}
}

func (m *mockNotifier) Notify(ctx context.Context, severity, title, message string) error {
	m.sent = append(m.sent, notification{severity: severity, title: title, message: message})
	return nil
}
