package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/foreman/internal/adapters/persistence"
	"github.com/example/foreman/internal/ports/secondary"
)

func TestFileSnapshotStore_LoadMissingFile(t *testing.T) {
	store := persistence.NewFileSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"))

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load of a missing snapshot should not error: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot, got %+v", snap)
	}
}

func TestFileSnapshotStore_SaveAndLoad(t *testing.T) {
	store := persistence.NewFileSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"))
	ctx := context.Background()

	snap := secondary.NewControllerSnapshot()
	snap.LastBacklogVersion = "abc123"
	snap.ActiveTasks["impl-12"] = secondary.ActiveTask{
		TaskID:     "TASK-1",
		PID:        4242,
		Kind:       "implement",
		ItemNumber: 12,
		StartedAt:  time.Now().Add(-time.Minute).UTC(),
	}
	snap.LastPeriodicRuns["queue-cleanup"] = time.Now().Add(-time.Hour).UTC()

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a snapshot")
	}

	if loaded.Version != secondary.SnapshotSchemaVersion {
		t.Errorf("unexpected schema version %d", loaded.Version)
	}
	if loaded.LastBacklogVersion != "abc123" {
		t.Errorf("backlog version not persisted: %q", loaded.LastBacklogVersion)
	}
	task, ok := loaded.ActiveTasks["impl-12"]
	if !ok || task.TaskID != "TASK-1" || task.PID != 4242 || task.ItemNumber != 12 {
		t.Errorf("active task not persisted: %+v", loaded.ActiveTasks)
	}
	if _, ok := loaded.LastPeriodicRuns["queue-cleanup"]; !ok {
		t.Errorf("periodic runs not persisted: %+v", loaded.LastPeriodicRuns)
	}
	if loaded.LastUpdate.IsZero() {
		t.Error("last_update should be stamped on save")
	}
}

func TestFileSnapshotStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := persistence.NewFileSnapshotStore(filepath.Join(dir, "snapshot.json"))
	ctx := context.Background()

	first := secondary.NewControllerSnapshot()
	first.LastBacklogVersion = "v1"
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	second := secondary.NewControllerSnapshot()
	second.LastBacklogVersion = "v2"
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LastBacklogVersion != "v2" {
		t.Errorf("expected v2, got %q", loaded.LastBacklogVersion)
	}

	// No temp files may survive a completed save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("leftover files after save: %v", names)
	}
}

func TestFileSnapshotStore_LoadRejectsCorruptAndForeign(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store := persistence.NewFileSnapshotStore(path)
	ctx := context.Background()

	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write corrupt snapshot: %v", err)
	}
	if _, err := store.Load(ctx); err == nil {
		t.Error("corrupt snapshot should be an error")
	}

	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatalf("failed to write foreign snapshot: %v", err)
	}
	if _, err := store.Load(ctx); err == nil {
		t.Error("unknown schema version should be an error")
	}
}

func TestFileSnapshotStore_SaveCreatesDirectory(t *testing.T) {
	store := persistence.NewFileSnapshotStore(filepath.Join(t.TempDir(), "state", "snapshot.json"))

	if err := store.Save(context.Background(), secondary.NewControllerSnapshot()); err != nil {
		t.Fatalf("Save should create missing parent directories: %v", err)
	}
}
