// Package persistence contains file-backed adapters for controller state.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// FileSnapshotStore persists the controller snapshot as JSON. Saves write to
// a temp file in the same directory and rename it into place, so readers
// never observe a partial snapshot.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore creates a snapshot store at the given path.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Path returns the snapshot file location.
func (s *FileSnapshotStore) Path() string {
	return s.path
}

// Load reads the last saved snapshot. A missing file is a fresh start, not
// an error.
func (s *FileSnapshotStore) Load(ctx context.Context) (*secondary.ControllerSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	var snap secondary.ControllerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", s.path, err)
	}
	if snap.Version != secondary.SnapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot %s has schema version %d, expected %d", s.path, snap.Version, secondary.SnapshotSchemaVersion)
	}

	if snap.ActiveTasks == nil {
		snap.ActiveTasks = make(map[string]secondary.ActiveTask)
	}
	if snap.LastPeriodicRuns == nil {
		snap.LastPeriodicRuns = make(map[string]time.Time)
	}
	return &snap, nil
}

// Save atomically replaces the snapshot file.
func (s *FileSnapshotStore) Save(ctx context.Context, snap *secondary.ControllerSnapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	snap.Version = secondary.SnapshotSchemaVersion
	snap.LastUpdate = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Ensure FileSnapshotStore implements the interface
var _ secondary.SnapshotStore = (*FileSnapshotStore)(nil)
