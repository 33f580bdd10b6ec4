// Package backlog contains the file-based backlog source. The backlog file is
// the external source of truth; this adapter only ever reads it.
package backlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/foreman/internal/ports/secondary"
)

// validStatuses mirrors the statuses the selection logic understands.
var validStatuses = map[string]bool{
	"planned":     true,
	"in_progress": true,
	"blocked":     true,
	"complete":    true,
}

// backlogFile is the on-disk YAML shape.
type backlogFile struct {
	Items []backlogItem `yaml:"items"`
}

type backlogItem struct {
	Number  int    `yaml:"number"`
	Title   string `yaml:"title"`
	Status  string `yaml:"status"`
	HasSpec bool   `yaml:"has_spec"`
}

// FileSource reads backlog items from a YAML file.
type FileSource struct {
	path string

	mu    sync.Mutex
	cache versionCache
}

// versionCache lets Version skip re-hashing when stat says nothing changed.
type versionCache struct {
	mtime time.Time
	size  int64
	hash  string
}

// NewFileSource creates a backlog source over the given YAML file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the backlog file location.
func (s *FileSource) Path() string {
	return s.path
}

// Version returns the sha256 of the file contents. A matching mtime and size
// reuses the cached hash without reading the file.
func (s *FileSource) Version(ctx context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to stat backlog %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.hash != "" && info.ModTime().Equal(s.cache.mtime) && info.Size() == s.cache.size {
		return s.cache.hash, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read backlog %s: %w", s.path, err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	s.cache = versionCache{mtime: info.ModTime(), size: info.Size(), hash: hash}
	return hash, nil
}

// GetAllItems parses the backlog file and returns every item.
func (s *FileSource) GetAllItems(ctx context.Context) ([]secondary.BacklogItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog %s: %w", s.path, err)
	}

	var file backlogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse backlog %s: %w", s.path, err)
	}

	seen := make(map[int]bool, len(file.Items))
	items := make([]secondary.BacklogItem, 0, len(file.Items))
	for i, it := range file.Items {
		if it.Number <= 0 {
			return nil, fmt.Errorf("backlog item %d has invalid number %d", i, it.Number)
		}
		if seen[it.Number] {
			return nil, fmt.Errorf("backlog item number %d appears twice", it.Number)
		}
		seen[it.Number] = true
		if !validStatuses[it.Status] {
			return nil, fmt.Errorf("backlog item %d has unknown status %q", it.Number, it.Status)
		}
		items = append(items, secondary.BacklogItem{
			Number:  it.Number,
			Title:   it.Title,
			Status:  it.Status,
			HasSpec: it.HasSpec,
		})
	}
	return items, nil
}

// Ensure FileSource implements the interface
var _ secondary.BacklogSource = (*FileSource)(nil)
