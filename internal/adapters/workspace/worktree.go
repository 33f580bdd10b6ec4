// Package workspace contains the git-worktree adapter for isolated execution
// contexts. Each parallel worker gets its own worktree on its own branch;
// finished contexts are merged back into the trunk one at a time.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/example/foreman/internal/ports/secondary"
)

// branchPrefix namespaces the per-context branches in the trunk repository.
const branchPrefix = "foreman/"

// WorktreeAdapter implements secondary.WorkspaceAdapter over git worktrees.
type WorktreeAdapter struct {
	trunkPath        string
	contextsBasePath string
}

// NewWorktreeAdapter creates the adapter. The trunk must be a git repository;
// contexts default to a sibling directory of the trunk so worker checkouts
// never live inside the managed tree.
func NewWorktreeAdapter(trunkPath, contextsBasePath string) (*WorktreeAdapter, error) {
	if trunkPath == "" {
		return nil, fmt.Errorf("trunk path is required")
	}
	trunk, err := filepath.Abs(trunkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trunk path: %w", err)
	}
	if contextsBasePath == "" {
		contextsBasePath = trunk + "-contexts"
	}
	base, err := filepath.Abs(contextsBasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contexts path: %w", err)
	}

	return &WorktreeAdapter{
		trunkPath:        trunk,
		contextsBasePath: base,
	}, nil
}

// CreateContext creates a worktree for the given key on a fresh branch and
// returns its path. An existing context for the key is an error; callers
// remove stale contexts before retrying.
func (a *WorktreeAdapter) CreateContext(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("context key is required")
	}

	target := filepath.Join(a.contextsBasePath, key)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("context %s already exists at %s", key, target)
	}

	if err := os.MkdirAll(a.contextsBasePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create contexts directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "add", target, "-b", branchPrefix+key)
	cmd.Dir = a.trunkPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git worktree add failed: %w: %s", err, string(output))
	}

	return target, nil
}

// RemoveContext removes a worktree and its branch. The branch deletion is
// best-effort: a merged branch is gone, an unmerged one is force-deleted so
// the key can be reused.
func (a *WorktreeAdapter) RemoveContext(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", path, "--force")
	cmd.Dir = a.trunkPath
	if err := cmd.Run(); err != nil {
		// Fall back to direct directory removal
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove context directory: %w", err)
		}
	}

	branch := exec.CommandContext(ctx, "git", "branch", "-D", branchPrefix+filepath.Base(path))
	branch.Dir = a.trunkPath
	_ = branch.Run()

	return nil
}

// ContextExists checks whether a context directory exists.
func (a *WorktreeAdapter) ContextExists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check context: %w", err)
	}
	return info.IsDir(), nil
}

// MergeToTrunk merges one finished context's branch into the trunk. The merge
// always leaves a merge commit so context history stays visible.
func (a *WorktreeAdapter) MergeToTrunk(ctx context.Context, contextPath string) error {
	key := filepath.Base(contextPath)
	branch := branchPrefix + key

	cmd := exec.CommandContext(ctx, "git", "merge", "--no-ff", branch, "-m", fmt.Sprintf("Merge %s", key))
	cmd.Dir = a.trunkPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git merge of %s failed: %w: %s", branch, err, string(output))
	}

	return nil
}

// AbortMerge backs out of a conflicted merge so the trunk is clean again.
func (a *WorktreeAdapter) AbortMerge(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "merge", "--abort")
	cmd.Dir = a.trunkPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git merge --abort failed: %w: %s", err, string(output))
	}
	return nil
}

// ContextsBasePath returns the directory holding all contexts.
func (a *WorktreeAdapter) ContextsBasePath() string {
	return a.contextsBasePath
}

// TrunkPath returns the trunk repository path.
func (a *WorktreeAdapter) TrunkPath() string {
	return a.trunkPath
}

// Ensure WorktreeAdapter implements the interface
var _ secondary.WorkspaceAdapter = (*WorktreeAdapter)(nil)
