// Package vcs wraps the git binary for the operations the orchestrator
// and EditEngine need: committing a group's changes and rolling back a
// set of files to their last-committed state.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// VCS is the collaborator the orchestrator drives for commits and
// rollback. false from Available means no repository was found
// at startup, and the run proceeds without ever calling Commit.
type VCS interface {
	Available(ctx context.Context) bool
	Status(ctx context.Context) (clean bool, err error)
	Stage(ctx context.Context, files []string) error
	Commit(ctx context.Context, message string) error
	CheckoutFiles(ctx context.Context, files []string) error
}

// GitVCS shells out to the git binary in dir.
type GitVCS struct {
	dir string
}

// New returns a GitVCS rooted at dir.
func New(dir string) *GitVCS {
	return &GitVCS{dir: dir}
}

// Available reports whether dir is inside a git working tree.
func (g *GitVCS) Available(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = g.dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Status reports whether the working tree has no pending changes.
func (g *GitVCS) Status(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = g.dir
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status failed in %s: %w", g.dir, err)
	}
	return len(strings.TrimSpace(string(out))) == 0, nil
}

// Stage adds files to the index.
func (g *GitVCS) Stage(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add"}, files...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git add failed: %w: %s", err, string(out))
	}
	return nil
}

// Commit commits the currently staged changes with message.
func (g *GitVCS) Commit(ctx context.Context, message string) error {
	cmd := exec.CommandContext(ctx, "git", "commit", "-m", message)
	cmd.Dir = g.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git commit failed: %w: %s", err, string(out))
	}
	return nil
}

// CheckoutFiles discards uncommitted changes to files, restoring them
// to HEAD. Used by EditEngine.Rollback when a group's fix attempts are
// abandoned.
func (g *GitVCS) CheckoutFiles(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"checkout", "--"}, files...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout failed: %w: %s", err, string(out))
	}
	return nil
}

// MockVCS implements VCS for testing.
type MockVCS struct {
	AvailableFunc      func(ctx context.Context) bool
	StatusFunc         func(ctx context.Context) (bool, error)
	StageFunc          func(ctx context.Context, files []string) error
	CommitFunc         func(ctx context.Context, message string) error
	CheckoutFilesFunc  func(ctx context.Context, files []string) error
	Commits            []string
	StagedFiles        [][]string
	CheckedOutFiles    [][]string
}

// Available implements VCS.
func (m *MockVCS) Available(ctx context.Context) bool {
	if m.AvailableFunc != nil {
		return m.AvailableFunc(ctx)
	}
	return true
}

// Status implements VCS.
func (m *MockVCS) Status(ctx context.Context) (bool, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return true, nil
}

// Stage implements VCS.
func (m *MockVCS) Stage(ctx context.Context, files []string) error {
	m.StagedFiles = append(m.StagedFiles, files)
	if m.StageFunc != nil {
		return m.StageFunc(ctx, files)
	}
	return nil
}

// Commit implements VCS.
func (m *MockVCS) Commit(ctx context.Context, message string) error {
	m.Commits = append(m.Commits, message)
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, message)
	}
	return nil
}

// CheckoutFiles implements VCS.
func (m *MockVCS) CheckoutFiles(ctx context.Context, files []string) error {
	m.CheckedOutFiles = append(m.CheckedOutFiles, files)
	if m.CheckoutFilesFunc != nil {
		return m.CheckoutFilesFunc(ctx, files)
	}
	return nil
}
