// Package editengine applies the Fixer's proposed edits to disk,
// enforcing the uniqueness contract that protects against silently
// corrupting other sites of the same text fragment.
package editengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/vcs"
)

// EditEngine applies and rolls back a group's edits, tracking which
// files it has touched so rollback can target exactly those files.
type EditEngine struct {
	vcs     vcs.VCS
	dir     string
	logger  *slog.Logger
	history []domain.Edit
}

// New returns an EditEngine rooted at dir, using v for rollback.
func New(v vcs.VCS, dir string, logger *slog.Logger) *EditEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditEngine{vcs: v, dir: dir, logger: logger}
}

// ErrAmbiguousMatch is returned when an edit's search string does not
// occur exactly once in its target file.
type ErrAmbiguousMatch struct {
	File  string
	Count int
}

func (e *ErrAmbiguousMatch) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("%s: search string not found", e.File)
	}
	return fmt.Sprintf("%s: search string matched %d times, want exactly 1", e.File, e.Count)
}

// ApplyEdit performs a single textual replace of e.Search with
// e.Replace in e.File, rejecting the edit if Search occurs zero or
// more than once. On success the edit is recorded in history for a
// later Rollback.
func (ee *EditEngine) ApplyEdit(e domain.Edit) error {
	path := ee.resolve(e.File)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", e.File, err)
	}

	count := strings.Count(string(content), e.Search)
	if count != 1 {
		return &ErrAmbiguousMatch{File: e.File, Count: count}
	}

	updated := strings.Replace(string(content), e.Search, e.Replace, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", e.File, err)
	}

	ee.history = append(ee.history, e)
	return nil
}

// ApplyEdits applies es in order, tolerating individual failures.
// Returns the count applied and the count failed; a failing edit does
// not abort the remaining ones.
func (ee *EditEngine) ApplyEdits(es []domain.Edit) (applied, failed int) {
	for _, e := range es {
		if err := ee.ApplyEdit(e); err != nil {
			ee.logger.Warn("edit failed", "file", e.File, "error", err)
			failed++
			continue
		}
		applied++
	}
	return applied, failed
}

// ApplyEditsWithValidation groups es by file, applies all edits for a
// file, then stages that file in VCS before proceeding to the next
// file — a per-file checkpoint within a single fix attempt. validate,
// if non-nil, runs after each file's edits are staged and can abort
// the remaining files by returning an error.
func (ee *EditEngine) ApplyEditsWithValidation(ctx context.Context, es []domain.Edit, validate func(file string) error) (applied, failed int) {
	byFile := make(map[string][]domain.Edit)
	var order []string
	for _, e := range es {
		if _, ok := byFile[e.File]; !ok {
			order = append(order, e.File)
		}
		byFile[e.File] = append(byFile[e.File], e)
	}

	for _, file := range order {
		fileApplied, fileFailed := 0, 0
		for _, e := range byFile[file] {
			if err := ee.ApplyEdit(e); err != nil {
				ee.logger.Warn("edit failed", "file", e.File, "error", err)
				fileFailed++
				continue
			}
			fileApplied++
		}
		applied += fileApplied
		failed += fileFailed

		if fileApplied == 0 {
			continue
		}
		if err := ee.vcs.Stage(ctx, []string{file}); err != nil {
			ee.logger.Warn("stage failed", "file", file, "error", err)
		}
		if validate != nil {
			if err := validate(file); err != nil {
				ee.logger.Warn("per-file validation failed", "file", file, "error", err)
				break
			}
		}
	}
	return applied, failed
}

// PreviewEdits pretty-prints es without touching disk, each search
// and replace truncated to 200 characters.
func (ee *EditEngine) PreviewEdits(es []domain.Edit) string {
	var b strings.Builder
	for _, e := range es {
		fmt.Fprintf(&b, "%s: %s\n  - %s\n  + %s\n", e.File, e.Description, truncate(e.Search, 200), truncate(e.Replace, 200))
	}
	return b.String()
}

// Rollback reverts every file touched since the last ClearHistory
// call via VCS checkout, then clears history on success.
func (ee *EditEngine) Rollback(ctx context.Context) error {
	if len(ee.history) == 0 {
		return nil
	}

	files := uniqueFiles(ee.history)
	if err := ee.vcs.CheckoutFiles(ctx, files); err != nil {
		return fmt.Errorf("checkout files: %w", err)
	}
	ee.history = nil
	return nil
}

// ClearHistory discards the recorded edit history, called by the
// orchestrator after a successful COMMIT.
func (ee *EditEngine) ClearHistory() {
	ee.history = nil
}

// TouchedFiles returns the unique set of files recorded in history.
func (ee *EditEngine) TouchedFiles() []string {
	return uniqueFiles(ee.history)
}

func (ee *EditEngine) resolve(file string) string {
	if ee.dir == "" {
		return file
	}
	return filepath.Join(ee.dir, file)
}

func uniqueFiles(edits []domain.Edit) []string {
	seen := map[string]bool{}
	var files []string
	for _, e := range edits {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	return files
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
