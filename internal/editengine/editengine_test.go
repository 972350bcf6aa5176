package editengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/vcs"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(b)
}

func TestEditEngine_ApplyEdit_Success(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const x = 1;")

	ee := New(&vcs.MockVCS{}, dir, nil)
	err := ee.ApplyEdit(domain.Edit{File: "a.ts", Search: "const x = 1;", Replace: "const x = 2;"})
	require.NoError(t, err)
	assert.Equal(t, "const x = 2;", readFile(t, dir, "a.ts"))
	assert.Equal(t, []string{"a.ts"}, ee.TouchedFiles())
}

func TestEditEngine_ApplyEdit_NotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const x = 1;")

	ee := New(&vcs.MockVCS{}, dir, nil)
	err := ee.ApplyEdit(domain.Edit{File: "a.ts", Search: "missing", Replace: "x"})
	require.Error(t, err)
	var ambig *ErrAmbiguousMatch
	require.ErrorAs(t, err, &ambig)
	assert.Equal(t, 0, ambig.Count)
}

func TestEditEngine_ApplyEdit_Ambiguous(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "x; x;")

	ee := New(&vcs.MockVCS{}, dir, nil)
	err := ee.ApplyEdit(domain.Edit{File: "a.ts", Search: "x;", Replace: "y;"})
	require.Error(t, err)
	var ambig *ErrAmbiguousMatch
	require.ErrorAs(t, err, &ambig)
	assert.Equal(t, 2, ambig.Count)
}

func TestEditEngine_ApplyEdits_ToleratesFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const x = 1;")

	ee := New(&vcs.MockVCS{}, dir, nil)
	applied, failed := ee.ApplyEdits([]domain.Edit{
		{File: "a.ts", Search: "const x = 1;", Replace: "const x = 2;"},
		{File: "a.ts", Search: "nonexistent", Replace: "y"},
	})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, failed)
}

func TestEditEngine_ApplyEditsWithValidation_StagesPerFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const a = 1;")
	writeFile(t, dir, "b.ts", "const b = 1;")

	mockVCS := &vcs.MockVCS{}
	ee := New(mockVCS, dir, nil)

	applied, failed := ee.ApplyEditsWithValidation(context.Background(), []domain.Edit{
		{File: "a.ts", Search: "const a = 1;", Replace: "const a = 2;"},
		{File: "b.ts", Search: "const b = 1;", Replace: "const b = 2;"},
	}, nil)

	assert.Equal(t, 2, applied)
	assert.Equal(t, 0, failed)
	assert.Len(t, mockVCS.StagedFiles, 2)
	assert.Equal(t, []string{"a.ts"}, mockVCS.StagedFiles[0])
	assert.Equal(t, []string{"b.ts"}, mockVCS.StagedFiles[1])
}

func TestEditEngine_ApplyEditsWithValidation_StopsOnValidationFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const a = 1;")
	writeFile(t, dir, "b.ts", "const b = 1;")

	ee := New(&vcs.MockVCS{}, dir, nil)

	applied, _ := ee.ApplyEditsWithValidation(context.Background(), []domain.Edit{
		{File: "a.ts", Search: "const a = 1;", Replace: "const a = 2;"},
		{File: "b.ts", Search: "const b = 1;", Replace: "const b = 2;"},
	}, func(file string) error {
		return assert.AnError
	})

	assert.Equal(t, 1, applied)
}

func TestEditEngine_PreviewEdits_DoesNotTouchDisk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const x = 1;")

	ee := New(&vcs.MockVCS{}, dir, nil)
	preview := ee.PreviewEdits([]domain.Edit{
		{File: "a.ts", Description: "bump", Search: "const x = 1;", Replace: "const x = 2;"},
	})

	assert.Contains(t, preview, "a.ts")
	assert.Contains(t, preview, "bump")
	assert.Equal(t, "const x = 1;", readFile(t, dir, "a.ts"))
}

func TestEditEngine_Rollback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const x = 1;")

	mockVCS := &vcs.MockVCS{}
	ee := New(mockVCS, dir, nil)
	require.NoError(t, ee.ApplyEdit(domain.Edit{File: "a.ts", Search: "const x = 1;", Replace: "const x = 2;"}))

	require.NoError(t, ee.Rollback(context.Background()))
	assert.Equal(t, [][]string{{"a.ts"}}, mockVCS.CheckedOutFiles)
	assert.Empty(t, ee.TouchedFiles())
}

func TestEditEngine_Rollback_NoopWhenEmpty(t *testing.T) {
	mockVCS := &vcs.MockVCS{}
	ee := New(mockVCS, t.TempDir(), nil)
	require.NoError(t, ee.Rollback(context.Background()))
	assert.Empty(t, mockVCS.CheckedOutFiles)
}

func TestEditEngine_ClearHistory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "const x = 1;")

	ee := New(&vcs.MockVCS{}, dir, nil)
	require.NoError(t, ee.ApplyEdit(domain.Edit{File: "a.ts", Search: "const x = 1;", Replace: "const x = 2;"}))
	ee.ClearHistory()
	assert.Empty(t, ee.TouchedFiles())
}
