package localizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/repoindex"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildIndex(t *testing.T, root string) *repoindex.Index {
	t.Helper()
	ix := repoindex.New(root, nil)
	require.NoError(t, ix.Build())
	return ix
}

func TestLocalizer_Localize_ByImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/App.tsx", `import React from "react";`)
	writeFile(t, root, "src/util.ts", `export const x = 1;`)

	ix := buildIndex(t, root)
	l := New(ix, nil)

	cands := l.Localize("", domain.PackageRef{Name: "react"}, root)
	require.Len(t, cands, 1)
	assert.Equal(t, "src/App.tsx", cands[0].Path)
}

func TestLocalizer_Localize_FallsBackToSiblings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/App.tsx", `import React from "react";`)

	ix := buildIndex(t, root)
	l := New(ix, nil)

	cands := l.Localize("", domain.PackageRef{Name: "react-dom"}, root)
	require.Len(t, cands, 1)
	assert.Equal(t, "src/App.tsx", cands[0].Path)
}

func TestLocalizer_Localize_DegradesToSrcLib(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/unrelated.ts", `export const x = 1;`)
	writeFile(t, root, "lib/other.ts", `export const y = 2;`)

	ix := buildIndex(t, root)
	l := New(ix, nil)

	cands := l.Localize("", domain.PackageRef{Name: "totally-unused-pkg"}, root)
	assert.Len(t, cands, 2)
}

func TestLocalizer_Localize_Scoring(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.tsx", `import "lodash";`)
	writeFile(t, root, "src/lodash.test.ts", `import "lodash";`)

	ix := buildIndex(t, root)
	l := New(ix, nil)

	cands := l.Localize("", domain.PackageRef{Name: "lodash"}, root)
	require.Len(t, cands, 2)
	assert.Equal(t, "src/index.tsx", cands[0].Path)
	assert.Equal(t, "src/lodash.test.ts", cands[1].Path)
	assert.Greater(t, cands[0].Score, cands[1].Score)
}

func TestExtractPaths_TrimsWorkDir(t *testing.T) {
	output := "Error in /home/user/project/src/App.tsx:12:4\nModule not found: Error: Can't resolve './foo' in '/home/user/project/src'"
	paths := extractPaths(output, "/home/user/project")
	assert.Contains(t, paths, "src/App.tsx")
}

func TestExtractPaths_RejectsAbsoluteAfterTrim(t *testing.T) {
	output := "/etc/passwd:1:1 some unrelated absolute path"
	paths := extractPaths(output, "/home/user/project")
	assert.NotContains(t, paths, "/etc/passwd")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "react", shortName("@types/react"))
	assert.Equal(t, "lodash", shortName("lodash"))
}
