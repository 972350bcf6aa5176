package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/packagemanager"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzer_Analyze(t *testing.T) {
	path := writeManifest(t, `{
		"dependencies": {"react": "^17.0.0"},
		"devDependencies": {"jest": "^28.0.0"}
	}`)

	pm := &packagemanager.MockPackageManager{
		ListOutdatedFunc: func(ctx context.Context, dir string) ([]packagemanager.Outdated, error) {
			return []packagemanager.Outdated{
				{Name: "react", Current: "17.0.0", Latest: "18.2.0", Homepage: "https://react.dev"},
				{Name: "jest", Current: "28.0.0", Latest: "28.1.0"},
				{Name: "unknown-pkg", Current: "1.0.0", Latest: "2.0.0"},
			}, nil
		},
	}

	a := New(pm, nil)
	refs, err := a.Analyze(context.Background(), ".", path)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "jest", refs[0].Name)
	assert.True(t, refs[0].Dev)
	assert.Equal(t, domain.ChangeMinor, refs[0].Change)

	assert.Equal(t, "react", refs[1].Name)
	assert.False(t, refs[1].Dev)
	assert.Equal(t, domain.ChangeMajor, refs[1].Change)
	assert.Equal(t, "https://react.dev", refs[1].Homepage)
}

func TestAnalyzer_Analyze_SkipsUpToDate(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)

	pm := &packagemanager.MockPackageManager{
		ListOutdatedFunc: func(ctx context.Context, dir string) ([]packagemanager.Outdated, error) {
			return []packagemanager.Outdated{{Name: "react", Current: "17.0.0", Latest: "17.0.0"}}, nil
		},
	}

	a := New(pm, nil)
	refs, err := a.Analyze(context.Background(), ".", path)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestAnalyzer_Analyze_NoOutdated(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)

	pm := &packagemanager.MockPackageManager{}

	a := New(pm, nil)
	refs, err := a.Analyze(context.Background(), ".", path)
	require.NoError(t, err)
	assert.Empty(t, refs)
}
