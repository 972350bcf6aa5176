package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/manifest"
	"github.com/pnupu/auto-updater/internal/packagemanager"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUpdater_Apply(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)
	pm := &packagemanager.MockPackageManager{}

	u := New(pm, path, nil)
	group := domain.PackageGroup{Members: []domain.PackageRef{{Name: "react", LatestVersion: "18.2.0"}}}

	require.NoError(t, u.Apply(context.Background(), ".", group))
	assert.Equal(t, 1, pm.InstallCalls)

	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "^18.2.0", m.Dependencies["react"])
}

func TestUpdater_Apply_InstallFails(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)
	pm := &packagemanager.MockPackageManager{InstallFunc: func(ctx context.Context, dir string) error {
		return assert.AnError
	}}

	u := New(pm, path, nil)
	group := domain.PackageGroup{Members: []domain.PackageRef{{Name: "react", LatestVersion: "18.2.0"}}}

	err := u.Apply(context.Background(), ".", group)
	require.Error(t, err)

	// Manifest was still mutated; caller is expected to call Rollback.
	m, loadErr := manifest.Load(path)
	require.NoError(t, loadErr)
	assert.Equal(t, "^18.2.0", m.Dependencies["react"])
}

func TestUpdater_Rollback(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)
	pm := &packagemanager.MockPackageManager{}

	u := New(pm, path, nil)
	group := domain.PackageGroup{Members: []domain.PackageRef{{Name: "react", LatestVersion: "18.2.0"}}}
	require.NoError(t, u.Apply(context.Background(), ".", group))

	require.NoError(t, u.Rollback(context.Background(), "."))

	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "^17.0.0", m.Dependencies["react"])
}

func TestUpdater_Rollback_ReinstallsAfterRestoring(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)
	pm := &packagemanager.MockPackageManager{}

	u := New(pm, path, nil)
	group := domain.PackageGroup{Members: []domain.PackageRef{{Name: "react", LatestVersion: "18.2.0"}}}
	require.NoError(t, u.Apply(context.Background(), ".", group))
	assert.Equal(t, 1, pm.InstallCalls)

	require.NoError(t, u.Rollback(context.Background(), "."))
	assert.Equal(t, 2, pm.InstallCalls, "rollback must re-run install to resync the lockfile")
}

func TestUpdater_Rollback_NoopWithoutApply(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)
	u := New(&packagemanager.MockPackageManager{}, path, nil)
	assert.NoError(t, u.Rollback(context.Background(), "."))
}

func TestUpdater_ClearBackup(t *testing.T) {
	path := writeManifest(t, `{"dependencies": {"react": "^17.0.0"}}`)
	pm := &packagemanager.MockPackageManager{}

	u := New(pm, path, nil)
	group := domain.PackageGroup{Members: []domain.PackageRef{{Name: "react", LatestVersion: "18.2.0"}}}
	require.NoError(t, u.Apply(context.Background(), ".", group))

	u.ClearBackup()
	require.NoError(t, u.Rollback(context.Background(), "."))

	// Rollback after ClearBackup is a no-op: manifest keeps the applied version.
	m, err := manifest.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "^18.2.0", m.Dependencies["react"])
}
