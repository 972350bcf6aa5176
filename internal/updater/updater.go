// Package updater mutates the project manifest to a group's target
// versions and drives the package manager install, with an in-memory
// backup so a failed install can be rolled back without touching git.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/manifest"
	"github.com/pnupu/auto-updater/internal/packagemanager"
)

// Updater applies one group's version bumps to the manifest and
// installs them.
type Updater struct {
	pm     packagemanager.PackageManager
	logger *slog.Logger

	manifestPath string
	backup       []byte
}

// New returns an Updater backed by pm, operating on the manifest at
// manifestPath.
func New(pm packagemanager.PackageManager, manifestPath string, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{pm: pm, manifestPath: manifestPath, logger: logger}
}

// Apply writes every member of group into the manifest as a caret
// range of its latest version, buffers the manifest's prior bytes for
// Rollback, then runs the package manager's install.
func (u *Updater) Apply(ctx context.Context, dir string, group domain.PackageGroup) error {
	backup, err := os.ReadFile(u.manifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	m, err := manifest.Parse(backup)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	u.backup = backup

	for _, member := range group.Members {
		m.SetVersion(member.Name, manifest.CaretRange(member.LatestVersion), member.Dev)
	}

	if err := m.Write(u.manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	u.logger.Info("updated manifest", "packages", group.Names())

	if err := u.pm.Install(ctx, dir); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	return nil
}

// Rollback restores the manifest to the snapshot taken by the last
// Apply call and re-runs install so the lockfile and node_modules
// resynchronize with the restored versions. A no-op if Apply was never
// called or ClearBackup has run since.
func (u *Updater) Rollback(ctx context.Context, dir string) error {
	if u.backup == nil {
		return nil
	}
	if err := os.WriteFile(u.manifestPath, u.backup, 0o644); err != nil {
		return fmt.Errorf("restore manifest: %w", err)
	}
	u.backup = nil

	if err := u.pm.Install(ctx, dir); err != nil {
		return fmt.Errorf("reinstall after rollback: %w", err)
	}
	u.logger.Info("rolled back manifest")
	return nil
}

// ClearBackup discards the buffered pre-Apply manifest snapshot, used
// once a group's changes have been committed and rollback is no
// longer meaningful.
func (u *Updater) ClearBackup() {
	u.backup = nil
}
