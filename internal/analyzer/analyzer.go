// Package analyzer discovers outdated dependencies and turns them
// into the PackageRef slice the rest of the engine operates on.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/manifest"
	"github.com/pnupu/auto-updater/internal/packagemanager"
)

// Analyzer reads the project's manifest, asks the package manager
// which dependencies are outdated, and normalizes the result into
// domain.PackageRef values.
type Analyzer struct {
	pm     packagemanager.PackageManager
	logger *slog.Logger
}

// New returns an Analyzer backed by pm.
func New(pm packagemanager.PackageManager, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{pm: pm, logger: logger}
}

// Analyze loads manifestPath, queries the package manager for outdated
// entries, and returns one PackageRef per entry that is both outdated
// and still present in the manifest. Entries the package manager
// reports but the manifest doesn't (a lockfile/manifest drift) are
// skipped rather than failing the run.
func (a *Analyzer) Analyze(ctx context.Context, dir, manifestPath string) ([]domain.PackageRef, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	outdated, err := a.pm.ListOutdated(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list outdated packages: %w", err)
	}

	refs := make([]domain.PackageRef, 0, len(outdated))
	for _, o := range outdated {
		current, dev, ok := m.Find(o.Name)
		if !ok {
			a.logger.Debug("skipping package manager entry absent from manifest", "package", o.Name)
			continue
		}

		cleanCurrent := manifest.CleanVersion(current)
		cleanLatest := manifest.CleanVersion(o.Latest)
		if cleanCurrent == cleanLatest {
			continue
		}

		refs = append(refs, domain.PackageRef{
			Name:           o.Name,
			CurrentVersion: cleanCurrent,
			LatestVersion:  cleanLatest,
			Homepage:       o.Homepage,
			Dev:            dev,
			Change:         manifest.ClassifyChange(cleanCurrent, cleanLatest),
		})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	a.logger.Info("analysis complete", "outdated_count", len(refs))
	return refs, nil
}
