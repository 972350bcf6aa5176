// Package orchestrator drives the nine-phase dependency-upgrade state
// machine: Analyze, Group, Update, Reproduce, Localize, Fix, Validate,
// Commit, Complete. Every transition is a pure function of the
// current RunState; the orchestrator writes the resulting state
// through the Checkpointer before acting on it, so an interruption at
// any point leaves a resumable snapshot.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pnupu/auto-updater/internal/analyzer"
	"github.com/pnupu/auto-updater/internal/checkpoint"
	"github.com/pnupu/auto-updater/internal/docsearch"
	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/editengine"
	"github.com/pnupu/auto-updater/internal/fixer"
	"github.com/pnupu/auto-updater/internal/grouper"
	"github.com/pnupu/auto-updater/internal/localizer"
	"github.com/pnupu/auto-updater/internal/repoindex"
	"github.com/pnupu/auto-updater/internal/runner"
	"github.com/pnupu/auto-updater/internal/updater"
	"github.com/pnupu/auto-updater/internal/vcs"
)

// Dependencies is the explicit, once-constructed container of every
// collaborator the orchestrator drives. Built once per run and passed
// by reference; there is no ambient global state.
type Dependencies struct {
	Analyzer     *analyzer.Analyzer
	Grouper      *grouper.Grouper
	Updater      *updater.Updater
	Runner       *runner.Runner
	Localizer    *localizer.Localizer
	Fixer        *fixer.Fixer
	EditEngine   *editengine.EditEngine
	DocSearch    *docsearch.DocSearch
	RepoIndex    *repoindex.Index
	VCS          vcs.VCS
	Checkpointer *checkpoint.Checkpointer
}

// Orchestrator drives RunState through its transitions.
type Orchestrator struct {
	deps   Dependencies
	dir    string
	logger *slog.Logger
}

// New returns an Orchestrator operating on the project at dir.
func New(deps Dependencies, dir string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, dir: dir, logger: logger}
}

// Run executes state transitions starting from state until reaching
// COMPLETE, checkpointing after every transition. threadID keys the
// checkpoint record. Returns the terminal RunState.
func (o *Orchestrator) Run(ctx context.Context, threadID string, state domain.RunState) (domain.RunState, error) {
	for state.Phase != domain.PhaseComplete {
		next, err := o.step(ctx, state)
		if err != nil {
			return state, fmt.Errorf("phase %s: %w", state.Phase, err)
		}
		next.UpdatedAt = now()
		state = next

		if o.deps.Checkpointer != nil {
			if err := o.deps.Checkpointer.Save(threadID, state); err != nil {
				o.logger.Warn("checkpoint save failed", "phase", state.Phase, "error", err)
			}
		}
		o.logger.Info("phase complete", "phase", state.Phase, "cursor", state.Cursor)
	}

	final, err := o.step(ctx, state)
	if err != nil {
		return state, fmt.Errorf("phase %s: %w", state.Phase, err)
	}
	final.UpdatedAt = now()

	if o.deps.Checkpointer != nil {
		if final.Error == "" {
			if err := o.deps.Checkpointer.Clear(); err != nil {
				o.logger.Warn("checkpoint clear failed", "error", err)
			}
		} else {
			if err := o.deps.Checkpointer.Save(threadID, final); err != nil {
				o.logger.Warn("checkpoint save failed", "phase", final.Phase, "error", err)
			}
		}
	}
	return final, nil
}

// step computes the next RunState for the current phase. Each branch
// corresponds exactly to one transition in the phase table; COMPLETE
// itself performs rollback-on-error and returns state unchanged.
func (o *Orchestrator) step(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	switch state.Phase {
	case domain.PhaseAnalyze:
		return o.stepAnalyze(ctx, state)
	case domain.PhaseGroup:
		return o.stepGroup(ctx, state)
	case domain.PhaseUpdate:
		return o.stepUpdate(ctx, state)
	case domain.PhaseReproduce:
		return o.stepReproduce(ctx, state)
	case domain.PhaseLocalize:
		return o.stepLocalize(ctx, state)
	case domain.PhaseFix:
		return o.stepFix(ctx, state)
	case domain.PhaseValidate:
		return o.stepValidate(ctx, state)
	case domain.PhaseCommit:
		return o.stepCommit(ctx, state)
	case domain.PhaseComplete:
		return o.stepComplete(ctx, state)
	default:
		return state, fmt.Errorf("unknown phase %q", state.Phase)
	}
}

func (o *Orchestrator) stepAnalyze(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	refs, err := o.deps.Analyzer.Analyze(ctx, o.dir, o.manifestPath())
	if err != nil {
		return o.fatal(state, err)
	}

	next := state.Clone()
	next.Plan.Packages = refs
	if len(refs) == 0 {
		next.Phase = domain.PhaseComplete
		return next, nil
	}
	next.Phase = domain.PhaseGroup
	return next, nil
}

func (o *Orchestrator) stepGroup(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	groups, err := o.deps.Grouper.Group(ctx, state.Plan.Packages)
	if err != nil {
		return o.fatal(state, err)
	}

	next := state.Clone()
	next.Plan.Groups = groups

	if state.Flags.DryRun {
		o.logger.Info("dry run plan", "groups", summarizeGroups(groups))
		next.Phase = domain.PhaseComplete
		return next, nil
	}

	next.Cursor = 0
	next.Phase = domain.PhaseUpdate
	return next, nil
}

func (o *Orchestrator) stepUpdate(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	group, ok := state.CurrentGroup()
	if !ok {
		return o.fatal(state, fmt.Errorf("no group at cursor %d", state.Cursor))
	}

	if err := o.deps.Updater.Apply(ctx, o.dir, group); err != nil {
		next := state.Clone()
		next.Error = err.Error()
		next.Phase = domain.PhaseComplete
		return next, nil
	}

	next := state.Clone()
	next.RetryCount = 0
	next.Phase = domain.PhaseReproduce
	return next, nil
}

func (o *Orchestrator) stepReproduce(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	build, test, err := o.deps.Runner.RunAll(ctx, state.Config.BuildCommand, state.Config.TestCommand)
	if err != nil {
		return o.fatal(state, err)
	}

	next := state.Clone()
	outcome := combinedOutcome(build, test)
	next.LastOutcome = &outcome

	if outcome.Success {
		next.Phase = domain.PhaseCommit
		return next, nil
	}
	next.Phase = domain.PhaseLocalize
	return next, nil
}

func (o *Orchestrator) stepLocalize(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	next := state.Clone()
	if !state.Flags.ModelEnabled || state.RetryCount >= state.Config.MaxRetries {
		next.Error = "no progress: fix budget exhausted or model unavailable"
		next.Phase = domain.PhaseComplete
		return next, nil
	}
	next.Phase = domain.PhaseFix
	return next, nil
}

func (o *Orchestrator) stepFix(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	group, ok := state.CurrentGroup()
	if !ok {
		return o.fatal(state, fmt.Errorf("no group at cursor %d", state.Cursor))
	}

	output := ""
	if state.LastOutcome != nil {
		output = state.LastOutcome.Combined()
	}

	edits := o.fixGroup(ctx, group, output, state.Config.MigrationDocs)
	if len(edits) == 0 {
		next := state.Clone()
		next.Error = "fixer produced no edits"
		next.Phase = domain.PhaseComplete
		return next, nil
	}

	next := state.Clone()
	next.RetryCount++
	next.Phase = domain.PhaseValidate
	return next, nil
}

// fixGroup runs Localize+DocSearch+Fixer+EditEngine for every member
// of group and returns the combined list of successfully applied
// edits. This composition lives outside RunState because its inputs
// (file contents, fetched guides) are transient, not durable.
func (o *Orchestrator) fixGroup(ctx context.Context, group domain.PackageGroup, output string, migrationDocs map[string]string) []domain.Edit {
	var allApplied []domain.Edit

	for _, member := range group.Members {
		var userURLs []string
		if url, ok := migrationDocs[member.Name]; ok && url != "" {
			userURLs = []string{url}
		}

		var guides []domain.MigrationGuide
		if o.deps.DocSearch != nil {
			guides = o.deps.DocSearch.Search(ctx, member, userURLs)
		}

		var candidates []fixer.CandidateFile
		if o.deps.Localizer != nil {
			for _, c := range o.deps.Localizer.Localize(output, member, o.dir) {
				content, err := readProjectFile(o.dir, c.Path)
				if err != nil {
					continue
				}
				candidates = append(candidates, fixer.CandidateFile{Path: c.Path, Content: content})
			}
		}

		edits, err := o.deps.Fixer.Fix(ctx, fixer.Input{
			Package:    member,
			Output:     output,
			Guides:     guides,
			Candidates: candidates,
		})
		if err != nil || len(edits) == 0 {
			continue
		}

		for _, e := range edits {
			if err := o.deps.EditEngine.ApplyEdit(e); err != nil {
				o.logger.Warn("edit failed", "file", e.File, "error", err)
				continue
			}
			allApplied = append(allApplied, e)
		}
	}
	return allApplied
}

func (o *Orchestrator) stepValidate(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	build, test, err := o.deps.Runner.RunAll(ctx, state.Config.BuildCommand, state.Config.TestCommand)
	if err != nil {
		return o.fatal(state, err)
	}

	next := state.Clone()
	outcome := combinedOutcome(build, test)
	next.LastOutcome = &outcome

	if outcome.Success {
		next.Phase = domain.PhaseCommit
		return next, nil
	}
	if next.RetryCount < next.Config.MaxRetries {
		next.Phase = domain.PhaseLocalize
		return next, nil
	}
	next.Error = "validation failed after exhausting fix attempts"
	next.Phase = domain.PhaseComplete
	return next, nil
}

func (o *Orchestrator) stepCommit(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	group, ok := state.CurrentGroup()
	if !ok {
		return o.fatal(state, fmt.Errorf("no group at cursor %d", state.Cursor))
	}

	next := state.Clone()

	if state.Flags.IsVersioned && state.Config.CreateCommits && !state.Flags.NoCommit {
		files := []string{o.manifestPath()}
		if _, err := os.Stat(o.lockfilePath()); err == nil {
			files = append(files, o.lockfilePath())
		}
		files = append(files, o.deps.EditEngine.TouchedFiles()...)
		if err := o.deps.VCS.Stage(ctx, files); err != nil {
			o.logger.Warn("stage before commit failed", "error", err)
		}
		if err := o.deps.VCS.Commit(ctx, commitMessage(group)); err != nil {
			o.logger.Warn("commit failed", "error", err)
		}
	}

	o.deps.Updater.ClearBackup()
	o.deps.EditEngine.ClearHistory()
	next.CompletedGroups = append(next.CompletedGroups, state.Cursor)

	if state.HasMoreGroups() {
		next.Cursor++
		next.Phase = domain.PhaseUpdate
		return next, nil
	}
	next.Phase = domain.PhaseComplete
	return next, nil
}

func (o *Orchestrator) stepComplete(ctx context.Context, state domain.RunState) (domain.RunState, error) {
	if state.Error != "" {
		if err := o.deps.Updater.Rollback(ctx, o.dir); err != nil {
			o.logger.Warn("rollback manifest failed", "error", err)
		}
		if err := o.deps.EditEngine.Rollback(ctx); err != nil {
			o.logger.Warn("rollback edits failed", "error", err)
		}
		o.logger.Error("run ended with error", "error", state.Error, "group", state.Cursor)
	} else {
		o.logger.Info("run completed successfully", "groups", len(state.Plan.Groups))
	}
	return state, nil
}

func (o *Orchestrator) fatal(state domain.RunState, err error) (domain.RunState, error) {
	next := state.Clone()
	next.Error = err.Error()
	next.Phase = domain.PhaseComplete
	return next, nil
}

func (o *Orchestrator) manifestPath() string {
	return filepath.Join(o.dir, "package.json")
}

func (o *Orchestrator) lockfilePath() string {
	return filepath.Join(o.dir, "package-lock.json")
}

func combinedOutcome(build, test domain.TestOutcome) domain.TestOutcome {
	if !build.Success {
		return domain.TestOutcome{
			Success: false,
			Stdout:  build.Stdout,
			Stderr:  build.Stderr,
		}
	}
	return domain.TestOutcome{
		Success: test.Success,
		Stdout:  build.Stdout + "\n" + test.Stdout,
		Stderr:  build.Stderr + "\n" + test.Stderr,
	}
}

func commitMessage(group domain.PackageGroup) string {
	if len(group.Members) == 1 {
		m := group.Members[0]
		return fmt.Sprintf("chore(deps): upgrade %s from %s to %s", m.Name, m.CurrentVersion, m.LatestVersion)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "chore(deps): upgrade %d packages\n\n", len(group.Members))
	for _, m := range group.Members {
		fmt.Fprintf(&b, "  - %s: %s → %s\n", m.Name, m.CurrentVersion, m.LatestVersion)
	}
	return b.String()
}

func summarizeGroups(groups []domain.PackageGroup) []string {
	summaries := make([]string, len(groups))
	for i, g := range groups {
		summaries[i] = fmt.Sprintf("priority=%d members=%s", g.Priority, strings.Join(g.Names(), ","))
	}
	sort.Strings(summaries)
	return summaries
}

func readProjectFile(dir, rel string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func now() time.Time {
	return time.Now()
}
