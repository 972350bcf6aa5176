// Package domain holds the data types shared across the upgrader's
// components: package references, groups, edits, and run state.
package domain

import "time"

// ChangeKind classifies a version bump for cosmetic logging only; it
// never drives control flow.
type ChangeKind string

const (
	ChangeMajor   ChangeKind = "major"
	ChangeMinor   ChangeKind = "minor"
	ChangePatch   ChangeKind = "patch"
	ChangeUnknown ChangeKind = "unknown"
)

// PackageRef is an outdated dependency discovered by the Analyzer.
// Immutable once produced.
type PackageRef struct {
	Name           string     `json:"name"`
	CurrentVersion string     `json:"currentVersion"`
	LatestVersion  string     `json:"latestVersion"`
	Homepage       string     `json:"homepage,omitempty"`
	Dev            bool       `json:"dev"`
	Change         ChangeKind `json:"change"`
}

// PackageGroup is an ordered, reasoned partition of packages sharing
// one upgrade batch and one commit.
type PackageGroup struct {
	Members   []PackageRef `json:"members" validate:"required,min=1,dive"`
	Reasoning string       `json:"reasoning"`
	Priority  int          `json:"priority" validate:"min=1,max=10"`
}

// Names returns the member package names, in member order.
func (g PackageGroup) Names() []string {
	names := make([]string, len(g.Members))
	for i, m := range g.Members {
		names[i] = m.Name
	}
	return names
}

// Edit is a single search/replace instruction targeting one file.
// search must occur exactly once in file at apply time; search and
// replace must preserve the file's native line endings.
type Edit struct {
	File        string `json:"file" validate:"required"`
	Description string `json:"description"`
	Search      string `json:"search" validate:"required"`
	Replace     string `json:"replace"`
}

// TestOutcome is the result of one build or test invocation.
type TestOutcome struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Combined returns stdout and stderr concatenated, the form consumed
// by the Localizer's and Fixer's output-parsing heuristics.
func (o TestOutcome) Combined() string {
	if o.Stderr == "" {
		return o.Stdout
	}
	if o.Stdout == "" {
		return o.Stderr
	}
	return o.Stdout + "\n" + o.Stderr
}

// MigrationGuide is a retrieved migration document. Transient,
// per-group data only — never persisted in RunState.
type MigrationGuide struct {
	Source    string `json:"source"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Relevance int    `json:"relevance"`
}

// Phase is a node in the orchestrator's state machine.
type Phase string

const (
	PhaseAnalyze   Phase = "ANALYZE"
	PhaseGroup     Phase = "GROUP"
	PhaseUpdate    Phase = "UPDATE"
	PhaseReproduce Phase = "REPRODUCE"
	PhaseLocalize  Phase = "LOCALIZE"
	PhaseFix       Phase = "FIX"
	PhaseValidate  Phase = "VALIDATE"
	PhaseCommit    Phase = "COMMIT"
	PhaseComplete  Phase = "COMPLETE"
)

// Flags carries run-wide toggles that affect transition behavior.
type Flags struct {
	IsVersioned  bool // a VCS is available and commits may be created
	ModelEnabled bool // a model client is configured (API key present)
	DryRun       bool
	Interactive  bool
	NoCommit     bool
}

// RunConfig is the subset of configuration the orchestrator needs at
// every transition (immutable for the run's duration).
type RunConfig struct {
	BuildCommand  string            `json:"buildCommand"`
	TestCommand   string            `json:"testCommand"`
	MaxRetries    int               `json:"maxRetries"`
	CreateCommits bool              `json:"createCommits"`
	ModelName     string            `json:"modelName"`
	MigrationDocs map[string]string `json:"migrationDocs,omitempty"`
}

// Plan is the ordered output of Analyze+Group.
type Plan struct {
	Packages []PackageRef   `json:"packages"`
	Groups   []PackageGroup `json:"groups"`
}

// RunState is the orchestrator's durable snapshot, written by the
// Checkpointer after every transition. Owned exclusively by the
// orchestrator.
type RunState struct {
	Phase           Phase         `json:"phase"`
	Plan            Plan          `json:"plan"`
	Cursor          int           `json:"cursor"`
	RetryCount      int           `json:"retryCount"`
	CompletedGroups []int         `json:"completedGroups"`
	LastOutcome     *TestOutcome  `json:"lastOutcome,omitempty"`
	Error           string        `json:"error,omitempty"`
	Config          RunConfig     `json:"config"`
	Flags           Flags         `json:"flags"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// CurrentGroup returns the group the cursor points at, or false if the
// cursor is out of range.
func (s RunState) CurrentGroup() (PackageGroup, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Plan.Groups) {
		return PackageGroup{}, false
	}
	return s.Plan.Groups[s.Cursor], true
}

// HasMoreGroups reports whether a group remains after the cursor.
func (s RunState) HasMoreGroups() bool {
	return s.Cursor+1 < len(s.Plan.Groups)
}

// Clone returns a deep-enough copy for safe mutation by the
// orchestrator (slices and the nested maps are copied).
func (s RunState) Clone() RunState {
	clone := s
	clone.Plan.Packages = append([]PackageRef(nil), s.Plan.Packages...)
	clone.Plan.Groups = make([]PackageGroup, len(s.Plan.Groups))
	for i, g := range s.Plan.Groups {
		g.Members = append([]PackageRef(nil), g.Members...)
		clone.Plan.Groups[i] = g
	}
	clone.CompletedGroups = append([]int(nil), s.CompletedGroups...)
	if s.Config.MigrationDocs != nil {
		clone.Config.MigrationDocs = make(map[string]string, len(s.Config.MigrationDocs))
		for k, v := range s.Config.MigrationDocs {
			clone.Config.MigrationDocs[k] = v
		}
	}
	if s.LastOutcome != nil {
		outcome := *s.LastOutcome
		clone.LastOutcome = &outcome
	}
	return clone
}
