// Package grouper partitions outdated packages into upgrade batches,
// optionally using a model for semantically-aware grouping and always
// falling back to a deterministic split when the model is unavailable
// or returns something that doesn't validate.
package grouper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/modelclient"
)

// Grouper produces an ordered plan of package groups from a flat list
// of outdated references.
type Grouper struct {
	model     modelclient.ModelClient
	validator *validator.Validate
	logger    *slog.Logger
}

// New returns a Grouper. model may be nil, in which case Group always
// uses the deterministic fallback.
func New(model modelclient.ModelClient, logger *slog.Logger) *Grouper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grouper{model: model, validator: validator.New(), logger: logger}
}

type modelGroup struct {
	Members   []string `json:"members"`
	Reasoning string   `json:"reasoning"`
	Priority  int      `json:"priority"`
}

type modelGroupingResponse struct {
	Groups []modelGroup `json:"groups"`
}

// Group partitions refs into PackageGroups, sorted by descending
// priority. When the model is unavailable, disabled, or returns an
// invalid response, it falls back to the deterministic split: one
// group of every major-bump package (priority 2, upgraded first since
// it's riskiest) and one group of everything else (priority 1).
func (g *Grouper) Group(ctx context.Context, refs []domain.PackageRef) ([]domain.PackageGroup, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	if g.model != nil {
		groups, err := g.groupWithModel(ctx, refs)
		if err == nil {
			return groups, nil
		}
		g.logger.Warn("model grouping failed, falling back to deterministic split", "error", err)
	}

	return deterministicGroups(refs), nil
}

func (g *Grouper) groupWithModel(ctx context.Context, refs []domain.PackageRef) ([]domain.PackageGroup, error) {
	prompt := buildGroupingPrompt(refs)

	response, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}

	var parsed modelGroupingResponse
	if err := json.Unmarshal([]byte(modelclient.ExtractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	byName := make(map[string]domain.PackageRef, len(refs))
	for _, r := range refs {
		byName[r.Name] = r
	}

	seen := make(map[string]bool, len(refs))
	groups := make([]domain.PackageGroup, 0, len(parsed.Groups))
	for _, mg := range parsed.Groups {
		if len(mg.Members) == 0 {
			return nil, fmt.Errorf("model returned a group with no members")
		}
		members := make([]domain.PackageRef, 0, len(mg.Members))
		for _, name := range mg.Members {
			ref, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("model referenced unknown package %q", name)
			}
			if seen[name] {
				return nil, fmt.Errorf("model placed package %q in more than one group", name)
			}
			seen[name] = true
			members = append(members, ref)
		}

		priority := mg.Priority
		if priority < 1 {
			priority = 1
		}
		if priority > 10 {
			priority = 10
		}

		groups = append(groups, domain.PackageGroup{
			Members:   members,
			Reasoning: mg.Reasoning,
			Priority:  priority,
		})
	}

	if len(seen) != len(refs) {
		return nil, fmt.Errorf("model grouping omitted %d of %d packages", len(refs)-len(seen), len(refs))
	}

	for i := range groups {
		if err := g.validator.Struct(groups[i]); err != nil {
			return nil, fmt.Errorf("validate group: %w", err)
		}
	}

	sortByPriorityDesc(groups)
	return groups, nil
}

// deterministicGroups is the model-free fallback: major bumps first
// (riskiest, isolated so one bad upgrade doesn't block the rest),
// then everything else together.
func deterministicGroups(refs []domain.PackageRef) []domain.PackageGroup {
	var major, rest []domain.PackageRef
	for _, r := range refs {
		if r.Change == domain.ChangeMajor {
			major = append(major, r)
		} else {
			rest = append(rest, r)
		}
	}

	var groups []domain.PackageGroup
	if len(major) > 0 {
		groups = append(groups, domain.PackageGroup{
			Members:   major,
			Reasoning: "major version bumps, isolated for independent build/test validation",
			Priority:  2,
		})
	}
	if len(rest) > 0 {
		groups = append(groups, domain.PackageGroup{
			Members:   rest,
			Reasoning: "minor and patch bumps, batched together",
			Priority:  1,
		})
	}
	return groups
}

func sortByPriorityDesc(groups []domain.PackageGroup) {
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Priority > groups[j].Priority })
}

func buildGroupingPrompt(refs []domain.PackageRef) string {
	var b strings.Builder
	b.WriteString("Group the following outdated dependencies into upgrade batches. ")
	b.WriteString("Packages that commonly break together (e.g. a framework and its type definitions, ")
	b.WriteString("or a library and its plugins) should share a group. Return strict JSON of the form ")
	b.WriteString(`{"groups": [{"members": ["pkg1", "pkg2"], "reasoning": "...", "priority": 1-10}]}. `)
	b.WriteString("Every package below must appear in exactly one group.\n\n")

	for _, r := range refs {
		kind := "dependency"
		if r.Dev {
			kind = "devDependency"
		}
		fmt.Fprintf(&b, "- %s (%s): %s -> %s [%s bump]\n", r.Name, kind, r.CurrentVersion, r.LatestVersion, r.Change)
	}
	return b.String()
}
