// Package fixer composes a structured model prompt from a failing
// build/test outcome and candidate files, then parses the model's
// response into a list of proposed edits.
package fixer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/modelclient"
)

const maxOutputLines = 50

// Fixer asks a model client to propose edits that repair a failing
// upgrade.
type Fixer struct {
	model     modelclient.ModelClient
	validator *validator.Validate
	logger    *slog.Logger
}

// New returns a Fixer backed by model. model may be nil, in which case
// Fix always returns an empty edit list.
func New(model modelclient.ModelClient, logger *slog.Logger) *Fixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fixer{model: model, validator: validator.New(), logger: logger}
}

// CandidateFile is one file offered to the model as fix material.
type CandidateFile struct {
	Path    string
	Content string
}

// Input bundles everything the Fixer's prompt needs.
type Input struct {
	Package    domain.PackageRef
	Output     string
	Guides     []domain.MigrationGuide
	Candidates []CandidateFile
}

type editEnvelope struct {
	Edits []domain.Edit `json:"edits"`
}

// Fix composes the prompt, calls the model, and returns the parsed
// edits. A model error or malformed response yields an empty slice
// rather than propagating the failure, per the fixer's failure-path
// contract: the orchestrator treats an empty result as "no fixes
// generated", not as a fatal error in itself.
func (f *Fixer) Fix(ctx context.Context, in Input) ([]domain.Edit, error) {
	if f.model == nil {
		return nil, nil
	}

	prompt := buildPrompt(in)
	response, err := f.model.Complete(ctx, prompt)
	if err != nil {
		f.logger.Warn("fix model call failed", "package", in.Package.Name, "error", err)
		return nil, nil
	}

	raw := modelclient.ExtractJSON(response)
	var envelope editEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		f.logger.Warn("fix response was not valid JSON", "package", in.Package.Name, "error", err)
		return nil, nil
	}

	for i := range envelope.Edits {
		if err := f.validator.Struct(envelope.Edits[i]); err != nil {
			f.logger.Warn("fix response had an edit that failed schema validation", "package", in.Package.Name, "error", err)
			return nil, nil
		}
	}

	return envelope.Edits, nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are fixing a breaking change from upgrading %q from %s to %s.\n\n",
		in.Package.Name, in.Package.CurrentVersion, in.Package.LatestVersion)

	b.WriteString("Relevant build/test output:\n```\n")
	b.WriteString(filteredOutput(in.Output, in.Package.Name))
	b.WriteString("\n```\n\n")

	for _, g := range in.Guides {
		fmt.Fprintf(&b, "Migration guide (%s):\n%s\n\n", g.URL, g.Content)
	}

	for _, c := range in.Candidates {
		fmt.Fprintf(&b, "File %s:\n```\n%s\n```\n\n", c.Path, numberLines(c.Content))
	}

	b.WriteString("Respond with ONLY a JSON object of the form ")
	b.WriteString(`{"edits": [{"file": "...", "description": "...", "search": "...", "replace": "..."}]}`)
	b.WriteString(". Each search string must appear exactly once in its file.\n")
	return b.String()
}

// filteredOutput returns up to maxOutputLines of the lines in output
// that mention pkg, or the last maxOutputLines lines if none mention
// it, keeping the prompt from growing unbounded on noisy test runs.
func filteredOutput(output, pkg string) string {
	var all []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}

	var relevant []string
	for _, line := range all {
		if strings.Contains(line, pkg) {
			relevant = append(relevant, line)
		}
	}
	if len(relevant) == 0 {
		relevant = all
	}
	if len(relevant) > maxOutputLines {
		relevant = relevant[len(relevant)-maxOutputLines:]
	}
	return strings.Join(relevant, "\n")
}

func numberLines(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%4d| %s\n", i+1, line)
	}
	return b.String()
}
