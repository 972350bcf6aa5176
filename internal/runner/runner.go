// Package runner executes the project's build and test commands and
// captures their outcome for the Localizer and Fixer to parse.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/pnupu/auto-updater/internal/domain"
)

// Runner executes shell commands in a project directory.
type Runner struct {
	dir    string
	logger *slog.Logger
}

// New returns a Runner rooted at dir.
func New(dir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{dir: dir, logger: logger}
}

// Run splits command with SplitCommand and executes it, capturing
// stdout, stderr, and the exit code. A spawn failure (malformed
// command string, binary not found, or any other error that keeps the
// process from ever running) is reported as a red TestOutcome with the
// failure text in Stderr, not as a Go error — the orchestrator treats
// it exactly like a failing build/test, not a tooling fault.
func (r *Runner) Run(ctx context.Context, command string) (domain.TestOutcome, error) {
	args, err := SplitCommand(command)
	if err != nil {
		return domain.TestOutcome{Success: false, Stderr: fmt.Sprintf("parse command %q: %v", command, err)}, nil
	}
	if len(args) == 0 {
		return domain.TestOutcome{Success: false, Stderr: "empty command"}, nil
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running command", "command", command)
	runErr := cmd.Run()

	outcome := domain.TestOutcome{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runErr == nil {
		outcome.Success = true
		outcome.ExitCode = 0
		return outcome, nil
	}

	exitErr, ok := runErr.(*exec.ExitError)
	if !ok {
		outcome.Success = false
		outcome.Stderr = runErr.Error()
		return outcome, nil
	}

	outcome.Success = false
	outcome.ExitCode = exitErr.ExitCode()
	return outcome, nil
}

// RunAll runs buildCommand, then testCommand only if the build
// succeeded. When the build fails, the test step is reported as
// synthetically skipped rather than invoked, since its output would
// not reflect the actual code under test. Run never returns a non-nil
// error (spawn failures come back as a red outcome instead), so the
// error result is always nil; it is kept so callers can treat Runner
// like any other fallible collaborator.
func (r *Runner) RunAll(ctx context.Context, buildCommand, testCommand string) (build domain.TestOutcome, test domain.TestOutcome, err error) {
	build, _ = r.Run(ctx, buildCommand)
	if !build.Success {
		return build, domain.TestOutcome{Skipped: true}, nil
	}

	test, _ = r.Run(ctx, testCommand)
	return build, test, nil
}

// SplitCommand splits command into argv the way a POSIX shell would
// for the subset this engine needs: whitespace-separated tokens, with
// single- or double-quoted spans preserved as one token and no
// escape-sequence or variable expansion. An unterminated quote is an
// error.
func SplitCommand(command string) ([]string, error) {
	var args []string
	var current []rune
	hasToken := false

	var quote rune
	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current = append(current, r)
			}
		case r == '\'' || r == '"':
			quote = r
			hasToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if hasToken {
				args = append(args, string(current))
				current = nil
				hasToken = false
			}
		default:
			current = append(current, r)
			hasToken = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote starting with %q", quote)
	}
	if hasToken {
		args = append(args, string(current))
	}
	return args, nil
}
