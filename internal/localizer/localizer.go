// Package localizer maps build and test failure output to a ranked
// list of files likely to need edits for a package upgrade.
package localizer

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/repoindex"
)

// wellKnownSiblings probes a small set of companion packages when a
// bundle's short name alone under-localizes the failure — e.g. a
// react-dom break often shows up only in files importing "react".
var wellKnownSiblings = map[string][]string{
	"react":      {"react-dom"},
	"react-dom":  {"react"},
	"@types/react": {"react"},
	"typescript": {"ts-node"},
}

// pathPatterns recognize a file path inside one line of build/test
// output: module resolution errors, compiler diagnostics, and
// test-runner stack frames. Kept as a named table per the source's
// design note that error heuristics are data, not code.
var pathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|\s)(?:at\s+)?([./\w@-][\w./@-]*\.(?:tsx?|jsx?))(?::\d+(?::\d+)?)?`),
	regexp.MustCompile(`Module not found:.*resolve\s+'[^']+'\s+in\s+'([^']+)'`),
	regexp.MustCompile(`in\s+(\S+\.(?:tsx?|jsx?))`),
}

// Localizer ranks candidate files for a package upgrade's fix attempt.
type Localizer struct {
	index  *repoindex.Index
	logger *slog.Logger
}

// New returns a Localizer backed by index.
func New(index *repoindex.Index, logger *slog.Logger) *Localizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Localizer{index: index, logger: logger}
}

// Candidate is one ranked localization result.
type Candidate struct {
	Path  string
	Score int
}

// Localize ranks files likely responsible for pkg's upgrade breakage,
// given the combined build+test output and the working directory
// prefix to trim from any absolute paths it finds.
func (l *Localizer) Localize(output string, pkg domain.PackageRef, workDir string) []Candidate {
	if err := l.index.Build(); err != nil {
		l.logger.Warn("repo index build failed", "error", err)
	}
	mentioned := extractPaths(output, workDir)

	files := l.index.FindImporting(pkg.Name)
	if len(files) < 3 {
		files = mergeUnique(files, l.index.FindImporting(shortName(pkg.Name)))
		for _, sibling := range wellKnownSiblings[pkg.Name] {
			files = mergeUnique(files, l.index.FindImporting(sibling))
		}
	}
	if len(files) == 0 {
		files = mergeUnique(l.index.FilesUnder("src/"), l.index.FilesUnder("lib/"))
		l.logger.Debug("localizer degraded to directory fallback", "package", pkg.Name, "count", len(files))
	}

	files = mergeUnique(files, intersectKnown(mentioned, l.index.AllFiles()))

	candidates := make([]Candidate, len(files))
	for i, f := range files {
		candidates[i] = Candidate{Path: f, Score: score(f)}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// score implements the prioritization rule: +10 for a src/ prefix,
// +5 for "index" in the path, +3 for component/page substrings, +2
// for a .tsx/.jsx extension, -5 for test/spec in the path.
func score(path string) int {
	lower := strings.ToLower(path)
	s := 0
	if strings.HasPrefix(lower, "src/") {
		s += 10
	}
	if strings.Contains(lower, "index") {
		s += 5
	}
	if strings.Contains(lower, "component") || strings.Contains(lower, "page") {
		s += 3
	}
	if strings.HasSuffix(lower, ".tsx") || strings.HasSuffix(lower, ".jsx") {
		s += 2
	}
	if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
		s -= 5
	}
	return s
}

// shortName returns the trailing path segment of a scoped package
// name (e.g. "@types/react" -> "react"), or name unchanged otherwise.
func shortName(name string) string {
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		return name[idx+1:]
	}
	return name
}

func mergeUnique(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, item := range list {
			if !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}
	return out
}

// extractPaths pulls candidate file paths out of build/test output,
// trimming workDir as an absolute-path prefix. A path that remains
// absolute after trimming is rejected, since it points outside the
// project tree and cannot be matched against the RepoIndex.
func extractPaths(output, workDir string) []string {
	seen := map[string]bool{}
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		for _, re := range pathPatterns {
			for _, m := range re.FindAllStringSubmatch(line, -1) {
				p := m[1]
				if workDir != "" {
					p = strings.TrimPrefix(p, workDir)
					p = strings.TrimPrefix(p, "/")
				}
				if strings.HasPrefix(p, "/") {
					continue
				}
				if !seen[p] {
					seen[p] = true
					paths = append(paths, p)
				}
			}
		}
	}
	return paths
}

// intersectKnown returns the members of mentioned that also appear in
// known, preserving mentioned's order.
func intersectKnown(mentioned, known []string) []string {
	knownSet := map[string]bool{}
	for _, k := range known {
		knownSet[k] = true
	}
	var out []string
	for _, m := range mentioned {
		if knownSet[m] {
			out = append(out, m)
		}
	}
	return out
}
