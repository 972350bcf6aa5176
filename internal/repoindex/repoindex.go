// Package repoindex walks the project tree, honoring ignore patterns,
// and indexes each source file's imports so the Localizer can find
// which files reference a given package.
package repoindex

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnorePatterns are the built-in ignore globs, used when New
// is given no patterns. A project's own ignore file is not read.
var DefaultIgnorePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/coverage/**",
	"**/.next/**",
	"**/vendor/**",
}

// Function is one named top-level function, arrow-function-bound
// identifier, or class method (qualified "ClassName.method") found in
// a source file.
type Function struct {
	Name      string
	StartLine int
	EndLine   int
	Params    []string
	HasType   bool
}

// FileInfo is one indexed source file.
type FileInfo struct {
	Path      string
	Imports   []string
	Functions []Function
}

// Index is the lazily-built, in-memory map of the project's source
// files to what they import.
type Index struct {
	root     string
	ignore   []string
	mu       sync.Mutex
	files    []FileInfo
	built    bool
}

// New returns an Index rooted at root using ignorePatterns, or
// DefaultIgnorePatterns if ignorePatterns is empty.
func New(root string, ignorePatterns []string) *Index {
	if len(ignorePatterns) == 0 {
		ignorePatterns = DefaultIgnorePatterns
	}
	return &Index{root: root, ignore: ignorePatterns}
}

var sourceExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
}

// Build walks the tree once, parsing every source file's imports.
// Files that cannot be read are skipped silently so one unreadable
// file never aborts the whole index. Safe to call
// more than once; subsequent calls are no-ops until Invalidate is
// called.
func (ix *Index) Build() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.built {
		return nil
	}

	var files []FileInfo
	err := filepath.Walk(ix.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(ix.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if ix.matchesIgnore(rel, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !sourceExtensions[filepath.Ext(path)] {
			return nil
		}

		content, parseErr := readSource(path)
		if parseErr != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:      rel,
			Imports:   parseImports(content),
			Functions: parseFunctions(content),
		})
		return nil
	})
	if err != nil {
		return err
	}

	ix.files = files
	ix.built = true
	return nil
}

// Invalidate forces the next Build call to rewalk the tree.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.built = false
}

func (ix *Index) matchesIgnore(relPath string, isDir bool) bool {
	candidate := relPath
	if isDir {
		candidate += "/"
	}
	for _, pattern := range ix.ignore {
		if ok, _ := doublestar.Match(pattern, candidate); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// FindImporting returns every indexed file that imports pkg exactly,
// or a subpath of it (e.g. "lodash/debounce" when pkg is "lodash").
func (ix *Index) FindImporting(pkg string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var matches []string
	for _, f := range ix.files {
		for _, imp := range f.Imports {
			if imp == pkg || strings.HasPrefix(imp, pkg+"/") {
				matches = append(matches, f.Path)
				break
			}
		}
	}
	return matches
}

// AllFiles returns every indexed file's relative path.
func (ix *Index) AllFiles() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	paths := make([]string, len(ix.files))
	for i, f := range ix.files {
		paths[i] = f.Path
	}
	return paths
}

// FunctionsIn returns every function fact indexed for relPath, or nil
// if the path wasn't indexed.
func (ix *Index) FunctionsIn(relPath string) []Function {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, f := range ix.files {
		if f.Path == relPath {
			return f.Functions
		}
	}
	return nil
}

// FilesUnder returns every indexed file whose path starts with prefix
// (e.g. "src/" or "lib/"), the Localizer's last-resort degradation
// when a targeted search turns up nothing.
func (ix *Index) FilesUnder(prefix string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var matches []string
	for _, f := range ix.files {
		if strings.HasPrefix(f.Path, prefix) {
			matches = append(matches, f.Path)
		}
	}
	return matches
}

var (
	esImportRe  = regexp.MustCompile(`(?:^|\n)\s*import\s+(?:[\w*${}\s,]+\s+from\s+)?['"]([^'"]+)['"]`)
	esRequireRe = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	esDynamicRe = regexp.MustCompile(`import\(\s*['"]([^'"]+)['"]\s*\)`)
)

// readSource reads the whole file into memory; source files are small
// enough that this is simpler than streaming two independent passes
// over the same content.
func readSource(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// parseImports extracts import/require specifiers from JS/TS source
// content via regex — a full parser is unnecessary for the
// Localizer's purpose of finding candidate files, and staying
// regex-based keeps the index able to scan files of any of the four
// JS/TS dialects without a dedicated parser per dialect.
func parseImports(content string) []string {
	seen := map[string]bool{}
	var imports []string
	for _, re := range []*regexp.Regexp{esImportRe, esRequireRe, esDynamicRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			spec := m[1]
			if !seen[spec] {
				seen[spec] = true
				imports = append(imports, spec)
			}
		}
	}
	return imports
}

var (
	topFuncRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s+(\w+)\s*\(([^)]*)\)\s*(:\s*[^{]+?)?\s*\{`)
	arrowFuncRe = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:const|let|var)\s+(\w+)\s*(?::\s*[^=]+)?=\s*(?:async\s*)?\(([^)]*)\)\s*(:\s*[^=]+?)?\s*=>\s*\{`)
	classRe     = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`)
	methodRe    = regexp.MustCompile(`^\s*(?:public\s+|private\s+|protected\s+|static\s+|async\s+|get\s+|set\s+)*(\w+)\s*\(([^)]*)\)\s*(:\s*[^{]+?)?\s*\{`)
)

// methodKeywords excludes control-flow statements and the "function"
// keyword from being misread as a class method by methodRe.
var methodKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "function": true,
}

// parseFunctions extracts (name, startLine, endLine, params, hasType)
// for every named top-level function, arrow-function-bound
// identifier, and class method (qualified "ClassName.method") in
// content, per line, using the same regex-over-full-parser tradeoff
// as parseImports. Method bodies are bounded by brace counting from
// the declaration line.
func parseFunctions(content string) []Function {
	lines := strings.Split(content, "\n")

	type classFrame struct {
		name  string
		depth int
	}
	var classStack []classFrame
	depth := 0

	var functions []Function
	for i, line := range lines {
		if m := classRe.FindStringSubmatch(line); m != nil {
			classStack = append(classStack, classFrame{name: m[1], depth: depth})
		}

		var name, params, typeAnn string
		qualified := false

		switch {
		case topFuncRe.MatchString(line):
			m := topFuncRe.FindStringSubmatch(line)
			name, params, typeAnn = m[1], m[2], m[3]
		case arrowFuncRe.MatchString(line):
			m := arrowFuncRe.FindStringSubmatch(line)
			name, params, typeAnn = m[1], m[2], m[3]
		case len(classStack) > 0 && depth == classStack[len(classStack)-1].depth+1 && methodRe.MatchString(line):
			m := methodRe.FindStringSubmatch(line)
			if !methodKeywords[m[1]] {
				name, params, typeAnn = m[1], m[2], m[3]
				qualified = true
			}
		}

		if name != "" {
			fullName := name
			if qualified {
				fullName = classStack[len(classStack)-1].name + "." + name
			}
			functions = append(functions, Function{
				Name:      fullName,
				StartLine: i + 1,
				EndLine:   matchingBraceLine(lines, i),
				Params:    splitParams(params),
				HasType:   strings.TrimSpace(typeAnn) != "",
			})
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")

		for len(classStack) > 0 && depth <= classStack[len(classStack)-1].depth {
			classStack = classStack[:len(classStack)-1]
		}
	}
	return functions
}

// matchingBraceLine returns the 1-based line on which the brace
// opened on lines[startIdx] closes.
func matchingBraceLine(lines []string, startIdx int) int {
	depth := 0
	for i := startIdx; i < len(lines); i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
			case '}':
				depth--
			}
		}
		if depth == 0 && i > startIdx {
			return i + 1
		}
		if depth == 0 && i == startIdx && strings.Contains(lines[i], "}") {
			return i + 1
		}
	}
	return startIdx + 1
}

func splitParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var params []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			params = append(params, p)
		}
	}
	return params
}
