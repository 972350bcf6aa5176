// Package manifest reads and writes the package-ecosystem-standard JSON
// manifest (dependencies/devDependencies maps of name -> version range)
// and normalizes version strings for the rest of the engine.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/pnupu/auto-updater/internal/domain"
)

// Manifest is the parsed form of the project's package manifest.
// Fields beyond Dependencies/DevDependencies are preserved in Extra so
// that round-tripping a manifest never drops unknown keys.
type Manifest struct {
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses raw manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	m := &Manifest{Extra: map[string]json.RawMessage{}}
	for key, value := range raw {
		switch key {
		case "dependencies":
			if err := json.Unmarshal(value, &m.Dependencies); err != nil {
				return nil, fmt.Errorf("parse dependencies: %w", err)
			}
		case "devDependencies":
			if err := json.Unmarshal(value, &m.DevDependencies); err != nil {
				return nil, fmt.Errorf("parse devDependencies: %w", err)
			}
		default:
			m.Extra[key] = value
		}
	}
	return m, nil
}

// Text renders the manifest back to JSON, preserving a terminal
// newline, with unknown top-level keys kept in their original form and
// dependencies/devDependencies sorted by name for a stable diff.
func (m *Manifest) Text() ([]byte, error) {
	ordered := map[string]json.RawMessage{}
	for k, v := range m.Extra {
		ordered[k] = v
	}
	if len(m.Dependencies) > 0 {
		raw, err := marshalSorted(m.Dependencies)
		if err != nil {
			return nil, err
		}
		ordered["dependencies"] = raw
	}
	if len(m.DevDependencies) > 0 {
		raw, err := marshalSorted(m.DevDependencies)
		if err != nil {
			return nil, err
		}
		ordered["devDependencies"] = raw
	}

	keys := make([]string, 0, len(ordered))
	for k := range ordered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString("  ")
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteString(": ")
		buf.Write(reindent(ordered[k]))
	}
	if len(keys) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	buf.WriteByte('\n')
	return []byte(buf.String()), nil
}

// Write renders and writes the manifest to path.
func (m *Manifest) Write(path string) error {
	text, err := m.Text()
	if err != nil {
		return err
	}
	return os.WriteFile(path, text, 0644)
}

func marshalSorted(m map[string]string) (json.RawMessage, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString("    ")
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteString(": ")
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	if len(keys) > 0 {
		buf.WriteByte('\n')
		buf.WriteString("  ")
	}
	buf.WriteByte('}')
	return json.RawMessage(buf.String()), nil
}

// reindent adds two leading spaces to every line after the first so a
// pre-rendered nested object lines up under the top-level key.
func reindent(raw json.RawMessage) json.RawMessage {
	lines := strings.Split(string(raw), "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = "  " + lines[i]
	}
	return json.RawMessage(strings.Join(lines, "\n"))
}

// Section selects the dependency map a package belongs to.
func (m *Manifest) Section(dev bool) map[string]string {
	if dev {
		if m.DevDependencies == nil {
			m.DevDependencies = map[string]string{}
		}
		return m.DevDependencies
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	return m.Dependencies
}

// Find returns the version range and dev flag for name, if present.
func (m *Manifest) Find(name string) (version string, dev bool, ok bool) {
	if v, found := m.Dependencies[name]; found {
		return v, false, true
	}
	if v, found := m.DevDependencies[name]; found {
		return v, true, true
	}
	return "", false, false
}

// SetVersion overwrites name's version constraint in its current
// section (runtime or dev), leaving the other section untouched.
func (m *Manifest) SetVersion(name, constraint string, dev bool) {
	m.Section(dev)[name] = constraint
}

// stripLeadingRangeOperator removes a single leading range operator
// (^, ~, >=, <=, >, <, =) so downstream components see a bare semver.
func stripLeadingRangeOperator(v string) string {
	v = strings.TrimSpace(v)
	for _, op := range []string{">=", "<=", "^", "~", ">", "<", "="} {
		if strings.HasPrefix(v, op) {
			return strings.TrimSpace(strings.TrimPrefix(v, op))
		}
	}
	return v
}

// CleanVersion strips any leading range operator, the normalization
// every PackageRef version string is put through by the Analyzer.
func CleanVersion(v string) string {
	return stripLeadingRangeOperator(v)
}

// CaretRange renders version as a caret range ("^1.2.3"), the
// constraint form the Updater writes for a package's new target.
func CaretRange(version string) string {
	return "^" + CleanVersion(version)
}

// ClassifyChange coerces two version strings to semver and classifies
// the bump between them for cosmetic logging only.
func ClassifyChange(from, to string) domain.ChangeKind {
	f, t := coerceSemver(from), coerceSemver(to)
	if f == "" || t == "" {
		return domain.ChangeUnknown
	}
	switch {
	case semver.Major(t) != semver.Major(f):
		return domain.ChangeMajor
	case semver.MajorMinor(t) != semver.MajorMinor(f):
		return domain.ChangeMinor
	case t != f:
		return domain.ChangePatch
	default:
		return domain.ChangeUnknown
	}
}

// coerceSemver normalizes v into the "vX.Y.Z" form x/mod/semver
// requires, padding a missing minor/patch with zeroes. Returns "" if
// no leading numeric component can be found.
func coerceSemver(v string) string {
	v = CleanVersion(v)
	v = strings.TrimPrefix(v, "v")
	core := v
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core = v[:i]
	}
	parts := strings.Split(core, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	for _, p := range parts[:3] {
		if p == "" {
			return ""
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return ""
			}
		}
	}
	candidate := "v" + strings.Join(parts[:3], ".")
	if !semver.IsValid(candidate) {
		return ""
	}
	return candidate
}
