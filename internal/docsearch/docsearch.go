// Package docsearch retrieves migration guides for an upgraded
// package from up to five independent sources, joining whichever
// succeed within their fetch deadlines.
package docsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/mod/semver"

	"github.com/pnupu/auto-updater/internal/domain"
)

const (
	fetchTimeout  = 10 * time.Second
	maxGuideBytes = 100 * 1024
	maxResults    = 5
	maxChangelogWindowLines = 150
)

const (
	scoreUserURL      = 15
	scoreCuratedDocs  = 10
	scoreReleaseNotes = 9
	scoreChangelog    = 8
	scoreHomepage     = 6
)

// knownDocs maps a package name to a function producing candidate
// doc URLs for a target version, the curated lookup table for popular
// ecosystem packages.
var knownDocs = map[string]func(version string) []string{
	"react": func(v string) []string {
		return []string{"https://react.dev/blog/2022/03/29/react-v18", "https://legacy.reactjs.org/docs/how-to-contribute.html"}
	},
	"typescript": func(v string) []string {
		return []string{fmt.Sprintf("https://www.typescriptlang.org/docs/handbook/release-notes/typescript-%s.html", majorMinor(v))}
	},
}

// forgeRepos maps a package name to its canonical source-forge
// owner/repo, used for the release-notes and changelog strategies.
var forgeRepos = map[string]string{
	"react":      "facebook/react",
	"react-dom":  "facebook/react",
	"typescript": "microsoft/TypeScript",
}

var changelogFilenames = []string{"CHANGELOG.md", "CHANGES.md", "HISTORY.md"}

// DocSearch retrieves migration guides for a package upgrade.
type DocSearch struct {
	httpClient *http.Client
	cache      *lru.Cache[string, []domain.MigrationGuide]
	logger     *slog.Logger
}

// New returns a DocSearch. userURLs supplied per-run are passed to
// Search, not configured here.
func New(logger *slog.Logger) *DocSearch {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, []domain.MigrationGuide](256)
	return &DocSearch{
		httpClient: &http.Client{Timeout: fetchTimeout},
		cache:      cache,
		logger:     logger,
	}
}

// Search runs all five strategies for pkg concurrently, bounded by
// fetchTimeout each, and returns up to five guides sorted by
// relevance and deduplicated by URL. userURLs are the operator's
// explicitly supplied documentation links for this package.
func (d *DocSearch) Search(ctx context.Context, pkg domain.PackageRef, userURLs []string) []domain.MigrationGuide {
	cacheKey := pkg.Name + "@" + pkg.LatestVersion
	if len(userURLs) == 0 {
		if cached, ok := d.cache.Get(cacheKey); ok {
			return cached
		}
	}

	var (
		g        errgroup.Group
		resultsMu sync.Mutex
		results  []domain.MigrationGuide
	)

	add := func(guides ...domain.MigrationGuide) {
		resultsMu.Lock()
		defer resultsMu.Unlock()
		results = append(results, guides...)
	}

	g.Go(func() error {
		add(d.fetchUserURLs(ctx, userURLs)...)
		return nil
	})
	g.Go(func() error {
		add(d.fetchCuratedDocs(ctx, pkg)...)
		return nil
	})
	g.Go(func() error {
		if guide, ok := d.fetchReleaseNotes(ctx, pkg); ok {
			add(guide)
		}
		return nil
	})
	g.Go(func() error {
		if guide, ok := d.fetchChangelog(ctx, pkg); ok {
			add(guide)
		}
		return nil
	})
	g.Go(func() error {
		if guide, ok := d.fetchHomepage(ctx, pkg); ok {
			add(guide)
		}
		return nil
	})

	_ = g.Wait() // each goroutine swallows its own error; best-effort join

	ranked := rankAndDedup(results)
	if len(userURLs) == 0 {
		d.cache.Add(cacheKey, ranked)
	}
	return ranked
}

func (d *DocSearch) fetchUserURLs(ctx context.Context, urls []string) []domain.MigrationGuide {
	var guides []domain.MigrationGuide
	for _, u := range urls {
		content, err := d.fetchText(ctx, u)
		if err != nil {
			d.logger.Debug("user doc URL fetch failed", "url", u, "error", err)
			continue
		}
		guides = append(guides, domain.MigrationGuide{Source: "user", URL: u, Content: capContent(content), Relevance: scoreUserURL})
	}
	return guides
}

func (d *DocSearch) fetchCuratedDocs(ctx context.Context, pkg domain.PackageRef) []domain.MigrationGuide {
	fn, ok := knownDocs[pkg.Name]
	if !ok {
		return nil
	}
	var guides []domain.MigrationGuide
	for _, u := range fn(pkg.LatestVersion) {
		content, err := d.fetchText(ctx, u)
		if err != nil {
			d.logger.Debug("curated doc fetch failed", "url", u, "error", err)
			continue
		}
		guides = append(guides, domain.MigrationGuide{Source: "curated", URL: u, Content: capContent(content), Relevance: scoreCuratedDocs})
	}
	return guides
}

type githubRelease struct {
	Body string `json:"body"`
	HTML string `json:"html_url"`
}

// fetchReleaseNotes tries several tag formats against the forge's JSON
// API, falling back to scraping the HTML release page if the API call
// fails or returns nothing usable.
func (d *DocSearch) fetchReleaseNotes(ctx context.Context, pkg domain.PackageRef) (domain.MigrationGuide, bool) {
	repo, ok := forgeRepos[pkg.Name]
	if !ok {
		return domain.MigrationGuide{}, false
	}

	for _, tag := range candidateTags(pkg) {
		apiURL := fmt.Sprintf("https://api.github.com/repos/%s/releases/tags/%s", repo, tag)
		body, err := d.fetchBytes(ctx, apiURL)
		if err == nil {
			var rel githubRelease
			if json.Unmarshal(body, &rel) == nil && rel.Body != "" {
				return domain.MigrationGuide{Source: "release-notes", URL: rel.HTML, Content: capContent(rel.Body), Relevance: scoreReleaseNotes}, true
			}
		}

		htmlURL := fmt.Sprintf("https://github.com/%s/releases/tag/%s", repo, tag)
		if content, err := d.scrapeReleasePage(ctx, htmlURL); err == nil {
			return domain.MigrationGuide{Source: "release-notes", URL: htmlURL, Content: capContent(content), Relevance: scoreReleaseNotes}, true
		}
	}
	return domain.MigrationGuide{}, false
}

func (d *DocSearch) scrapeReleasePage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	body := strings.TrimSpace(doc.Find("div.markdown-body").First().Text())
	if body == "" {
		return "", fmt.Errorf("no release body found")
	}
	return body, nil
}

func candidateTags(pkg domain.PackageRef) []string {
	return []string{
		"v" + pkg.LatestVersion,
		pkg.LatestVersion,
		pkg.Name + "@" + pkg.LatestVersion,
	}
}

// fetchChangelog tries a fixed set of filenames on main then master,
// then slices the content to the version window between the current
// and latest major versions.
func (d *DocSearch) fetchChangelog(ctx context.Context, pkg domain.PackageRef) (domain.MigrationGuide, bool) {
	repo, ok := forgeRepos[pkg.Name]
	if !ok {
		return domain.MigrationGuide{}, false
	}

	for _, branch := range []string{"main", "master"} {
		for _, name := range changelogFilenames {
			rawURL := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", repo, branch, name)
			content, err := d.fetchText(ctx, rawURL)
			if err != nil {
				continue
			}
			window := extractVersionWindow(content, pkg.CurrentVersion, pkg.LatestVersion)
			if window == "" {
				continue
			}
			return domain.MigrationGuide{Source: "changelog", URL: rawURL, Content: capContent(window), Relevance: scoreChangelog}, true
		}
	}
	return domain.MigrationGuide{}, false
}

var versionHeaderRe = regexp.MustCompile(`(?i)^#{1,3}\s*\[?v?(\d+)\.\d+\.\d+`)

// extractVersionWindow operates line-by-line: start capturing when a
// header line's major version is <= target and > from; stop when a
// header line's major version is <= from; capped at
// maxChangelogWindowLines.
func extractVersionWindow(content, from, target string) string {
	fromMajor := majorInt(from)
	targetMajor := majorInt(target)

	var lines []string
	capturing := false
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := versionHeaderRe.FindStringSubmatch(line); m != nil {
			major := atoiSafe(m[1])
			if capturing && major <= fromMajor {
				break
			}
			if major <= targetMajor && major > fromMajor {
				capturing = true
			} else {
				capturing = false
			}
		}
		if capturing {
			lines = append(lines, line)
			if len(lines) >= maxChangelogWindowLines {
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

func majorInt(version string) int {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return 0
	}
	return atoiSafe(strings.TrimPrefix(semver.Major(v), "v"))
}

func majorMinor(version string) string {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return version
	}
	return strings.TrimPrefix(semver.MajorMinor(v), "v")
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

var migrationKeywords = []string{"migrat", "upgrad", "breaking"}

// fetchHomepage extracts paragraphs mentioning migration keywords from
// the package's homepage.
func (d *DocSearch) fetchHomepage(ctx context.Context, pkg domain.PackageRef) (domain.MigrationGuide, bool) {
	if pkg.Homepage == "" {
		return domain.MigrationGuide{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.Homepage, nil)
	if err != nil {
		return domain.MigrationGuide{}, false
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.MigrationGuide{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.MigrationGuide{}, false
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return domain.MigrationGuide{}, false
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(s.Text())
		for _, kw := range migrationKeywords {
			if strings.Contains(text, kw) {
				paragraphs = append(paragraphs, strings.TrimSpace(s.Text()))
				break
			}
		}
	})
	if len(paragraphs) == 0 {
		return domain.MigrationGuide{}, false
	}

	return domain.MigrationGuide{
		Source:    "homepage",
		URL:       pkg.Homepage,
		Content:   capContent(strings.Join(paragraphs, "\n\n")),
		Relevance: scoreHomepage,
	}, true
}

func (d *DocSearch) fetchText(ctx context.Context, url string) (string, error) {
	b, err := d.fetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *DocSearch) fetchBytes(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxGuideBytes))
}

func capContent(content string) string {
	if len(content) <= maxGuideBytes {
		return content
	}
	return content[:maxGuideBytes]
}

// rankAndDedup sorts by relevance descending, removes duplicate URLs
// keeping the first (highest-relevance) occurrence, and truncates to
// maxResults.
func rankAndDedup(guides []domain.MigrationGuide) []domain.MigrationGuide {
	sort.SliceStable(guides, func(i, j int) bool {
		return guides[i].Relevance > guides[j].Relevance
	})

	seen := map[string]bool{}
	var out []domain.MigrationGuide
	for _, g := range guides {
		if g.URL != "" && seen[g.URL] {
			continue
		}
		if g.URL != "" {
			seen[g.URL] = true
		}
		out = append(out, g)
		if len(out) >= maxResults {
			break
		}
	}
	return out
}
