package docsearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pnupu/auto-updater/internal/domain"
)

func TestDocSearch_Search_UserURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("migration guide content"))
	}))
	defer srv.Close()

	d := New(nil)
	guides := d.Search(context.Background(), domain.PackageRef{Name: "some-pkg"}, []string{srv.URL})

	if assert.Len(t, guides, 1) {
		assert.Equal(t, "user", guides[0].Source)
		assert.Equal(t, scoreUserURL, guides[0].Relevance)
	}
}

func TestDocSearch_Search_NoStrategiesMatch(t *testing.T) {
	d := New(nil)
	guides := d.Search(context.Background(), domain.PackageRef{Name: "totally-unknown-pkg"}, nil)
	assert.Empty(t, guides)
}

func TestDocSearch_Search_CachesResultsAcrossCalls(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("migration guide content"))
	}))
	defer srv.Close()

	d := New(nil)
	pkg := domain.PackageRef{Name: "cached-pkg", LatestVersion: "2.0.0", Homepage: srv.URL}

	first := d.Search(context.Background(), pkg, nil)
	second := d.Search(context.Background(), pkg, nil)

	assert.Equal(t, first, second)
	_, ok := d.cache.Get("cached-pkg@2.0.0")
	assert.True(t, ok, "result should be cached under name@version")
}

func TestRankAndDedup_SortsByRelevanceAndDedupes(t *testing.T) {
	guides := []domain.MigrationGuide{
		{URL: "https://a", Relevance: 6},
		{URL: "https://b", Relevance: 15},
		{URL: "https://a", Relevance: 9},
	}
	out := rankAndDedup(guides)
	assert.Len(t, out, 2)
	assert.Equal(t, "https://b", out[0].URL)
	assert.Equal(t, 15, out[0].Relevance)
}

func TestRankAndDedup_TruncatesToMaxResults(t *testing.T) {
	var guides []domain.MigrationGuide
	for i := 0; i < 10; i++ {
		guides = append(guides, domain.MigrationGuide{URL: string(rune('a' + i)), Relevance: i})
	}
	out := rankAndDedup(guides)
	assert.Len(t, out, maxResults)
}

func TestExtractVersionWindow(t *testing.T) {
	changelog := `## 18.0.0
- breaking change A

## 17.0.0
- breaking change B

## 16.0.0
- old stuff
`
	window := extractVersionWindow(changelog, "17.0.0", "18.0.0")
	assert.Contains(t, window, "18.0.0")
	assert.Contains(t, window, "breaking change A")
	assert.NotContains(t, window, "16.0.0")
	assert.NotContains(t, window, "old stuff")
}

func TestMajorInt(t *testing.T) {
	assert.Equal(t, 18, majorInt("18.2.0"))
	assert.Equal(t, 4, majorInt("4.5.0"))
}

func TestCandidateTags(t *testing.T) {
	tags := candidateTags(domain.PackageRef{Name: "react", LatestVersion: "18.2.0"})
	assert.Contains(t, tags, "v18.2.0")
	assert.Contains(t, tags, "18.2.0")
	assert.Contains(t, tags, "react@18.2.0")
}

func TestCapContent_TruncatesLargeContent(t *testing.T) {
	big := make([]byte, maxGuideBytes+100)
	for i := range big {
		big[i] = 'x'
	}
	got := capContent(string(big))
	assert.Len(t, got, maxGuideBytes)
}
