package fixer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnupu/auto-updater/internal/domain"
	"github.com/pnupu/auto-updater/internal/modelclient"
)

func TestFixer_Fix_NoModel(t *testing.T) {
	f := New(nil, nil)
	edits, err := f.Fix(context.Background(), Input{Package: domain.PackageRef{Name: "react"}})
	require.NoError(t, err)
	assert.Nil(t, edits)
}

func TestFixer_Fix_Success(t *testing.T) {
	mock := &modelclient.MockModelClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "react")
			assert.Contains(t, prompt, "17.0.0")
			return "```json\n{\"edits\": [{\"file\": \"src/App.tsx\", \"description\": \"use createRoot\", \"search\": \"ReactDOM.render(<App/>, root)\", \"replace\": \"createRoot(root).render(<App/>)\"}]}\n```", nil
		},
	}
	f := New(mock, nil)
	edits, err := f.Fix(context.Background(), Input{
		Package: domain.PackageRef{Name: "react", CurrentVersion: "17.0.0", LatestVersion: "18.2.0"},
		Output:  "react error at src/App.tsx",
		Candidates: []CandidateFile{
			{Path: "src/App.tsx", Content: "ReactDOM.render(<App/>, root)"},
		},
	})
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "src/App.tsx", edits[0].File)
	assert.Equal(t, "ReactDOM.render(<App/>, root)", edits[0].Search)
}

func TestFixer_Fix_MalformedJSON(t *testing.T) {
	mock := &modelclient.MockModelClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "not json at all", nil
		},
	}
	f := New(mock, nil)
	edits, err := f.Fix(context.Background(), Input{Package: domain.PackageRef{Name: "react"}})
	require.NoError(t, err)
	assert.Nil(t, edits)
}

func TestFixer_Fix_EditFailsSchemaValidation(t *testing.T) {
	mock := &modelclient.MockModelClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"edits": [{"file": "src/App.tsx", "description": "use createRoot", "replace": "createRoot(root).render(<App/>)"}]}`, nil
		},
	}
	f := New(mock, nil)
	edits, err := f.Fix(context.Background(), Input{Package: domain.PackageRef{Name: "react"}})
	require.NoError(t, err)
	assert.Nil(t, edits, "an edit missing its required search field must be treated as no result")
}

func TestFixer_Fix_ModelError(t *testing.T) {
	mock := &modelclient.MockModelClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", assert.AnError
		},
	}
	f := New(mock, nil)
	edits, err := f.Fix(context.Background(), Input{Package: domain.PackageRef{Name: "react"}})
	require.NoError(t, err)
	assert.Nil(t, edits)
}

func TestFilteredOutput_CapsAndFilters(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "noise line")
	}
	lines = append(lines, "react failure line")
	output := strings.Join(lines, "\n")

	got := filteredOutput(output, "react")
	assert.Equal(t, "react failure line", got)
}

func TestFilteredOutput_FallsBackToTail(t *testing.T) {
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, "line")
	}
	output := strings.Join(lines, "\n")

	got := filteredOutput(output, "nonexistent")
	assert.Len(t, strings.Split(got, "\n"), maxOutputLines)
}
