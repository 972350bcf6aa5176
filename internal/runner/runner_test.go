package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{"simple", "npm test", []string{"npm", "test"}, false},
		{"double quoted arg", `npm run "test:unit"`, []string{"npm", "run", "test:unit"}, false},
		{"single quoted arg with space", `echo 'hello world'`, []string{"echo", "hello world"}, false},
		{"extra whitespace", "  npm   test  ", []string{"npm", "test"}, false},
		{"unterminated quote", `npm "test`, nil, true},
		{"empty", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitCommand(tt.command)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunner_Run_Success(t *testing.T) {
	r := New(".", nil)
	outcome, err := r.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Contains(t, outcome.Stdout, "hello")
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	r := New(".", nil)
	outcome, err := r.Run(context.Background(), "sh -c 'exit 3'")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, 3, outcome.ExitCode)
}

func TestRunner_Run_BinaryNotFound(t *testing.T) {
	r := New(".", nil)
	outcome, err := r.Run(context.Background(), "this-binary-does-not-exist-xyz")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Stderr)
}

func TestRunner_Run_EmptyCommandIsRedOutcome(t *testing.T) {
	r := New(".", nil)
	outcome, err := r.Run(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "empty command", outcome.Stderr)
}

func TestRunner_Run_UnterminatedQuoteIsRedOutcome(t *testing.T) {
	r := New(".", nil)
	outcome, err := r.Run(context.Background(), `npm "test`)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Stderr, "unterminated quote")
}

func TestRunner_RunAll_BuildFailsSkipsTest(t *testing.T) {
	r := New(".", nil)
	build, test, err := r.RunAll(context.Background(), "sh -c 'exit 1'", "echo should-not-run")
	require.NoError(t, err)
	assert.False(t, build.Success)
	assert.True(t, test.Skipped)
}

func TestRunner_RunAll_BuildSucceedsRunsTest(t *testing.T) {
	r := New(".", nil)
	build, test, err := r.RunAll(context.Background(), "echo building", "echo testing")
	require.NoError(t, err)
	assert.True(t, build.Success)
	assert.True(t, test.Success)
	assert.False(t, test.Skipped)
	assert.Contains(t, test.Stdout, "testing")
}
