package exec

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"dependencies", PriorityDependencies, false},
		{"CODEGEN", PriorityCodegen, false},
		{"default", PriorityDefault, false},
		{"", PriorityDefault, false},
		{"later", PriorityDefault, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommand_Matches(t *testing.T) {
	changed := []string{"go.mod", "internal/api/handler.go"}

	assert.True(t, Command{}.Matches(nil))
	assert.True(t, Command{OnlyIfChanged: []string{"go.mod"}}.Matches(changed))
	assert.True(t, Command{OnlyIfChanged: []string{"**/*.go"}}.Matches(changed))
	assert.False(t, Command{OnlyIfChanged: []string{"*.proto"}}.Matches(changed))
	assert.False(t, Command{OnlyIfChanged: []string{"go.mod"}}.Matches(nil))
}

func TestRunner_PriorityOrder(t *testing.T) {
	runner := NewRunner(mockExecutor(nil), RunnerOptions{})

	cmds := []Command{
		{Args: []string{"echo", "default-1"}},
		{Args: []string{"echo", "codegen"}, Priority: PriorityCodegen},
		{Args: []string{"echo", "default-2"}},
		{Args: []string{"echo", "deps"}, Priority: PriorityDependencies},
	}

	report := runner.Run(context.Background(), cmds, nil)
	require.False(t, report.Failed())
	require.NoError(t, report.Err())

	var order []string
	for _, c := range report.Completed {
		order = append(order, string(bytes.TrimSpace(c.Result.Stdout)))
	}
	assert.Equal(t, []string{"deps", "codegen", "default-1", "default-2"}, order)
}

func TestRunner_FailureDoesNotStopLaterCommands(t *testing.T) {
	runner := NewRunner(mockExecutor(nil), RunnerOptions{})

	cmds := []Command{
		{Args: []string{"error"}, Priority: PriorityDependencies},
		{Args: []string{"echo", "still runs"}},
		{},
	}

	report := runner.Run(context.Background(), cmds, nil)
	require.Len(t, report.Completed, 1)
	require.Len(t, report.FailedCommands, 2)

	failed := report.FailedCommands[0]
	assert.Equal(t, "error", failed.Command.String())
	assert.Equal(t, "error occurred\n", string(failed.Stderr))
	assert.Equal(t, "partial output\n", string(failed.Stdout))

	var fce *FailedCommandsError
	require.True(t, errors.As(report.Err(), &fce))
	assert.Len(t, fce.Failures, 2)
	assert.Contains(t, fce.Error(), "2 post-write command(s) failed")
}

func TestRunner_OnlyIfChanged(t *testing.T) {
	runner := NewRunner(mockExecutor(nil), RunnerOptions{})

	cmds := []Command{
		{Args: []string{"echo", "tidy"}, OnlyIfChanged: []string{"go.mod"}},
		{Args: []string{"echo", "protoc"}, OnlyIfChanged: []string{"**/*.proto"}},
	}

	report := runner.Run(context.Background(), cmds, []string{"go.mod"})
	require.Len(t, report.Completed, 1)
	assert.Equal(t, "echo tidy", report.Completed[0].Command.String())
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "echo protoc", report.Skipped[0].String())
}

func TestRunner_EnvAndWorkingDir(t *testing.T) {
	root := t.TempDir()
	runner := NewRunner(mockExecutor(nil), RunnerOptions{Root: root})

	report := runner.Run(context.Background(), []Command{
		{Args: []string{"env", "GREETING"}, Env: map[string]string{"GREETING": "hi"}},
	}, nil)
	require.False(t, report.Failed())
	assert.Equal(t, "hi\n", string(report.Completed[0].Result.Stdout))

	assert.Equal(t, root, runner.workingDir(Command{}))
	assert.Equal(t, root+"/sub", runner.workingDir(Command{WorkingDir: "sub"}))
	assert.Equal(t, "/abs", runner.workingDir(Command{WorkingDir: "/abs"}))
}

func TestRunner_Timeout(t *testing.T) {
	runner := NewRunner(mockExecutor(nil), RunnerOptions{})

	report := runner.Run(context.Background(), []Command{
		{Args: []string{"sleep"}, Timeout: 100 * time.Millisecond},
		{Args: []string{"echo", "after"}},
	}, nil)
	require.Len(t, report.FailedCommands, 1)
	assert.Contains(t, report.FailedCommands[0].Err.Error(), "timed out")
	assert.Len(t, report.Completed, 1)
}

func TestRunner_Stream(t *testing.T) {
	var stream bytes.Buffer
	runner := NewRunner(mockExecutor(nil), RunnerOptions{Stream: &stream})

	report := runner.Run(context.Background(), []Command{{Args: []string{"echo", "visible"}}}, nil)
	require.False(t, report.Failed())
	assert.Contains(t, stream.String(), "│ visible")
}

func TestRunner_CancelledContext(t *testing.T) {
	runner := NewRunner(mockExecutor(nil), RunnerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := runner.Run(ctx, []Command{{Args: []string{"echo", "x"}}}, nil)
	require.Len(t, report.FailedCommands, 1)
	assert.ErrorIs(t, report.FailedCommands[0].Err, context.Canceled)
}
