package exec

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandCapturesStdout(t *testing.T) {
	res, err := Command(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestCommandCapturesStderrAndExitCode(t *testing.T) {
	res, err := Command(context.Background(), "echo oops >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Contains(t, err.Error(), "exit 3")
}

func TestCommandWorkingDir(t *testing.T) {
	dir := t.TempDir()
	res, err := Command(context.Background(), "pwd", WithWorkingDir(dir))
	require.NoError(t, err)
	// Resolve symlinks (macOS tempdirs live under /private).
	resolved, err := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, expected, resolved)
}

func TestCommandEnvMerge(t *testing.T) {
	res, err := Command(context.Background(), "echo $PIPELINE_TOKEN",
		WithEnv(map[string]string{"PIPELINE_TOKEN": "s3cret"}))
	require.NoError(t, err)
	assert.Equal(t, "s3cret\n", res.Stdout)
}

func TestCommandRetriesUntilSuccess(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran-once")
	// Fails on the first attempt, succeeds on the second.
	line := "if [ -f " + marker + " ]; then exit 0; else touch " + marker + "; exit 1; fi"

	res, err := Command(context.Background(), line, WithRetries(2, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestCommandContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Command(ctx, "exit 1", WithRetries(100, 30*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
