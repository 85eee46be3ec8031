package command_test

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockhand/internal/command"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests drive /bin/sh")
	}
}

func runCollect(t *testing.T, argv []string, opts command.Options) (*command.Result, []string, error) {
	t.Helper()

	var lines []string
	res, err := command.Run(argv, func(line string) {
		lines = append(lines, line)
	}, opts)
	require.NotNil(t, res)
	return res, lines, err
}

func TestRunStreamsLinesInOrder(t *testing.T) {
	requireShell(t)

	res, lines, err := runCollect(t, []string{"sh", "-c", `printf 'a\nb\nc\n'`}, command.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "$ sh -c"))
	assert.Equal(t, []string{"a", "b", "c"}, lines[1:])
	assert.Equal(t, lines, res.Tail)
}

func TestRunSplitsOnCarriageReturn(t *testing.T) {
	requireShell(t)

	// progress-style output: \r separated, trailing data without newline
	_, lines, err := runCollect(t, []string{"sh", "-c", `printf 'one\rtwo\nthree'`}, command.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines[1:])
}

func TestRunReportsExitCode(t *testing.T) {
	requireShell(t)

	res, _, err := runCollect(t, []string{"sh", "-c", "exit 3"}, command.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunKillsOnTimeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	res, lines, err := runCollect(t, []string{"sh", "-c", "echo started; sleep 30"}, command.Options{
		Timeout: 300 * time.Millisecond,
	})
	require.ErrorIs(t, err, command.ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotEqual(t, 0, res.ExitCode)

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "started")
	assert.Contains(t, joined, "[timeout] exceeded")
}

func TestRunTimeoutKillsDescendants(t *testing.T) {
	requireShell(t)

	// the shell replaces itself with the long sleep while its background
	// child keeps the output pipe open past the parent's death
	start := time.Now()
	_, _, err := runCollect(t, []string{"sh", "-c", "sleep 5 & exec sleep 60"}, command.Options{
		Timeout: 300 * time.Millisecond,
	})
	require.ErrorIs(t, err, command.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunRedactsSecrets(t *testing.T) {
	requireShell(t)

	res, lines, err := runCollect(t,
		[]string{"sh", "-c", "echo token=s3cr3t-value"},
		command.Options{Secrets: []string{"s3cr3t-value"}})
	require.NoError(t, err)

	joined := strings.Join(lines, "\n")
	assert.NotContains(t, joined, "s3cr3t-value")
	assert.Contains(t, joined, "token=***")
	assert.NotContains(t, res.TailText(), "s3cr3t-value")
	// the command echo line is redacted too
	assert.Contains(t, lines[0], "***")
}

func TestRunBoundsTail(t *testing.T) {
	requireShell(t)

	res, _, err := runCollect(t,
		[]string{"sh", "-c", `i=1; while [ $i -le 20 ]; do echo line$i; i=$((i+1)); done`},
		command.Options{TailLines: 5})
	require.NoError(t, err)

	assert.Len(t, res.Tail, 5)
	assert.Equal(t, []string{"line16", "line17", "line18", "line19", "line20"}, res.Tail)
}

func TestRunSpawnFailure(t *testing.T) {
	res, _, err := runCollect(t, []string{"definitely-not-a-command-dockhand-test"}, command.Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, command.ErrTimeout)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunEmptyCommand(t *testing.T) {
	_, err := command.Run(nil, nil, command.Options{})
	assert.Error(t, err)
}
