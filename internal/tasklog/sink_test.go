package tasklog_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dockhand/internal/tasklog"
)

func TestAppendAndReadTail(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())

	sink.Append("task1", "first")
	sink.Append("task1", "second")
	sink.Append("task1", "third")

	content, err := sink.ReadTail("task1", 100)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\nthird\n", content)
}

func TestReadTailReturnsLastLines(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())

	for i := 1; i <= 10; i++ {
		sink.Append("task1", "line"+strconv.Itoa(i))
	}

	content, err := sink.ReadTail("task1", 3)
	require.NoError(t, err)
	assert.Equal(t, "line8\nline9\nline10\n", content)
}

func TestAppendSplitsMultilineInput(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())

	sink.Append("task1", "alpha\nbravo\ncharlie")

	content, err := sink.ReadTail("task1", 2)
	require.NoError(t, err)
	assert.Equal(t, "bravo\ncharlie\n", content)
}

func TestReadTailMissingLog(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())

	_, err := sink.ReadTail("never-written", 10)
	assert.ErrorIs(t, err, tasklog.ErrLogNotFound)
}

func TestReadTailZeroLines(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())
	sink.Append("task1", "line")

	content, err := sink.ReadTail("task1", 0)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestUnsafeTaskIDsAreRejected(t *testing.T) {
	root := t.TempDir()
	sink := tasklog.NewSink(root)

	for _, taskID := range []string{
		"",
		"../escape",
		"a/b",
		"has space",
		"way-too-long-0123456789012345678901234567890123456789012345678901234567890123456789",
	} {
		sink.Append(taskID, "should not land anywhere")

		_, err := sink.ReadTail(taskID, 10)
		assert.ErrorIs(t, err, tasklog.ErrLogNotFound, "task id %q", taskID)
	}

	// nothing outside (or inside) the root was written
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriterBindsTaskID(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())

	assert.Nil(t, sink.Writer(""))

	write := sink.Writer("task1")
	require.NotNil(t, write)
	write("hello")

	content, err := sink.ReadTail("task1", 10)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", content)
}

func TestReadTailExaminesBoundedWindow(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())

	// the first line alone fills the byte cap, so the read window cannot
	// reach back far enough to return it whole
	huge := strings.Repeat("x", tasklog.MaxTailBytes)
	sink.Append("task1", huge)
	sink.Append("task1", "recent")

	content, err := sink.ReadTail("task1", tasklog.MaxTailLines)
	require.NoError(t, err)
	assert.Contains(t, content, "recent")
	assert.LessOrEqual(t, len(content), tasklog.MaxTailBytes)
	assert.NotContains(t, content, huge)
}

func TestReadTailCapsRequestedLines(t *testing.T) {
	sink := tasklog.NewSink(t.TempDir())
	sink.Append("task1", "only line")

	content, err := sink.ReadTail("task1", tasklog.MaxTailLines*10)
	require.NoError(t, err)
	assert.Equal(t, "only line\n", content)
}
