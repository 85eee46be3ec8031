// Package tasklog implements the append-only per-task text log. Each task id
// maps to exactly one file under the log root, so operators can follow a
// running task with a plain tail.
package tasklog

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrLogNotFound is returned when no log file exists for a task id
	ErrLogNotFound = errors.New("task log not found")

	taskIDSafeRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

const (
	// MaxTailLines bounds the number of lines a single tail read can return
	MaxTailLines = 5000
	// MaxTailBytes bounds how much of the file a tail read examines
	MaxTailBytes = 1 << 20 // 1 MiB
)

// Sink appends task output lines to one file per task id under Root. All
// append failures are swallowed: a logging failure must never fail the task
// it is logging for.
type Sink struct {
	Root string
}

func NewSink(root string) *Sink {
	return &Sink{Root: root}
}

// filePath validates the task id and resolves its log file path. Returns ""
// when the id is malformed or the resolved path escapes the log root.
func (s *Sink) filePath(taskID string) string {
	if !taskIDSafeRe.MatchString(taskID) {
		return ""
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return ""
	}
	path := filepath.Join(root, taskID+".log")
	if filepath.Dir(path) != root {
		return ""
	}
	return path
}

// Append writes one line (newline-terminated) to the task's log file,
// creating the directory and file on first write. Multi-line input is split
// so every stored line stays newline-terminated.
func (s *Sink) Append(taskID, line string) {
	path := s.filePath(taskID)
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("Could not create task log directory")
		return
	}

	fp, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("Could not open task log")
		return
	}
	defer func() {
		if err := fp.Close(); err != nil {
			log.Warn().Err(err).Str("task_id", taskID).Msg("Could not close task log")
		}
	}()

	var b strings.Builder
	for _, item := range strings.Split(strings.TrimRight(line, "\n"), "\n") {
		b.WriteString(item)
		b.WriteByte('\n')
	}
	if _, err := fp.WriteString(b.String()); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("Could not append to task log")
	}
}

// Writer returns a line-writer bound to one task id, or nil when the id is
// empty. Handlers hand this to the command runner as their line sink.
func (s *Sink) Writer(taskID string) func(string) {
	if taskID == "" {
		return nil
	}
	return func(line string) {
		s.Append(taskID, line)
	}
}

// ReadTail returns at most the last maxLines lines of the task's log,
// examining at most MaxTailBytes from the end of the file. Invalid byte
// sequences are replaced rather than rejected.
func (s *Sink) ReadTail(taskID string, maxLines int) (string, error) {
	path := s.filePath(taskID)
	if path == "" {
		return "", ErrLogNotFound
	}

	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return "", ErrLogNotFound
	}

	if maxLines <= 0 {
		return "", nil
	}
	if maxLines > MaxTailLines {
		maxLines = MaxTailLines
	}

	data, err := readLast(path, fi.Size(), MaxTailBytes)
	if err != nil {
		return "", ErrLogNotFound
	}

	text := strings.ToValidUTF8(string(data), "�")
	lines := strings.SplitAfter(text, "\n")
	if last := len(lines) - 1; last >= 0 && lines[last] == "" {
		lines = lines[:last]
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, ""), nil
}

func readLast(path string, size, maxBytes int64) ([]byte, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fp.Close() }()

	if size > maxBytes {
		if _, err := fp.Seek(size-maxBytes, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(fp)
}
