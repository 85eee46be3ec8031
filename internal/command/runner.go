// Package command wraps external process invocations whose output a human
// operator wants to watch while the process is still running. Output is
// forwarded line by line to a sink in real time, memory stays bounded for
// long builds, and a wall-clock timeout kills runaway processes.
package command

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when the process exceeded its wall-clock limit and
// was killed
var ErrTimeout = errors.New("command timed out")

const (
	defaultTailLines = 200
	readChunkSize    = 4096
)

// LineSink receives each completed output line as soon as it is available
type LineSink func(line string)

// Options configures one streaming invocation
type Options struct {
	Env       []string      // nil inherits the parent environment
	Dir       string        // working directory; "" means inherit
	Timeout   time.Duration // wall-clock limit from process start; 0 means none
	TailLines int           // lines kept in memory for the result; default 200
	Secrets   []string      // values replaced with *** in every emitted line
}

// Result is the reduction of the interleaved output stream
type Result struct {
	ExitCode int
	Tail     []string // most recent output lines, oldest first
}

// TailText joins the captured tail for inclusion in failure messages
func (r *Result) TailText() string {
	return strings.Join(r.Tail, "\n")
}

// Run starts argv with stdout and stderr merged into a single stream, splits
// the stream into lines at the earliest of \n or \r, and forwards each line
// to sink as it completes. Carriage-return splitting keeps progress-style
// output from pull/build tooling readable.
//
// The first emitted line echoes the command ("$ ..."), with secrets redacted.
// On timeout the process is killed, a timeout marker line is emitted, and the
// returned error wraps ErrTimeout. A non-zero exit code is not an error; the
// caller decides what it means.
func Run(argv []string, sink LineSink, opts Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	tailLimit := opts.TailLines
	if tailLimit <= 0 {
		tailLimit = defaultTailLines
	}

	res := &Result{ExitCode: -1}
	emit := func(line string) {
		if line == "" {
			return
		}
		line = redact(line, opts.Secrets)
		line = strings.ToValidUTF8(line, "�")
		if sink != nil {
			sink(line)
		}
		res.Tail = append(res.Tail, line)
		if len(res.Tail) > tailLimit {
			res.Tail = res.Tail[len(res.Tail)-tailLimit:]
		}
	}

	display := redact(strings.Join(argv, " "), opts.Secrets)
	log.Debug().Str("command", display).Msg("exec(stream)")
	emit("$ " + display)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	setProcGroup(cmd)

	// One pipe carries both streams so line ordering follows OS buffering,
	// which is all the log viewer needs.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		emit(err.Error())
		return res, fmt.Errorf("could not start %s: %w", argv[0], err)
	}
	// The child holds its own copy of the write end; closing ours lets the
	// reader observe EOF when the child exits.
	_ = pw.Close()

	lines := make(chan string, 64)
	go readLines(pr, lines)

	var timeoutCh <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	timedOut := false
	for open := true; open; {
		select {
		case line, ok := <-lines:
			if !ok {
				open = false
				break
			}
			emit(line)
		case <-timeoutCh:
			timedOut = true
			timeoutCh = nil
			killProcessTree(cmd)
			emit(fmt.Sprintf("[timeout] exceeded %s", opts.Timeout))
		}
	}
	_ = pr.Close()

	werr := cmd.Wait()
	res.ExitCode = cmd.ProcessState.ExitCode()

	if timedOut {
		return res, fmt.Errorf("%w after %s: %s", ErrTimeout, opts.Timeout, display)
	}

	var exitErr *exec.ExitError
	if werr != nil && !errors.As(werr, &exitErr) {
		return res, werr
	}
	return res, nil
}

// readLines reads raw chunks from r, splits the buffer at the earliest \n or
// \r, and sends each completed line. Whatever remains unterminated at EOF is
// drained as a final line. Closes out when done.
func readLines(r *os.File, out chan<- string) {
	defer close(out)

	var buffer []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				idx := bytes.IndexAny(buffer, "\n\r")
				if idx == -1 {
					break
				}
				out <- string(buffer[:idx])
				buffer = buffer[idx+1:]
			}
		}
		if err != nil {
			break
		}
	}
	if len(buffer) > 0 {
		out <- string(buffer)
	}
}

func redact(text string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			text = strings.ReplaceAll(text, secret, "***")
		}
	}
	return text
}
