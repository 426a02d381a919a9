package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// StderrTailLines is how many trailing stderr lines a failure carries.
const StderrTailLines = 10

// WaitDelay bounds how long a terminated process may keep its pipes open.
const WaitDelay = 5 * time.Second

// Spec describes one invocation.
type Spec struct {
	Binary   string
	Args     []string
	OnStdout func(string)
	OnStderr func(string)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, spec Spec) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, spec Spec) error

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, spec Spec) error { return f(ctx, spec) }

// OS runs commands as real child processes. Cancelling ctx sends SIGTERM to
// the child's process group.
type OS struct{}

// Run starts spec and blocks until it exits and both output streams are drained.
func (OS) Run(ctx context.Context, spec Spec) error {
	if strings.TrimSpace(spec.Binary) == "" {
		return errors.New("command: binary required")
	}
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}
	cmd.WaitDelay = WaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name(spec.Binary), err)
	}

	tail := newTail(StderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go scan(&wg, stdout, spec.OnStdout)
	go scan(&wg, stderr, func(line string) {
		tail.add(line)
		if spec.OnStderr != nil {
			spec.OnStderr(line)
		}
	})
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name(spec.Binary), ctx.Err())
		}
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("%s: %w: %s", name(spec.Binary), err, detail)
		}
		return fmt.Errorf("%s: %w", name(spec.Binary), err)
	}
	return nil
}

func scan(wg *sync.WaitGroup, r io.Reader, forward func(string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
	// Keep draining so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// scanLines splits on \n and on bare \r, which ffmpeg uses for progress updates.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func name(binary string) string {
	return filepath.Base(binary)
}

type tail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
