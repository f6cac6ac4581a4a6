package sandbox

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
)

// maxOutputBytes caps how much of each stream is retained (10 MB). The
// child keeps running past the cap; only retention stops.
const maxOutputBytes = 10 * 1024 * 1024

// maxStderrLineBytes bounds a single scanned stderr line.
const maxStderrLineBytes = 1 << 20

// Spec describes one sandboxed subprocess launch.
type Spec struct {
	// Args is the full argument vector, program first.
	Args []string
	Cwd  string
	// Env is the complete child environment; nil inherits nothing.
	Env []string
	// Timeout bounds the execution; zero means no deadline.
	Timeout time.Duration
}

// Callbacks observe the lifecycle of a spawn. All fields are optional.
type Callbacks struct {
	// OnSpawn runs synchronously right after the process starts, before
	// any output is read, so the caller can register the job first.
	OnSpawn func(pid int)

	// OnStderrLine receives each stderr line as it arrives. Lines are
	// still accumulated into the raw stderr result.
	OnStderrLine func(line string)

	// OnTimeout runs after the deadline killed the process.
	OnTimeout func(pid int)

	// OnError runs on any execution failure other than a timeout.
	OnError func(err error)
}

// Result is the outcome of a completed spawn. A non-zero exit code is a
// result, not an error.
type Result struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	PID             int
	Duration        time.Duration
	StdoutTruncated bool
	StderrTruncated bool
}

// Spawn launches the subprocess described by spec and collects its output
// until it exits or the deadline expires. On deadline expiry the whole
// process group is killed and api.ErrTimeout is returned; the process is
// never left running. Any other failure is cleaned up and reported as
// api.ErrExecution.
func Spawn(ctx context.Context, spec Spec, cb Callbacks) (*Result, error) {
	if len(spec.Args) == 0 {
		return nil, ErrEmptyArgs
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = spec.Env
	// Own process group so a timeout kill reaps grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errx.Wrap(ErrStartFailed, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errx.Wrap(ErrStartFailed, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		wrapped := errx.Wrap(api.ErrExecution, err)
		if cb.OnError != nil {
			cb.OnError(wrapped)
		}
		return nil, wrapped
	}
	pid := cmd.Process.Pid
	if cb.OnSpawn != nil {
		cb.OnSpawn(pid)
	}

	stdout := newCappedBuffer(maxOutputBytes)
	stderr := newCappedBuffer(maxOutputBytes)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		buf := make([]byte, 32*1024)
		for {
			n, readErr := stdoutPipe.Read(buf)
			if n > 0 {
				stdout.Write(buf[:n])
			}
			if readErr != nil {
				return
			}
		}
	}()
	go func() {
		defer readers.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 64*1024), maxStderrLineBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if cb.OnStderrLine != nil {
				cb.OnStderrLine(line)
			}
			stderr.Write([]byte(line))
			stderr.Write([]byte{'\n'})
		}
	}()

	waitDone := make(chan error, 1)
	go func() {
		readers.Wait()
		waitDone <- cmd.Wait()
	}()

	select {
	case waitErr := <-waitDone:
		result := &Result{
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			PID:             pid,
			Duration:        time.Since(start),
			StdoutTruncated: stdout.Truncated(),
			StderrTruncated: stderr.Truncated(),
		}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
				return result, nil
			}
			wrapped := errx.Wrap(api.ErrExecution, waitErr)
			if cb.OnError != nil {
				cb.OnError(wrapped)
			}
			return nil, wrapped
		}
		return result, nil

	case <-ctx.Done():
		killProcessGroup(pid, cmd)
		// Reap the child and close the pipes before returning.
		<-waitDone
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if cb.OnTimeout != nil {
				cb.OnTimeout(pid)
			}
			return nil, errx.With(api.ErrTimeout, " after %s (pid %d)", spec.Timeout, pid)
		}
		wrapped := errx.Wrap(api.ErrExecution, ctx.Err())
		if cb.OnError != nil {
			cb.OnError(wrapped)
		}
		return nil, wrapped
	}
}

// killProcessGroup force-kills the child's process group, falling back to
// the single process when the group signal fails.
func killProcessGroup(pid int, cmd *exec.Cmd) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// TerminateProcess sends SIGTERM to a process by pid. Used for
// best-effort job shutdown when a session ends.
func TerminateProcess(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// cappedBuffer accumulates bytes up to a limit and records truncation.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.truncated = true
		return
	}
	if len(p) > remaining {
		p = p[:remaining]
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
