package sandbox

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/safeshell/safeshell/pkg/api"
)

func TestSpawnCollectsOutput(t *testing.T) {
	var spawnedPID int
	result, err := Spawn(context.Background(), Spec{
		Args: []string{"/bin/sh", "-c", "echo out; echo err >&2"},
		Cwd:  t.TempDir(),
	}, Callbacks{
		OnSpawn: func(pid int) { spawnedPID = pid },
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.Equal(t, spawnedPID, result.PID)
	assert.Positive(t, spawnedPID)
	assert.False(t, result.StdoutTruncated)
}

func TestSpawnNonZeroExitIsNotAnError(t *testing.T) {
	result, err := Spawn(context.Background(), Spec{
		Args: []string{"/bin/sh", "-c", "exit 3"},
	}, Callbacks{})

	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestSpawnStderrLineCallback(t *testing.T) {
	var lines []string
	result, err := Spawn(context.Background(), Spec{
		Args: []string{"/bin/sh", "-c", "echo one >&2; echo two >&2"},
	}, Callbacks{
		OnStderrLine: func(line string) { lines = append(lines, line) },
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
	// Raw stderr is still accumulated alongside the callback.
	assert.Equal(t, "one\ntwo\n", result.Stderr)
}

func TestSpawnTimeoutKillsProcess(t *testing.T) {
	timedOut := false
	var killedPID int

	start := time.Now()
	_, err := Spawn(context.Background(), Spec{
		Args:    []string{"/bin/sh", "-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
	}, Callbacks{
		OnTimeout: func(pid int) {
			timedOut = true
			killedPID = pid
		},
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, api.ErrTimeout)
	assert.True(t, timedOut)
	assert.Less(t, elapsed, 1500*time.Millisecond)

	// The child must not be left running.
	require.Positive(t, killedPID)
	assert.Eventually(t, func() bool {
		return unix.Kill(killedPID, 0) != nil
	}, time.Second, 10*time.Millisecond, "child process still alive after timeout")
}

func TestSpawnStartFailure(t *testing.T) {
	var reported error
	_, err := Spawn(context.Background(), Spec{
		Args: []string{"/no/such/binary"},
	}, Callbacks{
		OnError: func(e error) { reported = e },
	})

	require.ErrorIs(t, err, api.ErrExecution)
	assert.ErrorIs(t, reported, api.ErrExecution)
}

func TestSpawnEmptyArgs(t *testing.T) {
	_, err := Spawn(context.Background(), Spec{}, Callbacks{})
	assert.ErrorIs(t, err, ErrEmptyArgs)
}

func TestSpawnOutputTruncation(t *testing.T) {
	// Emit a bit more than the cap allows for a single stream.
	script := "head -c " + strconv.Itoa(maxOutputBytes+4096) + " /dev/zero | tr '\\0' 'x'"
	result, err := Spawn(context.Background(), Spec{
		Args:    []string{"/bin/sh", "-c", script},
		Timeout: time.Minute,
	}, Callbacks{})

	require.NoError(t, err)
	assert.True(t, result.StdoutTruncated)
	assert.Len(t, result.Stdout, maxOutputBytes)
}
