package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/store"
	"github.com/safeshell/safeshell/pkg/violation"
)

// testApp builds an app rooted in a temp project, with the menus and
// error reports captured in the returned buffer.
func testApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(dir, logger)
	out := &bytes.Buffer{}

	a := &app{
		projectDir: dir,
		sessionID:  "test-session",
		cwd:        dir,
		cfg:        &api.Config{ProjectDir: dir},
		store:      st,
		ledger:     st.NewLedger(),
		logger:     logger,
	}
	a.driver = violation.NewDriver(a.ledger, nil, out, logger)
	a.reporter = violation.NewReporter(nil, out)
	return a, out
}

// fakeRunner writes an executable shell script standing in for the
// sandbox runtime. It ignores the permission flags like the real one
// accepts them.
func fakeRunner(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runner")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecuteDeniedCommandCreatesPending(t *testing.T) {
	a, out := testApp(t)

	code, err := a.execute(context.Background(), "git status", execOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	menu := out.String()
	assert.Contains(t, menu, "Permission required: run git")
	assert.Contains(t, menu, "safeshell retry ")

	entries, err := os.ReadDir(filepath.Join(a.store.BaseDir(), "pending"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "command-")
}

func TestExecuteAllowedCommandRuns(t *testing.T) {
	a, out := testApp(t)
	a.cfg.Permissions.Run = []string{"ls"}

	code, err := a.execute(context.Background(), "ls", execOptions{
		Runner: fakeRunner(t, "exit 0"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.NotContains(t, out.String(), "Permission required")
}

func TestExecutePropagatesExitCode(t *testing.T) {
	a, _ := testApp(t)
	a.cfg.Permissions.Run = []string{"ls"}

	code, err := a.execute(context.Background(), "ls", execOptions{
		Runner: fakeRunner(t, "exit 3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestExecuteStderrViolationEscalates(t *testing.T) {
	a, out := testApp(t)
	a.cfg.Permissions.Run = []string{"tee"}

	code, err := a.execute(context.Background(), "tee /etc/hosts", execOptions{
		Runner: fakeRunner(t, `echo 'NotCapable: Requires write access to "/etc/hosts"' >&2; exit 1`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	menu := out.String()
	assert.Contains(t, menu, "write access to /etc/hosts")
	assert.Contains(t, menu, "safeshell retry-path ")

	entries, err := os.ReadDir(filepath.Join(a.store.BaseDir(), "pending"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "path-")
}

func TestExecuteWireViolationWins(t *testing.T) {
	a, out := testApp(t)
	a.cfg.Permissions.Run = []string{"ls"}

	code, err := a.execute(context.Background(), "ls", execOptions{
		Runner: fakeRunner(t,
			`echo '@@SAFESHELL:VIOLATION:{"code":"SYMLINK_VIOLATION","path":"/tmp/link","operation":"read","target":"/etc/shadow"}' >&2; exit 1`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	// The grant must name the resolved target, not the link.
	assert.Contains(t, out.String(), "read access to /etc/shadow")
}

func TestExecuteControlLinesNotEchoed(t *testing.T) {
	a, _ := testApp(t)
	a.cfg.Permissions.Run = []string{"ls"}

	code, err := a.execute(context.Background(), "ls", execOptions{
		Runner: fakeRunner(t,
			`echo '@@SAFESHELL:STATE:{"cwd":"/tmp","vars":{"X":"1"}}' >&2; exit 0`),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestRetryPathEndToEnd(t *testing.T) {
	a, _ := testApp(t)
	a.cfg.Permissions.Run = []string{"tee"}

	// Deny a write to /etc/hosts.
	hash, err := a.cacheScript("tee /etc/hosts")
	require.NoError(t, err)
	det := violation.DetectText("", `Requires write access to "/etc/hosts"`)
	id := a.driver.EscalatePath(det, a.cwd, hash)
	require.NotEmpty(t, id)

	req, err := a.ledger.ReadPath(id)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "/etc/hosts", req.Path)
	assert.Equal(t, api.OpWrite, req.Operation)

	// Retry with choice w3: permanent write grant, then re-exec.
	choice, err := violation.ParsePathChoice("w3")
	require.NoError(t, err)

	cmd := rootCmd
	cmd.SetContext(context.Background())
	err = a.resolveAndRerun(cmd, resolution{
		id:         id,
		kind:       api.PendingKindPath,
		scope:      choice.Scope,
		grants:     choice.Grants(req),
		scriptHash: hash,
	})
	// defaultRunner is absent in tests: the re-exec fails as an
	// execution error with exit 1, after the resolution succeeded.
	require.Error(t, err)
	var exit exitCodeError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)

	// The grant landed in the permanent project file and the pending
	// file is gone.
	grants := a.store.LoadLocal()
	require.NotNil(t, grants.Permissions)
	assert.Contains(t, grants.Permissions.Write, "/etc/hosts")
	data, err := os.ReadFile(filepath.Join(a.projectDir, ".safeshell", "permissions.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/etc/hosts")

	gone, err := a.ledger.ReadPath(id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRetryMissingScriptConsumesPending(t *testing.T) {
	a, _ := testApp(t)

	det := violation.DetectText("", `Requires write access to "/etc/hosts"`)
	id := a.driver.EscalatePath(det, a.cwd, "feedfacefeedface")
	req, err := a.ledger.ReadPath(id)
	require.NoError(t, err)
	require.NotNil(t, req)

	choice, err := violation.ParsePathChoice("w1")
	require.NoError(t, err)

	cmd := rootCmd
	cmd.SetContext(context.Background())
	err = a.resolveAndRerun(cmd, resolution{
		id:         id,
		kind:       api.PendingKindPath,
		scope:      choice.Scope,
		grants:     choice.Grants(req),
		scriptHash: "feedfacefeedface",
	})
	require.ErrorIs(t, err, ErrMissingScript)

	// The retry settled the request even though it could not re-execute.
	gone, err := a.ledger.ReadPath(id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRetryPathSessionScope(t *testing.T) {
	a, _ := testApp(t)

	hash, err := a.cacheScript("tee /etc/hosts")
	require.NoError(t, err)
	det := violation.DetectText("", `Requires write access to "/etc/hosts"`)
	id := a.driver.EscalatePath(det, a.cwd, hash)
	req, err := a.ledger.ReadPath(id)
	require.NoError(t, err)
	require.NotNil(t, req)

	choice, err := violation.ParsePathChoice("w2")
	require.NoError(t, err)

	cmd := rootCmd
	cmd.SetContext(context.Background())
	err = a.resolveAndRerun(cmd, resolution{
		id:         id,
		kind:       api.PendingKindPath,
		scope:      choice.Scope,
		grants:     choice.Grants(req),
		scriptHash: hash,
	})
	require.Error(t, err)

	// Digit 2 stays in the session tier; the permanent file is untouched.
	grants := a.store.LoadSession(a.sessionID)
	require.NotNil(t, grants.Permissions)
	assert.Contains(t, grants.Permissions.Write, "/etc/hosts")
	assert.True(t, a.store.LoadLocal().Empty())
}
