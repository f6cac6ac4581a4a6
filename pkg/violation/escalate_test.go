package violation

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/logging"
	"github.com/safeshell/safeshell/pkg/store"
)

type captureSink struct {
	mu     sync.Mutex
	events []*logging.Event
}

func (s *captureSink) Write(event *logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error { return nil }

func testDriver(t *testing.T) (*Driver, *store.Ledger, *captureSink, *bytes.Buffer) {
	t.Helper()
	st := store.New(t.TempDir(), slog.Default())
	ledger := st.NewLedger()
	sink := &captureSink{}
	emitter := logging.NewEmitter(logging.EmitterConfig{SessionID: "sess"}, sink)
	out := &bytes.Buffer{}
	return NewDriver(ledger, emitter, out, slog.Default()), ledger, sink, out
}

func TestEscalatePathCreatesPendingAndMenu(t *testing.T) {
	driver, ledger, sink, out := testDriver(t)

	det := DetectText("", `Requires write access to "/etc/hosts"`)
	require.True(t, det.IsViolation)

	id := driver.EscalatePath(det, "/work", "abc123")
	require.NotEmpty(t, id)

	req, err := ledger.ReadPath(id)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "/etc/hosts", req.Path)
	assert.Equal(t, api.OpWrite, req.Operation)
	assert.Equal(t, "/work", req.Cwd)
	assert.Equal(t, "abc123", req.ScriptHash)

	menu := out.String()
	assert.Contains(t, menu, "write access to /etc/hosts")
	assert.Contains(t, menu, "r1 / w1 / rw1")
	assert.Contains(t, menu, "r3 / w3 / rw3")
	assert.Contains(t, menu, "deny")
	assert.Contains(t, menu, "safeshell retry-path "+id)

	require.Len(t, sink.events, 1)
	assert.Equal(t, logging.EventViolation, sink.events[0].EventType)
}

func TestEscalateCommandsMenu(t *testing.T) {
	driver, ledger, _, out := testDriver(t)

	id := driver.EscalateCommands([]string{"curl", "wget"}, "/work", "h1", 0, false)
	require.NotEmpty(t, id)

	req, err := ledger.ReadCommand(id)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, []string{"curl", "wget"}, req.Commands)

	menu := out.String()
	assert.Contains(t, menu, "run 2 commands")
	assert.Contains(t, menu, "1    allow once")
	assert.Contains(t, menu, "4    deny")
	assert.Contains(t, menu, "safeshell retry "+id)
}

func TestReporterPersistsOnlyEngineFaults(t *testing.T) {
	sink := &captureSink{}
	emitter := logging.NewEmitter(logging.EmitterConfig{}, sink)
	out := &bytes.Buffer{}
	r := NewReporter(emitter, out)

	r.Report(errors.New("command exited with code 2"), "foo | bar", "")
	assert.Contains(t, out.String(), "exited with code 2")
	assert.Empty(t, sink.events)

	out.Reset()
	r.Report(errx.With(api.ErrPipelineFailure, ": grep"), "a | grep x", "")
	assert.Empty(t, sink.events)

	out.Reset()
	r.Report(errors.New("state file corrupted\ndetail line"), "ls", "__expanded__")
	assert.Equal(t, "safeshell: state file corrupted\n", out.String())
	require.Len(t, sink.events, 1)
	assert.Equal(t, logging.EventEngineError, sink.events[0].EventType)
	assert.Contains(t, string(sink.events[0].Data), "__expanded__")
}
