package logging

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records events in memory for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

func (s *captureSink) Write(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestEmitterStampsMetadata(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(EmitterConfig{
		SessionID: "sess-1",
		Project:   "/home/user/project",
	}, sink)

	err := emitter.Emit(EventEngineError, "engine fault", nil, &EngineErrorData{
		Error: "permission engine: something broke",
		Input: "git status",
	})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.Equal(t, "/home/user/project", ev.Project)
	assert.Equal(t, EventEngineError, ev.EventType)
	assert.Equal(t, "engine fault", ev.Summary)
	assert.False(t, ev.Timestamp.IsZero())

	var data EngineErrorData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "permission engine: something broke", data.Error)
	assert.Equal(t, "git status", data.Input)
}

func TestEmitterNilData(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(EmitterConfig{SessionID: "s"}, sink)

	require.NoError(t, emitter.Emit(EventTimeout, "command timed out", []string{"timeout"}, nil))

	require.Len(t, sink.events, 1)
	assert.Nil(t, sink.events[0].Data)
	assert.Equal(t, []string{"timeout"}, sink.events[0].Tags)
}

func TestEmitterMultipleSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	emitter := NewEmitter(EmitterConfig{}, a, b)

	require.NoError(t, emitter.Emit(EventViolation, "read denied", nil, &ViolationData{
		Code:      "PATH_VIOLATION",
		Path:      "/etc/passwd",
		Operation: "read",
	}))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	require.NoError(t, emitter.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
