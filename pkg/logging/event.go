package logging

import (
	"encoding/json"
	"time"
)

// Event is the canonical structured event written to the SafeShell log
// file. Required fields: Timestamp, SessionID, EventType, Summary.
// Optional fields use omitempty tags.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	SessionID string          `json:"session_id,omitempty"`
	Project   string          `json:"project,omitempty"`
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary"`
	Tags      []string        `json:"tags,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event type constants.
const (
	EventEngineError = "engine_error"
	EventViolation   = "violation"
	EventRetry       = "retry"
	EventTimeout     = "timeout"
)

// EngineErrorData is the data payload for engine_error events: the full
// rendering persisted to disk alongside the short console message.
type EngineErrorData struct {
	Error string `json:"error"`
	// Input is the original script or command as the caller supplied it.
	Input string `json:"input,omitempty"`
	// Expanded is the transpiled or expanded form, when available.
	Expanded string `json:"expanded,omitempty"`
}

// ViolationData is the data payload for violation events.
type ViolationData struct {
	Code      string `json:"code,omitempty"`
	Path      string `json:"path,omitempty"`
	Operation string `json:"operation,omitempty"`
	PendingID string `json:"pending_id,omitempty"`
}

// RetryData is the data payload for retry events.
type RetryData struct {
	PendingID string `json:"pending_id"`
	Choice    string `json:"choice"`
	Scope     string `json:"scope,omitempty"`
	ExitCode  int    `json:"exit_code"`
}
