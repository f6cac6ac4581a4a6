// Package proto defines the control protocol the sandboxed interpreter
// uses to report structured events back to the supervising process.
//
// Control messages ride on stderr as single lines of the form
//
//	@@SAFESHELL:<TYPE>:<json payload>
//
// so that they survive any transport that preserves stderr, and so that
// ordinary diagnostic output passes through untouched. The supervisor
// strips control lines before surfacing stderr to the caller.
package proto

import (
	"encoding/json"
	"strings"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
)

// Marker is the prefix every control line carries.
const Marker = "@@SAFESHELL:"

// Control message types.
const (
	TypeJobStart   = "JOB_START"
	TypeJobEnd     = "JOB_END"
	TypeCmdDenied  = "CMD_DENIED"
	TypeCmdsDenied = "CMDS_DENIED"
	TypeNetDenied  = "NET_DENIED"
	TypeViolation  = "VIOLATION"
	TypeState      = "STATE"
)

// Message is a decoded control line.
type Message struct {
	Type    string
	Payload json.RawMessage
}

// JobStart announces a background job spawned inside the sandbox.
type JobStart struct {
	PID        int    `json:"pid"`
	Command    string `json:"command"`
	Background bool   `json:"background,omitempty"`
}

// JobEnd reports a job's completion.
type JobEnd struct {
	PID      int `json:"pid"`
	ExitCode int `json:"exit_code"`
}

// CmdDenied reports a single command blocked mid-script, after the
// static pre-scan passed.
type CmdDenied struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

// CmdsDenied reports a batch of blocked commands in one message.
type CmdsDenied struct {
	Commands []string `json:"commands"`
	Cwd      string   `json:"cwd,omitempty"`
}

// NetDenied reports a blocked network access.
type NetDenied struct {
	Host string `json:"host"`
}

// Violation reports a filesystem access the sandbox refused.
type Violation struct {
	Code      string `json:"code,omitempty"`
	Path      string `json:"path"`
	Operation string `json:"operation"`
	// Target is set for symlink violations: the real path the link
	// resolves to, which is what any grant must name.
	Target string `json:"target,omitempty"`
}

// State carries serialized shell state (variables, cwd) emitted at the
// end of a run so the session can persist it across invocations.
type State struct {
	Cwd  string            `json:"cwd,omitempty"`
	Vars map[string]string `json:"vars,omitempty"`
}

// Format renders a control line for the given type and payload.
// The returned string has no trailing newline.
func Format(msgType string, payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", errx.Wrap(ErrEncodeMessage, err)
	}
	return Marker + msgType + ":" + string(b), nil
}

// Parse decodes a control line. It returns (nil, nil) when the line is
// not a control line, so callers can use it as a filter:
//
//	msg, err := proto.Parse(line)
//	if msg == nil { // ordinary stderr
func Parse(line string) (*Message, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), Marker)
	if !ok {
		return nil, nil
	}
	msgType, payload, ok := strings.Cut(rest, ":")
	if !ok || msgType == "" {
		return nil, errx.With(ErrMalformedMessage, ": %q", line)
	}
	if !json.Valid([]byte(payload)) {
		return nil, errx.With(ErrMalformedMessage, ": invalid payload in %q", line)
	}
	return &Message{Type: msgType, Payload: json.RawMessage(payload)}, nil
}

// IsControl reports whether the line is a control line, without decoding it.
func IsControl(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), Marker)
}

// Decode unmarshals the message payload into out.
func (m *Message) Decode(out interface{}) error {
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return errx.Wrap(ErrMalformedMessage, err)
	}
	return nil
}

// ViolationOperation maps a wire operation string onto the typed form,
// defaulting to read for anything unrecognized.
func ViolationOperation(op string) api.PathOperation {
	if api.PathOperation(op) == api.OpWrite {
		return api.OpWrite
	}
	return api.OpRead
}
