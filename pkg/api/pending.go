package api

import "time"

// PendingKind selects the pending-request shape and its file naming.
type PendingKind string

const (
	PendingKindCommand PendingKind = "command"
	PendingKindPath    PendingKind = "path"
)

// PendingCommand records a blocked command execution awaiting a human
// decision. Immutable once written; deleted by the retry that consumes it.
type PendingCommand struct {
	ID         string    `json:"id"`
	ScriptHash string    `json:"script_hash"`
	Commands   []string  `json:"commands"`
	Cwd        string    `json:"cwd"`
	TimeoutMS  int64     `json:"timeout_ms,omitempty"`
	Background bool      `json:"background,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// PendingPathRequest records a blocked path access awaiting a human
// decision. Immutable once written; deleted by the retry that consumes it.
type PendingPathRequest struct {
	ID         string        `json:"id"`
	Path       string        `json:"path"`
	Operation  PathOperation `json:"operation"`
	Cwd        string        `json:"cwd"`
	ScriptHash string        `json:"script_hash"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Grants is the persisted shape of promoted permissions. The session tier
// stores one Grants file per (project, session id); the permanent tier
// stores one per project.
type Grants struct {
	AllowedCommands []string    `json:"allowed_commands,omitempty"`
	Permissions     *PathGrants `json:"permissions,omitempty"`
}

// PathGrants holds granted path permissions by operation.
type PathGrants struct {
	Read  []string `json:"read,omitempty"`
	Write []string `json:"write,omitempty"`
}

// Merge unions other into g, deduplicating every list. Prior grants are
// never replaced, only extended.
func (g *Grants) Merge(other *Grants) {
	if other == nil {
		return
	}
	g.AllowedCommands = unionStrings(g.AllowedCommands, other.AllowedCommands)
	if other.Permissions == nil {
		return
	}
	if g.Permissions == nil {
		g.Permissions = &PathGrants{}
	}
	g.Permissions.Read = unionStrings(g.Permissions.Read, other.Permissions.Read)
	g.Permissions.Write = unionStrings(g.Permissions.Write, other.Permissions.Write)
}

// Empty reports whether the record carries no grants at all.
func (g *Grants) Empty() bool {
	if g == nil {
		return true
	}
	if len(g.AllowedCommands) > 0 {
		return false
	}
	if g.Permissions != nil && (len(g.Permissions.Read) > 0 || len(g.Permissions.Write) > 0) {
		return false
	}
	return true
}
