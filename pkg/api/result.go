package api

// PermissionStatus is the outcome class of a single command check.
type PermissionStatus int

const (
	// StatusNotAllowed is the zero value so an uninitialized result
	// defaults to the safest decision.
	StatusNotAllowed PermissionStatus = iota
	StatusAllowed
	StatusNotFound
)

func (s PermissionStatus) String() string {
	switch s {
	case StatusAllowed:
		return "allowed"
	case StatusNotAllowed:
		return "not_allowed"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// PermissionResult is the tagged outcome of a command check. It is
// produced per call and never persisted.
type PermissionResult struct {
	Status PermissionStatus

	// Command is the command as requested (set for denials).
	Command string

	// ResolvedPath is the absolute path the command resolved to
	// (set when Status is StatusAllowed and the command had a path).
	ResolvedPath string
}

// Allowed builds an allowed result with an optional resolved path.
func Allowed(resolvedPath string) PermissionResult {
	return PermissionResult{Status: StatusAllowed, ResolvedPath: resolvedPath}
}

// NotAllowed builds a denial for the given command.
func NotAllowed(command string) PermissionResult {
	return PermissionResult{Status: StatusNotAllowed, Command: command}
}

// NotFound builds a not-found result for the given command.
func NotFound(command string) PermissionResult {
	return PermissionResult{Status: StatusNotFound, Command: command}
}

// IsAllowed reports whether the check passed.
func (r PermissionResult) IsAllowed() bool {
	return r.Status == StatusAllowed
}

// PathDecision is the outcome of a path access check.
type PathDecision struct {
	Allowed      bool
	ResolvedPath string
	// Reason explains a denial; empty when Allowed.
	Reason string
}

// PathOperation is the kind of filesystem access being checked.
type PathOperation string

const (
	OpRead  PathOperation = "read"
	OpWrite PathOperation = "write"
)

// Valid reports whether the operation is one of the known kinds.
func (op PathOperation) Valid() bool {
	return op == OpRead || op == OpWrite
}
