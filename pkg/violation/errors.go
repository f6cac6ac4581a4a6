package violation

import "errors"

var (
	ErrInvalidChoice  = errors.New("violation: invalid menu choice")
	ErrUnknownPending = errors.New("violation: unknown pending request")
)
