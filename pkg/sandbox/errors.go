package sandbox

import "errors"

var (
	ErrEmptyArgs   = errors.New("sandbox: empty argument vector")
	ErrStartFailed = errors.New("sandbox: start subprocess")
)
