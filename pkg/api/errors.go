package api

import "errors"

var (
	ErrCommandNotAllowed = errors.New("command not allowed")
	ErrCommandNotFound   = errors.New("command not found")
	ErrPathViolation     = errors.New("path outside allowed directories")
	ErrSymlinkViolation  = errors.New("symlink resolves outside allowed directories")
	ErrSandboxDenied     = errors.New("operation denied by sandbox")
	ErrTimeout           = errors.New("execution timed out")
	ErrExecution         = errors.New("execution failed")
	ErrPipelineFailure   = errors.New("pipeline failed")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
