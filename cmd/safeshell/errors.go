package main

import "errors"

var (
	ErrLoadEnvironment = errors.New("load environment")
	ErrResolveProject  = errors.New("resolve project root")
	ErrLoadConfig      = errors.New("load project config")
	ErrCacheScript     = errors.New("cache script")
	ErrMissingScript   = errors.New("cached script not found")
	ErrUnknownPending  = errors.New("unknown pending request")
	ErrWriteScript     = errors.New("write script file")
	ErrScanScript      = errors.New("scan script")
	ErrEndSession      = errors.New("end session")
	ErrCleanupSessions = errors.New("cleanup sessions")
)
