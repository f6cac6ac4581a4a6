package store

import "errors"

var (
	ErrCreateStoreDir = errors.New("store: create directory")
	ErrEncodeRecord   = errors.New("store: encode record")
	ErrWriteRecord    = errors.New("store: write record")
	ErrDeletePending  = errors.New("store: delete pending request")
	ErrDeleteSession  = errors.New("store: delete session grants")
	ErrCleanupStore   = errors.New("store: cleanup stale files")
	ErrUnknownScope   = errors.New("store: unknown escalation scope")
)
