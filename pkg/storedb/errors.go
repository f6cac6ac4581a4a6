package storedb

import "errors"

var (
	ErrOpenDatabase = errors.New("storedb: open database")
	ErrMigrate      = errors.New("storedb: apply migrations")
)
