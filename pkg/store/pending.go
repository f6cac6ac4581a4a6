package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
)

// Ledger persists pending requests, one JSON file per request. A record
// is created at the moment of a denial and deleted by the retry that
// consumes it, whether that retry succeeds or fails.
type Ledger struct {
	dir string
}

// NewLedger returns the pending-request ledger of a store.
func (s *Store) NewLedger() *Ledger {
	return &Ledger{dir: filepath.Join(s.baseDir, pendingDirName)}
}

// NewPendingID generates a pending-request id. The timestamp-pid pair
// alone collides under rapid successive calls in one process, so a short
// random ULID suffix is appended.
func NewPendingID() string {
	suffix := ulid.Make().String()
	return fmt.Sprintf("%d-%d-%s", time.Now().UnixMilli(), os.Getpid(), suffix[len(suffix)-6:])
}

func (l *Ledger) path(id string, kind api.PendingKind) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.json", kind, id))
}

// CreateCommand writes a pending command request and returns its id. The
// id and creation time are assigned here.
func (l *Ledger) CreateCommand(req *api.PendingCommand) (string, error) {
	req.ID = NewPendingID()
	req.CreatedAt = time.Now().UTC()
	if err := l.write(l.path(req.ID, api.PendingKindCommand), req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// CreatePath writes a pending path request and returns its id.
func (l *Ledger) CreatePath(req *api.PendingPathRequest) (string, error) {
	req.ID = NewPendingID()
	req.CreatedAt = time.Now().UTC()
	if err := l.write(l.path(req.ID, api.PendingKindPath), req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// ReadCommand loads a pending command request by id. Missing files and
// malformed JSON both return (nil, nil): a corrupt record is treated the
// same as an unknown id, never surfaced as an error.
func (l *Ledger) ReadCommand(id string) (*api.PendingCommand, error) {
	var req api.PendingCommand
	if !l.read(l.path(id, api.PendingKindCommand), &req) {
		return nil, nil
	}
	return &req, nil
}

// ReadPath loads a pending path request by id, with the same missing and
// malformed handling as ReadCommand.
func (l *Ledger) ReadPath(id string) (*api.PendingPathRequest, error) {
	var req api.PendingPathRequest
	if !l.read(l.path(id, api.PendingKindPath), &req) {
		return nil, nil
	}
	return &req, nil
}

// Delete removes a pending request. Deleting a record that does not
// exist is not an error.
func (l *Ledger) Delete(id string, kind api.PendingKind) error {
	if err := os.Remove(l.path(id, kind)); err != nil && !os.IsNotExist(err) {
		return errx.Wrap(ErrDeletePending, err)
	}
	return nil
}

func (l *Ledger) write(path string, v interface{}) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errx.Wrap(ErrCreateStoreDir, err)
	}
	return writeJSONAtomic(path, v)
}

func (l *Ledger) read(path string, v interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
