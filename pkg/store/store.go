// Package store persists SafeShell's permission state: the session and
// permanent grant tiers, and the pending-request ledger. Everything is a
// small JSON file; writes go through an atomic temp-and-rename so a
// crashed writer never leaves a torn file. Concurrent writers from
// separate processes still race with last-write-wins semantics.
package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
)

const (
	storeDirName    = ".safeshell"
	localGrantsFile = "permissions.json"
	sessionsDirName = "sessions"
	pendingDirName  = "pending"
)

// Scope selects how long a promoted permission persists.
type Scope int

const (
	// ScopeOnce grants the permission for a single retry only. Nothing
	// is persisted; the caller carries the grant in a derived config.
	ScopeOnce Scope = iota
	ScopeSession
	ScopeAlways
)

func (s Scope) String() string {
	switch s {
	case ScopeOnce:
		return "once"
	case ScopeSession:
		return "session"
	case ScopeAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Store owns the on-disk layout under a single base directory, which is
// <projectDir>/.safeshell when a project directory is known and a
// safeshell directory under the OS temp root otherwise.
type Store struct {
	baseDir string
	logger  *slog.Logger
}

// New creates a store rooted at the given project directory. An empty
// projectDir falls back to the OS temp root.
func New(projectDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	baseDir := filepath.Join(os.TempDir(), "safeshell")
	if projectDir != "" {
		baseDir = filepath.Join(projectDir, storeDirName)
	}
	return &Store{
		baseDir: baseDir,
		logger:  logger.With("component", "store"),
	}
}

// BaseDir returns the root directory of the store.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// LocalGrantsPath returns the permanent-tier file for the project.
func (s *Store) LocalGrantsPath() string {
	return filepath.Join(s.baseDir, localGrantsFile)
}

// SessionGrantsPath returns the session-tier file for a session id.
func (s *Store) SessionGrantsPath(sessionID string) string {
	return filepath.Join(s.baseDir, sessionsDirName, sessionID+".json")
}

// Promote records granted permissions at the requested scope. ScopeOnce
// is a no-op by design: the grant lives only in the derived config the
// caller builds for the single retry.
func (s *Store) Promote(scope Scope, sessionID string, grants *api.Grants) error {
	switch scope {
	case ScopeOnce:
		return nil
	case ScopeSession:
		return s.mergeInto(s.SessionGrantsPath(sessionID), grants)
	case ScopeAlways:
		return s.mergeInto(s.LocalGrantsPath(), grants)
	default:
		return errx.With(ErrUnknownScope, ": %d", int(scope))
	}
}

// mergeInto does the read-modify-merge-write cycle for a grants file.
// Existing grants are always extended, never replaced.
func (s *Store) mergeInto(path string, grants *api.Grants) error {
	existing := s.loadGrants(path)
	existing.Merge(grants)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errx.Wrap(ErrCreateStoreDir, err)
	}
	return writeJSONAtomic(path, existing)
}

// LoadLocal returns the permanent-tier grants for the project. Missing or
// unreadable files yield an empty record.
func (s *Store) LoadLocal() *api.Grants {
	return s.loadGrants(s.LocalGrantsPath())
}

// LoadSession returns the session-tier grants for a session id. Missing
// or unreadable files yield an empty record.
func (s *Store) LoadSession(sessionID string) *api.Grants {
	return s.loadGrants(s.SessionGrantsPath(sessionID))
}

func (s *Store) loadGrants(path string) *api.Grants {
	grants := &api.Grants{}
	data, err := os.ReadFile(path)
	if err != nil {
		return grants
	}
	if err := json.Unmarshal(data, grants); err != nil {
		s.logger.Warn("ignoring malformed grants file", "path", path, "error", err)
		return &api.Grants{}
	}
	return grants
}

// DeleteSession removes a session's grants file. Missing files are not
// an error.
func (s *Store) DeleteSession(sessionID string) error {
	if err := os.Remove(s.SessionGrantsPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return errx.Wrap(ErrDeleteSession, err)
	}
	return nil
}

// DefaultStaleAge is how old a session or pending file must be before
// CleanupStale removes it when no explicit age is given.
const DefaultStaleAge = 4 * time.Hour

// CleanupStale removes session grants and pending-request files whose
// modification time is older than maxAge. Returns the number of files
// removed.
func (s *Store) CleanupStale(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultStaleAge
	}
	cutoff := time.Now().Add(-maxAge)

	removed := 0
	for _, dir := range []string{
		filepath.Join(s.baseDir, sessionsDirName),
		filepath.Join(s.baseDir, pendingDirName),
	} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, errx.Wrap(ErrCleanupStore, err)
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				s.logger.Warn("stale file not removed", "path", entry.Name(), "error", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// ApplyGrants unions a grants record into a config snapshot and returns
// the derived config. Granted commands flow into permissions.run; granted
// paths into permissions.read and permissions.write. The input config is
// not mutated.
func ApplyGrants(cfg *api.Config, grants *api.Grants) *api.Config {
	if grants.Empty() {
		return cfg
	}
	overlay := &api.Config{Permissions: api.Permissions{Run: grants.AllowedCommands}}
	if grants.Permissions != nil {
		overlay.Permissions.Read = grants.Permissions.Read
		overlay.Permissions.Write = grants.Permissions.Write
	}
	return cfg.Merge(overlay)
}

// EffectiveConfig layers the permanent tier and (when a session id is
// given) the session tier on top of a config snapshot.
func (s *Store) EffectiveConfig(cfg *api.Config, sessionID string) *api.Config {
	derived := ApplyGrants(cfg, s.LoadLocal())
	if sessionID != "" {
		derived = ApplyGrants(derived, s.LoadSession(sessionID))
	}
	return derived
}

// writeJSONAtomic writes v as indented JSON via a temp file and rename.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errx.Wrap(ErrEncodeRecord, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errx.Wrap(ErrWriteRecord, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errx.Wrap(ErrWriteRecord, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errx.Wrap(ErrWriteRecord, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errx.Wrap(ErrWriteRecord, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errx.Wrap(ErrWriteRecord, err)
	}
	return nil
}
