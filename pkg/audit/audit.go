// Package audit keeps a local history of sandbox executions in sqlite.
// Recording is best-effort: an unavailable database never blocks a run.
package audit

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/safeshell/safeshell/pkg/storedb"
)

const auditModule = "audit"

// Execution is one recorded sandbox run.
type Execution struct {
	ID         int64
	SessionID  string
	Command    string
	ExitCode   int
	Duration   time.Duration
	Violation  string
	CreatedAt  time.Time
}

// Recorder writes execution records. A nil *Recorder drops all records,
// so callers do not need to guard every call site.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the audit database under baseDir.
func Open(baseDir string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := storedb.Open(storedb.OpenOptions{
		Path:       filepath.Join(baseDir, "audit.db"),
		Module:     auditModule,
		Migrations: auditMigrations(),
	})
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, logger: logger.With("component", "audit")}, nil
}

func auditMigrations() []storedb.Migration {
	return []storedb.Migration{
		{
			Version: 1,
			Name:    "create_executions",
			SQL: `
CREATE TABLE IF NOT EXISTS executions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL DEFAULT '',
  command TEXT NOT NULL,
  exit_code INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  violation TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_session ON executions(session_id, created_at DESC);
`,
		},
	}
}

// Record inserts an execution row. Failures are logged and swallowed.
func (r *Recorder) Record(e Execution) {
	if r == nil {
		return
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(
		`INSERT INTO executions (session_id, command, exit_code, duration_ms, violation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Command, e.ExitCode, e.Duration.Milliseconds(), e.Violation,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		r.logger.Warn("audit record dropped", "error", err)
	}
}

// Recent returns up to limit executions for a session, newest first. An
// empty sessionID returns executions across all sessions.
func (r *Recorder) Recent(sessionID string, limit int) ([]Execution, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, command, exit_code, duration_ms, violation, created_at
		FROM executions`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Command, &e.ExitCode, &durationMS, &e.Violation, &createdAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}
