package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/safeshell/safeshell/internal/errx"
)

const (
	DefaultMaxSessions      = 32
	DefaultMaxSessionMemory = 8 * 1024 * 1024
	DefaultMaxSessionAge    = 4 * time.Hour
)

// Options configures a Manager. Zero values take the defaults above.
type Options struct {
	MaxSessions      int
	MaxSessionMemory int64
	MaxSessionAge    time.Duration
	Logger           *slog.Logger

	// Terminate delivers a stop signal to a job's process. Defaults to
	// SIGTERM; injectable for tests.
	Terminate func(pid int) error
}

// Manager is the in-memory registry of sessions and their jobs. Safe for
// concurrent use.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	maxCount  int
	maxMemory int64
	maxAge    time.Duration
	terminate func(pid int) error
	logger    *slog.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxSessionMemory <= 0 {
		opts.MaxSessionMemory = DefaultMaxSessionMemory
	}
	if opts.MaxSessionAge <= 0 {
		opts.MaxSessionAge = DefaultMaxSessionAge
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Terminate == nil {
		opts.Terminate = defaultTerminate
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		maxCount:  opts.MaxSessions,
		maxMemory: opts.MaxSessionMemory,
		maxAge:    opts.MaxSessionAge,
		terminate: opts.Terminate,
		logger:    opts.Logger.With("component", "session"),
	}
}

// Create registers a new session. An empty id gets a generated one. When
// the session cap is reached, the session with the oldest activity time
// is evicted first; eviction terminates its running jobs the same way an
// explicit End does.
func (m *Manager) Create(id, cwd string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}
	if existing, ok := m.sessions[id]; ok {
		existing.LastActivityAt = time.Now()
		return existing
	}

	for len(m.sessions) >= m.maxCount {
		lru := m.leastRecentlyActiveLocked()
		if lru == nil {
			break
		}
		m.logger.Info("evicting least recently active session",
			"session", lru.ID, "last_activity", lru.LastActivityAt)
		m.endLocked(lru)
	}

	now := time.Now()
	sess := &Session{
		ID:             id,
		Cwd:            cwd,
		Env:            make(map[string]string),
		Vars:           make(map[string]string),
		CreatedAt:      now,
		LastActivityAt: now,
		jobs:           make(map[string]*Job),
		jobsByPID:      make(map[int]string),
	}
	m.sessions[id] = sess
	return sess
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errx.With(ErrSessionNotFound, ": %s", id)
	}
	return sess, nil
}

// Touch refreshes a session's activity time.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		sess.LastActivityAt = time.Now()
	}
}

// End terminates a session: running jobs receive a best-effort stop
// signal (marked failed when even that throws), then the session is
// removed.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return errx.With(ErrSessionNotFound, ": %s", id)
	}
	m.endLocked(sess)
	return nil
}

func (m *Manager) endLocked(sess *Session) {
	for _, job := range sess.jobs {
		if job.Status != JobRunning {
			continue
		}
		if err := m.terminate(job.PID); err != nil {
			job.Status = JobFailed
			m.logger.Warn("terminating job failed",
				"session", sess.ID, "job", job.ID, "pid", job.PID, "error", err)
			continue
		}
		job.Status = JobStopped
	}
	delete(m.sessions, sess.ID)
}

// Cleanup ends every session whose last activity is older than the
// configured maximum age. Returns the number of sessions removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.maxAge)
	var stale []*Session
	for _, sess := range m.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	for _, sess := range stale {
		m.endLocked(sess)
	}
	return len(stale)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) leastRecentlyActiveLocked() *Session {
	var lru *Session
	for _, sess := range m.sessions {
		if lru == nil || sess.LastActivityAt.Before(lru.LastActivityAt) {
			lru = sess
		}
	}
	return lru
}

// AddJob registers a freshly spawned process under a session and returns
// the job record. Touches the session's activity time and re-checks the
// memory budget.
func (m *Manager) AddJob(sessionID string, pid int, code string, background bool) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, errx.With(ErrSessionNotFound, ": %s", sessionID)
	}

	sess.jobSeq++
	job := &Job{
		ID:         fmt.Sprintf("job-%d", sess.jobSeq),
		PID:        pid,
		Code:       code,
		Status:     JobRunning,
		StartedAt:  time.Now(),
		Background: background,
	}
	sess.jobs[job.ID] = job
	sess.jobsByPID[pid] = job.ID
	sess.LastActivityAt = time.Now()

	m.trimLocked(sess)
	return job, nil
}

// JobOutput carries the collected result of a finished job.
type JobOutput struct {
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
}

// FinishJob transitions a job out of the running state, recording its
// output and duration.
func (m *Manager) FinishJob(sessionID, jobID string, status JobStatus, out JobOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return errx.With(ErrSessionNotFound, ": %s", sessionID)
	}
	job, ok := sess.jobs[jobID]
	if !ok {
		return errx.With(ErrJobNotFound, ": %s/%s", sessionID, jobID)
	}

	job.Status = status
	job.CompletedAt = time.Now()
	job.Duration = job.CompletedAt.Sub(job.StartedAt)
	job.Stdout = out.Stdout
	job.Stderr = out.Stderr
	job.StdoutTruncated = out.StdoutTruncated
	job.StderrTruncated = out.StderrTruncated
	sess.LastActivityAt = time.Now()

	m.trimLocked(sess)
	return nil
}

// UpdateState records shell state echoed back by a finished run: the
// working directory and shell variables carried across invocations.
func (m *Manager) UpdateState(sessionID, cwd string, vars map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return errx.With(ErrSessionNotFound, ": %s", sessionID)
	}
	if cwd != "" {
		sess.Cwd = cwd
	}
	for k, v := range vars {
		sess.Vars[k] = v
	}
	sess.LastActivityAt = time.Now()
	return nil
}

// JobByPID resolves a pid back to its job within a session.
func (m *Manager) JobByPID(sessionID string, pid int) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, errx.With(ErrSessionNotFound, ": %s", sessionID)
	}
	jobID, ok := sess.jobsByPID[pid]
	if !ok {
		return nil, errx.With(ErrJobNotFound, ": pid %d", pid)
	}
	return sess.jobs[jobID], nil
}

// JobFilter narrows a ListJobs call. Nil fields match everything; Limit
// of zero means no limit.
type JobFilter struct {
	Status     *JobStatus
	Background *bool
	Limit      int
}

// ListJobs returns copies of a session's jobs, newest started first.
func (m *Manager) ListJobs(sessionID string, filter JobFilter) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, errx.With(ErrSessionNotFound, ": %s", sessionID)
	}

	jobs := make([]Job, 0, len(sess.jobs))
	for _, job := range sess.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.Background != nil && job.Background != *filter.Background {
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

// trimLocked drops finished jobs, oldest started first, until the
// session's estimated memory is back under the limit. Running jobs are
// never evicted, even when a single one exceeds the limit by itself.
func (m *Manager) trimLocked(sess *Session) {
	for sess.estimateBytes() > m.maxMemory {
		victim := oldestFinishedJob(sess)
		if victim == nil {
			return
		}
		delete(sess.jobs, victim.ID)
		delete(sess.jobsByPID, victim.PID)
		m.logger.Debug("trimmed job under memory pressure",
			"session", sess.ID, "job", victim.ID)
	}
}

func oldestFinishedJob(sess *Session) *Job {
	var oldest *Job
	for _, job := range sess.jobs {
		if job.Status == JobRunning {
			continue
		}
		if oldest == nil || job.StartedAt.Before(oldest.StartedAt) {
			oldest = job
		}
	}
	return oldest
}
