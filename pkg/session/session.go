// Package session tracks shell sessions and their background jobs in
// memory. The manager enforces a hard cap on concurrent sessions with
// LRU eviction, and per-session output-memory trimming that only ever
// drops finished jobs.
package session

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a tracked job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobStopped   JobStatus = "stopped"
)

// Job is one subprocess tracked under a session. Created when the
// process is spawned; mutated by the completion and timeout callbacks of
// the subprocess manager; eligible for memory trimming once it is no
// longer running.
type Job struct {
	ID              string        `json:"id"`
	PID             int           `json:"pid"`
	Code            string        `json:"code,omitempty"`
	Status          JobStatus     `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at,omitzero"`
	Duration        time.Duration `json:"duration,omitempty"`
	Stdout          string        `json:"stdout,omitempty"`
	Stderr          string        `json:"stderr,omitempty"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	Background      bool          `json:"background,omitempty"`
}

// jobOverheadBytes is the fixed bookkeeping cost charged per job when
// estimating session memory, on top of the retained output.
const jobOverheadBytes = 512

func (j *Job) estimateBytes() int64 {
	return int64(len(j.Stdout) + len(j.Stderr) + len(j.Code) + jobOverheadBytes)
}

// Session is the unit of isolation between callers: its own cwd, env,
// shell vars, and job registry. Owned exclusively by the Manager.
type Session struct {
	ID             string            `json:"id"`
	Cwd            string            `json:"cwd"`
	Env            map[string]string `json:"env,omitempty"`
	Vars           map[string]string `json:"vars,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`

	jobs      map[string]*Job
	jobsByPID map[int]string
	jobSeq    int
}

// estimateBytes sums the retained output of all jobs plus the serialized
// shell vars.
func (s *Session) estimateBytes() int64 {
	var total int64
	for _, job := range s.jobs {
		total += job.estimateBytes()
	}
	if len(s.Vars) > 0 {
		if data, err := json.Marshal(s.Vars); err == nil {
			total += int64(len(data))
		}
	}
	return total
}
