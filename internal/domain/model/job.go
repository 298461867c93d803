package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type RunStatus string

const (
	// Local poller states; never reported by the provider.
	RunStatusPending  RunStatus = "pending"
	RunStatusChecking RunStatus = "checking"

	// Provider states.
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// NormalizeRunStatus maps a provider status literal onto the canonical
// vocabulary. "succeeded" is treated as "completed"; "cancelled" and
// "expired" end the run as "failed". Anything else is kept verbatim and is
// non-terminal.
func NormalizeRunStatus(s string) RunStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "succeeded":
		return RunStatusCompleted
	case "failed", "cancelled", "expired":
		return RunStatusFailed
	case "queued":
		return RunStatusQueued
	case "in_progress":
		return RunStatusInProgress
	default:
		return RunStatus(strings.ToLower(strings.TrimSpace(s)))
	}
}

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// JobRef identifies a job on the provider side.
type JobRef struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`
}

func (r JobRef) Key() string { return r.ThreadID + "/" + r.RunID }

func (r JobRef) Valid() bool { return r.ThreadID != "" && r.RunID != "" }

// Job is the local view of one thread/run cycle.
type Job struct {
	ID        string
	Ref       JobRef
	Status    RunStatus
	Checks    int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewJob(ref JobRef) *Job {
	now := time.Now()
	return &Job{
		ID:        ulid.Make().String(),
		Ref:       ref,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finish moves the job to its terminal status. err may be nil.
func (j *Job) Finish(status RunStatus, checks int, err error) {
	j.Status = status
	j.Checks = checks
	if err != nil {
		j.LastError = err.Error()
	}
	j.UpdatedAt = time.Now()
}

// PollOutcome is the terminal view of a poll. On error it still carries
// the number of checks issued and the last known status.
type PollOutcome struct {
	Ref     JobRef
	Status  RunStatus
	Checks  int
	Elapsed time.Duration
}
