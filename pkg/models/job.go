package models

import (
	"fmt"
	"time"
)

// JobStatus is the state of one lifecycle job invocation.
type JobStatus string

const (
	JobPending         JobStatus = "pending"
	JobRunning         JobStatus = "running"
	JobSucceeded       JobStatus = "succeeded"
	JobPartiallyFailed JobStatus = "partially_failed"
	JobFailed          JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobPartiallyFailed || s == JobFailed
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning},
	JobRunning: {JobSucceeded, JobPartiallyFailed, JobFailed},
}

// JobDetail is a per-partition outcome, e.g. one organization in a score refresh.
type JobDetail struct {
	Key       string `json:"key"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// JobRun is the result and audit record of one job invocation.
type JobRun struct {
	ID         string      `json:"id"`
	Job        string      `json:"job"`
	Status     JobStatus   `json:"status"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Processed  int         `json:"processed"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Stopped    bool        `json:"stopped,omitempty"`
	Error      string      `json:"error,omitempty"`
	Details    []JobDetail `json:"details,omitempty"`
}

// Transition moves the run to next, rejecting edges outside
// pending -> running -> {succeeded, partially_failed, failed}.
func (r *JobRun) Transition(next JobStatus) error {
	for _, allowed := range jobTransitions[r.Status] {
		if allowed == next {
			r.Status = next
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", r.Status, next)
}

// Duration is the wall time of a finished run.
func (r *JobRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
