package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further status transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Job represents one tracked request/response cycle against the workflow engine
type Job struct {
	ID             string    `json:"id"`
	Status         JobStatus `json:"status"`
	Message        string    `json:"message"`
	Workflow       string    `json:"workflow,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastSpokenAt   time.Time `json:"lastSpokenAt"` // zero means never spoken
	Delivered      bool      `json:"delivered"`
	PollCount      int       `json:"pollCount"`
	LastPolledAt   time.Time `json:"lastPolledAt"`
	LastAdmittedAt time.Time `json:"lastAdmittedAt"` // last poll that cleared the minimum interval
}

// JobPayload contains what a resolution worker needs to call the workflow engine
type JobPayload struct {
	JobID     string    `json:"jobId"`
	Text      string    `json:"text"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"` // the resolution deadline counts from here
}
