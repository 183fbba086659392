package model

import "time"

// SubmitRequest represents the request to start an asynchronous webhook job
type SubmitRequest struct {
	Text     string `json:"text" validate:"required,max=4000"`
	Method   string `json:"method" validate:"omitempty,oneof=GET POST get post"`
	ForceNew bool   `json:"forceNew"`
	Workflow string `json:"workflow" validate:"omitempty,max=64"`
}

// SubmitResponse is returned immediately after a submit
type SubmitResponse struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	Message         string    `json:"message"`
	NextPollAfterMs int       `json:"nextPollAfterMs"`
}

// PollRequest carries the per-call pacing knobs of a poll
type PollRequest struct {
	SpeakEverySecs      *int `query:"speakEverySecs" validate:"omitempty,min=0,max=3600"`
	MinPollIntervalSecs *int `query:"minPollIntervalSecs" validate:"omitempty,min=0,max=3600"`
	MaxPolls            *int `query:"maxPolls" validate:"omitempty,min=0,max=10000"`
}

// PollResponse represents the state of a job as surfaced to a polling caller
type PollResponse struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	Message         string    `json:"message"`
	Done            bool      `json:"done"`
	NextPollAfterMs int       `json:"nextPollAfterMs"`
}

// JobSnapshotResponse is the operator view of a job record
type JobSnapshotResponse struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	Message      string     `json:"message"`
	Workflow     string     `json:"workflow,omitempty"`
	Delivered    bool       `json:"delivered"`
	PollCount    int        `json:"pollCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastPolledAt *time.Time `json:"lastPolledAt"`
}

// EchoRequest is used for connectivity tests
type EchoRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// EchoResponse mirrors the request text
type EchoResponse struct {
	Text string `json:"text"`
}
