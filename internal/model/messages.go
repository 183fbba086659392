package model

import "fmt"

// Speakable messages surfaced to callers
const (
	MsgAck            = "Got it, I'm on it. I'll keep you posted."
	MsgAlreadyWorking = "Already working on that. I'll keep you posted."
	MsgUnknownJob     = "Unknown job ID"
	MsgConfigError    = "The workflow target is not configured."
	MsgTimeout        = "Request timed out upstream."
	MsgTooLong        = "This is taking too long. Try narrowing the request."
	MsgBusy           = "Too many requests in flight. Try again in a moment."
	MsgInternal       = "Something went wrong while handling that request."
)

// Error codes attached to failed jobs on the event stream
const (
	CodeConfigError = "CONFIG_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeDeadline    = "DEADLINE"
	CodeHTTPError   = "HTTP_ERROR"
	CodePollLimit   = "POLL_LIMIT"
	CodeBusy        = "BUSY"
	CodeInternal    = "INTERNAL"
)

// MsgRequestFailed reports a non-success status from the workflow engine
func MsgRequestFailed(statusCode int) string {
	return fmt.Sprintf("Request failed (%d).", statusCode)
}

// MsgProgress is the periodic keep-alive spoken while a job is pending
func MsgProgress(elapsedSecs int) string {
	return fmt.Sprintf("Still working… (%ds elapsed)", elapsedSecs)
}
