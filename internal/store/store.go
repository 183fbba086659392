package store

import (
	"errors"
	"time"

	"github.com/asyncpoller/api/internal/model"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobExists        = errors.New("job already exists")
	ErrInvalidJob       = errors.New("invalid job")
	ErrStatusTransition = errors.New("invalid status transition")
)

// Store is the authoritative mapping from correlation id to job state.
//
// Implementations must make every mutation of a given id mutually exclusive.
// Once a job is terminal its status and message are frozen; only delivery and
// poll bookkeeping may still change.
type Store interface {
	// Create inserts a new job. The id must be unused.
	Create(job *model.Job) error

	// Get returns a snapshot copy of the job.
	Get(id string) (model.Job, bool)

	// CompareAndSwapStatus moves a job from one status to another and sets its
	// message, but only if the current status equals from. It reports whether
	// the swap happened and returns the resulting snapshot.
	CompareAndSwapStatus(id string, from, to model.JobStatus, message string, at time.Time) (model.Job, bool, error)

	// Touch runs fn against the live record while holding the job's lock and
	// returns a snapshot taken after fn. Changes fn makes to a frozen status or
	// message are discarded.
	Touch(id string, fn func(job *model.Job)) (model.Job, error)

	// Len returns the number of jobs held.
	Len() int
}

func validTransition(from, to model.JobStatus) bool {
	return from == model.JobStatusPending && to.IsTerminal()
}
