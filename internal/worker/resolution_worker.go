package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/asyncpoller/api/internal/classifier"
	"github.com/asyncpoller/api/internal/client"
	"github.com/asyncpoller/api/internal/logging"
	"github.com/asyncpoller/api/internal/metrics"
	"github.com/asyncpoller/api/internal/model"
	"github.com/asyncpoller/api/internal/store"
)

const (
	DefaultRetryDelay = 2 * time.Second
	DefaultDeadline   = 60 * time.Second
)

// Notifier receives job lifecycle events
type Notifier interface {
	Progress(jobID string, attempt int, message string)
	Complete(jobID, message string)
	Fail(jobID, code, message string)
}

// Policy bounds the retry loop of a resolution
type Policy struct {
	RetryDelay  time.Duration
	Deadline    time.Duration
	RetryNon2xx bool
}

// ResolutionWorker drives one job from pending to a terminal status
type ResolutionWorker struct {
	store      store.Store
	caller     client.WorkflowCaller
	classifier *classifier.Classifier
	notifier   Notifier
	policy     Policy
	now        func() time.Time
	logger     zerolog.Logger
}

// NewResolutionWorker creates a new resolution worker
func NewResolutionWorker(st store.Store, caller client.WorkflowCaller, cls *classifier.Classifier, notifier Notifier, policy Policy, logger zerolog.Logger) *ResolutionWorker {
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = DefaultRetryDelay
	}
	if policy.Deadline <= 0 {
		policy.Deadline = DefaultDeadline
	}
	return &ResolutionWorker{
		store:      st,
		caller:     caller,
		classifier: cls,
		notifier:   notifier,
		policy:     policy,
		now:        time.Now,
		logger:     logging.Component(logger, "worker"),
	}
}

// WithClock replaces the timestamp source
func (w *ResolutionWorker) WithClock(now func() time.Time) *ResolutionWorker {
	w.now = now
	return w
}

// Task wraps a payload for the pool
func (w *ResolutionWorker) Task(payload model.JobPayload) Task {
	return Task{
		JobID: payload.JobID,
		Run: func(ctx context.Context) {
			w.Resolve(ctx, payload)
		},
	}
}

// Resolve runs the retry loop for one job and returns the status it left the
// job in. It never returns with the job still pending unless another writer
// already terminated it.
func (w *ResolutionWorker) Resolve(ctx context.Context, p model.JobPayload) model.JobStatus {
	defer metrics.TrackInFlight()()

	log := w.logger.With().Str("job_id", p.JobID).Logger()

	if p.URL == "" {
		return w.finish(p.JobID, model.JobStatusError, model.MsgConfigError, model.CodeConfigError)
	}

	ctx, cancel := context.WithTimeout(ctx, w.remaining(p))
	defer cancel()

	log.Info().Str("method", p.Method).Str("text", logging.Preview(p.Text, 80)).Msg("resolution started")

	for attempt := 1; ; attempt++ {
		if job, ok := w.store.Get(p.JobID); !ok || job.Status.IsTerminal() {
			log.Debug().Msg("job already settled, worker exiting")
			return job.Status
		}
		if ctx.Err() != nil {
			log.Warn().Int("attempts", attempt-1).Msg("resolution deadline exceeded")
			return w.finish(p.JobID, model.JobStatusError, model.MsgTooLong, model.CodeDeadline)
		}

		start := time.Now()
		resp, err := w.caller.Call(ctx, &client.CallRequest{
			URL:           p.URL,
			Method:        p.Method,
			Text:          p.Text,
			CorrelationID: p.JobID,
		})

		switch {
		case err == nil && resp.OK():
			text := w.classifier.Classify(resp.ContentType, resp.Body)
			if !w.classifier.IsPlaceholder(text) {
				metrics.ObserveAttempt("final", metrics.SinceMs(start))
				log.Info().Int("attempt", attempt).Msg("final answer received")
				return w.finish(p.JobID, model.JobStatusDone, text, "")
			}
			metrics.ObserveAttempt("placeholder", metrics.SinceMs(start))
			log.Debug().Int("attempt", attempt).Str("text", logging.Preview(text, 40)).Msg("placeholder response, waiting")
			w.clearMessage(p.JobID)
			w.notifier.Progress(p.JobID, attempt, "")

		case err == nil:
			metrics.ObserveAttempt("http_error", metrics.SinceMs(start))
			if !w.policy.RetryNon2xx {
				log.Warn().Int("status", resp.StatusCode).Msg("workflow engine returned non-success status")
				return w.finish(p.JobID, model.JobStatusError, model.MsgRequestFailed(resp.StatusCode), model.CodeHTTPError)
			}
			log.Debug().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("non-success status, retrying")

		case errors.Is(err, client.ErrTimeout):
			// a timed out call may still have side effects downstream; never retry it
			metrics.ObserveAttempt("timeout", metrics.SinceMs(start))
			return w.finish(p.JobID, model.JobStatusError, model.MsgTimeout, model.CodeTimeout)

		case ctx.Err() != nil:
			return w.finish(p.JobID, model.JobStatusError, model.MsgTooLong, model.CodeDeadline)

		default:
			metrics.ObserveAttempt("transient", metrics.SinceMs(start))
			log.Warn().Err(err).Int("attempt", attempt).Msg("transient webhook failure, retrying")
		}

		timer := time.NewTimer(w.policy.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().Int("attempts", attempt).Msg("resolution deadline exceeded")
			return w.finish(p.JobID, model.JobStatusError, model.MsgTooLong, model.CodeDeadline)
		case <-timer.C:
		}
	}
}

// remaining is what is left of the deadline, counted from job creation so
// that time spent queued for a worker is included. It may be negative.
func (w *ResolutionWorker) remaining(p model.JobPayload) time.Duration {
	if p.CreatedAt.IsZero() {
		return w.policy.Deadline
	}
	return w.policy.Deadline - w.now().Sub(p.CreatedAt)
}

// Fail terminates a job that could not be resolved for an internal reason
func (w *ResolutionWorker) Fail(jobID, code, message string) model.JobStatus {
	return w.finish(jobID, model.JobStatusError, message, code)
}

func (w *ResolutionWorker) clearMessage(jobID string) {
	now := w.now()
	_, err := w.store.Touch(jobID, func(j *model.Job) {
		if j.Status == model.JobStatusPending {
			j.Message = ""
			j.UpdatedAt = now
		}
	})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to update job")
	}
}

func (w *ResolutionWorker) finish(jobID string, status model.JobStatus, message, code string) model.JobStatus {
	job, swapped, err := w.store.CompareAndSwapStatus(jobID, model.JobStatusPending, status, message, w.now())
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to settle job")
		return job.Status
	}
	if !swapped {
		w.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("job settled elsewhere")
		return job.Status
	}

	reason := code
	if reason == "" {
		reason = "answer"
	}
	metrics.IncFinished(string(status), reason)

	if status == model.JobStatusDone {
		w.notifier.Complete(jobID, message)
	} else {
		w.notifier.Fail(jobID, code, message)
	}
	w.logger.Info().Str("job_id", jobID).Str("status", string(status)).Str("reason", reason).Msg("job settled")
	return status
}
