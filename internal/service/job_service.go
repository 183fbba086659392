package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/asyncpoller/api/internal/client"
	"github.com/asyncpoller/api/internal/config"
	"github.com/asyncpoller/api/internal/dedup"
	"github.com/asyncpoller/api/internal/logging"
	"github.com/asyncpoller/api/internal/metrics"
	"github.com/asyncpoller/api/internal/model"
	"github.com/asyncpoller/api/internal/store"
	"github.com/asyncpoller/api/internal/throttle"
	"github.com/asyncpoller/api/internal/worker"
)

// TaskSubmitter accepts background work without blocking
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

// JobService implements submit and poll over the shared job store
type JobService struct {
	store    store.Store
	index    *dedup.Index
	pool     TaskSubmitter
	resolver *worker.ResolutionWorker
	caller   client.WorkflowCaller
	notifier worker.Notifier
	cfg      config.JobsConfig
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
}

func NewJobService(
	st store.Store,
	index *dedup.Index,
	pool TaskSubmitter,
	resolver *worker.ResolutionWorker,
	caller client.WorkflowCaller,
	notifier worker.Notifier,
	cfg config.JobsConfig,
	logger zerolog.Logger,
) *JobService {
	return &JobService{
		store:    st,
		index:    index,
		pool:     pool,
		resolver: resolver,
		caller:   caller,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.Component(logger, "jobs"),
	}
}

// WithClock replaces the time source
func (s *JobService) WithClock(now func() time.Time) *JobService {
	s.now = now
	return s
}

// Submit folds the request onto a running job or starts a new one. It never
// waits on the workflow engine.
func (s *JobService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResponse, error) {
	// a caller that already hung up gets no job
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	text := strings.TrimSpace(req.Text)
	workflow := strings.ToLower(strings.TrimSpace(req.Workflow))

	target, err := s.caller.ResolveTarget(workflow)
	if errors.Is(err, client.ErrUnknownWorkflow) {
		return nil, err
	}
	if err != nil {
		return s.rejectConfig(workflow, now, err)
	}

	key := dedup.Normalize(text)
	if workflow != "" {
		key = workflow + ":" + key
	}

	jobID, created, err := s.index.Resolve(key, now, req.ForceNew, s.isPending, func() (string, error) {
		id := s.newID()
		if err := s.store.Create(&model.Job{
			ID:        id,
			Status:    model.JobStatusPending,
			Message:   model.MsgAck,
			Workflow:  workflow,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return "", fmt.Errorf("failed to create job: %w", err)
		}
		return id, nil
	})
	if err != nil {
		return nil, err
	}

	if !created {
		metrics.IncSubmit("deduped")
		s.logger.Info().Str("job_id", jobID).Msg("request folded onto running job")
		return &model.SubmitResponse{
			ID:              jobID,
			Status:          model.JobStatusPending,
			Message:         model.MsgAlreadyWorking,
			NextPollAfterMs: s.nextPollAfterMs(throttle.Seconds(s.cfg.MinPollIntervalSecs)),
		}, nil
	}

	payload := model.JobPayload{
		JobID:     jobID,
		Text:      text,
		Method:    strings.ToUpper(strings.TrimSpace(req.Method)),
		URL:       target,
		CreatedAt: now,
	}
	if err := s.pool.Submit(s.resolver.Task(payload)); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to dispatch job")
		s.resolver.Fail(jobID, model.CodeBusy, model.MsgBusy)
		s.markDelivered(jobID)
		metrics.IncSubmit("rejected")
		return &model.SubmitResponse{
			ID:      jobID,
			Status:  model.JobStatusError,
			Message: model.MsgBusy,
		}, nil
	}

	metrics.IncSubmit("created")
	metrics.SetSize("jobs", s.store.Len())
	metrics.SetSize("dedup_keys", s.index.Len())
	s.logger.Info().
		Str("job_id", jobID).
		Str("workflow", workflow).
		Str("text", logging.Preview(text, 80)).
		Msg("job accepted")

	return &model.SubmitResponse{
		ID:              jobID,
		Status:          model.JobStatusPending,
		Message:         model.MsgAck,
		NextPollAfterMs: s.nextPollAfterMs(throttle.Seconds(s.cfg.MinPollIntervalSecs)),
	}, nil
}

// rejectConfig records a job that failed before any downstream call. The
// caller hears the error in the submit response, so it counts as delivered.
func (s *JobService) rejectConfig(workflow string, now time.Time, cause error) (*model.SubmitResponse, error) {
	id := s.newID()
	if err := s.store.Create(&model.Job{
		ID:        id,
		Status:    model.JobStatusError,
		Message:   model.MsgConfigError,
		Workflow:  workflow,
		CreatedAt: now,
		UpdatedAt: now,
		Delivered: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	metrics.IncSubmit("config_error")
	metrics.IncFinished(string(model.JobStatusError), model.CodeConfigError)
	s.logger.Error().Err(cause).Str("job_id", id).Msg("webhook target not configured")

	return &model.SubmitResponse{
		ID:      id,
		Status:  model.JobStatusError,
		Message: model.MsgConfigError,
	}, nil
}

func (s *JobService) isPending(jobID string) bool {
	job, ok := s.store.Get(jobID)
	return ok && job.Status == model.JobStatusPending
}

func (s *JobService) markDelivered(jobID string) {
	if _, err := s.store.Touch(jobID, func(j *model.Job) { j.Delivered = true }); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to update job")
	}
}

// nextPollAfterMs never advises polling faster than the minimum interval
// would admit.
func (s *JobService) nextPollAfterMs(minInterval time.Duration) int {
	if ms := int(minInterval / time.Millisecond); ms > s.cfg.NextPollAfterMs {
		return ms
	}
	return s.cfg.NextPollAfterMs
}

// pollPolicy is the resolved pacing for one poll call
type pollPolicy struct {
	speakEvery  time.Duration
	minInterval time.Duration
	maxPolls    int
}

func (s *JobService) policyFor(req model.PollRequest) pollPolicy {
	p := pollPolicy{
		speakEvery:  throttle.Seconds(s.cfg.SpeakEverySecs),
		minInterval: throttle.Seconds(s.cfg.MinPollIntervalSecs),
		maxPolls:    s.cfg.MaxPolls,
	}
	if req.SpeakEverySecs != nil {
		p.speakEvery = throttle.Seconds(*req.SpeakEverySecs)
	}
	if req.MinPollIntervalSecs != nil {
		p.minInterval = throttle.Seconds(*req.MinPollIntervalSecs)
	}
	if req.MaxPolls != nil {
		p.maxPolls = *req.MaxPolls
	}
	return p
}

// Poll reports job progress to a caller. It only reads and updates the job
// record; the whole decision runs under the job's lock so that exactly one
// caller receives the terminal message.
func (s *JobService) Poll(id string, req model.PollRequest) *model.PollResponse {
	now := s.now()
	policy := s.policyFor(req)

	var (
		result  string
		message string
		ceiling bool
	)
	job, err := s.store.Touch(id, func(j *model.Job) {
		j.PollCount++
		j.LastPolledAt = now

		if j.Status.IsTerminal() {
			if j.Delivered {
				result = "repeat"
				return
			}
			j.Delivered = true
			message = j.Message
			result = "final"
			return
		}

		if policy.maxPolls > 0 && j.PollCount >= policy.maxPolls {
			j.Status = model.JobStatusError
			j.Message = model.MsgTooLong
			j.UpdatedAt = now
			j.Delivered = true
			message = model.MsgTooLong
			result = "exhausted"
			ceiling = true
			return
		}

		// measured from the last admitted poll, not the last poll
		admit, admittedAt := throttle.Fire(j.LastAdmittedAt, now, policy.minInterval)
		if !admit {
			result = "throttled"
			return
		}
		j.LastAdmittedAt = admittedAt

		// the submit acknowledgment counts as the first spoken update
		lastSpoken := j.LastSpokenAt
		if lastSpoken.IsZero() {
			lastSpoken = j.CreatedAt
		}
		fire, spokenAt := throttle.Fire(lastSpoken, now, policy.speakEvery)
		if !fire {
			result = "silent"
			return
		}
		j.LastSpokenAt = spokenAt
		message = model.MsgProgress(int(now.Sub(j.CreatedAt) / time.Second))
		result = "progress"
	})
	if err != nil {
		metrics.IncPoll("unknown")
		return &model.PollResponse{
			ID:      id,
			Status:  model.JobStatusError,
			Message: model.MsgUnknownJob,
			Done:    true,
		}
	}
	metrics.IncPoll(result)

	if ceiling {
		metrics.IncFinished(string(model.JobStatusError), model.CodePollLimit)
		s.notifier.Fail(id, model.CodePollLimit, model.MsgTooLong)
		s.logger.Warn().Str("job_id", id).Int("polls", job.PollCount).Msg("poll ceiling reached")
	}

	resp := &model.PollResponse{
		ID:      job.ID,
		Status:  job.Status,
		Message: message,
		Done:    job.Status.IsTerminal(),
	}
	if !resp.Done {
		resp.NextPollAfterMs = s.nextPollAfterMs(policy.minInterval)
	}
	return resp
}

// Snapshot returns the stored record without touching poll bookkeeping
func (s *JobService) Snapshot(id string) (*model.JobSnapshotResponse, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, store.ErrJobNotFound
	}

	resp := &model.JobSnapshotResponse{
		ID:        job.ID,
		Status:    job.Status,
		Message:   job.Message,
		Workflow:  job.Workflow,
		Delivered: job.Delivered,
		PollCount: job.PollCount,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if !job.LastPolledAt.IsZero() {
		t := job.LastPolledAt
		resp.LastPolledAt = &t
	}
	return resp, nil
}
