package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/asyncpoller/api/internal/model"
)

const shardCount = 32

type shard struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// MemoryStore is a process-local Store. Jobs are spread over a fixed set of
// shards, each guarded by its own lock, so unrelated ids never contend.
// Nothing is ever evicted.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore creates an empty in-memory job store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{jobs: make(map[string]*model.Job)}
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%shardCount]
}

// Create inserts a new job
func (s *MemoryStore) Create(job *model.Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidJob)
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	sh := s.shardFor(job.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	stored := *job
	sh.jobs[job.ID] = &stored
	return nil
}

// Get returns a copy of the job
func (s *MemoryStore) Get(id string) (model.Job, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	job, ok := sh.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// CompareAndSwapStatus performs a guarded status transition
func (s *MemoryStore) CompareAndSwapStatus(id string, from, to model.JobStatus, message string, at time.Time) (model.Job, bool, error) {
	if !validTransition(from, to) {
		return model.Job{}, false, fmt.Errorf("%w: %s -> %s", ErrStatusTransition, from, to)
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	job, ok := sh.jobs[id]
	if !ok {
		return model.Job{}, false, ErrJobNotFound
	}
	if job.Status != from {
		return *job, false, nil
	}

	job.Status = to
	job.Message = message
	job.UpdatedAt = at
	return *job, true, nil
}

// Touch mutates bookkeeping fields under the job's lock
func (s *MemoryStore) Touch(id string, fn func(job *model.Job)) (model.Job, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	job, ok := sh.jobs[id]
	if !ok {
		return model.Job{}, ErrJobNotFound
	}

	before := *job
	fn(job)

	// identity and frozen fields
	job.ID = before.ID
	job.CreatedAt = before.CreatedAt
	if before.Status.IsTerminal() {
		job.Status = before.Status
		job.Message = before.Message
		job.UpdatedAt = before.UpdatedAt
	} else if job.Status != before.Status && !validTransition(before.Status, job.Status) {
		job.Status = before.Status
	}
	if before.Delivered {
		job.Delivered = true
	}

	return *job, nil
}

// Len returns the number of stored jobs
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.jobs)
		sh.mu.RUnlock()
	}
	return n
}
