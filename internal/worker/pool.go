package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/asyncpoller/api/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
	ErrNilTask     = errors.New("nil task")
)

// Task is one unit of background work bound to a job
type Task struct {
	JobID string
	Run   func(ctx context.Context)
}

// PanicHandler is told about a task that panicked
type PanicHandler func(jobID string, err error)

// Pool runs submitted tasks on a fixed set of goroutines. Submit never
// blocks: when the queue is saturated the task is refused.
type Pool struct {
	wg      conc.WaitGroup
	jobs    chan Task
	quit    chan struct{}
	n       int
	logger  zerolog.Logger
	onPanic PanicHandler

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool creates a pool with the given number of workers and queue capacity
func NewPool(workers, queueSize int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &Pool{
		jobs:   make(chan Task, queueSize),
		quit:   make(chan struct{}),
		n:      workers,
		logger: logger.With().Str("component", "pool").Logger(),
	}
}

// OnPanic installs the handler called when a task panics
func (p *Pool) OnPanic(h PanicHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPanic = h
}

// Start launches the workers. Tasks receive ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.n; i++ {
		id := i
		p.wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					metrics.SetSize("queued", len(p.jobs))
					p.run(ctx, id, task)
				}
			}
		})
	}
}

func (p *Pool) run(ctx context.Context, workerID int, task Task) {
	var pc panics.Catcher
	pc.Try(func() { task.Run(ctx) })

	if r := pc.Recovered(); r != nil {
		p.logger.Error().
			Int("worker", workerID).
			Str("job_id", task.JobID).
			Str("panic", r.String()).
			Msg("task panicked")

		p.mu.Lock()
		h := p.onPanic
		p.mu.Unlock()
		if h != nil {
			h(task.JobID, r.AsError())
		}
	}
}

// Submit queues a task without blocking
func (p *Pool) Submit(task Task) error {
	if task.Run == nil {
		return ErrNilTask
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- task:
		metrics.SetSize("queued", len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for running ones until ctx is done.
// Tasks still queued are abandoned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn().Msg("shutdown grace elapsed with tasks still running")
		return ctx.Err()
	}
}
