package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer cannot accept another job.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueStopped is returned when enqueueing on a queue that is not running.
	ErrQueueStopped = errors.New("queue is not running")
)

// Job represents a queued background task. Jobs sharing a non-empty Key are
// coalesced while one of them is still waiting in the buffer.
type Job struct {
	ID       string
	Key      string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Queue is an in-memory fire-and-forget dispatcher backed by goroutines.
// Failed jobs are logged and dropped; retry policy belongs to whoever enqueues.
type Queue struct {
	name    string
	handler Handler
	workers int
	logger  *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	pending map[string]struct{}
	started bool
	stopped bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		jobs:    make(chan Job, cfg.BufferSize),
		pending: make(map[string]struct{}),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop refuses new jobs, lets workers drain what is buffered and waits for
// them until ctx expires, at which point in-flight handlers are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Sugar().Infow("queue stopped", "queue", q.name)
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("queue %s drain: %w", q.name, ctx.Err())
	}
}

// Enqueue pushes a job without blocking. A job whose Key is already waiting is
// coalesced into the pending one and reported as accepted.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started || q.stopped {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueStopped)
	}
	if job.Key != "" {
		if _, waiting := q.pending[job.Key]; waiting {
			return nil
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		if job.Key != "" {
			q.pending[job.Key] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.release(job)
		q.run(workerID, job)
	}
}

// release clears the coalescing key before the handler runs so that changes
// made while the job executes schedule a fresh run.
func (q *Queue) release(job Job) {
	if job.Key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, job.Key)
	q.mu.Unlock()
}

func (q *Queue) run(workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked",
				zap.String("queue", q.name),
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	if err := q.handler(q.ctx, job); err != nil {
		q.logger.Warn("job failed",
			zap.String("queue", q.name),
			zap.Int("worker", workerID),
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.String("key", job.Key),
			zap.Duration("queued_for", time.Since(job.Enqueued)),
			zap.Error(err),
		)
	}
}
