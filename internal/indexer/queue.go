package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("ingestion queue closed")

// Job is one unit of background ingestion.
type Job func(ctx context.Context) (*models.IngestResult, error)

// TaskState is the lifecycle state of a Task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Task is an awaitable handle for a submitted job.
type Task struct {
	ID string

	mu       sync.Mutex
	state    TaskState
	result   *models.IngestResult
	err      error
	created  time.Time
	finished time.Time
	done     chan struct{}
	job      Job
}

// TaskStatus is a point-in-time view of a Task.
type TaskStatus struct {
	ID         string               `json:"id"`
	State      TaskState            `json:"state"`
	Result     *models.IngestResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*models.IngestResult, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Status returns the current state of the task.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TaskStatus{ID: t.ID, State: t.state, Result: t.result, CreatedAt: t.created}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	if !t.finished.IsZero() {
		f := t.finished
		s.FinishedAt = &f
	}
	return s
}

func (t *Task) setRunning() {
	t.mu.Lock()
	t.state = TaskRunning
	t.mu.Unlock()
}

func (t *Task) finish(result *models.IngestResult, err error) {
	t.mu.Lock()
	t.result, t.err = result, err
	t.state = TaskSucceeded
	if err != nil {
		t.state = TaskFailed
	}
	t.finished = time.Now()
	t.mu.Unlock()
	close(t.done)
}

func (t *Task) isFinished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// defaultRetain is how many tasks are remembered for Get before finished ones are forgotten.
const defaultRetain = 1024

// Queue runs ingestion jobs on a fixed number of workers fed by a bounded buffer.
type Queue struct {
	jobs   chan *Task
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	tasks  map[string]*Task
	order  []string
	retain int
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger.
func WithQueueLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithRetain sets how many tasks Get can still find.
func WithRetain(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.retain = n
		}
	}
}

// NewQueue starts workers goroutines consuming a buffer of size jobs.
func NewQueue(workers, size int, opts ...QueueOption) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	q := &Queue{
		jobs:   make(chan *Task, size),
		tasks:  make(map[string]*Task),
		retain: defaultRetain,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues job without blocking. A full buffer fails with models.ErrQueueFull.
func (q *Queue) Submit(job Job) (*Task, error) {
	t := &Task{
		ID:      uuid.New().String(),
		state:   TaskPending,
		created: time.Now(),
		done:    make(chan struct{}),
		job:     job,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	select {
	case q.jobs <- t:
	default:
		return nil, fmt.Errorf("%w: %d tasks waiting", models.ErrQueueFull, cap(q.jobs))
	}
	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)
	q.prune()
	return t, nil
}

// Get returns a task by ID.
func (q *Queue) Get(id string) (*Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	return t, ok
}

// Pending returns the number of tasks waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Close stops accepting work and waits for queued tasks to finish.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// prune forgets the oldest finished tasks beyond the retain limit. Caller holds q.mu.
func (q *Queue) prune() {
	if len(q.order) <= q.retain {
		return
	}
	kept := q.order[:0]
	excess := len(q.order) - q.retain
	for _, id := range q.order {
		if excess > 0 && q.tasks[id].isFinished() {
			delete(q.tasks, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.jobs {
		q.run(t)
	}
}

func (q *Queue) run(t *Task) {
	t.setRunning()
	start := time.Now()
	var (
		result *models.IngestResult
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ingestion task panicked: %v", r)
			}
		}()
		result, err = t.job(context.Background())
	}()
	t.finish(result, err)
	t.job = nil

	if q.logger == nil {
		return
	}
	if err != nil {
		q.logger.Error("ingestion task failed", zap.String("task", t.ID), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	fields := []zap.Field{zap.String("task", t.ID), zap.Duration("duration", time.Since(start))}
	if result != nil {
		fields = append(fields, zap.Int("pages", result.Pages), zap.Int("documents", result.Documents))
	}
	q.logger.Info("ingestion task finished", fields...)
}
