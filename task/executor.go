package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/mcpbridge/logging"
)

// Config bounds the executor's resource usage.
type Config struct {
	// MaxConcurrentTasks caps the number of task functions running at once.
	// Additional tasks are accepted immediately but wait for a slot before
	// their function starts. Zero or negative means unlimited.
	MaxConcurrentTasks int

	// MaxRetainedTasks caps the number of terminal tasks kept for Status
	// and List queries. When exceeded, the oldest terminal tasks are
	// evicted. Zero or negative means unlimited retention.
	MaxRetainedTasks int
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 10,
		MaxRetainedTasks:   1000,
	}
}

// Options configures an Executor.
type Options struct {
	Config Config
	Logger logging.Logger
}

// Fn is the unit of work run by a task. It must honor ctx cancellation.
type Fn func(ctx context.Context) (any, error)

// record pairs a task snapshot with its control handles. The snapshot is
// only read or written under the executor mutex.
type record struct {
	task     Task
	cancel   context.CancelFunc
	terminal chan struct{}
}

// Executor runs task functions on background goroutines and tracks their
// lifecycle. All methods are safe for concurrent use.
type Executor struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string

	sem    chan struct{}
	wg     sync.WaitGroup
	cfg    Config
	logger logging.Logger
}

// NewExecutor creates an executor.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := Options{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Executor{
		records: make(map[string]*record),
		cfg:     opts.Config,
		logger:  opts.Logger,
	}

	if opts.Config.MaxConcurrentTasks > 0 {
		e.sem = make(chan struct{}, opts.Config.MaxConcurrentTasks)
	}

	return e
}

// WithConfig overrides the executor limits.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithLogger sets the executor logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Execute registers fn as a new Running task and returns its ID without
// waiting for the work to start or finish. The function receives a context
// derived from ctx that is additionally cancelled by Cancel.
func (e *Executor) Execute(ctx context.Context, fn Fn) string {
	id := uuid.New().String()
	taskCtx, cancel := context.WithCancel(ctx)

	now := time.Now()
	rec := &record{
		task: Task{
			ID:        id,
			Status:    StatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel:   cancel,
		terminal: make(chan struct{}),
	}

	e.mu.Lock()
	e.records[id] = rec
	e.order = append(e.order, id)
	e.mu.Unlock()

	e.logger.Debug("task accepted", "taskID", id)

	e.wg.Add(1)

	go e.run(taskCtx, rec, fn)

	return id
}

func (e *Executor) run(ctx context.Context, rec *record, fn Fn) {
	defer e.wg.Done()
	defer rec.cancel()

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			e.finish(rec, nil, ctx.Err())
			return
		}
	}

	result, err := e.invoke(ctx, fn)
	e.finish(rec, result, err)
}

// invoke runs fn with panic containment so a panicking task cannot take the
// process down with it.
func (e *Executor) invoke(ctx context.Context, fn Fn) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	return fn(ctx)
}

// finish transitions a Running task to Completed or Failed. If the task was
// already terminal (cancelled while the function was still unwinding), the
// late result is discarded.
func (e *Executor) finish(rec *record, result any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec.task.Status != StatusRunning {
		e.logger.Debug("late task result discarded", "taskID", rec.task.ID, "status", rec.task.Status.String())
		return
	}

	if err != nil {
		rec.task.Status = StatusFailed
		rec.task.Err = err.Error()
		e.logger.Debug("task failed", "taskID", rec.task.ID, "error", err)
	} else {
		rec.task.Status = StatusCompleted
		rec.task.Result = result
		e.logger.Debug("task completed", "taskID", rec.task.ID)
	}

	rec.task.UpdatedAt = time.Now()
	close(rec.terminal)

	e.evictLocked()
}

// Cancel requests cancellation of a task. A Running task transitions to
// Cancelled immediately and its context is cancelled; the outcome for an
// already terminal task is OutcomeNotCancellable.
func (e *Executor) Cancel(id string) (CancelOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return OutcomeNotCancellable, &NotFoundError{TaskID: id}
	}

	if rec.task.Status.Terminal() {
		return OutcomeNotCancellable, nil
	}

	rec.task.Status = StatusCancelled
	rec.task.UpdatedAt = time.Now()
	close(rec.terminal)
	rec.cancel()

	e.logger.Debug("task cancelled", "taskID", id)

	e.evictLocked()

	return OutcomeCancelled, nil
}

// Status returns a snapshot of the task with the given ID.
func (e *Executor) Status(id string) (Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.records[id]
	if !ok {
		return Task{}, &NotFoundError{TaskID: id}
	}

	return rec.task, nil
}

// List returns snapshots of all retained tasks in creation order.
func (e *Executor) List() []Task {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tasks := make([]Task, 0, len(e.order))
	for _, id := range e.order {
		if rec, ok := e.records[id]; ok {
			tasks = append(tasks, rec.task)
		}
	}

	return tasks
}

// Wait blocks until the task reaches a terminal state or ctx is done, and
// returns the final snapshot.
func (e *Executor) Wait(ctx context.Context, id string) (Task, error) {
	e.mu.RLock()
	rec, ok := e.records[id]
	e.mu.RUnlock()

	if !ok {
		return Task{}, &NotFoundError{TaskID: id}
	}

	select {
	case <-rec.terminal:
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return rec.task, nil
}

// Purge removes all terminal tasks and returns how many were removed.
func (e *Executor) Purge() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	kept := e.order[:0]

	for _, id := range e.order {
		rec, ok := e.records[id]
		if ok && rec.task.Status.Terminal() {
			delete(e.records, id)
			removed++

			continue
		}

		kept = append(kept, id)
	}

	e.order = kept

	return removed
}

// Shutdown cancels all running tasks and waits for their goroutines to
// return, or until ctx is done.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()

	for _, id := range e.order {
		rec := e.records[id]
		if rec.task.Status == StatusRunning {
			rec.task.Status = StatusCancelled
			rec.task.UpdatedAt = time.Now()
			close(rec.terminal)
			rec.cancel()
		}
	}

	e.mu.Unlock()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// evictLocked drops the oldest terminal tasks until the retained terminal
// count is within the configured limit. Callers must hold e.mu.
func (e *Executor) evictLocked() {
	if e.cfg.MaxRetainedTasks <= 0 {
		return
	}

	terminal := 0

	for _, rec := range e.records {
		if rec.task.Status.Terminal() {
			terminal++
		}
	}

	if terminal <= e.cfg.MaxRetainedTasks {
		return
	}

	kept := e.order[:0]

	for _, id := range e.order {
		rec := e.records[id]
		if terminal > e.cfg.MaxRetainedTasks && rec.task.Status.Terminal() {
			delete(e.records, id)

			terminal--

			continue
		}

		kept = append(kept, id)
	}

	e.order = kept
}
