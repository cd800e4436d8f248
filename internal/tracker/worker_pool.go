package tracker

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Task represents a work item
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to a Task
type TaskFunc func(ctx context.Context) error

// Execute calls f
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// WorkerPool manages a pool of workers for concurrent processing
type WorkerPool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    hclog.Logger
	startOnce sync.Once
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, logger hclog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan Task, workers*64),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		for i := 0; i < wp.workers; i++ {
			wp.wg.Add(1)
			go wp.worker()
		}
	})
}

// Stop stops the workers and waits for running tasks. Queued tasks that
// have not started are dropped.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// Submit submits a task to the worker pool. It returns false once the pool
// is stopped or ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, task Task) bool {
	if wp.ctx.Err() != nil {
		return false
	}
	select {
	case wp.taskQueue <- task:
		return true
	case <-wp.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// worker runs a worker goroutine
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for {
		select {
		case task := <-wp.taskQueue:
			if task == nil {
				continue
			}
			if err := task.Execute(wp.ctx); err != nil {
				wp.logger.Warn("task failed", "error", err)
			}
		case <-wp.ctx.Done():
			return
		}
	}
}
