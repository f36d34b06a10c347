package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Task is a long-running background loop owned by the Runner. Run blocks
// until its context ends or the task fails.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a bare function into a Task.
type TaskFunc func(ctx context.Context) error

// Run implements Task.
func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// Runner hosts the worker's background tasks: the order poller, the stuck
// sweeper, and the proxy refresher. One failing task brings the worker down
// so the process supervisor can restart it clean.
type Runner struct {
	logger *logrus.Logger
	tasks  map[string]Task
	mu     sync.RWMutex
}

// NewRunner creates a new Runner
func NewRunner(logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		logger: logger,
		tasks:  make(map[string]Task),
	}
}

// AddTask registers a named task
func (r *Runner) AddTask(name string, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	r.tasks[name] = task
	return nil
}

// Run starts all registered tasks and blocks until the context is canceled
// or any task returns a non-cancellation error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting worker with all registered tasks")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(r.tasks))

	r.mu.RLock()
	for name, task := range r.tasks {
		wg.Add(1)
		go func(name string, task Task) {
			defer wg.Done()
			r.logger.WithField("task", name).Info("Starting task")

			if err := task.Run(ctx); err != nil && err != context.Canceled {
				r.logger.WithError(err).WithField("task", name).Error("Task failed")
				errChan <- fmt.Errorf("task %s failed: %w", name, err)
			}
		}(name, task)
	}
	r.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("Context canceled, initiating shutdown")
		<-done
		return ctx.Err()
	case err := <-errChan:
		r.logger.WithError(err).Error("Task error occurred, shutting down worker")
		cancel()
		<-done
		return err
	case <-done:
		r.logger.Info("All tasks completed normally")
		return nil
	}
}
