package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskQueue runs best-effort work after a transaction has committed.
// Task failures are retried up to the task's attempt budget, then logged; they
// never reach the caller that submitted them.
type TaskQueue struct {
	tasks        chan task
	timeout      time.Duration
	retryBackoff time.Duration
	logger       *logrus.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	name     string
	attempts int
	fn       func(ctx context.Context) error
}

// NewTaskQueue starts workers goroutines draining a buffer of size tasks
func NewTaskQueue(workers, size int, logger *logrus.Logger) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	q := &TaskQueue{
		tasks:        make(chan task, size),
		timeout:      30 * time.Second,
		retryBackoff: time.Second,
		logger:       logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *TaskQueue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *TaskQueue) run(t task) {
	start := time.Now()
	var (
		err     error
		attempt int
	)
	for attempt = 1; ; attempt++ {
		err = q.attempt(t)
		if err == nil || attempt >= t.attempts {
			break
		}
		q.logger.WithError(err).WithFields(logrus.Fields{
			"task":    t.name,
			"attempt": attempt,
		}).Warn("Post-commit task failed, retrying")
		time.Sleep(q.backoff(attempt))
	}

	entry := q.logger.WithFields(logrus.Fields{
		"task":     t.name,
		"attempts": attempt,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("Post-commit task failed")
		return
	}
	entry.Debug("Post-commit task finished")
}

func (q *TaskQueue) attempt(t task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.fn(ctx)
}

// backoff doubles the base delay after each failed attempt
func (q *TaskQueue) backoff(attempt int) time.Duration {
	return q.retryBackoff << uint(attempt-1)
}

// Retry runs fn inline up to attempts times, backing off between failures.
// It returns the last error, or ctx's error if ctx ends while waiting.
func (q *TaskQueue) Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil || attempt >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.backoff(attempt)):
		}
	}
}

// Submit enqueues fn without blocking, to run once. When the buffer is full
// the task runs on its own goroutine. It returns false after Close.
func (q *TaskQueue) Submit(name string, fn func(ctx context.Context) error) bool {
	return q.SubmitRetry(name, 1, fn)
}

// SubmitRetry is Submit with up to attempts runs of fn until one succeeds
func (q *TaskQueue) SubmitRetry(name string, attempts int, fn func(ctx context.Context) error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.WithField("task", name).Warn("Task queue closed, dropping task")
		return false
	}
	if attempts < 1 {
		attempts = 1
	}

	t := task{name: name, attempts: attempts, fn: fn}
	select {
	case q.tasks <- t:
	default:
		q.logger.WithField("task", name).Warn("Task queue full, running task on a dedicated goroutine")
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(t)
		}()
	}
	return true
}

// Close stops accepting tasks and waits for queued ones to finish
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}
