// Package memory provides a bounded in-memory job queue for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/metrics"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Options controls redelivery of nacked jobs.
type Options struct {
	// MaxAttempts bounds deliveries per job; a job nacked on its last attempt
	// is dropped.
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Logger         *zap.Logger
}

// Queue is a bounded in-memory queue with context-aware operations and
// at-least-once redelivery.
type Queue struct {
	ch     chan linkpreview.ThumbnailJob
	done   chan struct{}
	opts   Options
	logger *zap.Logger

	closeMu sync.Mutex
	closed  bool
	retries sync.WaitGroup
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int, opts Options) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 100 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		ch:     make(chan linkpreview.ThumbnailJob, capacity),
		done:   make(chan struct{}),
		opts:   opts,
		logger: logger.Named("queue"),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, job linkpreview.ThumbnailJob) error {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.Submitted == 0 {
		job.Submitted = time.Now().Unix()
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (linkpreview.Delivery, error) {
	select {
	case <-ctx.Done():
		return linkpreview.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return linkpreview.Delivery{}, ErrClosed
	case job := <-q.ch:
		return q.delivery(job), nil
	}
}

func (q *Queue) delivery(job linkpreview.ThumbnailJob) linkpreview.Delivery {
	var once sync.Once
	return linkpreview.Delivery{
		Job: job,
		Ack: func() { once.Do(func() {}) },
		Nack: func() {
			once.Do(func() { q.retry(job) })
		},
	}
}

func (q *Queue) retry(job linkpreview.ThumbnailJob) {
	if job.Attempt >= q.opts.MaxAttempts {
		q.logger.Warn("dropping job after max attempts",
			zap.String("link_id", job.LinkID),
			zap.Int("attempts", job.Attempt),
		)
		return
	}
	delay := Backoff(job.Attempt, q.opts.BackoffInitial, q.opts.BackoffMax)
	job.Attempt++

	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	metrics.ObserveThumbnailJob("retried")
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.done:
			return
		case <-timer.C:
		}
		select {
		case <-q.done:
		case q.ch <- job:
			q.logger.Debug("job requeued",
				zap.String("link_id", job.LinkID),
				zap.Int("attempt", job.Attempt),
			)
		}
	}()
}

// Backoff returns the redelivery delay after the given failed attempt:
// initial doubled per prior attempt, capped at maxDelay.
func Backoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Len reports the number of jobs waiting for a worker.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops deliveries and pending retries. It is safe to call twice.
func (q *Queue) Close() {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.closeMu.Unlock()
	q.retries.Wait()
}
