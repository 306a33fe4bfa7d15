// Package dispatcher manages worker fan-out over the thumbnail job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers and is the single
// entry point for scheduling thumbnail jobs.
type Dispatcher struct {
	queue   linkpreview.Queue
	workers []*worker.Worker
	now     func() time.Time
}

// New creates a Dispatcher.
func New(queue linkpreview.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		now:     time.Now,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue schedules a first attempt of the job.
func (d *Dispatcher) Enqueue(ctx context.Context, job linkpreview.ThumbnailJob) error {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	if job.Submitted == 0 {
		job.Submitted = d.now().Unix()
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
