// Package ingest runs pipeline work off the request path on a bounded queue.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/attribution/internal/logging"
	"example.com/attribution/internal/metrics"
)

// Job is one unit of background work. Name labels logs and metrics and should
// have low cardinality.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Ingestor struct {
	queue        chan Job
	workers      int
	drainTimeout time.Duration
	g            *errgroup.Group

	mu      sync.RWMutex
	stopped bool
}

func NewIngestor(queueMaxSize, workers int, drainTimeout time.Duration) *Ingestor {
	if workers <= 0 {
		workers = 1
	}
	return &Ingestor{
		queue:        make(chan Job, queueMaxSize),
		workers:      workers,
		drainTimeout: drainTimeout,
		g:            &errgroup.Group{},
	}
}

// Start launches the workers. When ctx is done each worker runs what is still
// queued, bounded by the drain timeout, and exits.
func (ig *Ingestor) Start(ctx context.Context) {
	for i := 0; i < ig.workers; i++ {
		ig.g.Go(func() error {
			ig.work(ctx)
			return nil
		})
	}
}

// Wait blocks until every worker has exited.
func (ig *Ingestor) Wait() {
	_ = ig.g.Wait()
}

// Enqueue never blocks. It reports false when the queue is full or the
// ingestor has begun draining.
func (ig *Ingestor) Enqueue(job Job) bool {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	if ig.stopped {
		metrics.IngestJobs.WithLabelValues(job.Name, "rejected").Inc()
		return false
	}
	select {
	case ig.queue <- job:
		metrics.IngestQueueDepth.Set(float64(len(ig.queue)))
		return true
	default:
		metrics.IngestJobs.WithLabelValues(job.Name, "rejected").Inc()
		return false
	}
}

func (ig *Ingestor) work(ctx context.Context) {
	// Jobs already dequeued finish even if shutdown starts mid-run.
	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			ig.stop()
			ig.drain()
			return
		case job := <-ig.queue:
			metrics.IngestQueueDepth.Set(float64(len(ig.queue)))
			ig.run(jobCtx, job)
		}
	}
}

// stop closes the queue to new jobs. Once it returns no Enqueue is in flight,
// so a following drain sees every accepted job.
func (ig *Ingestor) stop() {
	ig.mu.Lock()
	ig.stopped = true
	ig.mu.Unlock()
}

func (ig *Ingestor) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), ig.drainTimeout)
	defer cancel()
	for {
		select {
		case job := <-ig.queue:
			ig.run(ctx, job)
		default:
			metrics.IngestQueueDepth.Set(0)
			return
		}
	}
}

func (ig *Ingestor) run(ctx context.Context, job Job) {
	start := time.Now()
	err := safeRun(ctx, job)
	if err != nil {
		metrics.IngestJobs.WithLabelValues(job.Name, "failed").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("job", job.Name).Msg("[ingest] job FAILED")
		return
	}
	metrics.IngestJobs.WithLabelValues(job.Name, "ok").Inc()
	logging.Ctx(ctx).Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("[ingest] job OK")
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}
