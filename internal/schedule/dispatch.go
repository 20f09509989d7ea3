package schedule

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"reedy/reader/internal/update"
)

// WorkerPool executes feed-update jobs on a fixed set of workers. Jobs
// for different feeds run concurrently; a per-feed lock serializes jobs
// that race on the same feed id (a scheduler poll and a push-delivered
// notification, for instance).
type WorkerPool struct {
	updater *update.Updater
	jobs    chan update.Job
	workers int
	wg      sync.WaitGroup
	locks   *feedLocks

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool creates a pool with the given worker count.
func NewWorkerPool(updater *update.Updater, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool{
		updater: updater,
		jobs:    make(chan update.Job, workers*4),
		workers: workers,
		locks:   newFeedLocks(),
	}
}

// Start launches the workers. They exit when the context is cancelled
// and the queue has drained, or immediately on cancellation while idle.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	log.Info().Int("workers", p.workers).Msg("Worker pool started")
}

// Enqueue submits a job, dropping it with a warning when the queue is
// saturated or the pool has been stopped. The next tick re-evaluates
// dropped feeds anyway.
func (p *WorkerPool) Enqueue(job update.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Warn().Int64("feed_id", job.FeedID).Msg("Worker pool stopped, dropping update job")
		return
	}
	select {
	case p.jobs <- job:
	default:
		log.Warn().Int64("feed_id", job.FeedID).Msg("Job queue full, dropping update job")
	}
}

// Stop closes the queue and waits for the workers to finish. Enqueue
// calls arriving afterwards are dropped.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
	log.Info().Msg("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runLocked(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) runLocked(ctx context.Context, job update.Job) {
	unlock := p.locks.lock(job.FeedID)
	defer unlock()
	p.updater.Run(ctx, job)
}

// feedLocks hands out one mutex per feed id, dropping entries once no
// job holds or waits on them.
type feedLocks struct {
	mu    sync.Mutex
	locks map[int64]*feedLock
}

type feedLock struct {
	sync.Mutex
	refs int
}

func newFeedLocks() *feedLocks {
	return &feedLocks{locks: make(map[int64]*feedLock)}
}

func (f *feedLocks) lock(feedID int64) (unlock func()) {
	f.mu.Lock()
	l, ok := f.locks[feedID]
	if !ok {
		l = &feedLock{}
		f.locks[feedID] = l
	}
	l.refs++
	f.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, feedID)
		}
		f.mu.Unlock()
	}
}
