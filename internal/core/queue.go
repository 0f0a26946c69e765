package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/metrics"
)

const enqueuePollInterval = 50 * time.Millisecond

// ErrQueueClosed is returned when enqueueing after Stop.
var ErrQueueClosed = errors.New("capture queue closed")

// QueueOptions sizes the capture worker pool.
type QueueOptions struct {
	// Workers is the number of concurrent captures. Defaults to 1.
	Workers int
	// Size is the channel buffer. Defaults to 10 per worker.
	Size int
}

// CaptureQueue feeds capture jobs to a fixed pool of workers. A given id is
// queued at most once until its capture finishes.
type CaptureQueue struct {
	deps    CaptureDeps
	workers int
	jobs    chan CaptureJob
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCaptureQueue builds an idle queue; call Start to launch the workers.
func NewCaptureQueue(deps CaptureDeps, opts QueueOptions) *CaptureQueue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = opts.Workers * 10
	}
	return &CaptureQueue{
		deps:    deps,
		workers: opts.Workers,
		jobs:    make(chan CaptureJob, opts.Size),
		logger:  deps.logger(),
		pending: make(map[string]struct{}),
	}
}

// Start launches the workers. Captures run under ctx; cancelling it aborts
// in-flight captures.
func (q *CaptureQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
}

func (q *CaptureQueue) work(ctx context.Context, workerID int) {
	defer q.wg.Done()
	logger := q.logger.With(zap.Int("worker", workerID))
	logger.Debug("capture worker started")

	for job := range q.jobs {
		metrics.SetQueueDepth(len(q.jobs))
		if ctx.Err() != nil {
			q.done(job.ID)
			continue
		}

		metrics.IncActiveWorkers()
		err := CaptureAndPersist(ctx, q.deps, job)
		metrics.DecActiveWorkers()
		q.done(job.ID)

		if err != nil {
			logger.Warn("capture failed", zap.String("id", job.ID), zap.String("link", job.Link), zap.Error(err))
		}
	}
	logger.Debug("capture worker stopped")
}

func (q *CaptureQueue) done(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

// Enqueue adds job without blocking. It reports false when the id is already
// queued, the queue is full or closed. A job dropped on a full queue keeps
// its pending state and is picked up by the next startup scan.
func (q *CaptureQueue) Enqueue(job CaptureJob) bool {
	if job.ID == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, ok := q.pending[job.ID]; ok {
		q.logger.Debug("capture already queued", zap.String("id", job.ID))
		return false
	}

	select {
	case q.jobs <- job:
		q.pending[job.ID] = struct{}{}
		metrics.SetQueueDepth(len(q.jobs))
		return true
	default:
		q.logger.Warn("capture queue full, bookmark will be picked up later", zap.String("id", job.ID))
		return false
	}
}

// EnqueueWait adds job, blocking while the queue is full. Ids that are
// already queued are skipped without error.
func (q *CaptureQueue) EnqueueWait(ctx context.Context, job CaptureJob) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if _, ok := q.pending[job.ID]; ok {
			q.mu.Unlock()
			return nil
		}
		select {
		case q.jobs <- job:
			q.pending[job.ID] = struct{}{}
			metrics.SetQueueDepth(len(q.jobs))
			q.mu.Unlock()
			return nil
		default:
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(enqueuePollInterval):
		}
	}
}

// Len is the number of jobs waiting for a worker.
func (q *CaptureQueue) Len() int {
	return len(q.jobs)
}

// Stop refuses new jobs, lets the workers drain what is queued and waits for
// them. If ctx ends first, in-flight captures are cancelled.
func (q *CaptureQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	cancel := q.cancel
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return fmt.Errorf("capture queue stop: %w", ctx.Err())
	}
}

// WireCaptureQueue queues a capture for every inserted document and for every
// document whose capture state is cleared.
func WireCaptureQueue(store db.Store, q *CaptureQueue) {
	store.RegisterEventListener(db.OnDocumentInsertedEvent, func(event db.Event) error {
		ev, ok := event.(db.DocumentInsertedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}
		q.logger.Debug("bookmark inserted, queuing capture", zap.String("id", ev.Document.ID()))
		q.Enqueue(JobFor(ev.Document))
		return nil
	})

	store.RegisterEventListener(db.OnCaptureClearedEvent, func(event db.Event) error {
		ev, ok := event.(db.CaptureClearedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}
		doc, err := store.Get(context.Background(), ev.ID)
		if err != nil {
			return fmt.Errorf("load bookmark %s for re-capture: %w", ev.ID, err)
		}
		q.logger.Debug("capture cleared, queuing re-capture", zap.String("id", ev.ID))
		q.Enqueue(JobFor(doc))
		return nil
	})
}

// QueuePending queues every document that has never been captured. It blocks
// while the queue is full and returns the number of jobs queued.
func QueuePending(ctx context.Context, store db.Store, q *CaptureQueue) (int, error) {
	docs, err := store.ListPendingCapture(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending captures: %w", err)
	}
	queued := 0
	for _, doc := range docs {
		if err := q.EnqueueWait(ctx, JobFor(doc)); err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		q.logger.Info("queued existing bookmarks for capture", zap.Int("count", queued))
	}
	return queued, nil
}
