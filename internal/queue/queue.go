package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs jobs on a fixed set of workers fed by a bounded channel.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	name       string
	log        zerolog.Logger
	wg         sync.WaitGroup
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	return NewNamed("requests", queueSize, maxWorkers, zerolog.Nop())
}

// NewNamed starts a pool whose worker lifecycle is logged under name.
func NewNamed(name string, queueSize int, maxWorkers int, log zerolog.Logger) *RequestQueueManager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		name:       name,
		log:        log.With().Str("queue", name).Logger(),
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			rqm.log.Debug().Int("worker", workerID).Msg("worker started")
			for job := range rqm.JobQueue {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			rqm.log.Debug().Int("worker", workerID).Msg("worker stopped")
		}(i)
	}
}

func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.JobQueue <- job
}

// TryEnqueue blocks until the job is queued or ctx is done.
func (rqm *RequestQueueManager) TryEnqueue(ctx context.Context, job Job) error {
	select {
	case rqm.JobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn and waits for its result.
func (rqm *RequestQueueManager) Submit(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	if err := rqm.TryEnqueue(ctx, Job{Fn: fn, Errc: errc}); err != nil {
		return err
	}
	return <-errc
}

func (rqm *RequestQueueManager) Depth() int {
	return len(rqm.JobQueue)
}

func (rqm *RequestQueueManager) Name() string {
	return rqm.name
}

func (rqm *RequestQueueManager) Shutdown() {
	close(rqm.JobQueue)
	rqm.wg.Wait()
}
