package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crawler-api/pkg/workqueue"
)

// Worker runs a pool of goroutines that each pull deliveries off the queue
// and push them through the executor.
type Worker struct {
	queue      *workqueue.Queue
	executor   *Executor
	count      int
	jobTimeout time.Duration
}

func NewWorker(queue *workqueue.Queue, executor *Executor, count int, jobTimeout time.Duration) *Worker {
	if count < 1 {
		count = 1
	}
	return &Worker{queue: queue, executor: executor, count: count, jobTimeout: jobTimeout}
}

// Run blocks until ctx is cancelled and every pool goroutine has drained.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		lease, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Int("worker", id).Msg("dequeue failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		w.process(ctx, id, lease)
	}
}

func (w *Worker) process(ctx context.Context, id int, lease *workqueue.Lease) {
	log.Info().Int("worker", id).Str("jobId", lease.JobID).Str("url", lease.URL).
		Int("attempt", lease.AttemptsMade).Msg("processing job")

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	report := func(stage string, percentage int) {
		w.queue.ReportProgress(jctx, lease, stage, percentage)
	}

	err := w.executor.Process(jctx, lease, report)

	// Settle with a context that survives shutdown so the delivery is not
	// left to the lease reaper.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer scancel()

	if err != nil {
		log.Error().Err(err).Int("worker", id).Str("jobId", lease.JobID).Msg("job failed")
		if nerr := w.queue.Nack(sctx, lease, err.Error()); nerr != nil {
			log.Error().Err(nerr).Str("jobId", lease.JobID).Msg("nack failed")
		}
		return
	}
	if aerr := w.queue.Ack(sctx, lease); aerr != nil {
		log.Error().Err(aerr).Str("jobId", lease.JobID).Msg("ack failed")
	}
}
