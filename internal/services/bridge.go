package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"crawler-api/internal/models"
	"crawler-api/internal/notify"
	"crawler-api/pkg/workqueue"
)

// jobUpdate is the wire payload for job:update notifications.
type jobUpdate struct {
	JobID    string           `json:"jobId"`
	Status   models.JobStatus `json:"status,omitempty"`
	Progress *models.Progress `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
	Attempts int              `json:"attempts"`
}

// Bridge translates queue lifecycle events into job record updates and
// per-user notifications. It is the only writer of job status and progress,
// so API reads and websocket frames always agree.
type Bridge struct {
	jobs JobStore
	hub  Notifier
}

func NewBridge(jobs JobStore, hub Notifier) *Bridge {
	return &Bridge{jobs: jobs, hub: hub}
}

// Run consumes events until the channel closes or ctx is cancelled. Events
// for unknown jobs (deleted mid-flight) are logged and dropped.
func (b *Bridge) Run(ctx context.Context, events <-chan workqueue.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, ev workqueue.Event) {
	switch ev.Type {
	case workqueue.EventProgress:
		b.onProgress(ctx, ev)
	case workqueue.EventCompleted:
		b.onCompleted(ctx, ev)
	case workqueue.EventFailed:
		b.onFailed(ctx, ev)
	default:
		log.Warn().Str("type", string(ev.Type)).Str("jobId", ev.JobID).Msg("unknown queue event")
	}
}

func (b *Bridge) onProgress(ctx context.Context, ev workqueue.Event) {
	p := models.Progress{Stage: ev.Stage, Percentage: ev.Percentage}
	if err := b.jobs.UpdateProgress(ctx, ev.JobID, p, ev.Attempts); err != nil {
		log.Warn().Err(err).Str("jobId", ev.JobID).Msg("progress for unknown job dropped")
		return
	}
	job, err := b.jobs.FindByID(ctx, ev.JobID)
	if err != nil {
		log.Warn().Err(err).Str("jobId", ev.JobID).Msg("job vanished after progress update")
		return
	}
	b.hub.Publish(job.Owner, notify.EventJobUpdate, jobUpdate{
		JobID:    ev.JobID,
		Status:   job.Status,
		Progress: &p,
		Attempts: ev.Attempts,
	})
}

func (b *Bridge) onCompleted(ctx context.Context, ev workqueue.Event) {
	job, err := b.jobs.MarkCompleted(ctx, ev.JobID)
	if err != nil {
		log.Warn().Err(err).Str("jobId", ev.JobID).Msg("completion for unknown job dropped")
		return
	}
	b.hub.Publish(job.Owner, notify.EventJobUpdate, jobUpdate{
		JobID:    ev.JobID,
		Status:   job.Status,
		Progress: &job.Progress,
		Attempts: job.Attempts,
	})
}

func (b *Bridge) onFailed(ctx context.Context, ev workqueue.Event) {
	job, err := b.jobs.MarkFailed(ctx, ev.JobID, ev.Reason, ev.Attempts)
	if err != nil {
		log.Warn().Err(err).Str("jobId", ev.JobID).Msg("failure for unknown job dropped")
		return
	}
	b.hub.Publish(job.Owner, notify.EventJobUpdate, jobUpdate{
		JobID:    ev.JobID,
		Status:   job.Status,
		Error:    job.Error,
		Attempts: ev.Attempts,
	})
}
