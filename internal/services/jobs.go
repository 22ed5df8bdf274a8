package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "crawler-api/pkg/errors"

	"crawler-api/internal/models"
	"crawler-api/internal/notify"
	"crawler-api/pkg/workqueue"
)

// JobService is the API-side surface for submitting, inspecting and
// managing crawl jobs.
type JobService struct {
	jobs    JobStore
	results ResultStore
	queue   Enqueuer
	hub     Notifier

	maxAttempts int
	backoff     time.Duration
}

func NewJobService(jobs JobStore, results ResultStore, queue Enqueuer, hub Notifier, maxAttempts int, backoff time.Duration) *JobService {
	return &JobService{
		jobs:        jobs,
		results:     results,
		queue:       queue,
		hub:         hub,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

func (s *JobService) queueOptions() workqueue.Options {
	return workqueue.Options{MaxAttempts: s.maxAttempts, Backoff: s.backoff}
}

// SubmitJob records a new job and enqueues it for processing.
func (s *JobService) SubmitJob(ctx context.Context, url, owner string) (*models.Job, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperrors.NewError("INVALID_URL", "url is required", http.StatusBadRequest)
	}

	job := &models.Job{URL: url, Owner: owner}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, apperrors.WrapError(err, "JOB_CREATE_FAILED", "failed to create job", http.StatusInternalServerError)
	}

	if _, err := s.queue.Enqueue(ctx, job.ID.Hex(), url, s.queueOptions()); err != nil {
		// The record exists but processing will never start. Surface that
		// immediately rather than leaving a job stuck in queued.
		if _, mErr := s.jobs.MarkFailed(ctx, job.ID.Hex(), "enqueue failed: "+err.Error(), 0); mErr != nil {
			log.Error().Err(mErr).Str("jobId", job.ID.Hex()).Msg("mark unenqueued job failed")
		}
		return nil, apperrors.WrapError(err, "JOB_ENQUEUE_FAILED", "failed to enqueue job", http.StatusInternalServerError)
	}
	return job, nil
}

// ListJobs returns all jobs owned by owner, newest first.
func (s *JobService) ListJobs(ctx context.Context, owner string) ([]models.Job, error) {
	return s.jobs.ListByOwner(ctx, owner)
}

// GetJob returns a job and, when one is linked, its result document.
func (s *JobService) GetJob(ctx context.Context, id, owner string) (*models.Job, *models.Result, error) {
	job, err := s.jobs.FindForOwner(ctx, id, owner)
	if err != nil {
		return nil, nil, err
	}
	if job.ResultRef == nil {
		return job, nil, nil
	}
	result, err := s.results.FindByID(ctx, *job.ResultRef)
	if err != nil {
		if err == apperrors.ErrNotFound {
			return job, nil, nil
		}
		return nil, nil, err
	}
	return job, result, nil
}

// RetryJob re-enqueues a terminally failed job with a fresh attempt budget.
// Jobs in any other state are rejected.
func (s *JobService) RetryJob(ctx context.Context, id, owner string) (*models.Job, error) {
	job, err := s.jobs.FindForOwner(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed {
		return nil, apperrors.ErrInvalidState
	}

	if err := s.jobs.ResetForRetry(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.queue.Enqueue(ctx, id, job.URL, s.queueOptions()); err != nil {
		return nil, apperrors.WrapError(err, "JOB_ENQUEUE_FAILED", "failed to re-enqueue job", http.StatusInternalServerError)
	}
	return s.jobs.FindForOwner(ctx, id, owner)
}

// DeleteJob removes a job and its linked result, then notifies the owner's
// connections. Deleting a job that is mid-flight is allowed; the bridge
// drops any late events for it.
func (s *JobService) DeleteJob(ctx context.Context, id, owner string) error {
	job, err := s.jobs.FindForOwner(ctx, id, owner)
	if err != nil {
		return err
	}
	if err := s.jobs.Delete(ctx, id, owner); err != nil {
		return err
	}
	if job.ResultRef != nil {
		if err := s.results.Delete(ctx, *job.ResultRef); err != nil {
			log.Warn().Err(err).Str("jobId", id).Msg("orphaned result document")
		}
	}
	s.hub.Publish(owner, notify.EventJobDelete, map[string]string{"jobId": id})
	return nil
}
