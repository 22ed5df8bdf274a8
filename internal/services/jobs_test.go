package services

import (
	"context"
	"testing"
	"time"

	apperrors "crawler-api/pkg/errors"

	"crawler-api/internal/models"
	"crawler-api/internal/notify"
)

func newTestJobService(jobs *fakeJobStore, results *fakeResultStore, queue *fakeEnqueuer, hub *fakeNotifier) *JobService {
	return NewJobService(jobs, results, queue, hub, 3, time.Second)
}

func TestSubmitJob(t *testing.T) {
	jobs := newFakeJobStore()
	queue := &fakeEnqueuer{}
	svc := newTestJobService(jobs, newFakeResultStore(), queue, &fakeNotifier{})

	job, err := svc.SubmitJob(context.Background(), "https://example.com", "user-1")
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("status: got %q, want queued", job.Status)
	}
	if job.Owner != "user-1" {
		t.Errorf("owner: got %q", job.Owner)
	}

	if len(queue.calls) != 1 {
		t.Fatalf("enqueues: got %d, want 1", len(queue.calls))
	}
	call := queue.calls[0]
	if call.jobID != job.ID.Hex() || call.url != "https://example.com" {
		t.Errorf("enqueue call: %+v", call)
	}
	if call.opts.MaxAttempts != 3 || call.opts.Backoff != time.Second {
		t.Errorf("queue options: %+v", call.opts)
	}
}

func TestSubmitJobRejectsEmptyURL(t *testing.T) {
	svc := newTestJobService(newFakeJobStore(), newFakeResultStore(), &fakeEnqueuer{}, &fakeNotifier{})

	if _, err := svc.SubmitJob(context.Background(), "   ", "user-1"); err == nil {
		t.Fatal("expected error for blank url")
	}
}

func TestRetryJobOnlyWhenFailed(t *testing.T) {
	jobs := newFakeJobStore()
	queue := &fakeEnqueuer{}
	svc := newTestJobService(jobs, newFakeResultStore(), queue, &fakeNotifier{})

	job := seedJob(t, jobs, "user-1")
	job.Status = models.JobStatusProcessing
	jobs.put(job)

	_, err := svc.RetryJob(context.Background(), job.ID.Hex(), "user-1")
	if err != apperrors.ErrInvalidState {
		t.Fatalf("retry of processing job: got %v, want ErrInvalidState", err)
	}
	if len(jobs.resetIDs) != 0 || len(queue.calls) != 0 {
		t.Error("retry of non-failed job mutated state")
	}
}

func TestRetryJobResetsAndEnqueues(t *testing.T) {
	jobs := newFakeJobStore()
	queue := &fakeEnqueuer{}
	svc := newTestJobService(jobs, newFakeResultStore(), queue, &fakeNotifier{})

	job := seedJob(t, jobs, "user-1")
	job.Status = models.JobStatusFailed
	job.Error = "fetch: timeout"
	job.Attempts = 3
	jobs.put(job)

	retried, err := svc.RetryJob(context.Background(), job.ID.Hex(), "user-1")
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if retried.Status != models.JobStatusQueued {
		t.Errorf("status: got %q, want queued", retried.Status)
	}
	if retried.Progress.Stage != models.StageRequeued || retried.Progress.Percentage != 0 {
		t.Errorf("progress: %+v", retried.Progress)
	}
	if retried.Attempts != 0 {
		t.Errorf("attempts: got %d, want 0", retried.Attempts)
	}
	if retried.Error != "" {
		t.Errorf("error not cleared: %q", retried.Error)
	}
	if retried.ManualRetries != 1 {
		t.Errorf("manualRetries: got %d, want 1", retried.ManualRetries)
	}
	if len(queue.calls) != 1 {
		t.Fatalf("enqueues: got %d, want 1", len(queue.calls))
	}
	if queue.calls[0].url != job.URL {
		t.Errorf("re-enqueued url: %q", queue.calls[0].url)
	}
}

func TestRetryJobForeignOwner(t *testing.T) {
	jobs := newFakeJobStore()
	svc := newTestJobService(jobs, newFakeResultStore(), &fakeEnqueuer{}, &fakeNotifier{})

	job := seedJob(t, jobs, "user-1")
	job.Status = models.JobStatusFailed
	jobs.put(job)

	if _, err := svc.RetryJob(context.Background(), job.ID.Hex(), "user-2"); err != apperrors.ErrNotFound {
		t.Fatalf("foreign retry: got %v, want ErrNotFound", err)
	}
}

func TestGetJobPopulatesResult(t *testing.T) {
	jobs := newFakeJobStore()
	results := newFakeResultStore()
	svc := newTestJobService(jobs, results, &fakeEnqueuer{}, &fakeNotifier{})

	job := seedJob(t, jobs, "user-1")
	ref, err := results.Save(context.Background(), &models.Result{
		Kind: models.ResultKindHTML,
		HTML: &models.HTMLResult{ExtractedText: "text"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := jobs.AttachResult(context.Background(), job.ID.Hex(), ref, models.ResultKindHTML); err != nil {
		t.Fatal(err)
	}

	got, result, err := svc.GetJob(context.Background(), job.ID.Hex(), "user-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("job id mismatch")
	}
	if result == nil || result.HTML == nil || result.HTML.ExtractedText != "text" {
		t.Errorf("result not populated: %+v", result)
	}
}

func TestGetJobWithoutResult(t *testing.T) {
	jobs := newFakeJobStore()
	svc := newTestJobService(jobs, newFakeResultStore(), &fakeEnqueuer{}, &fakeNotifier{})

	job := seedJob(t, jobs, "user-1")
	got, result, err := svc.GetJob(context.Background(), job.ID.Hex(), "user-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil || result != nil {
		t.Errorf("got=%v result=%v", got, result)
	}
}

func TestDeleteJobRemovesResultAndNotifies(t *testing.T) {
	jobs := newFakeJobStore()
	results := newFakeResultStore()
	hub := &fakeNotifier{}
	svc := newTestJobService(jobs, results, &fakeEnqueuer{}, hub)

	job := seedJob(t, jobs, "user-1")
	ref, err := results.Save(context.Background(), &models.Result{
		Kind: models.ResultKindHTML,
		HTML: &models.HTMLResult{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := jobs.AttachResult(context.Background(), job.ID.Hex(), ref, models.ResultKindHTML); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteJob(context.Background(), job.ID.Hex(), "user-1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	if _, err := jobs.FindByID(context.Background(), job.ID.Hex()); err != apperrors.ErrNotFound {
		t.Error("job still present after delete")
	}
	if len(results.deleted) != 1 || results.deleted[0] != ref {
		t.Errorf("result not deleted: %v", results.deleted)
	}
	if len(hub.calls) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(hub.calls))
	}
	if hub.calls[0].event != notify.EventJobDelete || hub.calls[0].userID != "user-1" {
		t.Errorf("delete notification: %+v", hub.calls[0])
	}
}

func TestDeleteJobNotFound(t *testing.T) {
	svc := newTestJobService(newFakeJobStore(), newFakeResultStore(), &fakeEnqueuer{}, &fakeNotifier{})

	err := svc.DeleteJob(context.Background(), "64f000000000000000000000", "user-1")
	if err != apperrors.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
