package services

import (
	"context"
	"testing"

	"crawler-api/internal/models"
	"crawler-api/internal/notify"
	"crawler-api/pkg/workqueue"
)

func seedJob(t *testing.T, jobs *fakeJobStore, owner string) *models.Job {
	t.Helper()
	job := &models.Job{URL: "https://example.com", Owner: owner}
	if err := jobs.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestBridgeProgressEvent(t *testing.T) {
	jobs := newFakeJobStore()
	hub := &fakeNotifier{}
	job := seedJob(t, jobs, "user-1")

	b := NewBridge(jobs, hub)
	b.dispatch(context.Background(), workqueue.Event{
		Type:       workqueue.EventProgress,
		JobID:      job.ID.Hex(),
		Stage:      models.StageChunking,
		Percentage: 60,
		Attempts:   1,
	})

	if len(jobs.progressCalls) != 1 {
		t.Fatalf("progress writes: got %d, want 1", len(jobs.progressCalls))
	}
	pc := jobs.progressCalls[0]
	if pc.stage != models.StageChunking || pc.pct != 60 || pc.attempts != 1 {
		t.Errorf("progress write: %+v", pc)
	}

	if len(hub.calls) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(hub.calls))
	}
	n := hub.calls[0]
	if n.userID != "user-1" || n.event != notify.EventJobUpdate {
		t.Errorf("notification routing: user=%q event=%q", n.userID, n.event)
	}
	payload, ok := n.data.(jobUpdate)
	if !ok {
		t.Fatalf("payload type: %T", n.data)
	}
	if payload.JobID != job.ID.Hex() || payload.Status != models.JobStatusProcessing {
		t.Errorf("payload: %+v", payload)
	}
	if payload.Progress == nil || payload.Progress.Percentage != 60 {
		t.Errorf("payload progress: %+v", payload.Progress)
	}
}

func TestBridgeCompletedEvent(t *testing.T) {
	jobs := newFakeJobStore()
	hub := &fakeNotifier{}
	job := seedJob(t, jobs, "user-1")

	b := NewBridge(jobs, hub)
	b.dispatch(context.Background(), workqueue.Event{
		Type:     workqueue.EventCompleted,
		JobID:    job.ID.Hex(),
		Attempts: 1,
	})

	if len(jobs.completedIDs) != 1 {
		t.Fatalf("completions: got %d, want 1", len(jobs.completedIDs))
	}
	stored, _ := jobs.FindByID(context.Background(), job.ID.Hex())
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("status: got %q", stored.Status)
	}
	if len(hub.calls) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(hub.calls))
	}
	payload := hub.calls[0].data.(jobUpdate)
	if payload.Status != models.JobStatusCompleted {
		t.Errorf("payload status: %q", payload.Status)
	}
	if payload.Progress == nil || payload.Progress.Percentage != 100 {
		t.Errorf("payload progress: %+v", payload.Progress)
	}
}

func TestBridgeFailedEvent(t *testing.T) {
	jobs := newFakeJobStore()
	hub := &fakeNotifier{}
	job := seedJob(t, jobs, "user-2")

	b := NewBridge(jobs, hub)
	b.dispatch(context.Background(), workqueue.Event{
		Type:     workqueue.EventFailed,
		JobID:    job.ID.Hex(),
		Attempts: 3,
		Reason:   "fetch https://example.com: timeout",
	})

	stored, _ := jobs.FindByID(context.Background(), job.ID.Hex())
	if stored.Status != models.JobStatusFailed {
		t.Errorf("status: got %q", stored.Status)
	}
	if stored.Error != "fetch https://example.com: timeout" {
		t.Errorf("error: got %q", stored.Error)
	}
	if stored.Attempts != 3 {
		t.Errorf("attempts: got %d", stored.Attempts)
	}
	if len(hub.calls) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(hub.calls))
	}
	payload := hub.calls[0].data.(jobUpdate)
	if payload.Error == "" || payload.Attempts != 3 {
		t.Errorf("payload: %+v", payload)
	}
}

func TestBridgeDropsEventsForUnknownJob(t *testing.T) {
	jobs := newFakeJobStore()
	hub := &fakeNotifier{}
	b := NewBridge(jobs, hub)

	for _, typ := range []workqueue.EventType{workqueue.EventProgress, workqueue.EventCompleted, workqueue.EventFailed} {
		b.dispatch(context.Background(), workqueue.Event{
			Type:  typ,
			JobID: "64f000000000000000000000",
			Stage: models.StageStarting,
		})
	}

	if len(hub.calls) != 0 {
		t.Errorf("notifications for unknown job: %d", len(hub.calls))
	}
}

func TestBridgeRunStopsOnChannelClose(t *testing.T) {
	jobs := newFakeJobStore()
	b := NewBridge(jobs, &fakeNotifier{})

	events := make(chan workqueue.Event)
	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), events)
		close(done)
	}()

	close(events)
	<-done
}
