package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	apperrors "crawler-api/pkg/errors"

	"crawler-api/internal/models"
	"crawler-api/pkg/browser"
	"crawler-api/pkg/pdfrender"
	"crawler-api/pkg/workqueue"
)

type progressCall struct {
	jobID    string
	stage    string
	pct      int
	attempts int
}

type fakeJobStore struct {
	mu            sync.Mutex
	jobs          map[string]*models.Job
	progressCalls []progressCall
	completedIDs  []string
	failedIDs     []string
	resetIDs      []string
	deletedIDs    []string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*models.Job{}}
}

func (s *fakeJobStore) put(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID.Hex()] = job
}

func (s *fakeJobStore) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = primitive.NewObjectID()
	job.Status = models.JobStatusQueued
	job.Progress = models.Progress{Stage: models.StageStarting, Percentage: 0}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID.Hex()] = job
	return nil
}

func (s *fakeJobStore) FindByID(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) FindForOwner(ctx context.Context, id, owner string) (*models.Job, error) {
	job, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Owner != owner {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (s *fakeJobStore) ListByOwner(ctx context.Context, owner string) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Job{}
	for _, job := range s.jobs {
		if job.Owner == owner {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *fakeJobStore) UpdateProgress(ctx context.Context, id string, p models.Progress, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	job.Status = models.JobStatusProcessing
	job.Progress = p
	job.Attempts = attempts
	s.progressCalls = append(s.progressCalls, progressCall{id, p.Stage, p.Percentage, attempts})
	return nil
}

func (s *fakeJobStore) MarkCompleted(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	job.Status = models.JobStatusCompleted
	job.Progress = models.Progress{Stage: models.StageCompleted, Percentage: 100}
	s.completedIDs = append(s.completedIDs, id)
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) MarkFailed(ctx context.Context, id, reason string, attempts int) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	job.Status = models.JobStatusFailed
	job.Error = reason
	job.Attempts = attempts
	s.failedIDs = append(s.failedIDs, id)
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) ResetForRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusFailed {
		return apperrors.ErrInvalidState
	}
	job.Status = models.JobStatusQueued
	job.Progress = models.Progress{Stage: models.StageRequeued, Percentage: 0}
	job.Attempts = 0
	job.Error = ""
	job.ManualRetries++
	s.resetIDs = append(s.resetIDs, id)
	return nil
}

func (s *fakeJobStore) AttachResult(ctx context.Context, id string, ref primitive.ObjectID, kind models.ResultKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	job.ResultRef = &ref
	job.ResultKind = kind
	return nil
}

func (s *fakeJobStore) Delete(ctx context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Owner != owner {
		return apperrors.ErrNotFound
	}
	delete(s.jobs, id)
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	saved   map[primitive.ObjectID]*models.Result
	deleted []primitive.ObjectID
	saveErr error
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{saved: map[primitive.ObjectID]*models.Result{}}
}

func (s *fakeResultStore) Save(ctx context.Context, result *models.Result) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return primitive.NilObjectID, s.saveErr
	}
	id := primitive.NewObjectID()
	result.ID = id
	s.saved[id] = result
	return id, nil
}

func (s *fakeResultStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.saved[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return result, nil
}

func (s *fakeResultStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type enqueueCall struct {
	jobID string
	url   string
	opts  workqueue.Options
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
	err   error
}

func (q *fakeEnqueuer) Enqueue(ctx context.Context, jobID, url string, opts workqueue.Options) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.calls = append(q.calls, enqueueCall{jobID, url, opts})
	return fmt.Sprintf("delivery-%d", len(q.calls)), nil
}

type publishCall struct {
	userID string
	event  string
	data   interface{}
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []publishCall
}

func (n *fakeNotifier) Publish(userID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, publishCall{userID, event, data})
}

type fakeSession struct {
	result   *browser.FetchResult
	fetchErr error
	closed   bool
}

func (s *fakeSession) Fetch(ctx context.Context, url string) (*browser.FetchResult, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.result, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func sessionFactory(s *fakeSession) SessionFactory {
	return func(ctx context.Context) (BrowserSession, error) { return s, nil }
}

type fakeRenderer struct {
	pages       []pdfrender.PageImage
	downloaded  []string
	renderErr   error
	downloadErr error
}

func (r *fakeRenderer) Download(ctx context.Context, url, destPath string) error {
	if r.downloadErr != nil {
		return r.downloadErr
	}
	r.downloaded = append(r.downloaded, destPath)
	return nil
}

func (r *fakeRenderer) RenderPages(ctx context.Context, pdfPath, dir string) ([]pdfrender.PageImage, error) {
	if r.renderErr != nil {
		return nil, r.renderErr
	}
	return r.pages, nil
}

type fakeOCR struct {
	texts  map[string]string
	delays map[string]time.Duration
	err    error
}

func (o *fakeOCR) RecognizeFile(ctx context.Context, path string) (string, error) {
	if d, ok := o.delays[path]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if o.err != nil {
		return "", o.err
	}
	text, ok := o.texts[path]
	if !ok {
		return "", fmt.Errorf("no text for %s", path)
	}
	return text, nil
}

type fakeEmbedder struct {
	mu  sync.Mutex
	err error
}

// EmbedDocuments returns one-element vectors encoding the input index, so
// alignment bugs are visible in assertions.
func (e *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{float64(i), float64(len(texts[i]))}
	}
	return out, nil
}

type progressRecorder struct {
	mu    sync.Mutex
	calls []progressCall
}

func (r *progressRecorder) report(stage string, pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, progressCall{stage: stage, pct: pct})
}

func (r *progressRecorder) snapshot() []progressCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progressCall, len(r.calls))
	copy(out, r.calls)
	return out
}
