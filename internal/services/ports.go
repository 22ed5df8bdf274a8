package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"crawler-api/internal/models"
	"crawler-api/pkg/browser"
	"crawler-api/pkg/pdfrender"
	"crawler-api/pkg/workqueue"
)

// JobStore is the narrow persistence contract the pipeline needs from the
// job record store.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	FindByID(ctx context.Context, id string) (*models.Job, error)
	FindForOwner(ctx context.Context, id, owner string) (*models.Job, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Job, error)
	UpdateProgress(ctx context.Context, id string, p models.Progress, attempts int) error
	MarkCompleted(ctx context.Context, id string) (*models.Job, error)
	MarkFailed(ctx context.Context, id, reason string, attempts int) (*models.Job, error)
	ResetForRetry(ctx context.Context, id string) error
	AttachResult(ctx context.Context, id string, ref primitive.ObjectID, kind models.ResultKind) error
	Delete(ctx context.Context, id, owner string) error
}

// ResultStore persists whole results only.
type ResultStore interface {
	Save(ctx context.Context, result *models.Result) (primitive.ObjectID, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Result, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Enqueuer is the queue surface the API process uses.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID, url string, opts workqueue.Options) (string, error)
}

// Notifier publishes a real-time event to one user's connections.
type Notifier interface {
	Publish(userID, event string, data interface{})
}

// SessionFactory hands out an exclusively-owned browser session per job.
type SessionFactory func(ctx context.Context) (BrowserSession, error)

type BrowserSession interface {
	Fetch(ctx context.Context, url string) (*browser.FetchResult, error)
	Close() error
}

// PDFRenderer downloads a PDF and renders its pages to images.
type PDFRenderer interface {
	Download(ctx context.Context, url, destPath string) error
	RenderPages(ctx context.Context, pdfPath, dir string) ([]pdfrender.PageImage, error)
}

// OCRClient recognizes text in a rendered page image.
type OCRClient interface {
	RecognizeFile(ctx context.Context, path string) (string, error)
}

// Embedder embeds texts; vectors align index-for-index with the input.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex mirrors persisted chunks into a vector store.
type VectorIndex interface {
	IndexJobChunks(ctx context.Context, jobID, source string, chunks []models.Chunk) error
}
