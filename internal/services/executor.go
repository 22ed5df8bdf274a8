package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apperrors "crawler-api/pkg/errors"

	"crawler-api/internal/chunker"
	"crawler-api/internal/models"
	"crawler-api/pkg/browser"
	"crawler-api/pkg/workqueue"
)

// ProgressFunc reports a stage transition back to the queue.
type ProgressFunc func(stage string, percentage int)

// Executor runs a single crawl job end to end: fetch, classify, extract,
// chunk, embed, persist. It never writes job status or progress itself;
// those flow through queue events.
type Executor struct {
	sessions SessionFactory
	renderer PDFRenderer
	ocr      OCRClient
	embedder Embedder
	splitter *chunker.Splitter
	jobs     JobStore
	results  ResultStore
	index    VectorIndex // optional

	storagePath     string
	pageConcurrency int
}

func NewExecutor(
	sessions SessionFactory,
	renderer PDFRenderer,
	ocr OCRClient,
	embedder Embedder,
	splitter *chunker.Splitter,
	jobs JobStore,
	results ResultStore,
	index VectorIndex,
	storagePath string,
	pageConcurrency int,
) *Executor {
	if pageConcurrency < 1 {
		pageConcurrency = 1
	}
	return &Executor{
		sessions:        sessions,
		renderer:        renderer,
		ocr:             ocr,
		embedder:        embedder,
		splitter:        splitter,
		jobs:            jobs,
		results:         results,
		index:           index,
		storagePath:     storagePath,
		pageConcurrency: pageConcurrency,
	}
}

// Process executes one delivery. A returned error means the delivery must
// be nacked; nothing partial is persisted on failure.
func (e *Executor) Process(ctx context.Context, lease *workqueue.Lease, report ProgressFunc) error {
	report(models.StageStarting, 5)

	session, err := e.sessions(ctx)
	if err != nil {
		return fmt.Errorf("acquire browser session: %w", err)
	}
	defer session.Close()

	fetched, err := session.Fetch(ctx, lease.URL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", lease.URL, err)
	}

	if fetched.IsPDF() {
		return e.processPDF(ctx, lease, report)
	}
	return e.processHTML(ctx, lease, fetched, report)
}

func (e *Executor) processHTML(ctx context.Context, lease *workqueue.Lease, fetched *browser.FetchResult, report ProgressFunc) error {
	report(models.StageExtracting, 30)

	report(models.StageChunking, 60)
	texts := e.splitter.Split(fetched.Text)

	report(models.StageEmbedding, 80)
	chunks, err := e.embedChunks(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed html chunks: %w", err)
	}

	report(models.StagePersisting, 95)
	result := &models.Result{
		Kind: models.ResultKindHTML,
		HTML: &models.HTMLResult{
			HTMLContent:   fetched.HTML,
			ExtractedText: fetched.Text,
			Chunks:        chunks,
		},
	}
	if err := e.persist(ctx, lease.JobID, result, chunks); err != nil {
		return err
	}

	report(models.StageCompleted, 100)
	return nil
}

func (e *Executor) processPDF(ctx context.Context, lease *workqueue.Lease, report ProgressFunc) error {
	report(models.StagePDF, 20)

	jobDir := filepath.Join(e.storagePath, "jobs", lease.JobID)
	pdfPath := filepath.Join(jobDir, "source.pdf")
	if err := e.renderer.Download(ctx, lease.URL, pdfPath); err != nil {
		return fmt.Errorf("download pdf: %w", err)
	}

	images, err := e.renderer.RenderPages(ctx, pdfPath, jobDir)
	if err != nil {
		return fmt.Errorf("render pdf pages: %w", err)
	}
	if len(images) == 0 {
		return fmt.Errorf("render pdf pages: no pages produced for %s", lease.URL)
	}

	total := len(images)
	pages := make([]models.PDFPage, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.pageConcurrency)
	for i, img := range images {
		g.Go(func() error {
			text, err := e.ocr.RecognizeFile(gctx, img.ImagePath)
			if err != nil {
				return fmt.Errorf("ocr page %d: %w", img.PageNumber, err)
			}
			chunks, err := e.embedChunks(gctx, e.splitter.Split(text))
			if err != nil {
				return fmt.Errorf("embed page %d: %w", img.PageNumber, err)
			}
			pages[i] = models.PDFPage{
				PageNumber: img.PageNumber,
				ImagePath:  img.ImagePath,
				OCRText:    text,
				Chunks:     chunks,
			}
			n := done.Add(1)
			report(models.StagePDF, 20+int(60*n/int64(total)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(pages, func(a, b int) bool { return pages[a].PageNumber < pages[b].PageNumber })

	report(models.StagePersisting, 95)
	result := &models.Result{
		Kind: models.ResultKindPDF,
		PDF:  &models.PDFResult{Pages: pages},
	}
	var all []models.Chunk
	for _, p := range pages {
		all = append(all, p.Chunks...)
	}
	if err := e.persist(ctx, lease.JobID, result, all); err != nil {
		return err
	}

	report(models.StageCompleted, 100)
	return nil
}

func (e *Executor) embedChunks(ctx context.Context, texts []string) ([]models.Chunk, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors))
	}
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Text: t, Embedding: vectors[i]}
	}
	return chunks, nil
}

func (e *Executor) persist(ctx context.Context, jobID string, result *models.Result, chunks []models.Chunk) error {
	ref, err := e.results.Save(ctx, result)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if err := e.jobs.AttachResult(ctx, jobID, ref, result.Kind); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Job deleted mid-flight. Drop the result and finish quietly so
			// the delivery acks instead of re-crawling into more orphans.
			if delErr := e.results.Delete(ctx, ref); delErr != nil {
				log.Warn().Err(delErr).Str("jobId", jobID).Msg("orphaned result of deleted job")
			}
			log.Info().Str("jobId", jobID).Msg("job deleted mid-flight, result discarded")
			return nil
		}
		return fmt.Errorf("attach result: %w", err)
	}
	if e.index != nil {
		if err := e.index.IndexJobChunks(ctx, jobID, string(result.Kind), chunks); err != nil {
			log.Warn().Err(err).Str("jobId", jobID).Msg("vector indexing failed, result kept")
		}
	}
	return nil
}
