package vectorindex

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	domain "crawler-api/internal/models"
)

const (
	className = "CrawlChunk"
	batchSize = 10
)

// Index mirrors persisted chunk embeddings into Weaviate so results can be
// searched semantically. Vectors are supplied by the pipeline, not a
// vectorizer module.
type Index struct {
	client *weaviate.Client
}

// New connects to Weaviate, verifies readiness and ensures the chunk class
// exists.
func New(ctx context.Context, scheme, host, port string) (*Index, error) {
	cfg := weaviate.Config{
		Host:   fmt.Sprintf("%s:%s", host, port),
		Scheme: scheme,
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("init weaviate client: %w", err)
	}

	ready, err := client.Misc().ReadyChecker().Do(ctx)
	if err != nil || !ready {
		return nil, fmt.Errorf("weaviate not ready at %s://%s:%s: %w", scheme, host, port, err)
	}

	idx := &Index{client: client}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureClass(ctx context.Context) error {
	err := i.client.Schema().ClassCreator().
		WithClass(&models.Class{
			Class:      className,
			Vectorizer: "none",
		}).
		Do(ctx)
	if err != nil {
		exists, _ := i.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
		if exists {
			return nil
		}
		return fmt.Errorf("create weaviate class: %w", err)
	}
	return nil
}

// IndexJobChunks batch-inserts a job's chunks with their embeddings. The
// source argument distinguishes the document ("html") or the page
// ("page-3") the chunks came from.
func (i *Index) IndexJobChunks(ctx context.Context, jobID, source string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batcher := i.client.Batch().ObjectsBatcher()
	pending := 0

	for n, chunk := range chunks {
		vector := make([]float32, len(chunk.Embedding))
		for j, v := range chunk.Embedding {
			vector[j] = float32(v)
		}

		batcher = batcher.WithObjects(&models.Object{
			Class: className,
			ID:    strfmt.UUID(uuid.New().String()),
			Properties: map[string]interface{}{
				"jobId":      jobID,
				"source":     source,
				"chunkIndex": n,
				"text":       chunk.Text,
			},
			Vector: models.C11yVector(vector),
		})
		pending++

		if pending == batchSize || n == len(chunks)-1 {
			if _, err := batcher.Do(ctx); err != nil {
				return fmt.Errorf("batch insert failed at chunk %d: %w", n, err)
			}
			batcher = i.client.Batch().ObjectsBatcher()
			pending = 0
		}
	}
	return nil
}
