package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crawler-api/pkg/retry"
)

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Client calls the external embedding service, one request per chunk.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		retryDelay:  100 * time.Millisecond,
	}
}

// EmbedText embeds a single chunk with bounded fixed-delay retry.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	var vector []float64
	err := retry.Do(ctx, c.maxAttempts, c.retryDelay, func() error {
		v, err := c.embed(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	return vector, err
}

// EmbedDocuments embeds texts in order; the vector at index i corresponds to
// texts[i].
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for _, text := range texts {
		v, err := c.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (c *Client) embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embedding API returned an empty vector")
	}
	return result.Embedding, nil
}
