package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"crawler-api/pkg/retry"
)

type ocrResponse struct {
	Text *string `json:"text"`
}

// Client calls the external OCR service with a rendered page image.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxAttempts: 3,
		retryDelay:  100 * time.Millisecond,
	}
}

// RecognizeFile reads the image at path and OCRs it with bounded retry.
func (c *Client) RecognizeFile(ctx context.Context, path string) (string, error) {
	img, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read page image: %w", err)
	}
	return c.Recognize(ctx, img)
}

// Recognize OCRs a JPEG image. A response without a string "text" field is a
// failure and triggers a retry.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	var text string
	err := retry.Do(ctx, c.maxAttempts, c.retryDelay, func() error {
		t, err := c.recognize(ctx, image)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	return text, err
}

func (c *Client) recognize(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR API %d: %s", resp.StatusCode, string(body))
	}

	var result ocrResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if result.Text == nil {
		return "", fmt.Errorf("OCR API response missing text field")
	}
	return *result.Text, nil
}
