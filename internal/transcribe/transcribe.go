// Package transcribe integrates the external speech-transcription
// service consumed by the team radio handler. Enrichment is best
// effort: callers log and drop failures, never retry inline.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pitwall/livetiming/internal/config"
)

var ErrTranscription = errors.New("transcribe: transcription failed")

// Transcriber turns a downloaded audio capture into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Client posts audio to the transcription service's /transcribe
// endpoint and decodes the text from its JSON response.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ Transcriber = (*Client)(nil)

// transcribeResponse is the service's response body.
type transcribeResponse struct {
	Text string `json:"text"`
}

func NewClient(cfg config.TranscriberConfig, logger *zap.Logger) *Client {
	ratePerSec := cfg.RatePerSecond
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		retryCount: cfg.RetryCount,
		retryDelay: time.Duration(cfg.RetryDelaySec) * time.Second,
		logger:     logger,
	}
}

func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying transcription", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := c.transcribeOnce(ctx, audioPath)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: max retries exceeded: %v", ErrTranscription, lastErr)
}

func (c *Client) transcribeOnce(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded transcribeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return decoded.Text, nil
}

// Noop is used when no transcription service is configured: captures
// flow through with an empty transcript.
type Noop struct{}

func (Noop) Transcribe(_ context.Context, _ string) (string, error) {
	return "", nil
}

// New creates the appropriate transcriber based on config.
func New(cfg config.TranscriberConfig, logger *zap.Logger) Transcriber {
	if cfg.URL == "" {
		return Noop{}
	}
	return NewClient(cfg, logger)
}
