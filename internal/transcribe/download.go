package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// Downloader fetches audio captures to temporary files. Callers remove
// the file once the transcript is attached.
type Downloader struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDownloader(logger *zap.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Fetch streams the asset at url to a temp file and returns its path.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "radio-*.mp3")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	size, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("streaming audio: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	d.logger.Debug("downloaded audio capture",
		zap.String("url", url),
		zap.Int64("bytes", size),
	)

	return tmp.Name(), nil
}
