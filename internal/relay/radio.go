package relay

import (
	"context"
	"net/url"
	"os"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/metrics"
	"github.com/pitwall/livetiming/internal/store"
	"github.com/pitwall/livetiming/internal/transcribe"
)

// NewRadioHandler relays the team radio feed and enriches each capture
// with a transcript before publishing it. Session info is subscribed
// alongside because capture paths are relative to the session's static
// asset root.
func NewRadioHandler(st store.Store, staticBase string, downloader *transcribe.Downloader, transcriber transcribe.Transcriber, m *metrics.Set, logger *zap.Logger) *Handler {
	p := NewProcessor(st, m, logger)

	enricher := &radioEnricher{
		processor:   p,
		store:       st,
		staticBase:  staticBase,
		downloader:  downloader,
		transcriber: transcriber,
		metrics:     m,
		logger:      logger,
	}
	p.SetDeliver(enricher.deliver)

	return &Handler{
		name:      "radio",
		topics:    []string{TopicTeamRadio, TopicSessionInfo},
		processor: p,
	}
}

// radioEnricher intercepts team radio deltas, downloads and transcribes
// each new capture, and publishes captures one at a time with the
// transcript attached. Failed captures are dropped, never published
// without text.
type radioEnricher struct {
	processor   *Processor
	store       store.Store
	staticBase  string
	downloader  *transcribe.Downloader
	transcriber transcribe.Transcriber
	metrics     *metrics.Set
	logger      *zap.Logger
}

func (e *radioEnricher) deliver(ctx context.Context, topic string, delta map[string]any) {
	if topic != TopicTeamRadio {
		e.processor.publishDelta(ctx, topic, delta)
		return
	}

	for _, capture := range normalizeCaptures(delta["Captures"]) {
		e.processor.Go(func() {
			e.handleCapture(ctx, capture)
		})
	}
}

func (e *radioEnricher) handleCapture(ctx context.Context, capture map[string]any) {
	logger := e.logger.With(zap.String("capture_id", uuid.NewString()))

	path, ok := capture["Path"].(string)
	if !ok || path == "" {
		logger.Warn("discarding capture without audio path")
		e.metrics.TranscriptFailures.Inc()
		return
	}
	logger = logger.With(zap.String("path", path))

	audioURL, err := e.captureURL(ctx, path)
	if err != nil {
		logger.Warn("failed to resolve capture url", zap.Error(err))
		e.metrics.TranscriptFailures.Inc()
		return
	}

	audioPath, err := e.downloader.Fetch(ctx, audioURL)
	if err != nil {
		logger.Warn("failed to download capture", zap.Error(err))
		e.metrics.TranscriptFailures.Inc()
		return
	}
	defer func() { _ = os.Remove(audioPath) }()

	text, err := e.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		logger.Warn("failed to transcribe capture", zap.Error(err))
		e.metrics.TranscriptFailures.Inc()
		return
	}

	capture["Message"] = text
	e.processor.Publish(ctx, TopicTeamRadio, map[string]any{
		"Captures": []any{capture},
	})
	e.metrics.Transcripts.Inc()
	logger.Debug("published transcribed capture")
}

// captureURL joins the static asset base with the session path from the
// stored session info and the capture's relative path.
func (e *radioEnricher) captureURL(ctx context.Context, capturePath string) (string, error) {
	session, err := e.store.Get(ctx, TopicSessionInfo)
	if err != nil {
		return "", err
	}
	sessionPath, _ := session["Path"].(string)
	return url.JoinPath(e.staticBase, sessionPath, capturePath)
}

// normalizeCaptures accepts the two shapes the feed uses for the
// capture collection: a plain list in snapshots and early deltas, and
// an index-keyed map once the feed switches to appending patches.
// Index-keyed captures come back in ascending index order.
func normalizeCaptures(raw any) []map[string]any {
	switch v := raw.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if capture, ok := item.(map[string]any); ok {
				out = append(out, capture)
			}
		}
		return out
	case map[string]any:
		indices := make([]int, 0, len(v))
		byIndex := make(map[int]map[string]any, len(v))
		for key, item := range v {
			idx, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			if capture, ok := item.(map[string]any); ok {
				indices = append(indices, idx)
				byIndex[idx] = capture
			}
		}
		sort.Ints(indices)
		out := make([]map[string]any, 0, len(indices))
		for _, idx := range indices {
			out = append(out, byIndex[idx])
		}
		return out
	default:
		return nil
	}
}
