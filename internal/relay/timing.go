package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/debounce"
	"github.com/pitwall/livetiming/internal/metrics"
	"github.com/pitwall/livetiming/internal/store"
)

// NewTimingHandler relays the timing feed. Per-driver last-lap-time
// leaves arrive in bursts, so they are pulled out of each delta and
// routed through a trailing-debounce coalescer keyed by driver; the
// remainder of the delta is published immediately.
func NewTimingHandler(st store.Store, window time.Duration, m *metrics.Set, logger *zap.Logger) *Handler {
	p := NewProcessor(st, m, logger)

	coalescer := debounce.New(window, func(driver string, update map[string]any) {
		m.DebounceFlushes.Inc()
		p.Publish(context.Background(), TopicTimingData, update)
		logger.Debug("flushed coalesced lap time", zap.String("driver", driver))
	}, logger)

	p.SetDeliver(func(ctx context.Context, topic string, delta map[string]any) {
		for driver, lap := range extractLastLapTimes(delta) {
			coalescer.Add(driver, map[string]any{
				"Lines": map[string]any{
					driver: map[string]any{"LastLapTime": lap},
				},
			})
		}
		if len(delta) == 0 {
			return
		}
		p.Publish(ctx, topic, delta)
	})

	return &Handler{
		name:      "timing",
		topics:    []string{TopicTimingData},
		processor: p,
		coalescer: coalescer,
	}
}

// extractLastLapTimes removes every per-driver LastLapTime leaf from the
// delta and returns them keyed by driver. Driver entries left empty
// after extraction are dropped from the remainder, as is an emptied
// Lines collection.
func extractLastLapTimes(delta map[string]any) map[string]any {
	lines, ok := delta["Lines"].(map[string]any)
	if !ok {
		return nil
	}

	extracted := make(map[string]any)
	for driver, entry := range lines {
		line, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if lap, ok := line["LastLapTime"]; ok {
			extracted[driver] = lap
			delete(line, "LastLapTime")
		}
		if len(line) == 0 {
			delete(lines, driver)
		}
	}

	if len(lines) == 0 {
		delete(delta, "Lines")
	}
	return extracted
}
