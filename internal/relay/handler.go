package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/debounce"
	"github.com/pitwall/livetiming/internal/merge"
	"github.com/pitwall/livetiming/internal/metrics"
	"github.com/pitwall/livetiming/internal/signalr"
	"github.com/pitwall/livetiming/internal/store"
)

// Topic names as the upstream feed spells them.
const (
	TopicTimingData    = "TimingDataF1"
	TopicTyreStints    = "TyreStintSeries"
	TopicCurrentTyres  = "CurrentTyres"
	TopicPosition      = "Position.z"
	TopicCarData       = "CarData.z"
	TopicPitLaneTimes  = "PitLaneTimeCollection"
	TopicPitStop       = "PitStop"
	TopicPitStopSeries = "PitStopSeries"
	TopicTeamRadio     = "TeamRadio"
	TopicSessionInfo   = "SessionInfo"
)

// Handler is one topic-handler variant: a fixed topic set wired to a
// Processor, plus whatever variant-specific machinery it owns.
type Handler struct {
	name      string
	topics    []string
	processor *Processor
	coalescer *debounce.Coalescer
}

var _ signalr.FrameHandler = (*Handler)(nil)

func (h *Handler) Name() string { return h.name }

// Topics returns the ordered subscription list for this variant.
func (h *Handler) Topics() []string { return h.topics }

func (h *Handler) HandleFrame(ctx context.Context, f *signalr.Frame) {
	h.processor.HandleFrame(ctx, f)
}

// Shutdown waits for outstanding side-effect tasks and cancels pending
// debounce timers. Already-flushed output is unaffected.
func (h *Handler) Shutdown() {
	h.processor.Wait()
	if h.coalescer != nil {
		h.coalescer.Stop()
	}
}

// NewTyreHandler relays the tyre stint and current tyre feeds with no
// variant-specific processing.
func NewTyreHandler(st store.Store, m *metrics.Set, logger *zap.Logger) *Handler {
	return &Handler{
		name:      "tyre",
		topics:    []string{TopicTyreStints, TopicCurrentTyres},
		processor: NewProcessor(st, m, logger),
	}
}

// NewTelemetryHandler relays the compressed car position and telemetry
// feeds. Decompression is topic-driven, so the processor needs no
// special casing beyond the subscription list.
func NewTelemetryHandler(st store.Store, m *metrics.Set, logger *zap.Logger) *Handler {
	return &Handler{
		name:      "telemetry",
		topics:    []string{TopicPosition, TopicCarData},
		processor: NewProcessor(st, m, logger),
	}
}

// NewPitLaneHandler relays the pit lane feeds. The pit time collection
// carries a deletion marker nested under PitTimes naming entries to
// drop from stored state before the merge.
func NewPitLaneHandler(st store.Store, m *metrics.Set, logger *zap.Logger) *Handler {
	p := NewProcessor(st, m, logger)
	p.RegisterHook(TopicPitLaneTimes, pitTimeDeletions)
	return &Handler{
		name:      "pitlane",
		topics:    []string{signalr.HeartbeatTopic, TopicPitLaneTimes, TopicPitStop, TopicPitStopSeries},
		processor: p,
	}
}

// pitTimeDeletions removes entries named under the deletion marker from
// the stored pit time collection, then strips the marker so it never
// reaches the merge or the published delta's consumers unhandled.
func pitTimeDeletions(base, delta map[string]any) {
	patch, ok := delta["PitTimes"].(map[string]any)
	if !ok {
		return
	}
	raw, ok := patch[merge.DeletedKey]
	if !ok {
		return
	}
	delete(patch, merge.DeletedKey)

	times, ok := base["PitTimes"].(map[string]any)
	if !ok {
		return
	}
	items, ok := raw.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		if id, ok := item.(string); ok {
			delete(times, id)
		}
	}
}
