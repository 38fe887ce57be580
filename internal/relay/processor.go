// Package relay turns received frames into canonical state updates and
// published change events. A Processor does the topic-independent work
// (classification, decompression, merge, persist, publish); the handler
// variants in this package compose it with a topic set and
// variant-specific pre/post-processing.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/codec"
	"github.com/pitwall/livetiming/internal/merge"
	"github.com/pitwall/livetiming/internal/metrics"
	"github.com/pitwall/livetiming/internal/signalr"
	"github.com/pitwall/livetiming/internal/store"
)

const (
	// compressedSuffix marks a topic whose payloads are base64 text of
	// raw-deflate-compressed JSON. The canonical topic name omits it.
	compressedSuffix = ".z"

	// bookkeepingKey is upstream-internal and stripped from every
	// snapshot and delta before anything else happens.
	bookkeepingKey = "_kf"
)

// Hook is a per-topic pre-merge extension point. It runs after the
// current canonical value has been fetched and before the merge, and may
// mutate both trees (e.g. to honor a topic's deletion markers).
type Hook func(base, delta map[string]any)

// DeliverFunc receives the unmerged partial update for a topic after the
// merged result has been persisted. Consumers get incremental patches,
// matching upstream's own contract.
type DeliverFunc func(ctx context.Context, topic string, delta map[string]any)

// Processor applies frames against the external store. Reference
// snapshots are applied inline (they anchor every later merge); delta
// side effects are spawned as tracked tasks so slow downstream work
// never blocks the read loop.
type Processor struct {
	store   store.Store
	hooks   map[string]Hook
	deliver DeliverFunc
	metrics *metrics.Set
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewProcessor(st store.Store, m *metrics.Set, logger *zap.Logger) *Processor {
	p := &Processor{
		store:   st,
		hooks:   make(map[string]Hook),
		metrics: m,
		logger:  logger,
	}
	p.deliver = p.publishDelta
	return p
}

// RegisterHook installs a pre-merge hook for one canonical topic name.
func (p *Processor) RegisterHook(topic string, hook Hook) {
	p.hooks[topic] = hook
}

// SetDeliver replaces the default publish-verbatim delivery path.
func (p *Processor) SetDeliver(fn DeliverFunc) {
	p.deliver = fn
}

// Go runs fn as a tracked task. Wait blocks until all tracked tasks
// finish, so shutdown cannot lose in-flight work silently.
func (p *Processor) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Wait blocks until all spawned side-effect tasks have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// HandleFrame applies one frame: snapshots replace cached state, deltas
// are merged and delivered. Records for unknown hubs and heartbeat
// deltas are discarded. A record that fails to decode is discarded
// whole; nothing is half-applied.
func (p *Processor) HandleFrame(ctx context.Context, f *signalr.Frame) {
	for topic, raw := range f.R {
		p.applySnapshot(ctx, topic, raw)
	}

	for i := range f.M {
		msg := &f.M[i]
		if msg.Hub != signalr.HubName {
			continue
		}

		topic, err := msg.Topic()
		if err != nil {
			p.logger.Warn("discarding undecodable delta record", zap.Error(err))
			continue
		}
		if topic == signalr.HeartbeatTopic {
			continue
		}

		payload, err := msg.Payload()
		if err != nil {
			p.logger.Warn("discarding undecodable delta record",
				zap.String("topic", topic),
				zap.Error(err),
			)
			continue
		}

		canonical, delta, err := decodeValue(topic, payload)
		if err != nil {
			p.logger.Warn("discarding undecodable delta payload",
				zap.String("topic", topic),
				zap.Error(err),
			)
			continue
		}

		p.Go(func() {
			p.applyDelta(ctx, canonical, delta)
		})
	}
}

// applySnapshot replaces the cached state for a topic with a full
// reference snapshot. No merge, no publish.
func (p *Processor) applySnapshot(ctx context.Context, topic string, raw json.RawMessage) {
	canonical, value, err := decodeValue(topic, raw)
	if err != nil {
		p.logger.Warn("discarding undecodable snapshot",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	if err := p.store.Set(ctx, canonical, value); err != nil {
		p.logger.Error("failed to persist snapshot",
			zap.String("topic", canonical),
			zap.Error(err),
		)
		return
	}

	p.metrics.SnapshotsStored.WithLabelValues(canonical).Inc()
	p.logger.Debug("stored reference snapshot", zap.String("topic", canonical))
}

// applyDelta merges one partial update into canonical state, persists
// the result and hands the unmerged delta to the delivery path. Any
// failure discards the update entirely; partially-merged state is never
// committed.
func (p *Processor) applyDelta(ctx context.Context, topic string, delta map[string]any) {
	base, err := p.store.Get(ctx, topic)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.metrics.MergeFailures.WithLabelValues(topic).Inc()
		p.logger.Error("failed to fetch canonical state",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}
	if base == nil {
		base = make(map[string]any)
	}

	if hook := p.hooks[topic]; hook != nil {
		hook(base, delta)
	}

	merged := merge.Merge(base, delta)

	if err := p.store.Set(ctx, topic, merged); err != nil {
		p.metrics.MergeFailures.WithLabelValues(topic).Inc()
		p.logger.Error("failed to persist merged state",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	p.metrics.DeltasMerged.WithLabelValues(topic).Inc()
	p.deliver(ctx, topic, delta)
}

// publishDelta is the default delivery path: the unmerged partial
// update goes out verbatim on the topic's channel.
func (p *Processor) publishDelta(ctx context.Context, topic string, delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	p.Publish(ctx, topic, delta)
}

// Publish emits a payload on the topic's channel. Publish failures are
// logged and dropped: delivery is best-effort by design.
func (p *Processor) Publish(ctx context.Context, topic string, payload any) {
	if err := p.store.Publish(ctx, topic, payload); err != nil {
		p.logger.Warn("failed to publish change event",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}
	p.metrics.Published.WithLabelValues(topic).Inc()
}

// decodeValue decodes a raw payload into a value tree, inflating
// compressed topics and stripping the compression marker from the topic
// name. The upstream bookkeeping key is removed in the same pass.
func decodeValue(topic string, raw json.RawMessage) (string, map[string]any, error) {
	canonical := strings.TrimSuffix(topic, compressedSuffix)

	data := []byte(raw)
	if canonical != topic {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return "", nil, fmt.Errorf("compressed payload is not base64 text: %w", err)
		}
		inflated, err := codec.Inflate(encoded)
		if err != nil {
			return "", nil, err
		}
		data = inflated
	}

	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil {
		return "", nil, fmt.Errorf("decoding payload for %s: %w", topic, err)
	}

	delete(value, bookkeepingKey)
	return canonical, value, nil
}
