// Package debounce coalesces bursty per-entity updates into one flush
// after a quiescence window (trailing debounce).
package debounce

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/merge"
)

// FlushFunc receives the buffered merged update for a key when its
// window elapses without a new arrival.
type FlushFunc func(key string, update map[string]any)

// bucket accumulates pending updates for one key. At most one live
// timer exists per bucket; the generation counter invalidates timers
// that were superseded or stopped.
type bucket struct {
	pending    map[string]any
	timer      *time.Timer
	generation uint64
}

// Coalescer owns the per-key buckets. Create one per handler instance
// and Stop it on shutdown; it is not a process-global table.
type Coalescer struct {
	window time.Duration
	flush  FlushFunc
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
	stopped bool
}

func New(window time.Duration, flush FlushFunc, logger *zap.Logger) *Coalescer {
	return &Coalescer{
		window:  window,
		flush:   flush,
		logger:  logger,
		buckets: make(map[string]*bucket),
	}
}

// Add merges update into the pending buffer for key and restarts the
// key's single-shot timer. The buffer accumulates every arrival since
// the last flush; only the most recent arrival's timer fires.
func (c *Coalescer) Add(key string, update map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	b := c.buckets[key]
	if b == nil {
		b = &bucket{}
		c.buckets[key] = b
	}

	b.pending = merge.Merge(b.pending, update)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.generation++
	generation := b.generation
	b.timer = time.AfterFunc(c.window, func() {
		c.fire(key, generation)
	})
}

// fire flushes a bucket if its timer is still current. The buffer is
// detached under the lock and published outside it, so a flush already
// executing is never canceled: an arrival during the flush simply
// starts a fresh buffer.
func (c *Coalescer) fire(key string, generation uint64) {
	c.mu.Lock()
	b := c.buckets[key]
	if b == nil || b.generation != generation || b.pending == nil {
		c.mu.Unlock()
		return
	}
	pending := b.pending
	b.pending = nil
	b.timer = nil
	c.mu.Unlock()

	c.flush(key, pending)
}

// Stop cancels all pending timers and discards buffered updates.
// Already-flushed output is unaffected.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	for key, b := range c.buckets {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.generation++
		if b.pending != nil {
			c.logger.Debug("discarding pending debounce buffer", zap.String("key", key))
		}
		b.pending = nil
		b.timer = nil
	}
}
