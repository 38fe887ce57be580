// Package store abstracts the external canonical-state store and
// pub-sub channel.
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates no canonical state exists for a topic yet.
var ErrNotFound = errors.New("store: topic not found")

// Store is the external key-value/pub-sub primitive: canonical per-topic
// state plus a best-effort change-event channel. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the canonical value for a topic, or ErrNotFound.
	Get(ctx context.Context, topic string) (map[string]any, error)
	// Set replaces the canonical value for a topic.
	Set(ctx context.Context, topic string, value map[string]any) error
	// Publish emits a change event to the topic's subscribers.
	Publish(ctx context.Context, topic string, payload any) error
	// Close releases the store connection.
	Close() error
}
