package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publication records one Publish call, in order.
type Publication struct {
	Topic   string
	Payload any
}

// Memory is an in-process Store used by tests and local runs without a
// NATS deployment. Values are copied on the way in and out so callers
// can mutate merge results freely.
type Memory struct {
	mu        sync.RWMutex
	topics    map[string]map[string]any
	published []Publication
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{topics: make(map[string]map[string]any)}
}

func (s *Memory) Get(_ context.Context, topic string) (map[string]any, error) {
	s.mu.RLock()
	value, ok := s.topics[topic]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(value)
}

func (s *Memory) Set(_ context.Context, topic string, value map[string]any) error {
	copied, err := deepCopy(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.topics[topic] = copied
	s.mu.Unlock()
	return nil
}

func (s *Memory) Publish(_ context.Context, topic string, payload any) error {
	s.mu.Lock()
	s.published = append(s.published, Publication{Topic: topic, Payload: payload})
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error { return nil }

// State returns the stored value for a topic, or nil.
func (s *Memory) State(topic string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics[topic]
}

// Published returns all publications in arrival order.
func (s *Memory) Published() []Publication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Publication, len(s.published))
	copy(out, s.published)
	return out
}

// deepCopy round-trips through JSON, which also normalizes numbers the
// same way the wire decoding does.
func deepCopy(value map[string]any) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("copying value: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copying value: %w", err)
	}
	return out, nil
}
