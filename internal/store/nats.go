package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/config"
)

// NATS implements Store on a NATS deployment: a JetStream KV bucket
// holds canonical topic state, change events go out as core publishes
// on "<prefix>.<topic>".
type NATS struct {
	conn          *nats.Conn
	kv            jetstream.KeyValue
	subjectPrefix string
	logger        *zap.Logger
}

var _ Store = (*NATS)(nil)

// NewNATS connects and binds the KV bucket, creating it if missing.
func NewNATS(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("pitwall-livetiming"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "canonical live timing topic state",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding kv bucket %q: %w", cfg.Bucket, err)
	}

	logger.Info("connected to store",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket),
		zap.String("subjectPrefix", cfg.SubjectPrefix),
	)

	return &NATS{
		conn:          conn,
		kv:            kv,
		subjectPrefix: cfg.SubjectPrefix,
		logger:        logger,
	}, nil
}

func (s *NATS) Get(ctx context.Context, topic string) (map[string]any, error) {
	entry, err := s.kv.Get(ctx, topic)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", topic, err)
	}

	var value map[string]any
	if err := json.Unmarshal(entry.Value(), &value); err != nil {
		return nil, fmt.Errorf("decoding state for %s: %w", topic, err)
	}
	return value, nil
}

func (s *NATS) Set(ctx context.Context, topic string, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", topic, err)
	}
	if _, err := s.kv.Put(ctx, topic, data); err != nil {
		return fmt.Errorf("kv put %s: %w", topic, err)
	}
	return nil
}

func (s *NATS) Publish(_ context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", topic, err)
	}
	subject := s.subjectPrefix + "." + topic
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection so in-flight publishes are flushed before
// the process exits.
func (s *NATS) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
