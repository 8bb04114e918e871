// Package kafka handles sync telemetry emission and offline batch intake
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// SyncEvent is the telemetry record emitted for reconciliation outcomes
type SyncEvent struct {
	EventType     string          `json:"event_type"` // sync.reconciled, sync.conflict_resolved
	UserID        string          `json:"user_id"`
	DeviceID      string          `json:"device_id,omitempty"`
	LedgerEntryID string          `json:"ledger_entry_id"`
	Entity        string          `json:"entity"`
	EntityRef     string          `json:"entity_ref"`
	Action        string          `json:"action"`
	Outcome       string          `json:"outcome"` // success, conflict, error
	Detail        json.RawMessage `json:"detail,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PublishSyncEvent publishes a sync telemetry event. Keyed by user so a
// device's events stay ordered within a partition.
func (p *Producer) PublishSyncEvent(ctx context.Context, event *SyncEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishSyncEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "entity", Value: []byte(event.Entity)},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish sync event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"entity":     event.Entity,
		"outcome":    event.Outcome,
	}).Debug("Published sync event")

	return nil
}
