package kafka

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// BatchHandler processes a mutation batch forwarded by the mobile gateway
type BatchHandler func(ctx context.Context, batch *IntakeBatch) error

// IntakeBatch is the wire format for offline batches arriving over Kafka.
// It carries the same mutations the HTTP endpoint accepts, plus routing
// metadata from the gateway.
type IntakeBatch struct {
	UserID    string                   `json:"user_id"`
	DeviceID  string                   `json:"device_id"`
	Mutations []models.MutationRequest `json:"mutations"`
}

// Consumer handles Kafka mutation intake
type Consumer struct {
	reader  *kafka.Reader
	logger  ectologger.Logger
	handler BatchHandler
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// NewConsumer creates a new mutation intake consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler BatchHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:  reader,
		logger:  logger,
		handler: handler,
	}
}

// Start begins consuming batches
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.reader.Config().Topic,
	}).Info("Kafka intake consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.WithContext(ctx).Info("Intake consumer loop stopping")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if err == context.Canceled || err == io.EOF {
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
				continue
			}

			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var batch IntakeBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		log.WithError(err).Error("Failed to parse intake batch")
		// Malformed batches can never succeed; commit so the partition is not stuck
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.WithError(err).Error("Failed to commit message")
		}
		return
	}

	// Every mutation lands in the ledger even on failure, so the batch is
	// safe to commit regardless of individual outcomes. Only an infra-level
	// handler error leaves the message uncommitted for redelivery.
	if err := c.handler(ctx, &batch); err != nil {
		log.WithError(err).Error("Failed to process intake batch (not committing)")
		return
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// Health returns the consumer health status
func (c *Consumer) Health() bool {
	return c.reader != nil
}
