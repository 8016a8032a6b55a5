package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	ShipmentStatusDLQTopic = "shipment.status_changed.dlq"
	MaxRetries             = 3
	InitialRetryDelay      = 1 * time.Second
	MaxRetryDelay          = 30 * time.Second
)

type ShipmentEventHandler interface {
	HandleShipmentStatus(ctx context.Context, event ShipmentStatusEvent) error
	IsRetryable(err error) bool
}

type ConsumerMetrics struct {
	ProcessedCount int64 `json:"processed"`
	RetryCount     int64 `json:"retries"`
	DLQCount       int64 `json:"dead_lettered"`
	SuccessCount   int64 `json:"succeeded"`
	FailureCount   int64 `json:"failed"`
}

type consumerCounters struct {
	processed, retries, dlq, success, failure atomic.Int64
}

func (c *consumerCounters) snapshot() ConsumerMetrics {
	return ConsumerMetrics{
		ProcessedCount: c.processed.Load(),
		RetryCount:     c.retries.Load(),
		DLQCount:       c.dlq.Load(),
		SuccessCount:   c.success.Load(),
		FailureCount:   c.failure.Load(),
	}
}

type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

// ShipmentConsumer feeds shipment status events to a handler, retrying
// retryable failures with exponential backoff and parking the rest on the
// dead letter topic.
type ShipmentConsumer struct {
	consumerGroup sarama.ConsumerGroup
	producer      sarama.SyncProducer
	logger        *logrus.Logger
	topics        []string
	processor     *messageProcessor
}

type messageProcessor struct {
	handler  ShipmentEventHandler
	producer sarama.SyncProducer
	logger   *logrus.Logger
	counters *consumerCounters
	// sleep waits between attempts; it returns early when ctx ends.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewShipmentConsumer(brokers []string, groupID string, handler ShipmentEventHandler, logger *logrus.Logger) (*ShipmentConsumer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &ShipmentConsumer{
		consumerGroup: consumerGroup,
		producer:      producer,
		logger:        logger,
		topics:        []string{ShipmentStatusChangedTopic},
		processor:     newMessageProcessor(handler, producer, logger),
	}, nil
}

func newMessageProcessor(handler ShipmentEventHandler, producer sarama.SyncProducer, logger *logrus.Logger) *messageProcessor {
	return &messageProcessor{
		handler:  handler,
		producer: producer,
		logger:   logger,
		counters: &consumerCounters{},
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start consumes until ctx is cancelled. Consume returns on every
// rebalance, so it is called in a loop.
func (c *ShipmentConsumer) Start(ctx context.Context) error {
	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, c.processor); err != nil {
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *ShipmentConsumer) Metrics() ConsumerMetrics {
	return c.processor.counters.snapshot()
}

func (c *ShipmentConsumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	return c.consumerGroup.Close()
}

func (p *messageProcessor) Setup(sarama.ConsumerGroupSession) error {
	p.logger.Info("Kafka consumer group session setup")
	return nil
}

func (p *messageProcessor) Cleanup(sarama.ConsumerGroupSession) error {
	p.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (p *messageProcessor) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := p.process(session.Context(), message); err != nil {
				// Leave the offset uncommitted; the message is redelivered
				// after the next rebalance.
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			p.logger.Info("Consumer group session context cancelled")
			return nil
		}
	}
}

// process handles one message end to end. It only returns an error when the
// session ended mid-retry, in which case the message must not be committed.
func (p *messageProcessor) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	p.counters.processed.Add(1)

	err := p.handleWithRetry(ctx, message)
	if err == nil {
		p.counters.success.Add(1)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.logger.WithError(err).Error("Failed to process message after retries")
	p.counters.failure.Add(1)
	if dlqErr := p.sendToDLQ(message, err); dlqErr != nil {
		p.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
	} else {
		p.counters.dlq.Add(1)
	}
	return nil
}

func (p *messageProcessor) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	p.logger.WithFields(logrus.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
		"key":       string(message.Key),
	}).Debug("Processing shipment status message")

	var event ShipmentStatusEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("decode shipment status event: %w", err)
	}

	delay := InitialRetryDelay
	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.WithFields(logrus.Fields{
				"order_id":    event.OrderID,
				"shipment_id": event.ShipmentID,
				"attempt":     attempt,
				"delay":       delay,
			}).Info("Retrying shipment status event")

			if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			p.counters.retries.Add(1)

			delay *= 2
			if delay > MaxRetryDelay {
				delay = MaxRetryDelay
			}
		}

		err = p.handler.HandleShipmentStatus(ctx, event)
		if err == nil {
			return nil
		}
		if !p.handler.IsRetryable(err) {
			p.logger.WithError(err).Error("Non-retryable error encountered")
			return err
		}
		p.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error processing shipment event")
	}

	return fmt.Errorf("exhausted retries for order %s: %w", event.OrderID, err)
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == "retry_count" {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

func (p *messageProcessor) sendToDLQ(message *sarama.ConsumerMessage, processingError error) error {
	now := time.Now().UTC()
	metadata := MessageMetadata{
		RetryCount:    retryCount(message) + 1,
		FirstFailure:  now,
		LastFailure:   now,
		OriginalTopic: message.Topic,
		ErrorMessage:  processingError.Error(),
	}

	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dlqMessage := &sarama.ProducerMessage{
		Topic: ShipmentStatusDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("metadata"), Value: metadataBytes},
			{Key: []byte("original_topic"), Value: []byte(message.Topic)},
			{Key: []byte("original_partition"), Value: []byte(strconv.Itoa(int(message.Partition)))},
			{Key: []byte("original_offset"), Value: []byte(strconv.FormatInt(message.Offset, 10))},
			{Key: []byte("failure_time"), Value: []byte(now.Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.producer.SendMessage(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"dlq_topic":     ShipmentStatusDLQTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         processingError.Error(),
	}).Warn("Message sent to dead letter queue")

	return nil
}
