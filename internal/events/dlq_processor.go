package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// MaxReplays caps how many times one shipment event may cycle through the
// dead letter topic.
const MaxReplays = MaxRetries * 2

// DLQOptions controls what the processor does with parked messages.
type DLQOptions struct {
	GroupID string
	// Replay republishes messages to their original topic after ReplayDelay.
	// When false the processor only reports them.
	Replay      bool
	ReplayDelay time.Duration
}

// DLQEntry is the decoded view of one dead-lettered shipment event.
type DLQEntry struct {
	Key      string
	Event    ShipmentStatusEvent
	Metadata MessageMetadata
	// DecodeErr is set when the payload was not a valid shipment event.
	DecodeErr error
}

type DLQProcessor struct {
	consumer sarama.ConsumerGroup
	producer sarama.SyncProducer
	logger   *logrus.Logger
	opts     DLQOptions
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDLQProcessor(brokers []string, opts DLQOptions, logger *logrus.Logger) (*DLQProcessor, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	if opts.GroupID == "" {
		opts.GroupID = "dlq-processor-group"
	}
	consumer, err := sarama.NewConsumerGroup(brokers, opts.GroupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return newDLQProcessor(consumer, producer, opts, logger), nil
}

func newDLQProcessor(consumer sarama.ConsumerGroup, producer sarama.SyncProducer, opts DLQOptions, logger *logrus.Logger) *DLQProcessor {
	return &DLQProcessor{
		consumer: consumer,
		producer: producer,
		logger:   logger,
		opts:     opts,
		sleep:    sleepContext,
	}
}

func (p *DLQProcessor) ProcessDLQ(ctx context.Context) error {
	handler := &dlqConsumerHandler{processor: p}
	for {
		if err := p.consumer.Consume(ctx, []string{ShipmentStatusDLQTopic}, handler); err != nil {
			p.logger.WithError(err).Error("Error consuming from DLQ")
			return err
		}
		if ctx.Err() != nil {
			p.logger.Info("DLQ processor context cancelled")
			return nil
		}
	}
}

// Decode extracts the event and failure metadata from a DLQ message.
func Decode(message *sarama.ConsumerMessage) DLQEntry {
	entry := DLQEntry{Key: string(message.Key)}
	for _, header := range message.Headers {
		if string(header.Key) == "metadata" {
			if err := json.Unmarshal(header.Value, &entry.Metadata); err != nil {
				entry.DecodeErr = fmt.Errorf("decode metadata: %w", err)
			}
			break
		}
	}
	if err := json.Unmarshal(message.Value, &entry.Event); err != nil {
		entry.DecodeErr = fmt.Errorf("decode shipment status event: %w", err)
	}
	return entry
}

// ReplayMessage republishes a dead-lettered message to the topic it came
// from, carrying the retry count forward.
func (p *DLQProcessor) ReplayMessage(message *sarama.ConsumerMessage) error {
	entry := Decode(message)
	if entry.Metadata.RetryCount >= MaxReplays {
		p.logger.WithFields(logrus.Fields{
			"key":         entry.Key,
			"retry_count": entry.Metadata.RetryCount,
		}).Error("Message exceeded maximum replay attempts")
		return fmt.Errorf("message %s exceeded maximum replay attempts", entry.Key)
	}

	topic := entry.Metadata.OriginalTopic
	if topic == "" {
		topic = ShipmentStatusChangedTopic
	}

	replay := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("retry_count"), Value: []byte(strconv.Itoa(entry.Metadata.RetryCount))},
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
			{Key: []byte("replay_time"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.producer.SendMessage(replay)
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"replay_topic":     topic,
		"replay_partition": partition,
		"replay_offset":    offset,
		"key":              entry.Key,
	}).Info("Message replayed from DLQ")

	return nil
}

func (p *DLQProcessor) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	entry := Decode(message)
	fields := logrus.Fields{
		"topic":          message.Topic,
		"partition":      message.Partition,
		"offset":         message.Offset,
		"key":            entry.Key,
		"order_id":       entry.Event.OrderID,
		"shipment_id":    entry.Event.ShipmentID,
		"status":         entry.Event.Status,
		"original_topic": entry.Metadata.OriginalTopic,
		"retry_count":    entry.Metadata.RetryCount,
		"error_message":  entry.Metadata.ErrorMessage,
	}
	if entry.DecodeErr != nil {
		p.logger.WithError(entry.DecodeErr).WithFields(fields).Warn("Undecodable DLQ message")
		return nil
	}
	p.logger.WithFields(fields).Warn("DLQ message detected")

	if !p.opts.Replay {
		return nil
	}
	if err := p.sleep(ctx, p.opts.ReplayDelay); err != nil {
		return err
	}
	if err := p.ReplayMessage(message); err != nil {
		p.logger.WithError(err).Error("Failed to replay DLQ message")
	}
	return nil
}

func (p *DLQProcessor) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.WithError(err).Error("Failed to close producer")
	}
	return p.consumer.Close()
}

type dlqConsumerHandler struct {
	processor *DLQProcessor
}

func (h *dlqConsumerHandler) Setup(sarama.ConsumerGroupSession) error {
	h.processor.logger.Info("DLQ consumer session setup")
	return nil
}

func (h *dlqConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.processor.logger.Info("DLQ consumer session cleanup")
	return nil
}

func (h *dlqConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.processor.handle(session.Context(), message); err != nil {
				return nil
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
