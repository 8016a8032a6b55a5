package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	OrderCreatedTopic          = "order.created"
	OrderStatusChangedTopic    = "order.status_changed"
	ShipmentStatusChangedTopic = "shipment.status_changed"
)

type OrderCreatedEvent struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
	EventTime   time.Time       `json:"event_time"`
}

type OrderStatusChangedEvent struct {
	OrderID    string             `json:"order_id"`
	FromStatus models.OrderStatus `json:"from_status"`
	ToStatus   models.OrderStatus `json:"to_status"`
	ShipmentID string             `json:"shipment_id,omitempty"`
	ChangedAt  time.Time          `json:"changed_at"`
	EventTime  time.Time          `json:"event_time"`
}

// ShipmentStatusEvent is published by the logistics side whenever a
// shipment changes status.
type ShipmentStatusEvent struct {
	ShipmentID string                `json:"shipment_id"`
	OrderID    string                `json:"order_id"`
	Status     models.ShipmentStatus `json:"status"`
	OccurredAt time.Time             `json:"occurred_at"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

func NewKafkaProducer(brokers []string, logger *logrus.Logger) (*KafkaProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		return nil, err
	}
	return NewKafkaProducerFrom(producer, logger), nil
}

// NewKafkaProducerFrom wraps an existing sync producer.
func NewKafkaProducerFrom(producer sarama.SyncProducer, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}
}

func (p *KafkaProducer) PublishOrderCreated(event OrderCreatedEvent) error {
	event.EventTime = time.Now().UTC()
	return p.publish(OrderCreatedTopic, event.OrderID, event)
}

func (p *KafkaProducer) PublishOrderStatusChanged(event OrderStatusChangedEvent) error {
	event.EventTime = time.Now().UTC()
	return p.publish(OrderStatusChangedTopic, event.OrderID, event)
}

// PublishShipmentStatus keys by order id so every event for one order lands
// on the same partition.
func (p *KafkaProducer) PublishShipmentStatus(event ShipmentStatusEvent) error {
	return p.publish(ShipmentStatusChangedTopic, event.OrderID, event)
}

func (p *KafkaProducer) publish(topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"key":       key,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

// NopPublisher drops events. It stands in when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(OrderCreatedEvent) error             { return nil }
func (NopPublisher) PublishOrderStatusChanged(OrderStatusChangedEvent) error { return nil }
