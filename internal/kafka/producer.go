package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"storefront-payments/internal/config"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer публикует доменные события заказов и платежей
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера с подтверждением от всех реплик
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Idempotent = false
	saramaCfg.Net.DialTimeout = 3 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	topics := cfg.Topics
	return &Producer{producer: producer, log: log, topics: &topics}, nil
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// publishEvent сериализует событие и отправляет его в топик. Ключ сообщения задаёт партицию.
func (p *Producer) publishEvent(topic string, event models.Event) error {
	return p.publishKeyed(topic, event.ID.String(), event)
}

func (p *Producer) publishKeyed(topic, key string, event models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.WithError(err).WithFields(map[string]interface{}{
			"topic":      topic,
			"event_type": event.Type,
		}).Error("Failed to publish event")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":      topic,
		"event_type": event.Type,
		"event_id":   event.ID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")
	return nil
}

func orderEventData(order *models.Order) models.OrderEventData {
	return models.OrderEventData{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.User,
		Status:      order.Status,
		TotalPrice:  order.TotalPrice,
		CouponCode:  order.CouponCode,
	}
}

func (p *Producer) publishOrderEvent(eventType models.EventType, data models.OrderEventData) error {
	event := models.Event{ID: uuid.New(), Type: eventType, Data: data}
	return p.publishKeyed(p.topics.Orders, data.OrderID.String(), event)
}

// PublishOrderCreated публикует событие создания заказа
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	return p.publishOrderEvent(models.EventTypeOrderCreated, orderEventData(order))
}

// PublishOrderPaid публикует событие оплаты заказа
func (p *Producer) PublishOrderPaid(order *models.Order) error {
	data := orderEventData(order)
	if order.RazorpayPaymentID != nil {
		data.PaymentID = *order.RazorpayPaymentID
	}
	return p.publishOrderEvent(models.EventTypeOrderPaid, data)
}

// PublishOrderDelivered публикует событие доставки заказа
func (p *Producer) PublishOrderDelivered(order *models.Order) error {
	return p.publishOrderEvent(models.EventTypeOrderDelivered, orderEventData(order))
}

// PublishOrderStatusChanged публикует событие смены статуса
func (p *Producer) PublishOrderStatusChanged(order *models.Order, oldStatus models.OrderStatus) error {
	data := orderEventData(order)
	data.OldStatus = oldStatus
	return p.publishOrderEvent(models.EventTypeOrderStatusChanged, data)
}

// PublishOrderRefunded публикует событие возврата по заказу
func (p *Producer) PublishOrderRefunded(order *models.Order, paymentID string) error {
	data := orderEventData(order)
	data.PaymentID = paymentID
	return p.publishOrderEvent(models.EventTypeOrderRefunded, data)
}

// PublishPaymentFailed публикует событие неуспешного платежа
func (p *Producer) PublishPaymentFailed(data models.PaymentEventData) error {
	event := models.Event{ID: uuid.New(), Type: models.EventTypePaymentFailed, Data: data}
	return p.publishKeyed(p.topics.Payments, data.ProviderOrderID, event)
}

// PublishCouponRedeemed публикует событие погашения купона
func (p *Producer) PublishCouponRedeemed(code string, orderID *uuid.UUID) error {
	event := models.Event{
		ID:   uuid.New(),
		Type: models.EventTypeCouponRedeemed,
		Data: models.CouponEventData{Code: code, OrderID: orderID},
	}
	return p.publishKeyed(p.topics.Payments, code, event)
}
