package services

import (
	"storefront-payments/internal/models"

	"github.com/google/uuid"
)

// EventPublisher публикует доменные события. Реализуется kafka.Producer.
type EventPublisher interface {
	PublishOrderCreated(order *models.Order) error
	PublishOrderPaid(order *models.Order) error
	PublishOrderDelivered(order *models.Order) error
	PublishOrderStatusChanged(order *models.Order, oldStatus models.OrderStatus) error
	PublishOrderRefunded(order *models.Order, paymentID string) error
	PublishPaymentFailed(data models.PaymentEventData) error
	PublishCouponRedeemed(code string, orderID *uuid.UUID) error
}
