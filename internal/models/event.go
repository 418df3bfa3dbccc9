package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип события
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderDelivered     EventType = "order.delivered"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderRefunded      EventType = "order.refunded"
	EventTypePaymentFailed      EventType = "payment.failed"
	EventTypeCouponRedeemed     EventType = "coupon.redeemed"
)

// Event представляет событие в системе
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderEventData содержит данные событий заказа
type OrderEventData struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number,omitempty"`
	UserID      uuid.UUID   `json:"user_id"`
	Status      OrderStatus `json:"status"`
	OldStatus   OrderStatus `json:"old_status,omitempty"`
	TotalPrice  float64     `json:"total_price"`
	CouponCode  *string     `json:"coupon_code,omitempty"`
	PaymentID   string      `json:"payment_id,omitempty"`
}

// PaymentEventData содержит данные платёжных событий
type PaymentEventData struct {
	ProviderOrderID   string     `json:"provider_order_id"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	OrderID           *uuid.UUID `json:"order_id,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	Amount            float64    `json:"amount,omitempty"`
}

// CouponEventData содержит данные события погашения купона
type CouponEventData struct {
	Code    string     `json:"code"`
	OrderID *uuid.UUID `json:"order_id,omitempty"`
}
