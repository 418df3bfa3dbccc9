package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus представляет статус заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Valid сообщает, известен ли статус
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// Order представляет заказ. Позиции и адрес хранятся снимками на момент оформления.
type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	User              uuid.UUID       `json:"user" db:"user_id"`
	OrderNumber       string          `json:"orderNumber" db:"order_number"`
	OrderItems        []OrderItem     `json:"orderItems" db:"order_items"`
	ShippingAddress   ShippingAddress `json:"shippingAddress" db:"shipping_address"`
	PaymentMethod     string          `json:"paymentMethod" db:"payment_method"`
	PaymentResult     *PaymentResult  `json:"paymentResult,omitempty" db:"payment_result"`
	RazorpayOrderID   *string         `json:"razorpayOrderId,omitempty" db:"razorpay_order_id"`
	RazorpayPaymentID *string         `json:"razorpayPaymentId,omitempty" db:"razorpay_payment_id"`
	RazorpaySignature *string         `json:"-" db:"razorpay_signature"`
	ItemsPrice        float64         `json:"itemsPrice" db:"items_price"`
	ShippingPrice     float64         `json:"shippingPrice" db:"shipping_price"`
	CouponCode        *string         `json:"couponCode" db:"coupon_code"`
	CouponDiscount    float64         `json:"couponDiscount" db:"coupon_discount"`
	TotalPrice        float64         `json:"totalPrice" db:"total_price"`
	Status            OrderStatus     `json:"status" db:"status"`
	TrackingNumber    *string         `json:"trackingNumber,omitempty" db:"tracking_number"`
	Notes             *string         `json:"notes,omitempty" db:"notes"`
	IsPaid            bool            `json:"isPaid" db:"is_paid"`
	PaidAt            *time.Time      `json:"paidAt,omitempty" db:"paid_at"`
	IsDelivered       bool            `json:"isDelivered" db:"is_delivered"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// OrderItem представляет снимок товара в заказе
type OrderItem struct {
	Product uuid.UUID `json:"product"`
	Name    string    `json:"name"`
	Qty     int       `json:"qty"`
	Image   string    `json:"image"`
	Price   float64   `json:"price"`
	Size    string    `json:"size"`
	Color   string    `json:"color,omitempty"`
}

// ShippingAddress представляет снимок адреса доставки
type ShippingAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
}

// PaymentResult описывает подтверждённый платёж
type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

// CreateOrderRequest представляет запрос на создание заказа.
// ItemsPrice, ShippingPrice, CouponDiscount и TotalPrice от клиента носят справочный характер.
type CreateOrderRequest struct {
	OrderItems      []OrderItem     `json:"orderItems"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ItemsPrice      float64         `json:"itemsPrice"`
	ShippingPrice   *float64        `json:"shippingPrice,omitempty"`
	CouponCode      *string         `json:"couponCode,omitempty"`
	CouponDiscount  *float64        `json:"couponDiscount,omitempty"`
	TotalPrice      float64         `json:"totalPrice"`
}

// QuoteRequest представляет запрос на предварительный расчёт суммы
type QuoteRequest struct {
	OrderItems []OrderItem `json:"orderItems"`
	CouponCode *string     `json:"couponCode,omitempty"`
}

// OrderQuote представляет расчёт суммы заказа без сохранения
type OrderQuote struct {
	ItemCount            int      `json:"itemCount"`
	ItemsPrice           float64  `json:"itemsPrice"`
	ShippingPrice        float64  `json:"shippingPrice"`
	ExpressShippingPrice float64  `json:"expressShippingPrice"`
	CouponCode           *string  `json:"couponCode"`
	CouponDiscount       float64  `json:"couponDiscount"`
	TotalPrice           float64  `json:"totalPrice"`
	CouponError          *string  `json:"couponError,omitempty"`
	PromotionText        string   `json:"promotionText,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
}

// UpdateOrderStatusRequest представляет запрос на обновление статуса заказа
type UpdateOrderStatusRequest struct {
	Status         OrderStatus `json:"status"`
	TrackingNumber *string     `json:"trackingNumber,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
}

// PayOrderRequest представляет запрос на оплату заказа через PUT /orders/{id}/pay.
// Без полей подписи провайдера заказ не помечается оплаченным.
type PayOrderRequest struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	UpdateTime        string `json:"update_time"`
	EmailAddress      string `json:"email_address"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// OrderFilter задаёт фильтр выборки заказов
type OrderFilter struct {
	Status *OrderStatus
	Limit  int
	Offset int
}
