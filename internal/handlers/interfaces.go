package handlers

import (
	"context"
	"time"

	"storefront-payments/internal/models"
	"storefront-payments/internal/services"

	"github.com/google/uuid"
)

// ----- Orders -----

type OrderService interface {
	Quote(ctx context.Context, req *models.QuoteRequest) (*models.OrderQuote, error)
	CreateOrder(ctx context.Context, caller models.Caller, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, req *models.UpdateOrderStatusRequest) (*models.Order, error)
}

// OrderPayer отмечает заказ оплаченным только после проверки подписи провайдера
type OrderPayer interface {
	PayOrder(ctx context.Context, caller models.Caller, orderID uuid.UUID, req *models.PayOrderRequest) (*models.Order, error)
}

type OrderCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}

// ----- Coupons -----

type CouponService interface {
	ValidateCoupon(ctx context.Context, code string, subtotal float64) (*models.CouponQuote, error)
	RedeemCoupon(ctx context.Context, code string) error
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error)
	GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	ListCoupons(ctx context.Context) ([]*models.Coupon, error)
	UpdateCoupon(ctx context.Context, id uuid.UUID, req *models.UpdateCouponRequest) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, id uuid.UUID) error
}

// ----- Payments -----

type PaymentService interface {
	OrderPayer
	CreatePaymentIntent(ctx context.Context, caller models.Caller, req *models.CreatePaymentIntentRequest) (*models.PaymentIntent, error)
	VerifyPayment(ctx context.Context, caller models.Caller, req *models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*models.WebhookResult, error)
	Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResponse, error)
	GetPaymentDetails(ctx context.Context, paymentID string) (map[string]interface{}, error)
}

// ----- Settings -----

type SettingsService interface {
	GetShippingSettings(ctx context.Context) (*models.ShippingSettings, error)
	UpdateShippingRules(ctx context.Context, rules models.ShippingRules) (*models.ShippingSettings, error)
}

// ----- Rate limit -----

type RateLimiter interface {
	Allow(ctx context.Context, clientKey string) (services.RateLimitDecision, error)
	Usage(ctx context.Context, clientKey string) (*services.RateLimitUsage, error)
	Enabled() bool
	Window() time.Duration
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
