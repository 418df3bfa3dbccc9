package gateway

import (
	"context"
	"errors"
	"fmt"

	"storefront-payments/internal/config"
	"storefront-payments/internal/logger"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured возвращается, если ключи провайдера не заданы
var ErrNotConfigured = errors.New("payment provider credentials are not configured")

var hundred = decimal.NewFromInt(100)

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay оборачивает SDK Razorpay: создание заказа, чтение платежа и возврат.
// Все суммы на входе и выходе в минорных единицах.
type Razorpay struct {
	orders   orderAPI
	payments paymentAPI
	keyID    string
	log      *logger.Logger
}

// NewRazorpay создает клиента провайдера. Без ключей возвращает клиента, отвечающего ErrNotConfigured.
func NewRazorpay(cfg *config.PaymentsConfig, log *logger.Logger) *Razorpay {
	r := &Razorpay{keyID: cfg.KeyID, log: log}
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return r
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	r.orders = client.Order
	r.payments = client.Payment
	return r
}

// KeyID возвращает публичный ключ для клиентского checkout
func (r *Razorpay) KeyID() string {
	return r.keyID
}

// CreateOrder создает заказ с автоматическим списанием
func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (map[string]interface{}, error) {
	if r.orders == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := r.orders.Create(data, nil)
	if err != nil {
		r.log.WithError(err).WithField("receipt", receipt).Error("Razorpay order creation failed")
		return nil, fmt.Errorf("razorpay order create: %w", err)
	}
	return body, nil
}

// FetchPayment читает платёж у провайдера
func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (map[string]interface{}, error) {
	if r.payments == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := r.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay payment fetch: %w", err)
	}
	return body, nil
}

// Refund оформляет возврат. amount == nil означает возврат всей невозвращённой суммы.
func (r *Razorpay) Refund(ctx context.Context, paymentID string, amount *int64) (map[string]interface{}, error) {
	if r.payments == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value int64
	if amount != nil {
		value = *amount
	} else {
		payment, err := r.payments.Fetch(paymentID, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("razorpay payment fetch: %w", err)
		}
		value = intField(payment, "amount") - intField(payment, "amount_refunded")
	}
	if value <= 0 {
		return nil, fmt.Errorf("nothing to refund for payment %s", paymentID)
	}

	body, err := r.payments.Refund(paymentID, int(value), nil, nil)
	if err != nil {
		r.log.WithError(err).WithField("payment_id", paymentID).Error("Razorpay refund failed")
		return nil, fmt.Errorf("razorpay refund: %w", err)
	}
	return body, nil
}

// ToMinorUnits переводит сумму из основных единиц в минорные (×100, округление половины вверх)
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits переводит минорные единицы в основные
func FromMinorUnits(amount int64) float64 {
	f, _ := decimal.NewFromInt(amount).Div(hundred).Float64()
	return f
}

// StringField достаёт строковое поле из ответа SDK
func StringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

// intField достаёт числовое поле: SDK декодирует JSON-числа как float64
func intField(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// IntField достаёт числовое поле из ответа SDK
func IntField(body map[string]interface{}, key string) int64 {
	return intField(body, key)
}
