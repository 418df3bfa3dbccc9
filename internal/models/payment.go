package models

import "github.com/google/uuid"

// PaymentSource указывает, откуда пришло подтверждение платежа
type PaymentSource string

const (
	PaymentSourceClient  PaymentSource = "client"
	PaymentSourceWebhook PaymentSource = "webhook"
)

// PaymentConfirmation описывает проверенный платёж, который переводит заказ в оплаченный
type PaymentConfirmation struct {
	ProviderOrderID   string        `json:"providerOrderId"`
	ProviderPaymentID string        `json:"providerPaymentId"`
	Signature         string        `json:"-"`
	Source            PaymentSource `json:"source"`
	Result            PaymentResult `json:"result"`
}

// CreatePaymentIntentRequest описывает запрос на создание платёжного намерения
type CreatePaymentIntentRequest struct {
	Amount   float64    `json:"amount"`
	Currency string     `json:"currency,omitempty"`
	Receipt  string     `json:"receipt,omitempty"`
	OrderID  *uuid.UUID `json:"orderId,omitempty"`
}

// PaymentIntent описывает созданный у провайдера заказ. Amount в минорных единицах.
type PaymentIntent struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// VerifyPaymentRequest описывает запрос на проверку подписи платежа
type VerifyPaymentRequest struct {
	RazorpayOrderID   string     `json:"razorpay_order_id"`
	RazorpayPaymentID string     `json:"razorpay_payment_id"`
	RazorpaySignature string     `json:"razorpay_signature"`
	OrderID           *uuid.UUID `json:"orderId,omitempty"`
	EmailAddress      string     `json:"email_address,omitempty"`
}

// VerifyPaymentResponse описывает результат проверки
type VerifyPaymentResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RefundRequest описывает запрос на возврат. Amount в основных единицах, nil = полный возврат.
type RefundRequest struct {
	PaymentID string     `json:"paymentId"`
	Amount    *float64   `json:"amount,omitempty"`
	OrderID   *uuid.UUID `json:"orderId,omitempty"`
}

// RefundResponse описывает результат возврата
type RefundResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Refund  map[string]interface{} `json:"refund"`
}

// WebhookResult описывает ответ на вебхук провайдера
type WebhookResult struct {
	Received  bool   `json:"received"`
	Event     string `json:"event,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WebhookEvent описывает тело вебхука Razorpay
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

// WebhookPayload содержит сущность платежа
type WebhookPayload struct {
	Payment struct {
		Entity WebhookPayment `json:"entity"`
	} `json:"payment"`
}

// WebhookPayment описывает платёж из вебхука. Amount в минорных единицах.
type WebhookPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Email            string `json:"email"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

// Caller описывает пользователя, выполняющего запрос
type Caller struct {
	UserID  uuid.UUID
	IsAdmin bool
}
