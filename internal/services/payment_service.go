package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/config"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/metrics"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"

	"github.com/google/uuid"
)

// Типы событий вебхука Razorpay
const (
	webhookPaymentCaptured   = "payment.captured"
	webhookPaymentFailed     = "payment.failed"
	webhookPaymentAuthorized = "payment.authorized"
)

// PaymentGateway операции платёжного провайдера. Реализуется gateway.Razorpay.
type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (map[string]interface{}, error)
	FetchPayment(ctx context.Context, paymentID string) (map[string]interface{}, error)
	Refund(ctx context.Context, paymentID string, amount *int64) (map[string]interface{}, error)
}

// PaymentOrders переходы заказа, которые запускает платёжный сервис. Реализуется OrderService.
type PaymentOrders interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	AttachProviderOrder(ctx context.Context, orderID uuid.UUID, providerOrderID string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, conf models.PaymentConfirmation) (*models.Order, error)
	MarkPaidByProviderOrder(ctx context.Context, conf models.PaymentConfirmation) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, providerOrderID, paymentID, reason string) (bool, error)
	MarkRefunded(ctx context.Context, orderID uuid.UUID, paymentID string) (*models.Order, error)
}

// DedupStore хранит ключи уже обработанных вебхуков. Реализуется redis.Client.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// PaymentService создаёт платежи у провайдера, проверяет подписи и обрабатывает вебхуки.
type PaymentService struct {
	gateway  PaymentGateway
	orders   PaymentOrders
	dedup    DedupStore
	cfg      *config.PaymentsConfig
	events   EventPublisher
	log      *logger.Logger
	metrics  *metrics.Metrics
	dedupTTL time.Duration
	now      func() time.Time
}

// NewPaymentService создаёт платёжный сервис. dedup и events могут быть nil.
func NewPaymentService(gw PaymentGateway, orders PaymentOrders, dedup DedupStore, cfg *config.PaymentsConfig,
	events EventPublisher, log *logger.Logger, m *metrics.Metrics) *PaymentService {
	ttl := time.Duration(cfg.WebhookDedupTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &PaymentService{
		gateway:  gw,
		orders:   orders,
		dedup:    dedup,
		cfg:      cfg,
		events:   events,
		log:      log,
		metrics:  m,
		dedupTTL: ttl,
		now:      time.Now,
	}
}

// CreatePaymentIntent создаёт заказ у провайдера с автоматическим списанием.
// Если указан orderId, сумма берётся из серверного итога заказа, а не из запроса.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, caller models.Caller, req *models.CreatePaymentIntentRequest) (*models.PaymentIntent, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}
	receipt := strings.TrimSpace(req.Receipt)
	amount := req.Amount

	var order *models.Order
	if req.OrderID != nil {
		var err error
		order, err = s.ownedOrder(ctx, caller, *req.OrderID)
		if err != nil {
			return nil, err
		}
		if order.IsPaid {
			return nil, apperror.Conflict("Order is already paid", nil)
		}
		amount = order.TotalPrice
		if receipt == "" {
			receipt = order.OrderNumber
		}
	}

	minor := gateway.ToMinorUnits(amount)
	if amount <= 0 || minor <= 0 {
		return nil, apperror.Validation("Invalid amount", nil)
	}
	if receipt == "" {
		receipt = fmt.Sprintf("receipt_%d", s.now().UnixMilli())
	}

	var notes map[string]string
	if order != nil {
		notes = map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
		}
	}

	body, err := s.gateway.CreateOrder(ctx, minor, currency, receipt, notes)
	if err != nil {
		return nil, apperror.WithCode(apperror.Gateway("Failed to create payment order", err), apperror.CodeGatewayError)
	}
	providerOrderID := gateway.StringField(body, "id")
	if providerOrderID == "" {
		return nil, apperror.WithCode(apperror.Gateway("Failed to create payment order", nil), apperror.CodeGatewayError)
	}

	if order != nil {
		if err := s.orders.AttachProviderOrder(ctx, order.ID, providerOrderID); err != nil {
			return nil, err
		}
	}

	intent := &models.PaymentIntent{
		Success:  true,
		OrderID:  providerOrderID,
		Amount:   gateway.IntField(body, "amount"),
		Currency: gateway.StringField(body, "currency"),
		KeyID:    s.gateway.KeyID(),
	}
	if intent.Amount == 0 {
		intent.Amount = minor
	}
	if intent.Currency == "" {
		intent.Currency = currency
	}

	s.log.WithFields(map[string]interface{}{
		"provider_order_id": providerOrderID,
		"amount":            intent.Amount,
		"receipt":           receipt,
	}).Info("Payment order created")

	return intent, nil
}

// VerifyPayment проверяет подпись клиентского подтверждения и при наличии orderId помечает заказ оплаченным.
func (s *PaymentService) VerifyPayment(ctx context.Context, caller models.Caller, req *models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error) {
	result := models.PaymentResult{
		ID:           req.RazorpayPaymentID,
		Status:       "completed",
		EmailAddress: req.EmailAddress,
	}
	if _, err := s.verifyAndMarkPaid(ctx, caller, req.OrderID, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, result); err != nil {
		return nil, err
	}

	return &models.VerifyPaymentResponse{
		Success:   true,
		PaymentID: req.RazorpayPaymentID,
		Message:   "Payment verified successfully",
	}, nil
}

// PayOrder помечает заказ оплаченным через PUT /orders/{id}/pay. Принимается только подписанное подтверждение.
func (s *PaymentService) PayOrder(ctx context.Context, caller models.Caller, orderID uuid.UUID, req *models.PayOrderRequest) (*models.Order, error) {
	result := models.PaymentResult{
		ID:           req.RazorpayPaymentID,
		Status:       req.Status,
		UpdateTime:   req.UpdateTime,
		EmailAddress: req.EmailAddress,
	}
	return s.verifyAndMarkPaid(ctx, caller, &orderID, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, result)
}

func (s *PaymentService) verifyAndMarkPaid(ctx context.Context, caller models.Caller, orderID *uuid.UUID,
	providerOrderID, paymentID, signature string, result models.PaymentResult) (*models.Order, error) {
	providerOrderID = strings.TrimSpace(providerOrderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)

	if providerOrderID == "" || paymentID == "" || signature == "" {
		s.metrics.PaymentVerification("missing_data")
		return nil, apperror.WithCode(apperror.Validation("Missing payment verification details", nil), apperror.CodeMissingVerificationData)
	}

	if !VerifyPaymentSignature(providerOrderID, paymentID, signature, s.cfg.KeySecret) {
		s.metrics.PaymentVerification("invalid_signature")
		s.log.WithFields(map[string]interface{}{
			"provider_order_id": providerOrderID,
			"payment_id":        paymentID,
		}).Warn("Payment signature verification failed")
		return nil, apperror.WithCode(apperror.Signature("Invalid payment signature", nil), apperror.CodeInvalidSignature)
	}

	if orderID == nil {
		s.metrics.PaymentVerification("success")
		s.log.WithField("payment_id", paymentID).Info("Payment verified without local order")
		return nil, nil
	}

	if _, err := s.ownedOrder(ctx, caller, *orderID); err != nil {
		s.metrics.PaymentVerification("error")
		return nil, err
	}

	order, err := s.orders.MarkPaid(ctx, *orderID, models.PaymentConfirmation{
		ProviderOrderID:   providerOrderID,
		ProviderPaymentID: paymentID,
		Signature:         signature,
		Source:            models.PaymentSourceClient,
		Result:            result,
	})
	if err != nil {
		s.metrics.PaymentVerification("error")
		return nil, err
	}

	s.metrics.PaymentVerification("success")
	return order, nil
}

// HandleWebhook проверяет подпись тела и обрабатывает событие ровно один раз на платёж.
// Отклонённый вебхук возвращает Received=false без ошибки; ошибка означает инфраструктурный сбой,
// после которого провайдер может повторить доставку.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*models.WebhookResult, error) {
	if s.cfg.WebhookSecret == "" {
		s.metrics.WebhookEvent("", "rejected")
		s.log.Warn("Webhook rejected: webhook secret is not configured")
		return &models.WebhookResult{Received: false, Error: "Webhook secret is not configured"}, nil
	}
	if !VerifyWebhookSignature(body, strings.TrimSpace(signature), s.cfg.WebhookSecret) {
		s.metrics.WebhookEvent("", "invalid_signature")
		s.log.Warn("Webhook rejected: invalid signature")
		return &models.WebhookResult{Received: false, Error: "Invalid webhook signature"}, nil
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.metrics.WebhookEvent("", "invalid_payload")
		s.log.WithError(err).Warn("Webhook rejected: invalid payload")
		return &models.WebhookResult{Received: false, Error: "Invalid webhook payload"}, nil
	}

	payment := event.Payload.Payment.Entity
	logEntry := s.log.WithFields(map[string]interface{}{
		"event":             event.Event,
		"payment_id":        payment.ID,
		"provider_order_id": payment.OrderID,
	})
	logEntry.Info("Webhook event received")

	if payment.ID == "" {
		s.metrics.WebhookEvent(event.Event, "ignored")
		return &models.WebhookResult{Received: true, Event: event.Event}, nil
	}

	key := redis.WebhookEventKey(event.Event, payment.ID)
	if s.dedup != nil {
		first, err := s.dedup.SetNX(ctx, key, s.now().Unix(), s.dedupTTL)
		if err != nil {
			s.metrics.WebhookEvent(event.Event, "error")
			return nil, fmt.Errorf("failed to reserve webhook event: %w", err)
		}
		if !first {
			s.metrics.WebhookEvent(event.Event, "duplicate")
			logEntry.Info("Duplicate webhook event, skipping")
			return &models.WebhookResult{Received: true, Event: event.Event, Duplicate: true}, nil
		}
	}

	err := s.dispatchWebhook(ctx, event.Event, payment)
	switch {
	case err == nil:
		s.metrics.WebhookEvent(event.Event, "processed")
		return &models.WebhookResult{Received: true, Event: event.Event}, nil
	case isBusinessError(err):
		// Повтор доставки ничего не изменит: ключ дедупликации остаётся.
		s.metrics.WebhookEvent(event.Event, "rejected")
		logEntry.WithError(err).Warn("Webhook event rejected by order state")
		return &models.WebhookResult{Received: true, Event: event.Event, Error: err.Error()}, nil
	default:
		s.metrics.WebhookEvent(event.Event, "error")
		if s.dedup != nil {
			if delErr := s.dedup.Delete(ctx, key); delErr != nil {
				logEntry.WithError(delErr).Error("Failed to release webhook dedup key")
			}
		}
		return nil, err
	}
}

func (s *PaymentService) dispatchWebhook(ctx context.Context, event string, payment models.WebhookPayment) error {
	switch event {
	case webhookPaymentCaptured:
		result := models.PaymentResult{
			ID:           payment.ID,
			Status:       "completed",
			EmailAddress: payment.Email,
		}
		if payment.CreatedAt > 0 {
			result.UpdateTime = time.Unix(payment.CreatedAt, 0).UTC().Format(time.RFC3339)
		}
		_, err := s.orders.MarkPaidByProviderOrder(ctx, models.PaymentConfirmation{
			ProviderOrderID:   payment.OrderID,
			ProviderPaymentID: payment.ID,
			Source:            models.PaymentSourceWebhook,
			Result:            result,
		})
		return err

	case webhookPaymentFailed:
		reason := payment.ErrorDescription
		if reason == "" {
			reason = payment.ErrorCode
		}
		updated, err := s.orders.MarkPaymentFailed(ctx, payment.OrderID, payment.ID, reason)
		if err != nil {
			return err
		}
		if !updated && s.events != nil {
			// Заказ не найден или уже оплачен: событие всё равно нужно подписчикам.
			if err := s.events.PublishPaymentFailed(models.PaymentEventData{
				ProviderOrderID:   payment.OrderID,
				ProviderPaymentID: payment.ID,
				Reason:            reason,
				Amount:            gateway.FromMinorUnits(payment.Amount),
			}); err != nil {
				s.log.WithError(err).WithField("payment_id", payment.ID).Error("Failed to publish payment failed event")
			}
		}
		return nil

	case webhookPaymentAuthorized:
		s.log.WithField("payment_id", payment.ID).Info("Payment authorized, waiting for capture")
		return nil

	default:
		s.log.WithField("event", event).Info("Unhandled webhook event")
		return nil
	}
}

// Refund оформляет возврат у провайдера и затем переводит заказ в refunded.
// Ошибка провайдера не меняет локальное состояние.
func (s *PaymentService) Refund(ctx context.Context, req *models.RefundRequest) (*models.RefundResponse, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return nil, apperror.Validation("Payment ID is required", nil)
	}

	var amount *int64
	if req.Amount != nil {
		minor := gateway.ToMinorUnits(*req.Amount)
		if *req.Amount <= 0 || minor <= 0 {
			return nil, apperror.Validation("Invalid amount", nil)
		}
		amount = &minor
	}

	if req.OrderID != nil {
		order, err := s.orders.GetOrder(ctx, *req.OrderID)
		if err != nil {
			return nil, err
		}
		if order.RazorpayPaymentID == nil || *order.RazorpayPaymentID != paymentID {
			return nil, paymentMismatch("Payment does not belong to this order")
		}
	}

	refund, err := s.gateway.Refund(ctx, paymentID, amount)
	if err != nil {
		return nil, apperror.WithCode(apperror.Gateway("Refund processing failed", err), apperror.CodeRefundError)
	}

	s.log.WithFields(map[string]interface{}{
		"payment_id": paymentID,
		"refund_id":  gateway.StringField(refund, "id"),
		"amount":     gateway.IntField(refund, "amount"),
	}).Info("Refund processed")

	if req.OrderID != nil {
		if _, err := s.orders.MarkRefunded(ctx, *req.OrderID, paymentID); err != nil {
			s.log.WithError(err).WithFields(map[string]interface{}{
				"order_id":  *req.OrderID,
				"refund_id": gateway.StringField(refund, "id"),
			}).Error("Refund succeeded at provider but order status was not updated")
			return nil, err
		}
	}

	return &models.RefundResponse{
		Success: true,
		Message: "Refund processed successfully",
		Refund:  refund,
	}, nil
}

// GetPaymentDetails возвращает платёж из провайдера как есть
func (s *PaymentService) GetPaymentDetails(ctx context.Context, paymentID string) (map[string]interface{}, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, apperror.Validation("Payment ID is required", nil)
	}
	payment, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, apperror.WithCode(apperror.Gateway("Failed to fetch payment details", err), apperror.CodeGatewayError)
	}
	return payment, nil
}

// ownedOrder возвращает заказ, если он принадлежит вызывающему или вызывающий администратор.
// Чужой заказ выглядит как несуществующий.
func (s *PaymentService) ownedOrder(ctx context.Context, caller models.Caller, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin && order.User != caller.UserID {
		return nil, apperror.WithCode(apperror.NotFound("Order not found", nil), apperror.CodeNotFound)
	}
	return order, nil
}

// isBusinessError отличает отказ по состоянию заказа от инфраструктурного сбоя
func isBusinessError(err error) bool {
	return apperror.Is(err, apperror.KindConflict) ||
		apperror.Is(err, apperror.KindNotFound) ||
		apperror.Is(err, apperror.KindValidation)
}
