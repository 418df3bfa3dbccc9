package handlers

import (
	"io"
	"net/http"

	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"

	"github.com/go-chi/chi/v5"
)

// HeaderWebhookSignature содержит подпись тела вебхука
const HeaderWebhookSignature = "X-Razorpay-Signature"

// PaymentHandler обслуживает платёжные эндпоинты
type PaymentHandler struct {
	payments PaymentService
	log      *logger.Logger
}

// NewPaymentHandler создает обработчик платежей
func NewPaymentHandler(payments PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// CreateIntent создает заказ у провайдера
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePaymentIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caller, _ := CallerFrom(r.Context())
	intent, err := h.payments.CreatePaymentIntent(r.Context(), caller, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create payment order")
		return
	}

	writeJSONResponse(w, http.StatusOK, intent)
}

// Verify проверяет подпись платежа и отмечает заказ оплаченным
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeVerifyError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	caller, _ := CallerFrom(r.Context())
	resp, err := h.payments.VerifyPayment(r.Context(), caller, &req)
	if err != nil {
		writeMappedError(w, h.log, err, "Payment verification failed", writeVerifyError)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// Webhook принимает уведомления провайдера. Подпись считается по сырому телу.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.WebhookResult{Error: "Invalid webhook payload"})
		return
	}

	result, err := h.payments.HandleWebhook(r.Context(), body, r.Header.Get(HeaderWebhookSignature))
	if err != nil {
		// 5xx заставляет провайдера повторить доставку
		h.log.WithError(err).Error("Webhook processing failed")
		writeJSONResponse(w, http.StatusInternalServerError, models.WebhookResult{Error: "Webhook processing failed"})
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

// Refund оформляет возврат платежа
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req models.RefundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.payments.Refund(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Refund processing failed")
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// GetPayment возвращает платёж у провайдера
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if paymentID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Payment ID is required")
		return
	}

	payment, err := h.payments.GetPaymentDetails(r.Context(), paymentID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to fetch payment details")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"payment": payment,
	})
}

// VerifyErrorResponse тело отказа проверки платежа, клиент смотрит на success
type VerifyErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeVerifyError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSONResponse(w, statusCode, VerifyErrorResponse{Success: false, Message: message, Code: code})
}
