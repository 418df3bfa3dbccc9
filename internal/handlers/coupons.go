package handlers

import (
	"net/http"

	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"
)

// CouponHandler обслуживает проверку, погашение и администрирование купонов
type CouponHandler struct {
	coupons CouponService
	log     *logger.Logger
}

// NewCouponHandler создает обработчик купонов
func NewCouponHandler(coupons CouponService, log *logger.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, log: log}
}

// Validate проверяет купон для суммы корзины
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	quote, err := h.coupons.ValidateCoupon(r.Context(), req.Code, req.OrderTotal)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to validate coupon")
		return
	}

	writeJSONResponse(w, http.StatusOK, models.ValidateCouponResponse{Valid: true, Coupon: quote})
}

// Use погашает купон вне оформления заказа
func (h *CouponHandler) Use(w http.ResponseWriter, r *http.Request) {
	var req models.UseCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Code == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Coupon code is required")
		return
	}

	if err := h.coupons.RedeemCoupon(r.Context(), req.Code); err != nil {
		writeServiceError(w, h.log, err, "Failed to apply coupon")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Coupon applied successfully",
	})
}

// List возвращает все купоны
func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListCoupons(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list coupons")
		return
	}
	writeJSONResponse(w, http.StatusOK, coupons)
}

// Create создает купон
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	coupon, err := h.coupons.CreateCoupon(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create coupon")
		return
	}

	h.log.WithField("code", coupon.Code).Info("Coupon created")
	writeJSONResponse(w, http.StatusCreated, coupon)
}

// Get возвращает купон по ID
func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon ID")
		return
	}

	coupon, err := h.coupons.GetCoupon(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get coupon")
		return
	}
	writeJSONResponse(w, http.StatusOK, coupon)
}

// Update изменяет перечисленные поля купона. usedCount изменить нельзя.
func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon ID")
		return
	}

	var req models.UpdateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	coupon, err := h.coupons.UpdateCoupon(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update coupon")
		return
	}
	writeJSONResponse(w, http.StatusOK, coupon)
}

// Delete удаляет купон
func (h *CouponHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid coupon ID")
		return
	}

	if err := h.coupons.DeleteCoupon(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete coupon")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Coupon removed"})
}
