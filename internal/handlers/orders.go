package handlers

import (
	"net/http"
	"strconv"
	"time"

	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"

	"github.com/google/uuid"
)

const (
	defaultOrdersLimit = 50
	maxOrdersLimit     = 100
)

// OrderHandler представляет обработчик заказов
type OrderHandler struct {
	orders   OrderService
	payer    OrderPayer
	cache    OrderCache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewOrderHandler создает новый обработчик заказов. cache может быть nil.
func NewOrderHandler(orders OrderService, payer OrderPayer, cache OrderCache, cacheTTL time.Duration, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		payer:    payer,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

// CreateOrder создает новый заказ. Суммы считаются на сервере.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	var req models.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), caller, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create order")
		return
	}

	h.cacheOrder(r, order)
	writeJSONResponse(w, http.StatusCreated, order)
}

// Quote рассчитывает суммы заказа без сохранения
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req models.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	quote, err := h.orders.Quote(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to calculate order total")
		return
	}

	writeJSONResponse(w, http.StatusOK, quote)
}

// GetOrder получает заказ по ID. Доступен владельцу и администратору.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.loadOrder(r, orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get order")
		return
	}

	caller, _ := CallerFrom(r.Context())
	if !canAccessOrder(caller, order) {
		writeErrorResponse(w, http.StatusForbidden, "Not authorized to view this order")
		return
	}

	writeJSONResponse(w, http.StatusOK, order)
}

// GetMyOrders возвращает заказы текущего пользователя
func (h *OrderHandler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	orders, err := h.orders.GetUserOrders(r.Context(), caller.UserID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get orders")
		return
	}

	writeJSONResponse(w, http.StatusOK, orders)
}

// GetOrders получает список заказов с фильтрацией
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.OrderFilter{Limit: defaultOrdersLimit}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.OrderStatus(statusStr)
		if !status.Valid() {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid order status")
			return
		}
		filter.Status = &status
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxOrdersLimit {
			filter.Limit = l
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	orders, err := h.orders.GetOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get orders")
		return
	}

	writeJSONResponse(w, http.StatusOK, orders)
}

// PayOrder отмечает заказ оплаченным после проверки подписи провайдера
func (h *OrderHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req models.PayOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caller, _ := CallerFrom(r.Context())
	order, err := h.payer.PayOrder(r.Context(), caller, orderID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update order payment")
		return
	}

	h.invalidateOrder(r, orderID)
	writeJSONResponse(w, http.StatusOK, order)
}

// DeliverOrder отмечает заказ доставленным и списывает остатки
func (h *OrderHandler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.orders.MarkDelivered(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to mark order as delivered")
		return
	}

	h.invalidateOrder(r, orderID)
	h.log.WithField("order_id", orderID).Info("Order marked as delivered")
	writeJSONResponse(w, http.StatusOK, order)
}

// UpdateOrderStatus обновляет статус заказа
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), orderID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update order status")
		return
	}

	h.invalidateOrder(r, orderID)
	h.log.WithField("order_id", orderID).WithField("new_status", order.Status).Info("Order status updated")
	writeJSONResponse(w, http.StatusOK, order)
}

// loadOrder читает заказ из кеша, при промахе из базы
func (h *OrderHandler) loadOrder(r *http.Request, orderID uuid.UUID) (*models.Order, error) {
	if h.cache != nil {
		var cached models.Order
		if err := h.cache.Get(r.Context(), redis.OrderKey(orderID.String()), &cached); err == nil {
			h.log.WithField("order_id", orderID).Debug("Order retrieved from cache")
			return &cached, nil
		}
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	h.cacheOrder(r, order)
	return order, nil
}

func (h *OrderHandler) cacheOrder(r *http.Request, order *models.Order) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(r.Context(), redis.OrderKey(order.ID.String()), order, h.cacheTTL); err != nil {
		h.log.WithError(err).WithField("order_id", order.ID).Warn("Failed to cache order")
	}
}

func (h *OrderHandler) invalidateOrder(r *http.Request, orderID uuid.UUID) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(r.Context(), redis.OrderKey(orderID.String())); err != nil {
		h.log.WithError(err).WithField("order_id", orderID).Warn("Failed to invalidate order cache")
	}
}
