package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/database"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/metrics"
	"storefront-payments/internal/models"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, order_number, order_items, shipping_address, payment_method, payment_result,
		razorpay_order_id, razorpay_payment_id, razorpay_signature, items_price, shipping_price, coupon_code,
		coupon_discount, total_price, status, tracking_number, notes, is_paid, paid_at, is_delivered, delivered_at,
		created_at, updated_at`

const defaultPaymentMethod = "Card"

// ShippingRulesProvider отдаёт действующие правила доставки
type ShippingRulesProvider interface {
	GetShippingRules(ctx context.Context) (models.ShippingRules, error)
}

// StockApplier списывает остатки в транзакции доставки
type StockApplier interface {
	ApplyOrderTx(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, items []models.OrderItem) error
}

// OrderService представляет сервис для работы с заказами
type OrderService struct {
	db        *database.DB
	log       *logger.Logger
	coupons   *CouponService
	settings  ShippingRulesProvider
	inventory StockApplier
	events    EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewOrderService создает новый экземпляр сервиса заказов
func NewOrderService(db *database.DB, log *logger.Logger, coupons *CouponService, settings ShippingRulesProvider,
	inventory StockApplier, events EventPublisher, m *metrics.Metrics) *OrderService {
	return &OrderService{
		db:        db,
		log:       log,
		coupons:   coupons,
		settings:  settings,
		inventory: inventory,
		events:    events,
		metrics:   m,
		now:       time.Now,
	}
}

// orderTotals итоговые суммы заказа, посчитанные на сервере
type orderTotals struct {
	count    int
	subtotal decimal.Decimal
	shipping decimal.Decimal
	express  decimal.Decimal
	discount decimal.Decimal
	rules    models.ShippingRules
}

func (t orderTotals) total() decimal.Decimal {
	return t.subtotal.Add(t.shipping).Sub(t.discount)
}

func (s *OrderService) baseTotals(ctx context.Context, items []models.OrderItem) (orderTotals, error) {
	rules, err := s.settings.GetShippingRules(ctx)
	if err != nil {
		return orderTotals{}, fmt.Errorf("failed to load shipping rules: %w", err)
	}
	subtotal := itemsSubtotal(items)
	return orderTotals{
		count:    itemCount(items),
		subtotal: subtotal,
		shipping: shippingPrice(items, subtotal, rules),
		express:  expressShippingPrice(rules),
		discount: decimal.Zero,
		rules:    rules,
	}, nil
}

// Quote считает суммы заказа без сохранения и без погашения купона.
// Отказ по купону не считается ошибкой: скидка равна нулю, причина в CouponError.
func (s *OrderService) Quote(ctx context.Context, req *models.QuoteRequest) (*models.OrderQuote, error) {
	if err := validateOrderItems(req.OrderItems); err != nil {
		return nil, err
	}

	totals, err := s.baseTotals(ctx, req.OrderItems)
	if err != nil {
		return nil, err
	}

	quote := &models.OrderQuote{
		ItemCount:     totals.count,
		PromotionText: totals.rules.PromotionText,
	}

	if code := couponCodeOf(req.CouponCode); code != "" {
		if s.coupons == nil {
			return nil, apperror.Validation("coupons are not supported", nil)
		}
		couponQuote, err := s.coupons.validateWith(ctx, s.db, code, totals.subtotal)
		switch {
		case err == nil:
			totals.discount = money(couponQuote.DiscountAmount)
			quote.CouponCode = &couponQuote.Code
		case isBusinessError(err):
			msg := err.Error()
			quote.CouponError = &msg
		default:
			return nil, err
		}
	}

	quote.ItemsPrice = toAmount(totals.subtotal)
	quote.ShippingPrice = toAmount(totals.shipping)
	quote.ExpressShippingPrice = toAmount(totals.express)
	quote.CouponDiscount = toAmount(totals.discount)
	quote.TotalPrice = toAmount(totals.total())
	return quote, nil
}

// CreateOrder создает новый заказ. Суммы считаются на сервере, присланные клиентом значения только сверяются.
// Купон проверяется и погашается в той же транзакции, что и вставка заказа.
func (s *OrderService) CreateOrder(ctx context.Context, caller models.Caller, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := validateOrderItems(req.OrderItems); err != nil {
		return nil, err
	}

	totals, err := s.baseTotals(ctx, req.OrderItems)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var couponCode *string
	if code := couponCodeOf(req.CouponCode); code != "" {
		if s.coupons == nil {
			return nil, apperror.Validation("coupons are not supported", nil)
		}
		couponQuote, err := s.coupons.validateWith(ctx, tx, code, totals.subtotal)
		if err != nil {
			return nil, err
		}
		if err := s.coupons.RedeemCouponTx(ctx, tx, code); err != nil {
			return nil, err
		}
		totals.discount = money(couponQuote.DiscountAmount)
		couponCode = &couponQuote.Code
	}

	s.checkClientTotals(req, totals)

	now := s.now()
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = defaultPaymentMethod
	}
	order := &models.Order{
		ID:              uuid.New(),
		User:            caller.UserID,
		OrderNumber:     newOrderNumber(),
		OrderItems:      req.OrderItems,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   paymentMethod,
		ItemsPrice:      toAmount(totals.subtotal),
		ShippingPrice:   toAmount(totals.shipping),
		CouponCode:      couponCode,
		CouponDiscount:  toAmount(totals.discount),
		TotalPrice:      toAmount(totals.total()),
		Status:          models.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	items, err := json.Marshal(order.OrderItems)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order items: %w", err)
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipping address: %w", err)
	}

	query := `
		INSERT INTO orders (id, user_id, order_number, order_items, shipping_address, payment_method, items_price,
			shipping_price, coupon_code, coupon_discount, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, query, order.ID, order.User, order.OrderNumber, items, address, order.PaymentMethod,
		order.ItemsPrice, order.ShippingPrice, order.CouponCode, order.CouponDiscount, order.TotalPrice, order.Status,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.User,
		"total_price":  order.TotalPrice,
	}).Info("Order created successfully")

	s.publish("order created", order.ID, func(p EventPublisher) error { return p.PublishOrderCreated(order) })
	if couponCode != nil {
		s.publish("coupon redeemed", order.ID, func(p EventPublisher) error {
			return p.PublishCouponRedeemed(*couponCode, &order.ID)
		})
	}

	return order, nil
}

// checkClientTotals сверяет присланные клиентом суммы с серверными и пишет расхождения в лог
func (s *OrderService) checkClientTotals(req *models.CreateOrderRequest, totals orderTotals) {
	fields := map[string]interface{}{}
	if !money(req.ItemsPrice).Equal(totals.subtotal.Round(2)) {
		fields["client_items_price"] = req.ItemsPrice
		fields["items_price"] = toAmount(totals.subtotal)
	}
	if req.ShippingPrice != nil && !money(*req.ShippingPrice).Equal(totals.shipping.Round(2)) {
		fields["client_shipping_price"] = *req.ShippingPrice
		fields["shipping_price"] = toAmount(totals.shipping)
	}
	if req.CouponDiscount != nil && !money(*req.CouponDiscount).Equal(totals.discount.Round(2)) {
		fields["client_coupon_discount"] = *req.CouponDiscount
		fields["coupon_discount"] = toAmount(totals.discount)
	}
	if !money(req.TotalPrice).Equal(totals.total().Round(2)) {
		fields["client_total_price"] = req.TotalPrice
		fields["total_price"] = toAmount(totals.total())
	}
	if len(fields) > 0 {
		s.log.WithFields(fields).Warn("Client order totals differ from server totals, using server values")
	}
}

// GetOrder получает заказ по ID
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, s.db, "SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID)
}

// GetOrders получает список заказов с фильтром по статусу
func (s *OrderService) GetOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders"
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.listOrders(ctx, query, args...)
}

// GetUserOrders возвращает заказы пользователя, новые первыми
func (s *OrderService) GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return s.listOrders(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (s *OrderService) listOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// AttachProviderOrder запоминает ID заказа провайдера на неоплаченном заказе
func (s *OrderService) AttachProviderOrder(ctx context.Context, orderID uuid.UUID, providerOrderID string) error {
	query := `
		UPDATE orders SET razorpay_order_id = $2, updated_at = $3
		WHERE id = $1 AND NOT is_paid
	`
	result, err := s.db.ExecContext(ctx, query, orderID, providerOrderID, s.now())
	if err != nil {
		return fmt.Errorf("failed to attach provider order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.Conflict("Order is already paid or does not exist", nil)
	}
	return nil
}

// MarkPaid помечает заказ оплаченным. Вызывается только после проверки подписи.
// Повторный вызов с тем же платежом возвращает заказ без повторных эффектов,
// другой платёж для уже оплаченного заказа отклоняется.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID, conf models.PaymentConfirmation) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if order.IsPaid {
		if order.RazorpayPaymentID != nil && *order.RazorpayPaymentID == conf.ProviderPaymentID {
			s.log.WithFields(map[string]interface{}{
				"order_id":   orderID,
				"payment_id": conf.ProviderPaymentID,
			}).Info("Order already paid with this payment, skipping")
			return order, nil
		}
		return nil, paymentMismatch("Order is already paid with a different payment")
	}
	// оплата принимается только по заказу провайдера, созданному для этого заказа на его серверную сумму
	if order.RazorpayOrderID == nil || *order.RazorpayOrderID == "" {
		return nil, paymentMismatch("No payment was initiated for this order")
	}
	if *order.RazorpayOrderID != conf.ProviderOrderID {
		return nil, paymentMismatch("Payment does not belong to this order")
	}

	if err := recordVerification(ctx, tx, conf, &orderID, "paid"); err != nil {
		return nil, err
	}

	now := s.now()
	result := conf.Result
	if result.ID == "" {
		result.ID = conf.ProviderPaymentID
	}
	if result.Status == "" {
		result.Status = "completed"
	}
	if result.UpdateTime == "" {
		result.UpdateTime = now.UTC().Format(time.RFC3339)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment result: %w", err)
	}

	query := `
		UPDATE orders
		SET is_paid = TRUE, paid_at = $2, razorpay_order_id = $3, razorpay_payment_id = $4, razorpay_signature = $5,
			payment_result = $6, updated_at = $2
		WHERE id = $1 AND NOT is_paid
	`
	if _, err := tx.ExecContext(ctx, query, orderID, now, conf.ProviderOrderID, conf.ProviderPaymentID, conf.Signature, resultJSON); err != nil {
		if isUniqueViolation(err) {
			return nil, paymentMismatch("Payment is already applied to another order")
		}
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.IsPaid = true
	order.PaidAt = &now
	order.RazorpayOrderID = &conf.ProviderOrderID
	order.RazorpayPaymentID = &conf.ProviderPaymentID
	order.RazorpaySignature = &conf.Signature
	order.PaymentResult = &result
	order.UpdatedAt = now

	s.log.WithFields(map[string]interface{}{
		"order_id":   order.ID,
		"payment_id": conf.ProviderPaymentID,
		"source":     conf.Source,
	}).Info("Order marked as paid")

	s.publish("order paid", order.ID, func(p EventPublisher) error { return p.PublishOrderPaid(order) })
	return order, nil
}

// MarkPaidByProviderOrder помечает оплаченным заказ, найденный по ID заказа провайдера.
// Неизвестный заказ провайдера не ошибка: возвращается nil, nil.
func (s *OrderService) MarkPaidByProviderOrder(ctx context.Context, conf models.PaymentConfirmation) (*models.Order, error) {
	var orderID uuid.UUID
	err := s.db.QueryRowContext(ctx, "SELECT id FROM orders WHERE razorpay_order_id = $1", conf.ProviderOrderID).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.WithField("provider_order_id", conf.ProviderOrderID).Warn("No order found for captured payment")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by provider order: %w", err)
	}
	return s.MarkPaid(ctx, orderID, conf)
}

// MarkPaymentFailed фиксирует неудачный платёж на неоплаченном заказе. Оплаченный заказ не изменяется.
func (s *OrderService) MarkPaymentFailed(ctx context.Context, providerOrderID, paymentID, reason string) (bool, error) {
	result, err := json.Marshal(models.PaymentResult{
		ID:         paymentID,
		Status:     "failed",
		UpdateTime: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode payment result: %w", err)
	}

	query := `
		UPDATE orders SET payment_result = $2, updated_at = NOW()
		WHERE razorpay_order_id = $1 AND NOT is_paid
		RETURNING id
	`
	var orderID uuid.UUID
	err = s.db.QueryRowContext(ctx, query, providerOrderID, result).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"order_id":          orderID,
		"provider_order_id": providerOrderID,
		"payment_id":        paymentID,
		"reason":            reason,
	}).Warn("Payment failed for order")

	s.publish("payment failed", orderID, func(p EventPublisher) error {
		return p.PublishPaymentFailed(models.PaymentEventData{
			ProviderOrderID:   providerOrderID,
			ProviderPaymentID: paymentID,
			OrderID:           &orderID,
			Reason:            reason,
		})
	})
	return true, nil
}

// MarkDelivered помечает заказ доставленным и списывает остатки ровно один раз.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.markDelivered(ctx, orderID, nil, nil)
}

// markDelivered единственный путь в состояние delivered. Списание остатков и флаг доставки
// фиксируются одной транзакцией: при любой ошибке не меняется ничего.
func (s *OrderService) markDelivered(ctx context.Context, orderID uuid.UUID, tracking, notes *string) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsDelivered {
		s.metrics.OrderDelivery("already_delivered")
		return nil, apperror.WithCode(apperror.Conflict("Order is already marked as delivered", nil), apperror.CodeAlreadyDelivered)
	}
	if order.Status == models.OrderStatusCancelled || order.Status == models.OrderStatusRefunded {
		s.metrics.OrderDelivery("invalid_transition")
		return nil, invalidTransition(order.Status, models.OrderStatusDelivered)
	}

	if s.inventory != nil {
		if err := s.inventory.ApplyOrderTx(ctx, tx, order.ID, order.OrderItems); err != nil {
			s.metrics.OrderDelivery("error")
			return nil, err
		}
	}

	now := s.now()
	query := `
		UPDATE orders
		SET is_delivered = TRUE, delivered_at = $2, status = $3,
			tracking_number = COALESCE($4, tracking_number), notes = COALESCE($5, notes), updated_at = $2
		WHERE id = $1 AND NOT is_delivered
	`
	result, err := tx.ExecContext(ctx, query, order.ID, now, models.OrderStatusDelivered, tracking, notes)
	if err != nil {
		s.metrics.OrderDelivery("error")
		return nil, fmt.Errorf("failed to mark order delivered: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		s.metrics.OrderDelivery("already_delivered")
		return nil, apperror.WithCode(apperror.Conflict("Order is already marked as delivered", nil), apperror.CodeAlreadyDelivered)
	}

	if err := tx.Commit(); err != nil {
		s.metrics.OrderDelivery("error")
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.metrics.OrderDelivery("success")

	order.IsDelivered = true
	order.DeliveredAt = &now
	order.Status = models.OrderStatusDelivered
	if tracking != nil {
		order.TrackingNumber = tracking
	}
	if notes != nil {
		order.Notes = notes
	}
	order.UpdatedAt = now

	s.log.WithFields(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}).Info("Order marked as delivered")

	s.publish("order delivered", order.ID, func(p EventPublisher) error { return p.PublishOrderDelivered(order) })
	return order, nil
}

// UpdateOrderStatus обновляет статус заказа по таблице переходов.
// delivered идёт через markDelivered, refunded доступен только через возврат.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if !req.Status.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("invalid status %q", req.Status), nil)
	}
	switch req.Status {
	case models.OrderStatusDelivered:
		return s.markDelivered(ctx, orderID, req.TrackingNumber, req.Notes)
	case models.OrderStatusRefunded:
		return nil, apperror.WithCode(apperror.Conflict("Refunds must go through the refund endpoint", nil), apperror.CodeInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	oldStatus := order.Status
	if oldStatus != req.Status && !canTransition(oldStatus, req.Status) {
		return nil, invalidTransition(oldStatus, req.Status)
	}

	now := s.now()
	query := `
		UPDATE orders
		SET status = $2, tracking_number = COALESCE($3, tracking_number), notes = COALESCE($4, notes), updated_at = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, orderID, req.Status, req.TrackingNumber, req.Notes, now); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Status = req.Status
	if req.TrackingNumber != nil {
		order.TrackingNumber = req.TrackingNumber
	}
	if req.Notes != nil {
		order.Notes = req.Notes
	}
	order.UpdatedAt = now

	s.log.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"old_status": oldStatus,
		"new_status": req.Status,
	}).Info("Order status updated")

	if oldStatus != req.Status {
		s.publish("order status changed", orderID, func(p EventPublisher) error {
			return p.PublishOrderStatusChanged(order, oldStatus)
		})
	}
	return order, nil
}

// MarkRefunded переводит заказ в refunded после успешного возврата у провайдера. Остатки не возвращаются.
func (s *OrderService) MarkRefunded(ctx context.Context, orderID uuid.UUID, paymentID string) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusRefunded {
		return order, nil
	}
	oldStatus := order.Status

	now := s.now()
	if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1",
		orderID, models.OrderStatusRefunded, now); err != nil {
		return nil, fmt.Errorf("failed to mark order refunded: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Status = models.OrderStatusRefunded
	order.UpdatedAt = now

	s.log.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"old_status": oldStatus,
		"payment_id": paymentID,
	}).Info("Order marked as refunded")

	s.publish("order refunded", orderID, func(p EventPublisher) error { return p.PublishOrderRefunded(order, paymentID) })
	return order, nil
}

// transitions допустимые ручные переходы статуса
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusCancelled},
}

func canTransition(from, to models.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to models.OrderStatus) error {
	msg := fmt.Sprintf("Cannot change order status from %s to %s", from, to)
	return apperror.WithCode(apperror.Conflict(msg, nil), apperror.CodeInvalidTransition)
}

func paymentMismatch(msg string) error {
	return apperror.WithCode(apperror.Conflict(msg, nil), apperror.CodePaymentMismatch)
}

func (s *OrderService) lockOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, tx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID)
}

func (s *OrderService) getOrder(ctx context.Context, q querier, query string, orderID uuid.UUID) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.WithCode(apperror.NotFound("Order not found", err), apperror.CodeNotFound)
	}
	return order, err
}

// recordVerification пишет проверенный платёж. Запись неизменяема: повтор игнорируется.
func recordVerification(ctx context.Context, q querier, conf models.PaymentConfirmation, orderID *uuid.UUID, outcome string) error {
	query := `
		INSERT INTO payment_verifications (provider_payment_id, provider_order_id, signature, order_id, source, outcome)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_payment_id) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, conf.ProviderPaymentID, conf.ProviderOrderID, conf.Signature, orderID,
		conf.Source, outcome); err != nil {
		return fmt.Errorf("failed to record payment verification: %w", err)
	}
	return nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var items, address, paymentResult []byte
	err := row.Scan(
		&order.ID, &order.User, &order.OrderNumber, &items, &address, &order.PaymentMethod, &paymentResult,
		&order.RazorpayOrderID, &order.RazorpayPaymentID, &order.RazorpaySignature, &order.ItemsPrice,
		&order.ShippingPrice, &order.CouponCode, &order.CouponDiscount, &order.TotalPrice, &order.Status,
		&order.TrackingNumber, &order.Notes, &order.IsPaid, &order.PaidAt, &order.IsDelivered, &order.DeliveredAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal(items, &order.OrderItems); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	if len(paymentResult) > 0 {
		order.PaymentResult = &models.PaymentResult{}
		if err := json.Unmarshal(paymentResult, order.PaymentResult); err != nil {
			return nil, fmt.Errorf("failed to decode payment result: %w", err)
		}
	}
	return order, nil
}

func validateOrderItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return apperror.Validation("No order items", nil)
	}
	for i, item := range items {
		if item.Product == uuid.Nil {
			return apperror.Validation(fmt.Sprintf("orderItems[%d].product is required", i), nil)
		}
		if item.Qty <= 0 {
			return apperror.Validation(fmt.Sprintf("orderItems[%d].qty must be positive", i), nil)
		}
		if item.Price < 0 {
			return apperror.Validation(fmt.Sprintf("orderItems[%d].price must be non-negative", i), nil)
		}
	}
	return nil
}

func couponCodeOf(code *string) string {
	if code == nil {
		return ""
	}
	return NormalizeCouponCode(*code)
}

// newOrderNumber возвращает номер вида ORD-<ULID>: упорядочен по времени и уникален при параллельном создании
func newOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

func (s *OrderService) publish(what string, orderID uuid.UUID, fn func(EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := fn(s.events); err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Errorf("Failed to publish %s event", what)
	}
}
