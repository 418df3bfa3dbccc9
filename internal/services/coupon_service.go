package services

import (
	"context"
	"database/sql"
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
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// querier покрывает *sql.DB, *database.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const couponColumns = `id, code, discount_type, discount_value, min_purchase, max_discount, usage_limit, used_count,
		valid_from, valid_until, is_active, description, created_at, updated_at`

// CouponService ведёт учёт купонов: проверка, погашение и администрирование.
type CouponService struct {
	db      *database.DB
	log     *logger.Logger
	events  EventPublisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewCouponService создаёт сервис купонов.
func NewCouponService(db *database.DB, log *logger.Logger, events EventPublisher, m *metrics.Metrics) *CouponService {
	return &CouponService{
		db:      db,
		log:     log,
		events:  events,
		metrics: m,
		now:     time.Now,
	}
}

// NormalizeCouponCode приводит код к каноническому виду
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCoupon проверяет применимость купона к сумме заказа и считает скидку.
func (s *CouponService) ValidateCoupon(ctx context.Context, code string, subtotal float64) (*models.CouponQuote, error) {
	return s.validateWith(ctx, s.db, code, money(subtotal))
}

func (s *CouponService) validateWith(ctx context.Context, q querier, code string, subtotal decimal.Decimal) (*models.CouponQuote, error) {
	code = NormalizeCouponCode(code)
	if code == "" {
		return nil, apperror.Validation("Coupon code is required", nil)
	}
	if subtotal.IsNegative() {
		return nil, apperror.Validation("orderTotal must be non-negative", nil)
	}

	coupon, err := s.getByCode(ctx, q, code)
	if err != nil {
		return nil, err
	}
	return evaluateCoupon(coupon, subtotal, s.now())
}

// evaluateCoupon выполняет проверки строго в порядке:
// активность, начало действия, окончание, лимит, минимальная сумма.
func evaluateCoupon(c *models.Coupon, subtotal decimal.Decimal, now time.Time) (*models.CouponQuote, error) {
	if !c.IsActive {
		return nil, apperror.WithCode(apperror.Conflict("This coupon is no longer active", nil), apperror.CodeInactive)
	}
	if now.Before(c.ValidFrom) {
		return nil, apperror.WithCode(apperror.Conflict("This coupon is not yet valid", nil), apperror.CodeNotYetValid)
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, apperror.WithCode(apperror.Conflict("This coupon has expired", nil), apperror.CodeExpired)
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return nil, apperror.WithCode(apperror.Conflict("This coupon has reached its usage limit", nil), apperror.CodeLimitReached)
	}
	minPurchase := money(c.MinPurchase)
	if subtotal.LessThan(minPurchase) {
		msg := fmt.Sprintf("Minimum purchase of ₹%s required to use this coupon", minPurchase.String())
		return nil, apperror.WithCode(apperror.Validation(msg, nil), apperror.CodeBelowMinimum)
	}

	return &models.CouponQuote{
		Code:           c.Code,
		DiscountType:   c.DiscountType,
		DiscountValue:  c.DiscountValue,
		DiscountAmount: toAmount(couponDiscount(c, subtotal)),
		Description:    c.Description,
	}, nil
}

// couponDiscount считает скидку: процент округляется до целых половиной вверх и ограничивается maxDiscount,
// итог никогда не превышает сумму заказа.
func couponDiscount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case models.DiscountTypePercentage:
		discount = subtotal.Mul(money(c.DiscountValue)).Div(hundred).Round(0)
		if c.MaxDiscount != nil {
			discount = minDecimal(discount, money(*c.MaxDiscount))
		}
	case models.DiscountTypeFixed:
		discount = money(c.DiscountValue)
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return minDecimal(discount, subtotal)
}

// RedeemCoupon атомарно увеличивает счётчик использования.
func (s *CouponService) RedeemCoupon(ctx context.Context, code string) error {
	code = NormalizeCouponCode(code)
	if code == "" {
		return apperror.Validation("Coupon code is required", nil)
	}
	if err := s.redeem(ctx, s.db, code); err != nil {
		return err
	}

	if s.events != nil {
		if err := s.events.PublishCouponRedeemed(code, nil); err != nil {
			s.log.WithError(err).WithField("coupon_code", code).Error("Failed to publish coupon redeemed event")
		}
	}
	return nil
}

// RedeemCouponTx погашает купон внутри транзакции оформления заказа.
func (s *CouponService) RedeemCouponTx(ctx context.Context, tx *sql.Tx, code string) error {
	return s.redeem(ctx, tx, NormalizeCouponCode(code))
}

func (s *CouponService) redeem(ctx context.Context, q querier, code string) error {
	// Проверка лимита и инкремент выполняются одним оператором.
	query := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`
	result, err := q.ExecContext(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to redeem coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		s.metrics.CouponRedemption("success")
		s.log.WithField("coupon_code", code).Info("Coupon redeemed")
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM coupons WHERE code = $1)", code).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check coupon existence: %w", err)
	}
	if !exists {
		s.metrics.CouponRedemption("not_found")
		return apperror.WithCode(apperror.NotFound("Coupon not found", nil), apperror.CodeNotFound)
	}
	s.metrics.CouponRedemption("limit_reached")
	return apperror.WithCode(apperror.Conflict("This coupon has reached its usage limit", nil), apperror.CodeLimitReached)
}

// CreateCoupon создаёт купон. Повторный код отклоняется.
func (s *CouponService) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	now := s.now()
	coupon := &models.Coupon{
		ID:            uuid.New(),
		Code:          NormalizeCouponCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinPurchase:   req.MinPurchase,
		MaxDiscount:   req.MaxDiscount,
		UsageLimit:    req.UsageLimit,
		ValidFrom:     now,
		ValidUntil:    req.ValidUntil,
		IsActive:      true,
		Description:   strings.TrimSpace(req.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = *req.ValidFrom
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	if coupon.DiscountType == "" {
		coupon.DiscountType = models.DiscountTypePercentage
	}

	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_purchase, max_discount, usage_limit, used_count,
			valid_from, valid_until, is_active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query, coupon.ID, coupon.Code, coupon.DiscountType, coupon.DiscountValue, coupon.MinPurchase,
		coupon.MaxDiscount, coupon.UsageLimit, coupon.ValidFrom, coupon.ValidUntil, coupon.IsActive, coupon.Description,
		coupon.CreatedAt, coupon.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("Coupon code already exists", err)
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.log.WithField("coupon_code", coupon.Code).Info("Coupon created")
	return coupon, nil
}

// UpdateCoupon изменяет только перечисленные в запросе поля.
func (s *CouponService) UpdateCoupon(ctx context.Context, id uuid.UUID, req *models.UpdateCouponRequest) (*models.Coupon, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	coupon, err := scanCoupon(tx.QueryRowContext(ctx, "SELECT "+couponColumns+" FROM coupons WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}

	if err := applyCouponUpdate(coupon, req); err != nil {
		return nil, err
	}
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}
	coupon.UpdatedAt = s.now()

	query := `
		UPDATE coupons
		SET code = $1, discount_type = $2, discount_value = $3, min_purchase = $4, max_discount = $5, usage_limit = $6,
			valid_from = $7, valid_until = $8, is_active = $9, description = $10, updated_at = $11
		WHERE id = $12
	`
	if _, err := tx.ExecContext(ctx, query, coupon.Code, coupon.DiscountType, coupon.DiscountValue, coupon.MinPurchase,
		coupon.MaxDiscount, coupon.UsageLimit, coupon.ValidFrom, coupon.ValidUntil, coupon.IsActive, coupon.Description,
		coupon.UpdatedAt, coupon.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("Coupon code already exists", err)
		}
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit coupon update: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"coupon_id":   coupon.ID,
		"coupon_code": coupon.Code,
	}).Info("Coupon updated")
	return coupon, nil
}

func applyCouponUpdate(c *models.Coupon, req *models.UpdateCouponRequest) error {
	for _, field := range req.Clear {
		switch field {
		case "maxDiscount":
			c.MaxDiscount = nil
		case "usageLimit":
			c.UsageLimit = nil
		case "validUntil":
			c.ValidUntil = nil
		default:
			return apperror.Validation(fmt.Sprintf("field %q cannot be cleared", field), nil)
		}
	}

	if req.Code != nil {
		c.Code = NormalizeCouponCode(*req.Code)
	}
	if req.DiscountType != nil {
		c.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		c.DiscountValue = *req.DiscountValue
	}
	if req.MinPurchase != nil {
		c.MinPurchase = *req.MinPurchase
	}
	if req.MaxDiscount != nil {
		c.MaxDiscount = req.MaxDiscount
	}
	if req.UsageLimit != nil {
		c.UsageLimit = req.UsageLimit
	}
	if req.ValidFrom != nil {
		c.ValidFrom = *req.ValidFrom
	}
	if req.ValidUntil != nil {
		c.ValidUntil = req.ValidUntil
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	return nil
}

func validateCoupon(c *models.Coupon) error {
	switch {
	case c.Code == "":
		return apperror.Validation("code is required", nil)
	case c.DiscountType != models.DiscountTypePercentage && c.DiscountType != models.DiscountTypeFixed:
		return apperror.Validation("discountType must be percentage or fixed", nil)
	case c.DiscountValue < 0:
		return apperror.Validation("discountValue must be non-negative", nil)
	case c.DiscountType == models.DiscountTypePercentage && c.DiscountValue > 100:
		return apperror.Validation("percentage discountValue must not exceed 100", nil)
	case c.MinPurchase < 0:
		return apperror.Validation("minPurchase must be non-negative", nil)
	case c.MaxDiscount != nil && *c.MaxDiscount <= 0:
		return apperror.Validation("maxDiscount must be positive; clear it to remove the cap", nil)
	case c.UsageLimit != nil && *c.UsageLimit < 1:
		return apperror.Validation("usageLimit must be at least 1; clear it for unlimited use", nil)
	case c.UsageLimit != nil && *c.UsageLimit < c.UsedCount:
		return apperror.Validation("usageLimit cannot be below usedCount", nil)
	case c.ValidUntil != nil && c.ValidUntil.Before(c.ValidFrom):
		return apperror.Validation("validUntil must be after validFrom", nil)
	}
	return nil
}

// DeleteCoupon удаляет купон. Заказы хранят код строкой и не затрагиваются.
func (s *CouponService) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM coupons WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.WithCode(apperror.NotFound("Coupon not found", nil), apperror.CodeNotFound)
	}
	s.log.WithField("coupon_id", id).Info("Coupon deleted")
	return nil
}

// GetCoupon возвращает купон по ID.
func (s *CouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return scanCoupon(s.db.QueryRowContext(ctx, "SELECT "+couponColumns+" FROM coupons WHERE id = $1", id))
}

// ListCoupons возвращает купоны, новые первыми.
func (s *CouponService) ListCoupons(ctx context.Context) ([]*models.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+couponColumns+" FROM coupons ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	coupons := make([]*models.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupons: %w", err)
	}
	return coupons, nil
}

func (s *CouponService) getByCode(ctx context.Context, q querier, code string) (*models.Coupon, error) {
	return scanCoupon(q.QueryRowContext(ctx, "SELECT "+couponColumns+" FROM coupons WHERE code = $1", code))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	c := &models.Coupon{}
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinPurchase, &c.MaxDiscount, &c.UsageLimit,
		&c.UsedCount, &c.ValidFrom, &c.ValidUntil, &c.IsActive, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.WithCode(apperror.NotFound("Invalid coupon code", err), apperror.CodeNotFound)
		}
		return nil, fmt.Errorf("failed to scan coupon: %w", err)
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
