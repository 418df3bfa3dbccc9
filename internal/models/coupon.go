package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType описывает тип скидки купона
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Coupon представляет купон. Код хранится в верхнем регистре.
type Coupon struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Code          string       `json:"code" db:"code"`
	DiscountType  DiscountType `json:"discountType" db:"discount_type"`
	DiscountValue float64      `json:"discountValue" db:"discount_value"`
	MinPurchase   float64      `json:"minPurchase" db:"min_purchase"`
	MaxDiscount   *float64     `json:"maxDiscount" db:"max_discount"`
	UsageLimit    *int         `json:"usageLimit" db:"usage_limit"`
	UsedCount     int          `json:"usedCount" db:"used_count"`
	ValidFrom     time.Time    `json:"validFrom" db:"valid_from"`
	ValidUntil    *time.Time   `json:"validUntil" db:"valid_until"`
	IsActive      bool         `json:"isActive" db:"is_active"`
	Description   string       `json:"description" db:"description"`
	CreatedAt     time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time    `json:"updatedAt" db:"updated_at"`
}

// CreateCouponRequest описывает запрос на создание купона
type CreateCouponRequest struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discountType"`
	DiscountValue float64      `json:"discountValue"`
	MinPurchase   float64      `json:"minPurchase"`
	MaxDiscount   *float64     `json:"maxDiscount,omitempty"`
	UsageLimit    *int         `json:"usageLimit,omitempty"`
	ValidFrom     *time.Time   `json:"validFrom,omitempty"`
	ValidUntil    *time.Time   `json:"validUntil,omitempty"`
	IsActive      *bool        `json:"isActive,omitempty"` // nil = активен
	Description   string       `json:"description"`
}

// UpdateCouponRequest перечисляет изменяемые поля купона. usedCount не изменяется никогда.
// Clear сбрасывает необязательные поля: "maxDiscount", "usageLimit", "validUntil".
type UpdateCouponRequest struct {
	Code          *string       `json:"code,omitempty"`
	DiscountType  *DiscountType `json:"discountType,omitempty"`
	DiscountValue *float64      `json:"discountValue,omitempty"`
	MinPurchase   *float64      `json:"minPurchase,omitempty"`
	MaxDiscount   *float64      `json:"maxDiscount,omitempty"`
	UsageLimit    *int          `json:"usageLimit,omitempty"`
	ValidFrom     *time.Time    `json:"validFrom,omitempty"`
	ValidUntil    *time.Time    `json:"validUntil,omitempty"`
	IsActive      *bool         `json:"isActive,omitempty"`
	Description   *string       `json:"description,omitempty"`
	Clear         []string      `json:"clear,omitempty"`
}

// ValidateCouponRequest описывает запрос на проверку купона
type ValidateCouponRequest struct {
	Code       string  `json:"code"`
	OrderTotal float64 `json:"orderTotal"`
}

// CouponQuote описывает применимый купон и рассчитанную скидку
type CouponQuote struct {
	Code           string       `json:"code"`
	DiscountType   DiscountType `json:"discountType"`
	DiscountValue  float64      `json:"discountValue"`
	DiscountAmount float64      `json:"discountAmount"`
	Description    string       `json:"description"`
}

// ValidateCouponResponse описывает ответ на проверку купона
type ValidateCouponResponse struct {
	Valid  bool         `json:"valid"`
	Coupon *CouponQuote `json:"coupon"`
}

// UseCouponRequest описывает запрос на погашение купона
type UseCouponRequest struct {
	Code string `json:"code"`
}
