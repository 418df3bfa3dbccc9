package services

import (
	"storefront-payments/internal/models"

	"github.com/shopspring/decimal"
)

// CalculateShippingPrice возвращает стоимость стандартной доставки.
// Доставка бесплатна, если сумма достигла порога (при включённом пороге)
// или количество единиц товара достигло buyXItems (при включённой акции).
func CalculateShippingPrice(items []models.OrderItem, subtotal float64, rules models.ShippingRules) float64 {
	return toAmount(shippingPrice(items, money(subtotal), rules))
}

func shippingPrice(items []models.OrderItem, subtotal decimal.Decimal, rules models.ShippingRules) decimal.Decimal {
	if isFreeShipping(items, subtotal, rules) {
		return decimal.Zero
	}
	rate := money(rules.StandardRate)
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}

func isFreeShipping(items []models.OrderItem, subtotal decimal.Decimal, rules models.ShippingRules) bool {
	if rules.IsFreeShippingEnabled && subtotal.GreaterThanOrEqual(money(rules.FreeShippingThreshold)) {
		return true
	}
	if rules.BuyXGetFreeEnabled && itemCount(items) >= rules.BuyXItems {
		return true
	}
	return false
}

// expressShippingPrice отдаётся только для отображения в расчёте
func expressShippingPrice(rules models.ShippingRules) decimal.Decimal {
	rate := money(rules.ExpressRate)
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}
