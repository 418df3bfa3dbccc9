package services

import (
	"storefront-payments/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// toAmount округляет до копеек и возвращает float64 для JSON-моделей
func toAmount(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// itemsSubtotal считает Σ price×qty по снимкам позиций
func itemsSubtotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(money(item.Price).Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	return total
}

func itemCount(items []models.OrderItem) int {
	count := 0
	for _, item := range items {
		count += item.Qty
	}
	return count
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
