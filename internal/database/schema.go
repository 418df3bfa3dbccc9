package database

import (
	"context"
	"fmt"
)

// schema описывает таблицы ядра: купоны, настройки, остатки, заказы и журналы идемпотентности.
// Выполняется идемпотентно (IF NOT EXISTS).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS coupons (
		id             UUID PRIMARY KEY,
		code           TEXT NOT NULL UNIQUE,
		discount_type  TEXT NOT NULL CHECK (discount_type IN ('percentage', 'fixed')),
		discount_value NUMERIC(12,2) NOT NULL CHECK (discount_value >= 0),
		min_purchase   NUMERIC(12,2) NOT NULL DEFAULT 0,
		max_discount   NUMERIC(12,2),
		usage_limit    INTEGER,
		used_count     INTEGER NOT NULL DEFAULT 0,
		valid_from     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		valid_until    TIMESTAMPTZ,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		description    TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (usage_limit IS NULL OR used_count <= usage_limit)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		shipping   JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL,
		count_in_stock INTEGER NOT NULL DEFAULT 0 CHECK (count_in_stock >= 0),
		status         TEXT NOT NULL DEFAULT 'active',
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS product_variants (
		id         UUID PRIMARY KEY,
		product_id UUID NOT NULL REFERENCES products(id),
		size       TEXT NOT NULL DEFAULT '',
		color      TEXT NOT NULL DEFAULT '',
		stock      INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		sku        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                  UUID PRIMARY KEY,
		user_id             UUID NOT NULL,
		order_number        TEXT NOT NULL UNIQUE,
		order_items         JSONB NOT NULL,
		shipping_address    JSONB NOT NULL,
		payment_method      TEXT NOT NULL DEFAULT 'Card',
		items_price         NUMERIC(12,2) NOT NULL,
		shipping_price      NUMERIC(12,2) NOT NULL,
		coupon_code         TEXT,
		coupon_discount     NUMERIC(12,2) NOT NULL DEFAULT 0,
		total_price         NUMERIC(12,2) NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		tracking_number     TEXT,
		notes               TEXT,
		razorpay_order_id   TEXT,
		razorpay_payment_id TEXT UNIQUE,
		razorpay_signature  TEXT,
		payment_result      JSONB,
		is_paid             BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at             TIMESTAMPTZ,
		is_delivered        BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at        TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (coupon_discount <= items_price),
		CHECK (is_delivered = (delivered_at IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_razorpay_order_id ON orders (razorpay_order_id)`,
	`CREATE TABLE IF NOT EXISTS payment_verifications (
		provider_payment_id TEXT PRIMARY KEY,
		provider_order_id   TEXT NOT NULL,
		signature           TEXT NOT NULL DEFAULT '',
		order_id            UUID,
		source              TEXT NOT NULL,
		outcome             TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS order_stock_movements (
		order_id   UUID NOT NULL REFERENCES orders(id),
		item_index INTEGER NOT NULL,
		product_id UUID NOT NULL,
		quantity   INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (order_id, item_index)
	)`,
}

// Migrate создаёт недостающие таблицы
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
