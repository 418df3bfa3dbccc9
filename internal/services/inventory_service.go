package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"

	"github.com/google/uuid"
)

// InventoryService списывает остатки при доставке заказа.
type InventoryService struct {
	log *logger.Logger
}

// NewInventoryService создаёт сервис остатков
func NewInventoryService(log *logger.Logger) *InventoryService {
	return &InventoryService{log: log}
}

// ApplyOrderTx списывает остатки по каждой позиции заказа внутри переданной транзакции.
// Позиция, уже записанная в order_stock_movements, повторно не списывается.
// Отсутствующий в каталоге товар пропускается.
func (s *InventoryService) ApplyOrderTx(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, items []models.OrderItem) error {
	for i, item := range items {
		applied, err := s.recordMovement(ctx, tx, orderID, i, item)
		if err != nil {
			return err
		}
		if !applied {
			s.log.WithFields(map[string]interface{}{
				"order_id":   orderID,
				"item_index": i,
			}).Debug("Stock movement already recorded, skipping")
			continue
		}

		if err := s.decrementProduct(ctx, tx, orderID, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *InventoryService) recordMovement(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, index int, item models.OrderItem) (bool, error) {
	query := `
		INSERT INTO order_stock_movements (order_id, item_index, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, item_index) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query, orderID, index, item.Product, item.Qty)
	if err != nil {
		return false, fmt.Errorf("failed to record stock movement: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *InventoryService) decrementProduct(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, item models.OrderItem) error {
	// Остаток не уходит ниже нуля, на нуле товар помечается out_of_stock.
	query := `
		UPDATE products
		SET count_in_stock = GREATEST(count_in_stock - $2, 0),
			status = CASE WHEN count_in_stock - $2 <= 0 THEN 'out_of_stock' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING count_in_stock
	`
	var remaining int
	err := tx.QueryRowContext(ctx, query, item.Product, item.Qty).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.WithFields(map[string]interface{}{
			"order_id":   orderID,
			"product_id": item.Product,
		}).Warn("Product not found, stock not decremented")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to decrement product stock: %w", err)
	}

	if item.Size != "" || item.Color != "" {
		variantQuery := `
			UPDATE product_variants
			SET stock = GREATEST(stock - $2, 0)
			WHERE product_id = $1 AND size = $3 AND color = $4
		`
		if _, err := tx.ExecContext(ctx, variantQuery, item.Product, item.Qty, item.Size, item.Color); err != nil {
			return fmt.Errorf("failed to decrement variant stock: %w", err)
		}
	}

	s.log.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"product_id": item.Product,
		"quantity":   item.Qty,
		"remaining":  remaining,
	}).Info("Product stock decremented")
	return nil
}
