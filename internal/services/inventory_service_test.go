package services

import (
	"context"
	"errors"
	"testing"

	"storefront-payments/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestInventoryService_ApplyOrderTx(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewInventoryService(newTestLogger())
	orderID := uuid.New()
	shirt := uuid.New()
	mug := uuid.New()
	items := []models.OrderItem{
		{Product: shirt, Name: "Shirt", Qty: 2, Price: 999, Size: "M", Color: "Black"},
		{Product: mug, Name: "Mug", Qty: 1, Price: 299},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_stock_movements").
		WithArgs(orderID, 0, shirt, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE products").
		WithArgs(shirt, 2).
		WillReturnRows(sqlmock.NewRows([]string{"count_in_stock"}).AddRow(8))
	mock.ExpectExec("UPDATE product_variants").
		WithArgs(shirt, 2, "M", "Black").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_stock_movements").
		WithArgs(orderID, 1, mug, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE products").
		WithArgs(mug, 1).
		WillReturnRows(sqlmock.NewRows([]string{"count_in_stock"}).AddRow(0))
	mock.ExpectCommit()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := service.ApplyOrderTx(context.Background(), tx, orderID, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInventoryService_SkipsRecordedItemsAndMissingProducts(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewInventoryService(newTestLogger())
	orderID := uuid.New()
	done := uuid.New()
	gone := uuid.New()
	items := []models.OrderItem{
		{Product: done, Qty: 1},
		{Product: gone, Qty: 3},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_stock_movements").
		WithArgs(orderID, 0, done, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO order_stock_movements").
		WithArgs(orderID, 1, gone, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE products").
		WithArgs(gone, 3).
		WillReturnRows(sqlmock.NewRows([]string{"count_in_stock"}))
	mock.ExpectRollback()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := service.ApplyOrderTx(context.Background(), tx, orderID, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInventoryService_PropagatesDatabaseErrors(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	service := NewInventoryService(newTestLogger())
	orderID := uuid.New()
	product := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_stock_movements").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE products").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = service.ApplyOrderTx(context.Background(), tx, orderID, []models.OrderItem{{Product: product, Qty: 1}})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}
