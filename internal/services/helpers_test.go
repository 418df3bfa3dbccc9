package services

import (
	"sync"
	"testing"

	"storefront-payments/internal/config"
	"storefront-payments/internal/database"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "debug", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}

func newTestCache(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.Connect(&config.RedisConfig{Host: "127.0.0.1", Port: mr.Port()}, newTestLogger())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.EventType
	err    error
}

func (p *recordingPublisher) record(t models.EventType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
	return p.err
}

func (p *recordingPublisher) PublishOrderCreated(*models.Order) error {
	return p.record(models.EventTypeOrderCreated)
}

func (p *recordingPublisher) PublishOrderPaid(*models.Order) error {
	return p.record(models.EventTypeOrderPaid)
}

func (p *recordingPublisher) PublishOrderDelivered(*models.Order) error {
	return p.record(models.EventTypeOrderDelivered)
}

func (p *recordingPublisher) PublishOrderStatusChanged(*models.Order, models.OrderStatus) error {
	return p.record(models.EventTypeOrderStatusChanged)
}

func (p *recordingPublisher) PublishOrderRefunded(*models.Order, string) error {
	return p.record(models.EventTypeOrderRefunded)
}

func (p *recordingPublisher) PublishPaymentFailed(models.PaymentEventData) error {
	return p.record(models.EventTypePaymentFailed)
}

func (p *recordingPublisher) PublishCouponRedeemed(string, *uuid.UUID) error {
	return p.record(models.EventTypeCouponRedeemed)
}

func (p *recordingPublisher) count(t models.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == t {
			n++
		}
	}
	return n
}
