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
	"storefront-payments/internal/config"
	"storefront-payments/internal/database"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"
)

// Cache минимальный кеш, которым пользуются сервисы. Реализуется redis.Client.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// SettingsService хранит правила доставки в единственной строке settings.
type SettingsService struct {
	db       *database.DB
	log      *logger.Logger
	cache    Cache
	defaults models.ShippingRules
	ttl      time.Duration
}

// NewSettingsService создаёт сервис настроек. cache может быть nil.
func NewSettingsService(db *database.DB, log *logger.Logger, cache Cache, cfg *config.ShippingConfig, ttl time.Duration) *SettingsService {
	return &SettingsService{
		db:       db,
		log:      log,
		cache:    cache,
		defaults: DefaultShippingRules(cfg),
		ttl:      ttl,
	}
}

// DefaultShippingRules строит правила из конфигурации
func DefaultShippingRules(cfg *config.ShippingConfig) models.ShippingRules {
	if cfg == nil {
		return models.ShippingRules{}
	}
	return models.ShippingRules{
		StandardRate:          cfg.StandardRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FreeShippingMinItems:  cfg.FreeShippingMinItems,
		ExpressRate:           cfg.ExpressRate,
		IsFreeShippingEnabled: cfg.IsFreeShippingEnabled,
		BuyXGetFreeEnabled:    cfg.BuyXGetFreeEnabled,
		BuyXItems:             cfg.BuyXItems,
		PromotionText:         cfg.PromotionText,
	}
}

// GetShippingRules возвращает действующие правила: кеш, затем БД, затем значения из конфигурации.
func (s *SettingsService) GetShippingRules(ctx context.Context) (models.ShippingRules, error) {
	settings, err := s.GetShippingSettings(ctx)
	if err != nil {
		return models.ShippingRules{}, err
	}
	return settings.Shipping, nil
}

// GetShippingSettings возвращает правила вместе с временем последнего изменения
func (s *SettingsService) GetShippingSettings(ctx context.Context) (*models.ShippingSettings, error) {
	if s.cache != nil {
		var cached models.ShippingSettings
		err := s.cache.Get(ctx, redis.ShippingSettingsKey(), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, redis.ErrNotFound) {
			s.log.WithError(err).Warn("Failed to read shipping settings from cache")
		}
	}

	settings := &models.ShippingSettings{}
	var raw []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT shipping, updated_at FROM settings WHERE id = 1").Scan(&raw, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		settings.Shipping = s.defaults
	case err != nil:
		return nil, fmt.Errorf("failed to load shipping settings: %w", err)
	default:
		// Поля, которых нет в сохранённом документе, берутся из конфигурации.
		settings.Shipping = s.defaults
		if err := json.Unmarshal(raw, &settings.Shipping); err != nil {
			return nil, fmt.Errorf("failed to decode shipping settings: %w", err)
		}
		settings.UpdatedAt = &updatedAt
	}

	s.store(ctx, settings)
	return settings, nil
}

// UpdateShippingRules сохраняет правила и сбрасывает кеш
func (s *SettingsService) UpdateShippingRules(ctx context.Context, rules models.ShippingRules) (*models.ShippingSettings, error) {
	rules.PromotionText = strings.TrimSpace(rules.PromotionText)
	if err := validateShippingRules(rules); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipping settings: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO settings (id, shipping, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET shipping = EXCLUDED.shipping, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, raw, now); err != nil {
		return nil, fmt.Errorf("failed to save shipping settings: %w", err)
	}

	if s.cache != nil {
		// сбрасывается всё пространство настроек, а не только документ доставки
		if err := s.cache.DeleteByPrefix(ctx, redis.KeyPrefixSettings+":"); err != nil {
			s.log.WithError(err).Warn("Failed to invalidate shipping settings cache")
		}
	}

	s.log.WithFields(map[string]interface{}{
		"standard_rate":           rules.StandardRate,
		"free_shipping_threshold": rules.FreeShippingThreshold,
		"buy_x_items":             rules.BuyXItems,
	}).Info("Shipping settings updated")

	return &models.ShippingSettings{Shipping: rules, UpdatedAt: &now}, nil
}

func (s *SettingsService) store(ctx context.Context, settings *models.ShippingSettings) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, redis.ShippingSettingsKey(), settings, s.ttl); err != nil {
		s.log.WithError(err).Warn("Failed to cache shipping settings")
	}
}

func validateShippingRules(rules models.ShippingRules) error {
	switch {
	case rules.StandardRate < 0:
		return apperror.Validation("standardRate must be non-negative", nil)
	case rules.ExpressRate < 0:
		return apperror.Validation("expressRate must be non-negative", nil)
	case rules.FreeShippingThreshold < 0:
		return apperror.Validation("freeShippingThreshold must be non-negative", nil)
	case rules.FreeShippingMinItems < 0:
		return apperror.Validation("freeShippingMinItems must be non-negative", nil)
	case rules.BuyXItems < 0:
		return apperror.Validation("buyXItems must be non-negative", nil)
	case rules.BuyXGetFreeEnabled && rules.BuyXItems < 1:
		return apperror.Validation("buyXItems must be at least 1 when buy-X free shipping is enabled", nil)
	}
	return nil
}
