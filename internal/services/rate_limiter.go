package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"storefront-payments/internal/config"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"

	"github.com/google/uuid"
)

// RateStore описывает счётчики окна в Redis
type RateStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// RateLimitDecision описывает результат проверки лимита для одного запроса
type RateLimitDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimitUsage описывает текущее состояние окна клиента
type RateLimitUsage struct {
	Key       string     `json:"key"`
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// RateLimiter ограничивает число запросов клиента в фиксированном окне.
// Клиент определяется пользователем, а для анонимных запросов адресом.
type RateLimiter struct {
	store   RateStore
	log     *logger.Logger
	enabled bool
	limit   int64
	window  time.Duration
	prefix  string
	now     func() time.Time
}

// NewRateLimiter создаёт rate limiter. Без хранилища или при выключенном конфиге лимит не применяется.
func NewRateLimiter(store RateStore, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	if store == nil || cfg == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.WindowSeconds <= 0 {
		return &RateLimiter{log: log, now: time.Now}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RateLimiter{
		store:   store,
		log:     log,
		enabled: true,
		limit:   int64(cfg.Requests),
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Allow учитывает запрос клиента и сообщает, укладывается ли он в лимит
func (r *RateLimiter) Allow(ctx context.Context, clientKey string) (RateLimitDecision, error) {
	if !r.enabled {
		return RateLimitDecision{Allowed: true}, nil
	}

	key := r.storeKey(clientKey)
	count, err := r.store.Incr(ctx, key)
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("failed to count request: %w", err)
	}

	// окно открывает первый запрос
	if count == 1 {
		if err := r.store.Expire(ctx, key, r.window); err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to set rate limit window")
		}
	}

	return RateLimitDecision{
		Allowed:   count <= r.limit,
		Limit:     r.limit,
		Remaining: r.remaining(count),
		ResetAt:   r.now().Add(r.windowLeft(ctx, key)),
	}, nil
}

// Usage возвращает состояние окна без учёта нового запроса
func (r *RateLimiter) Usage(ctx context.Context, clientKey string) (*RateLimitUsage, error) {
	usage := &RateLimitUsage{Key: clientKey, Limit: r.limit, Remaining: r.limit}
	if !r.enabled {
		return usage, nil
	}

	key := r.storeKey(clientKey)
	count, err := r.store.GetInt(ctx, key)
	if errors.Is(err, redis.ErrNotFound) {
		return usage, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	resetAt := r.now().Add(r.windowLeft(ctx, key))
	usage.Used = count
	usage.Remaining = r.remaining(count)
	usage.ResetAt = &resetAt
	return usage, nil
}

// Enabled сообщает, включён ли лимит
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// Window возвращает длину окна
func (r *RateLimiter) Window() time.Duration {
	return r.window
}

func (r *RateLimiter) windowLeft(ctx context.Context, key string) time.Duration {
	ttl, err := r.store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		if err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to read rate limit window")
		}
		return r.window
	}
	return ttl
}

func (r *RateLimiter) remaining(count int64) int64 {
	if count >= r.limit {
		return 0
	}
	return r.limit - count
}

func (r *RateLimiter) storeKey(clientKey string) string {
	return r.prefix + ":" + clientKey
}

// RateLimitKey строит ключ клиента: пользователь, если он известен, иначе адрес
func RateLimitKey(caller *models.Caller, remoteAddr string) string {
	if caller != nil && caller.UserID != uuid.Nil {
		return "user_" + caller.UserID.String()
	}

	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		host = "unknown"
	}
	// IPv6 содержит двоеточия, разделитель ключей в Redis
	return "ip_" + strings.ReplaceAll(host, ":", "_")
}
