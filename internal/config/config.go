package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Payments  PaymentsConfig  `json:"payments"`
	Shipping  ShippingConfig  `json:"shipping"`
	Cache     CacheConfig     `json:"cache"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"db_name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	AutoMigrate  bool   `json:"auto_migrate"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Orders   string `json:"orders"`
	Payments string `json:"payments"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// PaymentsConfig описывает доступ к платёжному провайдеру (Razorpay)
type PaymentsConfig struct {
	KeyID                string `json:"key_id"`
	KeySecret            string `json:"-"`
	WebhookSecret        string `json:"-"`
	Currency             string `json:"currency"`
	WebhookDedupTTLHours int    `json:"webhook_dedup_ttl_hours"`
}

// ShippingConfig задаёт правила доставки по умолчанию, пока администратор не сохранил свои
type ShippingConfig struct {
	StandardRate          float64 `json:"standard_rate"`
	ExpressRate           float64 `json:"express_rate"`
	FreeShippingThreshold float64 `json:"free_shipping_threshold"`
	FreeShippingMinItems  int     `json:"free_shipping_min_items"`
	IsFreeShippingEnabled bool    `json:"is_free_shipping_enabled"`
	BuyXGetFreeEnabled    bool    `json:"buy_x_get_free_enabled"`
	BuyXItems             int     `json:"buy_x_items"`
	PromotionText         string  `json:"promotion_text"`
}

// CacheConfig хранит TTL кешей
type CacheConfig struct {
	OrderTTLMinutes    int `json:"order_ttl_minutes"`
	SettingsTTLMinutes int `json:"settings_ttl_minutes"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "storefront"),
			Password:     getEnv("DB_PASSWORD", "storefront"),
			DBName:       getEnv("DB_NAME", "storefront"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "storefront-payments"),
			Topics: Topics{
				Orders:   getEnv("KAFKA_TOPIC_ORDERS", "orders"),
				Payments: getEnv("KAFKA_TOPIC_PAYMENTS", "payments"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Payments: PaymentsConfig{
			KeyID:                getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:            getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret:        getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			Currency:             strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
			WebhookDedupTTLHours: getEnvAsInt("PAYMENT_WEBHOOK_DEDUP_TTL_HOURS", 72),
		},
		Shipping: ShippingConfig{
			StandardRate:          getEnvAsFloat("SHIPPING_STANDARD_RATE", 99),
			ExpressRate:           getEnvAsFloat("SHIPPING_EXPRESS_RATE", 199),
			FreeShippingThreshold: getEnvAsFloat("SHIPPING_FREE_THRESHOLD", 2999),
			FreeShippingMinItems:  getEnvAsInt("SHIPPING_FREE_MIN_ITEMS", 0),
			IsFreeShippingEnabled: getEnvAsBool("SHIPPING_FREE_ENABLED", true),
			BuyXGetFreeEnabled:    getEnvAsBool("SHIPPING_BUY_X_ENABLED", false),
			BuyXItems:             getEnvAsInt("SHIPPING_BUY_X_ITEMS", 2),
			PromotionText:         getEnv("SHIPPING_PROMOTION_TEXT", ""),
		},
		Cache: CacheConfig{
			OrderTTLMinutes:    getEnvAsInt("CACHE_ORDER_TTL_MINUTES", 15),
			SettingsTTLMinutes: getEnvAsInt("CACHE_SETTINGS_TTL_MINUTES", 5),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
		},
	}
}

// Warnings возвращает список проблем конфигурации, не мешающих запуску
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Payments.KeyID == "" || c.Payments.KeySecret == "" {
		warnings = append(warnings, "RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not set: payment intents and verification will fail")
	}
	if c.Payments.WebhookSecret == "" {
		warnings = append(warnings, "RAZORPAY_WEBHOOK_SECRET is not set: all webhooks will be rejected")
	}
	if c.Shipping.StandardRate < 0 || c.Shipping.FreeShippingThreshold < 0 {
		warnings = append(warnings, "negative shipping defaults are clamped to zero")
	}
	return warnings
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64 с значением по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
