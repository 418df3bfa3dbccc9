package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
)

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	db         DBHealth
	redis      RedisHealth
	brokers    []string
	kafkaCheck func([]string) error
}

// NewHealthHandler создает новый обработчик здоровья. redis может быть nil, если кеш выключен.
func NewHealthHandler(db DBHealth, redis RedisHealth, brokers []string, kafkaCheck func([]string) error) *HealthHandler {
	if kafkaCheck == nil {
		kafkaCheck = CheckKafkaHealth
	}
	return &HealthHandler{
		db:         db,
		redis:      redis,
		brokers:    brokers,
		kafkaCheck: kafkaCheck,
	}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
}

var startTime = time.Now()

type componentCheck struct {
	name string
	// required компоненты делают сервис неготовым
	required bool
	check    func(ctx context.Context) error
}

func (h *HealthHandler) checks() []componentCheck {
	checks := []componentCheck{
		{name: "database", required: true, check: func(context.Context) error { return h.db.Health() }},
	}
	if h.redis != nil {
		checks = append(checks, componentCheck{name: "redis", check: h.redis.Health})
	}
	if len(h.brokers) > 0 {
		checks = append(checks, componentCheck{name: "kafka", check: func(context.Context) error { return h.kafkaCheck(h.brokers) }})
	}
	return checks
}

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]string{"redis": "disabled", "kafka": "disabled"}
	overallStatus := "healthy"
	for _, c := range h.checks() {
		if err := c.check(ctx); err != nil {
			services[c.name] = "unhealthy: " + err.Error()
			if c.required {
				overallStatus = "unhealthy"
			} else if overallStatus == "healthy" {
				overallStatus = "degraded"
			}
			continue
		}
		services[c.name] = "healthy"
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, HealthResponse{
		Status:   overallStatus,
		Services: services,
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).String(),
	})
}

// Readiness сообщает, готов ли сервис принимать оплату и заказы
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks() {
		if !c.required {
			continue
		}
		if err := c.check(ctx); err != nil {
			writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("%s not ready", c.name))
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

// CheckKafkaHealth проверяет доступность Kafka брокеров
func CheckKafkaHealth(brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 3 * time.Second
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Retry.Backoff = 500 * time.Millisecond

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return err
	}
	return client.Close()
}
