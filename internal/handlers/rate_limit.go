package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"storefront-payments/internal/logger"
	"storefront-payments/internal/services"
)

// RateLimitHandler отдаёт состояние лимита клиента
type RateLimitHandler struct {
	limiter RateLimiter
	log     *logger.Logger
}

// NewRateLimitHandler создает новый RateLimitHandler
func NewRateLimitHandler(limiter RateLimiter, log *logger.Logger) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter, log: log}
}

// Status возвращает текущие значения лимита для клиента
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil || !h.limiter.Enabled() {
		writeJSONResponse(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	key := clientKey(r)
	usage, err := h.limiter.Usage(r.Context(), key)
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch rate limit usage")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to fetch rate limit usage")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"enabled":        true,
		"window_seconds": int64(h.limiter.Window() / time.Second),
		"usage":          usage,
	})
}

// RateLimitMiddleware ограничивает частоту запросов клиента.
// Если Redis недоступен, запрос пропускается.
func RateLimitMiddleware(limiter RateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r)
			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.WithError(err).WithField("key", key).Error("Rate limiter failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retry := int64(math.Ceil(time.Until(decision.ResetAt).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeErrorResponse(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey использует пользователя из Identity, иначе адрес (RealIP уже подставил его в RemoteAddr)
func clientKey(r *http.Request) string {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		return services.RateLimitKey(nil, r.RemoteAddr)
	}
	return services.RateLimitKey(&caller, r.RemoteAddr)
}
