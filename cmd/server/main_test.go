package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront-payments/internal/config"
	"storefront-payments/internal/handlers"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// newTestRouter собирает роутер без сервисов: проверяются только маршруты и доступ
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	h := routeHandlers{
		orders:    handlers.NewOrderHandler(nil, nil, nil, 0, log),
		coupons:   handlers.NewCouponHandler(nil, log),
		payments:  handlers.NewPaymentHandler(nil, log),
		settings:  handlers.NewSettingsHandler(nil, log),
		health:    handlers.NewHealthHandler(nil, nil, nil, nil),
		rateLimit: handlers.NewRateLimitHandler(nil, log),
	}
	return setupRoutes(h, nil, metrics.New(prometheus.NewRegistry()), log)
}

func TestRoutes_Access(t *testing.T) {
	router := newTestRouter(t)
	const userID = "11111111-2222-3333-4444-555555555555"

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		admin  bool
		want   int
	}{
		{"liveness", http.MethodGet, "/health/liveness", "", false, http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", false, http.StatusOK},
		{"rate limit status", http.MethodGet, "/api/rate-limit/status", "", false, http.StatusOK},
		{"create order needs user", http.MethodPost, "/api/orders", "", false, http.StatusUnauthorized},
		{"my orders need user", http.MethodGet, "/api/orders/mine", "", false, http.StatusUnauthorized},
		{"list orders needs admin", http.MethodGet, "/api/orders", userID, false, http.StatusForbidden},
		{"deliver needs admin", http.MethodPut, "/api/orders/7a1c3a4e-8b7e-4f7e-9a51-0c8d2b0e6f11/deliver", userID, false, http.StatusForbidden},
		{"status needs admin", http.MethodPut, "/api/orders/7a1c3a4e-8b7e-4f7e-9a51-0c8d2b0e6f11/status", userID, false, http.StatusForbidden},
		{"pay needs user", http.MethodPut, "/api/orders/7a1c3a4e-8b7e-4f7e-9a51-0c8d2b0e6f11/pay", "", false, http.StatusUnauthorized},
		{"coupon list needs admin", http.MethodGet, "/api/coupons", userID, false, http.StatusForbidden},
		{"coupon delete needs admin", http.MethodDelete, "/api/coupons/7a1c3a4e-8b7e-4f7e-9a51-0c8d2b0e6f11", userID, false, http.StatusForbidden},
		{"coupon use needs user", http.MethodPost, "/api/coupons/use", "", false, http.StatusUnauthorized},
		{"intent needs user", http.MethodPost, "/api/payments/create-order", "", false, http.StatusUnauthorized},
		{"verify needs user", http.MethodPost, "/api/payments/verify", "", false, http.StatusUnauthorized},
		{"refund needs admin", http.MethodPost, "/api/payments/refund", userID, false, http.StatusForbidden},
		{"payment details need admin", http.MethodGet, "/api/payments/pay_1", userID, false, http.StatusForbidden},
		{"shipping update needs admin", http.MethodPut, "/api/settings/shipping", userID, false, http.StatusForbidden},
		{"admin reaches handler", http.MethodDelete, "/api/coupons/not-a-uuid", userID, true, http.StatusBadRequest},
		{"owner route reaches handler", http.MethodGet, "/api/orders/not-a-uuid", userID, false, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/couriers", "", false, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.user != "" {
				req.Header.Set(handlers.HeaderUserID, tc.user)
			}
			if tc.admin {
				req.Header.Set(handlers.HeaderUserAdmin, "true")
			}

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRoutes_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS headers")
	}
}
