package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/config"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var (
	testUserID  = uuid.MustParse("11111111-2222-3333-4444-555555555555")
	testAdminID = uuid.MustParse("99999999-8888-7777-6666-555555555555")
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
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

// newRequest строит запрос с JSON телом, параметрами маршрута и личностью вызывающего
func newRequest(t *testing.T, method, target string, body interface{}, params map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

func asUser(req *http.Request, id uuid.UUID) *http.Request {
	req.Header.Set(HeaderUserID, id.String())
	return req
}

func asAdmin(req *http.Request) *http.Request {
	req.Header.Set(HeaderUserID, testAdminID.String())
	req.Header.Set(HeaderUserAdmin, "true")
	return req
}

// serve прогоняет запрос через Identity и указанный обработчик
func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	Identity(h).ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rr, &resp)
	return resp.Code
}

func sampleOrder(owner uuid.UUID) *models.Order {
	return &models.Order{
		ID:          uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
		User:        owner,
		OrderNumber: "ORD-01JABCDEF0123456789ABCDEFG",
		OrderItems:  []models.OrderItem{{Product: uuid.New(), Name: "Kurta", Qty: 1, Price: 1299}},
		ItemsPrice:  1299,
		TotalPrice:  1448,
		Status:      models.OrderStatusPending,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ----- stubs -----

type stubOrderService struct {
	order       *models.Order
	orders      []*models.Order
	quote       *models.OrderQuote
	err         error
	getCalls    int
	lastFilter  models.OrderFilter
	lastCaller  models.Caller
	lastUserID  uuid.UUID
	lastStatus  *models.UpdateOrderStatusRequest
	deliverCall int
}

func (s *stubOrderService) Quote(context.Context, *models.QuoteRequest) (*models.OrderQuote, error) {
	return s.quote, s.err
}

func (s *stubOrderService) CreateOrder(_ context.Context, caller models.Caller, _ *models.CreateOrderRequest) (*models.Order, error) {
	s.lastCaller = caller
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(context.Context, uuid.UUID) (*models.Order, error) {
	s.getCalls++
	return s.order, s.err
}

func (s *stubOrderService) GetOrders(_ context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	s.lastFilter = filter
	return s.orders, s.err
}

func (s *stubOrderService) GetUserOrders(_ context.Context, userID uuid.UUID) ([]*models.Order, error) {
	s.lastUserID = userID
	return s.orders, s.err
}

func (s *stubOrderService) MarkDelivered(context.Context, uuid.UUID) (*models.Order, error) {
	s.deliverCall++
	return s.order, s.err
}

func (s *stubOrderService) UpdateOrderStatus(_ context.Context, _ uuid.UUID, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	s.lastStatus = req
	return s.order, s.err
}

type stubPaymentService struct {
	order       *models.Order
	intent      *models.PaymentIntent
	verify      *models.VerifyPaymentResponse
	webhook     *models.WebhookResult
	refund      *models.RefundResponse
	payment     map[string]interface{}
	err         error
	lastBody    []byte
	lastSig     string
	lastCaller  models.Caller
	lastPayment string
}

func (s *stubPaymentService) PayOrder(_ context.Context, caller models.Caller, _ uuid.UUID, _ *models.PayOrderRequest) (*models.Order, error) {
	s.lastCaller = caller
	return s.order, s.err
}

func (s *stubPaymentService) CreatePaymentIntent(_ context.Context, caller models.Caller, _ *models.CreatePaymentIntentRequest) (*models.PaymentIntent, error) {
	s.lastCaller = caller
	return s.intent, s.err
}

func (s *stubPaymentService) VerifyPayment(_ context.Context, caller models.Caller, _ *models.VerifyPaymentRequest) (*models.VerifyPaymentResponse, error) {
	s.lastCaller = caller
	return s.verify, s.err
}

func (s *stubPaymentService) HandleWebhook(_ context.Context, body []byte, signature string) (*models.WebhookResult, error) {
	s.lastBody = body
	s.lastSig = signature
	return s.webhook, s.err
}

func (s *stubPaymentService) Refund(context.Context, *models.RefundRequest) (*models.RefundResponse, error) {
	return s.refund, s.err
}

func (s *stubPaymentService) GetPaymentDetails(_ context.Context, paymentID string) (map[string]interface{}, error) {
	s.lastPayment = paymentID
	return s.payment, s.err
}

type stubCouponService struct {
	quote    *models.CouponQuote
	coupon   *models.Coupon
	coupons  []*models.Coupon
	err      error
	redeemed []string
}

func (s *stubCouponService) ValidateCoupon(context.Context, string, float64) (*models.CouponQuote, error) {
	return s.quote, s.err
}

func (s *stubCouponService) RedeemCoupon(_ context.Context, code string) error {
	if s.err != nil {
		return s.err
	}
	s.redeemed = append(s.redeemed, code)
	return nil
}

func (s *stubCouponService) CreateCoupon(context.Context, *models.CreateCouponRequest) (*models.Coupon, error) {
	return s.coupon, s.err
}

func (s *stubCouponService) GetCoupon(context.Context, uuid.UUID) (*models.Coupon, error) {
	return s.coupon, s.err
}

func (s *stubCouponService) ListCoupons(context.Context) ([]*models.Coupon, error) {
	return s.coupons, s.err
}

func (s *stubCouponService) UpdateCoupon(context.Context, uuid.UUID, *models.UpdateCouponRequest) (*models.Coupon, error) {
	return s.coupon, s.err
}

func (s *stubCouponService) DeleteCoupon(context.Context, uuid.UUID) error {
	return s.err
}

type stubSettingsService struct {
	current *models.ShippingSettings
	saved   *models.ShippingRules
	err     error
}

func (s *stubSettingsService) GetShippingSettings(context.Context) (*models.ShippingSettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.current, nil
}

func (s *stubSettingsService) UpdateShippingRules(_ context.Context, rules models.ShippingRules) (*models.ShippingSettings, error) {
	if rules.StandardRate < 0 {
		return nil, apperror.Validation("standardRate must be non-negative", nil)
	}
	s.saved = &rules
	return &models.ShippingSettings{Shipping: rules}, nil
}
