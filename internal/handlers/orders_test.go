package handlers

import (
	"net/http"
	"testing"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"

	"github.com/google/uuid"
)

func newTestOrderHandler(t *testing.T, orders *stubOrderService, payer *stubPaymentService) (*OrderHandler, func(key string) bool) {
	t.Helper()
	cache, mr := newTestCache(t)
	if payer == nil {
		payer = &stubPaymentService{}
	}
	return NewOrderHandler(orders, payer, cache, time.Minute, newTestLogger()), mr.Exists
}

func orderParams(order *models.Order) map[string]string {
	return map[string]string{"id": order.ID.String()}
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	order := sampleOrder(testUserID)
	svc := &stubOrderService{order: order}
	h, cached := newTestOrderHandler(t, svc, nil)

	body := models.CreateOrderRequest{
		OrderItems: order.OrderItems,
		TotalPrice: 1, // клиентская сумма не используется
	}
	rr := serve(h.CreateOrder, asUser(newRequest(t, http.MethodPost, "/api/orders", body, nil), testUserID))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastCaller.UserID != testUserID {
		t.Fatalf("expected caller to be passed, got %v", svc.lastCaller.UserID)
	}
	var got models.Order
	decodeBody(t, rr, &got)
	if got.TotalPrice != order.TotalPrice {
		t.Fatalf("expected server total %v, got %v", order.TotalPrice, got.TotalPrice)
	}
	if !cached(redis.OrderKey(order.ID.String())) {
		t.Fatalf("expected created order to be cached")
	}
}

func TestOrderHandler_CreateOrder_Errors(t *testing.T) {
	svc := &stubOrderService{err: apperror.Validation("No order items", nil)}
	h, _ := newTestOrderHandler(t, svc, nil)

	rr := serve(h.CreateOrder, asUser(newRequest(t, http.MethodPost, "/api/orders", "{bad", nil), testUserID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken body, got %d", rr.Code)
	}

	rr = serve(h.CreateOrder, asUser(newRequest(t, http.MethodPost, "/api/orders", models.CreateOrderRequest{}, nil), testUserID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for service validation, got %d", rr.Code)
	}

	svc.err = apperror.WithCode(apperror.Conflict("Coupon usage limit reached", nil), apperror.CodeLimitReached)
	rr = serve(h.CreateOrder, asUser(newRequest(t, http.MethodPost, "/api/orders", models.CreateOrderRequest{}, nil), testUserID))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != apperror.CodeLimitReached {
		t.Fatalf("expected 400 LimitReached, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandler_Quote(t *testing.T) {
	couponErr := "Coupon has expired"
	svc := &stubOrderService{quote: &models.OrderQuote{ItemsPrice: 1300, ShippingPrice: 149, TotalPrice: 1449, CouponError: &couponErr}}
	h, _ := newTestOrderHandler(t, svc, nil)

	rr := serve(h.Quote, newRequest(t, http.MethodPost, "/api/orders/quote", models.QuoteRequest{}, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var quote models.OrderQuote
	decodeBody(t, rr, &quote)
	if quote.TotalPrice != 1449 || quote.CouponError == nil {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestOrderHandler_GetOrder_Access(t *testing.T) {
	order := sampleOrder(testUserID)
	svc := &stubOrderService{order: order}
	h, _ := newTestOrderHandler(t, svc, nil)

	rr := serve(h.GetOrder, asUser(newRequest(t, http.MethodGet, "/api/orders/x", nil, orderParams(order)), uuid.New()))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rr.Code)
	}

	rr = serve(h.GetOrder, asUser(newRequest(t, http.MethodGet, "/api/orders/x", nil, orderParams(order)), testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rr.Code)
	}

	rr = serve(h.GetOrder, asAdmin(newRequest(t, http.MethodGet, "/api/orders/x", nil, orderParams(order))))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
}

func TestOrderHandler_GetOrder_UsesCache(t *testing.T) {
	order := sampleOrder(testUserID)
	svc := &stubOrderService{order: order}
	h, _ := newTestOrderHandler(t, svc, nil)

	for i := 0; i < 3; i++ {
		rr := serve(h.GetOrder, asUser(newRequest(t, http.MethodGet, "/api/orders/x", nil, orderParams(order)), testUserID))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	if svc.getCalls != 1 {
		t.Fatalf("expected one database read, got %d", svc.getCalls)
	}
}

func TestOrderHandler_GetOrder_NotFound(t *testing.T) {
	svc := &stubOrderService{err: apperror.NotFound("Order not found", nil)}
	h, _ := newTestOrderHandler(t, svc, nil)

	rr := serve(h.GetOrder, asUser(newRequest(t, http.MethodGet, "/api/orders/x", nil, map[string]string{"id": uuid.NewString()}), testUserID))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = serve(h.GetOrder, asUser(newRequest(t, http.MethodGet, "/api/orders/x", nil, map[string]string{"id": "nope"}), testUserID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", rr.Code)
	}
}

func TestOrderHandler_GetOrders_Filter(t *testing.T) {
	svc := &stubOrderService{orders: []*models.Order{sampleOrder(testUserID)}}
	h, _ := newTestOrderHandler(t, svc, nil)

	rr := serve(h.GetOrders, asAdmin(newRequest(t, http.MethodGet, "/api/orders?status=shipped&limit=10&offset=20", nil, nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.lastFilter.Status == nil || *svc.lastFilter.Status != models.OrderStatusShipped {
		t.Fatalf("expected shipped filter, got %+v", svc.lastFilter)
	}
	if svc.lastFilter.Limit != 10 || svc.lastFilter.Offset != 20 {
		t.Fatalf("unexpected paging: %+v", svc.lastFilter)
	}

	rr = serve(h.GetOrders, asAdmin(newRequest(t, http.MethodGet, "/api/orders?limit=1000", nil, nil)))
	if rr.Code != http.StatusOK || svc.lastFilter.Limit != defaultOrdersLimit {
		t.Fatalf("expected default limit for out of range value, got %d", svc.lastFilter.Limit)
	}

	rr = serve(h.GetOrders, asAdmin(newRequest(t, http.MethodGet, "/api/orders?status=lost", nil, nil)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestOrderHandler_GetMyOrders(t *testing.T) {
	svc := &stubOrderService{orders: []*models.Order{}}
	h, _ := newTestOrderHandler(t, svc, nil)

	rr := serve(h.GetMyOrders, asUser(newRequest(t, http.MethodGet, "/api/orders/mine", nil, nil), testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.lastUserID != testUserID {
		t.Fatalf("expected orders of caller, got %v", svc.lastUserID)
	}
}

func TestOrderHandler_DeliverOrder(t *testing.T) {
	order := sampleOrder(testUserID)
	svc := &stubOrderService{order: order}
	h, cached := newTestOrderHandler(t, svc, nil)
	key := redis.OrderKey(order.ID.String())

	serve(h.GetOrder, asAdmin(newRequest(t, http.MethodGet, "/api/orders/x", nil, orderParams(order))))
	if !cached(key) {
		t.Fatalf("expected order to be cached before delivery")
	}

	delivered := *order
	delivered.IsDelivered = true
	delivered.Status = models.OrderStatusDelivered
	svc.order = &delivered

	rr := serve(h.DeliverOrder, asAdmin(newRequest(t, http.MethodPut, "/api/orders/x/deliver", nil, orderParams(order))))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cached(key) {
		t.Fatalf("expected cache to be invalidated after delivery")
	}

	svc.err = apperror.WithCode(apperror.Conflict("Order is already marked as delivered", nil), apperror.CodeAlreadyDelivered)
	rr = serve(h.DeliverOrder, asAdmin(newRequest(t, http.MethodPut, "/api/orders/x/deliver", nil, orderParams(order))))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != apperror.CodeAlreadyDelivered {
		t.Fatalf("expected 400 AlreadyDelivered, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOrderHandler_UpdateOrderStatus(t *testing.T) {
	order := sampleOrder(testUserID)
	shipped := *order
	shipped.Status = models.OrderStatusShipped
	svc := &stubOrderService{order: &shipped}
	h, _ := newTestOrderHandler(t, svc, nil)

	tracking := "TRK123"
	body := models.UpdateOrderStatusRequest{Status: models.OrderStatusShipped, TrackingNumber: &tracking}
	rr := serve(h.UpdateOrderStatus, asAdmin(newRequest(t, http.MethodPut, "/api/orders/x/status", body, orderParams(order))))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.lastStatus == nil || svc.lastStatus.TrackingNumber == nil || *svc.lastStatus.TrackingNumber != tracking {
		t.Fatalf("expected tracking number to be passed, got %+v", svc.lastStatus)
	}

	svc.err = apperror.WithCode(apperror.Conflict("Cannot change order status from delivered to pending", nil), apperror.CodeInvalidTransition)
	rr = serve(h.UpdateOrderStatus, asAdmin(newRequest(t, http.MethodPut, "/api/orders/x/status", body, orderParams(order))))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != apperror.CodeInvalidTransition {
		t.Fatalf("expected 400 InvalidTransition, got %d", rr.Code)
	}
}

func TestOrderHandler_PayOrder(t *testing.T) {
	order := sampleOrder(testUserID)
	paid := *order
	paid.IsPaid = true
	payer := &stubPaymentService{order: &paid}
	h, _ := newTestOrderHandler(t, &stubOrderService{}, payer)

	body := models.PayOrderRequest{RazorpayOrderID: "order_1", RazorpayPaymentID: "pay_1", RazorpaySignature: "sig"}
	rr := serve(h.PayOrder, asUser(newRequest(t, http.MethodPut, "/api/orders/x/pay", body, orderParams(order)), testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payer.lastCaller.UserID != testUserID {
		t.Fatalf("expected caller to reach payment service")
	}

	payer.err = apperror.WithCode(apperror.Signature("Invalid payment signature", nil), apperror.CodeInvalidSignature)
	rr = serve(h.PayOrder, asUser(newRequest(t, http.MethodPut, "/api/orders/x/pay", body, orderParams(order)), testUserID))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != apperror.CodeInvalidSignature {
		t.Fatalf("expected 400 InvalidSignature, got %d", rr.Code)
	}
}
