package handlers

import (
	"net/http"
	"testing"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/models"

	"github.com/google/uuid"
)

func TestCouponHandler_Validate(t *testing.T) {
	svc := &stubCouponService{quote: &models.CouponQuote{Code: "SAVE10", DiscountType: models.DiscountTypePercentage, DiscountValue: 10, DiscountAmount: 400}}
	h := NewCouponHandler(svc, newTestLogger())

	rr := serve(h.Validate, newRequest(t, http.MethodPost, "/api/coupons/validate", models.ValidateCouponRequest{Code: "save10", OrderTotal: 5000}, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp models.ValidateCouponResponse
	decodeBody(t, rr, &resp)
	if !resp.Valid || resp.Coupon == nil || resp.Coupon.DiscountAmount != 400 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCouponHandler_ValidateRejections(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown", apperror.WithCode(apperror.NotFound("Invalid coupon code", nil), apperror.CodeNotFound), http.StatusNotFound, apperror.CodeNotFound},
		{"inactive", apperror.WithCode(apperror.Conflict("Coupon is inactive", nil), apperror.CodeInactive), http.StatusBadRequest, apperror.CodeInactive},
		{"expired", apperror.WithCode(apperror.Conflict("Coupon has expired", nil), apperror.CodeExpired), http.StatusBadRequest, apperror.CodeExpired},
		{"below minimum", apperror.WithCode(apperror.Validation("Minimum purchase of ₹1000 required to use this coupon", nil), apperror.CodeBelowMinimum), http.StatusBadRequest, apperror.CodeBelowMinimum},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewCouponHandler(&stubCouponService{err: tc.err}, newTestLogger())
			rr := serve(h.Validate, newRequest(t, http.MethodPost, "/api/coupons/validate", models.ValidateCouponRequest{Code: "X", OrderTotal: 999}, nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.wantCode {
				t.Fatalf("expected code %s, got %s", tc.wantCode, code)
			}
		})
	}
}

func TestCouponHandler_Use(t *testing.T) {
	svc := &stubCouponService{}
	h := NewCouponHandler(svc, newTestLogger())

	rr := serve(h.Use, asUser(newRequest(t, http.MethodPost, "/api/coupons/use", models.UseCouponRequest{Code: "SAVE10"}, nil), testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(svc.redeemed) != 1 || svc.redeemed[0] != "SAVE10" {
		t.Fatalf("expected one redemption, got %v", svc.redeemed)
	}

	rr = serve(h.Use, asUser(newRequest(t, http.MethodPost, "/api/coupons/use", models.UseCouponRequest{}, nil), testUserID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without code, got %d", rr.Code)
	}

	svc.err = apperror.WithCode(apperror.Conflict("Coupon usage limit reached", nil), apperror.CodeLimitReached)
	rr = serve(h.Use, asUser(newRequest(t, http.MethodPost, "/api/coupons/use", models.UseCouponRequest{Code: "SAVE10"}, nil), testUserID))
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != apperror.CodeLimitReached {
		t.Fatalf("expected 400 LimitReached, got %d", rr.Code)
	}
}

func TestCouponHandler_AdminCRUD(t *testing.T) {
	coupon := &models.Coupon{ID: uuid.New(), Code: "FLAT200", DiscountType: models.DiscountTypeFixed, DiscountValue: 200, IsActive: true}
	svc := &stubCouponService{coupon: coupon, coupons: []*models.Coupon{coupon}}
	h := NewCouponHandler(svc, newTestLogger())
	params := map[string]string{"id": coupon.ID.String()}

	rr := serve(h.Create, asAdmin(newRequest(t, http.MethodPost, "/api/coupons", models.CreateCouponRequest{Code: "flat200", DiscountType: models.DiscountTypeFixed, DiscountValue: 200}, nil)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rr.Code)
	}

	rr = serve(h.List, asAdmin(newRequest(t, http.MethodGet, "/api/coupons", nil, nil)))
	var list []models.Coupon
	decodeBody(t, rr, &list)
	if rr.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: expected one coupon, got %d %v", rr.Code, list)
	}

	rr = serve(h.Get, asAdmin(newRequest(t, http.MethodGet, "/api/coupons/x", nil, params)))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	active := false
	rr = serve(h.Update, asAdmin(newRequest(t, http.MethodPut, "/api/coupons/x", models.UpdateCouponRequest{IsActive: &active}, params)))
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rr.Code)
	}

	rr = serve(h.Delete, asAdmin(newRequest(t, http.MethodDelete, "/api/coupons/x", nil, params)))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}

	rr = serve(h.Delete, asAdmin(newRequest(t, http.MethodDelete, "/api/coupons/x", nil, map[string]string{"id": "bad"})))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("delete: expected 400 for bad id, got %d", rr.Code)
	}

	svc.err = apperror.Conflict("Coupon code already exists", nil)
	rr = serve(h.Create, asAdmin(newRequest(t, http.MethodPost, "/api/coupons", models.CreateCouponRequest{Code: "FLAT200"}, nil)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("create duplicate: expected 400, got %d", rr.Code)
	}
}
