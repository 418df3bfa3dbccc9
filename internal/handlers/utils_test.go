package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestURLUUID(t *testing.T) {
	id := "123e4567-e89b-12d3-a456-426614174000"
	req := newRequest(t, http.MethodGet, "/api/orders/"+id, nil, map[string]string{"id": id})

	parsed, err := urlUUID(req, "id")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.String() != id {
		t.Fatalf("unexpected id: %s", parsed)
	}

	bad := newRequest(t, http.MethodGet, "/api/orders/x", nil, map[string]string{"id": "x"})
	if _, err := urlUUID(bad, "id"); err == nil {
		t.Fatalf("expected error for invalid id")
	}

	if _, err := urlUUID(httptest.NewRequest(http.MethodGet, "/", nil), "id"); err == nil {
		t.Fatalf("expected error for missing param")
	}
}

func TestDecodeJSON(t *testing.T) {
	var dest struct {
		Code string `json:"code"`
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"SAVE10"}`))
	if err := decodeJSON(rr, req, &dest); err != nil || dest.Code != "SAVE10" {
		t.Fatalf("expected decoded body, got %+v err=%v", dest, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := decodeJSON(rr, req, &dest); err == nil {
		t.Fatalf("expected error for empty body")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{broken"))
	if err := decodeJSON(rr, req, &dest); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestWriteJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, map[string]string{"ok": "true"})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if body := rr.Body.String(); body == "" {
		t.Fatalf("empty body")
	}
}

func TestWriteCodedError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeCodedError(rr, http.StatusBadRequest, "Coupon has expired", "Expired")

	var resp ErrorResponse
	decodeBody(t, rr, &resp)
	if resp.Error != "Bad Request" || resp.Message != "Coupon has expired" || resp.Code != "Expired" {
		t.Fatalf("unexpected error response: %+v", resp)
	}

	rr = httptest.NewRecorder()
	writeErrorResponse(rr, http.StatusNotFound, "Order not found")
	if strings.Contains(rr.Body.String(), `"code"`) {
		t.Fatalf("code must be omitted when empty: %s", rr.Body.String())
	}
}
