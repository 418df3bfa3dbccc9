package gateway

import (
	"context"
	"errors"
	"testing"

	"storefront-payments/internal/config"
	"storefront-payments/internal/logger"

	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	data map[string]interface{}
	err  error
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"id": "order_abc", "amount": float64(data["amount"].(int64)), "currency": data["currency"]}, nil
}

type fakePayments struct {
	payment      map[string]interface{}
	refundAmount int
	refundErr    error
}

func (f *fakePayments) Fetch(paymentID string, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	if f.payment == nil {
		return nil, errors.New("not found")
	}
	return f.payment, nil
}

func (f *fakePayments) Refund(paymentID string, amount int, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refundAmount = amount
	return map[string]interface{}{"id": "rfnd_1", "payment_id": paymentID, "amount": float64(amount)}, nil
}

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{in: 4699, want: 469900},
		{in: 0.29, want: 29},
		{in: 10.005, want: 1001},
		{in: 99.99, want: 9999},
		{in: 0, want: 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ToMinorUnits(tc.in), "amount %v", tc.in)
	}
	require.Equal(t, 46.99, FromMinorUnits(4699))
}

func TestNewRazorpay_NotConfigured(t *testing.T) {
	r := NewRazorpay(&config.PaymentsConfig{KeyID: "rzp_test"}, newTestLogger())
	require.Equal(t, "rzp_test", r.KeyID())

	_, err := r.CreateOrder(context.Background(), 100, "INR", "r1", nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.Refund(context.Background(), "pay_1", nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = r.FetchPayment(context.Background(), "pay_1")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateOrder_AutoCapture(t *testing.T) {
	orders := &fakeOrders{}
	r := &Razorpay{orders: orders, keyID: "rzp_test", log: newTestLogger()}

	body, err := r.CreateOrder(context.Background(), 469900, "INR", "ORD-1", map[string]string{"order_id": "x"})
	require.NoError(t, err)
	require.Equal(t, "order_abc", StringField(body, "id"))
	require.Equal(t, int64(469900), IntField(body, "amount"))
	require.Equal(t, 1, orders.data["payment_capture"])
	require.Equal(t, "ORD-1", orders.data["receipt"])
	require.NotNil(t, orders.data["notes"])
}

func TestCreateOrder_ProviderError(t *testing.T) {
	r := &Razorpay{orders: &fakeOrders{err: errors.New("BAD_REQUEST_ERROR")}, log: newTestLogger()}
	_, err := r.CreateOrder(context.Background(), 100, "INR", "r", nil)
	require.Error(t, err)
}

func TestCreateOrder_CancelledContext(t *testing.T) {
	r := &Razorpay{orders: &fakeOrders{}, log: newTestLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.CreateOrder(ctx, 100, "INR", "r", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRefund_Partial(t *testing.T) {
	payments := &fakePayments{}
	r := &Razorpay{payments: payments, log: newTestLogger()}
	amount := int64(5000)

	body, err := r.Refund(context.Background(), "pay_1", &amount)
	require.NoError(t, err)
	require.Equal(t, 5000, payments.refundAmount)
	require.Equal(t, "rfnd_1", StringField(body, "id"))
}

func TestRefund_FullUsesRemainingAmount(t *testing.T) {
	payments := &fakePayments{payment: map[string]interface{}{"amount": float64(469900), "amount_refunded": float64(100)}}
	r := &Razorpay{payments: payments, log: newTestLogger()}

	_, err := r.Refund(context.Background(), "pay_1", nil)
	require.NoError(t, err)
	require.Equal(t, 469800, payments.refundAmount)
}

func TestRefund_NothingLeft(t *testing.T) {
	payments := &fakePayments{payment: map[string]interface{}{"amount": float64(100), "amount_refunded": float64(100)}}
	r := &Razorpay{payments: payments, log: newTestLogger()}

	_, err := r.Refund(context.Background(), "pay_1", nil)
	require.Error(t, err)
	require.Zero(t, payments.refundAmount)
}

func TestRefund_ProviderError(t *testing.T) {
	r := &Razorpay{payments: &fakePayments{refundErr: errors.New("refund failed")}, log: newTestLogger()}
	amount := int64(100)
	_, err := r.Refund(context.Background(), "pay_1", &amount)
	require.Error(t, err)
}
