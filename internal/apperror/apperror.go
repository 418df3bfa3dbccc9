package apperror

import "errors"

// Kind describes a stable error category that can be mapped to HTTP status codes.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindSignature  Kind = "signature"
	KindGateway    Kind = "gateway"
)

// Машинные коды причин отказа. Возвращаются клиенту в поле "code".
const (
	CodeNotFound                = "NotFound"
	CodeInactive                = "Inactive"
	CodeNotYetValid             = "NotYetValid"
	CodeExpired                 = "Expired"
	CodeLimitReached            = "LimitReached"
	CodeBelowMinimum            = "BelowMinimum"
	CodeAlreadyDelivered        = "AlreadyDelivered"
	CodeInvalidTransition       = "InvalidTransition"
	CodeMissingVerificationData = "MissingVerificationData"
	CodeInvalidSignature        = "InvalidSignature"
	CodePaymentMismatch         = "PaymentMismatch"
	CodeGatewayError            = "GatewayError"
	CodeRefundError             = "RefundError"
)

// Error is a typed error with a stable Kind, an optional machine Code and a human-readable message.
// Msg should be safe to return to clients for every kind except gateway.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string, err error) error   { return New(KindNotFound, msg, err) }
func Validation(msg string, err error) error { return New(KindValidation, msg, err) }
func Conflict(msg string, err error) error   { return New(KindConflict, msg, err) }
func Signature(msg string, err error) error  { return New(KindSignature, msg, err) }
func Gateway(msg string, err error) error    { return New(KindGateway, msg, err) }

// WithCode проставляет машинный код. Для не-apperror ошибок возвращает ошибку без изменений.
func WithCode(err error, code string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	e.Code = code
	return err
}

func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// CodeOf возвращает машинный код ошибки или пустую строку.
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
