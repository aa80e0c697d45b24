package service

import (
	"errors"
	"fmt"
)

// PayinErrorCode 支付错误码（对调用方稳定）
type PayinErrorCode string

// 支付错误码
const (
	CodePaymentIntentCreateStripeError  PayinErrorCode = "PAYMENT_INTENT_CREATE_STRIPE_ERROR"
	CodePaymentIntentCaptureStripeError PayinErrorCode = "PAYMENT_INTENT_CAPTURE_STRIPE_ERROR"
	CodePaymentIntentCaptureInvalid     PayinErrorCode = "PAYMENT_INTENT_CAPTURE_INVALID_STATE"
	CodePaymentIntentCancelInvalid      PayinErrorCode = "PAYMENT_INTENT_CANCEL_INVALID_STATE"
	CodePaymentIntentAdjustRefundError  PayinErrorCode = "PAYMENT_INTENT_ADJUST_REFUND_ERROR"
	CodePaymentIntentRefundInvalid      PayinErrorCode = "PAYMENT_INTENT_REFUND_INVALID_STATE"
	CodePaymentIntentProviderTimeout    PayinErrorCode = "PAYMENT_INTENT_PROVIDER_TIMEOUT"
	CodePaymentIntentStatusUnknown      PayinErrorCode = "PAYMENT_INTENT_STATUS_UNKNOWN"
	CodeCartPaymentNotFound             PayinErrorCode = "CART_PAYMENT_NOT_FOUND"
	CodeCartPaymentAccessDenied         PayinErrorCode = "CART_PAYMENT_ACCESS_DENIED"
	CodeCartPaymentAmountInvalid        PayinErrorCode = "CART_PAYMENT_AMOUNT_INVALID"
	CodeCartPaymentLockUnavailable      PayinErrorCode = "CART_PAYMENT_LOCK_UNAVAILABLE"
	CodeCartPaymentIdempotencyConflict  PayinErrorCode = "CART_PAYMENT_IDEMPOTENCY_CONFLICT"
	CodeCartPaymentRequestInvalid       PayinErrorCode = "CART_PAYMENT_REQUEST_INVALID"
)

var (
	ErrCartPaymentCreate       = errors.New("cart payment create failed")
	ErrPaymentIntentCapture    = errors.New("payment intent capture failed")
	ErrPaymentIntentCancel     = errors.New("payment intent cancel failed")
	ErrPaymentIntentRefund     = errors.New("payment intent refund failed")
	ErrPaymentChargeRefund     = errors.New("payment charge refund failed")
	ErrUnknownProviderStatus   = errors.New("unknown provider status")
	ErrIllegalChargeStatus     = errors.New("illegal charge status")
	ErrCartPaymentNotFound     = errors.New("cart payment not found")
	ErrCartPaymentAccessDenied = errors.New("cart payment access denied")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrProviderOutcomeUnknown  = errors.New("provider outcome unknown")
	ErrCartPaymentBusy         = errors.New("cart payment is busy")
	ErrIdempotencyConflict     = errors.New("idempotency key conflict")
	ErrCartPaymentInvalid      = errors.New("cart payment request invalid")
)

// PayinError 支付领域错误，调用方按 Code 分支
type PayinError struct {
	Code      PayinErrorCode
	Message   string
	Retryable bool
	Err       error

	kind error
}

func (e *PayinError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 同时暴露错误类别与底层原因
func (e *PayinError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// AsPayinError 提取支付领域错误
func AsPayinError(err error) (*PayinError, bool) {
	var payinErr *PayinError
	if errors.As(err, &payinErr) {
		return payinErr, true
	}
	return nil, false
}

// PayinErrorCodeOf 返回错误码，非领域错误返回空串
func PayinErrorCodeOf(err error) PayinErrorCode {
	if payinErr, ok := AsPayinError(err); ok {
		return payinErr.Code
	}
	return ""
}

func newPayinError(kind error, code PayinErrorCode, message string, retryable bool, cause error) *PayinError {
	return &PayinError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Err:       cause,
		kind:      kind,
	}
}

func cartPaymentCreateError(cause error) error {
	return newPayinError(ErrCartPaymentCreate, CodePaymentIntentCreateStripeError, "provider rejected payment intent creation", false, cause)
}

func paymentIntentCaptureError(code PayinErrorCode, message string, cause error) error {
	return newPayinError(ErrPaymentIntentCapture, code, message, code == CodePaymentIntentCaptureStripeError, cause)
}

func paymentIntentCancelError(code PayinErrorCode, message string, cause error) error {
	return newPayinError(ErrPaymentIntentCancel, code, message, false, cause)
}

func paymentIntentRefundError(code PayinErrorCode, message string) error {
	return newPayinError(ErrPaymentIntentRefund, code, message, false, nil)
}

func paymentChargeRefundError(cause error) error {
	return newPayinError(ErrPaymentChargeRefund, CodePaymentIntentAdjustRefundError, "provider rejected refund", false, cause)
}

func providerTimeoutError(operation string, cause error) error {
	return newPayinError(ErrProviderOutcomeUnknown, CodePaymentIntentProviderTimeout, operation+" outcome unknown, reconciliation scheduled", true, cause)
}

func unknownProviderStatusError(status string) error {
	return newPayinError(ErrUnknownProviderStatus, CodePaymentIntentStatusUnknown, fmt.Sprintf("unknown provider status %q", status), false, nil)
}

func cartPaymentNotFoundError() error {
	return newPayinError(ErrCartPaymentNotFound, CodeCartPaymentNotFound, "cart payment not found", false, nil)
}

func cartPaymentAccessDeniedError() error {
	return newPayinError(ErrCartPaymentAccessDenied, CodeCartPaymentAccessDenied, "cart payment not accessible", false, nil)
}

func invalidAmountError(message string) error {
	return newPayinError(ErrInvalidAmount, CodeCartPaymentAmountInvalid, message, false, nil)
}

func cartPaymentBusyError(cause error) error {
	return newPayinError(ErrCartPaymentBusy, CodeCartPaymentLockUnavailable, "cart payment is being modified", true, cause)
}

func idempotencyConflictError(key string) error {
	return newPayinError(ErrIdempotencyConflict, CodeCartPaymentIdempotencyConflict, fmt.Sprintf("idempotency key %q already used", key), false, nil)
}

func invalidRequestError(message string) error {
	return newPayinError(ErrCartPaymentInvalid, CodeCartPaymentRequestInvalid, message, false, nil)
}
