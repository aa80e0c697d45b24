package shared

import (
	"errors"

	"github.com/dujiao-next/payin/internal/http/response"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedHandlerError 定义业务错误到接口错误响应的映射关系。
// Target 按 errors.Is 匹配，PayinCode 按领域错误码匹配。
type MappedHandlerError struct {
	Target    error
	PayinCode service.PayinErrorCode
	Code      int
	Msg       string
}

func (r MappedHandlerError) matches(err error) bool {
	if r.Target != nil && errors.Is(err, r.Target) {
		return true
	}
	return r.PayinCode != "" && service.PayinErrorCodeOf(err) == r.PayinCode
}

// CartPaymentErrorRules 购物车支付错误码映射
var CartPaymentErrorRules = []MappedHandlerError{
	{PayinCode: service.CodeCartPaymentRequestInvalid, Code: response.CodeBadRequest, Msg: "request is invalid"},
	{PayinCode: service.CodeCartPaymentAmountInvalid, Code: response.CodeBadRequest, Msg: "amount is invalid"},
	{PayinCode: service.CodeCartPaymentNotFound, Code: response.CodeNotFound, Msg: "cart payment not found"},
	{PayinCode: service.CodeCartPaymentAccessDenied, Code: response.CodeForbidden, Msg: "cart payment not accessible"},
	{PayinCode: service.CodeCartPaymentIdempotencyConflict, Code: response.CodeConflict, Msg: "idempotency key already used"},
	{PayinCode: service.CodeCartPaymentLockUnavailable, Code: response.CodeConflict, Msg: "cart payment is busy, retry later"},
	{PayinCode: service.CodePaymentIntentCaptureInvalid, Code: response.CodeConflict, Msg: "payment intent cannot be captured"},
	{PayinCode: service.CodePaymentIntentCancelInvalid, Code: response.CodeConflict, Msg: "payment intent cannot be cancelled"},
	{PayinCode: service.CodePaymentIntentRefundInvalid, Code: response.CodeConflict, Msg: "payment intent cannot be refunded"},
	{PayinCode: service.CodePaymentIntentCreateStripeError, Code: response.CodePaymentRejected, Msg: "payment rejected by provider"},
	{PayinCode: service.CodePaymentIntentAdjustRefundError, Code: response.CodePaymentRejected, Msg: "refund rejected by provider"},
	{PayinCode: service.CodePaymentIntentCaptureStripeError, Code: response.CodeBadGateway, Msg: "capture failed at provider"},
	{PayinCode: service.CodePaymentIntentStatusUnknown, Code: response.CodeBadGateway, Msg: "provider returned an unknown status"},
	{PayinCode: service.CodePaymentIntentProviderTimeout, Code: response.CodeGatewayTimeout, Msg: "provider outcome unknown, reconciliation scheduled"},
}

// RespondWithMappedError 按映射表输出错误，未命中时返回兜底错误并记录原始错误。
func RespondWithMappedError(c *gin.Context, err error, rules []MappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if !rule.matches(err) {
			continue
		}
		appErr := &response.AppError{Code: rule.Code, Message: rule.Msg}
		if payinErr, ok := service.AsPayinError(err); ok {
			appErr.ErrorCode = string(payinErr.Code)
			appErr.Retryable = payinErr.Retryable
			if payinErr.Message != "" {
				appErr.Message = payinErr.Message
			}
		}
		if appErr.Code >= response.CodeInternal {
			appErr.Err = err
		}
		RespondAppError(c, appErr)
		return
	}
	RespondError(c, fallbackCode, fallbackMsg, err)
}

// ConcatMappedHandlerErrors 合并多组映射规则。
func ConcatMappedHandlerErrors(groups ...[]MappedHandlerError) []MappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]MappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}
