package public

import (
	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/http/response"
	"github.com/dujiao-next/payin/internal/payment/stripe"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
)

var issueTokenErrorRules = []handlershared.MappedHandlerError{
	{Target: service.ErrInvalidCredentials, Code: response.CodeUnauthorized, Msg: "client key or secret is invalid"},
	{Target: service.ErrClientDisabled, Code: response.CodeUnauthorized, Msg: "client is disabled"},
}

var webhookErrorRules = []handlershared.MappedHandlerError{
	{Target: stripe.ErrSignatureInvalid, Code: response.CodeBadRequest, Msg: "webhook signature is invalid"},
	{Target: stripe.ErrResponseInvalid, Code: response.CodeBadRequest, Msg: "webhook payload is invalid"},
	{Target: stripe.ErrConfigInvalid, Code: response.CodeInternal, Msg: "webhook secret is not configured"},
}

func respondIssueTokenError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, issueTokenErrorRules, response.CodeInternal, "issue token failed")
}

func respondCartPaymentError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondWithMappedError(c, err, handlershared.CartPaymentErrorRules, response.CodeInternal, fallbackMsg)
}

func respondWebhookError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, webhookErrorRules, response.CodeInternal, "webhook handling failed")
}
