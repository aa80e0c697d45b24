package admin

import (
	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/http/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondCartPaymentError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondWithMappedError(c, err, handlershared.CartPaymentErrorRules, response.CodeInternal, fallbackMsg)
}
