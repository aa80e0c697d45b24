package public

import (
	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

// getBoundPayerID 返回凭证绑定的付款方，为空表示不限
func getBoundPayerID(c *gin.Context) string {
	return handlershared.GetContextString(c, handlershared.ContextPayerID)
}

func parseCartPaymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
