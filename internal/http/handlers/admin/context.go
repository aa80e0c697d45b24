package admin

import (
	"github.com/dujiao-next/payin/internal/http/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// parseCartPaymentID 解析路径中的购物车支付 ID，非法时直接响应
func parseCartPaymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		respondError(c, response.CodeBadRequest, "cart payment id is invalid", nil)
		return uuid.Nil, false
	}
	return id, true
}
