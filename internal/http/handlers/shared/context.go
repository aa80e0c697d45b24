package shared

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// 鉴权中间件写入的上下文键
const (
	ContextClientID   = "client_id"
	ContextClientKey  = "client_key"
	ContextClientRole = "client_role"
	ContextPayerID    = "payer_id"
)

// GetContextString 读取字符串上下文值，缺失时返回空串。
func GetContextString(c *gin.Context, key string) string {
	value, ok := c.Get(key)
	if !ok {
		return ""
	}
	text, _ := value.(string)
	return strings.TrimSpace(text)
}
