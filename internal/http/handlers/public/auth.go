package public

import (
	"strings"

	"github.com/dujiao-next/payin/internal/http/response"

	"github.com/gin-gonic/gin"
)

// IssueTokenRequest 换取访问令牌请求
type IssueTokenRequest struct {
	ClientKey    string `json:"client_key" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// IssueToken 使用接入方凭证换取 Bearer 令牌
func (h *Handler) IssueToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "client_key and client_secret are required", nil)
		return
	}
	client, token, expiresAt, err := h.AuthService.IssueToken(c.Request.Context(), strings.TrimSpace(req.ClientKey), req.ClientSecret)
	if err != nil {
		requestLog(c).Warnw("issue_token_failed", "client_key", req.ClientKey, "error", err)
		respondIssueTokenError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt,
		"client": gin.H{
			"id":         client.ID,
			"client_key": client.ClientKey,
			"role":       client.Role,
			"payer_id":   client.PayerID,
		},
	})
}
