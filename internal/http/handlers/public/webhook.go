package public

import (
	"io"

	"github.com/dujiao-next/payin/internal/http/response"

	"github.com/gin-gonic/gin"
)

const webhookBodyLimit = 1 << 20

// StripeWebhook 渠道回调：校验签名后投递对账任务，不直接修改状态
func (h *Handler) StripeWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		log.Warnw("stripe_webhook_body_read_failed", "error", err)
		respondError(c, response.CodeBadRequest, "request body is invalid", nil)
		return
	}
	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	log.Infow("stripe_webhook_received", "client_ip", c.ClientIP(), "body_size", len(body))

	event, err := h.CartPaymentService.HandleProviderWebhook(c.Request.Context(), headers, body)
	if err != nil {
		log.Warnw("stripe_webhook_handle_failed", "error", err)
		respondWebhookError(c, err)
		return
	}
	response.Success(c, gin.H{
		"accepted":   true,
		"event_id":   event.EventID,
		"event_type": event.EventType,
	})
}
