package admin

import (
	"strings"
	"time"

	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/http/response"
	"github.com/dujiao-next/payin/internal/repository"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
)

// ListCartPaymentsQuery 后台列表查询参数
type ListCartPaymentsQuery struct {
	Page          int    `form:"page"`
	PageSize      int    `form:"page_size"`
	PayerID       string `form:"payer_id"`
	Keyword       string `form:"keyword"`
	MetadataKey   string `form:"metadata_key"`
	MetadataValue string `form:"metadata_value"`
	CreatedFrom   string `form:"created_from"`
	CreatedTo     string `form:"created_to"`
}

// RefundCartPaymentRequest 退款请求，amount 为空表示全额
type RefundCartPaymentRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ListCartPayments 分页查询购物车支付
func (h *Handler) ListCartPayments(c *gin.Context) {
	var query ListCartPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "query is invalid", nil)
		return
	}
	createdFrom, err := parseTimeParam(query.CreatedFrom, false)
	if err != nil {
		respondError(c, response.CodeBadRequest, "created_from is invalid", nil)
		return
	}
	createdTo, err := parseTimeParam(query.CreatedTo, true)
	if err != nil {
		respondError(c, response.CodeBadRequest, "created_to is invalid", nil)
		return
	}
	page, pageSize := handlershared.NormalizePagination(query.Page, query.PageSize)

	items, total, err := h.CartPaymentService.ListCartPayments(c.Request.Context(), repository.CartPaymentListFilter{
		Page:          page,
		PageSize:      pageSize,
		PayerID:       strings.TrimSpace(query.PayerID),
		Search:        strings.TrimSpace(query.Keyword),
		MetadataKey:   strings.TrimSpace(query.MetadataKey),
		MetadataValue: strings.TrimSpace(query.MetadataValue),
		CreatedFrom:   createdFrom,
		CreatedTo:     createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "list cart payments failed", err)
		return
	}
	views := make([]*handlershared.CartPaymentView, 0, len(items))
	for i := range items {
		views = append(views, handlershared.NewCartPaymentListItem(&items[i]))
	}
	response.SuccessWithPage(c, views, response.NewPagination(page, pageSize, total))
}

// GetCartPayment 查询任意付款方的购物车支付
func (h *Handler) GetCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		return
	}
	result, err := h.CartPaymentService.GetCartPayment(c.Request.Context(), id, "")
	if err != nil {
		respondCartPaymentError(c, err, "get cart payment failed")
		return
	}
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// ListAdjustmentHistory 查询金额调整流水
func (h *Handler) ListAdjustmentHistory(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		return
	}
	rows, err := h.CartPaymentService.ListAdjustmentHistory(c.Request.Context(), id)
	if err != nil {
		respondCartPaymentError(c, err, "list adjustment history failed")
		return
	}
	response.Success(c, handlershared.NewAdjustmentHistoryViews(rows))
}

// CaptureCartPayment 捕获最近一次已授权的支付意图
func (h *Handler) CaptureCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		return
	}
	result, err := h.CartPaymentService.CapturePayment(c.Request.Context(), id)
	if err != nil {
		respondCartPaymentError(c, err, "capture cart payment failed")
		return
	}
	h.audit(c, "cart_payment_captured", id.String())
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// CancelCartPayment 取消购物车支付（已捕获时转为全额退款）
func (h *Handler) CancelCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		return
	}
	result, err := h.CartPaymentService.CancelPayment(c.Request.Context(), id)
	if err != nil {
		respondCartPaymentError(c, err, "cancel cart payment failed")
		return
	}
	h.audit(c, "cart_payment_cancelled", id.String())
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// RefundCartPayment 对已捕获的支付意图退款
func (h *Handler) RefundCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		return
	}
	var req RefundCartPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "request body is invalid", nil)
			return
		}
	}
	result, err := h.CartPaymentService.RefundPayment(c.Request.Context(), service.RefundPaymentInput{
		CartPaymentID:  id,
		Amount:         req.Amount,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		respondCartPaymentError(c, err, "refund cart payment failed")
		return
	}
	h.audit(c, "cart_payment_refunded", id.String(), "amount", req.Amount)
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// ReconcileCartPayment 立即对账最近一次支付意图
func (h *Handler) ReconcileCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		return
	}
	result, err := h.CartPaymentService.ReconcileCartPayment(c.Request.Context(), id)
	if err != nil {
		respondCartPaymentError(c, err, "reconcile cart payment failed")
		return
	}
	h.audit(c, "cart_payment_reconciled", id.String())
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// audit 记录运维操作人
func (h *Handler) audit(c *gin.Context, event, cartPaymentID string, kv ...interface{}) {
	clientID, _ := c.Get(handlershared.ContextClientID)
	fields := append([]interface{}{"cart_payment_id", cartPaymentID, "operator_client_id", clientID}, kv...)
	requestLog(c).Infow(event, fields...)
}

// parseTimeParam 支持 RFC3339 与日期；日期作为结束条件时取当天末尾
func parseTimeParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}
