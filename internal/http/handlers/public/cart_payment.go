package public

import (
	"strings"

	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/http/response"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
)

const idempotencyKeyHeader = "Idempotency-Key"

// CreateCartPaymentRequest 创建购物车支付请求
// amount 为最小货币单位；也可传 amount_decimal（如 "12.34"）
type CreateCartPaymentRequest struct {
	PayerID                   string      `json:"payer_id"`
	Amount                    int64       `json:"amount"`
	AmountDecimal             string      `json:"amount_decimal"`
	Currency                  string      `json:"currency"`
	Country                   string      `json:"country"`
	CaptureMethod             string      `json:"capture_method"`
	PaymentMethodID           string      `json:"payment_method_id"`
	CustomerID                string      `json:"customer_id"`
	IdempotencyKey            string      `json:"idempotency_key"`
	ClientDescription         string      `json:"client_description"`
	PayerStatementDescription string      `json:"payer_statement_description"`
	Metadata                  models.JSON `json:"metadata"`
	LegacyPayment             models.JSON `json:"legacy_payment"`
	SplitPayment              models.JSON `json:"split_payment"`
}

// AdjustCartPaymentRequest 调整购物车支付金额请求（amount 为调整后的总额）
type AdjustCartPaymentRequest struct {
	Amount                    int64       `json:"amount" binding:"required"`
	IdempotencyKey            string      `json:"idempotency_key"`
	ClientDescription         *string     `json:"client_description"`
	PayerStatementDescription *string     `json:"payer_statement_description"`
	Metadata                  models.JSON `json:"metadata"`
}

// CreateCartPayment 创建购物车支付
func (h *Handler) CreateCartPayment(c *gin.Context) {
	var req CreateCartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "request body is invalid", nil)
		return
	}

	payerID := getBoundPayerID(c)
	if payerID == "" {
		payerID = strings.TrimSpace(req.PayerID)
	} else if req.PayerID != "" && strings.TrimSpace(req.PayerID) != payerID {
		respondError(c, response.CodeForbidden, "payer_id does not match credential", nil)
		return
	}

	amount := req.Amount
	if amount == 0 && strings.TrimSpace(req.AmountDecimal) != "" {
		currency := req.Currency
		if strings.TrimSpace(currency) == "" {
			currency = h.Config.CartPayment.DefaultCurrency
		}
		parsed, err := models.ParseMinorAmount(req.AmountDecimal, currency)
		if err != nil {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		amount = parsed
	}

	result, err := h.CartPaymentService.SubmitNewPayment(c.Request.Context(), service.SubmitPaymentInput{
		PayerID:                   payerID,
		Amount:                    amount,
		Currency:                  req.Currency,
		Country:                   req.Country,
		CaptureMethod:             req.CaptureMethod,
		PaymentMethodResourceID:   req.PaymentMethodID,
		CustomerResourceID:        req.CustomerID,
		IdempotencyKey:            resolveIdempotencyKey(c, req.IdempotencyKey),
		ClientDescription:         req.ClientDescription,
		PayerStatementDescription: req.PayerStatementDescription,
		Metadata:                  req.Metadata,
		LegacyPayment:             req.LegacyPayment,
		SplitPayment:              req.SplitPayment,
	})
	if err != nil {
		respondCartPaymentError(c, err, "create cart payment failed")
		return
	}
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// GetCartPayment 查询购物车支付
func (h *Handler) GetCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		respondError(c, response.CodeBadRequest, "cart payment id is invalid", nil)
		return
	}
	result, err := h.CartPaymentService.GetCartPayment(c.Request.Context(), id, getBoundPayerID(c))
	if err != nil {
		respondCartPaymentError(c, err, "get cart payment failed")
		return
	}
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// AdjustCartPayment 调整购物车支付总额
func (h *Handler) AdjustCartPayment(c *gin.Context) {
	id, ok := parseCartPaymentID(c)
	if !ok {
		respondError(c, response.CodeBadRequest, "cart payment id is invalid", nil)
		return
	}
	var req AdjustCartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "amount is required", nil)
		return
	}
	result, err := h.CartPaymentService.UpdatePaymentAmount(c.Request.Context(), service.UpdateAmountInput{
		CartPaymentID:             id,
		AccessorPayerID:           getBoundPayerID(c),
		IdempotencyKey:            resolveIdempotencyKey(c, req.IdempotencyKey),
		Amount:                    req.Amount,
		ClientDescription:         req.ClientDescription,
		PayerStatementDescription: req.PayerStatementDescription,
		Metadata:                  req.Metadata,
	})
	if err != nil {
		respondCartPaymentError(c, err, "adjust cart payment failed")
		return
	}
	response.Success(c, handlershared.NewCartPaymentView(result))
}

// resolveIdempotencyKey 请求体优先，其次读取 Idempotency-Key 请求头
func resolveIdempotencyKey(c *gin.Context, bodyKey string) string {
	if key := strings.TrimSpace(bodyKey); key != "" {
		return key
	}
	return strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
}
