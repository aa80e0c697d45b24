package shared

import (
	"time"

	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/google/uuid"
)

// PaymentIntentView 返回给调用方的支付意图摘要
type PaymentIntentView struct {
	ID               uuid.UUID    `json:"id"`
	Status           string       `json:"status"`
	Amount           int64        `json:"amount"`
	AmountDisplay    models.Money `json:"amount_display"`
	AmountCapturable int64        `json:"amount_capturable"`
	AmountReceived   int64        `json:"amount_received"`
	Currency         string       `json:"currency"`
	CaptureMethod    string       `json:"capture_method"`
	CaptureAfter     *time.Time   `json:"capture_after,omitempty"`
	CapturedAt       *time.Time   `json:"captured_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// CartPaymentView 购物车支付响应体
type CartPaymentView struct {
	*models.CartPayment
	AmountDisplay models.Money       `json:"amount_display"`
	PaymentIntent *PaymentIntentView `json:"payment_intent,omitempty"`
}

// AdjustmentHistoryView 金额调整流水
type AdjustmentHistoryView struct {
	models.PaymentIntentAdjustmentHistory
	AmountDisplay models.Money `json:"amount_display"`
	DeltaDisplay  models.Money `json:"amount_delta_display"`
}

// NewCartPaymentView 构建购物车支付响应
func NewCartPaymentView(resp *service.CartPaymentResponse) *CartPaymentView {
	if resp == nil || resp.CartPayment == nil {
		return nil
	}
	view := NewCartPaymentListItem(resp.CartPayment)
	if intent := resp.PaymentIntent; intent != nil {
		view.PaymentIntent = &PaymentIntentView{
			ID:               intent.ID,
			Status:           intent.Status,
			Amount:           intent.Amount,
			AmountDisplay:    models.NewMoneyFromMinor(intent.Amount, intent.Currency),
			AmountCapturable: intent.AmountCapturable,
			AmountReceived:   intent.AmountReceived,
			Currency:         intent.Currency,
			CaptureMethod:    intent.CaptureMethod,
			CaptureAfter:     intent.CaptureAfter,
			CapturedAt:       intent.CapturedAt,
			CancelledAt:      intent.CancelledAt,
			CreatedAt:        intent.CreatedAt,
		}
	}
	return view
}

// NewCartPaymentListItem 列表项不带支付意图
func NewCartPaymentListItem(cartPayment *models.CartPayment) *CartPaymentView {
	if cartPayment == nil {
		return nil
	}
	return &CartPaymentView{
		CartPayment:   cartPayment,
		AmountDisplay: models.NewMoneyFromMinor(cartPayment.Amount, cartPayment.Currency),
	}
}

// NewAdjustmentHistoryViews 构建调整流水列表
func NewAdjustmentHistoryViews(rows []models.PaymentIntentAdjustmentHistory) []AdjustmentHistoryView {
	views := make([]AdjustmentHistoryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, AdjustmentHistoryView{
			PaymentIntentAdjustmentHistory: row,
			AmountDisplay:                  models.NewMoneyFromMinor(row.Amount, row.Currency),
			DeltaDisplay:                   models.NewMoneyFromMinor(row.AmountDelta, row.Currency),
		})
	}
	return views
}
