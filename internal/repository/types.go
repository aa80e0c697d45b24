package repository

import (
	"time"

	"github.com/dujiao-next/payin/internal/models"
)

// CartPaymentListFilter 查询购物车支付列表的过滤条件
type CartPaymentListFilter struct {
	Page          int
	PageSize      int
	PayerID       string
	Search        string
	MetadataKey   string
	MetadataValue string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// CartPaymentDetailsUpdate 购物车支付可更新字段（nil 表示不更新）
type CartPaymentDetailsUpdate struct {
	Amount                    *int64
	PaymentMethodID           *string
	ClientDescription         *string
	PayerStatementDescription *string
	Metadata                  models.JSON
}

// PaymentIntentUpdate 支付意图状态推进字段
type PaymentIntentUpdate struct {
	Status           string
	AmountCapturable *int64
	AmountReceived   *int64
	CapturedAt       *time.Time
	CancelledAt      *time.Time
	CaptureAfter     *time.Time
}

// PgpPaymentIntentUpdate 渠道支付意图更新字段
type PgpPaymentIntentUpdate struct {
	Status                  string
	ResourceID              string
	ChargeResourceID        string
	PaymentMethodResourceID string
	AmountCapturable        *int64
	AmountReceived          *int64
	CapturedAt              *time.Time
	CancelledAt             *time.Time
}

// PaymentChargeUpdate 扣款更新字段
type PaymentChargeUpdate struct {
	Status         string
	Amount         *int64
	AmountRefunded *int64
	CapturedAt     *time.Time
	CancelledAt    *time.Time
}

// PgpPaymentChargeUpdate 渠道扣款更新字段
type PgpPaymentChargeUpdate struct {
	Status                  string
	Amount                  *int64
	AmountRefunded          *int64
	ResourceID              string
	IntentResourceID        string
	InvoiceResourceID       string
	PaymentMethodResourceID string
	CapturedAt              *time.Time
	CancelledAt             *time.Time
}
