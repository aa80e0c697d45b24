package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentCharge 扣款记录（授权被捕获或自动扣款后产生）
type PaymentCharge struct {
	ID                   uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentIntentID      uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"payment_intent_id"`
	Provider             string     `gorm:"type:varchar(32);not null" json:"provider"`
	IdempotencyKey       string     `gorm:"type:varchar(128);index;not null" json:"idempotency_key"`
	Status               string     `gorm:"type:varchar(32);index;not null" json:"status"`
	Currency             string     `gorm:"type:varchar(8);not null" json:"currency"`
	Amount               int64      `gorm:"not null" json:"amount"`
	AmountRefunded       int64      `gorm:"not null;default:0" json:"amount_refunded"`
	ApplicationFeeAmount int64      `gorm:"not null;default:0" json:"application_fee_amount"`
	PayoutAccountID      string     `gorm:"type:varchar(64)" json:"payout_account_id"`
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	CapturedAt           *time.Time `json:"captured_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
}

// TableName 指定表名
func (PaymentCharge) TableName() string {
	return "payment_charges"
}

// PgpPaymentCharge 渠道侧扣款镜像
type PgpPaymentCharge struct {
	ID                      uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentChargeID         uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"payment_charge_id"`
	Provider                string     `gorm:"type:varchar(32);not null" json:"provider"`
	IdempotencyKey          string     `gorm:"type:varchar(128);index;not null" json:"idempotency_key"`
	Status                  string     `gorm:"type:varchar(32);index;not null" json:"status"`
	Currency                string     `gorm:"type:varchar(8);not null" json:"currency"`
	Amount                  int64      `gorm:"not null" json:"amount"`
	AmountRefunded          int64      `gorm:"not null;default:0" json:"amount_refunded"`
	ApplicationFeeAmount    int64      `gorm:"not null;default:0" json:"application_fee_amount"`
	PayoutAccountID         string     `gorm:"type:varchar(64)" json:"payout_account_id"`
	ResourceID              string     `gorm:"type:varchar(128);index" json:"resource_id"`
	IntentResourceID        string     `gorm:"type:varchar(128)" json:"intent_resource_id"`
	InvoiceResourceID       string     `gorm:"type:varchar(128)" json:"invoice_resource_id"`
	PaymentMethodResourceID string     `gorm:"type:varchar(128)" json:"payment_method_resource_id"`
	CreatedAt               time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	CapturedAt              *time.Time `json:"captured_at,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
}

// TableName 指定表名
func (PgpPaymentCharge) TableName() string {
	return "pgp_payment_charges"
}
