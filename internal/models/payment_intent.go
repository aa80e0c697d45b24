package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentIntent 支付意图（一次向渠道发起的授权尝试）
type PaymentIntent struct {
	ID                   uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	CartPaymentID        uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"cart_payment_id"`
	PayerID              string     `gorm:"type:varchar(64);index;not null" json:"payer_id"`
	IdempotencyKey       string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"idempotency_key"`
	Amount               int64      `gorm:"not null" json:"amount"`
	AmountCapturable     int64      `gorm:"not null;default:0" json:"amount_capturable"`
	AmountReceived       int64      `gorm:"not null;default:0" json:"amount_received"`
	ApplicationFeeAmount int64      `gorm:"not null;default:0" json:"application_fee_amount"`
	Currency             string     `gorm:"type:varchar(8);not null" json:"currency"`
	Country              string     `gorm:"type:varchar(8);not null" json:"country"`
	CaptureMethod        string     `gorm:"type:varchar(16);not null" json:"capture_method"`
	ConfirmationMethod   string     `gorm:"type:varchar(16);not null" json:"confirmation_method"`
	Status               string     `gorm:"type:varchar(32);index;not null" json:"status"`
	StatementDescriptor  string     `gorm:"type:varchar(64)" json:"statement_descriptor"`
	CaptureAfter         *time.Time `gorm:"index" json:"capture_after,omitempty"`
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	CapturedAt           *time.Time `json:"captured_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
}

// TableName 指定表名
func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// PgpPaymentIntent 渠道侧支付意图镜像
type PgpPaymentIntent struct {
	ID                      uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentIntentID         uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"payment_intent_id"`
	IdempotencyKey          string     `gorm:"type:varchar(128);index;not null" json:"idempotency_key"`
	Provider                string     `gorm:"type:varchar(32);not null" json:"provider"`
	ResourceID              string     `gorm:"type:varchar(128);index" json:"resource_id"`
	ChargeResourceID        string     `gorm:"type:varchar(128)" json:"charge_resource_id"`
	PaymentMethodResourceID string     `gorm:"type:varchar(128)" json:"payment_method_resource_id"`
	CustomerResourceID      string     `gorm:"type:varchar(128)" json:"customer_resource_id"`
	Currency                string     `gorm:"type:varchar(8);not null" json:"currency"`
	Amount                  int64      `gorm:"not null" json:"amount"`
	AmountCapturable        int64      `gorm:"not null;default:0" json:"amount_capturable"`
	AmountReceived          int64      `gorm:"not null;default:0" json:"amount_received"`
	ApplicationFeeAmount    int64      `gorm:"not null;default:0" json:"application_fee_amount"`
	CaptureMethod           string     `gorm:"type:varchar(16);not null" json:"capture_method"`
	ConfirmationMethod      string     `gorm:"type:varchar(16);not null" json:"confirmation_method"`
	Status                  string     `gorm:"type:varchar(32);index;not null" json:"status"`
	StatementDescriptor     string     `gorm:"type:varchar(64)" json:"statement_descriptor"`
	CreatedAt               time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	CapturedAt              *time.Time `json:"captured_at,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
}

// TableName 指定表名
func (PgpPaymentIntent) TableName() string {
	return "pgp_payment_intents"
}

// PaymentIntentAdjustmentHistory 金额调整流水（只追加）
type PaymentIntentAdjustmentHistory struct {
	ID              uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	PayerID         string    `gorm:"type:varchar(64);index;not null" json:"payer_id"`
	PaymentIntentID uuid.UUID `gorm:"type:varchar(36);index;not null" json:"payment_intent_id"`
	Amount          int64     `gorm:"not null" json:"amount"`
	AmountOriginal  int64     `gorm:"not null" json:"amount_original"`
	AmountDelta     int64     `gorm:"not null" json:"amount_delta"`
	Currency        string    `gorm:"type:varchar(8);not null" json:"currency"`
	IdempotencyKey  string    `gorm:"type:varchar(128);index" json:"idempotency_key"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (PaymentIntentAdjustmentHistory) TableName() string {
	return "payment_intent_adjustment_histories"
}
