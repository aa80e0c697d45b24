package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartPayment 购物车支付聚合（付款方可见）
type CartPayment struct {
	ID                        uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`               // 主键
	PayerID                   string         `gorm:"type:varchar(64);index;not null" json:"payer_id"`     // 付款方ID
	Amount                    int64          `gorm:"not null" json:"amount"`                              // 当前总金额（最小货币单位）
	Currency                  string         `gorm:"type:varchar(8);not null" json:"currency"`            // 币种
	CaptureMethod             string         `gorm:"type:varchar(16);not null" json:"capture_method"`     // 扣款方式 auto/manual
	PaymentMethodID           string         `gorm:"type:varchar(128)" json:"payment_method_id"`          // 支付方式ID
	ClientDescription         string         `gorm:"type:varchar(255)" json:"client_description"`         // 调用方描述
	PayerStatementDescription string         `gorm:"type:varchar(64)" json:"payer_statement_description"` // 账单描述
	Metadata                  JSON           `gorm:"type:json" json:"metadata,omitempty"`                 // 业务元数据
	LegacyPayment             JSON           `gorm:"type:json" json:"legacy_payment,omitempty"`           // 旧支付引用
	SplitPayment              JSON           `gorm:"type:json" json:"split_payment,omitempty"`            // 分账引用
	CreatedAt                 time.Time      `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt                 time.Time      `json:"updated_at"`                                          // 更新时间
	DeletedAt                 gorm.DeletedAt `gorm:"index" json:"-"`                                      // 软删除时间
}

// TableName 指定表名
func (CartPayment) TableName() string {
	return "cart_payments"
}
