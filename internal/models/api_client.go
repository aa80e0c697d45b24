package models

import (
	"time"

	"gorm.io/gorm"
)

// APIClient 接入方凭证
type APIClient struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                    // 主键
	ClientKey   string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"client_key"` // 接入方标识
	SecretHash  string         `gorm:"not null" json:"-"`                                       // 密钥哈希
	Role        string         `gorm:"type:varchar(32);not null;index" json:"role"`             // 角色 payer_client/operator
	PayerID     string         `gorm:"type:varchar(64);index" json:"payer_id"`                  // 绑定付款方（为空表示不限）
	Status      string         `gorm:"type:varchar(16);not null;default:active" json:"status"`  // 状态
	LastLoginAt *time.Time     `json:"last_login_at"`                                           // 最后换取 Token 时间
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt   time.Time      `json:"updated_at"`                                              // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间
}

// TableName 指定表名
func (APIClient) TableName() string {
	return "api_clients"
}
