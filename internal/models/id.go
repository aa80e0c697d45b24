package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID 生成按时间有序的主键（UUIDv7），失败时回退到随机 UUID
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = NewID()
	}
}

// BeforeCreate 创建前补齐主键
func (m *CartPayment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// BeforeCreate 创建前补齐主键
func (m *PaymentIntent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// BeforeCreate 创建前补齐主键
func (m *PgpPaymentIntent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// BeforeCreate 创建前补齐主键
func (m *PaymentCharge) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// BeforeCreate 创建前补齐主键
func (m *PgpPaymentCharge) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// BeforeCreate 创建前补齐主键
func (m *PaymentIntentAdjustmentHistory) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
