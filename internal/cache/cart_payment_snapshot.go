package cache

import (
	"context"
	"time"

	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/models"

	"github.com/google/uuid"
)

const defaultSnapshotTTL = 5 * time.Minute

// CartPaymentSnapshot 购物车支付读取快照
type CartPaymentSnapshot struct {
	CartPayment   models.CartPayment    `json:"cart_payment"`
	PaymentIntent *models.PaymentIntent `json:"payment_intent,omitempty"`
}

// CartPaymentSnapshotStore 基于 Redis 的购物车支付快照缓存，Redis 未启用时所有操作为空操作
type CartPaymentSnapshotStore struct {
	ttl time.Duration
}

// NewCartPaymentSnapshotStore 创建快照缓存
func NewCartPaymentSnapshotStore(ttl time.Duration) *CartPaymentSnapshotStore {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &CartPaymentSnapshotStore{ttl: ttl}
}

func cartPaymentSnapshotKey(id uuid.UUID) string {
	return "cart_payment:snapshot:" + id.String()
}

// Get 读取快照，未命中或出错时返回 false
func (s *CartPaymentSnapshotStore) Get(ctx context.Context, id uuid.UUID) (*CartPaymentSnapshot, bool) {
	var snapshot CartPaymentSnapshot
	hit, err := GetJSON(ctx, cartPaymentSnapshotKey(id), &snapshot)
	if err != nil {
		logger.Warnw("cart_payment_snapshot_get_failed", "cart_payment_id", id.String(), "error", err)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &snapshot, true
}

// Set 写入快照
func (s *CartPaymentSnapshotStore) Set(ctx context.Context, snapshot *CartPaymentSnapshot) {
	if snapshot == nil || snapshot.CartPayment.ID == uuid.Nil {
		return
	}
	if err := SetJSON(ctx, cartPaymentSnapshotKey(snapshot.CartPayment.ID), snapshot, s.ttl); err != nil {
		logger.Warnw("cart_payment_snapshot_set_failed", "cart_payment_id", snapshot.CartPayment.ID.String(), "error", err)
	}
}

// Invalidate 删除快照
func (s *CartPaymentSnapshotStore) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := Del(ctx, cartPaymentSnapshotKey(id)); err != nil {
		logger.Warnw("cart_payment_snapshot_invalidate_failed", "cart_payment_id", id.String(), "error", err)
	}
}
