package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartPaymentRepository 购物车支付数据访问接口
type CartPaymentRepository interface {
	Transaction(ctx context.Context, fn func(repo CartPaymentRepository) error) error

	InsertCartPayment(ctx context.Context, cartPayment *models.CartPayment) error
	GetCartPaymentByID(ctx context.Context, id uuid.UUID) (*models.CartPayment, error)
	UpdateCartPaymentDetails(ctx context.Context, id uuid.UUID, update CartPaymentDetailsUpdate) (*models.CartPayment, error)
	ListCartPayments(ctx context.Context, filter CartPaymentListFilter) ([]models.CartPayment, int64, error)

	InsertPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetPaymentIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	GetPaymentIntentForIdempotencyKey(ctx context.Context, payerID, idempotencyKey string) (*models.PaymentIntent, error)
	GetPaymentIntentsForCartPayment(ctx context.Context, cartPaymentID uuid.UUID) ([]models.PaymentIntent, error)
	ListPaymentIntentsByStatus(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error)
	UpdatePaymentIntentStatus(ctx context.Context, id uuid.UUID, expected []string, update PaymentIntentUpdate) (*models.PaymentIntent, error)
	UpdatePaymentIntentAmount(ctx context.Context, id uuid.UUID, amount int64) (*models.PaymentIntent, error)

	InsertPgpPaymentIntent(ctx context.Context, pgpIntent *models.PgpPaymentIntent) error
	FindPgpPaymentIntents(ctx context.Context, paymentIntentID uuid.UUID) ([]models.PgpPaymentIntent, error)
	GetPgpPaymentIntentByResourceID(ctx context.Context, provider, resourceID string) (*models.PgpPaymentIntent, error)
	UpdatePgpPaymentIntent(ctx context.Context, id uuid.UUID, update PgpPaymentIntentUpdate) (*models.PgpPaymentIntent, error)
	UpdatePgpPaymentIntentAmount(ctx context.Context, id uuid.UUID, amount int64) (*models.PgpPaymentIntent, error)

	InsertPaymentCharge(ctx context.Context, charge *models.PaymentCharge) error
	InsertPgpPaymentCharge(ctx context.Context, pgpCharge *models.PgpPaymentCharge) error
	GetPaymentChargeByIntent(ctx context.Context, paymentIntentID uuid.UUID) (*models.PaymentCharge, error)
	GetPgpPaymentChargeByCharge(ctx context.Context, paymentChargeID uuid.UUID) (*models.PgpPaymentCharge, error)
	UpdatePaymentChargeStatus(ctx context.Context, paymentIntentID uuid.UUID, status string) (*models.PaymentCharge, error)
	UpdatePgpPaymentChargeStatus(ctx context.Context, paymentChargeID uuid.UUID, status string) (*models.PgpPaymentCharge, error)
	UpdatePaymentCharge(ctx context.Context, paymentIntentID uuid.UUID, update PaymentChargeUpdate) (*models.PaymentCharge, error)
	UpdatePgpPaymentCharge(ctx context.Context, paymentChargeID uuid.UUID, update PgpPaymentChargeUpdate) (*models.PgpPaymentCharge, error)
	UpdatePaymentChargeAmount(ctx context.Context, paymentIntentID uuid.UUID, amount int64) (*models.PaymentCharge, error)
	UpdatePgpPaymentChargeAmount(ctx context.Context, paymentChargeID uuid.UUID, amount int64) (*models.PgpPaymentCharge, error)

	InsertPaymentIntentAdjustmentHistory(ctx context.Context, history *models.PaymentIntentAdjustmentHistory) error
	ListAdjustmentHistory(ctx context.Context, paymentIntentID uuid.UUID) ([]models.PaymentIntentAdjustmentHistory, error)
	GetAdjustmentHistoryForIdempotencyKey(ctx context.Context, payerID, idempotencyKey string) (*models.PaymentIntentAdjustmentHistory, error)
	ListPaymentIntentsDueForCapture(ctx context.Context, dueBefore time.Time, limit int) ([]models.PaymentIntent, error)
}

// GormCartPaymentRepository GORM 实现
type GormCartPaymentRepository struct {
	db *gorm.DB
}

// NewCartPaymentRepository 创建购物车支付仓库
func NewCartPaymentRepository(db *gorm.DB) *GormCartPaymentRepository {
	return &GormCartPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCartPaymentRepository) WithTx(tx *gorm.DB) *GormCartPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormCartPaymentRepository{db: tx}
}

// Transaction 在单个事务内执行
func (r *GormCartPaymentRepository) Transaction(ctx context.Context, fn func(repo CartPaymentRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// InsertCartPayment 创建购物车支付
func (r *GormCartPaymentRepository) InsertCartPayment(ctx context.Context, cartPayment *models.CartPayment) error {
	return r.db.WithContext(ctx).Create(cartPayment).Error
}

// GetCartPaymentByID 根据 ID 获取购物车支付
func (r *GormCartPaymentRepository) GetCartPaymentByID(ctx context.Context, id uuid.UUID) (*models.CartPayment, error) {
	var cartPayment models.CartPayment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cartPayment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cartPayment, nil
}

// UpdateCartPaymentDetails 更新购物车支付金额与描述
func (r *GormCartPaymentRepository) UpdateCartPaymentDetails(ctx context.Context, id uuid.UUID, update CartPaymentDetailsUpdate) (*models.CartPayment, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if update.Amount != nil {
		updates["amount"] = *update.Amount
	}
	if update.PaymentMethodID != nil {
		updates["payment_method_id"] = *update.PaymentMethodID
	}
	if update.ClientDescription != nil {
		updates["client_description"] = *update.ClientDescription
	}
	if update.PayerStatementDescription != nil {
		updates["payer_statement_description"] = *update.PayerStatementDescription
	}
	if update.Metadata != nil {
		updates["metadata"] = update.Metadata
	}
	result := r.db.WithContext(ctx).Model(&models.CartPayment{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetCartPaymentByID(ctx, id)
}

// ListCartPayments 分页查询购物车支付
func (r *GormCartPaymentRepository) ListCartPayments(ctx context.Context, filter CartPaymentListFilter) ([]models.CartPayment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CartPayment{})
	if payerID := strings.TrimSpace(filter.PayerID); payerID != "" {
		query = query.Where("payer_id = ?", payerID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where(
			fmt.Sprintf("(%s OR %s OR %s)",
				likeCondition(r.db, "id"),
				likeCondition(r.db, "client_description"),
				likeCondition(r.db, "payer_statement_description"),
			),
			like, like, like,
		)
	}
	if key := strings.TrimSpace(filter.MetadataKey); key != "" {
		if !isSafeJSONKey(key) {
			return nil, 0, fmt.Errorf("invalid metadata key: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", jsonTextExpr(r.db, "metadata", key)), strings.TrimSpace(filter.MetadataValue))
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var cartPayments []models.CartPayment
	if err := query.Order("created_at desc").Find(&cartPayments).Error; err != nil {
		return nil, 0, err
	}
	return cartPayments, total, nil
}

// InsertPaymentIntent 创建支付意图，幂等键冲突返回 ErrDuplicateIdempotencyKey
func (r *GormCartPaymentRepository) InsertPaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, intent.IdempotencyKey)
		}
		return err
	}
	return nil
}

// GetPaymentIntentByID 根据 ID 获取支付意图
func (r *GormCartPaymentRepository) GetPaymentIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// GetPaymentIntentForIdempotencyKey 根据付款方与幂等键获取支付意图
func (r *GormCartPaymentRepository) GetPaymentIntentForIdempotencyKey(ctx context.Context, payerID, idempotencyKey string) (*models.PaymentIntent, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, nil
	}
	var intent models.PaymentIntent
	result := r.db.WithContext(ctx).
		Where("payer_id = ? AND idempotency_key = ?", payerID, idempotencyKey).
		Limit(1).
		Find(&intent)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &intent, nil
}

// GetPaymentIntentsForCartPayment 按创建顺序获取购物车支付下的全部支付意图
func (r *GormCartPaymentRepository) GetPaymentIntentsForCartPayment(ctx context.Context, cartPaymentID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	if err := r.db.WithContext(ctx).
		Where("cart_payment_id = ?", cartPaymentID).
		Order("created_at asc, id asc").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

// ListPaymentIntentsByStatus 获取长时间停留在指定状态的支付意图
func (r *GormCartPaymentRepository) ListPaymentIntentsByStatus(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	if len(statuses) == 0 {
		return []models.PaymentIntent{}, nil
	}
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, updatedBefore).
		Order("updated_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

// UpdatePaymentIntentStatus 按状态前置条件推进支付意图状态
func (r *GormCartPaymentRepository) UpdatePaymentIntentStatus(ctx context.Context, id uuid.UUID, expected []string, update PaymentIntentUpdate) (*models.PaymentIntent, error) {
	updates := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now(),
	}
	if update.AmountCapturable != nil {
		updates["amount_capturable"] = *update.AmountCapturable
	}
	if update.AmountReceived != nil {
		updates["amount_received"] = *update.AmountReceived
	}
	if update.CapturedAt != nil {
		updates["captured_at"] = *update.CapturedAt
	}
	if update.CancelledAt != nil {
		updates["cancelled_at"] = *update.CancelledAt
	}
	if update.CaptureAfter != nil {
		updates["capture_after"] = *update.CaptureAfter
	}
	query := r.db.WithContext(ctx).Model(&models.PaymentIntent{}).Where("id = ?", id)
	if len(expected) > 0 {
		query = query.Where("status IN ?", expected)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: payment_intent %s expected %v", ErrStalePrecondition, id, expected)
	}
	return r.GetPaymentIntentByID(ctx, id)
}

// UpdatePaymentIntentAmount 更新支付意图金额
func (r *GormCartPaymentRepository) UpdatePaymentIntentAmount(ctx context.Context, id uuid.UUID, amount int64) (*models.PaymentIntent, error) {
	result := r.db.WithContext(ctx).Model(&models.PaymentIntent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"amount":     amount,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetPaymentIntentByID(ctx, id)
}

// InsertPgpPaymentIntent 创建渠道支付意图
func (r *GormCartPaymentRepository) InsertPgpPaymentIntent(ctx context.Context, pgpIntent *models.PgpPaymentIntent) error {
	return r.db.WithContext(ctx).Create(pgpIntent).Error
}

// FindPgpPaymentIntents 按创建顺序获取支付意图关联的渠道支付意图
func (r *GormCartPaymentRepository) FindPgpPaymentIntents(ctx context.Context, paymentIntentID uuid.UUID) ([]models.PgpPaymentIntent, error) {
	var pgpIntents []models.PgpPaymentIntent
	if err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at asc, id asc").
		Find(&pgpIntents).Error; err != nil {
		return nil, err
	}
	return pgpIntents, nil
}

// GetPgpPaymentIntentByResourceID 根据渠道资源 ID 获取渠道支付意图
func (r *GormCartPaymentRepository) GetPgpPaymentIntentByResourceID(ctx context.Context, provider, resourceID string) (*models.PgpPaymentIntent, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, nil
	}
	var pgpIntent models.PgpPaymentIntent
	result := r.db.WithContext(ctx).
		Where("provider = ? AND resource_id = ?", provider, resourceID).
		Order("created_at desc, id desc").
		Limit(1).
		Find(&pgpIntent)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &pgpIntent, nil
}

func (r *GormCartPaymentRepository) getPgpPaymentIntentByID(ctx context.Context, id uuid.UUID) (*models.PgpPaymentIntent, error) {
	var pgpIntent models.PgpPaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pgpIntent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pgpIntent, nil
}

// UpdatePgpPaymentIntent 按渠道返回更新渠道支付意图
func (r *GormCartPaymentRepository) UpdatePgpPaymentIntent(ctx context.Context, id uuid.UUID, update PgpPaymentIntentUpdate) (*models.PgpPaymentIntent, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if update.Status != "" {
		updates["status"] = update.Status
	}
	if update.ResourceID != "" {
		updates["resource_id"] = update.ResourceID
	}
	if update.ChargeResourceID != "" {
		updates["charge_resource_id"] = update.ChargeResourceID
	}
	if update.PaymentMethodResourceID != "" {
		updates["payment_method_resource_id"] = update.PaymentMethodResourceID
	}
	if update.AmountCapturable != nil {
		updates["amount_capturable"] = *update.AmountCapturable
	}
	if update.AmountReceived != nil {
		updates["amount_received"] = *update.AmountReceived
	}
	if update.CapturedAt != nil {
		updates["captured_at"] = *update.CapturedAt
	}
	if update.CancelledAt != nil {
		updates["cancelled_at"] = *update.CancelledAt
	}
	if err := r.db.WithContext(ctx).Model(&models.PgpPaymentIntent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.getPgpPaymentIntentByID(ctx, id)
}

// UpdatePgpPaymentIntentAmount 更新渠道支付意图金额
func (r *GormCartPaymentRepository) UpdatePgpPaymentIntentAmount(ctx context.Context, id uuid.UUID, amount int64) (*models.PgpPaymentIntent, error) {
	if err := r.db.WithContext(ctx).Model(&models.PgpPaymentIntent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"amount":     amount,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	return r.getPgpPaymentIntentByID(ctx, id)
}

// InsertPaymentCharge 创建扣款记录
func (r *GormCartPaymentRepository) InsertPaymentCharge(ctx context.Context, charge *models.PaymentCharge) error {
	return r.db.WithContext(ctx).Create(charge).Error
}

// InsertPgpPaymentCharge 创建渠道扣款记录
func (r *GormCartPaymentRepository) InsertPgpPaymentCharge(ctx context.Context, pgpCharge *models.PgpPaymentCharge) error {
	return r.db.WithContext(ctx).Create(pgpCharge).Error
}

// GetPaymentChargeByIntent 获取支付意图对应的扣款记录
func (r *GormCartPaymentRepository) GetPaymentChargeByIntent(ctx context.Context, paymentIntentID uuid.UUID) (*models.PaymentCharge, error) {
	var charge models.PaymentCharge
	result := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at desc, id desc").
		Limit(1).
		Find(&charge)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &charge, nil
}

// GetPgpPaymentChargeByCharge 获取扣款对应的渠道扣款记录
func (r *GormCartPaymentRepository) GetPgpPaymentChargeByCharge(ctx context.Context, paymentChargeID uuid.UUID) (*models.PgpPaymentCharge, error) {
	var pgpCharge models.PgpPaymentCharge
	result := r.db.WithContext(ctx).
		Where("payment_charge_id = ?", paymentChargeID).
		Order("created_at desc, id desc").
		Limit(1).
		Find(&pgpCharge)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &pgpCharge, nil
}

// UpdatePaymentChargeStatus 更新扣款状态
func (r *GormCartPaymentRepository) UpdatePaymentChargeStatus(ctx context.Context, paymentIntentID uuid.UUID, status string) (*models.PaymentCharge, error) {
	return r.UpdatePaymentCharge(ctx, paymentIntentID, PaymentChargeUpdate{Status: status})
}

// UpdatePgpPaymentChargeStatus 更新渠道扣款状态
func (r *GormCartPaymentRepository) UpdatePgpPaymentChargeStatus(ctx context.Context, paymentChargeID uuid.UUID, status string) (*models.PgpPaymentCharge, error) {
	return r.UpdatePgpPaymentCharge(ctx, paymentChargeID, PgpPaymentChargeUpdate{Status: status})
}

// UpdatePaymentCharge 更新扣款记录，不存在时返回 nil
func (r *GormCartPaymentRepository) UpdatePaymentCharge(ctx context.Context, paymentIntentID uuid.UUID, update PaymentChargeUpdate) (*models.PaymentCharge, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if update.Status != "" {
		updates["status"] = update.Status
	}
	if update.Amount != nil {
		updates["amount"] = *update.Amount
	}
	if update.AmountRefunded != nil {
		updates["amount_refunded"] = *update.AmountRefunded
	}
	if update.CapturedAt != nil {
		updates["captured_at"] = *update.CapturedAt
	}
	if update.CancelledAt != nil {
		updates["cancelled_at"] = *update.CancelledAt
	}
	result := r.db.WithContext(ctx).Model(&models.PaymentCharge{}).Where("payment_intent_id = ?", paymentIntentID).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetPaymentChargeByIntent(ctx, paymentIntentID)
}

// UpdatePgpPaymentCharge 更新渠道扣款记录，不存在时返回 nil
func (r *GormCartPaymentRepository) UpdatePgpPaymentCharge(ctx context.Context, paymentChargeID uuid.UUID, update PgpPaymentChargeUpdate) (*models.PgpPaymentCharge, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if update.Status != "" {
		updates["status"] = update.Status
	}
	if update.Amount != nil {
		updates["amount"] = *update.Amount
	}
	if update.AmountRefunded != nil {
		updates["amount_refunded"] = *update.AmountRefunded
	}
	if update.ResourceID != "" {
		updates["resource_id"] = update.ResourceID
	}
	if update.IntentResourceID != "" {
		updates["intent_resource_id"] = update.IntentResourceID
	}
	if update.InvoiceResourceID != "" {
		updates["invoice_resource_id"] = update.InvoiceResourceID
	}
	if update.PaymentMethodResourceID != "" {
		updates["payment_method_resource_id"] = update.PaymentMethodResourceID
	}
	if update.CapturedAt != nil {
		updates["captured_at"] = *update.CapturedAt
	}
	if update.CancelledAt != nil {
		updates["cancelled_at"] = *update.CancelledAt
	}
	result := r.db.WithContext(ctx).Model(&models.PgpPaymentCharge{}).Where("payment_charge_id = ?", paymentChargeID).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetPgpPaymentChargeByCharge(ctx, paymentChargeID)
}

// UpdatePaymentChargeAmount 更新扣款金额
func (r *GormCartPaymentRepository) UpdatePaymentChargeAmount(ctx context.Context, paymentIntentID uuid.UUID, amount int64) (*models.PaymentCharge, error) {
	return r.UpdatePaymentCharge(ctx, paymentIntentID, PaymentChargeUpdate{Amount: &amount})
}

// UpdatePgpPaymentChargeAmount 更新渠道扣款金额
func (r *GormCartPaymentRepository) UpdatePgpPaymentChargeAmount(ctx context.Context, paymentChargeID uuid.UUID, amount int64) (*models.PgpPaymentCharge, error) {
	return r.UpdatePgpPaymentCharge(ctx, paymentChargeID, PgpPaymentChargeUpdate{Amount: &amount})
}

// InsertPaymentIntentAdjustmentHistory 追加金额调整流水
func (r *GormCartPaymentRepository) InsertPaymentIntentAdjustmentHistory(ctx context.Context, history *models.PaymentIntentAdjustmentHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

// ListAdjustmentHistory 按时间顺序获取金额调整流水
func (r *GormCartPaymentRepository) ListAdjustmentHistory(ctx context.Context, paymentIntentID uuid.UUID) ([]models.PaymentIntentAdjustmentHistory, error) {
	var histories []models.PaymentIntentAdjustmentHistory
	if err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at asc, id asc").
		Find(&histories).Error; err != nil {
		return nil, err
	}
	return histories, nil
}

// GetAdjustmentHistoryForIdempotencyKey 根据付款方与幂等键获取调整流水
func (r *GormCartPaymentRepository) GetAdjustmentHistoryForIdempotencyKey(ctx context.Context, payerID, idempotencyKey string) (*models.PaymentIntentAdjustmentHistory, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, nil
	}
	var history models.PaymentIntentAdjustmentHistory
	result := r.db.WithContext(ctx).
		Where("payer_id = ? AND idempotency_key = ?", payerID, idempotencyKey).
		Order("created_at asc, id asc").
		Limit(1).
		Find(&history)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &history, nil
}

// ListPaymentIntentsDueForCapture 获取已到延迟捕获时间的支付意图
func (r *GormCartPaymentRepository) ListPaymentIntentsDueForCapture(ctx context.Context, dueBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND capture_after IS NOT NULL AND capture_after <= ?", constants.IntentStatusRequiresCapture, dueBefore).
		Order("capture_after asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
