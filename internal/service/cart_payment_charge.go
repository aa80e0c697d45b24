package service

import (
	"context"
	"time"

	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/google/uuid"
)

// createNewChargePair 创建扣款与渠道扣款记录
func createNewChargePair(ctx context.Context, repo repository.CartPaymentRepository, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent, providerIntent *ProviderIntent, status ChargeStatus, now time.Time) (*models.PaymentCharge, *models.PgpPaymentCharge, error) {
	amount := intent.Amount
	if providerIntent != nil && providerIntent.AmountReceived > 0 {
		amount = providerIntent.AmountReceived
	}
	charge := &models.PaymentCharge{
		PaymentIntentID:      intent.ID,
		Provider:             pgpIntent.Provider,
		IdempotencyKey:       intent.IdempotencyKey,
		Status:               string(status),
		Currency:             intent.Currency,
		Amount:               amount,
		ApplicationFeeAmount: intent.ApplicationFeeAmount,
	}
	if status == ChargeStatusSucceeded {
		charge.CapturedAt = &now
	}
	if err := repo.InsertPaymentCharge(ctx, charge); err != nil {
		return nil, nil, err
	}
	chargeResourceID := pgpIntent.ChargeResourceID
	if providerIntent != nil && providerIntent.ChargeResourceID != "" {
		chargeResourceID = providerIntent.ChargeResourceID
	}
	pgpCharge := &models.PgpPaymentCharge{
		PaymentChargeID:         charge.ID,
		Provider:                pgpIntent.Provider,
		IdempotencyKey:          intent.IdempotencyKey,
		Status:                  string(status),
		Currency:                intent.Currency,
		Amount:                  amount,
		ApplicationFeeAmount:    intent.ApplicationFeeAmount,
		ResourceID:              chargeResourceID,
		IntentResourceID:        pgpIntent.ResourceID,
		PaymentMethodResourceID: pgpIntent.PaymentMethodResourceID,
		CapturedAt:              charge.CapturedAt,
	}
	if err := repo.InsertPgpPaymentCharge(ctx, pgpCharge); err != nil {
		return nil, nil, err
	}
	return charge, pgpCharge, nil
}

// syncChargePairWithIntent 扣款记录仅在意图成功后创建，已存在时随意图状态更新
func syncChargePairWithIntent(ctx context.Context, repo repository.CartPaymentRepository, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent, providerIntent *ProviderIntent, now time.Time) error {
	status := IntentStatus(intent.Status)
	if status == IntentStatusInit || status == IntentStatusProcessing {
		return nil
	}
	chargeStatus, err := ChargeStatusFromIntentStatus(status)
	if err != nil {
		return err
	}
	charge, err := repo.GetPaymentChargeByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if charge == nil {
		if chargeStatus != ChargeStatusSucceeded {
			return nil
		}
		_, _, err = createNewChargePair(ctx, repo, intent, pgpIntent, providerIntent, chargeStatus, now)
		return err
	}
	update := repository.PaymentChargeUpdate{Status: string(chargeStatus)}
	pgpUpdate := repository.PgpPaymentChargeUpdate{Status: string(chargeStatus)}
	switch chargeStatus {
	case ChargeStatusSucceeded:
		update.CapturedAt = &now
		pgpUpdate.CapturedAt = &now
	case ChargeStatusCancelled:
		update.CancelledAt = &now
		pgpUpdate.CancelledAt = &now
	}
	if _, err := repo.UpdatePaymentCharge(ctx, intent.ID, update); err != nil {
		return err
	}
	updatePgpChargeFromProvider(&pgpUpdate, pgpIntent, providerIntent)
	_, err = repo.UpdatePgpPaymentCharge(ctx, charge.ID, pgpUpdate)
	return err
}

func updatePgpChargeFromProvider(update *repository.PgpPaymentChargeUpdate, pgpIntent *models.PgpPaymentIntent, providerIntent *ProviderIntent) {
	if pgpIntent != nil {
		update.IntentResourceID = pgpIntent.ResourceID
	}
	if providerIntent == nil {
		return
	}
	update.ResourceID = providerIntent.ChargeResourceID
	update.PaymentMethodResourceID = providerIntent.PaymentMethodResourceID
}

// updateChargePairAfterCancel 将意图下的扣款记录全部置为取消
func updateChargePairAfterCancel(ctx context.Context, repo repository.CartPaymentRepository, intentID uuid.UUID, now time.Time) error {
	charge, err := repo.UpdatePaymentCharge(ctx, intentID, repository.PaymentChargeUpdate{
		Status:      string(ChargeStatusCancelled),
		CancelledAt: &now,
	})
	if err != nil || charge == nil {
		return err
	}
	_, err = repo.UpdatePgpPaymentCharge(ctx, charge.ID, repository.PgpPaymentChargeUpdate{
		Status:      string(ChargeStatusCancelled),
		CancelledAt: &now,
	})
	return err
}

// updateChargePairAfterRefund 退款后扣减扣款金额并累加已退款金额
func updateChargePairAfterRefund(ctx context.Context, repo repository.CartPaymentRepository, intentID uuid.UUID, refundAmount int64) error {
	charge, err := repo.GetPaymentChargeByIntent(ctx, intentID)
	if err != nil || charge == nil {
		return err
	}
	amount := charge.Amount - refundAmount
	if amount < 0 {
		amount = 0
	}
	refunded := charge.AmountRefunded + refundAmount
	if _, err := repo.UpdatePaymentCharge(ctx, intentID, repository.PaymentChargeUpdate{
		Amount:         &amount,
		AmountRefunded: &refunded,
	}); err != nil {
		return err
	}
	pgpCharge, err := repo.GetPgpPaymentChargeByCharge(ctx, charge.ID)
	if err != nil || pgpCharge == nil {
		return err
	}
	pgpAmount := pgpCharge.Amount - refundAmount
	if pgpAmount < 0 {
		pgpAmount = 0
	}
	pgpRefunded := pgpCharge.AmountRefunded + refundAmount
	_, err = repo.UpdatePgpPaymentCharge(ctx, charge.ID, repository.PgpPaymentChargeUpdate{
		Amount:         &pgpAmount,
		AmountRefunded: &pgpRefunded,
	})
	return err
}

// updateChargePairAfterAmountReduction 授权金额下调时同步扣款金额
func updateChargePairAfterAmountReduction(ctx context.Context, repo repository.CartPaymentRepository, intentID uuid.UUID, amount int64) error {
	charge, err := repo.UpdatePaymentChargeAmount(ctx, intentID, amount)
	if err != nil || charge == nil {
		return err
	}
	_, err = repo.UpdatePgpPaymentChargeAmount(ctx, charge.ID, amount)
	return err
}

// reducePaymentIntentAmount 下调意图及其全部渠道意图金额并追加调整流水
func reducePaymentIntentAmount(ctx context.Context, repo repository.CartPaymentRepository, intent *models.PaymentIntent, newAmount int64, idempotencyKey string) (*models.PaymentIntent, error) {
	updated, err := repo.UpdatePaymentIntentAmount(ctx, intent.ID, newAmount)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, cartPaymentNotFoundError()
	}
	pgpIntents, err := repo.FindPgpPaymentIntents(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	for _, pgpIntent := range pgpIntents {
		if _, err := repo.UpdatePgpPaymentIntentAmount(ctx, pgpIntent.ID, newAmount); err != nil {
			return nil, err
		}
	}
	if err := repo.InsertPaymentIntentAdjustmentHistory(ctx, &models.PaymentIntentAdjustmentHistory{
		PayerID:         intent.PayerID,
		PaymentIntentID: intent.ID,
		Amount:          newAmount,
		AmountOriginal:  intent.Amount,
		AmountDelta:     newAmount - intent.Amount,
		Currency:        intent.Currency,
		IdempotencyKey:  idempotencyKey,
	}); err != nil {
		return nil, err
	}
	return updated, nil
}
