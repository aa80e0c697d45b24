package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/google/uuid"
)

// CapturePayment 捕获购物车支付下全部待捕获的支付意图
func (s *CartPaymentService) CapturePayment(ctx context.Context, cartPaymentID uuid.UUID) (*CartPaymentResponse, error) {
	var response *CartPaymentResponse
	err := s.withCartPaymentLock(ctx, cartPaymentID, func() error {
		cartPayment, err := s.mustGetCartPayment(ctx, cartPaymentID)
		if err != nil {
			return err
		}
		intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, cartPaymentID)
		if err != nil {
			return err
		}
		capturable := filterPaymentIntentsByState(intents, IntentStatusRequiresCapture)
		if len(capturable) == 0 {
			return paymentIntentCaptureError(CodePaymentIntentCaptureInvalid, "no payment intent awaiting capture", nil)
		}
		for i := range capturable {
			if _, err := s.capturePaymentWithProvider(ctx, &capturable[i]); err != nil {
				return err
			}
		}
		current, err := s.mustGetCartPayment(ctx, cartPayment.ID)
		if err != nil {
			return err
		}
		response, err = s.buildResponse(ctx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// CaptureDuePaymentIntent 延迟捕获任务入口，意图已离开待捕获状态时直接返回
func (s *CartPaymentService) CaptureDuePaymentIntent(ctx context.Context, intentID uuid.UUID) error {
	intent, err := s.repo.GetPaymentIntentByID(ctx, intentID)
	if err != nil {
		return err
	}
	if intent == nil || !canPaymentIntentBeCancelled(intent) {
		return nil
	}
	return s.withCartPaymentLock(ctx, intent.CartPaymentID, func() error {
		current, err := s.repo.GetPaymentIntentByID(ctx, intentID)
		if err != nil {
			return err
		}
		if current == nil || !canPaymentIntentBeCancelled(current) {
			return nil
		}
		if current.CaptureAfter != nil && s.opts.Now().Before(*current.CaptureAfter) {
			return nil
		}
		_, err = s.capturePaymentWithProvider(ctx, current)
		return err
	})
}

// capturePaymentWithProvider 调用方需持有购物车支付锁
func (s *CartPaymentService) capturePaymentWithProvider(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	log := cartPaymentLogger(
		"cart_payment_id", intent.CartPaymentID.String(),
		"payment_intent_id", intent.ID.String(),
	)
	if !canPaymentIntentBeCancelled(intent) {
		return nil, paymentIntentCaptureError(CodePaymentIntentCaptureInvalid, "payment intent status "+intent.Status+" cannot be captured", nil)
	}
	pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, intent)
	if err != nil {
		return nil, err
	}
	if pgpIntent == nil || strings.TrimSpace(pgpIntent.ResourceID) == "" {
		return nil, paymentIntentCaptureError(CodePaymentIntentCaptureInvalid, "provider payment intent missing", nil)
	}

	providerIntent, err := s.provider.CapturePaymentIntent(ctx, pgpIntent.ResourceID, intent.Amount, intent.IdempotencyKey+"-capture")
	if err != nil {
		if errors.Is(err, ErrProviderOutcomeUnknown) {
			log.Warnw("payment_intent_capture_outcome_unknown", "error", err)
			s.scheduleReconcile(intent.ID, "capture_outcome_unknown")
			return nil, providerTimeoutError("capture", err)
		}
		log.Warnw("payment_intent_capture_rejected", "error", err, "code", CodePaymentIntentCaptureStripeError)
		return nil, paymentIntentCaptureError(CodePaymentIntentCaptureStripeError, "provider rejected capture", err)
	}
	updated, _, err := s.applyProviderIntent(ctx, intent, pgpIntent, providerIntent, "capture")
	if err != nil {
		return nil, err
	}
	log.Infow("payment_intent_captured", "status", updated.Status, "amount", updated.Amount)
	return updated, nil
}

// CancelPayment 取消购物车支付：待捕获的意图向渠道取消授权，已捕获的意图全额退款
func (s *CartPaymentService) CancelPayment(ctx context.Context, cartPaymentID uuid.UUID) (*CartPaymentResponse, error) {
	var response *CartPaymentResponse
	err := s.withCartPaymentLock(ctx, cartPaymentID, func() error {
		cartPayment, err := s.mustGetCartPayment(ctx, cartPaymentID)
		if err != nil {
			return err
		}
		intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, cartPaymentID)
		if err != nil {
			return err
		}
		actionable := filterPaymentIntentsByFunction(intents, func(intent *models.PaymentIntent) bool {
			return canPaymentIntentBeCancelled(intent) || (canPaymentIntentBeRefunded(intent) && intent.Amount > 0)
		})
		if len(actionable) == 0 {
			return paymentIntentCancelError(CodePaymentIntentCancelInvalid, "no payment intent can be cancelled", nil)
		}
		for i := range actionable {
			intent := &actionable[i]
			if canPaymentIntentBeCancelled(intent) {
				_, err = s.cancelIntent(ctx, intent)
			} else {
				_, err = s.refundIntent(ctx, cartPayment, intent, intent.Amount, intent.IdempotencyKey+"-cancel-refund", CodePaymentIntentRefundInvalid)
			}
			if err != nil {
				return err
			}
		}
		current, err := s.mustGetCartPayment(ctx, cartPaymentID)
		if err != nil {
			return err
		}
		response, err = s.buildResponse(ctx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// cancelIntent 调用方需持有购物车支付锁
func (s *CartPaymentService) cancelIntent(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	log := cartPaymentLogger(
		"cart_payment_id", intent.CartPaymentID.String(),
		"payment_intent_id", intent.ID.String(),
	)
	if !canPaymentIntentBeCancelled(intent) {
		return nil, paymentIntentCancelError(CodePaymentIntentCancelInvalid, "payment intent status "+intent.Status+" cannot be cancelled", nil)
	}
	pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, intent)
	if err != nil {
		return nil, err
	}
	if pgpIntent == nil || strings.TrimSpace(pgpIntent.ResourceID) == "" {
		return nil, paymentIntentCancelError(CodePaymentIntentCancelInvalid, "provider payment intent missing", nil)
	}

	if _, err := s.provider.CancelPaymentIntent(ctx, pgpIntent.ResourceID, intent.IdempotencyKey+"-cancel"); err != nil {
		if errors.Is(err, ErrProviderOutcomeUnknown) {
			log.Warnw("payment_intent_cancel_outcome_unknown", "error", err)
			s.scheduleReconcile(intent.ID, "cancel_outcome_unknown")
			return nil, providerTimeoutError("cancel", err)
		}
		log.Warnw("payment_intent_cancel_rejected", "error", err, "code", CodePaymentIntentAdjustRefundError)
		return nil, paymentIntentCancelError(CodePaymentIntentAdjustRefundError, "provider rejected cancellation", err)
	}

	now := s.opts.Now()
	zero := int64(0)
	var updated *models.PaymentIntent
	err = s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
		var err error
		updated, err = repo.UpdatePaymentIntentStatus(ctx, intent.ID, []string{intent.Status}, repository.PaymentIntentUpdate{
			Status:           string(IntentStatusCancelled),
			AmountCapturable: &zero,
			CancelledAt:      &now,
		})
		if err != nil {
			return err
		}
		if _, err := repo.UpdatePgpPaymentIntent(ctx, pgpIntent.ID, repository.PgpPaymentIntentUpdate{
			Status:           string(IntentStatusCancelled),
			AmountCapturable: &zero,
			CancelledAt:      &now,
		}); err != nil {
			return err
		}
		if err := updateChargePairAfterCancel(ctx, repo, intent.ID, now); err != nil {
			return err
		}
		_, err = syncCartPaymentTotal(ctx, repo, intent.CartPaymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Infow("payment_intent_cancelled", "amount", intent.Amount)
	return updated, nil
}

// RefundPaymentInput 退款请求，Amount 为 0 表示全额退款
type RefundPaymentInput struct {
	CartPaymentID  uuid.UUID
	Amount         int64
	IdempotencyKey string
}

// RefundPayment 对最近一次已捕获的支付意图退款
func (s *CartPaymentService) RefundPayment(ctx context.Context, input RefundPaymentInput) (*CartPaymentResponse, error) {
	if input.Amount < 0 {
		return nil, invalidAmountError("refund amount must not be negative")
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)

	var response *CartPaymentResponse
	err := s.withCartPaymentLock(ctx, input.CartPaymentID, func() error {
		cartPayment, err := s.mustGetCartPayment(ctx, input.CartPaymentID)
		if err != nil {
			return err
		}
		if input.IdempotencyKey != "" {
			replay, err := s.replayAdjustment(ctx, cartPayment, input.IdempotencyKey)
			if err != nil || replay != nil {
				response = replay
				return err
			}
		}
		intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, input.CartPaymentID)
		if err != nil {
			return err
		}
		intent := getMostRecentIntent(intents)
		if intent == nil || !canPaymentIntentBeRefunded(intent) {
			status := "missing"
			if intent != nil {
				status = intent.Status
			}
			return paymentIntentRefundError(CodePaymentIntentRefundInvalid, "payment intent status "+status+" cannot be refunded")
		}
		amount := input.Amount
		if amount == 0 {
			amount = intent.Amount
		}
		if amount <= 0 || amount > intent.Amount {
			return invalidAmountError("refund amount exceeds captured amount")
		}
		key := input.IdempotencyKey
		if key == "" {
			key = fmt.Sprintf("%s-refund-%d-%d", intent.IdempotencyKey, intent.Amount, amount)
		}
		if _, err := s.refundIntent(ctx, cartPayment, intent, amount, key, CodePaymentIntentRefundInvalid); err != nil {
			return err
		}
		current, err := s.mustGetCartPayment(ctx, input.CartPaymentID)
		if err != nil {
			return err
		}
		response, err = s.buildResponse(ctx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// refundIntent 退款要求意图及其全部渠道意图均可退款，调用方需持有购物车支付锁
func (s *CartPaymentService) refundIntent(ctx context.Context, cartPayment *models.CartPayment, intent *models.PaymentIntent, amount int64, idempotencyKey string, invalidCode PayinErrorCode) (*models.PaymentIntent, error) {
	log := cartPaymentLogger(
		"cart_payment_id", cartPayment.ID.String(),
		"payment_intent_id", intent.ID.String(),
		"idempotency_key", idempotencyKey,
	)
	if !canPaymentIntentBeRefunded(intent) {
		return nil, paymentIntentRefundError(invalidCode, "payment intent status "+intent.Status+" cannot be refunded")
	}
	pgpIntents, err := s.repo.FindPgpPaymentIntents(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if len(pgpIntents) == 0 {
		return nil, paymentIntentRefundError(invalidCode, "provider payment intent missing")
	}
	for i := range pgpIntents {
		if !canPgpPaymentIntentBeRefunded(&pgpIntents[i]) {
			return nil, paymentIntentRefundError(invalidCode, "provider payment intent status "+pgpIntents[i].Status+" cannot be refunded")
		}
	}
	pgpIntent := pgpIntents[len(pgpIntents)-1]

	refund, err := s.provider.RefundCharge(ctx, ProviderRefundInput{
		PaymentIntentResourceID: pgpIntent.ResourceID,
		ChargeResourceID:        pgpIntent.ChargeResourceID,
		Amount:                  amount,
		Reason:                  "requested_by_customer",
		IdempotencyKey:          idempotencyKey,
		Metadata: map[string]string{
			"cart_payment_id":   cartPayment.ID.String(),
			"payment_intent_id": intent.ID.String(),
			"payer_id":          cartPayment.PayerID,
		},
	})
	if err != nil {
		if errors.Is(err, ErrProviderOutcomeUnknown) {
			log.Warnw("payment_intent_refund_outcome_unknown", "error", err)
			return nil, providerTimeoutError("refund", err)
		}
		log.Warnw("payment_intent_refund_rejected", "error", err, "code", CodePaymentIntentAdjustRefundError)
		return nil, paymentChargeRefundError(err)
	}

	var updated *models.PaymentIntent
	err = s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
		if err := updateChargePairAfterRefund(ctx, repo, intent.ID, amount); err != nil {
			return err
		}
		var err error
		updated, err = reducePaymentIntentAmount(ctx, repo, intent, intent.Amount-amount, idempotencyKey)
		if err != nil {
			return err
		}
		_, err = syncCartPaymentTotal(ctx, repo, cartPayment.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	refundID := ""
	if refund != nil {
		refundID = refund.ResourceID
	}
	log.Infow("payment_intent_refunded", "amount", amount, "refund_resource_id", refundID, "amount_remaining", updated.Amount)
	return updated, nil
}
