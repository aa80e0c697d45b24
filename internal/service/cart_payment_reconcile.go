package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/queue"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/google/uuid"
)

// ReconcilePaymentIntent 查询渠道真实结果并回写本地支付意图，终态意图不处理
func (s *CartPaymentService) ReconcilePaymentIntent(ctx context.Context, intentID uuid.UUID) error {
	intent, err := s.repo.GetPaymentIntentByID(ctx, intentID)
	if err != nil {
		return err
	}
	if intent == nil {
		cartPaymentLogger("payment_intent_id", intentID.String()).Warnw("reconcile_intent_missing")
		return nil
	}
	return s.withCartPaymentLock(ctx, intent.CartPaymentID, func() error {
		return s.reconcileLocked(ctx, intentID)
	})
}

func (s *CartPaymentService) reconcileLocked(ctx context.Context, intentID uuid.UUID) error {
	intent, err := s.repo.GetPaymentIntentByID(ctx, intentID)
	if err != nil {
		return err
	}
	if intent == nil || intentStatusOf(intent).IsTerminal() {
		return nil
	}
	log := cartPaymentLogger(
		"cart_payment_id", intent.CartPaymentID.String(),
		"payment_intent_id", intent.ID.String(),
		"status", intent.Status,
	)
	pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, intent)
	if err != nil {
		return err
	}
	if pgpIntent == nil {
		log.Warnw("reconcile_pgp_intent_missing")
		return nil
	}

	var providerIntent *ProviderIntent
	if strings.TrimSpace(pgpIntent.ResourceID) != "" {
		providerIntent, err = s.provider.RetrievePaymentIntent(ctx, pgpIntent.ResourceID)
	} else {
		providerIntent, err = s.provider.FindPaymentIntentByIdempotencyKey(ctx, intent.IdempotencyKey)
	}
	if err != nil {
		if errors.Is(err, ErrProviderOutcomeUnknown) {
			log.Warnw("reconcile_provider_unavailable", "error", err)
			return providerTimeoutError("reconcile", err)
		}
		log.Errorw("reconcile_provider_query_failed", "error", err)
		return err
	}

	if providerIntent == nil {
		if intentStatusOf(intent) != IntentStatusInit {
			log.Warnw("reconcile_provider_intent_missing")
			return nil
		}
		if s.opts.Now().Sub(intent.UpdatedAt) < s.opts.ReconcileStaleAfter {
			log.Infow("reconcile_provider_intent_not_found_yet")
			return nil
		}
		return s.markIntentFailed(ctx, intent, pgpIntent)
	}
	if strings.TrimSpace(providerIntent.Status) == "" {
		log.Warnw("reconcile_provider_status_missing")
		return nil
	}

	updated, _, err := s.applyProviderIntent(ctx, intent, pgpIntent, providerIntent, "reconcile")
	if err != nil {
		return err
	}
	log.Infow("payment_intent_reconciled", "to", updated.Status)
	return nil
}

// markIntentFailed 渠道侧从未创建且已超时的意图标记为失败
func (s *CartPaymentService) markIntentFailed(ctx context.Context, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent) error {
	err := s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
		if _, err := repo.UpdatePaymentIntentStatus(ctx, intent.ID, []string{intent.Status}, repository.PaymentIntentUpdate{
			Status: string(IntentStatusFailed),
		}); err != nil {
			return err
		}
		if _, err := repo.UpdatePgpPaymentIntent(ctx, pgpIntent.ID, repository.PgpPaymentIntentUpdate{
			Status: string(IntentStatusFailed),
		}); err != nil {
			return err
		}
		_, err := syncCartPaymentTotal(ctx, repo, intent.CartPaymentID)
		return err
	})
	if err != nil {
		return err
	}
	cartPaymentLogger("cart_payment_id", intent.CartPaymentID.String(), "payment_intent_id", intent.ID.String()).
		Warnw("payment_intent_marked_failed", "reason", "provider_intent_not_found")
	return nil
}

// ReconcileCartPayment 立即对账购物车支付下全部非终态支付意图
func (s *CartPaymentService) ReconcileCartPayment(ctx context.Context, cartPaymentID uuid.UUID) (*CartPaymentResponse, error) {
	var response *CartPaymentResponse
	err := s.withCartPaymentLock(ctx, cartPaymentID, func() error {
		if _, err := s.mustGetCartPayment(ctx, cartPaymentID); err != nil {
			return err
		}
		intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, cartPaymentID)
		if err != nil {
			return err
		}
		for _, intent := range intents {
			if intentStatusOf(&intent).IsTerminal() {
				continue
			}
			if err := s.reconcileLocked(ctx, intent.ID); err != nil {
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

// SweepStaleIntents 为长时间未推进的意图补投对账任务，并为到期的延迟捕获补投捕获任务
func (s *CartPaymentService) SweepStaleIntents(ctx context.Context) (int, error) {
	now := s.opts.Now()
	stale, err := s.repo.ListPaymentIntentsByStatus(ctx,
		[]string{string(IntentStatusInit), string(IntentStatusProcessing)},
		now.Add(-s.opts.ReconcileStaleAfter),
		s.opts.SweepLimit,
	)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, intent := range stale {
		if s.scheduler == nil {
			break
		}
		payload := queue.ReconcilePaymentIntentPayload{PaymentIntentID: intent.ID.String(), Reason: "sweep"}
		if err := s.scheduler.EnqueueReconcilePaymentIntent(payload, 0); err != nil {
			cartPaymentLogger("payment_intent_id", intent.ID.String()).Errorw("reconcile_enqueue_failed", "reason", "sweep", "error", err)
			continue
		}
		scheduled++
	}

	due, err := s.repo.ListPaymentIntentsDueForCapture(ctx, now, s.opts.SweepLimit)
	if err != nil {
		return scheduled, err
	}
	for _, intent := range due {
		if s.scheduler == nil {
			break
		}
		payload := queue.CapturePaymentIntentPayload{PaymentIntentID: intent.ID.String()}
		if err := s.scheduler.EnqueueCapturePaymentIntent(payload, now); err != nil {
			cartPaymentLogger("payment_intent_id", intent.ID.String()).Errorw("capture_enqueue_failed", "reason", "sweep", "error", err)
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		cartPaymentLogger().Infow("cart_payment_sweep_scheduled", "stale", len(stale), "due_capture", len(due), "scheduled", scheduled)
	}
	return scheduled, nil
}

// HandleProviderWebhook 校验渠道回调并为对应的本地意图投递对账任务，不直接修改状态
func (s *CartPaymentService) HandleProviderWebhook(ctx context.Context, headers map[string]string, body []byte) (*ProviderEvent, error) {
	event, err := s.provider.ParseWebhook(headers, body, s.opts.Now())
	if err != nil {
		cartPaymentLogger().Warnw("provider_webhook_rejected", "error", err)
		return nil, err
	}
	log := cartPaymentLogger(
		"event_id", event.EventID,
		"event_type", event.EventType,
		"provider_resource_id", event.PaymentIntentResourceID,
	)
	pgpIntent, err := s.repo.GetPgpPaymentIntentByResourceID(ctx, s.providerName(), event.PaymentIntentResourceID)
	if err != nil {
		return nil, err
	}
	if pgpIntent == nil {
		log.Infow("provider_webhook_ignored", "reason", "intent_not_found")
		return event, nil
	}
	s.scheduleReconcileNow(pgpIntent.PaymentIntentID, "webhook:"+event.EventType)
	log.Infow("provider_webhook_accepted", "payment_intent_id", pgpIntent.PaymentIntentID.String())
	return event, nil
}

func (s *CartPaymentService) scheduleReconcileNow(intentID uuid.UUID, reason string) {
	if s.scheduler == nil {
		return
	}
	payload := queue.ReconcilePaymentIntentPayload{PaymentIntentID: intentID.String(), Reason: reason}
	if err := s.scheduler.EnqueueReconcilePaymentIntent(payload, time.Duration(0)); err != nil {
		cartPaymentLogger("payment_intent_id", intentID.String()).Errorw("reconcile_enqueue_failed", "reason", reason, "error", err)
	}
}
