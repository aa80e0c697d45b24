package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/provider"
	"github.com/dujiao-next/payin/internal/queue"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// cartPaymentTaskHandler 异步任务依赖的编排能力
type cartPaymentTaskHandler interface {
	ReconcilePaymentIntent(ctx context.Context, intentID uuid.UUID) error
	CaptureDuePaymentIntent(ctx context.Context, intentID uuid.UUID) error
	SweepStaleIntents(ctx context.Context) (int, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
	cartPayments cartPaymentTaskHandler
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	consumer := &Consumer{Container: c}
	if c != nil && c.CartPaymentService != nil {
		consumer.cartPayments = c.CartPaymentService
	}
	return consumer
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReconcilePaymentIntent, c.handleReconcilePaymentIntent)
	mux.HandleFunc(queue.TaskCapturePaymentIntent, c.handleCapturePaymentIntent)
	mux.HandleFunc(queue.TaskReconcileSweep, c.handleReconcileSweep)
}

func (c *Consumer) handleReconcilePaymentIntent(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_reconcile_intent_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReconcilePaymentIntentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reconcile_intent_unmarshal_failed", "error", err)
		return err
	}
	intentID, ok := parseIntentID(payload.PaymentIntentID)
	if !ok {
		logger.Debugw("worker_reconcile_intent_skip_invalid_payload", "payment_intent_id", payload.PaymentIntentID)
		return nil
	}
	if c.cartPayments == nil {
		logger.Warnw("worker_reconcile_intent_skip_service_nil", "payment_intent_id", payload.PaymentIntentID)
		return nil
	}
	if err := c.cartPayments.ReconcilePaymentIntent(ctx, intentID); err != nil {
		return classifyTaskError("worker_reconcile_intent", payload.PaymentIntentID, err, "reason", payload.Reason)
	}
	logger.Debugw("worker_reconcile_intent_done", "payment_intent_id", payload.PaymentIntentID, "reason", payload.Reason)
	return nil
}

func (c *Consumer) handleCapturePaymentIntent(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_capture_intent_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CapturePaymentIntentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_capture_intent_unmarshal_failed", "error", err)
		return err
	}
	intentID, ok := parseIntentID(payload.PaymentIntentID)
	if !ok {
		logger.Debugw("worker_capture_intent_skip_invalid_payload", "payment_intent_id", payload.PaymentIntentID)
		return nil
	}
	if c.cartPayments == nil {
		logger.Warnw("worker_capture_intent_skip_service_nil", "payment_intent_id", payload.PaymentIntentID)
		return nil
	}
	if err := c.cartPayments.CaptureDuePaymentIntent(ctx, intentID); err != nil {
		return classifyTaskError("worker_capture_intent", payload.PaymentIntentID, err)
	}
	return nil
}

func (c *Consumer) handleReconcileSweep(ctx context.Context, _ *asynq.Task) error {
	if c == nil || c.cartPayments == nil {
		logger.Debugw("worker_reconcile_sweep_skip_nil", "consumer_nil", c == nil)
		return nil
	}
	scheduled, err := c.cartPayments.SweepStaleIntents(ctx)
	if err != nil {
		logger.Warnw("worker_reconcile_sweep_failed", "scheduled", scheduled, "error", err)
		return err
	}
	logger.Debugw("worker_reconcile_sweep_done", "scheduled", scheduled)
	return nil
}

// classifyTaskError 可重试错误交给 asynq 重试，确定性错误记录后丢弃
func classifyTaskError(event, intentID string, err error, kv ...interface{}) error {
	fields := append([]interface{}{"payment_intent_id", intentID, "error", err, "code", service.PayinErrorCodeOf(err)}, kv...)
	if payinErr, ok := service.AsPayinError(err); ok && !payinErr.Retryable {
		if errors.Is(err, service.ErrUnknownProviderStatus) {
			logger.Errorw(event+"_unknown_status", fields...)
			return nil
		}
		logger.Warnw(event+"_rejected", fields...)
		return nil
	}
	logger.Warnw(event+"_failed", fields...)
	return err
}

func parseIntentID(raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
