package queue

import (
	"encoding/json"

	"github.com/dujiao-next/payin/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskReconcilePaymentIntent 支付意图对账任务
	TaskReconcilePaymentIntent = constants.TaskReconcilePaymentIntent
	// TaskCapturePaymentIntent 延迟捕获任务
	TaskCapturePaymentIntent = constants.TaskCapturePaymentIntent
	// TaskReconcileSweep 周期扫描滞留支付意图任务
	TaskReconcileSweep = constants.TaskReconcileSweep
)

// ReconcilePaymentIntentPayload 对账任务载荷
type ReconcilePaymentIntentPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason"`
}

// CapturePaymentIntentPayload 延迟捕获任务载荷
type CapturePaymentIntentPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// NewReconcilePaymentIntentTask 创建对账任务
func NewReconcilePaymentIntentTask(payload ReconcilePaymentIntentPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcilePaymentIntent, body), nil
}

// NewCapturePaymentIntentTask 创建延迟捕获任务
func NewCapturePaymentIntentTask(payload CapturePaymentIntentPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCapturePaymentIntent, body), nil
}

// NewReconcileSweepTask 创建滞留扫描任务
func NewReconcileSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReconcileSweep, nil)
}
