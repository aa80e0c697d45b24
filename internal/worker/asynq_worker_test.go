package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/dujiao-next/payin/internal/queue"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeCartPaymentTasks struct {
	reconciled []uuid.UUID
	captured   []uuid.UUID
	sweeps     int
	err        error
}

func (f *fakeCartPaymentTasks) ReconcilePaymentIntent(_ context.Context, intentID uuid.UUID) error {
	f.reconciled = append(f.reconciled, intentID)
	return f.err
}

func (f *fakeCartPaymentTasks) CaptureDuePaymentIntent(_ context.Context, intentID uuid.UUID) error {
	f.captured = append(f.captured, intentID)
	return f.err
}

func (f *fakeCartPaymentTasks) SweepStaleIntents(_ context.Context) (int, error) {
	f.sweeps++
	return 3, f.err
}

func newReconcileTask(t *testing.T, intentID string) *asynq.Task {
	t.Helper()
	task, err := queue.NewReconcilePaymentIntentTask(queue.ReconcilePaymentIntentPayload{PaymentIntentID: intentID, Reason: "test"})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	return task
}

func TestHandleReconcilePaymentIntent(t *testing.T) {
	fake := &fakeCartPaymentTasks{}
	consumer := &Consumer{cartPayments: fake}
	intentID := uuid.New()

	if err := consumer.handleReconcilePaymentIntent(context.Background(), newReconcileTask(t, intentID.String())); err != nil {
		t.Fatalf("handle reconcile failed: %v", err)
	}
	if len(fake.reconciled) != 1 || fake.reconciled[0] != intentID {
		t.Fatalf("unexpected reconciled ids %v", fake.reconciled)
	}

	if err := consumer.handleReconcilePaymentIntent(context.Background(), newReconcileTask(t, "not-a-uuid")); err != nil {
		t.Fatalf("invalid payload should be skipped, got %v", err)
	}
	if len(fake.reconciled) != 1 {
		t.Fatalf("invalid payload must not reach service")
	}

	bad := asynq.NewTask(queue.TaskReconcilePaymentIntent, []byte("{"))
	if err := consumer.handleReconcilePaymentIntent(context.Background(), bad); err == nil {
		t.Fatalf("malformed payload should fail")
	}
}

func TestHandleReconcileRetriesTransientErrors(t *testing.T) {
	fake := &fakeCartPaymentTasks{err: fmt.Errorf("%w: gateway timeout", service.ErrProviderOutcomeUnknown)}
	consumer := &Consumer{cartPayments: fake}
	if err := consumer.handleReconcilePaymentIntent(context.Background(), newReconcileTask(t, uuid.NewString())); err == nil {
		t.Fatalf("transient error should be returned for retry")
	}

	fake.err = errors.New("database is locked")
	if err := consumer.handleReconcilePaymentIntent(context.Background(), newReconcileTask(t, uuid.NewString())); err == nil {
		t.Fatalf("infrastructure error should be returned for retry")
	}
}

func TestHandleCapturePaymentIntent(t *testing.T) {
	fake := &fakeCartPaymentTasks{}
	consumer := &Consumer{cartPayments: fake}
	intentID := uuid.New()
	body, _ := json.Marshal(queue.CapturePaymentIntentPayload{PaymentIntentID: intentID.String()})

	if err := consumer.handleCapturePaymentIntent(context.Background(), asynq.NewTask(queue.TaskCapturePaymentIntent, body)); err != nil {
		t.Fatalf("handle capture failed: %v", err)
	}
	if len(fake.captured) != 1 || fake.captured[0] != intentID {
		t.Fatalf("unexpected captured ids %v", fake.captured)
	}
}

func TestHandleReconcileSweep(t *testing.T) {
	fake := &fakeCartPaymentTasks{}
	consumer := &Consumer{cartPayments: fake}
	if err := consumer.handleReconcileSweep(context.Background(), queue.NewReconcileSweepTask()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if fake.sweeps != 1 {
		t.Fatalf("sweep should run once, got %d", fake.sweeps)
	}

	var nilConsumer *Consumer
	if err := nilConsumer.handleReconcileSweep(context.Background(), nil); err != nil {
		t.Fatalf("nil consumer should be a no-op, got %v", err)
	}
}

func TestNewConsumerWithoutService(t *testing.T) {
	consumer := NewConsumer(nil)
	if err := consumer.handleReconcilePaymentIntent(context.Background(), newReconcileTask(t, uuid.NewString())); err != nil {
		t.Fatalf("missing service should be skipped, got %v", err)
	}
}
