package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dujiao-next/payin/internal/config"
)

func TestNewReconcilePaymentIntentTask(t *testing.T) {
	task, err := NewReconcilePaymentIntentTask(ReconcilePaymentIntentPayload{PaymentIntentID: "pi-1", Reason: "provider_timeout"})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskReconcilePaymentIntent {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	var payload ReconcilePaymentIntentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if payload.PaymentIntentID != "pi-1" || payload.Reason != "provider_timeout" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := client.EnqueueReconcilePaymentIntent(ReconcilePaymentIntentPayload{PaymentIntentID: "pi-1"}, time.Second); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.EnqueueCapturePaymentIntent(CapturePaymentIntentPayload{PaymentIntentID: "pi-1"}, time.Now()); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: "redis", Port: 6380, DB: 2})
	if opt.Addr != "redis:6380" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt: %+v", opt)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("unexpected concurrency: %d", cfg.Concurrency)
	}
	if cfg.Queues[CriticalQueue] != 6 || cfg.Queues[LowQueue] != 1 {
		t.Fatalf("unexpected queues: %v", cfg.Queues)
	}
}
