package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{SecretKey: "sk_test_123", APIBaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{SecretKey: " sk_test_123 "})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	cfg := client.Config()
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if cfg.Timeout != defaultTimeout {
		t.Fatalf("unexpected default timeout: %s", cfg.Timeout)
	}
	if _, err := NewClient(Config{}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}

func TestCreatePaymentIntentSendsIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "key-1" {
			t.Errorf("unexpected idempotency header: %s", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form failed: %v", err)
		}
		if r.PostForm.Get("amount") != "1000" || r.PostForm.Get("currency") != "usd" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		if r.PostForm.Get("capture_method") != "manual" {
			t.Errorf("unexpected capture method: %s", r.PostForm.Get("capture_method"))
		}
		if r.PostForm.Get("metadata[idempotency_key]") != "key-1" {
			t.Errorf("unexpected metadata: %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                "pi_123",
			"status":            "requires_capture",
			"amount":            1000,
			"amount_capturable": 1000,
			"currency":          "usd",
			"payment_method":    map[string]interface{}{"id": "pm_1"},
			"latest_charge":     "ch_1",
		})
	})

	intent, err := client.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		Amount:         1000,
		Currency:       "USD",
		CaptureMethod:  "manual",
		IdempotencyKey: "key-1",
		Confirm:        true,
		Metadata:       map[string]string{"idempotency_key": "key-1"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if intent.ID != "pi_123" || intent.Status != "requires_capture" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.PaymentMethodID != "pm_1" || intent.LatestChargeID != "ch_1" {
		t.Fatalf("unexpected references: %+v", intent)
	}
	if intent.AmountCapturable != 1000 || intent.Currency != "USD" {
		t.Fatalf("unexpected amounts: %+v", intent)
	}
}

func TestRequestOutcomeClassification(t *testing.T) {
	t.Run("server error is unknown outcome", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.RetrievePaymentIntent(context.Background(), "pi_1")
		if !errors.Is(err, ErrOutcomeUnknown) {
			t.Fatalf("expected outcome unknown, got %v", err)
		}
	})

	t.Run("card declined is rejection", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`))
		})
		_, err := client.CapturePaymentIntent(context.Background(), "pi_1", 500, "cap-1")
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("expected rejection, got %v", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected api error, got %T", err)
		}
		if apiErr.Code != "card_declined" || apiErr.DeclineCode != "insufficient_funds" {
			t.Fatalf("unexpected api error: %+v", apiErr)
		}
	})

	t.Run("unparseable success body yields empty object", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>ok</html>"))
		})
		intent, err := client.CancelPaymentIntent(context.Background(), "pi_1", "", "cancel-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if intent.ID != "" || intent.Status != "" {
			t.Fatalf("expected empty intent, got %+v", intent)
		}
	})

	t.Run("timeout is unknown outcome", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})
		client = client.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond})
		_, err := client.RetrievePaymentIntent(context.Background(), "pi_1")
		if !errors.Is(err, ErrOutcomeUnknown) {
			t.Fatalf("expected outcome unknown, got %v", err)
		}
	})
}

func TestFindPaymentIntentByIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "metadata['idempotency_key']:'key-9'" {
			t.Errorf("unexpected query: %s", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"pi_9","status":"succeeded","metadata":{"idempotency_key":"key-9"}}]}`))
	})

	intent, err := client.FindPaymentIntentByIdempotencyKey(context.Background(), "key-9")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if intent == nil || intent.ID != "pi_9" || intent.Metadata["idempotency_key"] != "key-9" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestRefundChargeRequiresTarget(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form failed: %v", err)
		}
		if r.PostForm.Get("payment_intent") != "pi_1" || r.PostForm.Get("amount") != "300" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"id":"re_1","status":"succeeded","amount":300,"payment_intent":"pi_1","currency":"usd"}`))
	})

	if _, err := client.RefundCharge(context.Background(), RefundInput{Amount: 300}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
	refund, err := client.RefundCharge(context.Background(), RefundInput{PaymentIntentID: "pi_1", Amount: 300, IdempotencyKey: "refund-1"})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refund.ID != "re_1" || refund.Amount != 300 || refund.Currency != "USD" {
		t.Fatalf("unexpected refund: %+v", refund)
	}
}

func TestVerifyAndParseWebhookPaymentIntent(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "payment_intent.amount_capturable_updated",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":   "payment_intent",
				"id":       "pi_test_123",
				"status":   "requires_capture",
				"metadata": map[string]interface{}{"idempotency_key": "key-1"},
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"stripe-signature": "t=1760000000,v1=" + sig,
	}

	event, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if event.PaymentIntentID != "pi_test_123" || event.Status != "requires_capture" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.IdempotencyKey != "key-1" {
		t.Fatalf("unexpected idempotency key: %s", event.IdempotencyKey)
	}

	if _, err := VerifyAndParseWebhook(cfg, headers, body, now.Add(time.Hour)); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected tolerance failure, got %v", err)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc"}
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"object":"payment_intent","id":"pi_1"}}}`)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=invalid-signature",
	}

	_, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}
