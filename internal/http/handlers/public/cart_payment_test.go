package public

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dujiao-next/payin/internal/config"
	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/lock"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/payment/stripe"
	"github.com/dujiao-next/payin/internal/payment/stripe/stripetest"
	"github.com/dujiao-next/payin/internal/provider"
	"github.com/dujiao-next/payin/internal/repository"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_public"

type apiResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

type cartPaymentBody struct {
	ID            string `json:"id"`
	PayerID       string `json:"payer_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentIntent *struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		Amount         int64  `json:"amount"`
		AmountReceived int64  `json:"amount_received"`
	} `json:"payment_intent"`
}

type publicHandlerEnv struct {
	router *gin.Engine
	stripe *stripetest.Server
}

func setupPublicHandlerTest(t *testing.T) *publicHandlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	fake := stripetest.NewServer()
	t.Cleanup(fake.Close)
	client, err := stripe.NewClient(stripe.Config{SecretKey: "sk_test_public", WebhookSecret: testWebhookSecret, APIBaseURL: fake.URL})
	if err != nil {
		t.Fatalf("new stripe client failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.CartPayment.DefaultCurrency = "USD"
	svc := service.NewCartPaymentService(
		repository.NewCartPaymentRepository(db),
		service.NewStripeProvider(client),
		lock.NewLocalManager(),
		nil,
		nil,
		service.CartPaymentServiceOptions{DefaultCurrency: "USD"},
	)
	h := New(&provider.Container{Config: cfg, CartPaymentService: svc})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if payerID := c.GetHeader("X-Test-Payer"); payerID != "" {
			c.Set(handlershared.ContextPayerID, payerID)
		}
		c.Next()
	})
	r.POST("/api/v1/cart-payments", h.CreateCartPayment)
	r.GET("/api/v1/cart-payments/:id", h.GetCartPayment)
	r.POST("/api/v1/cart-payments/:id/adjust", h.AdjustCartPayment)
	r.POST("/api/v1/webhooks/stripe", h.StripeWebhook)
	return &publicHandlerEnv{router: r, stripe: fake}
}

func (env *publicHandlerEnv) do(t *testing.T, method, path, payerID string, body interface{}, headers map[string]string) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if payerID != "" {
		req.Header.Set("X-Test-Payer", payerID)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("http status want 200 got %d", w.Code)
	}
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v, body=%s", err, w.Body.String())
	}
	return resp
}

func decodeCartPayment(t *testing.T, resp apiResponse) cartPaymentBody {
	t.Helper()
	if resp.StatusCode != 0 {
		t.Fatalf("status_code want 0 got %d (%s)", resp.StatusCode, resp.Msg)
	}
	var body cartPaymentBody
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		t.Fatalf("unmarshal cart payment failed: %v", err)
	}
	return body
}

func createRequest(key string, amount int64, captureMethod string) map[string]interface{} {
	return map[string]interface{}{
		"payer_id":          "payer-1",
		"amount":            amount,
		"currency":          "usd",
		"capture_method":    captureMethod,
		"payment_method_id": "pm_card_visa",
		"customer_id":       "cus_1",
		"idempotency_key":   key,
	}
}

func TestCreateCartPaymentAutoCapture(t *testing.T) {
	env := setupPublicHandlerTest(t)

	created := decodeCartPayment(t, env.do(t, http.MethodPost, "/api/v1/cart-payments", "", createRequest("key-auto", 1500, "auto"), nil))
	if created.Amount != 1500 || created.Currency != "USD" || created.PayerID != "payer-1" {
		t.Fatalf("unexpected cart payment: %+v", created)
	}
	if created.PaymentIntent == nil || created.PaymentIntent.Status != "succeeded" {
		t.Fatalf("auto capture intent should succeed, got %+v", created.PaymentIntent)
	}

	replay := decodeCartPayment(t, env.do(t, http.MethodPost, "/api/v1/cart-payments", "", createRequest("key-auto", 1500, "auto"), nil))
	if replay.ID != created.ID {
		t.Fatalf("idempotent replay should return same cart payment, got %s vs %s", replay.ID, created.ID)
	}
}

func TestCreateCartPaymentIdempotencyHeaderAndDecimalAmount(t *testing.T) {
	env := setupPublicHandlerTest(t)

	body := createRequest("", 0, "manual")
	delete(body, "amount")
	body["amount_decimal"] = "12.34"
	created := decodeCartPayment(t, env.do(t, http.MethodPost, "/api/v1/cart-payments", "", body, map[string]string{idempotencyKeyHeader: "header-key"}))
	if created.Amount != 1234 {
		t.Fatalf("amount_decimal should parse to 1234, got %d", created.Amount)
	}
	if created.PaymentIntent == nil || created.PaymentIntent.Status != "requires_capture" {
		t.Fatalf("manual capture should stop at requires_capture, got %+v", created.PaymentIntent)
	}
}

func TestCreateCartPaymentErrors(t *testing.T) {
	env := setupPublicHandlerTest(t)

	cases := []struct {
		name    string
		payerID string
		body    interface{}
		want    int
	}{
		{name: "malformed body", body: []byte("{"), want: 400},
		{name: "missing idempotency key", body: createRequest("", 100, "auto"), want: 400},
		{name: "zero amount", body: createRequest("key-zero", 0, "auto"), want: 400},
		{name: "bound payer mismatch", payerID: "payer-2", body: createRequest("key-mismatch", 100, "auto"), want: 403},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/cart-payments", tc.payerID, tc.body, nil)
			if resp.StatusCode != tc.want {
				t.Fatalf("status_code want %d got %d (%s)", tc.want, resp.StatusCode, resp.Msg)
			}
		})
	}

	env.stripe.DeclineCreate = true
	resp := env.do(t, http.MethodPost, "/api/v1/cart-payments", "", createRequest("key-declined", 100, "auto"), nil)
	if resp.StatusCode != 402 {
		t.Fatalf("declined card want 402 got %d (%s)", resp.StatusCode, resp.Msg)
	}
	if !bytes.Contains(resp.Data, []byte(string(service.CodePaymentIntentCreateStripeError))) {
		t.Fatalf("declined card should carry stable error code, got %s", string(resp.Data))
	}
}

func TestGetCartPaymentAccess(t *testing.T) {
	env := setupPublicHandlerTest(t)
	created := decodeCartPayment(t, env.do(t, http.MethodPost, "/api/v1/cart-payments", "payer-1", createRequest("key-get", 900, "auto"), nil))

	got := decodeCartPayment(t, env.do(t, http.MethodGet, "/api/v1/cart-payments/"+created.ID, "payer-1", nil, nil))
	if got.ID != created.ID || got.Amount != 900 {
		t.Fatalf("unexpected cart payment: %+v", got)
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/cart-payments/"+created.ID, "payer-2", nil, nil); resp.StatusCode != 403 {
		t.Fatalf("other payer want 403 got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/v1/cart-payments/not-a-uuid", "", nil, nil); resp.StatusCode != 400 {
		t.Fatalf("invalid id want 400 got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/v1/cart-payments/6f1c0a56-3c8e-4b53-9f0e-0d7d1f1b2c3d", "", nil, nil); resp.StatusCode != 404 {
		t.Fatalf("unknown id want 404 got %d", resp.StatusCode)
	}
}

func TestAdjustCartPaymentIncreaseAndDecrease(t *testing.T) {
	env := setupPublicHandlerTest(t)
	created := decodeCartPayment(t, env.do(t, http.MethodPost, "/api/v1/cart-payments", "payer-1", createRequest("key-adjust", 1000, "manual"), nil))
	path := "/api/v1/cart-payments/" + created.ID + "/adjust"

	increased := decodeCartPayment(t, env.do(t, http.MethodPost, path, "payer-1", map[string]interface{}{"amount": 1600, "idempotency_key": "adjust-up"}, nil))
	if increased.Amount != 1600 {
		t.Fatalf("cart total want 1600 got %d", increased.Amount)
	}

	decreased := decodeCartPayment(t, env.do(t, http.MethodPost, path, "payer-1", map[string]interface{}{"amount": 1200, "idempotency_key": "adjust-down"}, nil))
	if decreased.Amount != 1200 {
		t.Fatalf("cart total want 1200 got %d", decreased.Amount)
	}

	if resp := env.do(t, http.MethodPost, path, "payer-1", map[string]interface{}{"idempotency_key": "adjust-missing"}, nil); resp.StatusCode != 400 {
		t.Fatalf("missing amount want 400 got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, path, "payer-2", map[string]interface{}{"amount": 500, "idempotency_key": "adjust-other"}, nil); resp.StatusCode != 403 {
		t.Fatalf("other payer want 403 got %d", resp.StatusCode)
	}
}

func TestStripeWebhook(t *testing.T) {
	env := setupPublicHandlerTest(t)
	decodeCartPayment(t, env.do(t, http.MethodPost, "/api/v1/cart-payments", "", createRequest("key-webhook", 700, "manual"), nil))

	event := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "payment_intent.amount_capturable_updated",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":   "payment_intent",
				"id":       "pi_test_1",
				"status":   "requires_capture",
				"metadata": map[string]interface{}{"idempotency_key": "key-webhook"},
			},
		},
	}
	raw, _ := json.Marshal(event)
	signature := stripe.SignatureHeader(testWebhookSecret, time.Now().Unix(), raw)

	resp := env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", raw, map[string]string{"Stripe-Signature": signature})
	if resp.StatusCode != 0 {
		t.Fatalf("signed webhook want 0 got %d (%s)", resp.StatusCode, resp.Msg)
	}
	var accepted struct {
		Accepted bool   `json:"accepted"`
		EventID  string `json:"event_id"`
	}
	if err := json.Unmarshal(resp.Data, &accepted); err != nil {
		t.Fatalf("unmarshal webhook response failed: %v", err)
	}
	if !accepted.Accepted || accepted.EventID != "evt_test_1" {
		t.Fatalf("unexpected webhook response: %+v", accepted)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/webhooks/stripe", "", raw, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	if resp.StatusCode != 400 {
		t.Fatalf("bad signature want 400 got %d", resp.StatusCode)
	}
}
