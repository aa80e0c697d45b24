package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// CreatePaymentIntentInput 创建 PaymentIntent 输入（金额为最小货币单位）。
type CreatePaymentIntentInput struct {
	Amount               int64
	Currency             string
	PaymentMethodID      string
	CustomerID           string
	CaptureMethod        string
	ConfirmationMethod   string
	SetupFutureUsage     string
	StatementDescriptor  string
	Description          string
	ApplicationFeeAmount int64
	Confirm              bool
	OffSession           bool
	IdempotencyKey       string
	Metadata             map[string]string
}

// PaymentIntent 归一化的 PaymentIntent 返回。
type PaymentIntent struct {
	ID                 string
	Status             string
	PaymentMethodID    string
	CustomerID         string
	LatestChargeID     string
	CaptureMethod      string
	ConfirmationMethod string
	Currency           string
	Amount             int64
	AmountCapturable   int64
	AmountReceived     int64
	Metadata           map[string]string
	Raw                map[string]interface{}
}

// RefundInput 退款输入。
type RefundInput struct {
	PaymentIntentID string
	ChargeID        string
	Amount          int64
	Reason          string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Refund 归一化的退款返回。
type Refund struct {
	ID              string
	Status          string
	ChargeID        string
	PaymentIntentID string
	Currency        string
	Amount          int64
	Raw             map[string]interface{}
}

// CreatePaymentIntent 创建并（可选）确认 PaymentIntent。
func (c *Client) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntent, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(input.Amount, 10))
	form.Set("currency", currency)
	setIfNotEmpty(form, "payment_method", input.PaymentMethodID)
	setIfNotEmpty(form, "customer", input.CustomerID)
	setIfNotEmpty(form, "capture_method", input.CaptureMethod)
	setIfNotEmpty(form, "confirmation_method", input.ConfirmationMethod)
	setIfNotEmpty(form, "setup_future_usage", input.SetupFutureUsage)
	setIfNotEmpty(form, "statement_descriptor", input.StatementDescriptor)
	setIfNotEmpty(form, "description", input.Description)
	if input.ApplicationFeeAmount > 0 {
		form.Set("application_fee_amount", strconv.FormatInt(input.ApplicationFeeAmount, 10))
	}
	if input.Confirm {
		form.Set("confirm", "true")
	}
	if input.OffSession {
		form.Set("off_session", "true")
	}
	setMetadata(form, input.Metadata)

	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents", form, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return parsePaymentIntent(raw), nil
}

// RetrievePaymentIntent 查询 PaymentIntent。
func (c *Client) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment_intent id is required", ErrConfigInvalid)
	}
	raw, err := c.doRequest(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(paymentIntentID), nil, "")
	if err != nil {
		return nil, err
	}
	return parsePaymentIntent(raw), nil
}

// FindPaymentIntentByIdempotencyKey 通过元数据中的幂等键检索 PaymentIntent，未找到返回 nil。
func (c *Client) FindPaymentIntentByIdempotencyKey(ctx context.Context, idempotencyKey string) (*PaymentIntent, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrConfigInvalid)
	}
	query := url.Values{}
	query.Set("query", fmt.Sprintf("metadata['idempotency_key']:'%s'", strings.ReplaceAll(idempotencyKey, "'", "\\'")))
	query.Set("limit", "1")
	raw, err := c.doRequest(ctx, http.MethodGet, "/v1/payment_intents/search", query, "")
	if err != nil {
		return nil, err
	}
	items, ok := raw["data"].([]interface{})
	if !ok || len(items) == 0 {
		return nil, nil
	}
	first, ok := items[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: search result item invalid", ErrResponseInvalid)
	}
	return parsePaymentIntent(first), nil
}

// CapturePaymentIntent 捕获已授权的 PaymentIntent，amount 为 0 时全额捕获。
func (c *Client) CapturePaymentIntent(ctx context.Context, paymentIntentID string, amount int64, idempotencyKey string) (*PaymentIntent, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment_intent id is required", ErrConfigInvalid)
	}
	form := url.Values{}
	if amount > 0 {
		form.Set("amount_to_capture", strconv.FormatInt(amount, 10))
	}
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(paymentIntentID)+"/capture", form, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return parsePaymentIntent(raw), nil
}

// CancelPaymentIntent 取消 PaymentIntent 授权。
func (c *Client) CancelPaymentIntent(ctx context.Context, paymentIntentID string, reason string, idempotencyKey string) (*PaymentIntent, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment_intent id is required", ErrConfigInvalid)
	}
	form := url.Values{}
	setIfNotEmpty(form, "cancellation_reason", reason)
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(paymentIntentID)+"/cancel", form, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return parsePaymentIntent(raw), nil
}

// RefundCharge 对已捕获的支付发起（部分）退款。
func (c *Client) RefundCharge(ctx context.Context, input RefundInput) (*Refund, error) {
	form := url.Values{}
	switch {
	case strings.TrimSpace(input.ChargeID) != "":
		form.Set("charge", strings.TrimSpace(input.ChargeID))
	case strings.TrimSpace(input.PaymentIntentID) != "":
		form.Set("payment_intent", strings.TrimSpace(input.PaymentIntentID))
	default:
		return nil, fmt.Errorf("%w: charge or payment_intent is required", ErrConfigInvalid)
	}
	if input.Amount > 0 {
		form.Set("amount", strconv.FormatInt(input.Amount, 10))
	}
	setIfNotEmpty(form, "reason", input.Reason)
	setMetadata(form, input.Metadata)

	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/refunds", form, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &Refund{
		ID:              readString(raw, "id"),
		Status:          readString(raw, "status"),
		ChargeID:        readString(raw, "charge"),
		PaymentIntentID: readString(raw, "payment_intent"),
		Currency:        strings.ToUpper(readString(raw, "currency")),
		Amount:          readInt64(raw, "amount"),
		Raw:             raw,
	}, nil
}

func parsePaymentIntent(raw map[string]interface{}) *PaymentIntent {
	result := &PaymentIntent{
		ID:                 readString(raw, "id"),
		Status:             readString(raw, "status"),
		PaymentMethodID:    readStringOrID(raw, "payment_method"),
		CustomerID:         readStringOrID(raw, "customer"),
		LatestChargeID:     readStringOrID(raw, "latest_charge"),
		CaptureMethod:      readString(raw, "capture_method"),
		ConfirmationMethod: readString(raw, "confirmation_method"),
		Currency:           strings.ToUpper(readString(raw, "currency")),
		Amount:             readInt64(raw, "amount"),
		AmountCapturable:   readInt64(raw, "amount_capturable"),
		AmountReceived:     readInt64(raw, "amount_received"),
		Raw:                raw,
	}
	if metadata := readMap(raw, "metadata"); len(metadata) > 0 {
		result.Metadata = make(map[string]string, len(metadata))
		for key := range metadata {
			result.Metadata[key] = readString(metadata, key)
		}
	}
	return result
}

func setIfNotEmpty(form url.Values, key, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		form.Set(key, trimmed)
	}
}

func setMetadata(form url.Values, metadata map[string]string) {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		form.Set("metadata["+key+"]", metadata[key])
	}
}
