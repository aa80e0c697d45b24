package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/payment/stripe"
)

// CreateProviderIntentInput 渠道创建支付意图参数
type CreateProviderIntentInput struct {
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
	IdempotencyKey       string
	Metadata             map[string]string
}

// ProviderRefundInput 渠道退款参数
type ProviderRefundInput struct {
	PaymentIntentResourceID string
	ChargeResourceID        string
	Amount                  int64
	Reason                  string
	IdempotencyKey          string
	Metadata                map[string]string
}

// ProviderIntent 渠道支付意图归一化结果
type ProviderIntent struct {
	ResourceID              string
	Status                  string
	PaymentMethodResourceID string
	CustomerResourceID      string
	ChargeResourceID        string
	Currency                string
	Amount                  int64
	AmountCapturable        int64
	AmountReceived          int64
}

// ProviderRefund 渠道退款归一化结果
type ProviderRefund struct {
	ResourceID       string
	Status           string
	ChargeResourceID string
	Amount           int64
}

// ProviderEvent 渠道回调事件
type ProviderEvent struct {
	EventID                 string
	EventType               string
	PaymentIntentResourceID string
	IdempotencyKey          string
}

// PaymentProvider 支付渠道网关
// 超时与渠道 5xx 返回 ErrProviderOutcomeUnknown，其余错误视为渠道明确拒绝
type PaymentProvider interface {
	Name() string
	CreatePaymentIntent(ctx context.Context, input CreateProviderIntentInput) (*ProviderIntent, error)
	RetrievePaymentIntent(ctx context.Context, resourceID string) (*ProviderIntent, error)
	FindPaymentIntentByIdempotencyKey(ctx context.Context, idempotencyKey string) (*ProviderIntent, error)
	CapturePaymentIntent(ctx context.Context, resourceID string, amount int64, idempotencyKey string) (*ProviderIntent, error)
	CancelPaymentIntent(ctx context.Context, resourceID string, idempotencyKey string) (*ProviderIntent, error)
	RefundCharge(ctx context.Context, input ProviderRefundInput) (*ProviderRefund, error)
	ParseWebhook(headers map[string]string, body []byte, now time.Time) (*ProviderEvent, error)
}

// StripeProvider Stripe 渠道网关
type StripeProvider struct {
	client *stripe.Client
}

// NewStripeProvider 创建 Stripe 渠道网关
func NewStripeProvider(client *stripe.Client) *StripeProvider {
	return &StripeProvider{client: client}
}

// Name 渠道名称
func (p *StripeProvider) Name() string {
	return constants.PaymentProviderStripe
}

// CreatePaymentIntent 创建并确认渠道支付意图
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, input CreateProviderIntentInput) (*ProviderIntent, error) {
	intent, err := p.client.CreatePaymentIntent(ctx, stripe.CreatePaymentIntentInput{
		Amount:               input.Amount,
		Currency:             input.Currency,
		PaymentMethodID:      input.PaymentMethodID,
		CustomerID:           input.CustomerID,
		CaptureMethod:        input.CaptureMethod,
		ConfirmationMethod:   input.ConfirmationMethod,
		SetupFutureUsage:     input.SetupFutureUsage,
		StatementDescriptor:  input.StatementDescriptor,
		Description:          input.Description,
		ApplicationFeeAmount: input.ApplicationFeeAmount,
		Confirm:              true,
		OffSession:           input.SetupFutureUsage == constants.ProviderFutureUsageOffSession,
		IdempotencyKey:       input.IdempotencyKey,
		Metadata:             input.Metadata,
	})
	if err != nil {
		return nil, mapStripeError(err)
	}
	return providerIntentFromStripe(intent), nil
}

// RetrievePaymentIntent 查询渠道支付意图
func (p *StripeProvider) RetrievePaymentIntent(ctx context.Context, resourceID string) (*ProviderIntent, error) {
	intent, err := p.client.RetrievePaymentIntent(ctx, resourceID)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return providerIntentFromStripe(intent), nil
}

// FindPaymentIntentByIdempotencyKey 按幂等键元数据查询渠道支付意图，不存在返回 nil
func (p *StripeProvider) FindPaymentIntentByIdempotencyKey(ctx context.Context, idempotencyKey string) (*ProviderIntent, error) {
	intent, err := p.client.FindPaymentIntentByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, mapStripeError(err)
	}
	if intent == nil {
		return nil, nil
	}
	return providerIntentFromStripe(intent), nil
}

// CapturePaymentIntent 捕获渠道支付意图
func (p *StripeProvider) CapturePaymentIntent(ctx context.Context, resourceID string, amount int64, idempotencyKey string) (*ProviderIntent, error) {
	intent, err := p.client.CapturePaymentIntent(ctx, resourceID, amount, idempotencyKey)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return providerIntentFromStripe(intent), nil
}

// CancelPaymentIntent 取消渠道支付意图
func (p *StripeProvider) CancelPaymentIntent(ctx context.Context, resourceID string, idempotencyKey string) (*ProviderIntent, error) {
	intent, err := p.client.CancelPaymentIntent(ctx, resourceID, "requested_by_customer", idempotencyKey)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return providerIntentFromStripe(intent), nil
}

// RefundCharge 发起退款
func (p *StripeProvider) RefundCharge(ctx context.Context, input ProviderRefundInput) (*ProviderRefund, error) {
	refund, err := p.client.RefundCharge(ctx, stripe.RefundInput{
		PaymentIntentID: input.PaymentIntentResourceID,
		ChargeID:        input.ChargeResourceID,
		Amount:          input.Amount,
		Reason:          input.Reason,
		IdempotencyKey:  input.IdempotencyKey,
		Metadata:        input.Metadata,
	})
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &ProviderRefund{
		ResourceID:       refund.ID,
		Status:           refund.Status,
		ChargeResourceID: refund.ChargeID,
		Amount:           refund.Amount,
	}, nil
}

// ParseWebhook 校验签名并解析回调
func (p *StripeProvider) ParseWebhook(headers map[string]string, body []byte, now time.Time) (*ProviderEvent, error) {
	cfg := p.client.Config()
	event, err := stripe.VerifyAndParseWebhook(&cfg, headers, body, now)
	if err != nil {
		return nil, err
	}
	return &ProviderEvent{
		EventID:                 event.EventID,
		EventType:               event.EventType,
		PaymentIntentResourceID: event.PaymentIntentID,
		IdempotencyKey:          event.IdempotencyKey,
	}, nil
}

func providerIntentFromStripe(intent *stripe.PaymentIntent) *ProviderIntent {
	if intent == nil {
		return &ProviderIntent{}
	}
	return &ProviderIntent{
		ResourceID:              intent.ID,
		Status:                  intent.Status,
		PaymentMethodResourceID: intent.PaymentMethodID,
		CustomerResourceID:      intent.CustomerID,
		ChargeResourceID:        intent.LatestChargeID,
		Currency:                intent.Currency,
		Amount:                  intent.Amount,
		AmountCapturable:        intent.AmountCapturable,
		AmountReceived:          intent.AmountReceived,
	}
}

func mapStripeError(err error) error {
	if errors.Is(err, stripe.ErrOutcomeUnknown) {
		return fmt.Errorf("%w: %v", ErrProviderOutcomeUnknown, err)
	}
	return err
}
