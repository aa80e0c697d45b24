package constants

// 支付意图状态常量
const (
	IntentStatusInit            = "init"
	IntentStatusProcessing      = "processing"
	IntentStatusRequiresCapture = "requires_capture"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusFailed          = "failed"
	IntentStatusCancelled       = "cancelled"
)

// 扣款状态常量
const (
	ChargeStatusRequiresCapture = "requires_capture"
	ChargeStatusSucceeded       = "succeeded"
	ChargeStatusFailed          = "failed"
	ChargeStatusCancelled       = "cancelled"
)

// 扣款方式常量（对外词汇）
const (
	CaptureMethodAuto   = "auto"
	CaptureMethodManual = "manual"
)

// 渠道侧扣款/确认方式常量
const (
	ProviderCaptureMethodAutomatic      = "automatic"
	ProviderCaptureMethodManual         = "manual"
	ProviderConfirmationMethodAutomatic = "automatic"
	ProviderConfirmationMethodManual    = "manual"
	ProviderFutureUsageOnSession        = "on_session"
	ProviderFutureUsageOffSession       = "off_session"
)

// 支付渠道常量
const (
	PaymentProviderStripe = "stripe"
)

// 接入方状态与角色常量
const (
	APIClientStatusActive   = "active"
	APIClientStatusDisabled = "disabled"

	RolePayerClient = "payer_client"
	RoleOperator    = "operator"
	RoleAdmin       = "admin"
)

// 锁 key 前缀
const (
	LockPrefixCartPayment    = "cart_payment"
	LockPrefixIdempotencyKey = "cart_payment_key"
)

// 默认国家与币种
const (
	DefaultCountry  = "US"
	DefaultCurrency = "USD"
)

// 异步任务类型
const (
	TaskReconcilePaymentIntent = "cart_payment:reconcile_intent"
	TaskCapturePaymentIntent   = "cart_payment:capture_intent"
	TaskReconcileSweep         = "cart_payment:reconcile_sweep"
)

// 队列名称
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
