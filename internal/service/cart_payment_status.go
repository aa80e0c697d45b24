package service

import (
	"fmt"
	"strings"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"
)

// IntentStatus 支付意图状态
type IntentStatus string

// 支付意图状态
const (
	IntentStatusInit            IntentStatus = constants.IntentStatusInit
	IntentStatusProcessing      IntentStatus = constants.IntentStatusProcessing
	IntentStatusRequiresCapture IntentStatus = constants.IntentStatusRequiresCapture
	IntentStatusSucceeded       IntentStatus = constants.IntentStatusSucceeded
	IntentStatusFailed          IntentStatus = constants.IntentStatusFailed
	IntentStatusCancelled       IntentStatus = constants.IntentStatusCancelled
)

// IsTerminal 是否终态
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusFailed, IntentStatusCancelled:
		return true
	default:
		return false
	}
}

// ChargeStatus 扣款状态
type ChargeStatus string

// 扣款状态
const (
	ChargeStatusRequiresCapture ChargeStatus = constants.ChargeStatusRequiresCapture
	ChargeStatusSucceeded       ChargeStatus = constants.ChargeStatusSucceeded
	ChargeStatusFailed          ChargeStatus = constants.ChargeStatusFailed
	ChargeStatusCancelled       ChargeStatus = constants.ChargeStatusCancelled
)

// ChargeStatusFromIntentStatus 由意图状态推导扣款状态，init/processing 没有对应扣款状态
func ChargeStatusFromIntentStatus(status IntentStatus) (ChargeStatus, error) {
	switch status {
	case IntentStatusRequiresCapture:
		return ChargeStatusRequiresCapture, nil
	case IntentStatusSucceeded:
		return ChargeStatusSucceeded, nil
	case IntentStatusFailed:
		return ChargeStatusFailed, nil
	case IntentStatusCancelled:
		return ChargeStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: intent status %q", ErrIllegalChargeStatus, status)
	}
}

// IntentStatusFromProviderStatus 渠道状态到意图状态的映射，未知状态一律报错
func IntentStatusFromProviderStatus(providerStatus string) (IntentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "requires_payment_method", "requires_confirmation", "requires_action", "processing":
		return IntentStatusProcessing, nil
	case "requires_capture":
		return IntentStatusRequiresCapture, nil
	case "succeeded":
		return IntentStatusSucceeded, nil
	case "canceled", "cancelled":
		return IntentStatusCancelled, nil
	case "failed":
		return IntentStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProviderStatus, providerStatus)
	}
}

func intentStatusOf(intent *models.PaymentIntent) IntentStatus {
	if intent == nil {
		return ""
	}
	return IntentStatus(intent.Status)
}

func isPaymentIntentSubmitted(intent *models.PaymentIntent) bool {
	return intent != nil && IntentStatus(intent.Status) != IntentStatusInit
}

func isPgpPaymentIntentSubmitted(pgpIntent *models.PgpPaymentIntent) bool {
	return pgpIntent != nil && IntentStatus(pgpIntent.Status) != IntentStatusInit
}

func canPaymentIntentBeCancelled(intent *models.PaymentIntent) bool {
	return intent != nil && IntentStatus(intent.Status) == IntentStatusRequiresCapture
}

func canPaymentIntentBeRefunded(intent *models.PaymentIntent) bool {
	return intent != nil && IntentStatus(intent.Status) == IntentStatusSucceeded
}

func canPgpPaymentIntentBeRefunded(pgpIntent *models.PgpPaymentIntent) bool {
	return pgpIntent != nil && IntentStatus(pgpIntent.Status) == IntentStatusSucceeded
}

func hasCaptureBeenAttempted(intent *models.PaymentIntent) bool {
	if intent == nil {
		return false
	}
	status := IntentStatus(intent.Status)
	return status == IntentStatusSucceeded || status == IntentStatusFailed
}

// isCaptureImmediate 捕获始终经过 requires_capture
func isCaptureImmediate(_ *models.PaymentIntent) bool {
	return false
}

// countsTowardCartTotal 首个意图在提交前即计入总额，追加意图在提交后计入；失败与取消不计入
func countsTowardCartTotal(intent *models.PaymentIntent, first bool) bool {
	if intent == nil {
		return false
	}
	switch IntentStatus(intent.Status) {
	case IntentStatusFailed, IntentStatusCancelled:
		return false
	case IntentStatusInit:
		return first
	default:
		return true
	}
}

func expectedCartTotal(intents []models.PaymentIntent) int64 {
	var total int64
	for i := range intents {
		if countsTowardCartTotal(&intents[i], i == 0) {
			total += intents[i].Amount
		}
	}
	return total
}

func transformMethodForProvider(method string) string {
	if method == constants.CaptureMethodAuto {
		return constants.ProviderCaptureMethodAutomatic
	}
	return method
}

func providerCaptureMethod(captureMethod string) string {
	if captureMethod == constants.CaptureMethodManual {
		return constants.ProviderCaptureMethodManual
	}
	return constants.ProviderCaptureMethodAutomatic
}

func providerConfirmationMethod(captureMethod string) string {
	if captureMethod == constants.CaptureMethodManual {
		return constants.ProviderConfirmationMethodManual
	}
	return constants.ProviderConfirmationMethodAutomatic
}

func providerFutureUsage(captureMethod string) string {
	if captureMethod == constants.CaptureMethodManual {
		return constants.ProviderFutureUsageOffSession
	}
	return constants.ProviderFutureUsageOnSession
}

func isAmountAdjustedHigher(cartPayment *models.CartPayment, amount int64) bool {
	return cartPayment != nil && amount > cartPayment.Amount
}

func isAmountAdjustedLower(cartPayment *models.CartPayment, amount int64) bool {
	return cartPayment != nil && amount < cartPayment.Amount
}
