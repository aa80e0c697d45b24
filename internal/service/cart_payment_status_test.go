package service

import (
	"errors"
	"testing"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"
)

func TestChargeStatusFromIntentStatus(t *testing.T) {
	cases := map[IntentStatus]ChargeStatus{
		IntentStatusRequiresCapture: ChargeStatusRequiresCapture,
		IntentStatusSucceeded:       ChargeStatusSucceeded,
		IntentStatusFailed:          ChargeStatusFailed,
		IntentStatusCancelled:       ChargeStatusCancelled,
	}
	for intentStatus, want := range cases {
		got, err := ChargeStatusFromIntentStatus(intentStatus)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", intentStatus, err)
		}
		if got != want {
			t.Fatalf("%s: want %s got %s", intentStatus, want, got)
		}
	}
	for _, intentStatus := range []IntentStatus{IntentStatusInit, IntentStatusProcessing, "bogus"} {
		if _, err := ChargeStatusFromIntentStatus(intentStatus); !errors.Is(err, ErrIllegalChargeStatus) {
			t.Fatalf("%s: want ErrIllegalChargeStatus got %v", intentStatus, err)
		}
	}
}

func TestIntentStatusFromProviderStatus(t *testing.T) {
	cases := map[string]IntentStatus{
		"requires_payment_method": IntentStatusProcessing,
		"requires_confirmation":   IntentStatusProcessing,
		"requires_action":         IntentStatusProcessing,
		"processing":              IntentStatusProcessing,
		"requires_capture":        IntentStatusRequiresCapture,
		"succeeded":               IntentStatusSucceeded,
		"canceled":                IntentStatusCancelled,
		"failed":                  IntentStatusFailed,
	}
	for providerStatus, want := range cases {
		got, err := IntentStatusFromProviderStatus(providerStatus)
		if err != nil || got != want {
			t.Fatalf("%s: want %s got %s (%v)", providerStatus, want, got, err)
		}
	}
	if _, err := IntentStatusFromProviderStatus("on_hold"); !errors.Is(err, ErrUnknownProviderStatus) {
		t.Fatalf("unknown status should fail, got %v", err)
	}
	if _, err := IntentStatusFromProviderStatus(""); !errors.Is(err, ErrUnknownProviderStatus) {
		t.Fatalf("empty status should fail, got %v", err)
	}
}

func TestIntentStatusPredicates(t *testing.T) {
	intent := func(status string) *models.PaymentIntent {
		return &models.PaymentIntent{Status: status}
	}
	if isPaymentIntentSubmitted(intent(constants.IntentStatusInit)) {
		t.Fatalf("init should not be submitted")
	}
	if !isPaymentIntentSubmitted(intent(constants.IntentStatusProcessing)) {
		t.Fatalf("processing should be submitted")
	}
	if !canPaymentIntentBeCancelled(intent(constants.IntentStatusRequiresCapture)) || canPaymentIntentBeCancelled(intent(constants.IntentStatusSucceeded)) {
		t.Fatalf("only requires_capture is cancellable")
	}
	if !canPaymentIntentBeRefunded(intent(constants.IntentStatusSucceeded)) || canPaymentIntentBeRefunded(intent(constants.IntentStatusFailed)) {
		t.Fatalf("only succeeded is refundable")
	}
	if !hasCaptureBeenAttempted(intent(constants.IntentStatusFailed)) || hasCaptureBeenAttempted(intent(constants.IntentStatusRequiresCapture)) {
		t.Fatalf("capture attempted only in succeeded or failed")
	}
	if !IntentStatusCancelled.IsTerminal() || IntentStatusRequiresCapture.IsTerminal() {
		t.Fatalf("terminal states mismatch")
	}
}

func TestExpectedCartTotal(t *testing.T) {
	intents := []models.PaymentIntent{
		{Status: constants.IntentStatusInit, Amount: 1000},
		{Status: constants.IntentStatusSucceeded, Amount: 300},
		{Status: constants.IntentStatusInit, Amount: 200},
		{Status: constants.IntentStatusFailed, Amount: 400},
		{Status: constants.IntentStatusCancelled, Amount: 50},
	}
	if got := expectedCartTotal(intents); got != 1300 {
		t.Fatalf("want 1300 got %d", got)
	}
}

func TestProviderModesFollowCaptureMethod(t *testing.T) {
	if providerCaptureMethod(constants.CaptureMethodManual) != constants.ProviderCaptureMethodManual {
		t.Fatalf("manual capture should map to provider manual")
	}
	if providerFutureUsage(constants.CaptureMethodManual) != constants.ProviderFutureUsageOffSession {
		t.Fatalf("manual capture should use off_session")
	}
	if providerFutureUsage(constants.CaptureMethodAuto) != constants.ProviderFutureUsageOnSession {
		t.Fatalf("auto capture should use on_session")
	}
}
