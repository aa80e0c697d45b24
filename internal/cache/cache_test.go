package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dujiao-next/payin/internal/models"

	"github.com/google/uuid"
)

func TestBuildKeyUsesPrefix(t *testing.T) {
	oldPrefix := redisPrefix
	t.Cleanup(func() { redisPrefix = oldPrefix })

	redisPrefix = "payin"
	if got := buildKey(" cart_payment:snapshot:1 "); got != "payin:cart_payment:snapshot:1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := buildKey(""); got != "payin" {
		t.Fatalf("unexpected empty key: %s", got)
	}
}

func TestSnapshotStoreDisabledIsMiss(t *testing.T) {
	oldEnabled := redisEnabled
	t.Cleanup(func() { redisEnabled = oldEnabled })
	redisEnabled = false

	store := NewCartPaymentSnapshotStore(time.Minute)
	id := uuid.New()
	store.Set(context.Background(), &CartPaymentSnapshot{CartPayment: models.CartPayment{ID: id}})
	if _, hit := store.Get(context.Background(), id); hit {
		t.Fatalf("expected miss when redis disabled")
	}
	store.Invalidate(context.Background(), id)
}

func TestBuildAPIClientAuthState(t *testing.T) {
	if BuildAPIClientAuthState(nil) != nil {
		t.Fatalf("expected nil state")
	}
	state := BuildAPIClientAuthState(&models.APIClient{ID: 7, ClientKey: "ck", Role: "operator", Status: "active", PayerID: "p1"})
	if state.ClientID != 7 || state.Role != "operator" || state.PayerID != "p1" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if apiClientAuthStateKey(7) != "auth:client:7" {
		t.Fatalf("unexpected key: %s", apiClientAuthStateKey(7))
	}
}
