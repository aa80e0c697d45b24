package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupCartPaymentRepositoryTest(t *testing.T) (*GormCartPaymentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:cart_payment_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewCartPaymentRepository(db), db
}

func newTestCartPayment(payerID string, amount int64) *models.CartPayment {
	return &models.CartPayment{
		PayerID:       payerID,
		Amount:        amount,
		Currency:      "USD",
		CaptureMethod: constants.CaptureMethodManual,
	}
}

func newTestIntent(cartPayment *models.CartPayment, key string, amount int64) *models.PaymentIntent {
	return &models.PaymentIntent{
		CartPaymentID:      cartPayment.ID,
		PayerID:            cartPayment.PayerID,
		IdempotencyKey:     key,
		Amount:             amount,
		Currency:           cartPayment.Currency,
		Country:            "US",
		CaptureMethod:      cartPayment.CaptureMethod,
		ConfirmationMethod: constants.ProviderConfirmationMethodManual,
		Status:             constants.IntentStatusInit,
	}
}

func TestCartPaymentRepositoryGetMissingReturnsNil(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	got, err := repo.GetCartPaymentByID(context.Background(), models.NewID())
	if err != nil {
		t.Fatalf("get cart payment failed: %v", err)
	}
	if got != nil {
		t.Fatalf("missing cart payment should be nil, got %+v", got)
	}
}

func TestCartPaymentRepositoryDuplicateIdempotencyKey(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-1", 1000)
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}
	if err := repo.InsertPaymentIntent(ctx, newTestIntent(cartPayment, "key-1", 1000)); err != nil {
		t.Fatalf("insert intent failed: %v", err)
	}
	err := repo.InsertPaymentIntent(ctx, newTestIntent(cartPayment, "key-1", 1000))
	if !errors.Is(err, ErrDuplicateIdempotencyKey) {
		t.Fatalf("duplicate insert want ErrDuplicateIdempotencyKey got %v", err)
	}

	intents, err := repo.GetPaymentIntentsForCartPayment(ctx, cartPayment.ID)
	if err != nil {
		t.Fatalf("list intents failed: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("intent count want 1 got %d", len(intents))
	}
}

func TestCartPaymentRepositoryIdempotencyLookupScopedByPayer(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-1", 500)
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}
	intent := newTestIntent(cartPayment, "key-scoped", 500)
	if err := repo.InsertPaymentIntent(ctx, intent); err != nil {
		t.Fatalf("insert intent failed: %v", err)
	}

	found, err := repo.GetPaymentIntentForIdempotencyKey(ctx, "payer-1", "key-scoped")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found == nil || found.ID != intent.ID {
		t.Fatalf("lookup should return inserted intent, got %+v", found)
	}

	other, err := repo.GetPaymentIntentForIdempotencyKey(ctx, "payer-2", "key-scoped")
	if err != nil {
		t.Fatalf("lookup other payer failed: %v", err)
	}
	if other != nil {
		t.Fatalf("lookup for other payer should be nil, got %+v", other)
	}
}

func TestCartPaymentRepositoryStatusPrecondition(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-1", 800)
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}
	intent := newTestIntent(cartPayment, "key-status", 800)
	if err := repo.InsertPaymentIntent(ctx, intent); err != nil {
		t.Fatalf("insert intent failed: %v", err)
	}

	updated, err := repo.UpdatePaymentIntentStatus(ctx, intent.ID, []string{constants.IntentStatusInit}, PaymentIntentUpdate{
		Status: constants.IntentStatusRequiresCapture,
	})
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if updated.Status != constants.IntentStatusRequiresCapture {
		t.Fatalf("status want requires_capture got %s", updated.Status)
	}

	_, err = repo.UpdatePaymentIntentStatus(ctx, intent.ID, []string{constants.IntentStatusInit}, PaymentIntentUpdate{
		Status: constants.IntentStatusFailed,
	})
	if !errors.Is(err, ErrStalePrecondition) {
		t.Fatalf("stale update want ErrStalePrecondition got %v", err)
	}
}

func TestCartPaymentRepositoryPgpIntentsInCreationOrder(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-1", 300)
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}
	intent := newTestIntent(cartPayment, "key-order", 300)
	if err := repo.InsertPaymentIntent(ctx, intent); err != nil {
		t.Fatalf("insert intent failed: %v", err)
	}

	createdAt := time.Now().UTC().Truncate(time.Second)
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		pgpIntent := &models.PgpPaymentIntent{
			PaymentIntentID:    intent.ID,
			IdempotencyKey:     intent.IdempotencyKey,
			Provider:           constants.PaymentProviderStripe,
			Currency:           "USD",
			Amount:             300,
			CaptureMethod:      constants.CaptureMethodManual,
			ConfirmationMethod: constants.ProviderConfirmationMethodManual,
			Status:             constants.IntentStatusInit,
			CreatedAt:          createdAt,
		}
		if err := repo.InsertPgpPaymentIntent(ctx, pgpIntent); err != nil {
			t.Fatalf("insert pgp intent failed: %v", err)
		}
		ids = append(ids, pgpIntent.ID.String())
	}

	pgpIntents, err := repo.FindPgpPaymentIntents(ctx, intent.ID)
	if err != nil {
		t.Fatalf("find pgp intents failed: %v", err)
	}
	if len(pgpIntents) != 3 {
		t.Fatalf("pgp intent count want 3 got %d", len(pgpIntents))
	}
	for i, item := range pgpIntents {
		if item.ID.String() != ids[i] {
			t.Fatalf("pgp intent order mismatch at %d: want %s got %s", i, ids[i], item.ID)
		}
	}
}

func TestCartPaymentRepositoryChargeUpdatesWithoutCharge(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	charge, err := repo.UpdatePaymentChargeStatus(ctx, models.NewID(), constants.ChargeStatusCancelled)
	if err != nil {
		t.Fatalf("update missing charge failed: %v", err)
	}
	if charge != nil {
		t.Fatalf("missing charge update should return nil, got %+v", charge)
	}
}

func TestCartPaymentRepositoryChargePairAmounts(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	intentID := models.NewID()
	charge := &models.PaymentCharge{
		PaymentIntentID: intentID,
		Provider:        constants.PaymentProviderStripe,
		IdempotencyKey:  "charge-key",
		Status:          constants.ChargeStatusSucceeded,
		Currency:        "USD",
		Amount:          1000,
	}
	if err := repo.InsertPaymentCharge(ctx, charge); err != nil {
		t.Fatalf("insert charge failed: %v", err)
	}
	pgpCharge := &models.PgpPaymentCharge{
		PaymentChargeID: charge.ID,
		Provider:        constants.PaymentProviderStripe,
		IdempotencyKey:  "charge-key",
		Status:          constants.ChargeStatusSucceeded,
		Currency:        "USD",
		Amount:          1000,
		ResourceID:      "ch_1",
	}
	if err := repo.InsertPgpPaymentCharge(ctx, pgpCharge); err != nil {
		t.Fatalf("insert pgp charge failed: %v", err)
	}

	updatedCharge, err := repo.UpdatePaymentChargeAmount(ctx, intentID, 600)
	if err != nil {
		t.Fatalf("update charge amount failed: %v", err)
	}
	if updatedCharge == nil || updatedCharge.Amount != 600 {
		t.Fatalf("charge amount want 600 got %+v", updatedCharge)
	}
	updatedPgpCharge, err := repo.UpdatePgpPaymentChargeAmount(ctx, charge.ID, 600)
	if err != nil {
		t.Fatalf("update pgp charge amount failed: %v", err)
	}
	if updatedPgpCharge == nil || updatedPgpCharge.Amount != 600 || updatedPgpCharge.ResourceID != "ch_1" {
		t.Fatalf("pgp charge update mismatch: %+v", updatedPgpCharge)
	}
}

func TestCartPaymentRepositoryTransactionRollback(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-tx", 100)
	rollbackErr := errors.New("rollback")
	err := repo.Transaction(ctx, func(tx CartPaymentRepository) error {
		if err := tx.InsertCartPayment(ctx, cartPayment); err != nil {
			return err
		}
		return rollbackErr
	})
	if !errors.Is(err, rollbackErr) {
		t.Fatalf("transaction error want rollback got %v", err)
	}
	got, err := repo.GetCartPaymentByID(ctx, cartPayment.ID)
	if err != nil {
		t.Fatalf("get after rollback failed: %v", err)
	}
	if got != nil {
		t.Fatalf("rolled back cart payment should not exist")
	}
}

func TestCartPaymentRepositoryListByMetadataAndDetailsUpdate(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	first := newTestCartPayment("payer-list", 100)
	first.Metadata = models.JSON{"order_ref": "A-1"}
	first.ClientDescription = "breakfast order"
	second := newTestCartPayment("payer-list", 200)
	second.Metadata = models.JSON{"order_ref": "B-2"}
	for _, item := range []*models.CartPayment{first, second} {
		if err := repo.InsertCartPayment(ctx, item); err != nil {
			t.Fatalf("insert cart payment failed: %v", err)
		}
	}

	rows, total, err := repo.ListCartPayments(ctx, CartPaymentListFilter{
		Page:          1,
		PageSize:      10,
		PayerID:       "payer-list",
		MetadataKey:   "order_ref",
		MetadataValue: "B-2",
	})
	if err != nil {
		t.Fatalf("list by metadata failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != second.ID {
		t.Fatalf("metadata filter mismatch: total=%d rows=%+v", total, rows)
	}

	rows, total, err = repo.ListCartPayments(ctx, CartPaymentListFilter{Page: 1, PageSize: 10, Search: "breakfast"})
	if err != nil {
		t.Fatalf("list by search failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != first.ID {
		t.Fatalf("search filter mismatch: total=%d rows=%+v", total, rows)
	}

	if _, _, err := repo.ListCartPayments(ctx, CartPaymentListFilter{MetadataKey: "bad key'"}); err == nil {
		t.Fatalf("unsafe metadata key should be rejected")
	}

	amount := int64(150)
	description := "updated"
	updated, err := repo.UpdateCartPaymentDetails(ctx, first.ID, CartPaymentDetailsUpdate{
		Amount:            &amount,
		ClientDescription: &description,
	})
	if err != nil {
		t.Fatalf("update details failed: %v", err)
	}
	if updated.Amount != 150 || updated.ClientDescription != "updated" || updated.Metadata["order_ref"] != "A-1" {
		t.Fatalf("details update mismatch: %+v", updated)
	}
}

func TestCartPaymentRepositoryAdjustmentHistoryByKey(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-history", 1000)
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}
	intent := newTestIntent(cartPayment, "history-intent", 1000)
	if err := repo.InsertPaymentIntent(ctx, intent); err != nil {
		t.Fatalf("insert intent failed: %v", err)
	}
	history := &models.PaymentIntentAdjustmentHistory{
		PayerID:         cartPayment.PayerID,
		PaymentIntentID: intent.ID,
		Amount:          800,
		AmountOriginal:  1000,
		AmountDelta:     -200,
		Currency:        "USD",
		IdempotencyKey:  "deduct-1",
	}
	if err := repo.InsertPaymentIntentAdjustmentHistory(ctx, history); err != nil {
		t.Fatalf("insert history failed: %v", err)
	}

	got, err := repo.GetAdjustmentHistoryForIdempotencyKey(ctx, "payer-history", "deduct-1")
	if err != nil {
		t.Fatalf("get history failed: %v", err)
	}
	if got == nil || got.ID != history.ID || got.AmountDelta != -200 {
		t.Fatalf("history mismatch: %+v", got)
	}
	other, err := repo.GetAdjustmentHistoryForIdempotencyKey(ctx, "payer-other", "deduct-1")
	if err != nil {
		t.Fatalf("get history for other payer failed: %v", err)
	}
	if other != nil {
		t.Fatalf("history lookup must be scoped by payer")
	}
}

func TestCartPaymentRepositoryDueForCapture(t *testing.T) {
	repo, _ := setupCartPaymentRepositoryTest(t)
	ctx := context.Background()

	cartPayment := newTestCartPayment("payer-capture", 500)
	if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
		t.Fatalf("insert cart payment failed: %v", err)
	}
	due := newTestIntent(cartPayment, "capture-due", 300)
	later := newTestIntent(cartPayment, "capture-later", 200)
	for _, item := range []*models.PaymentIntent{due, later} {
		if err := repo.InsertPaymentIntent(ctx, item); err != nil {
			t.Fatalf("insert intent failed: %v", err)
		}
	}
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	if _, err := repo.UpdatePaymentIntentStatus(ctx, due.ID, []string{constants.IntentStatusInit}, PaymentIntentUpdate{
		Status:       constants.IntentStatusRequiresCapture,
		CaptureAfter: &past,
	}); err != nil {
		t.Fatalf("update due intent failed: %v", err)
	}
	if _, err := repo.UpdatePaymentIntentStatus(ctx, later.ID, []string{constants.IntentStatusInit}, PaymentIntentUpdate{
		Status:       constants.IntentStatusRequiresCapture,
		CaptureAfter: &future,
	}); err != nil {
		t.Fatalf("update later intent failed: %v", err)
	}

	rows, err := repo.ListPaymentIntentsDueForCapture(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != due.ID {
		t.Fatalf("due capture mismatch: %+v", rows)
	}
}
