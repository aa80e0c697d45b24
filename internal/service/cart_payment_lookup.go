package service

import (
	"context"
	"strings"

	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/google/uuid"
)

// findExisting 按付款方与幂等键查找已有的购物车支付与支付意图
func findExisting(ctx context.Context, repo repository.CartPaymentRepository, payerID, idempotencyKey string) (*models.CartPayment, *models.PaymentIntent, error) {
	intent, err := repo.GetPaymentIntentForIdempotencyKey(ctx, payerID, idempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	if intent == nil {
		return nil, nil, nil
	}
	cartPayment, err := repo.GetCartPaymentByID(ctx, intent.CartPaymentID)
	if err != nil {
		return nil, nil, err
	}
	return cartPayment, intent, nil
}

func getCartPayment(ctx context.Context, repo repository.CartPaymentRepository, id uuid.UUID) (*models.CartPayment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return repo.GetCartPaymentByID(ctx, id)
}

// getMostRecentPgpPaymentIntent 按创建顺序取最后一条渠道支付意图
func getMostRecentPgpPaymentIntent(ctx context.Context, repo repository.CartPaymentRepository, intent *models.PaymentIntent) (*models.PgpPaymentIntent, error) {
	pgpIntents, err := repo.FindPgpPaymentIntents(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if len(pgpIntents) == 0 {
		return nil, nil
	}
	latest := pgpIntents[0]
	for _, item := range pgpIntents[1:] {
		if !item.CreatedAt.Before(latest.CreatedAt) {
			latest = item
		}
	}
	return &latest, nil
}

// getMostRecentIntent created_at 相同时取切片中靠后的一条
func getMostRecentIntent(intents []models.PaymentIntent) *models.PaymentIntent {
	if len(intents) == 0 {
		return nil
	}
	latest := 0
	for i := 1; i < len(intents); i++ {
		if !intents[i].CreatedAt.Before(intents[latest].CreatedAt) {
			latest = i
		}
	}
	intent := intents[latest]
	return &intent
}

func getCartPaymentSubmissionPgpIntent(pgpIntents []models.PgpPaymentIntent) *models.PgpPaymentIntent {
	if len(pgpIntents) == 0 {
		return nil
	}
	pgpIntent := pgpIntents[0]
	return &pgpIntent
}

func filterPaymentIntentsByState(intents []models.PaymentIntent, status IntentStatus) []models.PaymentIntent {
	return filterPaymentIntentsByFunction(intents, func(intent *models.PaymentIntent) bool {
		return IntentStatus(intent.Status) == status
	})
}

func filterPaymentIntentsByIdempotencyKey(intents []models.PaymentIntent, idempotencyKey string) *models.PaymentIntent {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	for i := range intents {
		if intents[i].IdempotencyKey == idempotencyKey {
			intent := intents[i]
			return &intent
		}
	}
	return nil
}

func filterPaymentIntentsByFunction(intents []models.PaymentIntent, keep func(intent *models.PaymentIntent) bool) []models.PaymentIntent {
	out := make([]models.PaymentIntent, 0, len(intents))
	for i := range intents {
		if keep(&intents[i]) {
			out = append(out, intents[i])
		}
	}
	return out
}
