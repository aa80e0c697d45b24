package service

import (
	"context"
	"errors"
	"strings"

	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/google/uuid"
)

// UpdateAmountInput 调整购物车支付金额请求（Amount 为调整后的总额）
type UpdateAmountInput struct {
	CartPaymentID             uuid.UUID
	AccessorPayerID           string
	IdempotencyKey            string
	Amount                    int64
	ClientDescription         *string
	PayerStatementDescription *string
	Metadata                  models.JSON
}

// UpdatePaymentAmount 调整购物车支付总额：上调追加新的支付意图，下调在最近一次意图上扣减
func (s *CartPaymentService) UpdatePaymentAmount(ctx context.Context, input UpdateAmountInput) (*CartPaymentResponse, error) {
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.IdempotencyKey == "" {
		return nil, invalidRequestError("idempotency_key is required")
	}
	if input.Amount <= 0 {
		return nil, invalidAmountError("amount must be greater than zero")
	}

	var response *CartPaymentResponse
	err := s.withCartPaymentLock(ctx, input.CartPaymentID, func() error {
		cartPayment, err := s.mustGetCartPayment(ctx, input.CartPaymentID)
		if err != nil {
			return err
		}
		if !isAccessible(cartPayment, input.AccessorPayerID) {
			return cartPaymentAccessDeniedError()
		}
		log := cartPaymentLogger(
			"cart_payment_id", cartPayment.ID.String(),
			"idempotency_key", input.IdempotencyKey,
			"amount_from", cartPayment.Amount,
			"amount_to", input.Amount,
		)

		replay, err := s.replayAdjustment(ctx, cartPayment, input.IdempotencyKey)
		if err != nil || replay != nil {
			if replay != nil {
				log.Infow("cart_payment_adjust_idempotent_replay")
			}
			response = replay
			return err
		}

		intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, cartPayment.ID)
		if err != nil {
			return err
		}
		var intent *models.PaymentIntent
		switch {
		case isAmountAdjustedHigher(cartPayment, input.Amount):
			intent, err = s.addAmountToCartPayment(ctx, cartPayment, intents, input.Amount-cartPayment.Amount, input.IdempotencyKey)
		case isAmountAdjustedLower(cartPayment, input.Amount):
			intent, err = s.deductAmountFromCartPayment(ctx, cartPayment, intents, cartPayment.Amount-input.Amount, input.IdempotencyKey)
		default:
			intent = getMostRecentIntent(intents)
		}
		if err != nil {
			log.Warnw("cart_payment_adjust_failed", "error", err, "code", PayinErrorCodeOf(err))
			return err
		}

		update := repository.CartPaymentDetailsUpdate{
			ClientDescription:         input.ClientDescription,
			PayerStatementDescription: input.PayerStatementDescription,
			Metadata:                  input.Metadata,
		}
		var current *models.CartPayment
		if update.ClientDescription != nil || update.PayerStatementDescription != nil || update.Metadata != nil {
			current, err = updateCartPaymentAttributes(ctx, s.repo, cartPayment.ID, update)
		} else {
			current, err = s.mustGetCartPayment(ctx, cartPayment.ID)
		}
		if err != nil {
			return err
		}
		var pgpIntent *models.PgpPaymentIntent
		if intent != nil {
			if pgpIntent, err = getMostRecentPgpPaymentIntent(ctx, s.repo, intent); err != nil {
				return err
			}
		}
		log.Infow("cart_payment_adjusted", "amount", current.Amount)
		response = newCartPaymentResponse(current, intent, pgpIntent)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// replayAdjustment 幂等键已用于上调或下调时直接返回当前结果
func (s *CartPaymentService) replayAdjustment(ctx context.Context, cartPayment *models.CartPayment, idempotencyKey string) (*CartPaymentResponse, error) {
	intent, err := s.repo.GetPaymentIntentForIdempotencyKey(ctx, cartPayment.PayerID, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if intent != nil {
		if intent.CartPaymentID != cartPayment.ID {
			return nil, idempotencyConflictError(idempotencyKey)
		}
		if !isPaymentIntentSubmitted(intent) {
			return s.resubmitLocked(ctx, cartPayment.ID, intent.ID, "", "")
		}
		pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, intent)
		if err != nil {
			return nil, err
		}
		return newCartPaymentResponse(cartPayment, intent, pgpIntent), nil
	}

	history, err := s.repo.GetAdjustmentHistoryForIdempotencyKey(ctx, cartPayment.PayerID, idempotencyKey)
	if err != nil || history == nil {
		return nil, err
	}
	adjusted, err := s.repo.GetPaymentIntentByID(ctx, history.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if adjusted == nil || adjusted.CartPaymentID != cartPayment.ID {
		return nil, idempotencyConflictError(idempotencyKey)
	}
	pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, adjusted)
	if err != nil {
		return nil, err
	}
	return newCartPaymentResponse(cartPayment, adjusted, pgpIntent), nil
}

// addAmountToCartPayment 为上调的差额创建并提交新的支付意图，调用方需持有购物车支付锁
func (s *CartPaymentService) addAmountToCartPayment(ctx context.Context, cartPayment *models.CartPayment, intents []models.PaymentIntent, delta int64, idempotencyKey string) (*models.PaymentIntent, error) {
	if delta <= 0 {
		return nil, invalidAmountError("amount increase must be positive")
	}
	if existing := filterPaymentIntentsByIdempotencyKey(intents, idempotencyKey); existing != nil {
		return s.resubmitAddAmountToCartPayment(ctx, cartPayment, existing)
	}
	return s.submitAmountIncreaseToCartPayment(ctx, cartPayment, intents, delta, idempotencyKey)
}

func (s *CartPaymentService) resubmitAddAmountToCartPayment(ctx context.Context, cartPayment *models.CartPayment, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	if isPaymentIntentSubmitted(intent) {
		return intent, nil
	}
	response, err := s.resubmitLocked(ctx, cartPayment.ID, intent.ID, "", "")
	if err != nil {
		return nil, err
	}
	return response.PaymentIntent, nil
}

func (s *CartPaymentService) submitAmountIncreaseToCartPayment(ctx context.Context, cartPayment *models.CartPayment, intents []models.PaymentIntent, delta int64, idempotencyKey string) (*models.PaymentIntent, error) {
	tpl := intentPairTemplate{
		IdempotencyKey: idempotencyKey,
		Amount:         delta,
		Country:        s.opts.DefaultCountry,
	}
	if previous := getMostRecentIntent(intents); previous != nil {
		tpl.Country = previous.Country
		previousPgp, err := getMostRecentPgpPaymentIntent(ctx, s.repo, previous)
		if err != nil {
			return nil, err
		}
		if previousPgp != nil {
			tpl.PaymentMethodResourceID = previousPgp.PaymentMethodResourceID
			tpl.CustomerResourceID = previousPgp.CustomerResourceID
		}
	}
	if tpl.PaymentMethodResourceID == "" {
		tpl.PaymentMethodResourceID = cartPayment.PaymentMethodID
	}

	intent, pgpIntent := s.buildIntentPair(cartPayment, tpl)
	err := s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
		return createNewIntentPair(ctx, repo, intent, pgpIntent)
	})
	if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
		return nil, idempotencyConflictError(idempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	submitted, _, err := s.submitPaymentIntent(ctx, cartPayment, intent, pgpIntent, tpl.PaymentMethodResourceID, tpl.CustomerResourceID)
	if err != nil {
		return nil, err
	}
	if isPaymentIntentSubmitted(submitted) {
		if err := s.repo.InsertPaymentIntentAdjustmentHistory(ctx, &models.PaymentIntentAdjustmentHistory{
			PayerID:         submitted.PayerID,
			PaymentIntentID: submitted.ID,
			Amount:          submitted.Amount,
			AmountOriginal:  0,
			AmountDelta:     submitted.Amount,
			Currency:        submitted.Currency,
			IdempotencyKey:  idempotencyKey,
		}); err != nil {
			return nil, err
		}
	}
	return submitted, nil
}

// deductAmountFromCartPayment 在最近一次支付意图上扣减：待捕获时原地下调，已捕获时走渠道退款
// 调用方需持有购物车支付锁
func (s *CartPaymentService) deductAmountFromCartPayment(ctx context.Context, cartPayment *models.CartPayment, intents []models.PaymentIntent, delta int64, idempotencyKey string) (*models.PaymentIntent, error) {
	intent := getMostRecentIntent(intents)
	if intent == nil {
		return nil, paymentIntentRefundError(CodePaymentIntentAdjustRefundError, "cart payment has no payment intent to deduct from")
	}
	return s.submitAmountDecreaseToCartPayment(ctx, cartPayment, intent, delta, idempotencyKey)
}

func (s *CartPaymentService) submitAmountDecreaseToCartPayment(ctx context.Context, cartPayment *models.CartPayment, intent *models.PaymentIntent, delta int64, idempotencyKey string) (*models.PaymentIntent, error) {
	switch {
	case canPaymentIntentBeCancelled(intent):
		if delta <= 0 || delta >= intent.Amount {
			return nil, invalidAmountError("deduction must leave a positive authorized amount")
		}
		var updated *models.PaymentIntent
		err := s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
			var err error
			updated, err = reducePaymentIntentAmount(ctx, repo, intent, intent.Amount-delta, idempotencyKey)
			if err != nil {
				return err
			}
			if err := updateChargePairAfterAmountReduction(ctx, repo, intent.ID, updated.Amount); err != nil {
				return err
			}
			_, err = syncCartPaymentTotal(ctx, repo, cartPayment.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		cartPaymentLogger("cart_payment_id", cartPayment.ID.String(), "payment_intent_id", intent.ID.String()).
			Infow("payment_intent_amount_reduced", "amount_from", intent.Amount, "amount_to", updated.Amount)
		return updated, nil
	case canPaymentIntentBeRefunded(intent):
		if delta <= 0 || delta > intent.Amount {
			return nil, invalidAmountError("deduction exceeds captured amount")
		}
		return s.refundIntent(ctx, cartPayment, intent, delta, idempotencyKey, CodePaymentIntentAdjustRefundError)
	default:
		return nil, paymentIntentRefundError(CodePaymentIntentAdjustRefundError, "payment intent status "+intent.Status+" does not allow deduction")
	}
}
