package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/cache"
	"github.com/dujiao-next/payin/internal/config"
	"github.com/dujiao-next/payin/internal/constants"
	"github.com/dujiao-next/payin/internal/lock"
	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/models"
	"github.com/dujiao-next/payin/internal/queue"
	"github.com/dujiao-next/payin/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLockTTL        = 30 * time.Second
	defaultLockWait       = 10 * time.Second
	defaultReconcileDelay = 30 * time.Second
	defaultStaleAfter     = 10 * time.Minute
	defaultSweepLimit     = 200
)

// TaskScheduler 异步任务投递
type TaskScheduler interface {
	EnqueueReconcilePaymentIntent(payload queue.ReconcilePaymentIntentPayload, delay time.Duration) error
	EnqueueCapturePaymentIntent(payload queue.CapturePaymentIntentPayload, processAt time.Time) error
}

// CartPaymentSnapshotCache 购物车支付读取快照
type CartPaymentSnapshotCache interface {
	Get(ctx context.Context, id uuid.UUID) (*cache.CartPaymentSnapshot, bool)
	Set(ctx context.Context, snapshot *cache.CartPaymentSnapshot)
	Invalidate(ctx context.Context, id uuid.UUID)
}

// CartPaymentServiceOptions 编排参数
type CartPaymentServiceOptions struct {
	LockTTL              time.Duration
	LockWait             time.Duration
	ReconcileDelay       time.Duration
	ReconcileStaleAfter  time.Duration
	SweepLimit           int
	CaptureDelay         time.Duration
	DefaultCountry       string
	DefaultCurrency      string
	StatementDescriptor  string
	ApplicationFeeAmount int64
	Now                  func() time.Time
}

// CartPaymentServiceOptionsFromConfig 从配置构建编排参数
func CartPaymentServiceOptionsFromConfig(cfg *config.CartPaymentConfig) CartPaymentServiceOptions {
	if cfg == nil {
		return CartPaymentServiceOptions{}
	}
	return CartPaymentServiceOptions{
		LockTTL:              cfg.LockTTL,
		LockWait:             cfg.LockWait,
		ReconcileDelay:       cfg.ReconcileDelay,
		ReconcileStaleAfter:  cfg.ReconcileStaleAfter,
		SweepLimit:           cfg.ReconcileSweepLimit,
		CaptureDelay:         cfg.CaptureDelay,
		DefaultCountry:       cfg.DefaultCountry,
		DefaultCurrency:      cfg.DefaultCurrency,
		StatementDescriptor:  cfg.StatementDescriptor,
		ApplicationFeeAmount: cfg.ApplicationFeeAmount,
	}
}

func (o *CartPaymentServiceOptions) normalize() {
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	if o.LockWait <= 0 {
		o.LockWait = defaultLockWait
	}
	if o.ReconcileDelay <= 0 {
		o.ReconcileDelay = defaultReconcileDelay
	}
	if o.ReconcileStaleAfter <= 0 {
		o.ReconcileStaleAfter = defaultStaleAfter
	}
	if o.SweepLimit <= 0 {
		o.SweepLimit = defaultSweepLimit
	}
	if o.CaptureDelay < 0 {
		o.CaptureDelay = 0
	}
	o.DefaultCountry = strings.ToUpper(strings.TrimSpace(o.DefaultCountry))
	if o.DefaultCountry == "" {
		o.DefaultCountry = constants.DefaultCountry
	}
	o.DefaultCurrency = strings.ToUpper(strings.TrimSpace(o.DefaultCurrency))
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = constants.DefaultCurrency
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// CartPaymentService 购物车支付编排服务
type CartPaymentService struct {
	repo      repository.CartPaymentRepository
	provider  PaymentProvider
	locks     lock.Manager
	scheduler TaskScheduler
	snapshots CartPaymentSnapshotCache
	opts      CartPaymentServiceOptions
}

// NewCartPaymentService 创建购物车支付编排服务
func NewCartPaymentService(repo repository.CartPaymentRepository, provider PaymentProvider, locks lock.Manager, scheduler TaskScheduler, snapshots CartPaymentSnapshotCache, opts CartPaymentServiceOptions) *CartPaymentService {
	opts.normalize()
	if locks == nil {
		locks = lock.NewLocalManager()
	}
	return &CartPaymentService{
		repo:      repo,
		provider:  provider,
		locks:     locks,
		scheduler: scheduler,
		snapshots: snapshots,
		opts:      opts,
	}
}

func cartPaymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// SubmitPaymentInput 创建购物车支付请求
type SubmitPaymentInput struct {
	PayerID                   string
	Amount                    int64
	Currency                  string
	Country                   string
	CaptureMethod             string
	PaymentMethodResourceID   string
	CustomerResourceID        string
	IdempotencyKey            string
	ClientDescription         string
	PayerStatementDescription string
	Metadata                  models.JSON
	LegacyPayment             models.JSON
	SplitPayment              models.JSON
}

func (s *CartPaymentService) normalizeSubmitInput(input *SubmitPaymentInput) error {
	input.PayerID = strings.TrimSpace(input.PayerID)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	input.PaymentMethodResourceID = strings.TrimSpace(input.PaymentMethodResourceID)
	input.CustomerResourceID = strings.TrimSpace(input.CustomerResourceID)
	if input.PayerID == "" {
		return invalidRequestError("payer_id is required")
	}
	if input.IdempotencyKey == "" {
		return invalidRequestError("idempotency_key is required")
	}
	if input.PaymentMethodResourceID == "" {
		return invalidRequestError("payment_method_id is required")
	}
	if input.Amount <= 0 {
		return invalidAmountError("amount must be greater than zero")
	}
	input.CaptureMethod = strings.ToLower(strings.TrimSpace(input.CaptureMethod))
	switch input.CaptureMethod {
	case "":
		input.CaptureMethod = constants.CaptureMethodAuto
	case constants.CaptureMethodAuto, constants.CaptureMethodManual:
	default:
		return invalidRequestError("capture_method must be auto or manual")
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.Currency == "" {
		input.Currency = s.opts.DefaultCurrency
	}
	input.Country = strings.ToUpper(strings.TrimSpace(input.Country))
	if input.Country == "" {
		input.Country = s.opts.DefaultCountry
	}
	input.PayerStatementDescription = strings.TrimSpace(input.PayerStatementDescription)
	if input.PayerStatementDescription == "" {
		input.PayerStatementDescription = s.opts.StatementDescriptor
	}
	return nil
}

// SubmitNewPayment 创建购物车支付并提交到渠道，相同幂等键重复调用返回首次结果
func (s *CartPaymentService) SubmitNewPayment(ctx context.Context, input SubmitPaymentInput) (*CartPaymentResponse, error) {
	if err := s.normalizeSubmitInput(&input); err != nil {
		return nil, err
	}
	log := cartPaymentLogger("payer_id", input.PayerID, "idempotency_key", input.IdempotencyKey)

	keyLease, err := s.acquireLock(ctx, lock.Key(constants.LockPrefixIdempotencyKey, input.PayerID, input.IdempotencyKey))
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, keyLease)

	cartPayment, intent, err := findExisting(ctx, s.repo, input.PayerID, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if intent != nil {
		log.Infow("cart_payment_idempotent_replay", "cart_payment_id", intent.CartPaymentID.String(), "payment_intent_id", intent.ID.String(), "status", intent.Status)
		return s.continueExisting(ctx, cartPayment, intent, input.PaymentMethodResourceID, input.CustomerResourceID)
	}

	cartPayment = &models.CartPayment{
		PayerID:                   input.PayerID,
		Amount:                    input.Amount,
		Currency:                  input.Currency,
		CaptureMethod:             input.CaptureMethod,
		PaymentMethodID:           input.PaymentMethodResourceID,
		ClientDescription:         strings.TrimSpace(input.ClientDescription),
		PayerStatementDescription: input.PayerStatementDescription,
		Metadata:                  input.Metadata.Clone(),
		LegacyPayment:             input.LegacyPayment.Clone(),
		SplitPayment:              input.SplitPayment.Clone(),
	}
	intent, pgpIntent := s.buildIntentPair(cartPayment, intentPairTemplate{
		IdempotencyKey:          input.IdempotencyKey,
		Amount:                  input.Amount,
		Country:                 input.Country,
		PaymentMethodResourceID: input.PaymentMethodResourceID,
		CustomerResourceID:      input.CustomerResourceID,
	})
	err = s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
		if err := repo.InsertCartPayment(ctx, cartPayment); err != nil {
			return err
		}
		return createNewIntentPair(ctx, repo, intent, pgpIntent)
	})
	if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
		existingCartPayment, existingIntent, lookupErr := findExisting(ctx, s.repo, input.PayerID, input.IdempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existingIntent == nil {
			return nil, idempotencyConflictError(input.IdempotencyKey)
		}
		log.Infow("cart_payment_create_race_lost", "cart_payment_id", existingIntent.CartPaymentID.String(), "payment_intent_id", existingIntent.ID.String())
		return s.continueExisting(ctx, existingCartPayment, existingIntent, input.PaymentMethodResourceID, input.CustomerResourceID)
	}
	if err != nil {
		return nil, err
	}
	log.Infow("cart_payment_created",
		"cart_payment_id", cartPayment.ID.String(),
		"payment_intent_id", intent.ID.String(),
		"amount", cartPayment.Amount,
		"currency", cartPayment.Currency,
		"capture_method", cartPayment.CaptureMethod,
	)

	var response *CartPaymentResponse
	err = s.withCartPaymentLock(ctx, cartPayment.ID, func() error {
		submitted, submittedPgp, err := s.submitPaymentIntent(ctx, cartPayment, intent, pgpIntent, input.PaymentMethodResourceID, input.CustomerResourceID)
		if err != nil {
			return err
		}
		current, err := s.mustGetCartPayment(ctx, cartPayment.ID)
		if err != nil {
			return err
		}
		response = newCartPaymentResponse(current, submitted, submittedPgp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// continueExisting 已提交直接返回，未提交则补提交
func (s *CartPaymentService) continueExisting(ctx context.Context, cartPayment *models.CartPayment, intent *models.PaymentIntent, paymentMethodResourceID, customerResourceID string) (*CartPaymentResponse, error) {
	if cartPayment == nil {
		return nil, cartPaymentNotFoundError()
	}
	if isPaymentIntentSubmitted(intent) {
		pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, intent)
		if err != nil {
			return nil, err
		}
		return newCartPaymentResponse(cartPayment, intent, pgpIntent), nil
	}
	return s.ResubmitExistingPayment(ctx, cartPayment, intent, paymentMethodResourceID, customerResourceID)
}

// ResubmitExistingPayment 补提交未提交的支付意图；已提交时原样返回且不调用渠道
func (s *CartPaymentService) ResubmitExistingPayment(ctx context.Context, cartPayment *models.CartPayment, intent *models.PaymentIntent, paymentMethodResourceID, customerResourceID string) (*CartPaymentResponse, error) {
	if cartPayment == nil || intent == nil {
		return nil, cartPaymentNotFoundError()
	}
	var response *CartPaymentResponse
	err := s.withCartPaymentLock(ctx, cartPayment.ID, func() error {
		var err error
		response, err = s.resubmitLocked(ctx, cartPayment.ID, intent.ID, paymentMethodResourceID, customerResourceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (s *CartPaymentService) resubmitLocked(ctx context.Context, cartPaymentID, intentID uuid.UUID, paymentMethodResourceID, customerResourceID string) (*CartPaymentResponse, error) {
	cartPayment, err := s.mustGetCartPayment(ctx, cartPaymentID)
	if err != nil {
		return nil, err
	}
	intent, err := s.repo.GetPaymentIntentByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, cartPaymentNotFoundError()
	}
	pgpIntents, err := s.repo.FindPgpPaymentIntents(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	if isPaymentIntentSubmitted(intent) {
		cartPaymentLogger("cart_payment_id", cartPayment.ID.String(), "payment_intent_id", intent.ID.String()).
			Infow("cart_payment_resubmit_skipped", "status", intent.Status)
		var latest *models.PgpPaymentIntent
		if len(pgpIntents) > 0 {
			latest = &pgpIntents[len(pgpIntents)-1]
		}
		return newCartPaymentResponse(cartPayment, intent, latest), nil
	}
	pgpIntent := getCartPaymentSubmissionPgpIntent(pgpIntents)
	if pgpIntent == nil {
		return nil, cartPaymentNotFoundError()
	}
	submitted, submittedPgp, err := s.submitPaymentIntent(ctx, cartPayment, intent, pgpIntent, paymentMethodResourceID, customerResourceID)
	if err != nil {
		return nil, err
	}
	current, err := s.mustGetCartPayment(ctx, cartPayment.ID)
	if err != nil {
		return nil, err
	}
	return newCartPaymentResponse(current, submitted, submittedPgp), nil
}

type intentPairTemplate struct {
	IdempotencyKey          string
	Amount                  int64
	Country                 string
	PaymentMethodResourceID string
	CustomerResourceID      string
}

func (s *CartPaymentService) buildIntentPair(cartPayment *models.CartPayment, tpl intentPairTemplate) (*models.PaymentIntent, *models.PgpPaymentIntent) {
	intentID := models.NewID()
	intent := &models.PaymentIntent{
		ID:                   intentID,
		CartPaymentID:        cartPayment.ID,
		PayerID:              cartPayment.PayerID,
		IdempotencyKey:       tpl.IdempotencyKey,
		Amount:               tpl.Amount,
		ApplicationFeeAmount: s.opts.ApplicationFeeAmount,
		Currency:             cartPayment.Currency,
		Country:              tpl.Country,
		CaptureMethod:        cartPayment.CaptureMethod,
		ConfirmationMethod:   providerConfirmationMethod(cartPayment.CaptureMethod),
		Status:               string(IntentStatusInit),
		StatementDescriptor:  cartPayment.PayerStatementDescription,
	}
	pgpIntent := &models.PgpPaymentIntent{
		PaymentIntentID:         intentID,
		IdempotencyKey:          tpl.IdempotencyKey,
		Provider:                s.providerName(),
		PaymentMethodResourceID: tpl.PaymentMethodResourceID,
		CustomerResourceID:      tpl.CustomerResourceID,
		Currency:                cartPayment.Currency,
		Amount:                  tpl.Amount,
		ApplicationFeeAmount:    s.opts.ApplicationFeeAmount,
		CaptureMethod:           transformMethodForProvider(cartPayment.CaptureMethod),
		ConfirmationMethod:      providerConfirmationMethod(cartPayment.CaptureMethod),
		Status:                  string(IntentStatusInit),
		StatementDescriptor:     cartPayment.PayerStatementDescription,
	}
	return intent, pgpIntent
}

func (s *CartPaymentService) providerName() string {
	if s.provider == nil {
		return constants.PaymentProviderStripe
	}
	return s.provider.Name()
}

// createNewIntentPair 在同一事务内写入支付意图与渠道支付意图
func createNewIntentPair(ctx context.Context, repo repository.CartPaymentRepository, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent) error {
	if err := repo.InsertPaymentIntent(ctx, intent); err != nil {
		return err
	}
	pgpIntent.PaymentIntentID = intent.ID
	return repo.InsertPgpPaymentIntent(ctx, pgpIntent)
}

// submitPaymentIntent 调用渠道创建支付意图并回写状态，调用方需持有购物车支付锁
func (s *CartPaymentService) submitPaymentIntent(ctx context.Context, cartPayment *models.CartPayment, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent, paymentMethodResourceID, customerResourceID string) (*models.PaymentIntent, *models.PgpPaymentIntent, error) {
	log := cartPaymentLogger(
		"cart_payment_id", cartPayment.ID.String(),
		"payment_intent_id", intent.ID.String(),
		"idempotency_key", intent.IdempotencyKey,
	)
	paymentMethod := strings.TrimSpace(paymentMethodResourceID)
	if paymentMethod == "" {
		paymentMethod = pgpIntent.PaymentMethodResourceID
	}
	customer := strings.TrimSpace(customerResourceID)
	if customer == "" {
		customer = pgpIntent.CustomerResourceID
	}

	providerIntent, err := s.provider.CreatePaymentIntent(ctx, CreateProviderIntentInput{
		Amount:               intent.Amount,
		Currency:             intent.Currency,
		PaymentMethodID:      paymentMethod,
		CustomerID:           customer,
		CaptureMethod:        providerCaptureMethod(intent.CaptureMethod),
		ConfirmationMethod:   providerConfirmationMethod(intent.CaptureMethod),
		SetupFutureUsage:     providerFutureUsage(intent.CaptureMethod),
		StatementDescriptor:  intent.StatementDescriptor,
		Description:          cartPayment.ClientDescription,
		ApplicationFeeAmount: intent.ApplicationFeeAmount,
		IdempotencyKey:       intent.IdempotencyKey,
		Metadata: map[string]string{
			"idempotency_key":   intent.IdempotencyKey,
			"cart_payment_id":   cartPayment.ID.String(),
			"payment_intent_id": intent.ID.String(),
			"payer_id":          cartPayment.PayerID,
		},
	})
	if err != nil {
		if errors.Is(err, ErrProviderOutcomeUnknown) {
			log.Warnw("payment_intent_create_outcome_unknown", "error", err)
			s.scheduleReconcile(intent.ID, "create_outcome_unknown")
			return nil, nil, providerTimeoutError("create", err)
		}
		log.Warnw("payment_intent_create_rejected", "error", err, "code", CodePaymentIntentCreateStripeError)
		return nil, nil, cartPaymentCreateError(err)
	}
	return s.applyProviderIntent(ctx, intent, pgpIntent, providerIntent, "submit")
}

// applyProviderIntent 将渠道返回的状态回写本地记录并重算购物车总额
// 渠道返回体为空时保持原状态并安排对账
func (s *CartPaymentService) applyProviderIntent(ctx context.Context, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent, providerIntent *ProviderIntent, source string) (*models.PaymentIntent, *models.PgpPaymentIntent, error) {
	log := cartPaymentLogger(
		"cart_payment_id", intent.CartPaymentID.String(),
		"payment_intent_id", intent.ID.String(),
		"source", source,
	)
	if providerIntent == nil || strings.TrimSpace(providerIntent.Status) == "" {
		log.Warnw("provider_intent_status_missing")
		s.scheduleReconcile(intent.ID, source+"_status_missing")
		return intent, pgpIntent, nil
	}
	status, err := IntentStatusFromProviderStatus(providerIntent.Status)
	if err != nil {
		log.Errorw("provider_intent_status_unknown", "provider_status", providerIntent.Status)
		return nil, nil, unknownProviderStatusError(providerIntent.Status)
	}

	now := s.opts.Now()
	update := repository.PaymentIntentUpdate{
		Status:           string(status),
		AmountCapturable: &providerIntent.AmountCapturable,
		AmountReceived:   &providerIntent.AmountReceived,
	}
	pgpUpdate := repository.PgpPaymentIntentUpdate{
		Status:                  string(status),
		ResourceID:              providerIntent.ResourceID,
		ChargeResourceID:        providerIntent.ChargeResourceID,
		PaymentMethodResourceID: providerIntent.PaymentMethodResourceID,
		AmountCapturable:        &providerIntent.AmountCapturable,
		AmountReceived:          &providerIntent.AmountReceived,
	}
	var captureAfter *time.Time
	switch status {
	case IntentStatusSucceeded:
		update.CapturedAt = &now
		pgpUpdate.CapturedAt = &now
	case IntentStatusCancelled:
		update.CancelledAt = &now
		pgpUpdate.CancelledAt = &now
	case IntentStatusRequiresCapture:
		if s.opts.CaptureDelay > 0 && intent.CaptureMethod == constants.CaptureMethodManual && intent.CaptureAfter == nil {
			at := now.Add(s.opts.CaptureDelay)
			captureAfter = &at
			update.CaptureAfter = &at
		}
	}

	var updatedIntent *models.PaymentIntent
	var updatedPgp *models.PgpPaymentIntent
	err = s.repo.Transaction(ctx, func(repo repository.CartPaymentRepository) error {
		var err error
		updatedIntent, err = repo.UpdatePaymentIntentStatus(ctx, intent.ID, []string{intent.Status}, update)
		if err != nil {
			return err
		}
		updatedPgp, err = repo.UpdatePgpPaymentIntent(ctx, pgpIntent.ID, pgpUpdate)
		if err != nil {
			return err
		}
		if err := syncChargePairWithIntent(ctx, repo, updatedIntent, updatedPgp, providerIntent, now); err != nil {
			return err
		}
		_, err = syncCartPaymentTotal(ctx, repo, intent.CartPaymentID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	log.Infow("payment_intent_status_applied", "from", intent.Status, "to", updatedIntent.Status, "provider_resource_id", providerIntent.ResourceID)
	if captureAfter != nil {
		s.scheduleCapture(updatedIntent.ID, *captureAfter)
	}
	return updatedIntent, updatedPgp, nil
}

// syncCartPaymentTotal 按当前支付意图重算购物车支付总额
func syncCartPaymentTotal(ctx context.Context, repo repository.CartPaymentRepository, cartPaymentID uuid.UUID) (*models.CartPayment, error) {
	cartPayment, err := repo.GetCartPaymentByID(ctx, cartPaymentID)
	if err != nil {
		return nil, err
	}
	if cartPayment == nil {
		return nil, cartPaymentNotFoundError()
	}
	intents, err := repo.GetPaymentIntentsForCartPayment(ctx, cartPaymentID)
	if err != nil {
		return nil, err
	}
	total := expectedCartTotal(intents)
	if total == cartPayment.Amount {
		return cartPayment, nil
	}
	return updateCartPaymentAttributes(ctx, repo, cartPaymentID, repository.CartPaymentDetailsUpdate{Amount: &total})
}

func updateCartPaymentAttributes(ctx context.Context, repo repository.CartPaymentRepository, cartPaymentID uuid.UUID, update repository.CartPaymentDetailsUpdate) (*models.CartPayment, error) {
	updated, err := repo.UpdateCartPaymentDetails(ctx, cartPaymentID, update)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, cartPaymentNotFoundError()
	}
	return updated, nil
}

// GetCartPayment 获取购物车支付及最近一次支付意图
// accessorPayerID 非空时只允许读取本付款方的数据
func (s *CartPaymentService) GetCartPayment(ctx context.Context, id uuid.UUID, accessorPayerID string) (*CartPaymentResponse, error) {
	if s.snapshots != nil {
		if snapshot, ok := s.snapshots.Get(ctx, id); ok {
			if !isAccessible(&snapshot.CartPayment, accessorPayerID) {
				return nil, cartPaymentAccessDeniedError()
			}
			cartPayment := snapshot.CartPayment
			return &CartPaymentResponse{CartPayment: &cartPayment, PaymentIntent: snapshot.PaymentIntent}, nil
		}
	}

	cartPayment, err := getCartPayment(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if cartPayment == nil {
		return nil, cartPaymentNotFoundError()
	}
	if !isAccessible(cartPayment, accessorPayerID) {
		return nil, cartPaymentAccessDeniedError()
	}
	response, err := s.buildResponse(ctx, cartPayment)
	if err != nil {
		return nil, err
	}
	if s.snapshots != nil {
		s.snapshots.Set(ctx, &cache.CartPaymentSnapshot{CartPayment: *response.CartPayment, PaymentIntent: response.PaymentIntent})
	}
	return response, nil
}

func (s *CartPaymentService) buildResponse(ctx context.Context, cartPayment *models.CartPayment) (*CartPaymentResponse, error) {
	intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, cartPayment.ID)
	if err != nil {
		return nil, err
	}
	intent := getMostRecentIntent(intents)
	if intent == nil {
		return newCartPaymentResponse(cartPayment, nil, nil), nil
	}
	pgpIntent, err := getMostRecentPgpPaymentIntent(ctx, s.repo, intent)
	if err != nil {
		return nil, err
	}
	return newCartPaymentResponse(cartPayment, intent, pgpIntent), nil
}

// isAccessible 绑定付款方的凭证不能访问其他付款方的购物车支付
func isAccessible(cartPayment *models.CartPayment, accessorPayerID string) bool {
	if cartPayment == nil {
		return false
	}
	accessorPayerID = strings.TrimSpace(accessorPayerID)
	return accessorPayerID == "" || accessorPayerID == cartPayment.PayerID
}

// ListCartPayments 后台分页查询购物车支付
func (s *CartPaymentService) ListCartPayments(ctx context.Context, filter repository.CartPaymentListFilter) ([]models.CartPayment, int64, error) {
	return s.repo.ListCartPayments(ctx, filter)
}

// ListAdjustmentHistory 获取购物车支付下全部金额调整流水（按时间排序）
func (s *CartPaymentService) ListAdjustmentHistory(ctx context.Context, cartPaymentID uuid.UUID) ([]models.PaymentIntentAdjustmentHistory, error) {
	cartPayment, err := getCartPayment(ctx, s.repo, cartPaymentID)
	if err != nil {
		return nil, err
	}
	if cartPayment == nil {
		return nil, cartPaymentNotFoundError()
	}
	intents, err := s.repo.GetPaymentIntentsForCartPayment(ctx, cartPaymentID)
	if err != nil {
		return nil, err
	}
	histories := make([]models.PaymentIntentAdjustmentHistory, 0)
	for _, intent := range intents {
		rows, err := s.repo.ListAdjustmentHistory(ctx, intent.ID)
		if err != nil {
			return nil, err
		}
		histories = append(histories, rows...)
	}
	sort.SliceStable(histories, func(i, j int) bool {
		return histories[i].CreatedAt.Before(histories[j].CreatedAt)
	})
	return histories, nil
}

func (s *CartPaymentService) mustGetCartPayment(ctx context.Context, id uuid.UUID) (*models.CartPayment, error) {
	cartPayment, err := getCartPayment(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if cartPayment == nil {
		return nil, cartPaymentNotFoundError()
	}
	return cartPayment, nil
}

func (s *CartPaymentService) acquireLock(ctx context.Context, key string) (lock.Lease, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	lease, err := s.locks.Acquire(waitCtx, key, s.opts.LockTTL)
	if err != nil {
		cartPaymentLogger("lock_key", key).Warnw("cart_payment_lock_unavailable", "error", err)
		return nil, cartPaymentBusyError(err)
	}
	return lease, nil
}

func (s *CartPaymentService) releaseLock(ctx context.Context, lease lock.Lease) {
	if lease == nil {
		return
	}
	if err := lease.Release(ctx); err != nil {
		cartPaymentLogger("lock_key", lease.Key()).Warnw("cart_payment_lock_release_failed", "error", err)
	}
}

// withCartPaymentLock 串行化同一购物车支付的变更，结束后清理读取快照
func (s *CartPaymentService) withCartPaymentLock(ctx context.Context, cartPaymentID uuid.UUID, fn func() error) error {
	lease, err := s.acquireLock(ctx, lock.Key(constants.LockPrefixCartPayment, cartPaymentID.String()))
	if err != nil {
		return err
	}
	defer s.releaseLock(ctx, lease)
	defer s.invalidateSnapshot(ctx, cartPaymentID)
	return fn()
}

func (s *CartPaymentService) invalidateSnapshot(ctx context.Context, cartPaymentID uuid.UUID) {
	if s.snapshots == nil {
		return
	}
	s.snapshots.Invalidate(context.WithoutCancel(ctx), cartPaymentID)
}

func (s *CartPaymentService) scheduleReconcile(intentID uuid.UUID, reason string) {
	if s.scheduler == nil {
		return
	}
	payload := queue.ReconcilePaymentIntentPayload{PaymentIntentID: intentID.String(), Reason: reason}
	if err := s.scheduler.EnqueueReconcilePaymentIntent(payload, s.opts.ReconcileDelay); err != nil {
		cartPaymentLogger("payment_intent_id", intentID.String()).Errorw("reconcile_enqueue_failed", "reason", reason, "error", err)
	}
}

func (s *CartPaymentService) scheduleCapture(intentID uuid.UUID, at time.Time) {
	if s.scheduler == nil {
		return
	}
	payload := queue.CapturePaymentIntentPayload{PaymentIntentID: intentID.String()}
	if err := s.scheduler.EnqueueCapturePaymentIntent(payload, at); err != nil {
		cartPaymentLogger("payment_intent_id", intentID.String()).Errorw("capture_enqueue_failed", "capture_after", at, "error", err)
	}
}
