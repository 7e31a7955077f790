package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/marketplace/backend/internal/domain/shipping"
)

// OrchestratorConfig holds payment intent creation settings
type OrchestratorConfig struct {
	PlatformFeeBps int64
	CallTimeout    time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

// Orchestrator creates one provider payment intent per sub-order, routed to the vendor's
// connected account. Intents of one attempt are all-or-nothing: if any creation fails, the
// ones already created are canceled.
type Orchestrator struct {
	gateway    payment.Gateway
	intentRepo payment.PaymentIntentRepository
	config     OrchestratorConfig
	logger     *zap.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(gateway payment.Gateway, intentRepo payment.PaymentIntentRepository, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Orchestrator{
		gateway:    gateway,
		intentRepo: intentRepo,
		config:     cfg,
		logger:     logger,
	}
}

// CreateIntents creates the intents for the cart's current checkout. Keys are derived from
// (cart, store, attempt), so a retry of the same attempt reuses what was already created.
func (o *Orchestrator) CreateIntents(ctx context.Context, c *cart.Cart, destination shipping.Destination, subOrders []checkout.SubOrder) ([]checkout.PaymentIntentRef, error) {
	if c.CheckoutID == nil {
		return nil, shared.NewDomainError("NO_CHECKOUT_IN_PROGRESS", "Cart has no checkout in progress")
	}

	refs := make([]checkout.PaymentIntentRef, 0, len(subOrders))
	created := make([]*payment.PaymentIntent, 0, len(subOrders))
	for _, sub := range subOrders {
		intent, err := o.createIntent(ctx, c, destination, sub)
		if err != nil {
			o.logger.Warn("Payment intent creation failed, rolling back attempt",
				zap.String("cart_id", c.ID.String()),
				zap.String("store_id", sub.StoreID.String()),
				zap.Int("created", len(created)),
				zap.Error(err),
			)
			o.CancelIntents(ctx, created)
			var pe *shared.ProviderError
			if errors.As(err, &pe) {
				return nil, err
			}
			return nil, shared.NewProviderError("stripe", "create_payment_intent", false, err)
		}
		created = append(created, intent)
		refs = append(refs, toRef(intent))
	}
	return refs, nil
}

// CancelIntents cancels every non-terminal intent with the provider and records it locally.
// Failures are logged; the provider also expires unconfirmed intents on its own.
func (o *Orchestrator) CancelIntents(ctx context.Context, intents []*payment.PaymentIntent) []error {
	var errs []error
	for _, intent := range intents {
		if err := o.cancel(ctx, intent); err != nil {
			o.logger.Error("Failed to cancel payment intent",
				zap.String("payment_intent_id", intent.ID.String()),
				zap.String("provider_intent_id", intent.ProviderIntentID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errs
}

func (o *Orchestrator) cancel(ctx context.Context, intent *payment.PaymentIntent) error {
	if intent.Status.IsTerminal() {
		return nil
	}
	if intent.ProviderIntentID != "" {
		callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		_, err := o.gateway.CancelIntent(callCtx, intent.ProviderIntentID)
		cancel()
		if err != nil {
			return err
		}
	}
	if intent.MarkCanceled() {
		return o.intentRepo.SaveWithLock(ctx, intent)
	}
	return nil
}

func (o *Orchestrator) createIntent(ctx context.Context, c *cart.Cart, destination shipping.Destination, sub checkout.SubOrder) (*payment.PaymentIntent, error) {
	key := checkout.IdempotencyKey(c.ID, sub.StoreID, c.CheckoutAttempt)

	existing, err := o.intentRepo.FindByIdempotencyKey(ctx, key)
	if err == nil && existing.ProviderIntentID != "" {
		return existing, nil
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	currency, err := valueobject.ParseCurrency(sub.Currency)
	if err != nil {
		return nil, shared.NewValidationError("currency", err.Error())
	}
	amount, err := valueobject.NewMoney(sub.Total(), currency)
	if err != nil {
		return nil, err
	}
	fee := amount.BasisPoints(o.config.PlatformFeeBps)

	req := payment.CreateIntentRequest{
		IdempotencyKey:     key,
		Amount:             amount,
		ApplicationFee:     fee,
		DestinationAccount: sub.PaymentAccountID,
		Description:        fmt.Sprintf("Order from store %s", sub.StoreID),
		Metadata: map[string]string{
			"cart_id":     c.ID.String(),
			"checkout_id": c.CheckoutID.String(),
			"store_id":    sub.StoreID.String(),
			"attempt":     strconv.Itoa(c.CheckoutAttempt),
		},
	}
	result, err := o.createWithRetry(ctx, req)
	if err != nil {
		var pe *shared.ProviderError
		if errors.As(err, &pe) && pe.Retryable {
			o.recoverLost(ctx, req)
		}
		return nil, err
	}

	intent, err := payment.NewPaymentIntent(c.ID, *c.CheckoutID, sub.StoreID, c.CheckoutAttempt, sub.PaymentAccountID,
		amount.Amount(), fee.Amount(), string(currency), key, sub.Snapshot(destination))
	if err != nil {
		return nil, err
	}
	intent.AttachProviderIntent(result.ProviderIntentID, result.ClientSecret, result.Status)

	if err := o.intentRepo.Create(ctx, intent); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return o.intentRepo.FindByIdempotencyKey(ctx, key)
		}
		return nil, err
	}
	o.logger.Info("Payment intent created",
		zap.String("cart_id", c.ID.String()),
		zap.String("store_id", sub.StoreID.String()),
		zap.String("provider_intent_id", intent.ProviderIntentID),
		zap.String("amount", amount.String()),
	)
	return intent, nil
}

func (o *Orchestrator) createWithRetry(ctx context.Context, req payment.CreateIntentRequest) (*payment.IntentResult, error) {
	var lastErr error
	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		result, err := o.gateway.CreateIntent(callCtx, req)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pe *shared.ProviderError
		if !errors.As(err, &pe) || !pe.Retryable || attempt == o.config.MaxAttempts {
			break
		}
		backoff := o.config.RetryBackoff * time.Duration(attempt)
		o.logger.Debug("Retrying payment intent creation",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return nil, shared.NewProviderError("stripe", "create_payment_intent", true, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

// recoverLost handles a creation whose outcome is unknown. The provider may have created the
// intent without the response reaching us, and the key is never sent again once the attempt is
// bumped. Replaying the key returns that intent (or creates one), which is then canceled.
func (o *Orchestrator) recoverLost(ctx context.Context, req payment.CreateIntentRequest) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.CallTimeout)
	defer cancel()

	result, err := o.gateway.CreateIntent(callCtx, req)
	if err != nil {
		o.logger.Error("Could not reconcile payment intent with unknown outcome",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err),
		)
		return
	}
	if _, err := o.gateway.CancelIntent(callCtx, result.ProviderIntentID); err != nil {
		o.logger.Error("Failed to cancel reconciled payment intent",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("provider_intent_id", result.ProviderIntentID),
			zap.Error(err),
		)
		return
	}
	o.logger.Warn("Canceled payment intent with lost creation response",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("provider_intent_id", result.ProviderIntentID),
	)
}

func toRef(intent *payment.PaymentIntent) checkout.PaymentIntentRef {
	return checkout.PaymentIntentRef{
		PaymentIntentID:  intent.ID,
		ProviderIntentID: intent.ProviderIntentID,
		ClientSecret:     intent.ClientSecret,
		StoreID:          intent.StoreID,
		Amount:           intent.Amount,
		Currency:         intent.Currency,
		Status:           intent.Status,
	}
}

// sumRefs totals the amounts across intents
func sumRefs(refs []checkout.PaymentIntentRef) decimal.Decimal {
	total := decimal.Zero
	for _, r := range refs {
		total = total.Add(r.Amount)
	}
	return total
}
