package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/telemetry"
)

// Checkout results reported to metrics
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

// CheckoutService turns a cart into per-vendor payment intents.
//
// Initiate splits and validates the cart, locks it by setting the checkout marker with a
// versioned write, then creates the intents. A second Initiate on a locked cart is rejected.
// If intent creation fails the marker is cleared and the attempt counter bumped, so the next
// attempt gets fresh idempotency keys.
type CheckoutService struct {
	cartRepo     cart.CartRepository
	intentRepo   payment.PaymentIntentRepository
	splitter     *Splitter
	orchestrator *Orchestrator
	scope        TransactionScope
	publisher    shared.EventPublisher
	metrics      *telemetry.CheckoutMetrics
	logger       *zap.Logger
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(
	cartRepo cart.CartRepository,
	intentRepo payment.PaymentIntentRepository,
	splitter *Splitter,
	orchestrator *Orchestrator,
	scope TransactionScope,
	publisher shared.EventPublisher,
	metrics *telemetry.CheckoutMetrics,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		cartRepo:     cartRepo,
		intentRepo:   intentRepo,
		splitter:     splitter,
		orchestrator: orchestrator,
		scope:        scope,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger,
	}
}

// Initiate starts a checkout
func (s *CheckoutService) Initiate(ctx context.Context, input InitiateInput) (resp *CheckoutResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "initiate", telemetry.SpanAttrCartID, input.CartID.String())
	defer span.End()

	start := time.Now()
	vendors := 0
	defer func() {
		result := resultSuccess
		var de *shared.DomainError
		switch {
		case err == nil:
		case errors.As(err, &de) && de.Code != shared.CodeProviderError:
			result = resultRejected
		default:
			result = resultFailed
		}
		if err != nil {
			telemetry.RecordError(span, err)
		}
		s.metrics.ObserveCheckout(result, vendors, time.Since(start))
	}()

	c, err := s.cartRepo.FindByID(ctx, input.CartID)
	if err != nil {
		return nil, err
	}
	if err := ensureCheckoutable(c, input.ExpectedVersion); err != nil {
		return nil, err
	}

	subOrders, err := s.splitter.Split(ctx, c, input.Destination, input.Selections)
	if err != nil {
		return nil, err
	}
	vendors = len(subOrders)
	telemetry.SetAttributes(span, telemetry.SpanAttrVendorCount, vendors)

	checkoutID := uuid.New()
	if err := c.StartCheckout(checkoutID); err != nil {
		return nil, err
	}
	if err := s.cartRepo.SaveWithLock(ctx, c); err != nil {
		return nil, s.explainLockFailure(ctx, input.CartID, err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCheckoutID, checkoutID.String())

	refs, err := s.orchestrator.CreateIntents(ctx, c, input.Destination.Normalize(), subOrders)
	if err != nil {
		if abortErr := c.AbortCheckout(); abortErr == nil {
			if saveErr := s.cartRepo.SaveWithLock(ctx, c); saveErr != nil {
				s.logger.Error("Failed to unlock cart after intent failure",
					zap.String("cart_id", c.ID.String()), zap.Error(saveErr))
			}
		}
		return nil, err
	}

	s.logger.Info("Checkout initiated",
		zap.String("cart_id", c.ID.String()),
		zap.String("checkout_id", checkoutID.String()),
		zap.Int("attempt", c.CheckoutAttempt),
		zap.Int("vendors", vendors),
	)
	return &CheckoutResponse{
		CartID:      c.ID,
		CheckoutID:  checkoutID,
		Attempt:     c.CheckoutAttempt,
		CartVersion: c.Version,
		SubOrders:   toSubOrderResponses(subOrders),
		Intents:     ToIntentResponses(refs),
		Total:       sumRefs(refs),
	}, nil
}

// Abort cancels the in-flight checkout and unlocks the cart. It is refused once any intent of
// the checkout has succeeded, since that vendor's order is being or has been materialized.
func (s *CheckoutService) Abort(ctx context.Context, cartID uuid.UUID) (*cart.Cart, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "abort", telemetry.SpanAttrCartID, cartID.String())
	defer span.End()

	c, err := s.cartRepo.FindByID(ctx, cartID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if c.Closed {
		return nil, cart.ErrCartClosed
	}
	if c.CheckoutID == nil {
		return nil, shared.NewDomainError("NO_CHECKOUT_IN_PROGRESS", "Cart has no checkout in progress")
	}

	intents, err := s.intentRepo.FindByCheckout(ctx, *c.CheckoutID)
	if err != nil {
		return nil, err
	}
	pending := make([]*payment.PaymentIntent, 0, len(intents))
	for i := range intents {
		if intents[i].Status == payment.StatusSucceeded {
			return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "A payment in this checkout has already succeeded").
				WithDetails(map[string]any{"store_id": intents[i].StoreID.String()})
		}
		if !intents[i].Status.IsTerminal() {
			pending = append(pending, &intents[i])
		}
	}

	if errs := s.orchestrator.CancelIntents(ctx, pending); len(errs) > 0 {
		err := shared.NewProviderError("stripe", "cancel_payment_intent", true, errors.Join(errs...))
		telemetry.RecordError(span, err)
		return nil, err
	}

	var events []shared.DomainEvent
	for _, intent := range pending {
		events = append(events, intent.GetDomainEvents()...)
		intent.ClearDomainEvents()
	}

	previous := *c.CheckoutID
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := c.AbortCheckout(); err != nil {
			return err
		}
		return repos.CartRepo().SaveWithLock(ctx, c)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if len(events) > 0 {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish cancellation events", zap.Error(err))
		}
	}
	s.logger.Info("Checkout aborted",
		zap.String("cart_id", c.ID.String()),
		zap.String("checkout_id", previous.String()),
		zap.Int("canceled_intents", len(pending)),
	)
	return c, nil
}

// CurrentIntents returns the intents of the cart's in-flight checkout so a client can resume it.
// Once the first vendor's payment closes the cart, the intents of that final attempt are still
// returned so the remaining vendors can be paid.
func (s *CheckoutService) CurrentIntents(ctx context.Context, cartID uuid.UUID) ([]checkout.PaymentIntentRef, error) {
	c, err := s.cartRepo.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	var intents []payment.PaymentIntent
	switch {
	case c.CheckoutID != nil:
		intents, err = s.intentRepo.FindByCheckout(ctx, *c.CheckoutID)
	case c.Closed:
		intents, err = s.closingAttemptIntents(ctx, c)
	}
	if err != nil {
		return nil, err
	}

	refs := make([]checkout.PaymentIntentRef, len(intents))
	for i := range intents {
		refs[i] = toRef(&intents[i])
	}
	return refs, nil
}

func (s *CheckoutService) closingAttemptIntents(ctx context.Context, c *cart.Cart) ([]payment.PaymentIntent, error) {
	all, err := s.intentRepo.FindByCart(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	out := make([]payment.PaymentIntent, 0, len(all))
	for _, intent := range all {
		if intent.Attempt == c.CheckoutAttempt {
			out = append(out, intent)
		}
	}
	return out, nil
}

func ensureCheckoutable(c *cart.Cart, expectedVersion int) error {
	if c.Closed {
		return cart.ErrCartClosed
	}
	if c.IsLocked() {
		return &cart.CartLockedError{CartID: c.ID, CheckoutID: *c.CheckoutID}
	}
	return c.CheckVersion(expectedVersion)
}

// explainLockFailure turns a lost race for the cart into CartLockedError when the winner was
// another checkout
func (s *CheckoutService) explainLockFailure(ctx context.Context, cartID uuid.UUID, err error) error {
	var conflict *shared.VersionConflictError
	if !errors.As(err, &conflict) {
		return err
	}
	current, findErr := s.cartRepo.FindByID(ctx, cartID)
	if findErr != nil {
		return err
	}
	if current.IsLocked() {
		return &cart.CartLockedError{CartID: cartID, CheckoutID: *current.CheckoutID}
	}
	return err
}
