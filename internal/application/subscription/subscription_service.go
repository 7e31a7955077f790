package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// SubscriptionService keeps owners' plan tiers in step with the payment provider.
// A tier change only affects creations made after it; nothing existing is removed.
type SubscriptionService struct {
	subscriptionRepo vendor.SubscriptionRepository
	storeRepo        vendor.StoreRepository
	plans            *vendor.PlanCatalog
	logger           *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(subscriptionRepo vendor.SubscriptionRepository, storeRepo vendor.StoreRepository, plans *vendor.PlanCatalog, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		storeRepo:        storeRepo,
		plans:            plans,
		logger:           logger,
	}
}

// Sync applies a provider subscription to the owner's record. Subscriptions that cannot be tied
// to an owner are acknowledged and skipped so the provider stops redelivering them.
func (s *SubscriptionService) Sync(ctx context.Context, ps ProviderSubscription) error {
	existing, err := s.subscriptionRepo.FindByProviderSubscriptionID(ctx, ps.ProviderSubscriptionID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("failed to find subscription: %w", err)
	}

	ownerID := ps.OwnerID
	if existing != nil {
		ownerID = existing.OwnerID
	}
	if ownerID == uuid.Nil {
		s.logger.Warn("Subscription has no owner, skipping",
			zap.String("subscription_id", ps.ProviderSubscriptionID))
		return nil
	}
	if existing == nil {
		existing, err = s.subscriptionRepo.FindByOwner(ctx, ownerID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to find subscription: %w", err)
		}
	}

	status := mapSubscriptionStatus(ps.Status)
	if ps.Deleted {
		status = vendor.SubscriptionStatusCanceled
	}

	tier, known := s.plans.TierForPriceRef(ps.PriceRef)
	if !known {
		s.logger.Warn("Unknown subscription price, keeping current tier",
			zap.String("subscription_id", ps.ProviderSubscriptionID),
			zap.String("price", ps.PriceRef))
		tier = s.plans.DefaultTier()
		if existing != nil {
			tier = existing.PlanTier
		}
	}

	if existing == nil {
		existing, err = vendor.NewSubscription(ownerID, tier, status)
		if err != nil {
			return err
		}
	}
	previous := existing.EffectiveTier(s.plans.DefaultTier())
	existing.Apply(tier, status, ps.CurrentPeriodEnd)
	existing.ProviderSubscriptionID = ps.ProviderSubscriptionID
	if ps.ProviderCustomerID != "" {
		existing.ProviderCustomerID = ps.ProviderCustomerID
	}

	if err := s.subscriptionRepo.Upsert(ctx, existing); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	s.logger.Info("Subscription synced",
		zap.String("owner_id", ownerID.String()),
		zap.String("subscription_id", ps.ProviderSubscriptionID),
		zap.String("previous_tier", previous.String()),
		zap.String("tier", existing.EffectiveTier(s.plans.DefaultTier()).String()),
		zap.String("status", string(status)),
	)
	return nil
}

// PlanUsage reports the owner's current plan and store usage
func (s *SubscriptionService) PlanUsage(ctx context.Context, ownerID uuid.UUID) (*PlanUsageResponse, error) {
	sub, err := s.subscriptionRepo.FindByOwner(ctx, ownerID)
	if errors.Is(err, shared.ErrNotFound) {
		sub = nil
	} else if err != nil {
		return nil, err
	}
	plan := s.plans.Get(sub.EffectiveTier(s.plans.DefaultTier()))
	count, err := s.storeRepo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	status := "none"
	if sub != nil {
		status = string(sub.Status)
	}
	return &PlanUsageResponse{
		Tier:                plan.Tier.String(),
		MaxStores:           plan.MaxStores,
		StoresUsed:          count,
		MaxProductsPerStore: plan.MaxProductsPerStore,
		Status:              status,
	}, nil
}

// mapSubscriptionStatus folds the provider's statuses onto the ones that matter for entitlement
func mapSubscriptionStatus(status string) vendor.SubscriptionStatus {
	switch status {
	case "active":
		return vendor.SubscriptionStatusActive
	case "trialing":
		return vendor.SubscriptionStatusTrialing
	case "past_due":
		return vendor.SubscriptionStatusPastDue
	default:
		// incomplete, incomplete_expired, unpaid, paused, canceled
		return vendor.SubscriptionStatusCanceled
	}
}
