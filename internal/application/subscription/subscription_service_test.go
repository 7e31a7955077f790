package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/tests/testutil"
)

func TestSubscriptionService_Sync(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T) (*SubscriptionService, *testutil.MemorySubscriptionRepository, *observer.ObservedLogs) {
		core, logs := observer.New(zap.InfoLevel)
		subs := testutil.NewMemorySubscriptionRepository()
		svc := NewSubscriptionService(subs, testutil.NewMemoryStoreRepository(), testPlans(t), zap.New(core))
		return svc, subs, logs
	}

	t.Run("created subscription maps price to tier", func(t *testing.T) {
		svc, subs, _ := newService(t)
		owner := uuid.New()
		periodEnd := time.Now().Add(30 * 24 * time.Hour)

		err := svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1",
			ProviderCustomerID:     "cus_1",
			OwnerID:                owner,
			PriceRef:               "price_pro",
			Status:                 "active",
			CurrentPeriodEnd:       &periodEnd,
		})
		require.NoError(t, err)

		sub, err := subs.FindByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, vendor.PlanTier("pro"), sub.PlanTier)
		assert.Equal(t, vendor.SubscriptionStatusActive, sub.Status)
		assert.Equal(t, "cus_1", sub.ProviderCustomerID)
	})

	t.Run("update resolves owner from stored subscription", func(t *testing.T) {
		svc, subs, _ := newService(t)
		owner := uuid.New()
		require.NoError(t, svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1", OwnerID: owner, PriceRef: "price_pro", Status: "active",
		}))

		require.NoError(t, svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1", PriceRef: "price_pro", Status: "past_due",
		}))

		sub, err := subs.FindByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, vendor.SubscriptionStatusPastDue, sub.Status)
		assert.Equal(t, vendor.PlanTier("pro"), sub.EffectiveTier("free"))
	})

	t.Run("deleted subscription falls back to default tier", func(t *testing.T) {
		svc, subs, _ := newService(t)
		owner := uuid.New()
		require.NoError(t, svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1", OwnerID: owner, PriceRef: "price_pro", Status: "active",
		}))
		require.NoError(t, svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1", PriceRef: "price_pro", Status: "active", Deleted: true,
		}))

		sub, err := subs.FindByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, vendor.PlanTier("free"), sub.EffectiveTier("free"))
	})

	t.Run("unknown owner is skipped", func(t *testing.T) {
		svc, _, logs := newService(t)
		err := svc.Sync(ctx, ProviderSubscription{ProviderSubscriptionID: "sub_x", PriceRef: "price_pro", Status: "active"})
		require.NoError(t, err)
		assert.Equal(t, 1, logs.FilterMessage("Subscription has no owner, skipping").Len())
	})

	t.Run("unknown price keeps current tier", func(t *testing.T) {
		svc, subs, logs := newService(t)
		owner := uuid.New()
		require.NoError(t, svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1", OwnerID: owner, PriceRef: "price_pro", Status: "active",
		}))
		require.NoError(t, svc.Sync(ctx, ProviderSubscription{
			ProviderSubscriptionID: "sub_1", PriceRef: "price_legacy", Status: "active",
		}))

		sub, err := subs.FindByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, vendor.PlanTier("pro"), sub.PlanTier)
		assert.Equal(t, 1, logs.FilterMessage("Unknown subscription price, keeping current tier").Len())
	})
}

func TestSubscriptionService_PlanUsage(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewMemoryStoreRepository()
	subs := testutil.NewMemorySubscriptionRepository()
	svc := NewSubscriptionService(subs, stores, testPlans(t), zap.NewNop())
	owner := uuid.New()

	usage, err := svc.PlanUsage(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "free", usage.Tier)
	assert.Equal(t, "none", usage.Status)
	assert.Equal(t, int64(0), usage.StoresUsed)

	store, err := vendor.NewStore(owner, "Shop", "acct", "free")
	require.NoError(t, err)
	require.NoError(t, stores.Create(ctx, store))
	require.NoError(t, svc.Sync(ctx, ProviderSubscription{ProviderSubscriptionID: "sub_1", OwnerID: owner, PriceRef: "price_pro", Status: "trialing"}))

	usage, err = svc.PlanUsage(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "pro", usage.Tier)
	assert.Equal(t, 3, usage.MaxStores)
	assert.Equal(t, int64(1), usage.StoresUsed)
	assert.Equal(t, "trialing", usage.Status)
}

func TestMapSubscriptionStatus(t *testing.T) {
	assert.Equal(t, vendor.SubscriptionStatusActive, mapSubscriptionStatus("active"))
	assert.Equal(t, vendor.SubscriptionStatusTrialing, mapSubscriptionStatus("trialing"))
	assert.Equal(t, vendor.SubscriptionStatusPastDue, mapSubscriptionStatus("past_due"))
	assert.Equal(t, vendor.SubscriptionStatusCanceled, mapSubscriptionStatus("unpaid"))
	assert.Equal(t, vendor.SubscriptionStatusCanceled, mapSubscriptionStatus("incomplete_expired"))
}
