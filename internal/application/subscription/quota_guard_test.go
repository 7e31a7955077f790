package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/tests/testutil"
)

func testPlans(t *testing.T) *vendor.PlanCatalog {
	t.Helper()
	plans, err := vendor.NewPlanCatalog([]vendor.SubscriptionPlan{
		{Tier: "free", MaxStores: 1, MaxProductsPerStore: 2},
		{Tier: "pro", MaxStores: 3, MaxProductsPerStore: 0, ExternalPriceRef: "price_pro"},
	}, "free")
	require.NoError(t, err)
	return plans
}

type quotaFixture struct {
	stores   *testutil.MemoryStoreRepository
	products *testutil.MemoryProductRepository
	subs     *testutil.MemorySubscriptionRepository
	guard    *QuotaGuard
	service  *StoreService
}

func newQuotaFixture(t *testing.T) *quotaFixture {
	t.Helper()
	f := &quotaFixture{
		stores:   testutil.NewMemoryStoreRepository(),
		products: testutil.NewMemoryProductRepository(),
		subs:     testutil.NewMemorySubscriptionRepository(),
	}
	f.guard = NewQuotaGuard(f.stores, f.products, f.subs, testPlans(t), nil, zap.NewNop())
	scope := NewNoOpOwnerScope(f.stores, f.products, f.subs)
	f.service = NewStoreService(f.stores, f.products, f.guard, scope, zap.NewNop())
	return f
}

func (f *quotaFixture) subscribe(t *testing.T, ownerID uuid.UUID, tier vendor.PlanTier, status vendor.SubscriptionStatus) {
	t.Helper()
	sub, err := vendor.NewSubscription(ownerID, tier, status)
	require.NoError(t, err)
	require.NoError(t, f.subs.Upsert(context.Background(), sub))
}

func TestQuotaGuard_EnsureCanCreateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("default tier limit", func(t *testing.T) {
		f := newQuotaFixture(t)
		owner := uuid.New()

		require.NoError(t, f.guard.EnsureCanCreateStore(ctx, owner))
		_, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "First", PaymentAccountID: "acct_1"})
		require.NoError(t, err)

		err = f.guard.EnsureCanCreateStore(ctx, owner)
		var quota *vendor.QuotaExceededError
		require.ErrorAs(t, err, &quota)
		assert.Equal(t, vendor.ResourceStores, quota.Resource)
		assert.Equal(t, vendor.PlanTier("free"), quota.Tier)
		assert.Equal(t, 1, quota.Limit)
		assert.Equal(t, int64(1), quota.Current)

		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, shared.CodeQuotaExceeded, de.Code)
	})

	t.Run("subscribed tier raises the limit", func(t *testing.T) {
		f := newQuotaFixture(t)
		owner := uuid.New()
		f.subscribe(t, owner, "pro", vendor.SubscriptionStatusActive)

		for i := 0; i < 3; i++ {
			_, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Store", PaymentAccountID: "acct"})
			require.NoError(t, err)
		}
		_, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Store", PaymentAccountID: "acct"})
		var quota *vendor.QuotaExceededError
		assert.ErrorAs(t, err, &quota)
	})

	t.Run("lapsed subscription falls back to default tier", func(t *testing.T) {
		f := newQuotaFixture(t)
		owner := uuid.New()
		f.subscribe(t, owner, "pro", vendor.SubscriptionStatusCanceled)

		plan, err := f.guard.PlanFor(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, vendor.PlanTier("free"), plan.Tier)
	})

	t.Run("downgrade keeps existing stores and blocks new ones", func(t *testing.T) {
		f := newQuotaFixture(t)
		owner := uuid.New()
		f.subscribe(t, owner, "pro", vendor.SubscriptionStatusActive)
		for i := 0; i < 2; i++ {
			_, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Store", PaymentAccountID: "acct"})
			require.NoError(t, err)
		}

		f.subscribe(t, owner, "free", vendor.SubscriptionStatusActive)

		stores, err := f.service.ListStores(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, stores, 2)
		for _, s := range stores {
			assert.True(t, s.Active)
		}
		_, err = f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Store", PaymentAccountID: "acct"})
		var quota *vendor.QuotaExceededError
		assert.ErrorAs(t, err, &quota)
	})
}

func TestStoreService_CreateStore_ConcurrentAtLimitBoundary(t *testing.T) {
	f := newQuotaFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Racing", PaymentAccountID: "acct"})
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		var quota *vendor.QuotaExceededError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &quota):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, rejected)

	count, err := f.stores.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestQuotaGuard_EnsureCanCreateProduct(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t)
	owner := uuid.New()
	store, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Shop", PaymentAccountID: "acct"})
	require.NoError(t, err)

	input := CreateProductInput{Name: "Thing", Price: decimal.NewFromInt(5), Currency: "USD", Stock: 1}
	for i := 0; i < 2; i++ {
		_, err := f.service.CreateProduct(ctx, owner, store.ID, input)
		require.NoError(t, err)
	}

	_, err = f.service.CreateProduct(ctx, owner, store.ID, input)
	var quota *vendor.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, vendor.ResourceProducts, quota.Resource)

	_, err = f.service.CreateProduct(ctx, uuid.New(), store.ID, input)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	assert.ErrorIs(t, f.guard.EnsureCanCreateProduct(ctx, uuid.New()), shared.ErrNotFound)
}

func TestQuotaGuard_EnsureVendorEligible(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t)
	owner := uuid.New()
	f.subscribe(t, owner, "pro", vendor.SubscriptionStatusActive)

	eligible, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Ok", PaymentAccountID: "acct_ok"})
	require.NoError(t, err)
	noAccount, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "NoAccount"})
	require.NoError(t, err)
	inactive, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Closed", PaymentAccountID: "acct_x"})
	require.NoError(t, err)
	_, err = f.service.DeactivateStore(ctx, owner, inactive.ID, inactive.Version)
	require.NoError(t, err)

	store, err := f.guard.EnsureVendorEligible(ctx, eligible.ID)
	require.NoError(t, err)
	assert.Equal(t, "acct_ok", store.PaymentAccountID)

	tests := []struct {
		name    string
		storeID uuid.UUID
		reason  string
	}{
		{"missing store", uuid.New(), vendor.ReasonStoreNotFound},
		{"inactive store", inactive.ID, vendor.ReasonStoreInactive},
		{"no payment account", noAccount.ID, vendor.ReasonNoPaymentAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.guard.EnsureVendorEligible(ctx, tt.storeID)
			var inel *vendor.VendorIneligibleError
			require.ErrorAs(t, err, &inel)
			assert.Equal(t, tt.reason, inel.Reason)
		})
	}
}

func TestStoreService_ActivateDeactivate(t *testing.T) {
	ctx := context.Background()
	f := newQuotaFixture(t)
	owner := uuid.New()
	store, err := f.service.CreateStore(ctx, owner, CreateStoreInput{Name: "Shop", PaymentAccountID: "acct", ShipFromCountry: "us", ShipFromPostal: "94107"})
	require.NoError(t, err)
	assert.Equal(t, "US", store.ShipFrom.Country)

	_, err = f.service.DeactivateStore(ctx, uuid.New(), store.ID, store.Version)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	deactivated, err := f.service.DeactivateStore(ctx, owner, store.ID, store.Version)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	_, err = f.service.ActivateStore(ctx, owner, store.ID, store.Version)
	var conflict *shared.VersionConflictError
	assert.ErrorAs(t, err, &conflict)

	activated, err := f.service.ActivateStore(ctx, owner, store.ID, deactivated.Version)
	require.NoError(t, err)
	assert.True(t, activated.Active)
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("owner")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.Len())

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.Len())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.Len())
}
