package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apporder "github.com/marketplace/backend/internal/application/order"
	appsubscription "github.com/marketplace/backend/internal/application/subscription"
	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/domain/vendor"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
)

// setupTestDB opens an in-memory SQLite database with the full schema.
// One connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := NewDatabaseFromDialector(sqlite.Open(":memory:"), nil)
	require.NoError(t, err)
	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.DB.AutoMigrate(models.All()...))
	return database.DB
}

func newTestCart(t *testing.T, identity cart.Identity) *cart.Cart {
	t.Helper()
	c, err := cart.NewCart(identity, "usd")
	require.NoError(t, err)
	return c
}

func newTestIntent(t *testing.T, cartID, checkoutID, storeID uuid.UUID, key, providerID string) *payment.PaymentIntent {
	t.Helper()
	snapshot := payment.SubOrderSnapshot{
		Items: []payment.SnapshotItem{
			{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		},
		Subtotal:     decimal.NewFromInt(20),
		ShippingCost: decimal.NewFromInt(5),
		Carrier:      "ups",
		ServiceLevel: "ground",
		Destination:  shipping.Destination{Country: "US", PostalCode: "94107"},
	}
	intent, err := payment.NewPaymentIntent(cartID, checkoutID, storeID, 1, "acct_1",
		decimal.NewFromInt(25), decimal.NewFromInt(1), "USD", key, snapshot)
	require.NoError(t, err)
	intent.AttachProviderIntent(providerID, "secret_"+providerID, payment.StatusRequiresPaymentMethod)
	return intent
}

func TestGormCartRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("create and find open cart with items", func(t *testing.T) {
		repo := NewGormCartRepository(setupTestDB(t))
		c := newTestCart(t, cart.GuestIdentity("guest-1"))
		storeID := uuid.New()
		first, second := uuid.New(), uuid.New()
		_, err := c.AddItem(cart.NewItem{ProductID: first, StoreID: storeID, Quantity: 2, UnitPrice: decimal.NewFromInt(3)}, 10)
		require.NoError(t, err)
		_, err = c.AddItem(cart.NewItem{ProductID: second, StoreID: storeID, Quantity: 1, UnitPrice: decimal.NewFromInt(7)}, 10)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, c))

		found, err := repo.FindOpenByIdentity(ctx, "guest:guest-1")
		require.NoError(t, err)
		assert.Equal(t, c.ID, found.ID)
		assert.Equal(t, "USD", found.Currency)
		assert.Equal(t, 1, found.Version)
		require.Len(t, found.Items, 2)
		assert.Equal(t, first, found.Items[0].ProductID)
		assert.Equal(t, second, found.Items[1].ProductID)
		assert.True(t, decimal.NewFromInt(13).Equal(found.Subtotal()))
	})

	t.Run("second open cart for the same identity is rejected", func(t *testing.T) {
		repo := NewGormCartRepository(setupTestDB(t))
		require.NoError(t, repo.Create(ctx, newTestCart(t, cart.GuestIdentity("g"))))
		err := repo.Create(ctx, newTestCart(t, cart.GuestIdentity("g")))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("closed cart frees the identity", func(t *testing.T) {
		repo := NewGormCartRepository(setupTestDB(t))
		c := newTestCart(t, cart.GuestIdentity("g"))
		require.NoError(t, repo.Create(ctx, c))

		closed, err := repo.MarkClosed(ctx, c.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, closed)

		closed, err = repo.MarkClosed(ctx, c.ID, time.Now())
		require.NoError(t, err)
		assert.False(t, closed)

		_, err = repo.FindOpenByIdentity(ctx, "guest:g")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		require.NoError(t, repo.Create(ctx, newTestCart(t, cart.GuestIdentity("g"))))

		stored, err := repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, stored.Closed)
		assert.NotNil(t, stored.ClosedAt)
		assert.Equal(t, 2, stored.Version)
	})

	t.Run("mark closed on unknown cart", func(t *testing.T) {
		repo := NewGormCartRepository(setupTestDB(t))
		_, err := repo.MarkClosed(ctx, uuid.New(), time.Now())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("save with lock replaces items and bumps version", func(t *testing.T) {
		repo := NewGormCartRepository(setupTestDB(t))
		c := newTestCart(t, cart.UserIdentity(uuid.New()))
		product := uuid.New()
		_, err := c.AddItem(cart.NewItem{ProductID: product, StoreID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(5)}, 10)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, c))

		loaded, err := repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		require.NoError(t, loaded.SetItemQuantity(product, 4, 10))
		loaded.MergedFrom = append(loaded.MergedFrom, uuid.New())
		require.NoError(t, repo.SaveWithLock(ctx, loaded))
		assert.Equal(t, 2, loaded.Version)

		stored, err := repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, 4, stored.Items[0].Quantity)
		assert.Len(t, stored.MergedFrom, 1)
		assert.Equal(t, 2, stored.Version)

		require.NoError(t, stored.RemoveItem(product))
		require.NoError(t, repo.SaveWithLock(ctx, stored))
		emptied, err := repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, emptied.Items)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		repo := NewGormCartRepository(setupTestDB(t))
		c := newTestCart(t, cart.GuestIdentity("g"))
		require.NoError(t, repo.Create(ctx, c))

		a, err := repo.FindByID(ctx, c.ID)
		require.NoError(t, err)
		b, err := repo.FindByID(ctx, c.ID)
		require.NoError(t, err)

		require.NoError(t, repo.SaveWithLock(ctx, a))
		err = repo.SaveWithLock(ctx, b)
		var conflict *shared.VersionConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, 1, conflict.Expected)
		assert.Equal(t, 2, conflict.Actual)
	})
}

func TestGormProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormProductRepository(setupTestDB(t))
	storeID := uuid.New()

	mug, err := catalog.NewProduct(storeID, "Mug", decimal.RequireFromString("12.50"), "USD", 5)
	require.NoError(t, err)
	cup, err := catalog.NewProduct(storeID, "Cup", decimal.NewFromInt(4), "USD", 1)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, mug))
	require.NoError(t, repo.Create(ctx, cup))

	found, err := repo.FindByIDs(ctx, []uuid.UUID{mug.ID, cup.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.True(t, decimal.RequireFromString("12.5").Equal(found[mug.ID].Price))

	count, err := repo.CountByStore(ctx, storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, repo.DecrementStock(ctx, mug.ID, 2))
	require.NoError(t, repo.DecrementStock(ctx, cup.ID, 3))

	updated, err := repo.FindByID(ctx, mug.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Stock)
	clamped, err := repo.FindByID(ctx, cup.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, clamped.Stock)

	assert.ErrorIs(t, repo.DecrementStock(ctx, uuid.New(), 1), shared.ErrNotFound)

	empty, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormStoreRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormStoreRepository(setupTestDB(t))
	owner := uuid.New()

	store, err := vendor.NewStore(owner, "Shop", "acct_1", "free")
	require.NoError(t, err)
	store.ShipFrom = vendor.Origin{Country: "US", PostalCode: "10001"}
	require.NoError(t, repo.Create(ctx, store))

	count, err := repo.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	loaded, err := repo.FindByID(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, "10001", loaded.ShipFrom.PostalCode)
	stale := *loaded

	loaded.Deactivate()
	require.NoError(t, repo.SaveWithLock(ctx, loaded))

	err = repo.SaveWithLock(ctx, &stale)
	var conflict *shared.VersionConflictError
	assert.ErrorAs(t, err, &conflict)

	stores, err := repo.FindByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.False(t, stores[0].Active)
}

func TestGormSubscriptionRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSubscriptionRepository(setupTestDB(t))
	owner := uuid.New()

	sub, err := vendor.NewSubscription(owner, "pro", vendor.SubscriptionStatusActive)
	require.NoError(t, err)
	sub.ProviderSubscriptionID = "sub_1"
	require.NoError(t, repo.Upsert(ctx, sub))

	replacement, err := vendor.NewSubscription(owner, "free", vendor.SubscriptionStatusCanceled)
	require.NoError(t, err)
	replacement.ProviderSubscriptionID = "sub_1"
	require.NoError(t, repo.Upsert(ctx, replacement))

	stored, err := repo.FindByProviderSubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, owner, stored.OwnerID)
	assert.Equal(t, vendor.PlanTier("free"), stored.PlanTier)
	assert.Equal(t, vendor.SubscriptionStatusCanceled, stored.Status)

	_, err = repo.FindByOwner(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindByProviderSubscriptionID(ctx, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormPaymentIntentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormPaymentIntentRepository(setupTestDB(t))
	cartID, checkoutID := uuid.New(), uuid.New()

	intent := newTestIntent(t, cartID, checkoutID, uuid.New(), "key-1", "pi_1")
	require.NoError(t, repo.Create(ctx, intent))

	dup := newTestIntent(t, cartID, checkoutID, uuid.New(), "key-1", "pi_2")
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)

	loaded, err := repo.FindByProviderIntentID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRequiresPaymentMethod, loaded.Status)
	require.Len(t, loaded.Snapshot.Items, 1)
	assert.Equal(t, "US", loaded.Snapshot.Destination.Country)
	assert.True(t, decimal.NewFromInt(25).Equal(loaded.Amount))

	stale := *loaded
	outcome := loaded.ApplyEvent(payment.ProviderEvent{
		EventID:          "evt_1",
		ProviderIntentID: "pi_1",
		Status:           payment.StatusProcessing,
		Sequence:         10,
		OccurredAt:       time.Now(),
	})
	assert.Equal(t, payment.OutcomeApplied, outcome)
	require.NoError(t, repo.SaveWithLock(ctx, loaded))

	var conflict *shared.VersionConflictError
	assert.ErrorAs(t, repo.SaveWithLock(ctx, &stale), &conflict)

	stored, err := repo.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, stored.Status)
	assert.Equal(t, "evt_1", stored.LastEventID)
	assert.Equal(t, int64(10), stored.LastEventSequence)

	byCheckout, err := repo.FindByCheckout(ctx, checkoutID)
	require.NoError(t, err)
	assert.Len(t, byCheckout, 1)
	byCart, err := repo.FindByCart(ctx, cartID)
	require.NoError(t, err)
	assert.Len(t, byCart, 1)
}

func TestGormOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(setupTestDB(t))
	storeID := uuid.New()

	intent := newTestIntent(t, uuid.New(), uuid.New(), storeID, "key-1", "pi_1")
	intent.Status = payment.StatusSucceeded
	o, err := order.FromPaymentIntent(intent)
	require.NoError(t, err)

	stored, created, err := repo.CreateIfAbsent(ctx, o)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, o.ID, stored.ID)

	again, err := order.FromPaymentIntent(intent)
	require.NoError(t, err)
	existing, created, err := repo.CreateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, o.ID, existing.ID)
	require.Len(t, existing.Items, 1)
	assert.Equal(t, "ups", existing.Carrier)

	orders, total, err := repo.FindByStore(ctx, storeID, shared.Filter{Page: 1, PageSize: 10, OrderBy: "total; DROP TABLE orders"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)

	byCart, err := repo.FindByCart(ctx, intent.CartID)
	require.NoError(t, err)
	assert.Len(t, byCart, 1)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormTransactionScope(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	scope := NewGormTransactionScope(db)

	t.Run("rollback discards writes", func(t *testing.T) {
		intent := newTestIntent(t, uuid.New(), uuid.New(), uuid.New(), "key-rb", "pi_rb")
		intent.Status = payment.StatusSucceeded
		o, err := order.FromPaymentIntent(intent)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = scope.OrderScope().Execute(ctx, func(repos apporder.TransactionalRepositories) error {
			if _, _, err := repos.OrderRepo().CreateIfAbsent(ctx, o); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = NewGormOrderRepository(db).FindByID(ctx, o.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("owner scope commits", func(t *testing.T) {
		owner := uuid.New()
		store, err := vendor.NewStore(owner, "Shop", "acct", "free")
		require.NoError(t, err)

		err = scope.OwnerScope().ExecuteForOwner(ctx, owner, func(repos appsubscription.TransactionalRepositories) error {
			return repos.StoreRepo().Create(ctx, store)
		})
		require.NoError(t, err)

		count, err := NewGormStoreRepository(db).CountByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}
