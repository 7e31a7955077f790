package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/tests/testutil"
)

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByStore(ctx context.Context, storeID uuid.UUID) ([]catalog.Product, error) {
	args := m.Called(ctx, storeID)
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) CountByStore(ctx context.Context, storeID uuid.UUID) (int64, error) {
	args := m.Called(ctx, storeID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	args := m.Called(ctx, id, qty)
	return args.Error(0)
}

type cartFixture struct {
	service  *CartService
	carts    *testutil.MemoryCartRepository
	products *testutil.MemoryProductRepository
	storeID  uuid.UUID
	widget   *catalog.Product
	gadget   *catalog.Product
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	storeID := uuid.New()
	widget, err := catalog.NewProduct(storeID, "Widget", decimal.NewFromInt(10), "USD", 5)
	require.NoError(t, err)
	gadget, err := catalog.NewProduct(storeID, "Gadget", decimal.NewFromInt(25), "USD", 100)
	require.NoError(t, err)

	carts := testutil.NewMemoryCartRepository()
	products := testutil.NewMemoryProductRepository(widget, gadget)
	svc := NewCartService(carts, products, NewNoOpTransactionScope(carts, products), Config{Currency: "USD"}, zap.NewNop())
	return &cartFixture{
		service:  svc,
		carts:    carts,
		products: products,
		storeID:  storeID,
		widget:   widget,
		gadget:   gadget,
	}
}

func TestCartService_GetOrCreate(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	identity := cart.UserIdentity(uuid.New())

	first, err := f.service.GetOrCreate(ctx, identity)
	require.NoError(t, err)
	second, err := f.service.GetOrCreate(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := f.service.GetOrCreate(ctx, cart.GuestIdentity("guest-token"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	_, err = f.service.GetOrCreate(ctx, cart.Identity{})
	var verr *shared.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCartService_GetOrCreate_ConcurrentCallsShareOneCart(t *testing.T) {
	f := newCartFixture(t)
	identity := cart.GuestIdentity("same-guest")

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := f.service.GetOrCreate(context.Background(), identity)
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCartService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("uses catalog price and bumps version", func(t *testing.T) {
		f := newCartFixture(t)
		c, err := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
		require.NoError(t, err)

		updated, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 2, ExpectedVersion: c.Version})
		require.NoError(t, err)
		assert.Equal(t, c.Version+1, updated.Version)
		require.Len(t, updated.Items, 1)
		assert.Equal(t, f.storeID, updated.Items[0].StoreID)
		assert.True(t, updated.Items[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	})

	t.Run("existing product increments and caps at stock", func(t *testing.T) {
		f := newCartFixture(t)
		c, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))

		c, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 3, ExpectedVersion: c.Version})
		require.NoError(t, err)
		c, err = f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 3, ExpectedVersion: c.Version})
		require.NoError(t, err)

		require.Len(t, c.Items, 1)
		assert.Equal(t, 5, c.Items[0].Quantity)
	})

	t.Run("line limit caps below stock", func(t *testing.T) {
		carts := testutil.NewMemoryCartRepository()
		f := newCartFixture(t)
		svc := NewCartService(carts, f.products, NewNoOpTransactionScope(carts, f.products), Config{MaxLineQuantity: 3}, zap.NewNop())
		c, err := svc.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
		require.NoError(t, err)

		c, err = svc.AddItem(ctx, c.ID, AddItemInput{ProductID: f.gadget.ID, Quantity: 10, ExpectedVersion: c.Version})
		require.NoError(t, err)
		assert.Equal(t, 3, c.FindItem(f.gadget.ID).Quantity)
	})

	t.Run("stale version rejected without changes", func(t *testing.T) {
		f := newCartFixture(t)
		c, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
		_, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 1, ExpectedVersion: c.Version})
		require.NoError(t, err)

		_, err = f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.gadget.ID, Quantity: 1, ExpectedVersion: c.Version})
		var conflict *shared.VersionConflictError
		require.ErrorAs(t, err, &conflict)

		stored, _ := f.carts.FindByID(ctx, c.ID)
		assert.Len(t, stored.Items, 1)
	})

	t.Run("unknown product is unavailable", func(t *testing.T) {
		f := newCartFixture(t)
		c, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))

		_, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: uuid.New(), Quantity: 1, ExpectedVersion: c.Version})
		var unavailable *checkout.ItemUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, checkout.ReasonProductNotFound, unavailable.Reason)
	})

	t.Run("out of stock product is unavailable", func(t *testing.T) {
		f := newCartFixture(t)
		f.widget.Stock = 0
		f.products.Put(f.widget)
		c, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))

		_, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 1, ExpectedVersion: c.Version})
		var unavailable *checkout.ItemUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, checkout.ReasonInsufficientStock, unavailable.Reason)
	})

	t.Run("locked cart rejected", func(t *testing.T) {
		f := newCartFixture(t)
		c, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
		c, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 1, ExpectedVersion: c.Version})
		require.NoError(t, err)
		require.NoError(t, c.StartCheckout(uuid.New()))
		require.NoError(t, f.carts.SaveWithLock(ctx, c))

		_, err = f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.gadget.ID, Quantity: 1, ExpectedVersion: c.Version})
		var locked *cart.CartLockedError
		assert.ErrorAs(t, err, &locked)
	})

	t.Run("catalog error surfaces", func(t *testing.T) {
		carts := testutil.NewMemoryCartRepository()
		products := new(MockProductRepository)
		svc := NewCartService(carts, products, NewNoOpTransactionScope(carts, products), Config{}, zap.NewNop())
		c, err := svc.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
		require.NoError(t, err)

		productID := uuid.New()
		products.On("FindByID", mock.Anything, productID).Return(nil, errors.New("catalog down"))

		_, err = svc.AddItem(ctx, c.ID, AddItemInput{ProductID: productID, Quantity: 1, ExpectedVersion: c.Version})
		assert.EqualError(t, err, "catalog down")
		products.AssertExpectations(t)
	})
}

func TestCartService_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	c, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
	c, err := f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 1, ExpectedVersion: c.Version})
	require.NoError(t, err)
	c, err = f.service.AddItem(ctx, c.ID, AddItemInput{ProductID: f.gadget.ID, Quantity: 1, ExpectedVersion: c.Version})
	require.NoError(t, err)

	c, err = f.service.UpdateItemQuantity(ctx, c.ID, UpdateItemInput{ProductID: f.widget.ID, Quantity: 9, ExpectedVersion: c.Version})
	require.NoError(t, err)
	assert.Equal(t, 5, c.FindItem(f.widget.ID).Quantity)

	c, err = f.service.UpdateItemQuantity(ctx, c.ID, UpdateItemInput{ProductID: f.widget.ID, Quantity: 0, ExpectedVersion: c.Version})
	require.NoError(t, err)
	assert.Nil(t, c.FindItem(f.widget.ID))

	c, err = f.service.RemoveItem(ctx, c.ID, f.gadget.ID, c.Version)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = f.service.RemoveItem(ctx, c.ID, f.gadget.ID, c.Version-1)
	var conflict *shared.VersionConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestCartService_EnsureOwner(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	owner := cart.UserIdentity(uuid.New())
	c, _ := f.service.GetOrCreate(ctx, owner)

	_, err := f.service.EnsureOwner(ctx, c.ID, owner)
	assert.NoError(t, err)

	_, err = f.service.EnsureOwner(ctx, c.ID, cart.GuestIdentity("someone-else"))
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCartService_MergeGuestCart(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*cartFixture, *cart.Cart, *cart.Cart) {
		f := newCartFixture(t)
		guest, _ := f.service.GetOrCreate(ctx, cart.GuestIdentity("guest"))
		guest, err := f.service.AddItem(ctx, guest.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 3, ExpectedVersion: guest.Version})
		require.NoError(t, err)

		user, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))
		user, err = f.service.AddItem(ctx, user.ID, AddItemInput{ProductID: f.widget.ID, Quantity: 1, ExpectedVersion: user.Version})
		require.NoError(t, err)
		user, err = f.service.AddItem(ctx, user.ID, AddItemInput{ProductID: f.gadget.ID, Quantity: 2, ExpectedVersion: user.Version})
		require.NoError(t, err)
		return f, guest, user
	}

	t.Run("sums quantities and closes guest cart", func(t *testing.T) {
		f, guest, user := setup(t)

		merged, err := f.service.MergeGuestCart(ctx, guest.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, merged.FindItem(f.widget.ID).Quantity)
		assert.Equal(t, 2, merged.FindItem(f.gadget.ID).Quantity)

		storedGuest, _ := f.carts.FindByID(ctx, guest.ID)
		assert.True(t, storedGuest.Closed)
	})

	t.Run("second merge is a no-op", func(t *testing.T) {
		f, guest, user := setup(t)

		first, err := f.service.MergeGuestCart(ctx, guest.ID, user.ID)
		require.NoError(t, err)
		second, err := f.service.MergeGuestCart(ctx, guest.ID, user.ID)
		require.NoError(t, err)

		assert.Equal(t, first.Version, second.Version)
		assert.Equal(t, 4, second.FindItem(f.widget.ID).Quantity)
	})

	t.Run("merged quantity capped at stock", func(t *testing.T) {
		f, guest, user := setup(t)
		f.widget.Stock = 3
		f.products.Put(f.widget)

		merged, err := f.service.MergeGuestCart(ctx, guest.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, merged.FindItem(f.widget.ID).Quantity)
	})

	t.Run("source must be a guest cart", func(t *testing.T) {
		f, _, user := setup(t)
		other, _ := f.service.GetOrCreate(ctx, cart.UserIdentity(uuid.New()))

		_, err := f.service.MergeGuestCart(ctx, other.ID, user.ID)
		var verr *shared.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}
