package checkout

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	domaincheckout "github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
)

func TestSplitter_Partition(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	s3, err := vendor.NewStore(uuid.New(), "Store Three", "acct_s3", "free")
	require.NoError(t, err)
	require.NoError(t, f.stores.Create(ctx, s3))
	stores := []*vendor.Store{f.s1, f.s2, s3}

	for run := 0; run < 20; run++ {
		c, err := cart.NewCart(cart.GuestIdentity(uuid.NewString()), "USD")
		require.NoError(t, err)
		for i := 0; i < 1+rng.Intn(8); i++ {
			store := stores[rng.Intn(len(stores))]
			p, err := catalog.NewProduct(store.ID, "item", decimal.NewFromInt(int64(1+rng.Intn(50))), "USD", 100)
			require.NoError(t, err)
			f.products.Put(p)
			_, err = c.AddItem(cart.NewItem{ProductID: p.ID, StoreID: store.ID, Quantity: 1 + rng.Intn(3), UnitPrice: p.Price}, 100)
			require.NoError(t, err)
		}

		subs, err := f.splitter.Split(ctx, c, destination, nil)
		require.NoError(t, err)

		seen := map[uuid.UUID]bool{}
		total := decimal.Zero
		itemCount := 0
		for _, sub := range subs {
			assert.False(t, seen[sub.StoreID], "store appears in two sub-orders")
			seen[sub.StoreID] = true
			lineSum := decimal.Zero
			for _, item := range sub.Items {
				assert.Equal(t, sub.StoreID, item.StoreID)
				lineSum = lineSum.Add(item.LineTotal())
			}
			assert.True(t, sub.Subtotal.Equal(lineSum))
			total = total.Add(sub.Subtotal)
			itemCount += len(sub.Items)
		}
		assert.Equal(t, len(c.Items), itemCount)
		assert.True(t, c.Subtotal().Equal(total))
		assert.Equal(t, c.StoreIDs(), storeOrder(subs))
	}
}

func storeOrder(subs []domaincheckout.SubOrder) []uuid.UUID {
	out := make([]uuid.UUID, len(subs))
	for i, s := range subs {
		out[i] = s.StoreID
	}
	return out
}

func TestSplitter_ItemValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(f *checkoutFixture, c *cart.Cart)
		reason string
	}{
		{"product removed", func(_ *checkoutFixture, c *cart.Cart) {
			c.Items[0].ProductID = uuid.New()
		}, domaincheckout.ReasonProductNotFound},
		{"product deactivated", func(f *checkoutFixture, _ *cart.Cart) {
			f.p1.Active = false
			f.products.Put(f.p1)
		}, domaincheckout.ReasonNotPurchasable},
		{"stock below quantity", func(f *checkoutFixture, _ *cart.Cart) {
			f.p1.Stock = 1
			f.products.Put(f.p1)
		}, domaincheckout.ReasonInsufficientStock},
		{"product moved to another store", func(f *checkoutFixture, _ *cart.Cart) {
			f.p1.StoreID = f.s2.ID
			f.products.Put(f.p1)
		}, domaincheckout.ReasonStoreMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			c := f.newCart(t)
			tt.mutate(f, c)

			_, err := f.splitter.Split(ctx, c, destination, nil)
			var unavailable *domaincheckout.ItemUnavailableError
			require.ErrorAs(t, err, &unavailable)
			assert.Equal(t, tt.reason, unavailable.Reason)
		})
	}
}

func TestSplitter_ShippingSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("cheapest by default", func(t *testing.T) {
		f := newCheckoutFixture(t)
		subs, err := f.splitter.Split(ctx, f.newCart(t), destination, nil)
		require.NoError(t, err)
		assert.Equal(t, "usps:priority", subs[0].Shipping.ID())
		assert.False(t, subs[0].ShippingDegraded)
	})

	t.Run("selection honored per store", func(t *testing.T) {
		f := newCheckoutFixture(t)
		subs, err := f.splitter.Split(ctx, f.newCart(t), destination, map[uuid.UUID]string{f.s1.ID: "ups:ground"})
		require.NoError(t, err)
		assert.Equal(t, "ups:ground", subs[0].Shipping.ID())
		assert.True(t, subs[0].Total().Equal(decimal.NewFromInt(28)))
		assert.Equal(t, "usps:priority", subs[1].Shipping.ID())
	})

	t.Run("unknown selection rejected", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_, err := f.splitter.Split(ctx, f.newCart(t), destination, map[uuid.UUID]string{f.s1.ID: "dhl:express"})
		var verr *shared.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("degraded quote replaces stale selection", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.rates.degraded = true
		subs, err := f.splitter.Split(ctx, f.newCart(t), destination, map[uuid.UUID]string{f.s1.ID: "ups:ground"})
		require.NoError(t, err)
		assert.True(t, subs[0].ShippingDegraded)
		assert.Equal(t, "flat:standard", subs[0].Shipping.ID())
	})

	t.Run("quoted in the cart currency", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_, err := f.splitter.Split(ctx, f.newCart(t), destination, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"USD", "USD"}, f.rates.requested)
	})

	t.Run("options in another currency rejected", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.rates.currency = "EUR"
		subs, err := f.splitter.Split(ctx, f.newCart(t), destination, nil)
		var verr *shared.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Nil(t, subs)
	})
}

func TestSplitter_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	c, err := cart.NewCart(cart.GuestIdentity("guest-token-123"), "USD")
	require.NoError(t, err)
	_, err = f.splitter.Split(context.Background(), c, destination, nil)
	var verr *shared.ValidationError
	assert.ErrorAs(t, err, &verr)
}
