package checkout

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// EligibilityChecker decides whether a store may receive funds right now
type EligibilityChecker interface {
	EnsureVendorEligible(ctx context.Context, storeID uuid.UUID) (*vendor.Store, error)
}

// RateQuoter returns shipping options for one store's parcel
type RateQuoter interface {
	RatesForStore(ctx context.Context, store *vendor.Store, currency string, destination shipping.Destination, items []shipping.ParcelItem) ([]shipping.ShippingOption, error)
}

// Splitter partitions a cart into one sub-order per store. It re-validates every line against
// the live catalog and every store against the quota guard; any failure fails the whole split.
// Split never writes.
type Splitter struct {
	productRepo catalog.ProductRepository
	eligibility EligibilityChecker
	rates       RateQuoter
	logger      *zap.Logger
}

// NewSplitter creates a new Splitter
func NewSplitter(productRepo catalog.ProductRepository, eligibility EligibilityChecker, rates RateQuoter, logger *zap.Logger) *Splitter {
	return &Splitter{
		productRepo: productRepo,
		eligibility: eligibility,
		rates:       rates,
		logger:      logger,
	}
}

// Split groups the cart's items by store in first-seen order and prices each group.
// selections maps a store to the shipping option id the buyer picked; stores without a
// selection get the cheapest option.
func (s *Splitter) Split(ctx context.Context, c *cart.Cart, destination shipping.Destination, selections map[uuid.UUID]string) ([]checkout.SubOrder, error) {
	if len(c.Items) == 0 {
		return nil, shared.NewValidationError("items", "cart is empty")
	}

	ids := make([]uuid.UUID, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	groups := make([]*checkout.SubOrder, 0)
	byStore := make(map[uuid.UUID]*checkout.SubOrder)
	for _, item := range c.Items {
		if err := validateItem(item, products[item.ProductID]); err != nil {
			return nil, err
		}
		group, ok := byStore[item.StoreID]
		if !ok {
			group = &checkout.SubOrder{StoreID: item.StoreID, Subtotal: decimal.Zero, Currency: c.Currency}
			byStore[item.StoreID] = group
			groups = append(groups, group)
		}
		group.Items = append(group.Items, item)
		group.Subtotal = group.Subtotal.Add(item.LineTotal())
	}

	out := make([]checkout.SubOrder, 0, len(groups))
	for _, group := range groups {
		store, err := s.eligibility.EnsureVendorEligible(ctx, group.StoreID)
		if err != nil {
			return nil, err
		}
		group.PaymentAccountID = store.PaymentAccountID

		options, err := s.rates.RatesForStore(ctx, store, group.Currency, destination, group.ParcelItems())
		if err != nil {
			return nil, err
		}
		option, err := chooseOption(group.StoreID, group.Currency, options, selections[group.StoreID])
		if err != nil {
			return nil, err
		}
		group.Shipping = option
		group.ShippingDegraded = option.Degraded
		out = append(out, *group)
	}

	s.logger.Debug("Cart split",
		zap.String("cart_id", c.ID.String()),
		zap.Int("vendors", len(out)),
		zap.Int("items", len(c.Items)),
	)
	return out, nil
}

func validateItem(item cart.CartItem, product *catalog.Product) error {
	if product == nil {
		return &checkout.ItemUnavailableError{ProductID: item.ProductID, Reason: checkout.ReasonProductNotFound}
	}
	if product.StoreID != item.StoreID {
		return &checkout.ItemUnavailableError{ProductID: item.ProductID, Reason: checkout.ReasonStoreMismatch}
	}
	if !product.IsPurchasable() {
		return &checkout.ItemUnavailableError{ProductID: item.ProductID, Reason: checkout.ReasonNotPurchasable}
	}
	if product.AvailableQuantity() < item.Quantity {
		return &checkout.ItemUnavailableError{ProductID: item.ProductID, Reason: checkout.ReasonInsufficientStock}
	}
	if !product.Price.Equal(item.UnitPrice) {
		return &checkout.PriceMismatchError{ProductID: item.ProductID, CartPrice: item.UnitPrice, CurrentPrice: product.Price}
	}
	return nil
}

// chooseOption honors the buyer's selection. A selection that no longer exists is rejected,
// unless the quote degraded to the fallback rate, in which case the fallback is used.
// Only options priced in the sub-order's currency are eligible.
func chooseOption(storeID uuid.UUID, currency string, options []shipping.ShippingOption, selected string) (shipping.ShippingOption, error) {
	priced := make([]shipping.ShippingOption, 0, len(options))
	for _, o := range options {
		if strings.EqualFold(o.Currency, currency) {
			priced = append(priced, o)
		}
	}
	if len(priced) == 0 && len(options) > 0 {
		return shipping.ShippingOption{}, shared.NewValidationError("shipping", "no shipping option priced in "+currency)
	}
	options = priced

	if selected != "" {
		if option, ok := shipping.FindOption(options, selected); ok {
			return option, nil
		}
		if len(options) == 0 || !options[0].Degraded {
			return shipping.ShippingOption{}, shared.NewValidationError("shipping_selections."+storeID.String(), "unknown shipping option "+selected)
		}
	}
	option, ok := shipping.Cheapest(options)
	if !ok {
		return shipping.ShippingOption{}, shared.NewValidationError("shipping", "no shipping option available")
	}
	return option, nil
}
