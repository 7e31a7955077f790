package cart

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketplace/backend/internal/domain/shared"
)

// AggregateTypeCart is the aggregate type name for carts
const AggregateTypeCart = "Cart"

// Identity identifies the owner of a cart: a signed-in user or an anonymous guest token.
// Exactly one of the two is set.
type Identity struct {
	UserID     *uuid.UUID
	GuestToken string
}

// UserIdentity returns the identity of a signed-in user
func UserIdentity(userID uuid.UUID) Identity {
	return Identity{UserID: &userID}
}

// GuestIdentity returns the identity of an anonymous visitor
func GuestIdentity(token string) Identity {
	return Identity{GuestToken: strings.TrimSpace(token)}
}

// Validate checks that exactly one identity kind is present
func (i Identity) Validate() error {
	hasUser := i.UserID != nil && *i.UserID != uuid.Nil
	hasGuest := i.GuestToken != ""
	if hasUser == hasGuest {
		return shared.NewValidationError("identity", "exactly one of user id or guest token is required")
	}
	if hasGuest && len(i.GuestToken) > 128 {
		return shared.NewValidationError("guest_token", "must not exceed 128 characters")
	}
	return nil
}

// IsGuest reports whether the identity is an anonymous guest
func (i Identity) IsGuest() bool {
	return i.UserID == nil
}

// Key returns the persisted identity key. At most one open cart exists per key.
func (i Identity) Key() string {
	if i.UserID != nil {
		return "user:" + i.UserID.String()
	}
	return "guest:" + i.GuestToken
}

// CartItem is a line in a cart. StoreID is a reference only; the store is re-validated at checkout.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	StoreID   uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal // price observed when the item was added
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineTotal returns quantity * unit price
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewItem describes an item to add to a cart
type NewItem struct {
	ProductID uuid.UUID
	StoreID   uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// Validate checks the item fields
func (n NewItem) Validate() error {
	if n.ProductID == uuid.Nil {
		return shared.NewValidationError("product_id", "is required")
	}
	if n.StoreID == uuid.Nil {
		return shared.NewValidationError("store_id", "is required")
	}
	if n.Quantity <= 0 {
		return shared.NewValidationError("quantity", "must be positive")
	}
	if n.UnitPrice.IsNegative() {
		return shared.NewValidationError("unit_price", "cannot be negative")
	}
	return nil
}

// Cart is the buyer's mutable pre-checkout collection of line items.
// CheckoutID is set while a checkout is in flight and the cart is then read-only.
type Cart struct {
	shared.BaseAggregateRoot
	IdentityKey       string
	UserID            *uuid.UUID
	GuestToken        string
	Currency          string
	Items             []CartItem
	Closed            bool
	ClosedAt          *time.Time
	CheckoutID        *uuid.UUID
	CheckoutAttempt   int
	CheckoutStartedAt *time.Time
	MergedFrom        []uuid.UUID
}

// NewCart creates an empty open cart for the identity
func NewCart(identity Identity, currency string) (*Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if currency == "" {
		return nil, shared.NewValidationError("currency", "is required")
	}
	c := &Cart{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		IdentityKey:       identity.Key(),
		UserID:            identity.UserID,
		GuestToken:        identity.GuestToken,
		Currency:          strings.ToUpper(currency),
		Items:             make([]CartItem, 0),
	}
	return c, nil
}

// IsLocked reports whether a checkout is in flight
func (c *Cart) IsLocked() bool {
	return c.CheckoutID != nil
}

// IsGuest reports whether the cart belongs to an anonymous visitor
func (c *Cart) IsGuest() bool {
	return c.UserID == nil
}

// ensureEditable rejects edits on closed or locked carts
func (c *Cart) ensureEditable() error {
	if c.Closed {
		return ErrCartClosed
	}
	if c.CheckoutID != nil {
		return &CartLockedError{CartID: c.ID, CheckoutID: *c.CheckoutID}
	}
	return nil
}

// CheckVersion returns a VersionConflictError if expected does not match the current version
func (c *Cart) CheckVersion(expected int) error {
	if c.Version != expected {
		return shared.NewVersionConflictError(AggregateTypeCart, c.ID.String(), expected, c.Version)
	}
	return nil
}

// FindItem returns the line for a product, or nil
func (c *Cart) FindItem(productID uuid.UUID) *CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// AddItem adds a product or increments the quantity of an existing line.
// The resulting quantity is capped at maxQuantity, the stock reported by the catalog.
// A line that would end up with zero quantity is rejected as unavailable.
func (c *Cart) AddItem(item NewItem, maxQuantity int) (*CartItem, error) {
	if err := c.ensureEditable(); err != nil {
		return nil, err
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if maxQuantity <= 0 {
		return nil, shared.ErrInsufficientStock
	}

	now := time.Now()
	if existing := c.FindItem(item.ProductID); existing != nil {
		existing.Quantity = min(existing.Quantity+item.Quantity, maxQuantity)
		existing.UpdatedAt = now
		c.UpdatedAt = now
		return existing, nil
	}

	c.Items = append(c.Items, CartItem{
		ID:        uuid.New(),
		CartID:    c.ID,
		ProductID: item.ProductID,
		StoreID:   item.StoreID,
		Quantity:  min(item.Quantity, maxQuantity),
		UnitPrice: item.UnitPrice,
		Position:  c.nextPosition(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	c.UpdatedAt = now
	return &c.Items[len(c.Items)-1], nil
}

// SetItemQuantity sets an absolute quantity for a line, capped at maxQuantity. Zero removes the line.
func (c *Cart) SetItemQuantity(productID uuid.UUID, quantity, maxQuantity int) error {
	if err := c.ensureEditable(); err != nil {
		return err
	}
	if quantity < 0 {
		return shared.NewValidationError("quantity", "cannot be negative")
	}
	if quantity == 0 {
		return c.RemoveItem(productID)
	}
	item := c.FindItem(productID)
	if item == nil {
		return shared.NewDomainError("ITEM_NOT_FOUND", "Product is not in the cart")
	}
	if maxQuantity <= 0 {
		return shared.ErrInsufficientStock
	}
	item.Quantity = min(quantity, maxQuantity)
	item.UpdatedAt = time.Now()
	c.UpdatedAt = item.UpdatedAt
	return nil
}

// RemoveItem removes the line for a product
func (c *Cart) RemoveItem(productID uuid.UUID) error {
	if err := c.ensureEditable(); err != nil {
		return err
	}
	for idx, item := range c.Items {
		if item.ProductID == productID {
			c.Items = slices.Delete(c.Items, idx, idx+1)
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return shared.NewDomainError("ITEM_NOT_FOUND", "Product is not in the cart")
}

// HasMerged reports whether the source cart was already merged into this cart
func (c *Cart) HasMerged(sourceID uuid.UUID) bool {
	return slices.Contains(c.MergedFrom, sourceID)
}

// Merge folds the source cart's lines into this cart. Overlapping products have their
// quantities summed, then capped by maxQuantity(productID). The source id is recorded as a
// merge marker so repeating the merge is a no-op. Returns false when nothing was merged.
func (c *Cart) Merge(source *Cart, maxQuantity func(productID uuid.UUID) int) (bool, error) {
	if c.HasMerged(source.ID) {
		return false, nil
	}
	if source.ID == c.ID {
		return false, shared.NewValidationError("guest_cart_id", "cannot merge a cart into itself")
	}
	if err := c.ensureEditable(); err != nil {
		return false, err
	}
	if source.IsLocked() {
		return false, &CartLockedError{CartID: source.ID, CheckoutID: *source.CheckoutID}
	}
	if source.Closed {
		return false, ErrCartClosed
	}

	now := time.Now()
	for _, src := range source.Items {
		limit := maxQuantity(src.ProductID)
		if existing := c.FindItem(src.ProductID); existing != nil {
			existing.Quantity = min(existing.Quantity+src.Quantity, max(limit, 0))
			existing.UpdatedAt = now
			continue
		}
		qty := min(src.Quantity, max(limit, 0))
		c.Items = append(c.Items, CartItem{
			ID:        uuid.New(),
			CartID:    c.ID,
			ProductID: src.ProductID,
			StoreID:   src.StoreID,
			Quantity:  qty,
			UnitPrice: src.UnitPrice,
			Position:  c.nextPosition(),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	c.Items = slices.DeleteFunc(c.Items, func(i CartItem) bool { return i.Quantity <= 0 })
	c.MergedFrom = append(c.MergedFrom, source.ID)
	c.UpdatedAt = now
	return true, nil
}

// StartCheckout locks the cart for the checkout attempt
func (c *Cart) StartCheckout(checkoutID uuid.UUID) error {
	if err := c.ensureEditable(); err != nil {
		return err
	}
	if len(c.Items) == 0 {
		return shared.NewValidationError("items", "cart is empty")
	}
	now := time.Now()
	c.CheckoutID = &checkoutID
	c.CheckoutStartedAt = &now
	c.UpdatedAt = now
	return nil
}

// AbortCheckout clears the checkout marker and starts a new attempt generation
func (c *Cart) AbortCheckout() error {
	if c.Closed {
		return ErrCartClosed
	}
	if c.CheckoutID == nil {
		return shared.NewDomainError("NO_CHECKOUT_IN_PROGRESS", "Cart has no checkout in progress")
	}
	c.CheckoutID = nil
	c.CheckoutStartedAt = nil
	c.CheckoutAttempt++
	c.UpdatedAt = time.Now()
	return nil
}

// Close finalizes the cart. Closing a closed cart is a no-op.
func (c *Cart) Close() {
	if c.Closed {
		return
	}
	now := time.Now()
	c.Closed = true
	c.ClosedAt = &now
	c.CheckoutID = nil
	c.CheckoutStartedAt = nil
	c.UpdatedAt = now
}

// StoreIDs returns the distinct stores in item order
func (c *Cart) StoreIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, item := range c.Items {
		if !slices.Contains(ids, item.StoreID) {
			ids = append(ids, item.StoreID)
		}
	}
	return ids
}

// ItemCount returns the total quantity across lines
func (c *Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal returns the sum of line totals at add-time prices
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) nextPosition() int {
	pos := 0
	for _, item := range c.Items {
		if item.Position >= pos {
			pos = item.Position + 1
		}
	}
	return pos
}
