package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/checkout"
	"github.com/marketplace/backend/internal/domain/shared"
)

// Config holds cart service settings
type Config struct {
	Currency        string
	CatalogTimeout  time.Duration
	// MaxLineQuantity caps a single line regardless of stock. Zero means stock is the only cap.
	MaxLineQuantity int
}

// CartService owns cart state: creation, line edits and guest-to-user merges.
// Every edit is conditioned on the version the caller last observed.
type CartService struct {
	cartRepo    cart.CartRepository
	productRepo catalog.ProductRepository
	scope       TransactionScope
	config      Config
	logger      *zap.Logger
}

// NewCartService creates a new CartService
func NewCartService(cartRepo cart.CartRepository, productRepo catalog.ProductRepository, scope TransactionScope, cfg Config, logger *zap.Logger) *CartService {
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = 3 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		scope:       scope,
		config:      cfg,
		logger:      logger,
	}
}

// GetOrCreate returns the identity's open cart, creating an empty one if none exists
func (s *CartService) GetOrCreate(ctx context.Context, identity cart.Identity) (*cart.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.cartRepo.FindOpenByIdentity(ctx, identity.Key())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	c, err := cart.NewCart(identity, s.config.Currency)
	if err != nil {
		return nil, err
	}
	if err := s.cartRepo.Create(ctx, c); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// A concurrent request created the cart first
			return s.cartRepo.FindOpenByIdentity(ctx, identity.Key())
		}
		return nil, err
	}
	s.logger.Debug("Cart created", zap.String("cart_id", c.ID.String()), zap.Bool("guest", identity.IsGuest()))
	return c, nil
}

// EnsureOwner returns shared.ErrForbidden if the cart does not belong to the identity
func (s *CartService) EnsureOwner(ctx context.Context, cartID uuid.UUID, identity cart.Identity) (*cart.Cart, error) {
	c, err := s.cartRepo.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.IdentityKey != identity.Key() {
		return nil, shared.ErrForbidden
	}
	return c, nil
}

// AddItem adds a product to the cart at its current catalog price. Adding a product already in
// the cart increments its quantity. Quantities are capped at the catalog's remaining stock.
func (s *CartService) AddItem(ctx context.Context, cartID uuid.UUID, input AddItemInput) (*cart.Cart, error) {
	if input.Quantity <= 0 {
		return nil, shared.NewValidationError("quantity", "must be positive")
	}
	c, err := s.loadForEdit(ctx, cartID, input.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	product, err := s.findProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, &checkout.ItemUnavailableError{ProductID: product.ID, Reason: checkout.ReasonNotPurchasable}
	}
	if product.Currency != c.Currency {
		return nil, shared.NewValidationError("product_id", "product is priced in "+product.Currency)
	}

	if _, err := c.AddItem(cart.NewItem{
		ProductID: product.ID,
		StoreID:   product.StoreID,
		Quantity:  input.Quantity,
		UnitPrice: product.Price,
	}, s.lineLimit(product)); err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			return nil, &checkout.ItemUnavailableError{ProductID: product.ID, Reason: checkout.ReasonInsufficientStock}
		}
		return nil, err
	}

	if err := s.cartRepo.SaveWithLock(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateItemQuantity sets an absolute quantity for a product line. Zero removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, cartID uuid.UUID, input UpdateItemInput) (*cart.Cart, error) {
	if input.Quantity < 0 {
		return nil, shared.NewValidationError("quantity", "cannot be negative")
	}
	c, err := s.loadForEdit(ctx, cartID, input.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	maxQty := 0
	if input.Quantity > 0 {
		product, err := s.findProduct(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		maxQty = s.lineLimit(product)
	}
	if err := c.SetItemQuantity(input.ProductID, input.Quantity, maxQty); err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			return nil, &checkout.ItemUnavailableError{ProductID: input.ProductID, Reason: checkout.ReasonInsufficientStock}
		}
		return nil, err
	}

	if err := s.cartRepo.SaveWithLock(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem removes a product line from the cart
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID uuid.UUID, expectedVersion int) (*cart.Cart, error) {
	c, err := s.loadForEdit(ctx, cartID, expectedVersion)
	if err != nil {
		return nil, err
	}
	if err := c.RemoveItem(productID); err != nil {
		return nil, err
	}
	if err := s.cartRepo.SaveWithLock(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MergeGuestCart folds a guest cart into a user cart and closes the guest cart, atomically.
// Repeating the call with the same pair returns the user cart unchanged.
func (s *CartService) MergeGuestCart(ctx context.Context, guestCartID, userCartID uuid.UUID) (*cart.Cart, error) {
	var result *cart.Cart
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		userCart, err := repos.CartRepo().FindByID(ctx, userCartID)
		if err != nil {
			return err
		}
		if userCart.HasMerged(guestCartID) {
			result = userCart
			return nil
		}
		guestCart, err := repos.CartRepo().FindByID(ctx, guestCartID)
		if err != nil {
			return err
		}
		if !guestCart.IsGuest() {
			return shared.NewValidationError("guest_cart_id", "source cart does not belong to a guest")
		}

		stock, err := s.stockFor(ctx, repos.ProductRepo(), guestCart)
		if err != nil {
			return err
		}
		merged, err := userCart.Merge(guestCart, func(productID uuid.UUID) int {
			if p, ok := stock[productID]; ok {
				return s.lineLimit(p)
			}
			return 0
		})
		if err != nil {
			return err
		}
		if merged {
			guestCart.Close()
			if err := repos.CartRepo().SaveWithLock(ctx, guestCart); err != nil {
				return err
			}
			if err := repos.CartRepo().SaveWithLock(ctx, userCart); err != nil {
				return err
			}
		}
		result = userCart
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Guest cart merged",
		zap.String("guest_cart_id", guestCartID.String()),
		zap.String("user_cart_id", userCartID.String()),
		zap.Int("items", len(result.Items)),
	)
	return result, nil
}

func (s *CartService) loadForEdit(ctx context.Context, cartID uuid.UUID, expectedVersion int) (*cart.Cart, error) {
	c, err := s.cartRepo.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := c.CheckVersion(expectedVersion); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CartService) findProduct(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.CatalogTimeout)
	defer cancel()

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, &checkout.ItemUnavailableError{ProductID: productID, Reason: checkout.ReasonProductNotFound}
		}
		return nil, err
	}
	return product, nil
}

func (s *CartService) stockFor(ctx context.Context, repo catalog.ProductRepository, c *cart.Cart) (map[uuid.UUID]*catalog.Product, error) {
	ids := make([]uuid.UUID, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.CatalogTimeout)
	defer cancel()
	return repo.FindByIDs(ctx, ids)
}

func (s *CartService) lineLimit(p *catalog.Product) int {
	limit := p.AvailableQuantity()
	if s.config.MaxLineQuantity > 0 {
		limit = min(limit, s.config.MaxLineQuantity)
	}
	return limit
}
