package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/cart"
	"github.com/marketplace/backend/internal/domain/catalog"
	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/payment"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/vendor"
)

// MemoryCartRepository is an in-memory cart.CartRepository with the same optimistic
// locking semantics as the database implementation.
type MemoryCartRepository struct {
	mu    sync.Mutex
	carts map[uuid.UUID]*cart.Cart

	// SaveHook, when set, runs before every SaveWithLock and can inject failures.
	SaveHook func(c *cart.Cart) error
}

// NewMemoryCartRepository creates an empty repository.
func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[uuid.UUID]*cart.Cart)}
}

func copyCart(c *cart.Cart) *cart.Cart {
	out := *c
	out.Items = slices.Clone(c.Items)
	out.MergedFrom = slices.Clone(c.MergedFrom)
	out.ClearDomainEvents()
	return &out
}

// FindByID implements cart.CartRepository.
func (r *MemoryCartRepository) FindByID(_ context.Context, id uuid.UUID) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyCart(c), nil
}

// FindOpenByIdentity implements cart.CartRepository.
func (r *MemoryCartRepository) FindOpenByIdentity(_ context.Context, identityKey string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.carts {
		if c.IdentityKey == identityKey && !c.Closed {
			return copyCart(c), nil
		}
	}
	return nil, shared.ErrNotFound
}

// Create implements cart.CartRepository.
func (r *MemoryCartRepository) Create(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.carts {
		if existing.IdentityKey == c.IdentityKey && !existing.Closed {
			return shared.ErrAlreadyExists
		}
	}
	r.carts[c.ID] = copyCart(c)
	return nil
}

// SaveWithLock implements cart.CartRepository.
func (r *MemoryCartRepository) SaveWithLock(_ context.Context, c *cart.Cart) error {
	if r.SaveHook != nil {
		if err := r.SaveHook(c); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.carts[c.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != c.Version {
		return shared.NewVersionConflictError(cart.AggregateTypeCart, c.ID.String(), c.Version, stored.Version)
	}
	c.IncrementVersion()
	c.UpdatedAt = time.Now()
	r.carts[c.ID] = copyCart(c)
	return nil
}

// MarkClosed implements cart.CartRepository.
func (r *MemoryCartRepository) MarkClosed(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[id]
	if !ok {
		return false, shared.ErrNotFound
	}
	if c.Closed {
		return false, nil
	}
	c.Closed = true
	c.ClosedAt = &at
	c.CheckoutID = nil
	c.CheckoutStartedAt = nil
	c.IncrementVersion()
	c.UpdatedAt = at
	return true, nil
}

var _ cart.CartRepository = (*MemoryCartRepository)(nil)

// MemoryProductRepository is an in-memory catalog.ProductRepository.
type MemoryProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*catalog.Product
}

// NewMemoryProductRepository creates a repository holding the given products.
func NewMemoryProductRepository(products ...*catalog.Product) *MemoryProductRepository {
	r := &MemoryProductRepository{products: make(map[uuid.UUID]*catalog.Product)}
	for _, p := range products {
		r.Put(p)
	}
	return r
}

// Put inserts or replaces a product, bypassing any checks.
func (r *MemoryProductRepository) Put(p *catalog.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
}

// FindByID implements catalog.ProductRepository.
func (r *MemoryProductRepository) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// FindByIDs implements catalog.ProductRepository.
func (r *MemoryProductRepository) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

// FindByStore implements catalog.ProductRepository.
func (r *MemoryProductRepository) FindByStore(_ context.Context, storeID uuid.UUID) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.Product, 0)
	for _, p := range r.products {
		if p.StoreID == storeID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountByStore implements catalog.ProductRepository.
func (r *MemoryProductRepository) CountByStore(_ context.Context, storeID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.products {
		if p.StoreID == storeID {
			n++
		}
	}
	return n, nil
}

// Create implements catalog.ProductRepository.
func (r *MemoryProductRepository) Create(_ context.Context, p *catalog.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; ok {
		return shared.ErrAlreadyExists
	}
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

// DecrementStock implements catalog.ProductRepository.
func (r *MemoryProductRepository) DecrementStock(_ context.Context, id uuid.UUID, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Stock = max(p.Stock-qty, 0)
	return nil
}

var _ catalog.ProductRepository = (*MemoryProductRepository)(nil)

// MemoryStoreRepository is an in-memory vendor.StoreRepository.
type MemoryStoreRepository struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*vendor.Store
}

// NewMemoryStoreRepository creates a repository holding the given stores.
func NewMemoryStoreRepository(stores ...*vendor.Store) *MemoryStoreRepository {
	r := &MemoryStoreRepository{stores: make(map[uuid.UUID]*vendor.Store)}
	for _, s := range stores {
		cp := *s
		r.stores[s.ID] = &cp
	}
	return r
}

// FindByID implements vendor.StoreRepository.
func (r *MemoryStoreRepository) FindByID(_ context.Context, id uuid.UUID) (*vendor.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// FindByOwner implements vendor.StoreRepository.
func (r *MemoryStoreRepository) FindByOwner(_ context.Context, ownerID uuid.UUID) ([]vendor.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vendor.Store, 0)
	for _, s := range r.stores {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountByOwner implements vendor.StoreRepository.
func (r *MemoryStoreRepository) CountByOwner(_ context.Context, ownerID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.stores {
		if s.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// Create implements vendor.StoreRepository.
func (r *MemoryStoreRepository) Create(_ context.Context, s *vendor.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[s.ID]; ok {
		return shared.ErrAlreadyExists
	}
	cp := *s
	r.stores[s.ID] = &cp
	return nil
}

// SaveWithLock implements vendor.StoreRepository.
func (r *MemoryStoreRepository) SaveWithLock(_ context.Context, s *vendor.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.stores[s.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != s.Version {
		return shared.NewVersionConflictError(vendor.AggregateTypeStore, s.ID.String(), s.Version, stored.Version)
	}
	s.IncrementVersion()
	cp := *s
	r.stores[s.ID] = &cp
	return nil
}

var _ vendor.StoreRepository = (*MemoryStoreRepository)(nil)

// MemorySubscriptionRepository is an in-memory vendor.SubscriptionRepository.
type MemorySubscriptionRepository struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*vendor.Subscription
}

// NewMemorySubscriptionRepository creates an empty repository.
func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[uuid.UUID]*vendor.Subscription)}
}

// FindByOwner implements vendor.SubscriptionRepository.
func (r *MemorySubscriptionRepository) FindByOwner(_ context.Context, ownerID uuid.UUID) (*vendor.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[ownerID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// FindByProviderSubscriptionID implements vendor.SubscriptionRepository.
func (r *MemorySubscriptionRepository) FindByProviderSubscriptionID(_ context.Context, providerSubscriptionID string) (*vendor.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ProviderSubscriptionID == providerSubscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

// Upsert implements vendor.SubscriptionRepository.
func (r *MemorySubscriptionRepository) Upsert(_ context.Context, s *vendor.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.subs[s.OwnerID] = &cp
	return nil
}

var _ vendor.SubscriptionRepository = (*MemorySubscriptionRepository)(nil)

// MemoryPaymentIntentRepository is an in-memory payment.PaymentIntentRepository.
type MemoryPaymentIntentRepository struct {
	mu      sync.Mutex
	intents map[uuid.UUID]*payment.PaymentIntent
}

// NewMemoryPaymentIntentRepository creates an empty repository.
func NewMemoryPaymentIntentRepository() *MemoryPaymentIntentRepository {
	return &MemoryPaymentIntentRepository{intents: make(map[uuid.UUID]*payment.PaymentIntent)}
}

func copyIntent(p *payment.PaymentIntent) *payment.PaymentIntent {
	out := *p
	out.Snapshot.Items = slices.Clone(p.Snapshot.Items)
	out.ClearDomainEvents()
	return &out
}

func (r *MemoryPaymentIntentRepository) find(match func(*payment.PaymentIntent) bool) (*payment.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.intents {
		if match(p) {
			return copyIntent(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *MemoryPaymentIntentRepository) list(match func(*payment.PaymentIntent) bool) []payment.PaymentIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]payment.PaymentIntent, 0)
	for _, p := range r.intents {
		if match(p) {
			out = append(out, *copyIntent(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FindByID implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) FindByID(_ context.Context, id uuid.UUID) (*payment.PaymentIntent, error) {
	return r.find(func(p *payment.PaymentIntent) bool { return p.ID == id })
}

// FindByProviderIntentID implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) FindByProviderIntentID(_ context.Context, providerIntentID string) (*payment.PaymentIntent, error) {
	return r.find(func(p *payment.PaymentIntent) bool { return p.ProviderIntentID == providerIntentID })
}

// FindByIdempotencyKey implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) FindByIdempotencyKey(_ context.Context, key string) (*payment.PaymentIntent, error) {
	return r.find(func(p *payment.PaymentIntent) bool { return p.IdempotencyKey == key })
}

// FindByCheckout implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) FindByCheckout(_ context.Context, checkoutID uuid.UUID) ([]payment.PaymentIntent, error) {
	return r.list(func(p *payment.PaymentIntent) bool { return p.CheckoutID == checkoutID }), nil
}

// FindByCart implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) FindByCart(_ context.Context, cartID uuid.UUID) ([]payment.PaymentIntent, error) {
	return r.list(func(p *payment.PaymentIntent) bool { return p.CartID == cartID }), nil
}

// Create implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) Create(_ context.Context, p *payment.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.intents {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return shared.ErrAlreadyExists
		}
	}
	r.intents[p.ID] = copyIntent(p)
	return nil
}

// SaveWithLock implements payment.PaymentIntentRepository.
func (r *MemoryPaymentIntentRepository) SaveWithLock(_ context.Context, p *payment.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.intents[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != p.Version {
		return shared.NewVersionConflictError(payment.AggregateTypePaymentIntent, p.ID.String(), p.Version, stored.Version)
	}
	p.IncrementVersion()
	r.intents[p.ID] = copyIntent(p)
	return nil
}

// All returns every stored intent.
func (r *MemoryPaymentIntentRepository) All() []payment.PaymentIntent {
	return r.list(func(*payment.PaymentIntent) bool { return true })
}

var _ payment.PaymentIntentRepository = (*MemoryPaymentIntentRepository)(nil)

// MemoryOrderRepository is an in-memory order.OrderRepository keyed by (payment intent, store).
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
}

// NewMemoryOrderRepository creates an empty repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[uuid.UUID]*order.Order)}
}

func copyOrder(o *order.Order) *order.Order {
	out := *o
	out.Items = slices.Clone(o.Items)
	out.ClearDomainEvents()
	return &out
}

// FindByID implements order.OrderRepository.
func (r *MemoryOrderRepository) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyOrder(o), nil
}

// FindByPaymentIntentAndStore implements order.OrderRepository.
func (r *MemoryOrderRepository) FindByPaymentIntentAndStore(_ context.Context, paymentIntentID, storeID uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentIntentID == paymentIntentID && o.StoreID == storeID {
			return copyOrder(o), nil
		}
	}
	return nil, shared.ErrNotFound
}

// FindByCart implements order.OrderRepository.
func (r *MemoryOrderRepository) FindByCart(_ context.Context, cartID uuid.UUID) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Order, 0)
	for _, o := range r.orders {
		if o.CartID == cartID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindByStore implements order.OrderRepository.
func (r *MemoryOrderRepository) FindByStore(_ context.Context, storeID uuid.UUID, filter shared.Filter) ([]order.Order, int64, error) {
	filter = filter.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]order.Order, 0)
	for _, o := range r.orders {
		if o.StoreID == storeID {
			all = append(all, *copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := min(filter.Offset(), len(all))
	end := min(start+filter.PageSize, len(all))
	return all[start:end], total, nil
}

// CreateIfAbsent implements order.OrderRepository.
func (r *MemoryOrderRepository) CreateIfAbsent(_ context.Context, o *order.Order) (*order.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.PaymentIntentID == o.PaymentIntentID && existing.StoreID == o.StoreID {
			return copyOrder(existing), false, nil
		}
	}
	r.orders[o.ID] = copyOrder(o)
	return o, true, nil
}

// Count returns the number of stored orders.
func (r *MemoryOrderRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

var _ order.OrderRepository = (*MemoryOrderRepository)(nil)
