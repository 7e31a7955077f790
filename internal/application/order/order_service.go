package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/marketplace/backend/internal/domain/order"
	"github.com/marketplace/backend/internal/domain/shared"
)

// OrderService serves read-only order queries
type OrderService struct {
	orderRepo order.OrderRepository
}

// NewOrderService creates a new OrderService
func NewOrderService(orderRepo order.OrderRepository) *OrderService {
	return &OrderService{orderRepo: orderRepo}
}

// GetByID returns an order by id
func (s *OrderService) GetByID(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(o)
	return &resp, nil
}

// ListByCart returns every order created from the cart's checkout
func (s *OrderService) ListByCart(ctx context.Context, cartID uuid.UUID) ([]OrderResponse, error) {
	orders, err := s.orderRepo.FindByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return ToOrderResponses(orders), nil
}

// ListByStore returns a page of a store's orders, newest first
func (s *OrderService) ListByStore(ctx context.Context, storeID uuid.UUID, filter shared.Filter) (shared.Paginated[OrderResponse], error) {
	filter = filter.Normalize()
	orders, total, err := s.orderRepo.FindByStore(ctx, storeID, filter)
	if err != nil {
		return shared.Paginated[OrderResponse]{}, err
	}
	return shared.NewPaginated(ToOrderResponses(orders), total, filter.Page, filter.PageSize), nil
}
