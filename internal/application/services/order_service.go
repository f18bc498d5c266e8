package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/domain/ids"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// Order pricing rules
const (
	OrderTaxRate          = 0.08
	FreeShippingThreshold = 50000
	ShippingCost          = 5000
	DeliveryWindow        = 48 * time.Hour
)

// OrderService handles online orders
type OrderService struct {
	orderRepo ports.OrderRepository
	userRepo  ports.UserRepository
	carts     *CartService
	logger    *logger.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(orderRepo ports.OrderRepository, userRepo ports.UserRepository, carts *CartService, logger *logger.Logger) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		carts:     carts,
		logger:    logger,
		now:       time.Now,
	}
}

var _ ports.OrderService = (*OrderService)(nil)

// Create places an order from the user's cart and empties the cart
func (s *OrderService) Create(ctx context.Context, user *ports.Claims, req ports.CreateOrderRequest) (*entities.Order, error) {
	cart, err := s.carts.Get(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, entities.ErrEmptyCart
	}

	now := s.now().UTC()
	subtotal := cart.Subtotal()
	tax := round2(subtotal * OrderTaxRate)
	shipping := float64(ShippingCost)
	if subtotal >= FreeShippingThreshold {
		shipping = 0
	}

	order := &entities.Order{
		ID:              ids.New(ids.PrefixOrder),
		UserID:          user.UserID,
		UserEmail:       user.Email,
		Status:          entities.OrderStatusPending,
		Items:           cart.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentInfo: entities.PaymentInfo{
			Method:        req.PaymentMethod,
			TransactionID: "TXN-" + uuid.NewString(),
			Status:        "completed",
			PaidAt:        now,
		},
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Discount:     0,
		Total:        round2(subtotal + tax + shipping),
		Notes:        req.Notes,
		Tracking: entities.Tracking{Events: []entities.TrackingEvent{{
			Status:      entities.OrderStatusPending,
			Description: entities.OrderStatusPending.Description(),
			Timestamp:   now,
		}}},
		EstimatedDelivery: now.Add(DeliveryWindow),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if u, err := s.userRepo.GetByID(ctx, user.UserID); err == nil {
		order.UserName = u.Name
	}

	_, err = s.orderRepo.Modify(ctx, func(orders []*entities.Order) ([]*entities.Order, error) {
		order.OrderNumber = fmt.Sprintf("ORD-%d-%04d", now.Year(), len(orders)+1)
		return append(orders, order), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.carts.Clear(ctx, user.UserID); err != nil {
		s.logger.WithError(err).Warnw("Failed to clear cart after order", "user_id", user.UserID, "order_id", order.ID)
	}

	s.logger.LogUserAction(user.UserID, "create_order", map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total,
	})
	return order, nil
}

// List returns the caller's orders, newest first. Staff see every order.
func (s *OrderService) List(ctx context.Context, user *ports.Claims) ([]*entities.Order, error) {
	orders, err := s.orderRepo.List(ctx, func(o *entities.Order) bool {
		return user.IsStaff() || o.UserID == user.UserID
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// Get returns one order visible to the caller
func (s *OrderService) Get(ctx context.Context, user *ports.Claims, id string) (*entities.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsStaff() && order.UserID != user.UserID {
		return nil, entities.ErrOrderNotFound
	}
	return order, nil
}

// Cancel cancels a pending or confirmed order
func (s *OrderService) Cancel(ctx context.Context, user *ports.Claims, id string) (*entities.Order, error) {
	order, err := s.transition(ctx, id, func(o *entities.Order) error {
		if !user.IsStaff() && o.UserID != user.UserID {
			return entities.ErrOrderNotFound
		}
		return o.Cancel(s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.logger.LogUserAction(user.UserID, "cancel_order", map[string]interface{}{"order_id": id})
	return order, nil
}

// Track returns the tracking history of an order
func (s *OrderService) Track(ctx context.Context, user *ports.Claims, id string) (*entities.Tracking, error) {
	order, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return &order.Tracking, nil
}

// UpdateStatus moves an order to a new status and records a tracking event
func (s *OrderService) UpdateStatus(ctx context.Context, id string, req ports.UpdateOrderStatusRequest) (*entities.Order, error) {
	if !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: status %q", ErrValidation, req.Status)
	}
	description := req.Description
	if description == "" {
		description = req.Status.Description()
	}

	order, err := s.transition(ctx, id, func(o *entities.Order) error {
		return o.TransitionTo(req.Status, description, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Order status updated", "order_id", id, "status", req.Status)
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, id string, fn func(*entities.Order) error) (*entities.Order, error) {
	var result *entities.Order
	_, err := s.orderRepo.Modify(ctx, func(orders []*entities.Order) ([]*entities.Order, error) {
		for _, o := range orders {
			if o.ID != id {
				continue
			}
			if err := fn(o); err != nil {
				return nil, err
			}
			result = o
			return orders, nil
		}
		return nil, entities.ErrOrderNotFound
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
