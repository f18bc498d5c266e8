package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/domain/ids"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// CartService manages one cart per user in the cart collection
type CartService struct {
	cartRepo    ports.CartRepository
	productRepo ports.ProductRepository
	logger      *logger.Logger
	now         func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(cartRepo ports.CartRepository, productRepo ports.ProductRepository, logger *logger.Logger) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		logger:      logger,
		now:         time.Now,
	}
}

var _ ports.CartService = (*CartService)(nil)

// Get returns the user's cart, or an empty one
func (s *CartService) Get(ctx context.Context, userID string) (*entities.Cart, error) {
	carts, err := s.cartRepo.List(ctx, func(c *entities.Cart) bool { return c.ID == userID })
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(carts) == 0 {
		return s.empty(userID), nil
	}
	return carts[0], nil
}

// AddItem adds a product to the cart, snapshotting its name, image and price
func (s *CartService) AddItem(ctx context.Context, userID string, req ports.AddCartItemRequest) (*entities.Cart, error) {
	item, err := s.newItem(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, userID, true, func(cart *entities.Cart) error {
		cart.Items = append(cart.Items, item)
		return nil
	})
}

// UpdateItem sets the quantity of one item
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*entities.Cart, error) {
	if quantity <= 0 {
		return nil, entities.ErrInvalidQuantity
	}
	return s.modify(ctx, userID, false, func(cart *entities.Cart) error {
		i := cart.FindItem(itemID)
		if i < 0 {
			return entities.ErrCartItemNotFound
		}
		cart.Items[i].Quantity = quantity
		return nil
	})
}

// RemoveItem drops one item from the cart
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*entities.Cart, error) {
	return s.modify(ctx, userID, false, func(cart *entities.Cart) error {
		i := cart.FindItem(itemID)
		if i < 0 {
			return entities.ErrCartItemNotFound
		}
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		return nil
	})
}

// Clear empties the cart. Clearing a missing cart is not an error.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	_, err := s.modify(ctx, userID, false, func(cart *entities.Cart) error {
		cart.Items = []entities.CartItem{}
		return nil
	})
	if errors.Is(err, entities.ErrCartItemNotFound) {
		return nil
	}
	return err
}

// Sync replaces the cart contents with items, typically from a client that
// built the cart offline
func (s *CartService) Sync(ctx context.Context, userID string, reqs []ports.AddCartItemRequest) (*entities.Cart, error) {
	items := make([]entities.CartItem, 0, len(reqs))
	for _, req := range reqs {
		item, err := s.newItem(ctx, req)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	cart, err := s.modify(ctx, userID, true, func(cart *entities.Cart) error {
		cart.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Cart synchronized", "user_id", userID, "items", len(items))
	return cart, nil
}

func (s *CartService) newItem(ctx context.Context, req ports.AddCartItemRequest) (entities.CartItem, error) {
	if req.Quantity <= 0 {
		return entities.CartItem{}, entities.ErrInvalidQuantity
	}
	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return entities.CartItem{}, err
	}
	if !product.IsAvailable {
		return entities.CartItem{}, entities.ErrProductUnavailable
	}

	toppings := req.Toppings
	if toppings == nil {
		toppings = []string{}
	}
	return entities.CartItem{
		ID:           ids.New(ids.PrefixCartItem),
		ProductID:    product.ID,
		ProductName:  product.Name,
		ProductImage: product.ImageURL,
		ProductPrice: product.Price,
		Quantity:     req.Quantity,
		Toppings:     toppings,
		Notes:        req.Notes,
		CreatedAt:    s.now().UTC(),
	}, nil
}

// modify applies fn to the user's cart under the cart collection lock. When
// create is false a missing cart yields ErrCartItemNotFound.
func (s *CartService) modify(ctx context.Context, userID string, create bool, fn func(*entities.Cart) error) (*entities.Cart, error) {
	var result *entities.Cart
	_, err := s.cartRepo.Modify(ctx, func(carts []*entities.Cart) ([]*entities.Cart, error) {
		var cart *entities.Cart
		for _, c := range carts {
			if c.ID == userID {
				cart = c
				break
			}
		}
		if cart == nil {
			if !create {
				return nil, entities.ErrCartItemNotFound
			}
			cart = s.empty(userID)
			carts = append(carts, cart)
		}

		if err := fn(cart); err != nil {
			return nil, err
		}
		cart.UpdatedAt = s.now().UTC()
		result = cart
		return carts, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CartService) empty(userID string) *entities.Cart {
	return &entities.Cart{
		ID:        userID,
		UserID:    userID,
		Items:     []entities.CartItem{},
		UpdatedAt: s.now().UTC(),
	}
}
