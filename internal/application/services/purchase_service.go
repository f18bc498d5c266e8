package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/domain/ids"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// PurchaseService handles stock purchases from suppliers
type PurchaseService struct {
	purchaseRepo ports.PurchaseRepository
	supplierRepo ports.SupplierRepository
	productRepo  ports.ProductRepository
	logger       *logger.Logger
	now          func() time.Time
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(purchaseRepo ports.PurchaseRepository, supplierRepo ports.SupplierRepository, productRepo ports.ProductRepository, logger *logger.Logger) *PurchaseService {
	return &PurchaseService{
		purchaseRepo: purchaseRepo,
		supplierRepo: supplierRepo,
		productRepo:  productRepo,
		logger:       logger,
		now:          time.Now,
	}
}

var _ ports.PurchaseService = (*PurchaseService)(nil)

// Create records a pending purchase. Stock changes only on Receive.
func (s *PurchaseService) Create(ctx context.Context, buyer *ports.Claims, req ports.CreatePurchaseRequest) (*entities.Purchase, error) {
	if len(req.Items) == 0 {
		return nil, entities.ErrNoItems
	}
	supplier, err := s.supplierRepo.GetByID(ctx, req.SupplierID)
	if err != nil {
		return nil, err
	}

	purchase := &entities.Purchase{
		ID:           ids.New(ids.PrefixPurchase),
		SupplierID:   supplier.ID,
		SupplierName: supplier.Name,
		Status:       entities.PurchaseStatusPending,
		Notes:        req.Notes,
		CreatedBy:    buyer.UserID,
		CreatedAt:    s.now().UTC(),
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, entities.ErrInvalidQuantity
		}
		product, err := s.productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		line := entities.PurchaseItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitCost:    item.UnitCost,
			Subtotal:    round2(item.UnitCost * float64(item.Quantity)),
		}
		purchase.Items = append(purchase.Items, line)
		purchase.Total += line.Subtotal
	}
	purchase.Total = round2(purchase.Total)

	if err := s.purchaseRepo.Create(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	s.logger.Infow("Purchase created", "purchase_id", purchase.ID, "supplier_id", supplier.ID, "total", purchase.Total)
	return purchase, nil
}

// Receive marks a purchase received and adds its quantities to stock
func (s *PurchaseService) Receive(ctx context.Context, id string) (*entities.Purchase, error) {
	var received *entities.Purchase
	_, err := s.purchaseRepo.Modify(ctx, func(purchases []*entities.Purchase) ([]*entities.Purchase, error) {
		for _, p := range purchases {
			if p.ID != id {
				continue
			}
			if err := p.Receive(s.now().UTC()); err != nil {
				return nil, err
			}
			received = p
			return purchases, nil
		}
		return nil, entities.ErrPurchaseNotFound
	})
	if err != nil {
		return nil, err
	}

	added := make(map[string]int, len(received.Items))
	for _, item := range received.Items {
		added[item.ProductID] += item.Quantity
	}
	_, err = s.productRepo.Modify(ctx, func(products []*entities.Product) ([]*entities.Product, error) {
		now := s.now().UTC()
		for _, p := range products {
			if n, ok := added[p.ID]; ok {
				p.Stock += n
				p.UpdatedAt = now
			}
		}
		return products, nil
	})
	if err != nil {
		return nil, fmt.Errorf("purchase %s received but stock not updated: %w", id, err)
	}

	s.logger.Infow("Purchase received", "purchase_id", id, "products", len(added))
	return received, nil
}

// List returns all purchases, newest first
func (s *PurchaseService) List(ctx context.Context) ([]*entities.Purchase, error) {
	purchases, err := s.purchaseRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	sort.SliceStable(purchases, func(i, j int) bool { return purchases[i].CreatedAt.After(purchases[j].CreatedAt) })
	return purchases, nil
}

// Get returns one purchase
func (s *PurchaseService) Get(ctx context.Context, id string) (*entities.Purchase, error) {
	return s.purchaseRepo.GetByID(ctx, id)
}
