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

// SaleTaxRate is applied to point-of-sale transactions.
const SaleTaxRate = 0.19

// SaleService records point-of-sale transactions
type SaleService struct {
	saleRepo    ports.SaleRepository
	productRepo ports.ProductRepository
	userRepo    ports.UserRepository
	logger      *logger.Logger
	now         func() time.Time
}

// NewSaleService creates a new sale service
func NewSaleService(saleRepo ports.SaleRepository, productRepo ports.ProductRepository, userRepo ports.UserRepository, logger *logger.Logger) *SaleService {
	return &SaleService{
		saleRepo:    saleRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		logger:      logger,
		now:         time.Now,
	}
}

var _ ports.SaleService = (*SaleService)(nil)

// Create decrements stock for every item and records the sale. Stock is
// checked and decremented in one step, so either every line is taken or
// none is.
func (s *SaleService) Create(ctx context.Context, cashier *ports.Claims, req ports.CreateSaleRequest) (*entities.Sale, error) {
	if len(req.Items) == 0 {
		return nil, entities.ErrNoItems
	}

	wanted := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, entities.ErrInvalidQuantity
		}
		if _, seen := wanted[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}

	var lines []entities.SaleItem
	now := s.now().UTC()
	_, err := s.productRepo.Modify(ctx, func(products []*entities.Product) ([]*entities.Product, error) {
		byID := make(map[string]*entities.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		lines = lines[:0]
		for _, id := range order {
			p, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", entities.ErrProductNotFound, id)
			}
			if err := p.CanSell(wanted[id]); err != nil {
				return nil, fmt.Errorf("%w: %s", err, p.Name)
			}
		}
		for _, id := range order {
			p := byID[id]
			p.Stock -= wanted[id]
			p.UpdatedAt = now
			lines = append(lines, entities.SaleItem{
				ProductID:    p.ID,
				ProductName:  p.Name,
				ProductPrice: p.Price,
				Category:     p.Category,
				Quantity:     wanted[id],
				Subtotal:     p.Price * float64(wanted[id]),
			})
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}

	var subtotal float64
	for _, line := range lines {
		subtotal += line.Subtotal
	}
	tax := round2(subtotal * SaleTaxRate)

	sale := &entities.Sale{
		ID:            ids.New(ids.PrefixSale),
		UserID:        cashier.UserID,
		Items:         lines,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         round2(subtotal + tax),
		PaymentMethod: req.PaymentMethod,
		Status:        "completed",
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CreatedAt:     s.now().UTC(),
	}
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = "cash"
	}
	if u, err := s.userRepo.GetByID(ctx, cashier.UserID); err == nil {
		sale.UserName = u.Name
		if sale.CustomerName == "" {
			sale.CustomerName = u.Name
		}
	}
	if sale.CustomerEmail == "" {
		sale.CustomerEmail = cashier.Email
	}

	if err := s.saleRepo.Create(ctx, sale); err != nil {
		s.restock(ctx, wanted)
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}

	s.logger.LogUserAction(cashier.UserID, "create_sale", map[string]interface{}{
		"sale_id": sale.ID,
		"total":   sale.Total,
		"items":   len(lines),
	})
	return sale, nil
}

// restock returns stock taken by a sale that could not be recorded.
func (s *SaleService) restock(ctx context.Context, taken map[string]int) {
	_, err := s.productRepo.Modify(ctx, func(products []*entities.Product) ([]*entities.Product, error) {
		now := s.now().UTC()
		for _, p := range products {
			if n, ok := taken[p.ID]; ok {
				p.Stock += n
				p.UpdatedAt = now
			}
		}
		return products, nil
	})
	if err != nil {
		s.logger.WithError(err).Errorw("Failed to restore stock after failed sale", "products", len(taken))
	}
}

// List returns sales created within r, newest first
func (s *SaleService) List(ctx context.Context, r ports.DateRange) ([]*entities.Sale, error) {
	sales, err := s.saleRepo.List(ctx, func(sale *entities.Sale) bool { return r.Contains(sale.CreatedAt) })
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	sort.SliceStable(sales, func(i, j int) bool { return sales[i].CreatedAt.After(sales[j].CreatedAt) })
	return sales, nil
}

// Get returns one sale
func (s *SaleService) Get(ctx context.Context, id string) (*entities.Sale, error) {
	return s.saleRepo.GetByID(ctx, id)
}
