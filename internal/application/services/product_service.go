package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/domain/ids"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// ProductService handles catalogue operations
type ProductService struct {
	productRepo ports.ProductRepository
	logger      *logger.Logger
	now         func() time.Time
}

// NewProductService creates a new product service
func NewProductService(productRepo ports.ProductRepository, logger *logger.Logger) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		logger:      logger,
		now:         time.Now,
	}
}

var _ ports.ProductService = (*ProductService)(nil)

// List returns one page of products matching the filter
func (s *ProductService) List(ctx context.Context, filter ports.ProductFilter) ([]*entities.Product, ports.PageMeta, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products, err := s.productRepo.List(ctx, func(p *entities.Product) bool {
		if filter.Category != "" && filter.Category != "all" && p.Category != filter.Category {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			return false
		}
		return true
	})
	if err != nil {
		return nil, ports.PageMeta{}, fmt.Errorf("failed to list products: %w", err)
	}

	sortProducts(products, filter.SortBy, filter.SortOrder)

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	meta := ports.NewPageMeta(page, limit, len(products))
	start := (page - 1) * limit
	if start >= len(products) {
		return []*entities.Product{}, meta, nil
	}
	end := min(start+limit, len(products))
	return products[start:end], meta, nil
}

func sortProducts(products []*entities.Product, sortBy, order string) {
	var less func(a, b *entities.Product) bool
	switch sortBy {
	case "name":
		less = func(a, b *entities.Product) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "price":
		less = func(a, b *entities.Product) bool { return a.Price < b.Price }
	case "rating":
		less = func(a, b *entities.Product) bool { return a.Rating < b.Rating }
	case "stock":
		less = func(a, b *entities.Product) bool { return a.Stock < b.Stock }
	case "createdAt":
		less = func(a, b *entities.Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return
	}
	if order == "desc" {
		asc := less
		less = func(a, b *entities.Product) bool { return asc(b, a) }
	}
	sort.SliceStable(products, func(i, j int) bool { return less(products[i], products[j]) })
}

// Featured returns the featured products
func (s *ProductService) Featured(ctx context.Context) ([]*entities.Product, error) {
	products, err := s.productRepo.List(ctx, func(p *entities.Product) bool { return p.IsFeatured })
	if err != nil {
		return nil, fmt.Errorf("failed to list featured products: %w", err)
	}
	return products, nil
}

// Get returns one product
func (s *ProductService) Get(ctx context.Context, id string) (*entities.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

// Create adds a product to the catalogue
func (s *ProductService) Create(ctx context.Context, req ports.CreateProductRequest) (*entities.Product, error) {
	product := &entities.Product{
		ID:                 ids.New(ids.PrefixProduct),
		Name:               req.Name,
		Description:        req.Description,
		Price:              req.Price,
		ImageURL:           req.ImageURL,
		Category:           req.Category,
		Stock:              req.Stock,
		IsAvailable:        true,
		IsFeatured:         req.IsFeatured,
		CompatibleToppings: req.CompatibleToppings,
		CreatedAt:          s.now().UTC(),
	}
	if product.CompatibleToppings == nil {
		product.CompatibleToppings = []string{}
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Infow("Product created successfully", "product_id", product.ID, "name", product.Name)
	return product, nil
}

// Update changes the fields present in req
func (s *ProductService) Update(ctx context.Context, id string, req ports.UpdateProductRequest) (*entities.Product, error) {
	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Price != nil {
		fields["price"] = *req.Price
	}
	if req.ImageURL != nil {
		fields["imageUrl"] = *req.ImageURL
	}
	if req.Category != nil {
		fields["category"] = *req.Category
	}
	if req.Stock != nil {
		fields["stock"] = *req.Stock
	}
	if req.IsAvailable != nil {
		fields["isAvailable"] = *req.IsAvailable
	}
	if req.IsFeatured != nil {
		fields["isFeatured"] = *req.IsFeatured
	}
	if req.CompatibleToppings != nil {
		fields["compatibleToppings"] = *req.CompatibleToppings
	}

	product, err := s.productRepo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Product updated successfully", "product_id", id, "fields", len(fields))
	return product, nil
}

// Delete removes a product
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Product deleted successfully", "product_id", id)
	return nil
}

// AdjustStock adds delta to a product's stock. The result may not go negative.
func (s *ProductService) AdjustStock(ctx context.Context, id string, delta int) (*entities.Product, error) {
	var adjusted *entities.Product
	_, err := s.productRepo.Modify(ctx, func(products []*entities.Product) ([]*entities.Product, error) {
		for _, p := range products {
			if p.ID != id {
				continue
			}
			if p.Stock+delta < 0 {
				return nil, fmt.Errorf("%w: %s has %d", entities.ErrInsufficientStock, p.Name, p.Stock)
			}
			p.Stock += delta
			p.UpdatedAt = s.now().UTC()
			adjusted = p
			return products, nil
		}
		return nil, entities.ErrProductNotFound
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}
