package ports

import (
	"context"
	"time"

	"github.com/cremosos/core/internal/domain/entities"
)

// Repository defines typed access to one store collection. Records are
// addressed by their string id.
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	GetByID(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, id string, fields map[string]any) (*T, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter func(*T) bool) ([]*T, error)
	Count(ctx context.Context, filter func(*T) bool) (int, error)
	// Modify runs fn over the whole collection under its write lock and
	// stores the returned slice. An error from fn leaves the data untouched.
	Modify(ctx context.Context, fn func([]*T) ([]*T, error)) ([]*T, error)
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Repository[entities.User]
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
}

type (
	ProductRepository  = Repository[entities.Product]
	CartRepository     = Repository[entities.Cart]
	OrderRepository    = Repository[entities.Order]
	SaleRepository     = Repository[entities.Sale]
	PurchaseRepository = Repository[entities.Purchase]
	SupplierRepository = Repository[entities.Supplier]
	RoleRepository     = Repository[entities.Role]
)

// Repositories groups every collection repository the services depend on.
type Repositories struct {
	Users     UserRepository
	Products  ProductRepository
	Carts     CartRepository
	Orders    OrderRepository
	Sales     SaleRepository
	Purchases PurchaseRepository
	Suppliers SupplierRepository
	Roles     RoleRepository
}

// Filter types for repository queries
type ProductFilter struct {
	Category  string `query:"category"`
	Search    string `query:"search"`
	SortBy    string `query:"sortBy" validate:"omitempty,oneof=name price rating stock createdAt"`
	SortOrder string `query:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Page      int    `query:"page" validate:"omitempty,min=1"`
	Limit     int    `query:"limit" validate:"omitempty,min=1"`
}

// DateRange bounds reports and listings by creation time. Zero bounds are
// open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the range. To is exclusive.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

// NewPageMeta computes pagination metadata for total items.
func NewPageMeta(page, limit, total int) PageMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return PageMeta{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  pages,
		HasNext:     page < pages,
		HasPrevious: page > 1,
	}
}
