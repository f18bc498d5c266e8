package repository

import (
	"context"
	"fmt"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

// UserRepositoryImpl implements the UserRepository interface
type UserRepositoryImpl struct {
	*Collection[entities.User]
}

// NewUserRepository creates a new user repository
func NewUserRepository(store *storage.Store) *UserRepositoryImpl {
	return &UserRepositoryImpl{
		Collection: NewCollection(store, "users", entities.ErrUserNotFound, func(u *entities.User) string { return u.ID }),
	}
}

var _ ports.UserRepository = (*UserRepositoryImpl)(nil)

// GetByEmail looks a user up by normalized email.
func (r *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	email = entities.NormalizeEmail(email)
	users, err := r.List(ctx, func(u *entities.User) bool {
		return entities.NormalizeEmail(u.Email) == email
	})
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, r.missing(storage.ErrNotFound)
	}
	return users[0], nil
}

// NewRepositories wires a repository for every collection of the store.
func NewRepositories(store *storage.Store) ports.Repositories {
	return ports.Repositories{
		Users: NewUserRepository(store),
		Products: NewCollection(store, "products", entities.ErrProductNotFound,
			func(p *entities.Product) string { return p.ID }),
		Carts: NewCollection(store, "cart", nil,
			func(c *entities.Cart) string { return c.ID }),
		Orders: NewCollection(store, "orders", entities.ErrOrderNotFound,
			func(o *entities.Order) string { return o.ID }),
		Sales: NewCollection(store, "sales", entities.ErrSaleNotFound,
			func(s *entities.Sale) string { return s.ID }),
		Purchases: NewCollection(store, "purchases", entities.ErrPurchaseNotFound,
			func(p *entities.Purchase) string { return p.ID }),
		Suppliers: NewCollection(store, "suppliers", entities.ErrSupplierNotFound,
			func(s *entities.Supplier) string { return s.ID }),
		Roles: NewCollection(store, "roles", entities.ErrRoleNotFound,
			func(r *entities.Role) string { return r.ID }),
	}
}
