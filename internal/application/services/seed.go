package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/domain/ids"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// SeedAdmin holds the credentials of the initial administrator
type SeedAdmin struct {
	Email    string
	Password string
	Name     string
}

// SeedResult counts what a seed run created
type SeedResult struct {
	Roles    int `json:"roles"`
	Users    int `json:"users"`
	Products int `json:"products"`
}

// Seeder loads the default roles, an administrator and the sample catalogue.
// Running it again only adds what is missing.
type Seeder struct {
	repos  ports.Repositories
	auth   *AuthService
	logger *logger.Logger
	now    func() time.Time
}

// NewSeeder creates a new seeder
func NewSeeder(repos ports.Repositories, auth *AuthService, logger *logger.Logger) *Seeder {
	return &Seeder{repos: repos, auth: auth, logger: logger, now: time.Now}
}

var defaultRoles = []entities.Role{
	{Name: "admin", Description: "Full access", Permissions: []string{"*"}},
	{Name: "employee", Description: "Point of sale and order handling", Permissions: []string{"sales", "orders", "reports"}},
	{Name: "customer", Description: "Online shop", Permissions: []string{"cart", "orders"}},
}

var sampleProducts = []entities.Product{
	{
		Name:               "Arroz con Leche Clásico",
		Description:        "Delicioso arroz con leche casero",
		Price:              8000,
		ImageURL:           "https://via.placeholder.com/200",
		Category:           "arroz_con_leche",
		Stock:              50,
		Rating:             4.5,
		ReviewsCount:       23,
		IsAvailable:        true,
		IsFeatured:         true,
		CompatibleToppings: []string{"top1", "top2"},
	},
	{
		Name:               "Fresas con Crema Premium",
		Description:        "Fresas frescas con crema batida",
		Price:              12000,
		ImageURL:           "https://via.placeholder.com/200",
		Category:           "fresas_con_crema",
		Stock:              30,
		Rating:             4.8,
		ReviewsCount:       45,
		IsAvailable:        true,
		IsFeatured:         true,
		CompatibleToppings: []string{"top1", "top3"},
	},
}

// Run seeds the store
func (s *Seeder) Run(ctx context.Context, admin SeedAdmin) (*SeedResult, error) {
	result := &SeedResult{}
	now := s.now().UTC()

	_, err := s.repos.Roles.Modify(ctx, func(roles []*entities.Role) ([]*entities.Role, error) {
		for _, def := range defaultRoles {
			if nameTaken(roles, def.Name, "") {
				continue
			}
			role := def
			role.ID = ids.New(ids.PrefixRole)
			role.CreatedAt = now
			roles = append(roles, &role)
			result.Roles++
		}
		return roles, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed roles: %w", err)
	}

	_, err = s.auth.CreateUser(ctx, ports.CreateUserRequest{
		Email:    admin.Email,
		Password: admin.Password,
		Name:     admin.Name,
		Role:     entities.UserRoleAdmin,
	})
	switch {
	case err == nil:
		result.Users++
	case errors.Is(err, entities.ErrEmailTaken):
	default:
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}

	_, err = s.repos.Products.Modify(ctx, func(products []*entities.Product) ([]*entities.Product, error) {
		for _, sample := range sampleProducts {
			if hasProduct(products, sample.Name) {
				continue
			}
			p := sample
			p.ID = ids.New(ids.PrefixProduct)
			p.CompatibleToppings = append([]string(nil), sample.CompatibleToppings...)
			p.CreatedAt = now
			products = append(products, &p)
			result.Products++
		}
		return products, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed products: %w", err)
	}

	s.logger.Infow("Seed complete", "roles", result.Roles, "users", result.Users, "products", result.Products)
	return result, nil
}

func hasProduct(products []*entities.Product, name string) bool {
	for _, p := range products {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}
