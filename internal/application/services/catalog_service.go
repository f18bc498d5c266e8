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

// SupplierService manages suppliers
type SupplierService struct {
	supplierRepo ports.SupplierRepository
	logger       *logger.Logger
	now          func() time.Time
}

// NewSupplierService creates a new supplier service
func NewSupplierService(supplierRepo ports.SupplierRepository, logger *logger.Logger) *SupplierService {
	return &SupplierService{supplierRepo: supplierRepo, logger: logger, now: time.Now}
}

var _ ports.SupplierService = (*SupplierService)(nil)

func (s *SupplierService) Create(ctx context.Context, req ports.SupplierRequest) (*entities.Supplier, error) {
	supplier := &entities.Supplier{
		ID:          ids.New(ids.PrefixSupplier),
		Name:        req.Name,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.supplierRepo.Create(ctx, supplier); err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}
	s.logger.Infow("Supplier created", "supplier_id", supplier.ID, "name", supplier.Name)
	return supplier, nil
}

func (s *SupplierService) Get(ctx context.Context, id string) (*entities.Supplier, error) {
	return s.supplierRepo.GetByID(ctx, id)
}

func (s *SupplierService) List(ctx context.Context) ([]*entities.Supplier, error) {
	return s.supplierRepo.List(ctx, nil)
}

func (s *SupplierService) Update(ctx context.Context, id string, req ports.SupplierRequest) (*entities.Supplier, error) {
	fields := map[string]any{
		"name":        req.Name,
		"contactName": req.ContactName,
		"email":       req.Email,
		"phone":       req.Phone,
	}
	if req.Address != nil {
		fields["address"] = req.Address
	}
	if req.IsActive != nil {
		fields["isActive"] = *req.IsActive
	}
	return s.supplierRepo.Update(ctx, id, fields)
}

func (s *SupplierService) Delete(ctx context.Context, id string) error {
	if err := s.supplierRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Supplier deleted", "supplier_id", id)
	return nil
}

// RoleService manages named roles. Names are unique, case-insensitively.
type RoleService struct {
	roleRepo ports.RoleRepository
	logger   *logger.Logger
	now      func() time.Time
}

// NewRoleService creates a new role service
func NewRoleService(roleRepo ports.RoleRepository, logger *logger.Logger) *RoleService {
	return &RoleService{roleRepo: roleRepo, logger: logger, now: time.Now}
}

var _ ports.RoleService = (*RoleService)(nil)

func (s *RoleService) Create(ctx context.Context, req ports.RoleRequest) (*entities.Role, error) {
	role := &entities.Role{
		ID:          ids.New(ids.PrefixRole),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Permissions: req.Permissions,
		CreatedAt:   s.now().UTC(),
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}

	_, err := s.roleRepo.Modify(ctx, func(roles []*entities.Role) ([]*entities.Role, error) {
		if nameTaken(roles, role.Name, "") {
			return nil, entities.ErrRoleNameTaken
		}
		return append(roles, role), nil
	})
	if err != nil {
		if errors.Is(err, entities.ErrRoleNameTaken) {
			return nil, entities.ErrRoleNameTaken
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	s.logger.Infow("Role created", "role_id", role.ID, "name", role.Name)
	return role, nil
}

func (s *RoleService) Get(ctx context.Context, id string) (*entities.Role, error) {
	return s.roleRepo.GetByID(ctx, id)
}

func (s *RoleService) List(ctx context.Context) ([]*entities.Role, error) {
	return s.roleRepo.List(ctx, nil)
}

func (s *RoleService) Update(ctx context.Context, id string, req ports.RoleRequest) (*entities.Role, error) {
	name := strings.TrimSpace(req.Name)
	var updated *entities.Role
	_, err := s.roleRepo.Modify(ctx, func(roles []*entities.Role) ([]*entities.Role, error) {
		if nameTaken(roles, name, id) {
			return nil, entities.ErrRoleNameTaken
		}
		for _, r := range roles {
			if r.ID != id {
				continue
			}
			r.Name = name
			r.Description = req.Description
			if req.Permissions != nil {
				r.Permissions = req.Permissions
			}
			updated = r
			return roles, nil
		}
		return nil, entities.ErrRoleNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RoleService) Delete(ctx context.Context, id string) error {
	if err := s.roleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Role deleted", "role_id", id)
	return nil
}

func nameTaken(roles []*entities.Role, name, exceptID string) bool {
	for _, r := range roles {
		if r.ID != exceptID && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}
