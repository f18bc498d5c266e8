package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// StockAdjustRequest moves a product's stock by Delta units
type StockAdjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// ProductHandler handles catalogue requests
type ProductHandler struct {
	productService ports.ProductService
	logger         *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(productService ports.ProductService, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// ListProducts lists products with filtering, sorting and pagination
// @Summary List products
// @Tags products
// @Produce json
// @Param category query string false "Category, or all"
// @Param search query string false "Matches name or description"
// @Param sortBy query string false "name, price, rating, stock or createdAt"
// @Param sortOrder query string false "asc or desc"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} Response{data=[]entities.Product,meta=ports.PageMeta}
// @Router /products [get]
func (h *ProductHandler) ListProducts(c echo.Context) error {
	var filter ports.ProductFilter
	if err := bind(c, &filter); err != nil {
		return err
	}

	products, meta, err := h.productService.List(c.Request().Context(), filter)
	if err != nil {
		return fail(c, h.logger, "List products", err)
	}

	return c.JSON(http.StatusOK, Response{Success: true, Data: products, Meta: meta})
}

// Featured lists featured products
// @Summary Featured products
// @Tags products
// @Produce json
// @Success 200 {object} Response{data=[]entities.Product}
// @Router /products/featured [get]
func (h *ProductHandler) Featured(c echo.Context) error {
	products, err := h.productService.Featured(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "List featured products", err)
	}
	return ok(c, http.StatusOK, products)
}

// GetProduct returns one product
// @Summary Get product
// @Tags products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} Response{data=entities.Product}
// @Failure 404 {object} ErrorResponse
// @Router /products/{id} [get]
func (h *ProductHandler) GetProduct(c echo.Context) error {
	product, err := h.productService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Get product", err)
	}
	return ok(c, http.StatusOK, product)
}

// CreateProduct adds a product to the catalogue
// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.CreateProductRequest true "Product"
// @Success 201 {object} Response{data=entities.Product}
// @Failure 400 {object} ErrorResponse
// @Router /products [post]
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req ports.CreateProductRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	product, err := h.productService.Create(c.Request().Context(), req)
	if err != nil {
		return fail(c, h.logger, "Create product", err)
	}
	return ok(c, http.StatusCreated, product)
}

// UpdateProduct changes the given product fields
// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Param request body ports.UpdateProductRequest true "Fields to change"
// @Success 200 {object} Response{data=entities.Product}
// @Failure 404 {object} ErrorResponse
// @Router /products/{id} [put]
func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	var req ports.UpdateProductRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	product, err := h.productService.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return fail(c, h.logger, "Update product", err)
	}
	return ok(c, http.StatusOK, product)
}

// AdjustStock adds or removes stock units
// @Summary Adjust product stock
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Param request body StockAdjustRequest true "Stock delta"
// @Success 200 {object} Response{data=entities.Product}
// @Failure 400 {object} ErrorResponse
// @Router /products/{id}/stock [put]
func (h *ProductHandler) AdjustStock(c echo.Context) error {
	var req StockAdjustRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	product, err := h.productService.AdjustStock(c.Request().Context(), c.Param("id"), req.Delta)
	if err != nil {
		return fail(c, h.logger, "Adjust stock", err)
	}
	return ok(c, http.StatusOK, product)
}

// DeleteProduct removes a product
// @Summary Delete product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 200 {object} Response
// @Failure 404 {object} ErrorResponse
// @Router /products/{id} [delete]
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	if err := h.productService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, h.logger, "Delete product", err)
	}
	return okMessage(c, "Product deleted")
}

// SupplierHandler handles supplier management requests
type SupplierHandler struct {
	supplierService ports.SupplierService
	logger          *logger.Logger
}

// NewSupplierHandler creates a new supplier handler
func NewSupplierHandler(supplierService ports.SupplierService, logger *logger.Logger) *SupplierHandler {
	return &SupplierHandler{supplierService: supplierService, logger: logger}
}

// @Summary List suppliers
// @Tags suppliers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]entities.Supplier}
// @Router /suppliers [get]
func (h *SupplierHandler) List(c echo.Context) error {
	suppliers, err := h.supplierService.List(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "List suppliers", err)
	}
	return ok(c, http.StatusOK, suppliers)
}

// @Summary Create supplier
// @Tags suppliers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.SupplierRequest true "Supplier"
// @Success 201 {object} Response{data=entities.Supplier}
// @Router /suppliers [post]
func (h *SupplierHandler) Create(c echo.Context) error {
	var req ports.SupplierRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	supplier, err := h.supplierService.Create(c.Request().Context(), req)
	if err != nil {
		return fail(c, h.logger, "Create supplier", err)
	}
	return ok(c, http.StatusCreated, supplier)
}

// @Summary Get supplier
// @Tags suppliers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Supplier ID"
// @Success 200 {object} Response{data=entities.Supplier}
// @Failure 404 {object} ErrorResponse
// @Router /suppliers/{id} [get]
func (h *SupplierHandler) Get(c echo.Context) error {
	supplier, err := h.supplierService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Get supplier", err)
	}
	return ok(c, http.StatusOK, supplier)
}

// @Summary Update supplier
// @Tags suppliers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Supplier ID"
// @Param request body ports.SupplierRequest true "Supplier"
// @Success 200 {object} Response{data=entities.Supplier}
// @Router /suppliers/{id} [put]
func (h *SupplierHandler) Update(c echo.Context) error {
	var req ports.SupplierRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	supplier, err := h.supplierService.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return fail(c, h.logger, "Update supplier", err)
	}
	return ok(c, http.StatusOK, supplier)
}

// @Summary Delete supplier
// @Tags suppliers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Supplier ID"
// @Success 200 {object} Response
// @Router /suppliers/{id} [delete]
func (h *SupplierHandler) Delete(c echo.Context) error {
	if err := h.supplierService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, h.logger, "Delete supplier", err)
	}
	return okMessage(c, "Supplier deleted")
}

// RoleHandler handles role management requests
type RoleHandler struct {
	roleService ports.RoleService
	logger      *logger.Logger
}

// NewRoleHandler creates a new role handler
func NewRoleHandler(roleService ports.RoleService, logger *logger.Logger) *RoleHandler {
	return &RoleHandler{roleService: roleService, logger: logger}
}

// @Summary List roles
// @Tags roles
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]entities.Role}
// @Router /roles [get]
func (h *RoleHandler) List(c echo.Context) error {
	roles, err := h.roleService.List(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "List roles", err)
	}
	return ok(c, http.StatusOK, roles)
}

// @Summary Create role
// @Tags roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.RoleRequest true "Role"
// @Success 201 {object} Response{data=entities.Role}
// @Failure 409 {object} ErrorResponse
// @Router /roles [post]
func (h *RoleHandler) Create(c echo.Context) error {
	var req ports.RoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	role, err := h.roleService.Create(c.Request().Context(), req)
	if err != nil {
		return fail(c, h.logger, "Create role", err)
	}
	return ok(c, http.StatusCreated, role)
}

// @Summary Get role
// @Tags roles
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Success 200 {object} Response{data=entities.Role}
// @Router /roles/{id} [get]
func (h *RoleHandler) Get(c echo.Context) error {
	role, err := h.roleService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Get role", err)
	}
	return ok(c, http.StatusOK, role)
}

// @Summary Update role
// @Tags roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Param request body ports.RoleRequest true "Role"
// @Success 200 {object} Response{data=entities.Role}
// @Router /roles/{id} [put]
func (h *RoleHandler) Update(c echo.Context) error {
	var req ports.RoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	role, err := h.roleService.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return fail(c, h.logger, "Update role", err)
	}
	return ok(c, http.StatusOK, role)
}

// @Summary Delete role
// @Tags roles
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Success 200 {object} Response
// @Router /roles/{id} [delete]
func (h *RoleHandler) Delete(c echo.Context) error {
	if err := h.roleService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, h.logger, "Delete role", err)
	}
	return okMessage(c, "Role deleted")
}
