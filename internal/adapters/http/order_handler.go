package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// CartHandler handles the caller's shopping cart
type CartHandler struct {
	cartService ports.CartService
	logger      *logger.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService ports.CartService, logger *logger.Logger) *CartHandler {
	return &CartHandler{cartService: cartService, logger: logger}
}

// GetCart returns the caller's cart, empty when none exists yet
// @Summary Get cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=entities.Cart}
// @Router /cart [get]
func (h *CartHandler) GetCart(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	cart, err := h.cartService.Get(c.Request().Context(), claims.UserID)
	if err != nil {
		return fail(c, h.logger, "Get cart", err)
	}
	return ok(c, http.StatusOK, cart)
}

// AddItem adds a product line to the cart
// @Summary Add cart item
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.AddCartItemRequest true "Item"
// @Success 201 {object} Response{data=entities.Cart}
// @Failure 400 {object} ErrorResponse
// @Router /cart/items [post]
func (h *CartHandler) AddItem(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	var req ports.AddCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cart, err := h.cartService.AddItem(c.Request().Context(), claims.UserID, req)
	if err != nil {
		return fail(c, h.logger, "Add cart item", err)
	}
	return ok(c, http.StatusCreated, cart)
}

// UpdateItem changes a cart line's quantity
// @Summary Update cart item
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Cart item ID"
// @Param request body ports.UpdateCartItemRequest true "Quantity"
// @Success 200 {object} Response{data=entities.Cart}
// @Failure 404 {object} ErrorResponse
// @Router /cart/items/{id} [put]
func (h *CartHandler) UpdateItem(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	var req ports.UpdateCartItemRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cart, err := h.cartService.UpdateItem(c.Request().Context(), claims.UserID, c.Param("id"), req.Quantity)
	if err != nil {
		return fail(c, h.logger, "Update cart item", err)
	}
	return ok(c, http.StatusOK, cart)
}

// RemoveItem drops a cart line
// @Summary Remove cart item
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param id path string true "Cart item ID"
// @Success 200 {object} Response{data=entities.Cart}
// @Failure 404 {object} ErrorResponse
// @Router /cart/items/{id} [delete]
func (h *CartHandler) RemoveItem(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	cart, err := h.cartService.RemoveItem(c.Request().Context(), claims.UserID, c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Remove cart item", err)
	}
	return ok(c, http.StatusOK, cart)
}

// Clear empties the cart
// @Summary Clear cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /cart [delete]
func (h *CartHandler) Clear(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	if err := h.cartService.Clear(c.Request().Context(), claims.UserID); err != nil {
		return fail(c, h.logger, "Clear cart", err)
	}
	return okMessage(c, "Cart cleared")
}

// Sync replaces the cart with a client-side copy
// @Summary Sync cart
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.SyncCartRequest true "Items"
// @Success 200 {object} Response{data=entities.Cart}
// @Router /cart/sync [post]
func (h *CartHandler) Sync(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	var req ports.SyncCartRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cart, err := h.cartService.Sync(c.Request().Context(), claims.UserID, req.Items)
	if err != nil {
		return fail(c, h.logger, "Sync cart", err)
	}
	return ok(c, http.StatusOK, cart)
}

// OrderHandler handles online orders
type OrderHandler struct {
	orderService ports.OrderService
	logger       *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService ports.OrderService, logger *logger.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, logger: logger}
}

// CreateOrder checks out the caller's cart
// @Summary Create order from cart
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.CreateOrderRequest true "Checkout"
// @Success 201 {object} Response{data=entities.Order}
// @Failure 400 {object} ErrorResponse
// @Router /orders [post]
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	var req ports.CreateOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	order, err := h.orderService.Create(c.Request().Context(), claims, req)
	if err != nil {
		return fail(c, h.logger, "Create order", err)
	}
	return ok(c, http.StatusCreated, order)
}

// ListOrders lists orders visible to the caller
// @Summary List orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]entities.Order}
// @Router /orders [get]
func (h *OrderHandler) ListOrders(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	orders, err := h.orderService.List(c.Request().Context(), claims)
	if err != nil {
		return fail(c, h.logger, "List orders", err)
	}
	return ok(c, http.StatusOK, orders)
}

// GetOrder returns one order
// @Summary Get order
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} Response{data=entities.Order}
// @Failure 404 {object} ErrorResponse
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	order, err := h.orderService.Get(c.Request().Context(), claims, c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Get order", err)
	}
	return ok(c, http.StatusOK, order)
}

// CancelOrder cancels a pending or confirmed order
// @Summary Cancel order
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} Response{data=entities.Order}
// @Failure 400 {object} ErrorResponse
// @Router /orders/{id}/cancel [put]
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	order, err := h.orderService.Cancel(c.Request().Context(), claims, c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Cancel order", err)
	}
	return ok(c, http.StatusOK, order)
}

// TrackOrder returns an order's tracking history
// @Summary Track order
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} Response{data=entities.Tracking}
// @Router /orders/{id}/track [get]
func (h *OrderHandler) TrackOrder(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	tracking, err := h.orderService.Track(c.Request().Context(), claims, c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Track order", err)
	}
	return ok(c, http.StatusOK, tracking)
}

// UpdateStatus moves an order to a new status
// @Summary Update order status
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param request body ports.UpdateOrderStatusRequest true "Status"
// @Success 200 {object} Response{data=entities.Order}
// @Failure 400 {object} ErrorResponse
// @Router /orders/{id}/status [put]
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	var req ports.UpdateOrderStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	order, err := h.orderService.UpdateStatus(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return fail(c, h.logger, "Update order status", err)
	}
	if claims := ClaimsFrom(c); claims != nil {
		h.logger.LogUserAction(claims.UserID, "update_order_status", map[string]interface{}{
			"order_id": order.ID,
			"status":   order.Status,
		})
	}
	return ok(c, http.StatusOK, order)
}
