package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cremosos/core/internal/application/services"
	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

// ClaimsKey is the echo context key holding the caller's *ports.Claims.
const ClaimsKey = "claims"

// Response is the envelope every API endpoint answers with
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse documents failed responses
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message" example:"product not found"`
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Response{Success: true, Data: data})
}

func okMessage(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, Response{Success: true, Message: message})
}

// StatusOf maps service and storage errors to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, entities.ErrUserNotFound),
		errors.Is(err, entities.ErrProductNotFound),
		errors.Is(err, entities.ErrOrderNotFound),
		errors.Is(err, entities.ErrSaleNotFound),
		errors.Is(err, entities.ErrPurchaseNotFound),
		errors.Is(err, entities.ErrSupplierNotFound),
		errors.Is(err, entities.ErrRoleNotFound),
		errors.Is(err, entities.ErrCartItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrEmailTaken), errors.Is(err, entities.ErrRoleNameTaken):
		return http.StatusConflict
	case errors.Is(err, entities.ErrInvalidCredentials), errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, entities.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, storage.ErrInvalidRecord),
		errors.Is(err, entities.ErrEmptyCart),
		errors.Is(err, entities.ErrProductUnavailable),
		errors.Is(err, entities.ErrInsufficientStock),
		errors.Is(err, entities.ErrInvalidQuantity),
		errors.Is(err, entities.ErrInvalidStatus),
		errors.Is(err, entities.ErrOrderNotCancelable),
		errors.Is(err, entities.ErrAlreadyReceived),
		errors.Is(err, entities.ErrNoItems):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail converts err into an HTTP error. Server-side failures are logged and
// answered with a generic message.
func fail(c echo.Context, log *logger.Logger, action string, err error) error {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorw(action+" failed", "error", err, "path", c.Request().URL.Path)
		if status == http.StatusServiceUnavailable {
			return echo.NewHTTPError(status, "Storage temporarily unavailable").SetInternal(err)
		}
		return echo.NewHTTPError(status, "Internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}

// bind decodes and validates the request body into req
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// ClaimsFrom returns the claims stored by the auth middleware, or nil.
func ClaimsFrom(c echo.Context) *ports.Claims {
	claims, _ := c.Get(ClaimsKey).(*ports.Claims)
	return claims
}

func requireClaims(c echo.Context) (*ports.Claims, error) {
	claims := ClaimsFrom(c)
	if claims == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return claims, nil
}

// dateRange reads the optional from/to query parameters. Both accept
// RFC 3339 timestamps or plain dates; a plain "to" date includes that day.
func dateRange(c echo.Context) (ports.DateRange, error) {
	var r ports.DateRange
	var err error
	if r.From, err = parseDate(c.QueryParam("from"), false); err != nil {
		return r, echo.NewHTTPError(http.StatusBadRequest, "Invalid from date")
	}
	if r.To, err = parseDate(c.QueryParam("to"), true); err != nil {
		return r, echo.NewHTTPError(http.StatusBadRequest, "Invalid to date")
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, echo.NewHTTPError(http.StatusBadRequest, "from must be before to")
	}
	return r, nil
}

func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// AuthHandler handles authentication and profile requests
type AuthHandler struct {
	authService ports.AuthService
	logger      *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService ports.AuthService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Login handles user login
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.LoginRequest true "Credentials"
// @Success 200 {object} Response{data=ports.AuthResponse}
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req ports.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	response, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		h.logger.Infow("Login failed", "email", req.Email, "ip", c.RealIP())
		return fail(c, h.logger, "Login", err)
	}

	return ok(c, http.StatusOK, response)
}

// Register creates a customer account
// @Summary Register a customer
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.RegisterRequest true "New account"
// @Success 201 {object} Response{data=ports.AuthResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req ports.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	response, err := h.authService.Register(c.Request().Context(), req)
	if err != nil {
		return fail(c, h.logger, "Register", err)
	}

	return ok(c, http.StatusCreated, response)
}

// Profile returns the caller's profile
// @Summary Current user profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=entities.PublicUser}
// @Failure 401 {object} ErrorResponse
// @Router /users/profile [get]
func (h *AuthHandler) Profile(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}

	user, err := h.authService.Profile(c.Request().Context(), claims.UserID)
	if err != nil {
		return fail(c, h.logger, "Get profile", err)
	}

	return ok(c, http.StatusOK, user)
}

// UpdateProfile updates the caller's name, phone or address
// @Summary Update current user profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} Response{data=entities.PublicUser}
// @Failure 400 {object} ErrorResponse
// @Router /users/profile [put]
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}

	var req ports.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.authService.UpdateProfile(c.Request().Context(), claims.UserID, req)
	if err != nil {
		return fail(c, h.logger, "Update profile", err)
	}

	return ok(c, http.StatusOK, user)
}
