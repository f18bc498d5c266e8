package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cremosos/core/internal/adapters/repository"
	"github.com/cremosos/core/internal/application/services"
	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/config"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/infrastructure/server"
	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

type harness struct {
	t       *testing.T
	handler http.Handler
	store   *storage.Store
	cfg     *config.Config
}

func testConfig(backend string) *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "Cremosos", Version: "test", Environment: "test"},
		Server:  config.ServerConfig{Port: 3000},
		Storage: config.StorageConfig{Backend: backend, Collections: storage.DefaultCollections},
		JWT:     config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour, Issuer: "cremosos-test"},
		Security: config.SecurityConfig{
			CORSAllowedOrigins: "*",
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newHarness(t *testing.T, backend storage.Backend) *harness {
	t.Helper()
	cfg := testConfig("memory")

	registry := prometheus.NewRegistry()
	store, err := storage.New(backend, cfg.Storage.Collections, storage.WithMetrics(storage.NewMetrics(registry)))
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))

	srv, err := server.New(cfg, store, logger.NewNop(), server.Options{Registry: registry})
	require.NoError(t, err)

	return &harness{t: t, handler: srv.Handler(), store: store, cfg: cfg}
}

func (h *harness) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func (h *harness) createUser(email string, role entities.UserRole) {
	h.t.Helper()
	auth := services.NewAuthService(repository.NewRepositories(h.store).Users, h.cfg.JWT, logger.NewNop())
	_, err := auth.CreateUser(context.Background(), ports.CreateUserRequest{
		Email: email, Password: "123456", Name: string(role), Role: role,
	})
	require.NoError(h.t, err)
}

func (h *harness) login(email string) string {
	h.t.Helper()
	rec, env := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "123456"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var auth ports.AuthResponse
	require.NoError(h.t, json.Unmarshal(env.Data, &auth))
	return auth.Token
}

func TestHealth(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())

	rec, _ := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"products":"ok"`)
}

func TestHealthReportsCorruptCollection(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, storage.NewFileBackend(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.json"), []byte("{broken"), 0o644))

	rec, _ := h.do(http.MethodGet, "/health/detailed", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"products":"ok"`)

	rec, _ = h.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "orders")
}

func TestRegisterLoginProfile(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())

	rec, env := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "Ana@Example.com", "password": "secret1", "name": "Ana",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec, env = h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ana@example.com", "password": "secret1", "name": "Ana",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)

	rec, env = h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	rec, env = h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var auth ports.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &auth))

	rec, env = h.do(http.MethodPut, "/api/users/profile", auth.Token, map[string]interface{}{
		"phone":   "3001234567",
		"address": map[string]string{"city": "Bogotá"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = h.do(http.MethodGet, "/api/users/profile", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile entities.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "ana@example.com", profile.Email)
	assert.Equal(t, "3001234567", profile.Phone)
	assert.Equal(t, entities.UserRoleCustomer, profile.Role)
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())

	rec, env := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "not-an-email", "password": "123", "name": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	h.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestAuthorization(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())
	h.createUser("customer@cremosos.com", entities.UserRoleCustomer)
	h.createUser("employee@cremosos.com", entities.UserRoleEmployee)
	customer := h.login("customer@cremosos.com")
	employee := h.login("employee@cremosos.com")

	rec, _ := h.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = h.do(http.MethodGet, "/api/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := h.do(http.MethodGet, "/api/reports/dashboard", customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, env.Success)

	rec, _ = h.do(http.MethodGet, "/api/reports/dashboard", employee, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodGet, "/api/suppliers", employee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(http.MethodPost, "/api/products", customer, map[string]interface{}{"name": "x", "price": 1, "category": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestShopFlow(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())
	h.createUser("admin@cremosos.com", entities.UserRoleAdmin)
	admin := h.login("admin@cremosos.com")

	rec, env := h.do(http.MethodPost, "/api/products", admin, map[string]interface{}{
		"name": "Arroz con Leche Clásico", "price": 8000, "category": "arroz-con-leche", "stock": 50, "isFeatured": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product entities.Product
	require.NoError(t, json.Unmarshal(env.Data, &product))

	rec, env = h.do(http.MethodGet, "/api/products?category=arroz-con-leche&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []entities.Product
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)
	var meta ports.PageMeta
	require.NoError(t, json.Unmarshal(env.Meta, &meta))
	assert.Equal(t, 1, meta.Total)

	rec, _ = h.do(http.MethodGet, "/api/products?sortBy=color", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/products/prod_unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)

	rec, _ = h.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "buyer@example.com", "password": "secret1", "name": "Buyer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	buyer := h.login("buyer@example.com")

	rec, _ = h.do(http.MethodPost, "/api/orders", buyer, map[string]interface{}{
		"shippingAddress": map[string]string{"street": "Calle 1", "city": "Bogotá"},
		"paymentMethod":   "card",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	rec, _ = h.do(http.MethodPost, "/api/cart/items", buyer, map[string]interface{}{"productId": product.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = h.do(http.MethodPost, "/api/orders", buyer, map[string]interface{}{
		"shippingAddress": map[string]string{"street": "Calle 1", "city": "Bogotá"},
		"paymentMethod":   "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order entities.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, entities.OrderStatusPending, order.Status)

	rec, env = h.do(http.MethodGet, "/api/cart", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cart entities.Cart
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	assert.Empty(t, cart.Items)

	rec, _ = h.do(http.MethodPut, "/api/orders/"+order.ID+"/status", buyer, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(http.MethodPut, "/api/orders/"+order.ID+"/status", admin, map[string]string{"status": "shipped"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = h.do(http.MethodPut, "/api/orders/"+order.ID+"/cancel", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/orders/"+order.ID+"/track", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tracking entities.Tracking
	require.NoError(t, json.Unmarshal(env.Data, &tracking))
	assert.Len(t, tracking.Events, 2)

	rec, env = h.do(http.MethodPost, "/api/sales", admin, map[string]interface{}{
		"items": []map[string]interface{}{{"productId": product.ID, "quantity": 60}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, entities.ErrInsufficientStock.Error())

	rec, _ = h.do(http.MethodPost, "/api/sales", admin, map[string]interface{}{
		"items": []map[string]interface{}{{"productId": product.ID, "quantity": 5}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = h.do(http.MethodGet, "/api/sales?from=2000-01-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sales []entities.Sale
	require.NoError(t, json.Unmarshal(env.Data, &sales))
	assert.Len(t, sales, 1)

	rec, _ = h.do(http.MethodGet, "/api/sales?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/products/"+product.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &product))
	assert.Equal(t, 45, product.Stock)
}

func TestRoleConflict(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())
	h.createUser("admin@cremosos.com", entities.UserRoleAdmin)
	admin := h.login("admin@cremosos.com")

	rec, _ := h.do(http.MethodPost, "/api/roles", admin, map[string]string{"name": "Cashier"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := h.do(http.MethodPost, "/api/roles", admin, map[string]string{"name": "cashier"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, storage.NewFileBackend(dir))
	h.createUser("admin@cremosos.com", entities.UserRoleAdmin)
	admin := h.login("admin@cremosos.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "suppliers.json"), []byte("not json"), 0o644))

	rec, env := h.do(http.MethodPost, "/api/suppliers", admin, map[string]string{"name": "Lácteos del Valle"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)

	raw, err := os.ReadFile(filepath.Join(dir, "suppliers.json"))
	require.NoError(t, err)
	assert.Equal(t, "not json", string(raw))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, storage.NewMemoryBackend())
	h.do(http.MethodGet, "/api/products", "", nil)

	rec, _ := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, "storage_operations_total")
}
