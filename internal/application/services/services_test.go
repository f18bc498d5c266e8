package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cremosos/core/internal/adapters/repository"
	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/config"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

var testNow = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

type fixture struct {
	store     *storage.Store
	repos     ports.Repositories
	auth      *AuthService
	products  *ProductService
	carts     *CartService
	orders    *OrderService
	sales     *SaleService
	purchases *PurchaseService
	suppliers *SupplierService
	roles     *RoleService
	reports   *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(storage.NewMemoryBackend(), storage.DefaultCollections)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))

	log := logger.NewNop()
	repos := repository.NewRepositories(store)
	clock := func() time.Time { return testNow }

	f := &fixture{
		store: store,
		repos: repos,
		auth: NewAuthService(repos.Users, config.JWTConfig{
			Secret: "test-secret", ExpiresIn: time.Hour, Issuer: "cremosos-test",
		}, log),
		products:  NewProductService(repos.Products, log),
		suppliers: NewSupplierService(repos.Suppliers, log),
		roles:     NewRoleService(repos.Roles, log),
		reports:   NewReportService(repos, log),
	}
	f.carts = NewCartService(repos.Carts, repos.Products, log)
	f.orders = NewOrderService(repos.Orders, repos.Users, f.carts, log)
	f.sales = NewSaleService(repos.Sales, repos.Products, repos.Users, log)
	f.purchases = NewPurchaseService(repos.Purchases, repos.Suppliers, repos.Products, log)

	f.auth.now = clock
	f.products.now = clock
	f.carts.now = clock
	f.orders.now = clock
	f.sales.now = clock
	f.purchases.now = clock
	f.suppliers.now = clock
	f.roles.now = clock
	return f
}

func (f *fixture) product(t *testing.T, id, name, category string, price float64, stock int) *entities.Product {
	t.Helper()
	p := &entities.Product{
		ID: id, Name: name, Category: category, Price: price, Stock: stock,
		IsAvailable: true, CreatedAt: testNow,
	}
	require.NoError(t, f.repos.Products.Create(context.Background(), p))
	return p
}

func customer(id string) *ports.Claims {
	return &ports.Claims{UserID: id, Email: id + "@example.com", Role: entities.UserRoleCustomer}
}

func staff(id string) *ports.Claims {
	return &ports.Claims{UserID: id, Email: id + "@cremosos.com", Role: entities.UserRoleEmployee}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.auth.Register(ctx, ports.RegisterRequest{
		Email: "Ana@Example.com", Password: "secret1", Name: "Ana", Phone: "3001234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", resp.User.Email)
	assert.Equal(t, entities.UserRoleCustomer, resp.User.Role)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	_, err = f.auth.Register(ctx, ports.RegisterRequest{Email: "ana@example.com", Password: "other12", Name: "Ana 2"})
	assert.ErrorIs(t, err, entities.ErrEmailTaken)

	login, err := f.auth.Login(ctx, ports.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	claims, err := f.auth.ValidateToken(login.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, entities.UserRoleCustomer, claims.Role)
	assert.Equal(t, "cremosos-test", claims.Issuer)

	_, err = f.auth.Login(ctx, ports.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)
	_, err = f.auth.Login(ctx, ports.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, entities.ErrInvalidCredentials)

	stored, err := f.repos.Users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
}

func TestAuthRegisterConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var mu sync.Mutex
	var ok, taken int
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := f.auth.Register(ctx, ports.RegisterRequest{Email: "dup@example.com", Password: "secret1", Name: "Dup"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, entities.ErrEmailTaken):
				taken++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, taken)
}

func TestAuthValidateTokenRejectsTampering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.auth.Register(ctx, ports.RegisterRequest{Email: "a@example.com", Password: "secret1", Name: "A"})
	require.NoError(t, err)

	_, err = f.auth.ValidateToken(resp.Token + "x")
	assert.ErrorIs(t, err, entities.ErrUnauthorized)

	f.auth.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	_, err = f.auth.ValidateToken(resp.Token)
	assert.ErrorIs(t, err, entities.ErrUnauthorized, "expired token")
}

func TestAuthProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp, err := f.auth.Register(ctx, ports.RegisterRequest{Email: "a@example.com", Password: "secret1", Name: "A"})
	require.NoError(t, err)

	name := "Ana María"
	updated, err := f.auth.UpdateProfile(ctx, resp.User.ID, ports.UpdateProfileRequest{
		Name:    &name,
		Address: &entities.Address{City: "Bogotá", Country: "Colombia"},
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "Bogotá", updated.Address.City)

	profile, err := f.auth.Profile(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, name, profile.Name)

	_, err = f.auth.Profile(ctx, "user_missing")
	assert.ErrorIs(t, err, entities.ErrUserNotFound)
}

func TestAuthCreateUserRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, err := f.auth.CreateUser(ctx, ports.CreateUserRequest{
		Email: "admin@cremosos.com", Password: "123456", Name: "Juan Admin", Role: entities.UserRoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleAdmin, u.Role)

	_, err = f.auth.CreateUser(ctx, ports.CreateUserRequest{Email: "x@cremosos.com", Password: "123456", Name: "X", Role: "root"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProductList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz con Leche Clásico", "arroz_con_leche", 8000, 50)
	f.product(t, "prod2", "Fresas con Crema Premium", "fresas_con_crema", 12000, 30)
	f.product(t, "prod3", "Arroz con Leche Arequipe", "arroz_con_leche", 9500, 5)

	items, meta, err := f.products.List(ctx, ports.ProductFilter{Category: "arroz_con_leche", SortBy: "price", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "prod3", items[0].ID)
	assert.Equal(t, ports.PageMeta{Page: 1, Limit: 20, Total: 2, TotalPages: 1}, meta)

	items, _, err = f.products.List(ctx, ports.ProductFilter{Search: "CREMA"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "prod2", items[0].ID)

	items, meta, err = f.products.List(ctx, ports.ProductFilter{SortBy: "stock", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "prod1", items[0].ID)
	assert.Equal(t, ports.PageMeta{Page: 2, Limit: 2, Total: 3, TotalPages: 2, HasPrevious: true}, meta)

	items, meta, err = f.products.List(ctx, ports.ProductFilter{Page: 9, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 100, meta.Limit)
}

func TestProductCRUDAndStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.products.Create(ctx, ports.CreateProductRequest{
		Name: "Fresas", Price: 12000, Category: "fresas_con_crema", Stock: 3, IsFeatured: true,
	})
	require.NoError(t, err)
	assert.True(t, p.IsAvailable)

	featured, err := f.products.Featured(ctx)
	require.NoError(t, err)
	assert.Len(t, featured, 1)

	price := 13000.0
	updated, err := f.products.Update(ctx, p.ID, ports.UpdateProductRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, price, updated.Price)
	assert.Equal(t, "Fresas", updated.Name)

	_, err = f.products.AdjustStock(ctx, p.ID, -4)
	assert.ErrorIs(t, err, entities.ErrInsufficientStock)
	adjusted, err := f.products.AdjustStock(ctx, p.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 10, adjusted.Stock)

	require.NoError(t, f.products.Delete(ctx, p.ID))
	_, err = f.products.Get(ctx, p.ID)
	assert.ErrorIs(t, err, entities.ErrProductNotFound)
	assert.ErrorIs(t, f.products.Delete(ctx, p.ID), entities.ErrProductNotFound)
}

func TestCartLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz con Leche Clásico", "arroz_con_leche", 8000, 50)

	cart, err := f.carts.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	cart, err = f.carts.AddItem(ctx, "user_1", ports.AddCartItemRequest{ProductID: "prod1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	item := cart.Items[0]
	assert.Equal(t, "Arroz con Leche Clásico", item.ProductName)
	assert.Equal(t, float64(8000), item.ProductPrice)

	cart, err = f.carts.UpdateItem(ctx, "user_1", item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	_, err = f.carts.UpdateItem(ctx, "user_1", "item_missing", 1)
	assert.ErrorIs(t, err, entities.ErrCartItemNotFound)
	_, err = f.carts.AddItem(ctx, "user_1", ports.AddCartItemRequest{ProductID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, entities.ErrProductNotFound)

	cart, err = f.carts.RemoveItem(ctx, "user_1", item.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	cart, err = f.carts.Sync(ctx, "user_1", []ports.AddCartItemRequest{
		{ProductID: "prod1", Quantity: 1},
		{ProductID: "prod1", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)

	require.NoError(t, f.carts.Clear(ctx, "user_1"))
	require.NoError(t, f.carts.Clear(ctx, "user_without_cart"))
	cart, err = f.carts.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	n, err := f.repos.Carts.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one cart per user")
}

func TestCartRejectsUnavailableProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 50)
	_, err := f.repos.Products.Update(ctx, p.ID, map[string]any{"isAvailable": false})
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, "user_1", ports.AddCartItemRequest{ProductID: p.ID, Quantity: 1})
	assert.ErrorIs(t, err, entities.ErrProductUnavailable)
}

func TestOrderCreateTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 50)
	f.product(t, "prod2", "Fresas", "fresas_con_crema", 12000, 30)
	user := customer("user_1")
	addr := &entities.Address{Street: "Calle 123", City: "Bogotá"}

	_, err := f.orders.Create(ctx, user, ports.CreateOrderRequest{ShippingAddress: addr, PaymentMethod: "card"})
	assert.ErrorIs(t, err, entities.ErrEmptyCart)

	_, err = f.carts.AddItem(ctx, user.UserID, ports.AddCartItemRequest{ProductID: "prod1", Quantity: 2})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, user.UserID, ports.AddCartItemRequest{ProductID: "prod2", Quantity: 1})
	require.NoError(t, err)

	order, err := f.orders.Create(ctx, user, ports.CreateOrderRequest{ShippingAddress: addr, PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-2024-0001", order.OrderNumber)
	assert.Equal(t, float64(28000), order.Subtotal)
	assert.Equal(t, float64(2240), order.Tax)
	assert.Equal(t, float64(5000), order.ShippingCost)
	assert.Equal(t, float64(35240), order.Total)
	assert.Equal(t, entities.OrderStatusPending, order.Status)
	assert.Equal(t, testNow.Add(48*time.Hour), order.EstimatedDelivery)
	assert.Contains(t, order.PaymentInfo.TransactionID, "TXN-")
	require.Len(t, order.Tracking.Events, 1)

	cart, err := f.carts.Get(ctx, user.UserID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items, "order empties the cart")

	// Free shipping from 50000.
	_, err = f.carts.AddItem(ctx, user.UserID, ports.AddCartItemRequest{ProductID: "prod2", Quantity: 5})
	require.NoError(t, err)
	order, err = f.orders.Create(ctx, user, ports.CreateOrderRequest{ShippingAddress: addr, PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Equal(t, "ORD-2024-0002", order.OrderNumber)
	assert.Zero(t, order.ShippingCost)
	assert.Equal(t, float64(64800), order.Total)
}

func TestOrderVisibilityAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 50)
	owner, other, clerk := customer("user_1"), customer("user_2"), staff("user_3")

	_, err := f.carts.AddItem(ctx, owner.UserID, ports.AddCartItemRequest{ProductID: "prod1", Quantity: 1})
	require.NoError(t, err)
	order, err := f.orders.Create(ctx, owner, ports.CreateOrderRequest{ShippingAddress: &entities.Address{}, PaymentMethod: "card"})
	require.NoError(t, err)

	_, err = f.orders.Get(ctx, other, order.ID)
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)
	_, err = f.orders.Cancel(ctx, other, order.ID)
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)

	mine, err := f.orders.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, mine)
	all, err := f.orders.List(ctx, clerk)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.orders.UpdateStatus(ctx, order.ID, ports.UpdateOrderStatusRequest{Status: "teleported"})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := f.orders.UpdateStatus(ctx, order.ID, ports.UpdateOrderStatusRequest{Status: entities.OrderStatusShipped})
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusShipped, updated.Status)

	tracking, err := f.orders.Track(ctx, owner, order.ID)
	require.NoError(t, err)
	require.Len(t, tracking.Events, 2)
	assert.Equal(t, "Order shipped", tracking.Events[1].Description)

	_, err = f.orders.Cancel(ctx, owner, order.ID)
	assert.ErrorIs(t, err, entities.ErrOrderNotCancelable)
}

func TestOrderCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 50)
	owner := customer("user_1")

	_, err := f.carts.AddItem(ctx, owner.UserID, ports.AddCartItemRequest{ProductID: "prod1", Quantity: 1})
	require.NoError(t, err)
	order, err := f.orders.Create(ctx, owner, ports.CreateOrderRequest{ShippingAddress: &entities.Address{}, PaymentMethod: "card"})
	require.NoError(t, err)

	cancelled, err := f.orders.Cancel(ctx, owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCancelled, cancelled.Status)

	stored, err := f.orders.Get(ctx, owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCancelled, stored.Status)
}

func TestSaleDecrementsStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 5)
	f.product(t, "prod2", "Fresas", "fresas_con_crema", 12000, 2)
	cashier := staff("user_9")

	sale, err := f.sales.Create(ctx, cashier, ports.CreateSaleRequest{Items: []ports.SaleItemRequest{
		{ProductID: "prod1", Quantity: 2},
		{ProductID: "prod2", Quantity: 1},
		{ProductID: "prod1", Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Len(t, sale.Items, 2, "lines for the same product are merged")
	assert.Equal(t, float64(36000), sale.Subtotal)
	assert.Equal(t, float64(6840), sale.Tax)
	assert.Equal(t, float64(42840), sale.Total)
	assert.Equal(t, "cash", sale.PaymentMethod)
	assert.Equal(t, cashier.UserID, sale.UserID)

	p1, err := f.products.Get(ctx, "prod1")
	require.NoError(t, err)
	assert.Equal(t, 2, p1.Stock)

	// Not enough prod2: nothing is taken.
	_, err = f.sales.Create(ctx, cashier, ports.CreateSaleRequest{Items: []ports.SaleItemRequest{
		{ProductID: "prod1", Quantity: 1},
		{ProductID: "prod2", Quantity: 5},
	}})
	assert.ErrorIs(t, err, entities.ErrInsufficientStock)

	p1, err = f.products.Get(ctx, "prod1")
	require.NoError(t, err)
	assert.Equal(t, 2, p1.Stock)

	_, err = f.sales.Create(ctx, cashier, ports.CreateSaleRequest{Items: []ports.SaleItemRequest{{ProductID: "ghost", Quantity: 1}}})
	assert.ErrorIs(t, err, entities.ErrProductNotFound)

	sales, err := f.sales.List(ctx, ports.DateRange{})
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	sales, err = f.sales.List(ctx, ports.DateRange{From: testNow.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestStockChangesKeepOtherProductFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.Insert(ctx, "products", storage.Record{
		"id": "prod1", "name": "Arroz", "category": "arroz_con_leche",
		"price": float64(8000), "stock": float64(5), "isAvailable": true,
		"sabor": "vainilla",
	})
	require.NoError(t, err)
	f.product(t, "prod2", "Fresas", "fresas_con_crema", 12000, 4)

	name := "Arroz con Leche"
	_, err = f.products.Update(ctx, "prod1", ports.UpdateProductRequest{Name: &name})
	require.NoError(t, err)
	before, _, err := f.store.FindByID(ctx, "products", "prod1")
	require.NoError(t, err)
	require.Contains(t, before, "updatedAt")

	_, err = f.sales.Create(ctx, staff("user_9"), ports.CreateSaleRequest{Items: []ports.SaleItemRequest{
		{ProductID: "prod2", Quantity: 1},
	}})
	require.NoError(t, err)

	after, _, err := f.store.FindByID(ctx, "products", "prod1")
	require.NoError(t, err)
	assert.Equal(t, "vainilla", after["sabor"])
	stampedAt, err := time.Parse(time.RFC3339Nano, before["updatedAt"].(string))
	require.NoError(t, err)
	keptAt, err := time.Parse(time.RFC3339Nano, after["updatedAt"].(string))
	require.NoError(t, err)
	assert.True(t, stampedAt.Equal(keptAt))
	assert.Equal(t, "Arroz con Leche", after["name"])

	sold, err := f.products.Get(ctx, "prod2")
	require.NoError(t, err)
	assert.Equal(t, 3, sold.Stock)
	assert.Equal(t, testNow, sold.UpdatedAt)

	adjusted, err := f.products.AdjustStock(ctx, "prod1", 2)
	require.NoError(t, err)
	assert.Equal(t, 7, adjusted.Stock)
	after, _, err = f.store.FindByID(ctx, "products", "prod1")
	require.NoError(t, err)
	assert.Equal(t, "vainilla", after["sabor"])
}

func TestSaleConcurrentStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 10)
	cashier := staff("user_9")

	var mu sync.Mutex
	ok := 0
	var g errgroup.Group
	for i := 0; i < 15; i++ {
		g.Go(func() error {
			_, err := f.sales.Create(ctx, cashier, ports.CreateSaleRequest{
				Items:        []ports.SaleItemRequest{{ProductID: "prod1", Quantity: 1}},
				CustomerName: fmt.Sprintf("walk-in %d", i),
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 10, ok)

	p, err := f.products.Get(ctx, "prod1")
	require.NoError(t, err)
	assert.Zero(t, p.Stock)
}

func TestPurchaseReceive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 1)
	buyer := &ports.Claims{UserID: "user_1", Role: entities.UserRoleAdmin}

	_, err := f.purchases.Create(ctx, buyer, ports.CreatePurchaseRequest{
		SupplierID: "sup_missing",
		Items:      []ports.PurchaseItemRequest{{ProductID: "prod1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, entities.ErrSupplierNotFound)

	supplier, err := f.suppliers.Create(ctx, ports.SupplierRequest{Name: "Lácteos del Valle"})
	require.NoError(t, err)
	assert.True(t, supplier.IsActive)

	purchase, err := f.purchases.Create(ctx, buyer, ports.CreatePurchaseRequest{
		SupplierID: supplier.ID,
		Items:      []ports.PurchaseItemRequest{{ProductID: "prod1", Quantity: 24, UnitCost: 3500}},
	})
	require.NoError(t, err)
	assert.Equal(t, entities.PurchaseStatusPending, purchase.Status)
	assert.Equal(t, float64(84000), purchase.Total)

	p, err := f.products.Get(ctx, "prod1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock, "stock changes only on receive")

	received, err := f.purchases.Receive(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PurchaseStatusReceived, received.Status)

	p, err = f.products.Get(ctx, "prod1")
	require.NoError(t, err)
	assert.Equal(t, 25, p.Stock)

	_, err = f.purchases.Receive(ctx, purchase.ID)
	assert.ErrorIs(t, err, entities.ErrAlreadyReceived)
	p, err = f.products.Get(ctx, "prod1")
	require.NoError(t, err)
	assert.Equal(t, 25, p.Stock)

	_, err = f.purchases.Receive(ctx, "pur_missing")
	assert.ErrorIs(t, err, entities.ErrPurchaseNotFound)
}

func TestSupplierCRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.suppliers.Create(ctx, ports.SupplierRequest{Name: "Frutas SAS", Email: "ventas@frutas.co"})
	require.NoError(t, err)

	inactive := false
	updated, err := f.suppliers.Update(ctx, s.ID, ports.SupplierRequest{Name: "Frutas S.A.S.", IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Frutas S.A.S.", updated.Name)
	assert.False(t, updated.IsActive)

	list, err := f.suppliers.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.suppliers.Delete(ctx, s.ID))
	_, err = f.suppliers.Get(ctx, s.ID)
	assert.ErrorIs(t, err, entities.ErrSupplierNotFound)
}

func TestRoleNamesUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cashier, err := f.roles.Create(ctx, ports.RoleRequest{Name: "cashier", Permissions: []string{"sales:create"}})
	require.NoError(t, err)
	manager, err := f.roles.Create(ctx, ports.RoleRequest{Name: "manager"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, manager.Permissions)

	_, err = f.roles.Create(ctx, ports.RoleRequest{Name: "Cashier"})
	assert.ErrorIs(t, err, entities.ErrRoleNameTaken)

	_, err = f.roles.Update(ctx, manager.ID, ports.RoleRequest{Name: "CASHIER"})
	assert.ErrorIs(t, err, entities.ErrRoleNameTaken)

	renamed, err := f.roles.Update(ctx, cashier.ID, ports.RoleRequest{Name: "Cashier", Description: "POS"})
	require.NoError(t, err, "a role may keep its own name")
	assert.Equal(t, []string{"sales:create"}, renamed.Permissions)

	_, err = f.roles.Update(ctx, "role_missing", ports.RoleRequest{Name: "x"})
	assert.ErrorIs(t, err, entities.ErrRoleNotFound)

	require.NoError(t, f.roles.Delete(ctx, manager.ID))
	roles, err := f.roles.List(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.product(t, "prod1", "Arroz", "arroz_con_leche", 8000, 50)
	f.product(t, "prod2", "Fresas", "fresas_con_crema", 12000, 3)

	resp, err := f.auth.Register(ctx, ports.RegisterRequest{Email: "ana@example.com", Password: "secret1", Name: "Ana"})
	require.NoError(t, err)
	_, err = f.auth.UpdateProfile(ctx, resp.User.ID, ports.UpdateProfileRequest{Address: &entities.Address{City: "Medellín"}})
	require.NoError(t, err)
	_, err = f.auth.Register(ctx, ports.RegisterRequest{Email: "luis@example.com", Password: "secret1", Name: "Luis"})
	require.NoError(t, err)

	ana := &ports.Claims{UserID: resp.User.ID, Email: resp.User.Email, Role: entities.UserRoleCustomer}
	_, err = f.carts.AddItem(ctx, ana.UserID, ports.AddCartItemRequest{ProductID: "prod1", Quantity: 2})
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, ana, ports.CreateOrderRequest{ShippingAddress: &entities.Address{}, PaymentMethod: "card"})
	require.NoError(t, err)

	_, err = f.sales.Create(ctx, staff("user_9"), ports.CreateSaleRequest{Items: []ports.SaleItemRequest{{ProductID: "prod2", Quantity: 1}}})
	require.NoError(t, err)

	dash, err := f.reports.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.OrdersCount)
	assert.Equal(t, 1, dash.SalesCount)
	assert.Equal(t, 1, dash.ActiveCustomers)
	// Order: 16000 + 1280 tax + 5000 shipping. Sale: 12000 + 2280 tax.
	assert.Equal(t, float64(22280), dash.AverageOrderValue)
	assert.Equal(t, float64(36560), dash.TotalRevenue)
	assert.Equal(t, map[string]float64{"arroz_con_leche": 16000, "fresas_con_crema": 12000}, dash.SalesByCategory)
	require.NotEmpty(t, dash.TopProducts)
	assert.Equal(t, "prod1", dash.TopProducts[0].ProductID)
	assert.Len(t, dash.LowStock, 1)
	assert.Len(t, dash.RecentOrders, 1)

	sales, err := f.reports.Sales(ctx, ports.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, float64(36560), sales.Revenue)
	assert.Equal(t, float64(3560), sales.Tax)
	assert.Equal(t, float64(5000), sales.Shipping)
	assert.Equal(t, 3, sales.UnitsSold)
	require.Len(t, sales.Daily, 1)
	assert.Equal(t, "2024-06-01", sales.Daily[0].Date)
	assert.Equal(t, 2, sales.Daily[0].Count)

	products, err := f.reports.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, products.TotalProducts)
	assert.Equal(t, float64(50*8000+2*12000), products.StockValue)

	customers, err := f.reports.Customers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, customers.TotalCustomers)
	assert.Equal(t, 1, customers.ActiveCustomers)
	assert.Equal(t, map[string]int{"Medellín": 1, "unknown": 1}, customers.ByCity)
	require.Len(t, customers.TopCustomers, 1)
	assert.Equal(t, float64(22280), customers.TopCustomers[0].TotalSpent)
}
