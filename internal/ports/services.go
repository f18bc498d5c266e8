package ports

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cremosos/core/internal/domain/entities"
)

// AuthService interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	ValidateToken(tokenString string) (*Claims, error)
	Profile(ctx context.Context, userID string) (*entities.PublicUser, error)
	UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*entities.PublicUser, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*entities.PublicUser, error)
}

// ProductService interface for catalogue operations
type ProductService interface {
	List(ctx context.Context, filter ProductFilter) ([]*entities.Product, PageMeta, error)
	Featured(ctx context.Context) ([]*entities.Product, error)
	Get(ctx context.Context, id string) (*entities.Product, error)
	Create(ctx context.Context, req CreateProductRequest) (*entities.Product, error)
	Update(ctx context.Context, id string, req UpdateProductRequest) (*entities.Product, error)
	Delete(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, delta int) (*entities.Product, error)
}

// CartService interface for shopping cart operations. Carts are keyed by
// the owning user's id.
type CartService interface {
	Get(ctx context.Context, userID string) (*entities.Cart, error)
	AddItem(ctx context.Context, userID string, req AddCartItemRequest) (*entities.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID string, quantity int) (*entities.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*entities.Cart, error)
	Clear(ctx context.Context, userID string) error
	Sync(ctx context.Context, userID string, items []AddCartItemRequest) (*entities.Cart, error)
}

// OrderService interface for online orders
type OrderService interface {
	Create(ctx context.Context, user *Claims, req CreateOrderRequest) (*entities.Order, error)
	List(ctx context.Context, user *Claims) ([]*entities.Order, error)
	Get(ctx context.Context, user *Claims, id string) (*entities.Order, error)
	Cancel(ctx context.Context, user *Claims, id string) (*entities.Order, error)
	Track(ctx context.Context, user *Claims, id string) (*entities.Tracking, error)
	UpdateStatus(ctx context.Context, id string, req UpdateOrderStatusRequest) (*entities.Order, error)
}

// SaleService interface for point-of-sale transactions
type SaleService interface {
	Create(ctx context.Context, cashier *Claims, req CreateSaleRequest) (*entities.Sale, error)
	List(ctx context.Context, r DateRange) ([]*entities.Sale, error)
	Get(ctx context.Context, id string) (*entities.Sale, error)
}

// PurchaseService interface for supplier purchases
type PurchaseService interface {
	Create(ctx context.Context, buyer *Claims, req CreatePurchaseRequest) (*entities.Purchase, error)
	Receive(ctx context.Context, id string) (*entities.Purchase, error)
	List(ctx context.Context) ([]*entities.Purchase, error)
	Get(ctx context.Context, id string) (*entities.Purchase, error)
}

// SupplierService interface for supplier management
type SupplierService interface {
	Create(ctx context.Context, req SupplierRequest) (*entities.Supplier, error)
	Get(ctx context.Context, id string) (*entities.Supplier, error)
	List(ctx context.Context) ([]*entities.Supplier, error)
	Update(ctx context.Context, id string, req SupplierRequest) (*entities.Supplier, error)
	Delete(ctx context.Context, id string) error
}

// RoleService interface for role management
type RoleService interface {
	Create(ctx context.Context, req RoleRequest) (*entities.Role, error)
	Get(ctx context.Context, id string) (*entities.Role, error)
	List(ctx context.Context) ([]*entities.Role, error)
	Update(ctx context.Context, id string, req RoleRequest) (*entities.Role, error)
	Delete(ctx context.Context, id string) error
}

// ReportService interface for aggregate reports
type ReportService interface {
	Dashboard(ctx context.Context) (*DashboardReport, error)
	Sales(ctx context.Context, r DateRange) (*SalesReport, error)
	Products(ctx context.Context) (*ProductsReport, error)
	Customers(ctx context.Context) (*CustomersReport, error)
}

// Request/Response Types

// Auth related types
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string              `json:"token"`
	TokenType string              `json:"tokenType"`
	ExpiresIn int64               `json:"expiresIn"`
	User      entities.PublicUser `json:"user"`
}

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID string            `json:"id"`
	Email  string            `json:"email"`
	Role   entities.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the token belongs to an admin or employee.
func (c *Claims) IsStaff() bool {
	return c.Role == entities.UserRoleAdmin || c.Role == entities.UserRoleEmployee
}

type UpdateProfileRequest struct {
	Name    *string           `json:"name" validate:"omitempty,max=100"`
	Phone   *string           `json:"phone" validate:"omitempty,max=30"`
	Address *entities.Address `json:"address"`
}

// CreateUserRequest is used by the CLI to provision staff accounts.
type CreateUserRequest struct {
	Email    string            `json:"email" validate:"required,email"`
	Password string            `json:"password" validate:"required,min=6"`
	Name     string            `json:"name" validate:"required,max=100"`
	Role     entities.UserRole `json:"role" validate:"required,oneof=admin employee customer"`
}

// Product related types
type CreateProductRequest struct {
	Name               string   `json:"name" validate:"required,max=200"`
	Description        string   `json:"description" validate:"max=2000"`
	Price              float64  `json:"price" validate:"required,gt=0"`
	ImageURL           string   `json:"imageUrl" validate:"omitempty,url"`
	Category           string   `json:"category" validate:"required"`
	Stock              int      `json:"stock" validate:"min=0"`
	IsFeatured         bool     `json:"isFeatured"`
	CompatibleToppings []string `json:"compatibleToppings"`
}

type UpdateProductRequest struct {
	Name               *string   `json:"name" validate:"omitempty,max=200"`
	Description        *string   `json:"description" validate:"omitempty,max=2000"`
	Price              *float64  `json:"price" validate:"omitempty,gt=0"`
	ImageURL           *string   `json:"imageUrl" validate:"omitempty,url"`
	Category           *string   `json:"category"`
	Stock              *int      `json:"stock" validate:"omitempty,min=0"`
	IsAvailable        *bool     `json:"isAvailable"`
	IsFeatured         *bool     `json:"isFeatured"`
	CompatibleToppings *[]string `json:"compatibleToppings"`
}

// Cart related types
type AddCartItemRequest struct {
	ProductID string   `json:"productId" validate:"required"`
	Quantity  int      `json:"quantity" validate:"required,min=1"`
	Toppings  []string `json:"toppingIds"`
	Notes     string   `json:"notes" validate:"max=500"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

type SyncCartRequest struct {
	Items []AddCartItemRequest `json:"items" validate:"dive"`
}

// Order related types
type CreateOrderRequest struct {
	ShippingAddress *entities.Address `json:"shippingAddress" validate:"required"`
	PaymentMethod   string            `json:"paymentMethod" validate:"required"`
	Notes           string            `json:"notes" validate:"max=500"`
}

type UpdateOrderStatusRequest struct {
	Status      entities.OrderStatus `json:"status" validate:"required"`
	Description string               `json:"description" validate:"max=500"`
}

// Sale related types
type SaleItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CreateSaleRequest struct {
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod"`
	CustomerName  string            `json:"customerName" validate:"max=100"`
	CustomerEmail string            `json:"customerEmail" validate:"omitempty,email"`
}

// Purchase related types
type PurchaseItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	UnitCost  float64 `json:"unitCost" validate:"min=0"`
}

type CreatePurchaseRequest struct {
	SupplierID string                `json:"supplierId" validate:"required"`
	Items      []PurchaseItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes      string                `json:"notes" validate:"max=500"`
}

type SupplierRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	ContactName string            `json:"contactName" validate:"max=100"`
	Email       string            `json:"email" validate:"omitempty,email"`
	Phone       string            `json:"phone" validate:"max=30"`
	Address     *entities.Address `json:"address"`
	IsActive    *bool             `json:"isActive"`
}

type RoleRequest struct {
	Name        string   `json:"name" validate:"required,max=50"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions"`
}

// Report types
type DashboardReport struct {
	TotalRevenue      float64             `json:"totalRevenue"`
	OrdersCount       int                 `json:"ordersCount"`
	SalesCount        int                 `json:"salesCount"`
	ActiveCustomers   int                 `json:"activeCustomers"`
	AverageOrderValue float64             `json:"averageOrderValue"`
	TopProducts       []ProductStat       `json:"topProducts"`
	SalesByCategory   map[string]float64  `json:"salesByCategory"`
	RecentOrders      []*entities.Order   `json:"recentOrders"`
	LowStock          []*entities.Product `json:"lowStock"`
}

type ProductStat struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	UnitsSold   int     `json:"unitsSold"`
	Revenue     float64 `json:"revenue"`
	Stock       int     `json:"stock"`
	Rating      float64 `json:"rating"`
}

type SalesReport struct {
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Revenue     float64    `json:"revenue"`
	Tax         float64    `json:"tax"`
	Shipping    float64    `json:"shipping"`
	OrdersCount int        `json:"ordersCount"`
	SalesCount  int        `json:"salesCount"`
	UnitsSold   int        `json:"unitsSold"`
	Daily       []DayStat  `json:"daily"`
}

type DayStat struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
	Count   int     `json:"count"`
}

type ProductsReport struct {
	Products      []ProductStat `json:"products"`
	TotalProducts int           `json:"totalProducts"`
	OutOfStock    int           `json:"outOfStock"`
	StockValue    float64       `json:"stockValue"`
}

type CustomersReport struct {
	TotalCustomers  int            `json:"totalCustomers"`
	ActiveCustomers int            `json:"activeCustomers"`
	TopCustomers    []CustomerStat `json:"topCustomers"`
	ByCity          map[string]int `json:"byCity"`
}

type CustomerStat struct {
	UserID      string  `json:"userId"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	OrdersCount int     `json:"ordersCount"`
	TotalSpent  float64 `json:"totalSpent"`
}
