package entities

import (
	"errors"
	"strings"
	"time"
)

// Common errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrSaleNotFound       = errors.New("sale not found")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrSupplierNotFound   = errors.New("supplier not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRoleNameTaken      = errors.New("role name already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrOrderNotCancelable = errors.New("order can no longer be cancelled")
	ErrAlreadyReceived    = errors.New("purchase already received")
	ErrNoItems            = errors.New("at least one item is required")
)

// Enums and types
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleEmployee UserRole = "employee"
	UserRoleCustomer UserRole = "customer"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PurchaseStatus string

const (
	PurchaseStatusPending  PurchaseStatus = "pending"
	PurchaseStatusReceived PurchaseStatus = "received"
)

// User represents an account. The password hash is stored but never
// serialized to API responses; see PublicUser.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Role         UserRole  `json:"role"`
	Address      *Address  `json:"address"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// PublicUser is the response shape of a User.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      UserRole  `json:"role"`
	Address   *Address  `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

// Address is a postal address.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Role is a named permission set managed by admins.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Product is a catalogue item.
type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Price              float64   `json:"price"`
	ImageURL           string    `json:"imageUrl"`
	Category           string    `json:"category"`
	Stock              int       `json:"stock"`
	Rating             float64   `json:"rating"`
	ReviewsCount       int       `json:"reviewsCount"`
	IsAvailable        bool      `json:"isAvailable"`
	IsFeatured         bool      `json:"isFeatured"`
	CompatibleToppings []string  `json:"compatibleToppings"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// Cart is a user's shopping cart. Its id is the owning user's id.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem snapshots the product at the time it was added.
type CartItem struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	ProductName  string    `json:"productName"`
	ProductImage string    `json:"productImage"`
	ProductPrice float64   `json:"productPrice"`
	Quantity     int       `json:"quantity"`
	Toppings     []string  `json:"toppings"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Order is a placed online order.
type Order struct {
	ID                string      `json:"id"`
	OrderNumber       string      `json:"orderNumber"`
	UserID            string      `json:"userId"`
	UserEmail         string      `json:"userEmail"`
	UserName          string      `json:"userName"`
	Status            OrderStatus `json:"status"`
	Items             []OrderItem `json:"items"`
	ShippingAddress   *Address    `json:"shippingAddress"`
	PaymentInfo       PaymentInfo `json:"paymentInfo"`
	Subtotal          float64     `json:"subtotal"`
	Tax               float64     `json:"tax"`
	ShippingCost      float64     `json:"shippingCost"`
	Discount          float64     `json:"discount"`
	Total             float64     `json:"total"`
	Notes             string      `json:"notes,omitempty"`
	Tracking          Tracking    `json:"tracking"`
	EstimatedDelivery time.Time   `json:"estimatedDelivery"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// OrderItem is a cart item frozen into an order.
type OrderItem = CartItem

// PaymentInfo describes how an order was paid.
type PaymentInfo struct {
	Method        string    `json:"method"`
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"status"`
	PaidAt        time.Time `json:"paidAt"`
}

// Tracking is the status history of an order.
type Tracking struct {
	Events []TrackingEvent `json:"events"`
}

type TrackingEvent struct {
	Status      OrderStatus `json:"status"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Sale is a point-of-sale transaction recorded by staff.
type Sale struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	UserName      string     `json:"userName"`
	Items         []SaleItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Total         float64    `json:"total"`
	PaymentMethod string     `json:"paymentMethod"`
	Status        string     `json:"status"`
	CustomerName  string     `json:"customerName"`
	CustomerEmail string     `json:"customerEmail"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type SaleItem struct {
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	ProductPrice float64 `json:"productPrice"`
	Category     string  `json:"category"`
	Quantity     int     `json:"quantity"`
	Subtotal     float64 `json:"subtotal"`
}

// Purchase is a stock order placed with a supplier.
type Purchase struct {
	ID           string         `json:"id"`
	SupplierID   string         `json:"supplierId"`
	SupplierName string         `json:"supplierName"`
	Items        []PurchaseItem `json:"items"`
	Total        float64        `json:"total"`
	Status       PurchaseStatus `json:"status"`
	Notes        string         `json:"notes,omitempty"`
	CreatedBy    string         `json:"createdBy"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt,omitzero"`
	ReceivedAt   *time.Time     `json:"receivedAt"`
}

type PurchaseItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitCost    float64 `json:"unitCost"`
	Subtotal    float64 `json:"subtotal"`
}

// Supplier provides stock for purchases.
type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contactName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     *Address  `json:"address"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Business logic methods for User
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Role:      u.Role,
		Address:   u.Address,
		CreatedAt: u.CreatedAt,
	}
}

func (u *User) IsStaff() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleEmployee
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Business logic methods for Product
func (p *Product) CanSell(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !p.IsAvailable {
		return ErrProductUnavailable
	}
	if p.Stock < quantity {
		return ErrInsufficientStock
	}
	return nil
}

// Business logic methods for Cart
func (c *Cart) Subtotal() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.ProductPrice * float64(item.Quantity)
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) FindItem(id string) int {
	for i, item := range c.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Business logic methods for Order
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) TransitionTo(status OrderStatus, description string, at time.Time) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	o.Status = status
	o.UpdatedAt = at
	o.Tracking.Events = append(o.Tracking.Events, TrackingEvent{
		Status:      status,
		Description: description,
		Timestamp:   at,
	})
	return nil
}

func (o *Order) Cancel(at time.Time) error {
	if !o.CanBeCancelled() {
		return ErrOrderNotCancelable
	}
	return o.TransitionTo(OrderStatusCancelled, "Order cancelled by customer", at)
}

// Business logic methods for Purchase
func (p *Purchase) Receive(at time.Time) error {
	if p.Status == PurchaseStatusReceived {
		return ErrAlreadyReceived
	}
	p.Status = PurchaseStatusReceived
	p.ReceivedAt = &at
	p.UpdatedAt = at
	return nil
}

// Utility methods
func (ur UserRole) IsValid() bool {
	switch ur {
	case UserRoleAdmin, UserRoleEmployee, UserRoleCustomer:
		return true
	default:
		return false
	}
}

func (os OrderStatus) IsValid() bool {
	switch os {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Description returns the tracking text recorded when an order enters os.
func (os OrderStatus) Description() string {
	switch os {
	case OrderStatusPending:
		return "Order created"
	case OrderStatusConfirmed:
		return "Order confirmed"
	case OrderStatusPreparing:
		return "Order is being prepared"
	case OrderStatusShipped:
		return "Order shipped"
	case OrderStatusDelivered:
		return "Order delivered"
	case OrderStatusCancelled:
		return "Order cancelled"
	default:
		return string(os)
	}
}
