package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/cremosos/core/docs"
	httpHandlers "github.com/cremosos/core/internal/adapters/http"
	"github.com/cremosos/core/internal/adapters/repository"
	"github.com/cremosos/core/internal/application/services"
	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/config"
	"github.com/cremosos/core/internal/infrastructure/database"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/infrastructure/storage"
	"github.com/cremosos/core/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	logger   *logger.Logger
	store    *storage.Store
	db       *database.DB
	registry *prometheus.Registry
}

// Options carries the optional collaborators of a Server.
type Options struct {
	// DB is the SQL connection behind sqlite and postgres stores.
	DB *database.DB
	// Registry receives the HTTP metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a new server instance on top of an initialized store
func New(cfg *config.Config, store *storage.Store, appLogger *logger.Logger, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("server requires a store")
	}

	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler(appLogger)
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Initialize repositories
	repos := repository.NewRepositories(store)

	// Initialize services
	authService := services.NewAuthService(repos.Users, cfg.JWT, appLogger)
	productService := services.NewProductService(repos.Products, appLogger)
	cartService := services.NewCartService(repos.Carts, repos.Products, appLogger)
	orderService := services.NewOrderService(repos.Orders, repos.Users, cartService, appLogger)
	saleService := services.NewSaleService(repos.Sales, repos.Products, repos.Users, appLogger)
	purchaseService := services.NewPurchaseService(repos.Purchases, repos.Suppliers, repos.Products, appLogger)
	supplierService := services.NewSupplierService(repos.Suppliers, appLogger)
	roleService := services.NewRoleService(repos.Roles, appLogger)
	reportService := services.NewReportService(repos, appLogger)

	server := &Server{
		echo:     e,
		config:   cfg,
		logger:   appLogger,
		store:    store,
		db:       opts.DB,
		registry: registry,
	}

	server.setupMiddleware()

	if cfg.Metrics.Enabled {
		if err := server.setupMetrics(); err != nil {
			return nil, err
		}
	}

	server.setupRoutes(routes{
		auth:      httpHandlers.NewAuthHandler(authService, appLogger),
		products:  httpHandlers.NewProductHandler(productService, appLogger),
		cart:      httpHandlers.NewCartHandler(cartService, appLogger),
		orders:    httpHandlers.NewOrderHandler(orderService, appLogger),
		sales:     httpHandlers.NewSaleHandler(saleService, appLogger),
		purchases: httpHandlers.NewPurchaseHandler(purchaseService, appLogger),
		suppliers: httpHandlers.NewSupplierHandler(supplierService, appLogger),
		roles:     httpHandlers.NewRoleHandler(roleService, appLogger),
		reports:   httpHandlers.NewReportHandler(reportService, appLogger),
	}, authService)

	return server, nil
}

type routes struct {
	auth      *httpHandlers.AuthHandler
	products  *httpHandlers.ProductHandler
	cart      *httpHandlers.CartHandler
	orders    *httpHandlers.OrderHandler
	sales     *httpHandlers.SaleHandler
	purchases *httpHandlers.PurchaseHandler
	suppliers *httpHandlers.SupplierHandler
	roles     *httpHandlers.RoleHandler
	reports   *httpHandlers.ReportHandler
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", values.Method,
				"uri", values.URI,
				"status", values.Status,
				"latency_ms", float64(values.Latency.Nanoseconds()) / 1000000,
				"remote_ip", values.RemoteIP,
				"user_agent", values.UserAgent,
			}

			log := s.logger.WithRequestID(values.RequestID)
			if claims := httpHandlers.ClaimsFrom(c); claims != nil {
				log = log.WithUserID(claims.UserID)
			}
			if values.Error != nil {
				fields = append(fields, "error", values.Error.Error())
				log.Warnw("HTTP request failed", fields...)
			} else {
				log.Infow("HTTP request", fields...)
			}

			return nil
		},
	}))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))

	if n := s.config.Security.RateLimitRequests; n > 0 {
		limit := rate.Limit(n)
		if window := s.config.Security.RateLimitWindow; window > 0 {
			limit = rate.Every(window / time.Duration(n))
		}
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Path(), "/health") || c.Path() == "/ready" || c.Path() == "/metrics"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{Rate: limit, Burst: n, ExpiresIn: s.config.Security.RateLimitWindow},
			),
			IdentifierExtractor: func(ctx echo.Context) (string, error) {
				return ctx.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return c.JSON(http.StatusForbidden, httpHandlers.Response{Message: "rate limit exceeded"})
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return c.JSON(http.StatusTooManyRequests, httpHandlers.Response{Message: "rate limit exceeded"})
			},
		}))
	}

	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
	}))

	s.echo.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout:      s.config.Server.RequestTimeout,
		ErrorMessage: `{"success":false,"message":"request timed out"}`,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(h routes, authService ports.AuthService) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/health/detailed", s.detailedHealthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	// API documentation
	s.echo.GET("/docs/*", echoSwagger.WrapHandler)

	api := s.echo.Group("/api")
	auth := s.authMiddleware(authService)
	staff := s.requireRole(entities.UserRoleAdmin, entities.UserRoleEmployee)
	admin := s.requireRole(entities.UserRoleAdmin)

	authGroup := api.Group("/auth")
	authGroup.POST("/login", h.auth.Login)
	authGroup.POST("/register", h.auth.Register)

	userGroup := api.Group("/users", auth)
	userGroup.GET("/profile", h.auth.Profile)
	userGroup.PUT("/profile", h.auth.UpdateProfile)

	productGroup := api.Group("/products")
	productGroup.GET("", h.products.ListProducts)
	productGroup.GET("/featured", h.products.Featured)
	productGroup.GET("/:id", h.products.GetProduct)
	productGroup.POST("", h.products.CreateProduct, auth, admin)
	productGroup.PUT("/:id", h.products.UpdateProduct, auth, admin)
	productGroup.PUT("/:id/stock", h.products.AdjustStock, auth, admin)
	productGroup.DELETE("/:id", h.products.DeleteProduct, auth, admin)

	cartGroup := api.Group("/cart", auth)
	cartGroup.GET("", h.cart.GetCart)
	cartGroup.DELETE("", h.cart.Clear)
	cartGroup.POST("/items", h.cart.AddItem)
	cartGroup.PUT("/items/:id", h.cart.UpdateItem)
	cartGroup.DELETE("/items/:id", h.cart.RemoveItem)
	cartGroup.POST("/sync", h.cart.Sync)

	orderGroup := api.Group("/orders", auth)
	orderGroup.POST("", h.orders.CreateOrder)
	orderGroup.GET("", h.orders.ListOrders)
	orderGroup.GET("/:id", h.orders.GetOrder)
	orderGroup.PUT("/:id/cancel", h.orders.CancelOrder)
	orderGroup.GET("/:id/track", h.orders.TrackOrder)
	orderGroup.PUT("/:id/status", h.orders.UpdateStatus, staff)

	saleGroup := api.Group("/sales", auth, staff)
	saleGroup.POST("", h.sales.CreateSale)
	saleGroup.GET("", h.sales.ListSales)
	saleGroup.GET("/:id", h.sales.GetSale)

	purchaseGroup := api.Group("/purchases", auth, admin)
	purchaseGroup.POST("", h.purchases.CreatePurchase)
	purchaseGroup.GET("", h.purchases.ListPurchases)
	purchaseGroup.GET("/:id", h.purchases.GetPurchase)
	purchaseGroup.PUT("/:id/receive", h.purchases.ReceivePurchase)

	supplierGroup := api.Group("/suppliers", auth, admin)
	supplierGroup.GET("", h.suppliers.List)
	supplierGroup.POST("", h.suppliers.Create)
	supplierGroup.GET("/:id", h.suppliers.Get)
	supplierGroup.PUT("/:id", h.suppliers.Update)
	supplierGroup.DELETE("/:id", h.suppliers.Delete)

	roleGroup := api.Group("/roles", auth, admin)
	roleGroup.GET("", h.roles.List)
	roleGroup.POST("", h.roles.Create)
	roleGroup.GET("/:id", h.roles.Get)
	roleGroup.PUT("/:id", h.roles.Update)
	roleGroup.DELETE("/:id", h.roles.Delete)

	reportGroup := api.Group("/reports", auth, staff)
	reportGroup.GET("/dashboard", h.reports.Dashboard)
	reportGroup.GET("/sales", h.reports.Sales)
	reportGroup.GET("/products", h.reports.Products)
	reportGroup.GET("/customers", h.reports.Customers)
}

// setupMetrics registers the HTTP metrics and exposes the registry
func (s *Server) setupMetrics() error {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	for _, c := range []prometheus.Collector{
		requestsTotal,
		requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := s.registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return fmt.Errorf("failed to register metrics: %w", err)
			}
		}
	}

	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			requestsTotal.WithLabelValues(c.Request().Method, c.Path(), fmt.Sprintf("%d", status)).Inc()
			requestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())

			return err
		}
	})

	metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
	return nil
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) detailedHealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	status := "ok"
	checks := make(map[string]interface{})

	failures := s.store.Check(ctx)
	collections := make(map[string]string, len(s.store.Collections()))
	for _, name := range s.store.Collections() {
		if err, failed := failures[name]; failed {
			collections[name] = err.Error()
			status = "error"
		} else {
			collections[name] = "ok"
		}
	}
	checks["storage"] = map[string]interface{}{
		"backend":     s.config.Storage.Backend,
		"collections": collections,
	}

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			status = "error"
			checks["database"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		} else {
			checks["database"] = map[string]interface{}{
				"status": "ok",
				"stats":  s.db.GetConnectionInfo(),
			}
		}
	}

	response := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
		"version": map[string]string{
			"app": s.config.App.Version,
			"go":  runtime.Version(),
		},
	}

	if status == "ok" {
		return c.JSON(http.StatusOK, response)
	}
	return c.JSON(http.StatusServiceUnavailable, response)
}

func (s *Server) readinessCheck(c echo.Context) error {
	if failures := s.store.Check(c.Request().Context()); len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":      "not_ready",
			"reason":      "storage_not_ready",
			"collections": names,
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start(address string) error {
	s.logger.Infow("Starting server", "address", address)
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler renders errors in the API envelope
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			msg  = http.StatusText(http.StatusInternalServerError)
		)

		var he *echo.HTTPError
		var ve validator.ValidationErrors
		switch {
		case errors.As(err, &he):
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		case errors.As(err, &ve):
			code = http.StatusBadRequest
			msg = ve.Error()
		default:
			code = httpHandlers.StatusOf(err)
			msg = http.StatusText(code)
		}

		if code >= http.StatusInternalServerError {
			logger.Errorw("Request failed", "error", err, "path", c.Request().URL.Path, "status", code)
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, httpHandlers.Response{Success: false, Message: msg})
		}
		if err != nil {
			logger.Errorw("Error sending response", "error", err)
		}
	}
}
