package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

// SaleHandler handles point-of-sale requests
type SaleHandler struct {
	saleService ports.SaleService
	logger      *logger.Logger
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(saleService ports.SaleService, logger *logger.Logger) *SaleHandler {
	return &SaleHandler{saleService: saleService, logger: logger}
}

// CreateSale records a sale and takes its items from stock
// @Summary Record sale
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.CreateSaleRequest true "Sale"
// @Success 201 {object} Response{data=entities.Sale}
// @Failure 400 {object} ErrorResponse
// @Router /sales [post]
func (h *SaleHandler) CreateSale(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	var req ports.CreateSaleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sale, err := h.saleService.Create(c.Request().Context(), claims, req)
	if err != nil {
		return fail(c, h.logger, "Create sale", err)
	}
	return ok(c, http.StatusCreated, sale)
}

// ListSales lists sales, optionally bounded by from/to
// @Summary List sales
// @Tags sales
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD or RFC 3339)"
// @Param to query string false "End date, inclusive for plain dates"
// @Success 200 {object} Response{data=[]entities.Sale}
// @Router /sales [get]
func (h *SaleHandler) ListSales(c echo.Context) error {
	r, err := dateRange(c)
	if err != nil {
		return err
	}
	sales, err := h.saleService.List(c.Request().Context(), r)
	if err != nil {
		return fail(c, h.logger, "List sales", err)
	}
	return ok(c, http.StatusOK, sales)
}

// GetSale returns one sale
// @Summary Get sale
// @Tags sales
// @Produce json
// @Security BearerAuth
// @Param id path string true "Sale ID"
// @Success 200 {object} Response{data=entities.Sale}
// @Failure 404 {object} ErrorResponse
// @Router /sales/{id} [get]
func (h *SaleHandler) GetSale(c echo.Context) error {
	sale, err := h.saleService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Get sale", err)
	}
	return ok(c, http.StatusOK, sale)
}

// PurchaseHandler handles supplier purchase requests
type PurchaseHandler struct {
	purchaseService ports.PurchaseService
	logger          *logger.Logger
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(purchaseService ports.PurchaseService, logger *logger.Logger) *PurchaseHandler {
	return &PurchaseHandler{purchaseService: purchaseService, logger: logger}
}

// @Summary Create purchase
// @Tags purchases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ports.CreatePurchaseRequest true "Purchase"
// @Success 201 {object} Response{data=entities.Purchase}
// @Failure 400 {object} ErrorResponse
// @Router /purchases [post]
func (h *PurchaseHandler) CreatePurchase(c echo.Context) error {
	claims, err := requireClaims(c)
	if err != nil {
		return err
	}
	var req ports.CreatePurchaseRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	purchase, err := h.purchaseService.Create(c.Request().Context(), claims, req)
	if err != nil {
		return fail(c, h.logger, "Create purchase", err)
	}
	return ok(c, http.StatusCreated, purchase)
}

// @Summary List purchases
// @Tags purchases
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]entities.Purchase}
// @Router /purchases [get]
func (h *PurchaseHandler) ListPurchases(c echo.Context) error {
	purchases, err := h.purchaseService.List(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "List purchases", err)
	}
	return ok(c, http.StatusOK, purchases)
}

// @Summary Get purchase
// @Tags purchases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase ID"
// @Success 200 {object} Response{data=entities.Purchase}
// @Failure 404 {object} ErrorResponse
// @Router /purchases/{id} [get]
func (h *PurchaseHandler) GetPurchase(c echo.Context) error {
	purchase, err := h.purchaseService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Get purchase", err)
	}
	return ok(c, http.StatusOK, purchase)
}

// ReceivePurchase marks a purchase received and restocks its products
// @Summary Receive purchase
// @Tags purchases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Purchase ID"
// @Success 200 {object} Response{data=entities.Purchase}
// @Failure 400 {object} ErrorResponse
// @Router /purchases/{id}/receive [put]
func (h *PurchaseHandler) ReceivePurchase(c echo.Context) error {
	purchase, err := h.purchaseService.Receive(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, "Receive purchase", err)
	}
	return ok(c, http.StatusOK, purchase)
}

// ReportHandler serves aggregate reports
type ReportHandler struct {
	reportService ports.ReportService
	logger        *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService ports.ReportService, logger *logger.Logger) *ReportHandler {
	return &ReportHandler{reportService: reportService, logger: logger}
}

// @Summary Dashboard report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=ports.DashboardReport}
// @Router /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c echo.Context) error {
	report, err := h.reportService.Dashboard(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "Dashboard report", err)
	}
	return ok(c, http.StatusOK, report)
}

// @Summary Sales report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date"
// @Param to query string false "End date"
// @Success 200 {object} Response{data=ports.SalesReport}
// @Router /reports/sales [get]
func (h *ReportHandler) Sales(c echo.Context) error {
	r, err := dateRange(c)
	if err != nil {
		return err
	}
	report, err := h.reportService.Sales(c.Request().Context(), r)
	if err != nil {
		return fail(c, h.logger, "Sales report", err)
	}
	return ok(c, http.StatusOK, report)
}

// @Summary Products report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=ports.ProductsReport}
// @Router /reports/products [get]
func (h *ReportHandler) Products(c echo.Context) error {
	report, err := h.reportService.Products(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "Products report", err)
	}
	return ok(c, http.StatusOK, report)
}

// @Summary Customers report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=ports.CustomersReport}
// @Router /reports/customers [get]
func (h *ReportHandler) Customers(c echo.Context) error {
	report, err := h.reportService.Customers(c.Request().Context())
	if err != nil {
		return fail(c, h.logger, "Customers report", err)
	}
	return ok(c, http.StatusOK, report)
}
