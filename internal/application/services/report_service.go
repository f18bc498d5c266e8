package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cremosos/core/internal/domain/entities"
	"github.com/cremosos/core/internal/infrastructure/logger"
	"github.com/cremosos/core/internal/ports"
)

const (
	topN          = 5
	recentOrders  = 5
	lowStockLevel = 10
)

// ReportService computes aggregate reports from stored orders, sales,
// products and users
type ReportService struct {
	repos  ports.Repositories
	logger *logger.Logger
}

// NewReportService creates a new report service
func NewReportService(repos ports.Repositories, logger *logger.Logger) *ReportService {
	return &ReportService{repos: repos, logger: logger}
}

var _ ports.ReportService = (*ReportService)(nil)

type snapshot struct {
	orders   []*entities.Order
	sales    []*entities.Sale
	products []*entities.Product
	users    []*entities.User
}

// load reads the collections a report needs concurrently.
func (s *ReportService) load(ctx context.Context, r ports.DateRange) (*snapshot, error) {
	snap := &snapshot{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.orders, err = s.repos.Orders.List(ctx, func(o *entities.Order) bool {
			return o.Status != entities.OrderStatusCancelled && r.Contains(o.CreatedAt)
		})
		return err
	})
	g.Go(func() (err error) {
		snap.sales, err = s.repos.Sales.List(ctx, func(sale *entities.Sale) bool { return r.Contains(sale.CreatedAt) })
		return err
	})
	g.Go(func() (err error) {
		snap.products, err = s.repos.Products.List(ctx, nil)
		return err
	})
	g.Go(func() (err error) {
		snap.users, err = s.repos.Users.List(ctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load report data: %w", err)
	}
	return snap, nil
}

// Dashboard summarizes all non-cancelled orders and sales
func (s *ReportService) Dashboard(ctx context.Context) (*ports.DashboardReport, error) {
	snap, err := s.load(ctx, ports.DateRange{})
	if err != nil {
		return nil, err
	}

	report := &ports.DashboardReport{
		OrdersCount:     len(snap.orders),
		SalesCount:      len(snap.sales),
		SalesByCategory: map[string]float64{},
		RecentOrders:    []*entities.Order{},
		LowStock:        []*entities.Product{},
	}

	categories := make(map[string]string, len(snap.products))
	for _, p := range snap.products {
		categories[p.ID] = p.Category
		if p.Stock < lowStockLevel {
			report.LowStock = append(report.LowStock, p)
		}
	}

	customers := map[string]bool{}
	var orderRevenue float64
	for _, o := range snap.orders {
		orderRevenue += o.Total
		customers[o.UserID] = true
		for _, item := range o.Items {
			report.SalesByCategory[categories[item.ProductID]] += item.ProductPrice * float64(item.Quantity)
		}
	}
	report.TotalRevenue = orderRevenue
	for _, sale := range snap.sales {
		report.TotalRevenue += sale.Total
		for _, item := range sale.Items {
			category := item.Category
			if category == "" {
				category = categories[item.ProductID]
			}
			report.SalesByCategory[category] += item.Subtotal
		}
	}
	report.TotalRevenue = round2(report.TotalRevenue)
	report.ActiveCustomers = len(customers)
	if len(snap.orders) > 0 {
		report.AverageOrderValue = round2(orderRevenue / float64(len(snap.orders)))
	}
	for k, v := range report.SalesByCategory {
		report.SalesByCategory[k] = round2(v)
	}

	stats := productStats(snap)
	if len(stats) > topN {
		stats = stats[:topN]
	}
	report.TopProducts = stats

	orders := append([]*entities.Order(nil), snap.orders...)
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if len(orders) > recentOrders {
		orders = orders[:recentOrders]
	}
	report.RecentOrders = append(report.RecentOrders, orders...)

	return report, nil
}

// Sales reports revenue within r with a per-day breakdown
func (s *ReportService) Sales(ctx context.Context, r ports.DateRange) (*ports.SalesReport, error) {
	snap, err := s.load(ctx, r)
	if err != nil {
		return nil, err
	}

	report := &ports.SalesReport{
		OrdersCount: len(snap.orders),
		SalesCount:  len(snap.sales),
		Daily:       []ports.DayStat{},
	}
	if !r.From.IsZero() {
		from := r.From
		report.From = &from
	}
	if !r.To.IsZero() {
		to := r.To
		report.To = &to
	}

	days := map[string]*ports.DayStat{}
	addDay := func(at time.Time, revenue float64) {
		key := at.UTC().Format("2006-01-02")
		d, ok := days[key]
		if !ok {
			d = &ports.DayStat{Date: key}
			days[key] = d
		}
		d.Revenue += revenue
		d.Count++
	}

	for _, o := range snap.orders {
		report.Revenue += o.Total
		report.Tax += o.Tax
		report.Shipping += o.ShippingCost
		for _, item := range o.Items {
			report.UnitsSold += item.Quantity
		}
		addDay(o.CreatedAt, o.Total)
	}
	for _, sale := range snap.sales {
		report.Revenue += sale.Total
		report.Tax += sale.Tax
		for _, item := range sale.Items {
			report.UnitsSold += item.Quantity
		}
		addDay(sale.CreatedAt, sale.Total)
	}
	report.Revenue = round2(report.Revenue)
	report.Tax = round2(report.Tax)
	report.Shipping = round2(report.Shipping)

	for _, d := range days {
		d.Revenue = round2(d.Revenue)
		report.Daily = append(report.Daily, *d)
	}
	sort.Slice(report.Daily, func(i, j int) bool { return report.Daily[i].Date < report.Daily[j].Date })
	return report, nil
}

// Products reports units sold and revenue per product
func (s *ReportService) Products(ctx context.Context) (*ports.ProductsReport, error) {
	snap, err := s.load(ctx, ports.DateRange{})
	if err != nil {
		return nil, err
	}

	report := &ports.ProductsReport{
		Products:      productStats(snap),
		TotalProducts: len(snap.products),
	}
	for _, p := range snap.products {
		if p.Stock <= 0 {
			report.OutOfStock++
		}
		report.StockValue += p.Price * float64(p.Stock)
	}
	report.StockValue = round2(report.StockValue)
	return report, nil
}

// Customers reports customer counts and the biggest spenders
func (s *ReportService) Customers(ctx context.Context) (*ports.CustomersReport, error) {
	snap, err := s.load(ctx, ports.DateRange{})
	if err != nil {
		return nil, err
	}

	report := &ports.CustomersReport{
		TopCustomers: []ports.CustomerStat{},
		ByCity:       map[string]int{},
	}

	spend := map[string]*ports.CustomerStat{}
	for _, u := range snap.users {
		if u.Role != entities.UserRoleCustomer {
			continue
		}
		report.TotalCustomers++
		city := "unknown"
		if u.Address != nil && u.Address.City != "" {
			city = u.Address.City
		}
		report.ByCity[city]++
		spend[u.ID] = &ports.CustomerStat{UserID: u.ID, Name: u.Name, Email: u.Email}
	}
	for _, o := range snap.orders {
		stat, ok := spend[o.UserID]
		if !ok {
			stat = &ports.CustomerStat{UserID: o.UserID, Name: o.UserName, Email: o.UserEmail}
			spend[o.UserID] = stat
		}
		stat.OrdersCount++
		stat.TotalSpent += o.Total
	}

	for _, stat := range spend {
		if stat.OrdersCount == 0 {
			continue
		}
		report.ActiveCustomers++
		stat.TotalSpent = round2(stat.TotalSpent)
		report.TopCustomers = append(report.TopCustomers, *stat)
	}
	sort.Slice(report.TopCustomers, func(i, j int) bool {
		a, b := report.TopCustomers[i], report.TopCustomers[j]
		if a.TotalSpent != b.TotalSpent {
			return a.TotalSpent > b.TotalSpent
		}
		return a.UserID < b.UserID
	})
	if len(report.TopCustomers) > topN {
		report.TopCustomers = report.TopCustomers[:topN]
	}
	return report, nil
}

// productStats aggregates units and revenue per product from orders and
// sales, sorted by units sold.
func productStats(snap *snapshot) []ports.ProductStat {
	stats := make(map[string]*ports.ProductStat, len(snap.products))
	for _, p := range snap.products {
		stats[p.ID] = &ports.ProductStat{ProductID: p.ID, ProductName: p.Name, Stock: p.Stock, Rating: p.Rating}
	}
	add := func(id, name string, units int, revenue float64) {
		stat, ok := stats[id]
		if !ok {
			stat = &ports.ProductStat{ProductID: id, ProductName: name}
			stats[id] = stat
		}
		stat.UnitsSold += units
		stat.Revenue += revenue
	}
	for _, o := range snap.orders {
		for _, item := range o.Items {
			add(item.ProductID, item.ProductName, item.Quantity, item.ProductPrice*float64(item.Quantity))
		}
	}
	for _, sale := range snap.sales {
		for _, item := range sale.Items {
			add(item.ProductID, item.ProductName, item.Quantity, item.Subtotal)
		}
	}

	out := make([]ports.ProductStat, 0, len(stats))
	for _, stat := range stats {
		stat.Revenue = round2(stat.Revenue)
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitsSold != out[j].UnitsSold {
			return out[i].UnitsSold > out[j].UnitsSold
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
