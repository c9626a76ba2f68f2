package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
	"github.com/velora-labs/storefront-api/internal/payment"
)

// newTestMetrics builds an AppMetrics over no-op instruments so services can
// record freely without an exporter.
func newTestMetrics() *metrics.AppMetrics {
	meter := noop.NewMeterProvider().Meter("test")
	m := &metrics.AppMetrics{}
	m.HTTPRequestsTotal, _ = meter.Int64Counter("http_requests")
	m.HTTPRequestsErrors, _ = meter.Int64Counter("http_errors")
	m.HTTPRequestDuration, _ = meter.Float64Histogram("http_duration")
	m.DBQueriesTotal, _ = meter.Int64Counter("db_queries")
	m.DBQueryDuration, _ = meter.Float64Histogram("db_duration")
	m.OrdersCreated, _ = meter.Int64Counter("orders_created")
	m.OrdersFulfilled, _ = meter.Int64Counter("orders_fulfilled")
	m.OrdersCancelled, _ = meter.Int64Counter("orders_cancelled")
	m.PaymentWebhooks, _ = meter.Int64Counter("payment_webhooks")
	m.RevenueTotal, _ = meter.Float64Counter("revenue")
	m.StockLevel, _ = meter.Int64Gauge("stock_level")
	m.CartItemsCount, _ = meter.Int64Gauge("cart_items")
	m.ActiveCartsCount, _ = meter.Int64Gauge("active_carts")
	m.CacheHits, _ = meter.Int64Counter("cache_hits")
	m.CacheMisses, _ = meter.Int64Counter("cache_misses")
	return m
}

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &db.DB{DB: sqlDB}, mock
}

// fakeGateway is a scriptable payment.Gateway for service tests.
type fakeGateway struct {
	session *payment.CheckoutSession
	err     error
	created []*models.Order
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, order *models.Order) (*payment.CheckoutSession, error) {
	f.created = append(f.created, order)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeGateway) GetSession(_ context.Context, _ string) (*payment.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// fixture wires the service graph around one mocked database. The cache and
// the event publisher stay nil, which both tolerate.
type fixture struct {
	mock        sqlmock.Sqlmock
	gateway     *fakeGateway
	products    *ProductService
	carts       *CartService
	wishlists   *WishlistService
	orders      *OrderService
	fulfillment *FulfillmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, mock := newMockDB(t)
	m := newTestMetrics()
	gw := &fakeGateway{}

	products := NewProductService(database, m, nil)
	carts := NewCartService(database, m, products)
	orders := NewOrderService(database, m, products, carts, gw, nil, "USD")

	return &fixture{
		mock:        mock,
		gateway:     gw,
		products:    products,
		carts:       carts,
		wishlists:   NewWishlistService(database, m, products),
		orders:      orders,
		fulfillment: NewFulfillmentService(database, m, gw, nil, nil, orders),
	}
}

func productRow(id int64, name string, price, discount float64, stock int, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "description", "category_id", "sku", "image_url",
		"price", "discount", "stock", "sales_count", "rating", "num_reviews",
		"is_active", "created_at", "updated_at",
	}).AddRow(id, name, "", int64(1), "SKU-1", "", price, discount, stock, 0, 0.0, 0, active, now, now)
}

func cartRow(id int64, userID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).
		AddRow(id, userID, now, now)
}

func orderRow(o models.Order) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "order_number", "user_id", "order_status", "payment_status", "payment_method",
		"payment_session_id", "total_amount", "currency",
		"shipping_name", "shipping_street", "shipping_city", "shipping_zip", "shipping_country",
		"created_at", "updated_at",
	}).AddRow(
		o.ID, o.OrderNumber, o.UserID, string(o.OrderStatus), string(o.PaymentStatus), string(o.PaymentMethod),
		o.PaymentSessionID, o.TotalAmount, o.Currency,
		o.ShippingName, o.ShippingStreet, o.ShippingCity, o.ShippingZip, o.ShippingCountry,
		now, now,
	)
}

func emptyCartItems() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "cart_id", "product_id", "name", "price", "image_url",
		"quantity", "size", "color", "created_at", "updated_at",
	})
}
