package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/events"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
	"github.com/velora-labs/storefront-api/internal/payment"
)

const orderColumns = "id, order_number, user_id, order_status, payment_status, payment_method, payment_session_id, total_amount, currency, shipping_name, shipping_street, shipping_city, shipping_zip, shipping_country, created_at, updated_at"

// OrderService builds orders from checkout requests and serves order reads.
// COD orders commit stock synchronously at creation; card orders defer the
// decrement to the fulfillment guard so an abandoned payment never costs
// stock.
type OrderService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	products *ProductService
	carts    *CartService
	gateway  payment.Gateway
	events   *events.Publisher
	currency string
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(
	database *db.DB,
	m *metrics.AppMetrics,
	products *ProductService,
	carts *CartService,
	gateway payment.Gateway,
	publisher *events.Publisher,
	currency string,
) *OrderService {
	return &OrderService{
		db:       database,
		metrics:  m,
		products: products,
		carts:    carts,
		gateway:  gateway,
		events:   publisher,
		currency: currency,
	}
}

// CheckoutResult is what the storefront needs after placing an order: the
// order itself and, for card payments, the session the client completes.
type CheckoutResult struct {
	Order   *models.Order            `json:"order"`
	Session *payment.CheckoutSession `json:"session,omitempty"`
}

// CreateOrder snapshots the requested items into an immutable order. Each
// item is re-read from the live catalog for its authoritative price and
// stock; insufficiency is a Validation failure, never a silent clamp.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("order must contain at least one item")
	}
	if req.PaymentMethod != models.MethodCOD && req.PaymentMethod != models.MethodCreditCard {
		return nil, apperr.Validation("unsupported payment method %q", req.PaymentMethod)
	}
	if req.ShippingAddress.Name == "" || req.ShippingAddress.Street == "" ||
		req.ShippingAddress.City == "" || req.ShippingAddress.Country == "" {
		return nil, apperr.Validation("shipping address is incomplete")
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, apperr.Validation("item quantity must be at least 1")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	// Snapshot authoritative price and validate stock per line.
	frozen := make([]models.OrderItem, 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		start := time.Now()
		query := "SELECT name, price, discount, stock, is_active FROM products WHERE id = ?"
		var (
			name            string
			price, discount float64
			stock           int
			isActive        bool
		)
		err := tx.QueryRowContext(ctx, query, item.ProductID).Scan(&name, &price, &discount, &stock, &isActive)
		s.metrics.RecordDBQuery(ctx, "SELECT", "products", start, err == nil || errors.Is(err, sql.ErrNoRows))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("product %d not found", item.ProductID)
		}
		if err != nil {
			return nil, apperr.Internal("failed to read product", err)
		}
		if !isActive {
			return nil, apperr.Validation("product %d is not available", item.ProductID)
		}
		if item.Quantity > stock {
			return nil, apperr.Validation("insufficient stock for product %d: requested %d, available %d",
				item.ProductID, item.Quantity, stock)
		}

		finalPrice := decimal.NewFromFloat(price).
			Mul(decimal.NewFromInt(100).Sub(decimal.NewFromFloat(discount))).
			Div(decimal.NewFromInt(100)).
			Round(2)

		frozen = append(frozen, models.OrderItem{
			ProductID: item.ProductID,
			Name:      name,
			Price:     finalPrice.InexactFloat64(),
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
		total = total.Add(finalPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	orderStatus := models.OrderPending
	if req.PaymentMethod == models.MethodCOD {
		// COD has no asynchronous confirmation step, so consistency is
		// enforced synchronously: stock committed here, exactly once.
		orderStatus = models.OrderConfirmed
		for _, item := range frozen {
			if err := s.products.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, apperr.Validation("insufficient stock for product %d", item.ProductID)
				}
				return nil, err
			}
		}
	}

	orderNumber := uuid.NewString()
	start := time.Now()
	insertOrder := `INSERT INTO orders
		(order_number, user_id, order_status, payment_status, payment_method, total_amount, currency,
		 shipping_name, shipping_street, shipping_city, shipping_zip, shipping_country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, insertOrder,
		orderNumber, userID, orderStatus, models.PaymentPending, req.PaymentMethod,
		total.InexactFloat64(), s.currency,
		req.ShippingAddress.Name, req.ShippingAddress.Street, req.ShippingAddress.City,
		req.ShippingAddress.Zip, req.ShippingAddress.Country,
	)
	s.metrics.RecordDBQuery(ctx, "INSERT", "orders", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to create order", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get order ID", err)
	}

	start = time.Now()
	insertItem := "INSERT INTO order_items (order_id, product_id, name, price, quantity, size, color) VALUES (?, ?, ?, ?, ?, ?, ?)"
	for i := range frozen {
		frozen[i].OrderID = orderID
		if _, err := tx.ExecContext(ctx, insertItem,
			orderID, frozen[i].ProductID, frozen[i].Name, frozen[i].Price,
			frozen[i].Quantity, frozen[i].Size, frozen[i].Color,
		); err != nil {
			s.metrics.RecordDBQuery(ctx, "INSERT", "order_items", start, false)
			return nil, apperr.Internal("failed to create order item", err)
		}
	}
	s.metrics.RecordDBQuery(ctx, "INSERT", "order_items", start, true)

	// Cart is cleared (not deleted) as part of the same commit.
	start = time.Now()
	_, err = tx.ExecContext(ctx,
		"DELETE ci FROM cart_items ci JOIN carts c ON ci.cart_id = c.id WHERE c.user_id = ?", userID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to clear cart", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit order", err)
	}

	order := &models.Order{
		ID:              orderID,
		OrderNumber:     orderNumber,
		UserID:          userID,
		OrderStatus:     orderStatus,
		PaymentStatus:   models.PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		TotalAmount:     total.InexactFloat64(),
		Currency:        s.currency,
		ShippingName:    req.ShippingAddress.Name,
		ShippingStreet:  req.ShippingAddress.Street,
		ShippingCity:    req.ShippingAddress.City,
		ShippingZip:     req.ShippingAddress.Zip,
		ShippingCountry: req.ShippingAddress.Country,
		Items:           frozen,
	}

	s.recordCreated(ctx, order)
	s.events.PublishOrderEvent(ctx, "created", order)
	if order.OrderStatus == models.OrderConfirmed {
		s.events.PublishOrderEvent(ctx, "confirmed", order)
	}

	res := &CheckoutResult{Order: order}
	if req.PaymentMethod == models.MethodCreditCard {
		session, err := s.gateway.CreateCheckoutSession(ctx, order)
		if err != nil {
			// The order would otherwise sit PENDING until the reconciliation
			// sweep; cancel it eagerly so the client can retry checkout.
			s.compensateCancel(ctx, order)
			return nil, err
		}
		if err := s.attachSession(ctx, orderID, session.ID); err != nil {
			return nil, err
		}
		order.PaymentSessionID = session.ID
		res.Session = session
	}

	log.Info().
		Str("order", orderNumber).
		Str("user_id", userID).
		Str("method", string(req.PaymentMethod)).
		Str("status", string(order.OrderStatus)).
		Float64("total", order.TotalAmount).
		Msg("order created")

	return res, nil
}

func (s *OrderService) attachSession(ctx context.Context, orderID int64, sessionID string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_session_id = ?, updated_at = NOW() WHERE id = ?", sessionID, orderID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to attach payment session", err)
	}
	return nil
}

// compensateCancel marks an order CANCELLED/FAILED if payment is still
// pending. Best effort: a failure here is logged, not propagated.
func (s *OrderService) compensateCancel(ctx context.Context, order *models.Order) {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET order_status = ?, payment_status = ?, updated_at = NOW() WHERE id = ? AND payment_status = ?",
		models.OrderCancelled, models.PaymentFailed, order.ID, models.PaymentPending)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		log.Error().Err(err).Str("order", order.OrderNumber).Msg("compensating cancellation failed")
		return
	}
	s.metrics.OrdersCancelled.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("reason", "session_creation_failed"),
	})...))
}

func (s *OrderService) recordCreated(ctx context.Context, order *models.Order) {
	attrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("payment_method", string(order.PaymentMethod)),
		attribute.String("order_status", string(order.OrderStatus)),
	})
	s.metrics.OrdersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	if order.OrderStatus == models.OrderConfirmed {
		s.metrics.RevenueTotal.Add(ctx, order.TotalAmount, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("payment_method", string(order.PaymentMethod)),
			attribute.String("currency", order.Currency),
		})...))
	}
}

// GetOrder returns one order with its frozen items.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.getOrderWhere(ctx, "id = ?", orderID)
}

// GetOrderByNumber returns one order by its public order number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "order_number = ?", orderNumber)
}

func (s *OrderService) getOrderWhere(ctx context.Context, where string, arg any) (*models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders WHERE " + where
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, arg))
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to get order", err)
	}

	items, err := s.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	var o models.Order
	var sessionID sql.NullString
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.OrderStatus, &o.PaymentStatus, &o.PaymentMethod,
		&sessionID, &o.TotalAmount, &o.Currency,
		&o.ShippingName, &o.ShippingStreet, &o.ShippingCity, &o.ShippingZip, &o.ShippingCountry,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentSessionID = sessionID.String
	return &o, nil
}

func (s *OrderService) loadItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	start := time.Now()
	query := "SELECT id, order_id, product_id, name, price, quantity, size, color FROM order_items WHERE order_id = ? ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query, orderID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "order_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to get order items", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name,
			&item.Price, &item.Quantity, &item.Size, &item.Color); err != nil {
			return nil, apperr.Internal("failed to scan order item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListUserOrders returns a user's orders, newest first, without item detail.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE user_id = ? ORDER BY created_at DESC"
	return s.listOrders(ctx, query, userID)
}

// ListOrders returns a page of all orders for the admin surface.
func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := "SELECT " + orderColumns + " FROM orders ORDER BY created_at DESC LIMIT ? OFFSET ?"
	return s.listOrders(ctx, query, limit, offset)
}

func (s *OrderService) listOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "orders", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to query orders", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Internal("failed to scan order", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus is the admin transition for the delivery axis
// (CONFIRMED -> SHIPPED -> FULFILLED). Cancellation is only allowed while
// the order is still PENDING; a confirmed order is never un-confirmed here,
// and a cancelled order never leaves CANCELLED.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	if !models.ValidOrderStatus(status) {
		return apperr.Validation("invalid order status %q", status)
	}

	var query string
	var args []any
	if status == models.OrderCancelled {
		query = `UPDATE orders SET order_status = ?, payment_status = ?, updated_at = NOW()
			WHERE id = ? AND order_status = ?`
		args = []any{models.OrderCancelled, models.PaymentFailed, orderID, models.OrderPending}
	} else {
		query = "UPDATE orders SET order_status = ?, updated_at = NOW() WHERE id = ? AND order_status NOT IN (?, ?)"
		args = []any{status, orderID, models.OrderCancelled, models.OrderPending}
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to update order status", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal("failed to get rows affected", err)
	}
	if n == 0 {
		// Either the order does not exist or the transition is not allowed
		// from its current state.
		if _, getErr := s.GetOrder(ctx, orderID); getErr != nil {
			return getErr
		}
		return apperr.Validation("order %d cannot transition to %s", orderID, status)
	}

	if status == models.OrderCancelled {
		s.metrics.OrdersCancelled.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("reason", "admin"),
		})...))
	}
	return nil
}
