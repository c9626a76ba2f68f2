package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
)

// CartService maintains the per-user cart. Each line is keyed by the exact
// (product, size, color) triple; an absent selector matches only an absent
// selector, which the SQL expresses with the null-safe <=> operator.
type CartService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	products *ProductService
}

// NewCartService creates a new cart service.
func NewCartService(database *db.DB, m *metrics.AppMetrics, products *ProductService) *CartService {
	return &CartService{db: database, metrics: m, products: products}
}

// MonitorActiveCarts periodically publishes the active-carts gauge until ctx
// is cancelled. Run it as a goroutine from main.
func (s *CartService) MonitorActiveCarts(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			var count int64
			err := s.db.QueryRowContext(ctx,
				"SELECT COUNT(DISTINCT c.id) FROM carts c INNER JOIN cart_items ci ON c.id = ci.cart_id",
			).Scan(&count)
			s.metrics.RecordDBQuery(ctx, "SELECT", "carts", start, err == nil)
			if err == nil {
				s.metrics.ActiveCartsCount.Record(ctx, count, metric.WithAttributes(s.metrics.WithServiceName(nil)...))
			}
		}
	}
}

// getOrCreateCart returns the user's cart, creating it lazily on first
// access.
func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	start := time.Now()
	query := "SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? LIMIT 1"
	var cart models.Cart
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "carts", start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		start = time.Now()
		result, insErr := s.db.ExecContext(ctx, "INSERT INTO carts (user_id) VALUES (?)", userID)
		s.metrics.RecordDBQuery(ctx, "INSERT", "carts", start, insErr == nil)
		if insErr != nil {
			return nil, apperr.Internal("failed to create cart", insErr)
		}

		id, idErr := result.LastInsertId()
		if idErr != nil {
			return nil, apperr.Internal("failed to get cart ID", idErr)
		}
		now := time.Now()
		return &models.Cart{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to get cart", err)
	}
	return &cart, nil
}

// Get returns the cart view with freshly derived totals.
func (s *CartService) Get(ctx context.Context, userID string) (*models.CartView, error) {
	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// AddItem adds quantity of a (product, size, color) line. If the exact line
// already exists its quantity is summed instead of creating a duplicate; the
// merged quantity is validated against current stock.
func (s *CartService) AddItem(ctx context.Context, userID string, req models.CartItemRequest) (*models.CartView, error) {
	if req.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}

	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, apperr.Validation("product %d is not available", req.ProductID)
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.findLine(ctx, cart.ID, req.ProductID, req.Size, req.Color)
	if err != nil {
		return nil, err
	}

	newQty := req.Quantity
	if existing != nil {
		newQty += existing.Quantity
	}
	if newQty > product.Stock {
		return nil, apperr.Validation("insufficient stock for product %d: requested %d, available %d",
			req.ProductID, newQty, product.Stock)
	}

	if existing == nil {
		start := time.Now()
		query := `INSERT INTO cart_items (cart_id, product_id, name, price, image_url, quantity, size, color)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = s.db.ExecContext(ctx, query,
			cart.ID, product.ID, product.Name, product.FinalPrice, product.ImageURL,
			req.Quantity, req.Size, req.Color,
		)
		s.metrics.RecordDBQuery(ctx, "INSERT", "cart_items", start, err == nil)
		if err != nil {
			return nil, apperr.Internal("failed to add cart item", err)
		}
	} else {
		start := time.Now()
		query := "UPDATE cart_items SET quantity = ?, price = ?, updated_at = NOW() WHERE id = ?"
		_, err = s.db.ExecContext(ctx, query, newQty, product.FinalPrice, existing.ID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", start, err == nil)
		if err != nil {
			return nil, apperr.Internal("failed to update cart item", err)
		}
	}

	return s.buildView(ctx, cart)
}

// UpdateItem sets the quantity of an existing line. Quantity zero removes
// the line entirely; otherwise the quantity is re-validated against current
// stock and the snapshot price is refreshed from the live product.
func (s *CartService) UpdateItem(ctx context.Context, userID string, req models.CartItemRequest) (*models.CartView, error) {
	if req.Quantity < 0 {
		return nil, apperr.Validation("quantity must not be negative")
	}
	if req.Quantity == 0 {
		return s.RemoveItem(ctx, userID, req.ProductID, req.Size, req.Color)
	}

	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if req.Quantity > product.Stock {
		return nil, apperr.Validation("insufficient stock for product %d: requested %d, available %d",
			req.ProductID, req.Quantity, product.Stock)
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.findLine(ctx, cart.ID, req.ProductID, req.Size, req.Color)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound("cart item not found")
	}

	start := time.Now()
	query := "UPDATE cart_items SET quantity = ?, price = ?, updated_at = NOW() WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, req.Quantity, product.FinalPrice, existing.ID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to update cart item", err)
	}

	return s.buildView(ctx, cart)
}

// RemoveItem deletes the line matching the exact variant triple.
func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64, size, color *string) (*models.CartView, error) {
	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	query := "DELETE FROM cart_items WHERE cart_id = ? AND product_id = ? AND size <=> ? AND color <=> ?"
	result, err := s.db.ExecContext(ctx, query, cart.ID, productID, size, color)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to remove cart item", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("cart item not found")
	}

	return s.buildView(ctx, cart)
}

// Clear removes every line but keeps the cart row; the cart survives
// checkout empty.
func (s *CartService) Clear(ctx context.Context, userID string) (*models.CartView, error) {
	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ?", cart.ID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to clear cart", err)
	}

	return s.buildView(ctx, cart)
}

// findLine looks up the line matching (productID, size, color) exactly,
// returning nil when no such line exists.
func (s *CartService) findLine(ctx context.Context, cartID, productID int64, size, color *string) (*models.CartItem, error) {
	start := time.Now()
	query := `SELECT id, quantity FROM cart_items
		WHERE cart_id = ? AND product_id = ? AND size <=> ? AND color <=> ?`
	var item models.CartItem
	err := s.db.QueryRowContext(ctx, query, cartID, productID, size, color).Scan(&item.ID, &item.Quantity)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to check cart item", err)
	}
	return &item, nil
}

// buildView loads the lines and recomputes totals synchronously.
func (s *CartService) buildView(ctx context.Context, cart *models.Cart) (*models.CartView, error) {
	start := time.Now()
	query := `SELECT id, cart_id, product_id, name, price, image_url, quantity, size, color, created_at, updated_at
		FROM cart_items WHERE cart_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, cart.ID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to get cart items", err)
	}
	defer rows.Close()

	view := &models.CartView{Cart: cart, Items: []models.CartItem{}}
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.Name, &item.Price, &item.ImageURL,
			&item.Quantity, &item.Size, &item.Color, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, apperr.Internal("failed to scan cart item", err)
		}
		view.Items = append(view.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to read cart items", err)
	}

	view.RecomputeTotals()

	s.metrics.CartItemsCount.Record(ctx, int64(view.TotalItems), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("user_id", cart.UserID),
	})...))

	return view, nil
}
