package services

import (
	"context"
	"time"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
)

// WishlistService maintains the per-user wishlist: a set keyed by product
// only, no quantity and no variant.
type WishlistService struct {
	db       *db.DB
	metrics  *metrics.AppMetrics
	products *ProductService
}

// NewWishlistService creates a new wishlist service.
func NewWishlistService(database *db.DB, m *metrics.AppMetrics, products *ProductService) *WishlistService {
	return &WishlistService{db: database, metrics: m, products: products}
}

// Get returns the user's wishlist entries, newest first.
func (s *WishlistService) Get(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	start := time.Now()
	query := "SELECT id, user_id, product_id, created_at FROM wishlist_items WHERE user_id = ? ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, query, userID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "wishlist_items", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to get wishlist", err)
	}
	defer rows.Close()

	items := []models.WishlistItem{}
	for rows.Next() {
		var item models.WishlistItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.CreatedAt); err != nil {
			return nil, apperr.Internal("failed to scan wishlist item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Add inserts a product into the set. A duplicate add is a Validation
// failure, not a silent no-op; the unique index enforces the set semantics
// under concurrent adds.
func (s *WishlistService) Add(ctx context.Context, userID string, productID int64) error {
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return err
	}

	start := time.Now()
	query := "INSERT IGNORE INTO wishlist_items (user_id, product_id) VALUES (?, ?)"
	result, err := s.db.ExecContext(ctx, query, userID, productID)
	s.metrics.RecordDBQuery(ctx, "INSERT", "wishlist_items", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to add wishlist item", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.Validation("product %d is already in the wishlist", productID)
	}
	return nil
}

// Remove deletes a product from the set.
func (s *WishlistService) Remove(ctx context.Context, userID string, productID int64) error {
	start := time.Now()
	query := "DELETE FROM wishlist_items WHERE user_id = ? AND product_id = ?"
	result, err := s.db.ExecContext(ctx, query, userID, productID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "wishlist_items", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to remove wishlist item", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("product %d is not in the wishlist", productID)
	}
	return nil
}
