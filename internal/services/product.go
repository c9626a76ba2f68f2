package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/cache"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
)

const productColumns = "id, name, description, category_id, sku, image_url, price, discount, stock, sales_count, rating, num_reviews, is_active, created_at, updated_at"

// Execer is the subset of *sql.DB / *sql.Tx the conditional stock primitive
// needs, so fulfillment can run it inside its own transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ProductService handles catalog reads and admin catalog mutations.
type ProductService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   *cache.ProductCache
}

// NewProductService creates a new product service. cache may be nil.
func NewProductService(database *db.DB, m *metrics.AppMetrics, c *cache.ProductCache) *ProductService {
	return &ProductService{db: database, metrics: m, cache: c}
}

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.CategoryID, &p.SKU, &p.ImageURL,
		&p.Price, &p.Discount, &p.Stock, &p.SalesCount, &p.Rating, &p.NumReviews,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ComputeFinalPrice()
	return &p, nil
}

// GetProduct returns one product, read through the cache.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if p := s.cache.GetProduct(ctx, id); p != nil {
		return p, nil
	}

	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get product", err)
	}

	s.cache.SetProduct(ctx, p)
	return p, nil
}

// ListProducts returns a page of products, optionally filtered by category.
// Inactive products stay visible to admins but are excluded when activeOnly
// is set.
func (s *ProductService) ListProducts(ctx context.Context, categoryID int64, activeOnly bool, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + productColumns + " FROM products"
	var args []any
	var conds []string
	if categoryID > 0 {
		conds = append(conds, "category_id = ?")
		args = append(args, categoryID)
	}
	if activeOnly {
		conds = append(conds, "is_active = TRUE")
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to list products", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Internal("failed to scan product", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("failed to list products", err)
	}
	return products, nil
}

// CreateProduct inserts a new catalog entry.
func (s *ProductService) CreateProduct(ctx context.Context, req models.ProductUpsert) (*models.Product, error) {
	if err := validateProductUpsert(req); err != nil {
		return nil, err
	}

	start := time.Now()
	query := `INSERT INTO products (name, description, category_id, sku, image_url, price, discount, stock, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query,
		req.Name, req.Description, req.CategoryID, req.SKU, req.ImageURL,
		req.Price, req.Discount, req.Stock, req.IsActive,
	)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to create product", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get product ID", err)
	}

	s.recordStockLevel(ctx, id, req.Stock)
	return s.GetProduct(ctx, id)
}

// UpdateProduct overwrites a catalog entry, last write wins. FinalPrice is
// derived on read, so price/discount edits need no recomputation step here.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, req models.ProductUpsert) (*models.Product, error) {
	if err := validateProductUpsert(req); err != nil {
		return nil, err
	}

	start := time.Now()
	query := `UPDATE products SET name = ?, description = ?, category_id = ?, sku = ?, image_url = ?,
		price = ?, discount = ?, stock = ?, is_active = ?, updated_at = NOW() WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query,
		req.Name, req.Description, req.CategoryID, req.SKU, req.ImageURL,
		req.Price, req.Discount, req.Stock, req.IsActive, id,
	)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "products", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to update product", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetProduct(ctx, id); getErr != nil {
			return nil, getErr
		}
	}

	s.cache.Invalidate(ctx, id)
	s.recordStockLevel(ctx, id, req.Stock)
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes a product. Orders keep their frozen copies; only the
// live catalog row goes away.
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	start := time.Now()
	result, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "products", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to delete product", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("product %d not found", id)
	}

	s.cache.Invalidate(ctx, id)
	return nil
}

// DecrementStock atomically takes qty units from a product's stock and bumps
// its sales counter. The decrement only applies when enough stock remains;
// sql.ErrNoRows signals insufficiency. ex may be a transaction so the caller
// can tie the decrement to a status flip.
func (s *ProductService) DecrementStock(ctx context.Context, ex Execer, productID int64, qty int) error {
	start := time.Now()
	query := `UPDATE products SET stock = stock - ?, sales_count = sales_count + ?, updated_at = NOW()
		WHERE id = ? AND stock >= ?`
	result, err := ex.ExecContext(ctx, query, qty, qty, productID, qty)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "products", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to decrement stock", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal("failed to get rows affected", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	s.cache.Invalidate(ctx, productID)
	return nil
}

// recordStockLevel publishes the stock gauge for one product.
func (s *ProductService) recordStockLevel(ctx context.Context, productID int64, stock int) {
	s.metrics.StockLevel.Record(ctx, int64(stock), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", productID),
	})...))
}

func validateProductUpsert(req models.ProductUpsert) error {
	if req.Name == "" {
		return apperr.Validation("product name is required")
	}
	if req.Price < 0 {
		return apperr.Validation("product price must not be negative")
	}
	if req.Discount < 0 || req.Discount > 100 {
		return apperr.Validation("discount must be between 0 and 100")
	}
	if req.Stock < 0 {
		return apperr.Validation("stock must not be negative")
	}
	return nil
}
