package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
)

// CategoryService handles category CRUD, last write wins.
type CategoryService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCategoryService creates a new category service.
func NewCategoryService(database *db.DB, m *metrics.AppMetrics) *CategoryService {
	return &CategoryService{db: database, metrics: m}
}

// List returns all categories.
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	start := time.Now()
	query := "SELECT id, name, slug, image_url, created_at, updated_at FROM categories ORDER BY name"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to list categories", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, apperr.Internal("failed to scan category", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Get returns one category.
func (s *CategoryService) Get(ctx context.Context, id int64) (*models.Category, error) {
	start := time.Now()
	query := "SELECT id, name, slug, image_url, created_at, updated_at FROM categories WHERE id = ?"
	var c models.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Slug, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal("failed to get category", err)
	}
	return &c, nil
}

// Create inserts a category.
func (s *CategoryService) Create(ctx context.Context, req models.CategoryUpsert) (*models.Category, error) {
	if req.Name == "" || req.Slug == "" {
		return nil, apperr.Validation("category name and slug are required")
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (name, slug, image_url) VALUES (?, ?, ?)",
		req.Name, req.Slug, req.ImageURL)
	s.metrics.RecordDBQuery(ctx, "INSERT", "categories", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to create category", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get category ID", err)
	}
	return s.Get(ctx, id)
}

// Update overwrites a category.
func (s *CategoryService) Update(ctx context.Context, id int64, req models.CategoryUpsert) (*models.Category, error) {
	if req.Name == "" || req.Slug == "" {
		return nil, apperr.Validation("category name and slug are required")
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE categories SET name = ?, slug = ?, image_url = ?, updated_at = NOW() WHERE id = ?",
		req.Name, req.Slug, req.ImageURL, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "categories", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to update category", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a category; products keep their category_id reference.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	result, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "categories", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to delete category", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("category %d not found", id)
	}
	return nil
}
