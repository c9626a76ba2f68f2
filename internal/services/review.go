package services

import (
	"context"
	"strings"
	"time"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
)

// ReviewService handles product reviews. The product's derived rating and
// review count are rewritten in the same transaction as the review mutation.
type ReviewService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewReviewService creates a new review service.
func NewReviewService(database *db.DB, m *metrics.AppMetrics) *ReviewService {
	return &ReviewService{db: database, metrics: m}
}

// Create inserts a review; one per (product, user).
func (s *ReviewService) Create(ctx context.Context, userID string, req models.CreateReviewRequest) (*models.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.Validation("rating must be between 1 and 5")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	start := time.Now()
	query := "INSERT INTO reviews (product_id, user_id, rating, comment) VALUES (?, ?, ?, ?)"
	result, err := tx.ExecContext(ctx, query, req.ProductID, userID, req.Rating, req.Comment)
	s.metrics.RecordDBQuery(ctx, "INSERT", "reviews", start, err == nil)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Duplicate entry") {
			return nil, apperr.Conflict("you already reviewed this product")
		}
		if strings.Contains(msg, "foreign key constraint") {
			return nil, apperr.NotFound("product %d not found", req.ProductID)
		}
		return nil, apperr.Internal("failed to create review", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperr.Internal("failed to get review ID", err)
	}

	if err := s.refreshProductRating(ctx, tx, req.ProductID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("failed to commit review", err)
	}

	return &models.Review{
		ID:        id,
		ProductID: req.ProductID,
		UserID:    userID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: time.Now(),
	}, nil
}

// List returns reviews for a product, newest first.
func (s *ReviewService) List(ctx context.Context, productID int64) ([]models.Review, error) {
	start := time.Now()
	query := "SELECT id, product_id, user_id, rating, comment, created_at FROM reviews WHERE product_id = ? ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, query, productID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "reviews", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to list reviews", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.UserID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, apperr.Internal("failed to scan review", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// Delete removes a review. Owners delete their own; admin deletion passes
// an empty userID to skip the ownership check.
func (s *ReviewService) Delete(ctx context.Context, reviewID int64, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var productID int64
	var owner string
	start := time.Now()
	err = tx.QueryRowContext(ctx, "SELECT product_id, user_id FROM reviews WHERE id = ?", reviewID).Scan(&productID, &owner)
	s.metrics.RecordDBQuery(ctx, "SELECT", "reviews", start, err == nil)
	if err != nil {
		return apperr.NotFound("review %d not found", reviewID)
	}
	if userID != "" && owner != userID {
		return apperr.Forbidden("review %d does not belong to you", reviewID)
	}

	start = time.Now()
	_, err = tx.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", reviewID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "reviews", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to delete review", err)
	}

	if err := s.refreshProductRating(ctx, tx, productID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("failed to commit review deletion", err)
	}
	return nil
}

// refreshProductRating rewrites the product's derived rating fields from the
// surviving reviews.
func (s *ReviewService) refreshProductRating(ctx context.Context, tx Execer, productID int64) error {
	start := time.Now()
	query := `UPDATE products p SET
		p.rating = COALESCE((SELECT AVG(r.rating) FROM reviews r WHERE r.product_id = p.id), 0),
		p.num_reviews = (SELECT COUNT(*) FROM reviews r WHERE r.product_id = p.id)
		WHERE p.id = ?`
	_, err := tx.ExecContext(ctx, query, productID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "products", start, err == nil)
	if err != nil {
		return apperr.Internal("failed to refresh product rating", err)
	}
	return nil
}
