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

// SettingsService manages the single-row store configuration.
type SettingsService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewSettingsService creates a new settings service.
func NewSettingsService(database *db.DB, m *metrics.AppMetrics) *SettingsService {
	return &SettingsService{db: database, metrics: m}
}

// Get returns the store settings, falling back to defaults when the row has
// never been written.
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	start := time.Now()
	query := "SELECT store_name, currency, shipping_fee, free_shipping_threshold, cod_enabled, updated_at FROM settings WHERE id = 1"
	var set models.Settings
	err := s.db.QueryRowContext(ctx, query).Scan(
		&set.StoreName, &set.Currency, &set.ShippingFee, &set.FreeShippingThreshold, &set.CODEnabled, &set.UpdatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "settings", start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Settings{Currency: "USD", CODEnabled: true}, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to get settings", err)
	}
	return &set, nil
}

// Update overwrites the settings row, last write wins.
func (s *SettingsService) Update(ctx context.Context, set models.Settings) (*models.Settings, error) {
	if set.StoreName == "" {
		return nil, apperr.Validation("store name is required")
	}
	if set.Currency == "" {
		return nil, apperr.Validation("currency is required")
	}
	if set.ShippingFee < 0 || set.FreeShippingThreshold < 0 {
		return nil, apperr.Validation("shipping amounts must not be negative")
	}

	start := time.Now()
	query := `INSERT INTO settings (id, store_name, currency, shipping_fee, free_shipping_threshold, cod_enabled)
		VALUES (1, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE store_name = VALUES(store_name), currency = VALUES(currency),
		shipping_fee = VALUES(shipping_fee), free_shipping_threshold = VALUES(free_shipping_threshold),
		cod_enabled = VALUES(cod_enabled)`
	_, err := s.db.ExecContext(ctx, query,
		set.StoreName, set.Currency, set.ShippingFee, set.FreeShippingThreshold, set.CODEnabled)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "settings", start, err == nil)
	if err != nil {
		return nil, apperr.Internal("failed to update settings", err)
	}
	return s.Get(ctx)
}
