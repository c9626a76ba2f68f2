package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/velora-labs/storefront-api/internal/apperr"
)

func TestWishlistAddDuplicateRejected(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(getProductQuery).
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, "Tee", 100, 0, 10, true))
	// INSERT IGNORE touches zero rows when the product is already in the set.
	f.mock.ExpectExec("INSERT IGNORE INTO wishlist_items").
		WithArgs("user-1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := f.wishlists.Add(context.Background(), "user-1", 1)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWishlistAddUnknownProduct(t *testing.T) {
	f := newFixture(t)

	// The product lookup returns no rows.
	f.mock.ExpectQuery(getProductQuery).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := f.wishlists.Add(context.Background(), "user-1", 99)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestWishlistRemoveMissing(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("DELETE FROM wishlist_items").
		WithArgs("user-1", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := f.wishlists.Remove(context.Background(), "user-1", 5)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
