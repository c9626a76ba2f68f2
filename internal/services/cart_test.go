package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/models"
)

func strPtr(s string) *string { return &s }

var getProductQuery = regexp.QuoteMeta("SELECT " + productColumns + " FROM products WHERE id = ?")

func TestAddItemMergesExistingLine(t *testing.T) {
	f := newFixture(t)
	now := time.Now()

	f.mock.ExpectQuery(getProductQuery).
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, "Tee", 100, 0, 10, true))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(cartRow(5, "user-1"))
	// The exact (product, size, color) line already exists with quantity 2.
	f.mock.ExpectQuery("SELECT id, quantity FROM cart_items").
		WithArgs(int64(5), int64(1), "M", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow(int64(7), 2))
	// Adding 3 merges into the existing line: one line, quantity 5.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE cart_items SET quantity = ?, price = ?")).
		WithArgs(5, 100.0, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT id, cart_id, product_id").
		WithArgs(int64(5)).
		WillReturnRows(emptyCartItems().
			AddRow(int64(7), int64(5), int64(1), "Tee", 100.0, "", 5, "M", nil, now, now))

	view, err := f.carts.AddItem(context.Background(), "user-1", models.CartItemRequest{
		ProductID: 1, Quantity: 3, Size: strPtr("M"),
	})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, 5, view.TotalItems)
	assert.InDelta(t, 500.0, view.TotalAmount, 1e-9)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAddItemRejectsMergedQuantityBeyondStock(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(getProductQuery).
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, "Tee", 100, 0, 3, true))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(cartRow(5, "user-1"))
	f.mock.ExpectQuery("SELECT id, quantity FROM cart_items").
		WithArgs(int64(5), int64(1), nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow(int64(7), 2))

	// 2 in the cart plus 2 requested exceeds the 3 in stock.
	_, err := f.carts.AddItem(context.Background(), "user-1", models.CartItemRequest{
		ProductID: 1, Quantity: 2,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(getProductQuery).
		WithArgs(int64(1)).
		WillReturnRows(productRow(1, "Tee", 100, 0, 10, false))

	_, err := f.carts.AddItem(context.Background(), "user-1", models.CartItemRequest{
		ProductID: 1, Quantity: 1,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestUpdateItemZeroQuantityRemovesLine(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(cartRow(5, "user-1"))
	f.mock.ExpectExec("DELETE FROM cart_items WHERE cart_id").
		WithArgs(int64(5), int64(1), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT id, cart_id, product_id").
		WithArgs(int64(5)).
		WillReturnRows(emptyCartItems())

	view, err := f.carts.UpdateItem(context.Background(), "user-1", models.CartItemRequest{
		ProductID: 1, Quantity: 0,
	})
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.TotalItems)
	assert.Zero(t, view.TotalAmount)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRemoveItemMissingLine(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(cartRow(5, "user-1"))
	f.mock.ExpectExec("DELETE FROM cart_items WHERE cart_id").
		WithArgs(int64(5), int64(9), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := f.carts.RemoveItem(context.Background(), "user-1", 9, nil, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestGetCreatesCartLazily(t *testing.T) {
	f := newFixture(t)

	// No cart yet: the SELECT returns no rows, an INSERT follows.
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? LIMIT 1")).
		WithArgs("fresh-user").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}))
	f.mock.ExpectExec("INSERT INTO carts").
		WithArgs("fresh-user").
		WillReturnResult(sqlmock.NewResult(11, 1))
	f.mock.ExpectQuery("SELECT id, cart_id, product_id").
		WithArgs(int64(11)).
		WillReturnRows(emptyCartItems())

	view, err := f.carts.Get(context.Background(), "fresh-user")
	require.NoError(t, err)
	assert.Equal(t, int64(11), view.Cart.ID)
	assert.Empty(t, view.Items)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
