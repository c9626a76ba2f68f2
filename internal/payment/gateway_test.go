package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/models"
)

func testOrder(total float64, items ...models.OrderItem) *models.Order {
	return &models.Order{
		OrderNumber: "ord-123",
		TotalAmount: total,
		Currency:    "USD",
		Items:       items,
	}
}

func TestValidateOrderTotal(t *testing.T) {
	items := []models.OrderItem{
		{Price: 19.99, Quantity: 2},
		{Price: 5.01, Quantity: 1},
	}

	assert.NoError(t, ValidateOrderTotal(testOrder(44.99, items...)))

	// One cent of float drift is tolerated.
	assert.NoError(t, ValidateOrderTotal(testOrder(45.00, items...)))

	// Anything beyond a cent is a tampered total.
	err := ValidateOrderTotal(testOrder(39.99, items...))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = ValidateOrderTotal(testOrder(45.02, items...))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAmountCents(t *testing.T) {
	assert.Equal(t, int64(4499), AmountCents(testOrder(44.99)))
	assert.Equal(t, int64(100), AmountCents(testOrder(1)))
	// 19.999 rounds half-up at two decimals before conversion.
	assert.Equal(t, int64(2000), AmountCents(testOrder(19.999)))
	assert.Equal(t, int64(0), AmountCents(testOrder(0)))
}

func TestEventSucceeded(t *testing.T) {
	assert.True(t, (&Event{Type: EventCompleted}).Succeeded())
	assert.True(t, (&Event{Type: EventAsyncSucceeded}).Succeeded())
	assert.False(t, (&Event{Type: EventAsyncFailed}).Succeeded())
	assert.False(t, (&Event{Type: EventExpired}).Succeeded())
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "cs_42",
			"client_secret": "cs_42_secret",
			"status":        "open",
			"amount":        4499,
			"currency":      "USD",
			"expires_at":    time.Now().Add(30 * time.Minute).Unix(),
			"metadata":      map[string]string{"order_number": "ord-123"},
		})
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", 30*time.Minute)
	order := testOrder(44.99, models.OrderItem{Price: 44.99, Quantity: 1})

	session, err := g.CreateCheckoutSession(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "cs_42", session.ID)
	assert.Equal(t, SessionOpen, session.Status)
	assert.Equal(t, int64(4499), session.AmountCents)
	assert.Equal(t, "ord-123", session.OrderNumber)

	assert.Equal(t, float64(4499), gotPayload["amount"])
	meta := gotPayload["metadata"].(map[string]any)
	assert.Equal(t, "ord-123", meta["order_number"])
}

func TestCreateCheckoutSessionRejectsMismatchedTotal(t *testing.T) {
	g := NewHTTPGateway("http://unreachable.invalid", "sk_test", time.Minute)
	order := testOrder(99.99, models.OrderItem{Price: 10, Quantity: 1})

	_, err := g.CreateCheckoutSession(context.Background(), order)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestGetSessionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Minute)
	_, err := g.GetSession(context.Background(), "cs_missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestGetSessionGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, "sk_test", time.Minute)
	_, err := g.GetSession(context.Background(), "cs_1")
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}
