package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestComputeFinalPrice(t *testing.T) {
	p := Product{Price: 200, Discount: 25}
	p.ComputeFinalPrice()
	assert.InDelta(t, 150.0, p.FinalPrice, 1e-9)

	p = Product{Price: 99.99, Discount: 0}
	p.ComputeFinalPrice()
	assert.InDelta(t, 99.99, p.FinalPrice, 1e-9)

	p = Product{Price: 50, Discount: 100}
	p.ComputeFinalPrice()
	assert.InDelta(t, 0.0, p.FinalPrice, 1e-9)
}

func TestMatchesVariant(t *testing.T) {
	line := CartItem{ProductID: 1, Size: strPtr("M"), Color: strPtr("red")}

	assert.True(t, line.MatchesVariant(1, strPtr("M"), strPtr("red")))
	assert.False(t, line.MatchesVariant(1, strPtr("L"), strPtr("red")))
	assert.False(t, line.MatchesVariant(2, strPtr("M"), strPtr("red")))
	// An absent selector is not a wildcard.
	assert.False(t, line.MatchesVariant(1, nil, strPtr("red")))

	bare := CartItem{ProductID: 1}
	assert.True(t, bare.MatchesVariant(1, nil, nil))
	assert.False(t, bare.MatchesVariant(1, strPtr("M"), nil))
}

func TestRecomputeTotals(t *testing.T) {
	v := CartView{Items: []CartItem{
		{Price: 10.50, Quantity: 2},
		{Price: 5, Quantity: 3},
	}}
	v.RecomputeTotals()
	assert.Equal(t, 5, v.TotalItems)
	assert.InDelta(t, 36.0, v.TotalAmount, 1e-9)

	v.Items = nil
	v.RecomputeTotals()
	assert.Equal(t, 0, v.TotalItems)
	assert.Zero(t, v.TotalAmount)
}

func TestValidOrderStatus(t *testing.T) {
	for _, s := range []OrderStatus{OrderPending, OrderConfirmed, OrderShipped, OrderFulfilled, OrderCancelled} {
		assert.True(t, ValidOrderStatus(s))
	}
	assert.False(t, ValidOrderStatus("DELIVERED"))
	assert.False(t, ValidOrderStatus(""))
}
