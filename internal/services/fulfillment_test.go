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
	"github.com/velora-labs/storefront-api/internal/payment"
)

var getOrderByNumberQuery = regexp.QuoteMeta("SELECT " + orderColumns + " FROM orders WHERE order_number = ?")

func pendingCardOrder() models.Order {
	return models.Order{
		ID: 42, OrderNumber: "ord-42", UserID: "user-1",
		OrderStatus: models.OrderPending, PaymentStatus: models.PaymentPending,
		PaymentMethod: models.MethodCreditCard, PaymentSessionID: "cs_1",
		TotalAmount: 180, Currency: "USD",
	}
}

func expectOrderByNumber(f *fixture, o models.Order) {
	f.mock.ExpectQuery(getOrderByNumberQuery).
		WithArgs(o.OrderNumber).
		WillReturnRows(orderRow(o))
	f.mock.ExpectQuery("SELECT id, order_id, product_id").
		WithArgs(o.ID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "price", "quantity", "size", "color"}).
			AddRow(int64(1), o.ID, int64(1), "Tee", 90.0, 2, nil, nil))
}

func completedEvent() *payment.Event {
	return &payment.Event{ID: "evt_1", Type: payment.EventCompleted, SessionID: "cs_1", CreatedAt: time.Now()}
}

func TestHandleEventFulfillsPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.gateway.session = &payment.CheckoutSession{
		ID: "cs_1", Status: payment.SessionCompleted, OrderNumber: "ord-42",
	}

	expectOrderByNumber(f, pendingCardOrder())
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET payment_status = ?, order_status = ?")).
		WithArgs(string(models.PaymentPaid), string(models.OrderConfirmed), int64(42),
			string(models.PaymentPending), string(models.OrderPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock = stock - ?, sales_count = sales_count + ?")).
		WithArgs(2, 2, int64(1), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	outcome, err := f.fulfillment.HandleEvent(context.Background(), completedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFulfilled, outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleEventDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.gateway.session = &payment.CheckoutSession{
		ID: "cs_1", Status: payment.SessionCompleted, OrderNumber: "ord-42",
	}

	// Order already flipped by the first delivery.
	settled := pendingCardOrder()
	settled.OrderStatus = models.OrderConfirmed
	settled.PaymentStatus = models.PaymentPaid
	expectOrderByNumber(f, settled)

	f.mock.ExpectBegin()
	// Conditional flip matches zero rows: no second decrement happens.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET payment_status = ?, order_status = ?")).
		WithArgs(string(models.PaymentPaid), string(models.OrderConfirmed), int64(42),
			string(models.PaymentPending), string(models.OrderPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	outcome, err := f.fulfillment.HandleEvent(context.Background(), completedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleEventExpiredSessionCancels(t *testing.T) {
	f := newFixture(t)
	f.gateway.session = &payment.CheckoutSession{
		ID: "cs_1", Status: payment.SessionExpired, OrderNumber: "ord-42",
	}

	expectOrderByNumber(f, pendingCardOrder())
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET order_status = ?, payment_status = ?")).
		WithArgs(string(models.OrderCancelled), string(models.PaymentFailed), int64(42), string(models.PaymentPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := &payment.Event{ID: "evt_2", Type: payment.EventExpired, SessionID: "cs_1"}
	outcome, err := f.fulfillment.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleEventNeverUnconfirms(t *testing.T) {
	f := newFixture(t)
	f.gateway.session = &payment.CheckoutSession{
		ID: "cs_1", Status: payment.SessionFailed, OrderNumber: "ord-42",
	}

	settled := pendingCardOrder()
	settled.OrderStatus = models.OrderConfirmed
	settled.PaymentStatus = models.PaymentPaid
	expectOrderByNumber(f, settled)

	// payment_status is no longer PENDING, so the cancel matches nothing.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET order_status = ?, payment_status = ?")).
		WithArgs(string(models.OrderCancelled), string(models.PaymentFailed), int64(42), string(models.PaymentPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	event := &payment.Event{ID: "evt_3", Type: payment.EventAsyncFailed, SessionID: "cs_1"}
	outcome, err := f.fulfillment.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleEventOpenSessionIgnored(t *testing.T) {
	f := newFixture(t)
	f.gateway.session = &payment.CheckoutSession{
		ID: "cs_1", Status: payment.SessionOpen, OrderNumber: "ord-42",
	}

	expectOrderByNumber(f, pendingCardOrder())

	outcome, err := f.fulfillment.HandleEvent(context.Background(), completedEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFulfillStockGoneRollsBackAndCancels(t *testing.T) {
	f := newFixture(t)
	f.gateway.session = &payment.CheckoutSession{
		ID: "cs_1", Status: payment.SessionCompleted, OrderNumber: "ord-42",
	}

	expectOrderByNumber(f, pendingCardOrder())
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET payment_status = ?, order_status = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Stock was consumed elsewhere between checkout and payment.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock = stock - ?, sales_count = sales_count + ?")).
		WithArgs(2, 2, int64(1), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()
	// Compensating cancellation outside the rolled-back transaction.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET order_status = ?, payment_status = ?")).
		WithArgs(string(models.OrderCancelled), string(models.PaymentFailed), int64(42), string(models.PaymentPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.fulfillment.HandleEvent(context.Background(), completedEvent())
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcileOnceSweepsStaleCardOrders(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET order_status = ?, payment_status = ?")).
		WithArgs(string(models.OrderCancelled), string(models.PaymentFailed),
			string(models.MethodCreditCard), string(models.PaymentPending), string(models.OrderPending),
			int64(2400)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	f.fulfillment.reconcileOnce(context.Background(), 40*time.Minute)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
