package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/cache"
	"github.com/velora-labs/storefront-api/internal/db"
	"github.com/velora-labs/storefront-api/internal/events"
	"github.com/velora-labs/storefront-api/internal/metrics"
	"github.com/velora-labs/storefront-api/internal/models"
	"github.com/velora-labs/storefront-api/internal/payment"
)

// Outcome reports what a webhook delivery did, for the handler response and
// the webhook metrics.
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled" // stock committed, order confirmed
	OutcomeDuplicate Outcome = "duplicate" // already processed, no-op
	OutcomeCancelled Outcome = "cancelled" // marked failed/expired
	OutcomeIgnored   Outcome = "ignored"   // cancellation after completion, rejected
)

// FulfillmentService is the single authority for payment-driven order
// transitions. The gateway delivers events at least once and in no
// particular order; every transition here is a conditional update gated on
// payment_status = PENDING, so duplicates and races collapse to no-ops.
type FulfillmentService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	gateway payment.Gateway
	events  *events.Publisher
	cache   *cache.ProductCache
	orders  *OrderService
}

// NewFulfillmentService creates the fulfillment guard.
func NewFulfillmentService(
	database *db.DB,
	m *metrics.AppMetrics,
	gateway payment.Gateway,
	publisher *events.Publisher,
	productCache *cache.ProductCache,
	orders *OrderService,
) *FulfillmentService {
	return &FulfillmentService{
		db:      database,
		metrics: m,
		gateway: gateway,
		events:  publisher,
		cache:   productCache,
		orders:  orders,
	}
}

// HandleEvent processes one verified webhook event. The event body is not
// trusted for the outcome: the session is re-fetched from the gateway and
// its state decides the transition.
func (s *FulfillmentService) HandleEvent(ctx context.Context, event *payment.Event) (Outcome, error) {
	session, err := s.gateway.GetSession(ctx, event.SessionID)
	if err != nil {
		return "", err
	}
	if session.OrderNumber == "" {
		return "", apperr.Validation("session %s carries no order reference", session.ID)
	}

	order, err := s.orders.GetOrderByNumber(ctx, session.OrderNumber)
	if err != nil {
		return "", err
	}

	// The re-fetched session state is authoritative, not the event body: a
	// reordered "expired" delivery must not cancel an order whose session
	// actually completed.
	switch session.Status {
	case payment.SessionCompleted:
		return s.fulfill(ctx, order)
	case payment.SessionExpired, payment.SessionFailed:
		return s.cancel(ctx, order, event)
	default:
		log.Info().
			Str("order", order.OrderNumber).
			Str("event", string(event.Type)).
			Str("session_status", string(session.Status)).
			Msg("webhook event ignored, session still open")
		return OutcomeIgnored, nil
	}
}

// fulfill flips the order PENDING -> PAID/CONFIRMED and commits stock, all
// in one transaction. The status flip is the idempotency gate: if another
// delivery got there first, zero rows match and nothing else runs.
func (s *FulfillmentService) fulfill(ctx context.Context, order *models.Order) (Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	start := time.Now()
	flip := `UPDATE orders SET payment_status = ?, order_status = ?, updated_at = NOW()
		WHERE id = ? AND payment_status = ? AND order_status = ?`
	result, err := tx.ExecContext(ctx, flip,
		models.PaymentPaid, models.OrderConfirmed,
		order.ID, models.PaymentPending, models.OrderPending,
	)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		return "", apperr.Internal("failed to transition order", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", apperr.Internal("failed to get rows affected", err)
	}
	if n == 0 {
		// Already fulfilled, cancelled, or concurrently being fulfilled.
		log.Info().Str("order", order.OrderNumber).Msg("duplicate payment notification ignored")
		return OutcomeDuplicate, nil
	}

	productIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		if err := s.decrementLine(ctx, tx, item); err != nil {
			// Mid-transition failure: roll back the flip and compensate so
			// the order does not sit PENDING forever.
			tx.Rollback()
			s.markCancelled(ctx, order, "fulfillment_error")
			return "", err
		}
		productIDs = append(productIDs, item.ProductID)
	}

	if err := tx.Commit(); err != nil {
		s.markCancelled(ctx, order, "fulfillment_error")
		return "", apperr.Internal("failed to commit fulfillment", err)
	}

	s.cache.Invalidate(ctx, productIDs...)

	order.PaymentStatus = models.PaymentPaid
	order.OrderStatus = models.OrderConfirmed
	s.metrics.OrdersFulfilled.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("payment_method", string(order.PaymentMethod)),
	})...))
	s.metrics.RevenueTotal.Add(ctx, order.TotalAmount, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("payment_method", string(order.PaymentMethod)),
		attribute.String("currency", order.Currency),
	})...))
	s.events.PublishOrderEvent(ctx, "confirmed", order)

	log.Info().
		Str("order", order.OrderNumber).
		Float64("total", order.TotalAmount).
		Int("lines", len(order.Items)).
		Msg("order fulfilled")

	return OutcomeFulfilled, nil
}

func (s *FulfillmentService) decrementLine(ctx context.Context, tx *sql.Tx, item models.OrderItem) error {
	err := s.orders.products.DecrementStock(ctx, tx, item.ProductID, item.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Internal("insufficient stock during fulfillment", err)
	}
	return err
}

// cancel handles payment-failed and session-expired events. The conditional
// update rejects cancellation of an already-confirmed order: there is no
// un-confirming.
func (s *FulfillmentService) cancel(ctx context.Context, order *models.Order, event *payment.Event) (Outcome, error) {
	start := time.Now()
	query := `UPDATE orders SET order_status = ?, payment_status = ?, updated_at = NOW()
		WHERE id = ? AND payment_status = ?`
	result, err := s.db.ExecContext(ctx, query,
		models.OrderCancelled, models.PaymentFailed, order.ID, models.PaymentPending)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		return "", apperr.Internal("failed to cancel order", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", apperr.Internal("failed to get rows affected", err)
	}
	if n == 0 {
		log.Info().
			Str("order", order.OrderNumber).
			Str("event", string(event.Type)).
			Msg("cancellation ignored, payment already settled")
		return OutcomeIgnored, nil
	}

	order.OrderStatus = models.OrderCancelled
	order.PaymentStatus = models.PaymentFailed
	s.metrics.OrdersCancelled.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("reason", string(event.Type)),
	})...))
	s.events.PublishOrderEvent(ctx, "cancelled", order)

	log.Info().Str("order", order.OrderNumber).Str("event", string(event.Type)).Msg("order cancelled")
	return OutcomeCancelled, nil
}

// markCancelled is the best-effort compensating transition after a fatal
// mid-fulfillment failure. Its own failure is logged and accepted.
func (s *FulfillmentService) markCancelled(ctx context.Context, order *models.Order, reason string) {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET order_status = ?, payment_status = ?, updated_at = NOW() WHERE id = ? AND payment_status = ?",
		models.OrderCancelled, models.PaymentFailed, order.ID, models.PaymentPending)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		log.Error().Err(err).Str("order", order.OrderNumber).Msg("compensating cancellation failed")
		return
	}
	s.metrics.OrdersCancelled.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("reason", reason),
	})...))
}

// RunReconciliation cancels card orders whose webhook never arrived: any
// order still doubly PENDING past the session lifetime plus grace cannot be
// paid anymore and is swept to CANCELLED/FAILED. Runs until ctx is
// cancelled.
func (s *FulfillmentService) RunReconciliation(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileOnce(ctx, maxAge)
		}
	}
}

func (s *FulfillmentService) reconcileOnce(ctx context.Context, maxAge time.Duration) {
	start := time.Now()
	query := `UPDATE orders SET order_status = ?, payment_status = ?, updated_at = NOW()
		WHERE payment_method = ? AND payment_status = ? AND order_status = ?
		AND created_at < DATE_SUB(NOW(), INTERVAL ? SECOND)`
	result, err := s.db.ExecContext(ctx, query,
		models.OrderCancelled, models.PaymentFailed,
		models.MethodCreditCard, models.PaymentPending, models.OrderPending,
		int64(maxAge.Seconds()),
	)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "orders", start, err == nil)
	if err != nil {
		log.Error().Err(err).Msg("reconciliation sweep failed")
		return
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.metrics.OrdersCancelled.Add(ctx, n, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("reason", "reconciliation"),
		})...))
		log.Warn().Int64("orders", n).Msg("reconciliation sweep cancelled stale card orders")
	}
}
