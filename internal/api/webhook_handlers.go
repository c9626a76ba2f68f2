package api

import (
	"io"
	"net/http"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/payment"
)

// maxWebhookBody bounds the raw webhook payload we are willing to read.
const maxWebhookBody = 1 << 20

// PaymentWebhookHandler handles POST /api/v1/payments/webhook. The gateway
// delivers events at least once; the handler verifies the signature over the
// raw body before anything else, then hands the event to the fulfillment
// guard. A non-2xx response makes the gateway redeliver, so only genuine
// processing failures return 5xx.
func (a *App) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.writeError(w, r, apperr.Validation("failed to read webhook body"))
		return
	}

	event, err := payment.VerifyAndParse(a.config.WebhookSecret, body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		a.metrics.RecordWebhook(r.Context(), "unknown", "rejected")
		a.writeError(w, r, err)
		return
	}

	outcome, err := a.fulfillment.HandleEvent(r.Context(), event)
	if err != nil {
		a.metrics.RecordWebhook(r.Context(), string(event.Type), "error")
		a.writeError(w, r, err)
		return
	}

	a.metrics.RecordWebhook(r.Context(), string(event.Type), string(outcome))
	a.writeJSON(w, http.StatusOK, map[string]string{
		"received": "true",
		"outcome":  string(outcome),
	})
}
