package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velora-labs/storefront-api/internal/apperr"
	"github.com/velora-labs/storefront-api/internal/models"
)

// SessionStatus is the authoritative state of a checkout session as reported
// by the gateway.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionFailed    SessionStatus = "failed"
)

// CheckoutSession is one time-bounded attempt to collect payment for an
// order. OrderNumber travels as opaque metadata so webhook deliveries can be
// correlated back without re-deriving cart state.
type CheckoutSession struct {
	ID           string        `json:"id"`
	ClientSecret string        `json:"client_secret"`
	Status       SessionStatus `json:"status"`
	AmountCents  int64         `json:"amount"`
	Currency     string        `json:"currency"`
	OrderNumber  string        `json:"order_number"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// EventType is the webhook event kind delivered by the gateway.
type EventType string

const (
	EventCompleted      EventType = "completed"
	EventAsyncSucceeded EventType = "async_succeeded"
	EventAsyncFailed    EventType = "async_failed"
	EventExpired        EventType = "expired"
)

// Event is a webhook notification. Delivery is at-least-once and unordered;
// consumers must treat every event as possibly duplicate.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Succeeded reports whether the event signals a collected payment.
func (e *Event) Succeeded() bool {
	return e.Type == EventCompleted || e.Type == EventAsyncSucceeded
}

// Gateway abstracts the external payment provider. The production
// implementation talks HTTP; tests substitute a fake.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// totalTolerance is the allowed drift between the declared order total and
// the sum of its frozen lines: one cent.
var totalTolerance = decimal.New(1, -2)

// ValidateOrderTotal checks that sum(price*quantity) over the order's frozen
// items equals the declared total within one cent. A mismatch means the
// total was tampered with between order creation and payment initiation and
// is rejected, never silently corrected.
func ValidateOrderTotal(order *models.Order) error {
	sum := decimal.Zero
	for _, item := range order.Items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	declared := decimal.NewFromFloat(order.TotalAmount)
	if sum.Sub(declared).Abs().GreaterThan(totalTolerance) {
		return apperr.Validation("order total %s does not match item sum %s",
			declared.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

// AmountCents converts the order total to integer minor units for the
// gateway, rounding half-up at two decimals first.
func AmountCents(order *models.Order) int64 {
	return decimal.NewFromFloat(order.TotalAmount).Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// HTTPGateway is the production Gateway backed by the provider's REST API.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	sessionTTL time.Duration
	client     *http.Client
}

// NewHTTPGateway builds a gateway client. sessionTTL bounds how long a
// created session stays payable.
func NewHTTPGateway(baseURL, apiKey string, sessionTTL time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    baseURL,
		apiKey:     apiKey,
		sessionTTL: sessionTTL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type sessionResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ExpiresAt    int64  `json:"expires_at"`
	Metadata     struct {
		OrderNumber string `json:"order_number"`
	} `json:"metadata"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateCheckoutSession validates the order total, then asks the provider
// for a hosted checkout session carrying the order number as metadata.
func (g *HTTPGateway) CreateCheckoutSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	if err := ValidateOrderTotal(order); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"amount":     AmountCents(order),
		"currency":   order.Currency,
		"expires_at": time.Now().Add(g.sessionTTL).Unix(),
		"metadata": map[string]string{
			"order_number": order.OrderNumber,
		},
	}

	resp, err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", payload)
	if err != nil {
		return nil, err
	}
	return resp.toSession()
}

// GetSession re-fetches the authoritative session state; webhook handling
// never trusts the event body alone.
func (g *HTTPGateway) GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	resp, err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	return resp.toSession()
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload any) (*sessionResponse, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperr.Internal("failed to encode gateway request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, apperr.Internal("failed to build gateway request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, apperr.Internal("failed to reach payment gateway", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperr.Internal("failed to read gateway response", err)
	}

	if httpResp.StatusCode == http.StatusNotFound {
		return nil, apperr.NotFound("checkout session not found")
	}
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return nil, apperr.Internal(
			fmt.Sprintf("gateway returned status %d", httpResp.StatusCode),
			fmt.Errorf("%s", raw))
	}

	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperr.Internal("failed to parse gateway response", err)
	}
	if resp.Error != nil {
		return nil, apperr.Internal("gateway error: "+resp.Error.Message, nil)
	}
	return &resp, nil
}

func (r *sessionResponse) toSession() (*CheckoutSession, error) {
	if r.ID == "" {
		return nil, apperr.Internal("gateway returned empty session id", nil)
	}
	return &CheckoutSession{
		ID:           r.ID,
		ClientSecret: r.ClientSecret,
		Status:       SessionStatus(r.Status),
		AmountCents:  r.Amount,
		Currency:     r.Currency,
		OrderNumber:  r.Metadata.OrderNumber,
		ExpiresAt:    time.Unix(r.ExpiresAt, 0),
	}, nil
}
