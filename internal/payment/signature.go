package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/velora-labs/storefront-api/internal/apperr"
)

// SignatureHeader is the HTTP header carrying the webhook signature in the
// form "t=<unix>,v1=<hex hmac-sha256>". The MAC covers "<t>.<raw body>".
const SignatureHeader = "Webhook-Signature"

// signatureTolerance bounds how old a signed timestamp may be; replays of
// captured deliveries outside the window are rejected.
const signatureTolerance = 5 * time.Minute

// Sign computes the signature header value for a payload at the given time.
// Exposed for tests and for local webhook simulation.
func Sign(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// VerifyAndParse authenticates a raw webhook body against its signature
// header and decodes the event. Any failure means no state transition may be
// attempted: the error is Unauthorized and the delivery must not be retried
// by us.
func VerifyAndParse(secret string, body []byte, sigHeader string) (*Event, error) {
	if err := verify(secret, body, sigHeader, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperr.Validation("malformed webhook payload")
	}
	if event.SessionID == "" || event.Type == "" {
		return nil, apperr.Validation("webhook payload missing session_id or type")
	}
	return &event, nil
}

func verify(secret string, body []byte, sigHeader string, now time.Time) error {
	if secret == "" {
		return apperr.Unauthorized("webhook secret not configured")
	}

	var tsPart, sigPart string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			tsPart = kv[1]
		case "v1":
			sigPart = kv[1]
		}
	}
	if tsPart == "" || sigPart == "" {
		return apperr.Unauthorized("malformed webhook signature header")
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return apperr.Unauthorized("malformed webhook signature timestamp")
	}

	signedAt := time.Unix(ts, 0)
	if now.Sub(signedAt) > signatureTolerance || signedAt.Sub(now) > signatureTolerance {
		return apperr.Unauthorized("webhook signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sigPart)) {
		return apperr.Unauthorized("invalid webhook signature")
	}
	return nil
}
