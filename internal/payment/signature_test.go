package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora-labs/storefront-api/internal/apperr"
)

const testSecret = "whsec_test"

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"completed","session_id":"cs_1"}`)
	now := time.Now()

	header := Sign(testSecret, now, body)
	assert.NoError(t, verify(testSecret, body, header, now))

	event, err := VerifyAndParse(testSecret, body, header)
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, event.Type)
	assert.Equal(t, "cs_1", event.SessionID)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"completed","session_id":"cs_1"}`)
	now := time.Now()
	header := Sign(testSecret, now, body)

	tampered := []byte(`{"id":"evt_1","type":"completed","session_id":"cs_2"}`)
	err := verify(testSecret, tampered, header, now)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{}`)
	now := time.Now()
	header := Sign("other_secret", now, body)
	err := verify(testSecret, body, header, now)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	signedAt := time.Now().Add(-10 * time.Minute)
	header := Sign(testSecret, signedAt, body)

	err := verify(testSecret, body, header, time.Now())
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	// A signature from the future is just as suspect.
	header = Sign(testSecret, time.Now().Add(10*time.Minute), body)
	err = verify(testSecret, body, header, time.Now())
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestVerifyRejectsMalformedHeader(t *testing.T) {
	for _, header := range []string{"", "t=123", "v1=deadbeef", "t=notanumber,v1=deadbeef"} {
		err := verify(testSecret, []byte(`{}`), header, time.Now())
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized), "header %q", header)
	}
}

func TestVerifyRequiresConfiguredSecret(t *testing.T) {
	body := []byte(`{}`)
	header := Sign("", time.Now(), body)
	err := verify("", body, header, time.Now())
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestVerifyAndParseRejectsIncompletePayload(t *testing.T) {
	for _, body := range []string{`not json`, `{"type":"completed"}`, `{"session_id":"cs_1"}`} {
		header := Sign(testSecret, time.Now(), []byte(body))
		_, err := VerifyAndParse(testSecret, []byte(body), header)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "body %q", body)
	}
}
