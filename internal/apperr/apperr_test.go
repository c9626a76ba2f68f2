package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad input"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"unauthorized", Unauthorized("who are you"), http.StatusUnauthorized},
		{"forbidden", Forbidden("not yours"), http.StatusForbidden},
		{"conflict", Conflict("already exists"), http.StatusConflict},
		{"internal", Internal("boom", errors.New("cause")), http.StatusInternalServerError},
		{"untagged", errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessageMasksInternal(t *testing.T) {
	err := Internal("query failed", errors.New("mysql: table gone"))
	assert.Equal(t, "internal server error", Message(err))
	// The cause stays reachable for logs.
	assert.Contains(t, err.Error(), "mysql: table gone")
}

func TestMessagePassesThroughTagged(t *testing.T) {
	assert.Equal(t, "product 7 not found", Message(NotFound("product %d not found", 7)))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("wrapped", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, IsKind(Validation("x"), KindValidation))
	assert.False(t, IsKind(Validation("x"), KindNotFound))
}
