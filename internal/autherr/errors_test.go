package autherr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/autoshop/internal/logger"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"malformed", fmt.Errorf("parse: %w", ErrMalformed), KindMalformed, http.StatusUnauthorized},
		{"expired", ErrExpired, KindExpired, http.StatusUnauthorized},
		{"bad signature", ErrBadSignature, KindBadSignature, http.StatusUnauthorized},
		{"reuse detected", fmt.Errorf("rotate: %w", ErrReuseDetected), KindReuseDetected, http.StatusUnauthorized},
		{"revoked", ErrRevoked, KindRevoked, http.StatusUnauthorized},
		{"not a member", ErrNotAMember, KindNotAMember, http.StatusForbidden},
		{"forbidden", ErrForbidden, KindForbidden, http.StatusForbidden},
		{"csrf", ErrCSRFMismatch, KindCSRFMismatch, http.StatusForbidden},
		{"rate limited", ErrRateLimited, KindRateLimited, http.StatusTooManyRequests},
		{"unavailable", ErrUnavailable, KindUnavailable, http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("lookup: %w", context.DeadlineExceeded), KindUnavailable, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := KindOf(tt.err)
			require.Equal(t, tt.kind, kind)
			require.Equal(t, tt.status, kind.HTTPStatus())
		})
	}
}

func TestKind_notAMemberIndistinguishableFromForbidden(t *testing.T) {
	require.Equal(t, KindForbidden.Code(), KindNotAMember.Code())
	require.Equal(t, KindForbidden.Message(), KindNotAMember.Message())
	require.Equal(t, KindForbidden.HTTPStatus(), KindNotAMember.HTTPStatus())
}

func TestWrite_genericBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	r = r.WithContext(logger.WithRequestID(r.Context(), "req-1"))
	rec := httptest.NewRecorder()

	Write(rec, r, fmt.Errorf("tenant %q does not exist: %w", "secret-shop", ErrNotAMember))

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret-shop")

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "forbidden", body.Error.Code)
	require.Equal(t, "req-1", body.Error.RequestID)
}

func TestWrite_unavailableSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, httptest.NewRequest(http.MethodGet, "/", nil), ErrUnavailable)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWrite_unauthorizedSetsChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, httptest.NewRequest(http.MethodGet, "/", nil), ErrExpired)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	require.Contains(t, rec.Body.String(), "token_expired")
}
