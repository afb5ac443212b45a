package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHTTPRequests_generatesRequestID(t *testing.T) {
	var seen string
	h := HTTPRequests(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHTTPRequests_honorsValidInboundID(t *testing.T) {
	var seen string
	h := HTTPRequests(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)

	require.Equal(t, "abc-123", seen)
}

func TestHTTPRequests_replacesUnsafeInboundID(t *testing.T) {
	tests := []string{
		"has space",
		"new\nline",
		strings.Repeat("a", maxRequestIDLen+1),
	}

	for _, id := range tests {
		var seen string
		h := HTTPRequests(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, id)
		h.ServeHTTP(httptest.NewRecorder(), r)

		require.NotEqual(t, id, seen)
		require.NotEmpty(t, seen)
	}
}

func TestHTTPRequests_logsStatus(t *testing.T) {
	var buf bytes.Buffer
	h := HTTPRequests(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/me", nil))

	out := buf.String()
	require.Contains(t, out, `"message":"inside handler"`)
	require.Contains(t, out, `"status":418`)
	require.Contains(t, out, `"path":"/v1/me"`)
	require.Contains(t, out, `"request_id":`)
}
