package autherr

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/autoshop/internal/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Write logs err against the request's logger and writes the generic JSON
// response for its kind. The error text itself is only ever logged.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	ctx := r.Context()
	requestID := logger.RequestIDFromContext(ctx)

	var ev *zerolog.Event
	switch {
	case kind.HTTPStatus() >= 500:
		ev = zerolog.Ctx(ctx).Error()
	case kind.IsSecurityEvent():
		ev = zerolog.Ctx(ctx).Warn().Str("event", "security")
	default:
		ev = zerolog.Ctx(ctx).Debug()
	}
	ev.Err(err).Str("kind", kind.String()).Int("status", kind.HTTPStatus()).Msg("request rejected")

	if kind == KindUnavailable && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	if kind.HTTPStatus() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="autoshop"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Code:      kind.Code(),
		Message:   kind.Message(),
		RequestID: requestID,
	}})
}
