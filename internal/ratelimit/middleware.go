package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/telemetry"
)

// Enforce checks every key against l. It sets the X-RateLimit-* headers from
// the most constrained key and, when any key is over its limit, writes a 429
// response and returns false. Backend errors allow the request.
func Enforce(w http.ResponseWriter, r *http.Request, l Limiter, scope string, keys ...string) bool {
	ctx := r.Context()
	m := telemetry.GetMetrics()

	var tightest *Result
	for _, key := range keys {
		if key == "" {
			continue
		}
		res, err := l.Allow(ctx, scope+":"+key)
		if err != nil {
			m.RateLimiterErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
			zerolog.Ctx(ctx).Error().Err(err).Str("scope", scope).Msg("rate limiter failed, allowing request")
			continue
		}
		if tightest == nil || tighter(res, *tightest) {
			tightest = &res
		}
	}

	if tightest == nil {
		return true
	}

	setHeaders(w, *tightest)

	if !tightest.Allowed {
		m.RateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(tightest.ResetAfter.Seconds()))))
		autherr.Write(w, r, autherr.ErrRateLimited)
		return false
	}
	return true
}

// Middleware limits requests by the key returned from keyFn.
func Middleware(l Limiter, scope string, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Enforce(w, r, l, scope, keyFn(r)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tighter reports whether a constrains the caller more than b.
func tighter(a, b Result) bool {
	if a.Allowed != b.Allowed {
		return !a.Allowed
	}
	return a.Remaining < b.Remaining
}

func setHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
}
