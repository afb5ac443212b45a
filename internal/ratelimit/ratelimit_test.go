package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_fixedWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Config{Requests: 3, Window: time.Minute})
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := range 3 {
		res, err := l.Allow(ctx, "ip:192.0.2.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "ip:192.0.2.1")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
	require.Equal(t, time.Minute, res.ResetAfter)

	// Other keys are independent.
	res, err = l.Allow(ctx, "ip:192.0.2.2")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	now = now.Add(time.Minute)
	res, err = l.Allow(ctx, "ip:192.0.2.1")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, 2, res.Remaining)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_fixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLimiter(client, Config{Requests: 2, Window: 30 * time.Second}, "test")
	ctx := context.Background()

	for range 2 {
		res, err := l.Allow(ctx, "login:ip:192.0.2.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "login:ip:192.0.2.1")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 2, res.Limit)
	require.LessOrEqual(t, res.ResetAfter, 30*time.Second)

	require.True(t, mr.Exists("test:login:ip:192.0.2.1"))
	require.Greater(t, mr.TTL("test:login:ip:192.0.2.1"), time.Duration(0))

	// Hits do not push the window out.
	mr.FastForward(20 * time.Second)
	_, err = l.Allow(ctx, "login:ip:192.0.2.1")
	require.NoError(t, err)
	require.LessOrEqual(t, mr.TTL("test:login:ip:192.0.2.1"), 10*time.Second)

	mr.FastForward(11 * time.Second)
	res, err = l.Allow(ctx, "login:ip:192.0.2.1")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "login:ip:192.0.2.1"))
	require.False(t, mr.Exists("test:login:ip:192.0.2.1"))
}

func TestRedisLimiter_failsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	l := NewRedisLimiter(client, Config{Requests: 1, Window: time.Minute}, "")
	mr.Close()

	res, err := l.Allow(context.Background(), "k")
	require.Error(t, err)
	require.True(t, res.Allowed)
}

type errLimiter struct{}

func (errLimiter) Allow(ctx context.Context, key string) (Result, error) {
	return failOpen(Config{Requests: 1, Window: time.Minute}, errors.New("boom"))
}

func TestEnforce(t *testing.T) {
	l := NewMemoryLimiter(Config{Requests: 1, Window: time.Minute})

	call := func(keys ...string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		ok := Enforce(rec, req, l, "login", keys...)
		if ok {
			rec.WriteHeader(http.StatusNoContent)
		}
		return rec
	}

	rec := call("ip:192.0.2.1", "email:a@example.com")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	// Same email from a different address is still limited.
	rec = call("ip:192.0.2.9", "email:a@example.com")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "rate_limited", body.Error.Code)

	// Empty keys are skipped.
	rec = call("", "ip:198.51.100.1")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestEnforce_backendErrorAllows(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	require.True(t, Enforce(rec, req, errLimiter{}, "refresh", "ip:192.0.2.1"))
	require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestMiddleware(t *testing.T) {
	l := NewMemoryLimiter(Config{Requests: 1, Window: time.Minute})
	h := Middleware(l, "refresh", func(r *http.Request) string { return "ip:" + r.RemoteAddr })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
		require.Equal(t, want, rec.Code, "request %d", i)
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, LoginConfig().Validate())
	require.NoError(t, RefreshConfig().Validate())
	require.Error(t, Config{Requests: 0, Window: time.Second}.Validate())
	require.Error(t, Config{Requests: 1}.Validate())
}
