package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := RateLimit(ctx, RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := send(h, "10.0.0.1:1000", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := send(h, "10.0.0.1:1001", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, send(h, "10.0.0.2:1000", nil).Code, "other clients unaffected")
	assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1000", map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.1",
	}).Code, "forwarded client is keyed separately")
}

func TestRateLimit_KeyFunc(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := RateLimit(ctx, RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Api-Key") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, send(h, "1.1.1.1:1", map[string]string{"X-Api-Key": "a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, "2.2.2.2:2", map[string]string{"X-Api-Key": "a"}).Code)
	assert.Equal(t, http.StatusOK, send(h, "1.1.1.1:1", map[string]string{"X-Api-Key": "b"}).Code)
}

func TestLimiter_Slides(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	_, _, ok := l.take("k", base)
	require.True(t, ok)
	_, _, ok = l.take("k", base.Add(time.Second))
	require.True(t, ok)
	_, _, ok = l.take("k", base.Add(2*time.Second))
	require.False(t, ok)

	// A quarter into the next window 75% of the previous two still count.
	_, _, ok = l.take("k", base.Add(75*time.Second))
	require.True(t, ok, "1.5 of 2 used")
	_, _, ok = l.take("k", base.Add(76*time.Second))
	require.False(t, ok)
	_, _, ok = l.take("k", base.Add(110*time.Second))
	require.True(t, ok, "previous window mostly slid out")

	l.evict(base.Add(5 * time.Minute))
	assert.Empty(t, l.clients)
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{name: "Remote", remote: "192.0.2.1:5000", want: "192.0.2.1"},
		{name: "Forwarded", remote: "10.0.0.1:1", header: map[string]string{"X-Forwarded-For": " 203.0.113.5 , 10.0.0.1"}, want: "203.0.113.5"},
		{name: "RealIP", remote: "10.0.0.1:1", header: map[string]string{"X-Real-IP": "198.51.100.7"}, want: "198.51.100.7"},
		{name: "NoPort", remote: "unix", want: "unix"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
