package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
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

type hit struct {
	remoteAddr string
	headers    map[string]string
	want       int
}

func replay(t *testing.T, h http.Handler, hits []hit) []*httptest.ResponseRecorder {
	t.Helper()

	out := make([]*httptest.ResponseRecorder, 0, len(hits))
	for i, hh := range hits {
		req := httptest.NewRequest(http.MethodPost, "/ship", nil)
		if hh.remoteAddr != "" {
			req.RemoteAddr = hh.remoteAddr
		}
		for k, v := range hh.headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, hh.want, w.Code, "request %d", i+1)
		out = append(out, w)
	}
	return out
}

func TestRateLimit(t *testing.T) {
	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}
	keyA := map[string]string{"X-Client": "a"}
	keyB := map[string]string{"X-Client": "b"}

	tests := []struct {
		name string
		cfg  RateLimitConfig
		hits []hit
	}{
		{
			name: "UnderLimit",
			cfg:  RateLimitConfig{Max: 3, Window: time.Minute},
			hits: []hit{
				{remoteAddr: "192.168.1.1:1", want: http.StatusOK},
				{remoteAddr: "192.168.1.1:2", want: http.StatusOK},
				{remoteAddr: "192.168.1.1:3", want: http.StatusOK},
			},
		},
		{
			name: "PerClient",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			hits: []hit{
				{remoteAddr: "10.0.0.1:1", want: http.StatusOK},
				{remoteAddr: "10.0.0.2:1", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:2", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "ForwardedFor",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			hits: []hit{
				{remoteAddr: "192.168.1.1:1", headers: xff, want: http.StatusOK},
				{remoteAddr: "192.168.1.2:1", headers: xff, want: http.StatusTooManyRequests},
			},
		},
		{
			name: "CustomKey",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: func(r *http.Request) string {
				return r.Header.Get("X-Client")
			}},
			hits: []hit{
				{headers: keyA, want: http.StatusOK},
				{headers: keyA, want: http.StatusTooManyRequests},
				{headers: keyB, want: http.StatusOK},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(t.Context(), tt.cfg)(okHandler())
			for _, w := range replay(t, h, tt.hits) {
				assert.Equal(t, strconv.Itoa(tt.cfg.Max), w.Header().Get("X-RateLimit-Limit"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
			}
		})
	}
}

func TestRateLimit_Rejected(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())
	hits := []hit{
		{remoteAddr: "10.0.0.1:9999", want: http.StatusOK},
		{remoteAddr: "10.0.0.1:9999", want: http.StatusOK},
		{remoteAddr: "10.0.0.1:9999", want: http.StatusTooManyRequests},
	}
	w := replay(t, h, hits)[2]

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(http.StatusTooManyRequests), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(t.Context(), RateLimitConfig{})(okHandler())

	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/ship", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("a", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("a", start.Add(30*time.Second))
	assert.False(t, ok, "window is full")

	// Half of the previous window still counts: 4 * 0.5 = 2 used.
	next := start.Add(90 * time.Second)
	remaining, reset, ok := l.take("a", next)
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, start.Add(2*time.Minute), reset)

	_, _, ok = l.take("a", next)
	assert.True(t, ok)
	_, _, ok = l.take("a", next)
	assert.False(t, ok)

	// Two idle windows reset the client.
	_, _, ok = l.take("a", start.Add(5*time.Minute))
	assert.True(t, ok)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.take("a", start)
	l.take("b", start.Add(90*time.Second))

	l.evict(start.Add(2 * time.Minute))
	assert.NotContains(t, l.counters, "a")
	assert.Contains(t, l.counters, "b")
}
