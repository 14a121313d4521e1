package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"healthqueue/internal/session"
	"healthqueue/internal/store/memory"
)

func TestTokenLimiterRefills(t *testing.T) {
	l := newTokenLimiter(60, 2)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 1})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestTokenLimiterEvictsIdleBuckets(t *testing.T) {
	l := newTokenLimiter(60, 2)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
	assert.Len(t, l.bucket, 2)

	now = now.Add(3 * time.Second)
	assert.True(t, l.allow("10.0.0.3"))
	assert.Len(t, l.bucket, 1)
}

func TestForwardedForOnlyTrustedBehindProxy(t *testing.T) {
	cases := []struct {
		name       string
		trustProxy bool
		second     int
	}{
		{"direct", false, http.StatusTooManyRequests},
		{"behind proxy", true, http.StatusOK},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(memory.New(), Options{
				Sessions:   session.NewManager("test-secret", time.Hour, false),
				RateLimit:  RateLimitConfig{PerMinute: 1, Burst: 1},
				TrustProxy: tt.trustProxy,
			}).Routes()

			codes := make([]int, 0, 2)
			for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
				req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
				req.Header.Set("X-Forwarded-For", ip)
				resp := httptest.NewRecorder()
				h.ServeHTTP(resp, req)
				codes = append(codes, resp.Code)
			}
			assert.Equal(t, []int{http.StatusOK, tt.second}, codes)
		})
	}
}
