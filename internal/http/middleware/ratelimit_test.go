package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matheuspdias/managerclin/internal/tenancy"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have independent buckets")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(limiterIdleTTL + time.Minute)
	rl.Allow("new")

	assert.NotContains(t, rl.limiters, "old")
	assert.Contains(t, rl.limiters, "new")
}

func TestRateLimitMiddlewareKeysByOrg(t *testing.T) {
	mw := RateLimit(0.5, 1)
	request := func(orgID, remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		req.RemoteAddr = remote
		if orgID != "" {
			req = req.WithContext(tenancy.WithOrgID(req.Context(), orgID))
		}
		return serve(mw, req, nil).Code
	}

	assert.Equal(t, http.StatusOK, request("org-1", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, request("org-1", "10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, request("org-2", "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, request("", "10.0.0.1:5555"))
	assert.Equal(t, http.StatusTooManyRequests, request("", "10.0.0.1:6666"))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	rec := serve(mw, req, nil)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}
