package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/appointments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	rec := serve(CORS([]string{"https://clinic.example/"}), corsRequest(http.MethodGet, "https://clinic.example"),
		func(w http.ResponseWriter, r *http.Request) { called = true })

	assert.True(t, called)
	assert.Equal(t, "https://clinic.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Idempotent-Replayed")
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec := serve(CORS([]string{"https://clinic.example"}), corsRequest(http.MethodGet, "https://unknown.example"), nil)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	rec := serve(CORS([]string{"*"}), corsRequest(http.MethodGet, "https://random.example"), nil)
	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSHandlesPreflight(t *testing.T) {
	req := corsRequest(http.MethodOptions, "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	called := false
	rec := serve(CORS([]string{"https://clinic.example"}), req, func(w http.ResponseWriter, r *http.Request) { called = true })

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSIgnoresRequestsWithoutOrigin(t *testing.T) {
	rec := serve(CORS([]string{"*"}), corsRequest(http.MethodGet, ""), nil)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
