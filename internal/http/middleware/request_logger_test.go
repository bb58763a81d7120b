package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

func TestRequestLoggerRecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	mw := RequestLogger(logging.NewWithWriter("info", &buf))

	req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req = req.WithContext(tenancy.WithOrgID(req.Context(), "org-1"))
	rec := serve(mw, req, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"conflict"}`))
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["msg"])
	assert.Equal(t, "INFO", line["level"])
	assert.EqualValues(t, 409, line["status"])
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "org-1", line["org_id"])
}

func TestRequestLoggerErrorLevelOnServerFailure(t *testing.T) {
	var buf bytes.Buffer
	mw := RequestLogger(logging.NewWithWriter("info", &buf))

	rec := serve(mw, httptest.NewRequest(http.MethodGet, "/boom", nil), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
}
