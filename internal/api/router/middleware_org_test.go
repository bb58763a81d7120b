package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireOrgIDPassesThrough(t *testing.T) {
	var got string
	handler := requireOrgID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = orgIDFromRequest(r)
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
	req.Header.Set(orgHeader, " org-abc ")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "org-abc", got)
}

func TestRequireOrgIDMissingHeader(t *testing.T) {
	handler := requireOrgID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/appointments", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequireOrgIDQueryOnlyForGet(t *testing.T) {
	var got string
	handler := requireOrgID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = orgIDFromRequest(r)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/telemedicine/sessions/s1/events?org_id=org-9", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "org-9", got)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/appointments?org_id=org-9", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
