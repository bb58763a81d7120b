package router

import (
	"net/http"
	"strings"

	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/tenancy"
)

const (
	orgHeader = "X-Org-Id"
	orgQuery  = "org_id"
)

// requireOrgID enforces the tenant header on clinic routes. WebSocket
// upgrades cannot set headers from a browser, so GET requests may pass the
// org as a query parameter instead.
func requireOrgID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(orgHeader))
		if orgID == "" && r.Method == http.MethodGet {
			orgID = strings.TrimSpace(r.URL.Query().Get(orgQuery))
		}
		if orgID == "" {
			respond.Error(w, http.StatusBadRequest, "missing X-Org-Id")
			return
		}
		ctx := tenancy.WithOrgID(r.Context(), orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// orgIDFromRequest exposes the org id for local handlers.
func orgIDFromRequest(r *http.Request) (string, bool) {
	return tenancy.OrgIDFromContext(r.Context())
}
