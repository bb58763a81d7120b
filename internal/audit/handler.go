package audit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Querier reads audit events back.
type Querier interface {
	QueryEvents(ctx context.Context, filter Filter) ([]Event, error)
}

// Handler serves the admin audit trail.
type Handler struct {
	events Querier
	logger *logging.Logger
}

func NewHandler(events Querier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{events: events, logger: logger}
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/clinics/{orgID}/audit", h.ListEvents)
}

// ListEvents handles GET /admin/clinics/{orgID}/audit
// Query params: entity_type, entity_id, event_type (repeatable), start, end (RFC3339), limit, offset.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
	if orgID == "" {
		respond.Error(w, http.StatusBadRequest, "org_id required")
		return
	}
	q := r.URL.Query()
	filter := Filter{
		OrgID:      orgID,
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Limit:      100,
	}
	for _, t := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, EventType(t))
	}
	var err error
	if filter.StartTime, err = parseTime(q.Get("start")); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid start time, use RFC3339 format")
		return
	}
	if filter.EndTime, err = parseTime(q.Get("end")); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid end time, use RFC3339 format")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, 1000)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	events, err := h.events.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit: query failed", "org_id", orgID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []Event{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseTime(raw string) (time.Time, error) {
	if raw = strings.TrimSpace(raw); raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
