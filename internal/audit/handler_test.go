package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuditRouter(t *testing.T) (http.Handler, *MemoryRecorder) {
	t.Helper()
	rec := NewMemoryRecorder()
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, rec.LogEvent(ctx, Event{OrgID: "org-1", EventType: EventAppointmentCreated, EntityType: EntityAppointment, EntityID: "a1", CreatedAt: base}))
	require.NoError(t, rec.LogEvent(ctx, Event{OrgID: "org-1", EventType: EventSessionStarted, EntityType: EntitySession, EntityID: "s1", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, rec.LogEvent(ctx, Event{OrgID: "org-2", EventType: EventAppointmentCreated, EntityType: EntityAppointment, EntityID: "a2", CreatedAt: base}))

	r := chi.NewRouter()
	NewHandler(rec, nil).RegisterAdminRoutes(r)
	return r, rec
}

func getEvents(t *testing.T, router http.Handler, path string) (int, []Event) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		return rec.Code, nil
	}
	var body struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body.Events
}

func TestHandlerListsOrgEvents(t *testing.T) {
	router, _ := newAuditRouter(t)

	code, events := getEvents(t, router, "/clinics/org-1/audit")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, events, 2)

	code, events = getEvents(t, router, "/clinics/org-1/audit?entity_type="+EntitySession)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].EntityID)

	code, events = getEvents(t, router, "/clinics/org-1/audit?event_type="+string(EventAppointmentCreated))
	require.Equal(t, http.StatusOK, code)
	require.Len(t, events, 1)
	assert.Equal(t, "a1", events[0].EntityID)

	code, events = getEvents(t, router, "/clinics/org-1/audit?start=2024-03-04T09:30:00Z")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].EntityID)

	code, events = getEvents(t, router, "/clinics/org-3/audit")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, events)
}

func TestHandlerRejectsBadParams(t *testing.T) {
	router, _ := newAuditRouter(t)
	for _, q := range []string{"?start=yesterday", "?end=nope", "?limit=0", "?offset=-1"} {
		code, _ := getEvents(t, router, "/clinics/org-1/audit"+q)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}
