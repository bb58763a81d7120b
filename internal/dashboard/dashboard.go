// Package dashboard serves per-clinic operational summaries for admins.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

var errInvalidRange = errors.New("dashboard: invalid time range")

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type repository interface {
	AppointmentsByDay(ctx context.Context, orgID string, start, end time.Time) ([]Day, error)
	SessionsByDay(ctx context.Context, orgID string, start, end time.Time) ([]Day, error)
}

// Day holds the counters for one calendar day. Appointment columns and
// session columns are filled by separate queries and merged.
type Day struct {
	Day                   time.Time `json:"-"`
	DayLabel              string    `json:"day"`
	Appointments          int64     `json:"appointments"`
	CompletedAppointments int64     `json:"completed_appointments"`
	CancelledAppointments int64     `json:"cancelled_appointments"`
	Sessions              int64     `json:"telemedicine_sessions"`
	SessionMinutes        int64     `json:"telemedicine_minutes"`
	CreditsConsumed       int64     `json:"credits_consumed"`
	ForcedTerminations    int64     `json:"forced_terminations"`
}

type ClinicDashboard struct {
	OrgID              string          `json:"org_id"`
	PeriodStart        string          `json:"period_start"`
	PeriodEnd          string          `json:"period_end"`
	Appointments       int64           `json:"appointments"`
	CancellationPct    float64         `json:"cancellation_pct"`
	Sessions           int64           `json:"telemedicine_sessions"`
	CreditsConsumed    int64           `json:"credits_consumed"`
	ForcedTerminations int64           `json:"forced_terminations"`
	CreditCheckLatency LatencySnapshot `json:"credit_check_latency"`
	Daily              []Day           `json:"daily"`
}

// Repository reads dashboard counters from Postgres.
type Repository struct {
	db queryer
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("dashboard: pgx pool required")
	}
	return &Repository{db: pool}
}

func NewRepositoryWithDB(db queryer) *Repository {
	return &Repository{db: db}
}

// AppointmentsByDay counts non-deleted appointments by their scheduled date.
func (r *Repository) AppointmentsByDay(ctx context.Context, orgID string, start, end time.Time) ([]Day, error) {
	if err := checkWindow(orgID, start, end); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT appointment_date::timestamptz AS day,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'CANCELLED')
		FROM appointments
		WHERE org_id = $1
		  AND deleted_at IS NULL
		  AND appointment_date >= $2::date
		  AND appointment_date < $3::date
		GROUP BY day
		ORDER BY day
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("dashboard: query appointments: %w", err)
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.Day, &d.Appointments, &d.CompletedAppointments, &d.CancelledAppointments); err != nil {
			return nil, fmt.Errorf("dashboard: scan appointments: %w", err)
		}
		out = append(out, label(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: iterate appointments: %w", err)
	}
	return out, nil
}

// SessionsByDay counts telemedicine sessions by the day they were created.
func (r *Repository) SessionsByDay(ctx context.Context, orgID string, start, end time.Time) ([]Day, error) {
	if err := checkWindow(orgID, start, end); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day,
		       COUNT(*),
		       COALESCE(SUM(duration_minutes), 0),
		       COALESCE(SUM(credits_consumed), 0),
		       COUNT(*) FILTER (WHERE end_reason = 'insufficient_credits')
		FROM telemedicine_sessions
		WHERE org_id = $1
		  AND created_at >= $2
		  AND created_at < $3
		GROUP BY day
		ORDER BY day
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("dashboard: query sessions: %w", err)
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.Day, &d.Sessions, &d.SessionMinutes, &d.CreditsConsumed, &d.ForcedTerminations); err != nil {
			return nil, fmt.Errorf("dashboard: scan sessions: %w", err)
		}
		out = append(out, label(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dashboard: iterate sessions: %w", err)
	}
	return out, nil
}

func checkWindow(orgID string, start, end time.Time) error {
	if strings.TrimSpace(orgID) == "" {
		return fmt.Errorf("dashboard: org_id required")
	}
	if !end.After(start) {
		return errInvalidRange
	}
	return nil
}

func label(d Day) Day {
	d.Day = d.Day.UTC()
	d.DayLabel = d.Day.Format("2006-01-02")
	return d
}

// Handler serves GET /admin/clinics/{orgID}/dashboard.
type Handler struct {
	repo     repository
	gatherer prometheus.Gatherer
	now      func() time.Time
	logger   *logging.Logger
}

func NewHandler(repo repository, gatherer prometheus.Gatherer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{repo: repo, gatherer: gatherer, now: time.Now, logger: logger}
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/clinics/{orgID}/dashboard", h.GetDashboard)
}

// GetDashboard returns counters for the requested window.
// Query params:
//   - start, end: RFC3339 timestamps, both or neither
//   - days: window ending tomorrow at 00:00 UTC when start/end are omitted (default 7, max 90)
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
	if orgID == "" {
		respond.Error(w, http.StatusBadRequest, "org_id required")
		return
	}
	if h.repo == nil {
		respond.Error(w, http.StatusServiceUnavailable, "dashboard disabled (db not configured)")
		return
	}

	start, end, err := h.parseWindow(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	appts, err := h.repo.AppointmentsByDay(r.Context(), orgID, start, end)
	if err != nil {
		h.logger.Error("dashboard: appointments query failed", "org_id", orgID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	sessions, err := h.repo.SessionsByDay(r.Context(), orgID, start, end)
	if err != nil {
		h.logger.Error("dashboard: sessions query failed", "org_id", orgID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ClinicDashboard{
		OrgID:              orgID,
		PeriodStart:        start.UTC().Format(time.RFC3339),
		PeriodEnd:          end.UTC().Format(time.RFC3339),
		CreditCheckLatency: SnapshotLatency(h.gatherer),
		Daily:              mergeDays(start, end, appts, sessions),
	}
	var cancelled int64
	for _, d := range resp.Daily {
		resp.Appointments += d.Appointments
		resp.Sessions += d.Sessions
		resp.CreditsConsumed += d.CreditsConsumed
		resp.ForcedTerminations += d.ForcedTerminations
		cancelled += d.CancelledAppointments
	}
	if resp.Appointments > 0 {
		resp.CancellationPct = float64(cancelled) / float64(resp.Appointments) * 100.0
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if (startRaw == "") != (endRaw == "") {
		return time.Time{}, time.Time{}, fmt.Errorf("both start and end must be provided, or neither")
	}
	if startRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time, use RFC3339 format")
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time, use RFC3339 format")
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
		}
		return start.UTC(), end.UTC(), nil
	}

	days := 7
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid days; must be 1-90")
		}
		days = parsed
	}
	now := h.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -days), end, nil
}

// mergeDays lays both series onto every day of the window, zero-filling gaps.
func mergeDays(start, end time.Time, series ...[]Day) []Day {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	byDay := map[string]*Day{}
	out := make([]Day, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for day := startDay; day.Before(endDay); day = day.AddDate(0, 0, 1) {
		out = append(out, Day{Day: day, DayLabel: day.Format("2006-01-02")})
	}
	for i := range out {
		byDay[out[i].DayLabel] = &out[i]
	}
	for _, s := range series {
		for _, d := range s {
			slot, ok := byDay[d.Day.UTC().Format("2006-01-02")]
			if !ok {
				continue
			}
			slot.Appointments += d.Appointments
			slot.CompletedAppointments += d.CompletedAppointments
			slot.CancelledAppointments += d.CancelledAppointments
			slot.Sessions += d.Sessions
			slot.SessionMinutes += d.SessionMinutes
			slot.CreditsConsumed += d.CreditsConsumed
			slot.ForcedTerminations += d.ForcedTerminations
		}
	}
	return out
}
