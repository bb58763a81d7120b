package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Handler exposes appointments over HTTP.
type Handler struct {
	service    *Service
	logger     *logging.Logger
	createWrap func(http.Handler) http.Handler
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// WithCreateMiddleware wraps the booking endpoint, e.g. with idempotency replay.
func (h *Handler) WithCreateMiddleware(mw func(http.Handler) http.Handler) *Handler {
	h.createWrap = mw
	return h
}

// RegisterRoutes mounts appointment endpoints on a tenant-scoped router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/providers/{providerID}/slots", h.GetSlots)

	var create http.Handler = http.HandlerFunc(h.CreateAppointment)
	if h.createWrap != nil {
		create = h.createWrap(create)
	}
	r.Method(http.MethodPost, "/appointments", create)
	r.Get("/appointments", h.ListAppointments)
	r.Post("/appointments/conflicts", h.CheckConflicts)
	r.Get("/appointments/{appointmentID}", h.GetAppointment)
	r.Patch("/appointments/{appointmentID}", h.UpdateAppointment)
	r.Delete("/appointments/{appointmentID}", h.DeleteAppointment)
	r.Post("/appointments/{appointmentID}/status", h.UpdateStatus)
	r.Post("/appointments/{appointmentID}/cancel", h.CancelAppointment)
}

// CheckConflicts handles POST /appointments/conflicts
func (h *Handler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var p Proposal
	if err := respond.Decode(r, &p); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.service.CheckConflicts(r.Context(), p)
	if err != nil {
		h.writeError(w, "check conflicts", err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// CreateAppointment handles POST /appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	appt, err := h.service.CreateAppointment(r.Context(), req)
	if err != nil {
		h.writeError(w, "create appointment", err)
		return
	}
	respond.JSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /appointments
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ProviderID:     q.Get("provider_id"),
		RoomID:         q.Get("room_id"),
		CustomerID:     q.Get("customer_id"),
		IncludeDeleted: parseBool(q.Get("include_deleted")),
		Limit:          defaultListLimit,
	}
	if v := q.Get("date"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		filter.Date = &d
	}
	if v := q.Get("status"); v != "" {
		st, ok := ParseStatus(v)
		if !ok {
			respond.Error(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = st
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.Error(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	appts, err := h.service.ListAppointments(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list appointments", err)
		return
	}
	if appts == nil {
		appts = []Appointment{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// GetAppointment handles GET /appointments/{appointmentID}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	includeDeleted := parseBool(r.URL.Query().Get("include_deleted"))
	appt, err := h.service.GetAppointment(r.Context(), chi.URLParam(r, "appointmentID"), includeDeleted)
	if err != nil {
		h.writeError(w, "get appointment", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// UpdateAppointment handles PATCH /appointments/{appointmentID}
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	appt, err := h.service.UpdateAppointment(r.Context(), chi.URLParam(r, "appointmentID"), req)
	if err != nil {
		h.writeError(w, "update appointment", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles POST /appointments/{appointmentID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	st, ok := ParseStatus(req.Status)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "unknown status")
		return
	}
	appt, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "appointmentID"), st)
	if err != nil {
		h.writeError(w, "update status", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelAppointment handles POST /appointments/{appointmentID}/cancel
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	appt, err := h.service.CancelAppointment(r.Context(), chi.URLParam(r, "appointmentID"), req.Reason)
	if err != nil {
		h.writeError(w, "cancel appointment", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// DeleteAppointment handles DELETE /appointments/{appointmentID}
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAppointment(r.Context(), chi.URLParam(r, "appointmentID")); err != nil {
		h.writeError(w, "delete appointment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSlots handles GET /providers/{providerID}/slots?date=&duration=&room_id=
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := calendar.ParseDate(q.Get("date"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil || duration <= 0 {
		respond.Error(w, http.StatusBadRequest, "duration must be a positive number of minutes")
		return
	}
	result, err := h.service.AvailableSlots(r.Context(), chi.URLParam(r, "providerID"), q.Get("room_id"), date, duration)
	if err != nil {
		h.writeError(w, "available slots", err)
		return
	}
	if result.Slots == nil {
		result.Slots = []Slot{}
	}
	respond.JSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var conflictErr *ConflictError
	switch {
	case errors.Is(err, tenancy.ErrMissingScope):
		respond.Error(w, http.StatusBadRequest, "missing org context")
	case errors.As(err, &conflictErr):
		respond.ErrorWithDetails(w, http.StatusConflict, conflictErr.Error(), conflictErr)
	case errors.Is(err, ErrValidation),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidTime):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAppointmentNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAppointmentFinalized):
		respond.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("scheduling: "+op+" failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
