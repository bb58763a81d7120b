package availability

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Handler exposes provider availability over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the availability endpoints on a tenant-scoped router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/providers/{providerID}/availability", h.GetAvailability)
	r.Get("/providers/{providerID}/weekly", h.ListWeekly)
	r.Put("/providers/{providerID}/weekly/{weekday}", h.PutWeekly)
	r.Delete("/providers/{providerID}/weekly/{weekday}", h.DeleteWeekly)
	r.Get("/providers/{providerID}/exceptions", h.ListExceptions)
	r.Post("/providers/{providerID}/exceptions", h.CreateException)
	r.Delete("/providers/{providerID}/exceptions/{exceptionID}", h.DeleteException)
}

// GetAvailability handles GET /providers/{providerID}/availability?date=YYYY-MM-DD
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := calendar.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	window, err := h.service.Resolve(r.Context(), chi.URLParam(r, "providerID"), date)
	if err != nil {
		h.writeError(w, "resolve availability", err)
		return
	}
	respond.JSON(w, http.StatusOK, window)
}

// ListWeekly handles GET /providers/{providerID}/weekly
func (h *Handler) ListWeekly(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListWeeklyRules(r.Context(), chi.URLParam(r, "providerID"))
	if err != nil {
		h.writeError(w, "list weekly rules", err)
		return
	}
	if rules == nil {
		rules = []WeeklyRule{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// PutWeekly handles PUT /providers/{providerID}/weekly/{weekday}
func (h *Handler) PutWeekly(w http.ResponseWriter, r *http.Request) {
	weekday, err := ParseWeekday(chi.URLParam(r, "weekday"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	var req SetWeeklyRuleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ProviderID = chi.URLParam(r, "providerID")
	req.Weekday = weekday

	rule, err := h.service.SetWeeklyRule(r.Context(), req)
	if err != nil {
		h.writeError(w, "set weekly rule", err)
		return
	}
	respond.JSON(w, http.StatusOK, rule)
}

// DeleteWeekly handles DELETE /providers/{providerID}/weekly/{weekday}
func (h *Handler) DeleteWeekly(w http.ResponseWriter, r *http.Request) {
	weekday, err := ParseWeekday(chi.URLParam(r, "weekday"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.RemoveWeeklyRule(r.Context(), chi.URLParam(r, "providerID"), weekday); err != nil {
		h.writeError(w, "remove weekly rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExceptions handles GET /providers/{providerID}/exceptions?from=&to=
// The range defaults to the next 30 days.
func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	from := calendar.DateOf(time.Now().UTC())
	to := from.AddDays(30)
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = d
	}
	exceptions, err := h.service.ListExceptions(r.Context(), chi.URLParam(r, "providerID"), from, to)
	if err != nil {
		h.writeError(w, "list exceptions", err)
		return
	}
	if exceptions == nil {
		exceptions = []Exception{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"exceptions": exceptions})
}

// CreateException handles POST /providers/{providerID}/exceptions
func (h *Handler) CreateException(w http.ResponseWriter, r *http.Request) {
	var req AddExceptionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ProviderID = chi.URLParam(r, "providerID")

	exc, err := h.service.AddException(r.Context(), req)
	if err != nil {
		h.writeError(w, "add exception", err)
		return
	}
	respond.JSON(w, http.StatusCreated, exc)
}

// DeleteException handles DELETE /providers/{providerID}/exceptions/{exceptionID}
func (h *Handler) DeleteException(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveException(r.Context(), chi.URLParam(r, "providerID"), chi.URLParam(r, "exceptionID"))
	if err != nil {
		h.writeError(w, "remove exception", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tenancy.ErrMissingScope):
		respond.Error(w, http.StatusBadRequest, "missing org context")
	case errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrInvalidWeekday),
		errors.Is(err, ErrInvalidException),
		errors.Is(err, ErrMissingProvider),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidTime):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRuleNotFound), errors.Is(err, ErrExceptionNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("availability: "+op+" failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// ParseWeekday accepts 0-6 (sunday first) or an english day name.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, ErrInvalidWeekday
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, ErrInvalidWeekday
}
