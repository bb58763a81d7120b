package credits

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Handler exposes balances to clinics and grants to admins.
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

// RegisterRoutes mounts the clinic-facing endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/credits", h.GetBalance)
	r.Get("/credits/ledger", h.GetLedger)
}

// RegisterAdminRoutes mounts grant endpoints on an admin router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/clinics/{orgID}/credits/grant", h.Grant)
}

// GetBalance handles GET /credits
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context())
	if err != nil {
		h.writeError(w, "balance", err)
		return
	}
	respond.JSON(w, http.StatusOK, balance)
}

// GetLedger handles GET /credits/ledger?limit=
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	entries, err := h.service.Ledger(r.Context(), limit)
	if err != nil {
		h.writeError(w, "ledger", err)
		return
	}
	if entries == nil {
		entries = []Transaction{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

// Grant handles POST /admin/clinics/{orgID}/credits/grant
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.service.Grant(r.Context(), chi.URLParam(r, "orgID"), req)
	if err != nil {
		h.writeError(w, "grant", err)
		return
	}
	respond.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tenancy.ErrMissingScope):
		respond.Error(w, http.StatusBadRequest, "missing org context")
	case errors.Is(err, ErrInvalidAmount):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientCredits):
		respond.Error(w, http.StatusPaymentRequired, err.Error())
	default:
		h.logger.Error("credits: "+op+" failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}
