package telemedicine

import (
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/matheuspdias/managerclin/internal/credits"
	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/notify"
	"github.com/matheuspdias/managerclin/internal/scheduling"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Subscriber hands out live event streams.
type Subscriber interface {
	Subscribe(orgID, sessionID string) (<-chan Event, func())
}

// Handler serves the session endpoints and the live event socket.
type Handler struct {
	service *Service
	events  Subscriber
	logger  *logging.Logger
}

func NewHandler(service *Service, events Subscriber, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, events: events, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/appointments/{appointmentID}/telemedicine", h.GetOrCreateSession)
	r.Get("/telemedicine/sessions", h.ListActiveSessions)
	r.Get("/telemedicine/sessions/{sessionID}", h.GetSession)
	r.Post("/telemedicine/sessions/{sessionID}/start", h.StartSession)
	r.Post("/telemedicine/sessions/{sessionID}/check-credits", h.CheckCredits)
	r.Post("/telemedicine/sessions/{sessionID}/complete", h.CompleteSession)
	r.Post("/telemedicine/sessions/{sessionID}/cancel", h.CancelSession)
	r.Post("/telemedicine/sessions/{sessionID}/invite", h.InviteCustomer)
	r.Get("/telemedicine/sessions/{sessionID}/events", h.Events)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// GetOrCreateSession handles POST /appointments/{appointmentID}/telemedicine
func (h *Handler) GetOrCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, created, err := h.service.GetOrCreateSession(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, "get or create session", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond.JSON(w, status, sess)
}

// ListActiveSessions handles GET /telemedicine/sessions
func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListActiveSessions(r.Context())
	if err != nil {
		h.writeError(w, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, "get session", err)
		return
	}
	respond.JSON(w, http.StatusOK, sess)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.StartSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, "start session", err)
		return
	}
	respond.JSON(w, http.StatusOK, sess)
}

// CheckCredits handles POST /telemedicine/sessions/{sessionID}/check-credits.
// Credit exhaustion is a successful response with terminated=true.
func (h *Handler) CheckCredits(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CheckCredits(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, "check credits", err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	sess, err := h.service.CompleteSession(r.Context(), chi.URLParam(r, "sessionID"), req.Notes)
	if err != nil {
		h.writeError(w, "complete session", err)
		return
	}
	respond.JSON(w, http.StatusOK, sess)
}

func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	sess, err := h.service.CancelSession(r.Context(), chi.URLParam(r, "sessionID"), req.Notes)
	if err != nil {
		h.writeError(w, "cancel session", err)
		return
	}
	respond.JSON(w, http.StatusOK, sess)
}

func (h *Handler) InviteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.service.InviteCustomer(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, "invite customer", err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// Events handles GET /telemedicine/sessions/{sessionID}/events. The socket
// gets a snapshot first, then every state change until the client leaves
// or the session ends.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, "events", err)
		return
	}
	if h.events == nil {
		respond.Error(w, http.StatusServiceUnavailable, "live events unavailable")
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveEvents(conn, r, sess)
	}).ServeHTTP(w, r)
}

type inboundMessage struct {
	Type string `json:"type"`
}

func (h *Handler) serveEvents(conn *websocket.Conn, r *http.Request, sess *Session) {
	events, unsubscribe := h.events.Subscribe(sess.OrgID, sess.ID)
	defer unsubscribe()

	var sendMu sync.Mutex
	send := func(v any) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return websocket.JSON.Send(conn, v)
	}

	if err := send(Event{Type: EventSnapshot, OrgID: sess.OrgID, SessionID: sess.ID, Session: sess, OccurredAt: sess.UpdatedAt}); err != nil {
		return
	}
	if sess.Status.Terminal() {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg inboundMessage
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				_ = send(map[string]string{"type": "pong"})
			}
		}
	}()

	h.logger.Debug("telemedicine: event stream opened", "org_id", sess.OrgID, "session_id", sess.ID)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			h.logger.Debug("telemedicine: event stream closed", "session_id", sess.ID)
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := send(evt); err != nil {
				return
			}
			if evt.Session != nil && evt.Session.Status.Terminal() {
				return
			}
		}
	}
}

func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := respond.Decode(r, dst); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var transitionErr *TransitionError
	var deliveryErr *notify.DeliveryError
	switch {
	case errors.Is(err, tenancy.ErrMissingScope):
		respond.Error(w, http.StatusBadRequest, "missing org context")
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, scheduling.ErrAppointmentNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, credits.ErrInsufficientCredits):
		respond.Error(w, http.StatusPaymentRequired, err.Error())
	case errors.As(err, &transitionErr), errors.Is(err, ErrAppointmentNotBookable), errors.Is(err, ErrSessionClosed):
		respond.Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &deliveryErr), errors.Is(err, notify.ErrNoRecipient):
		h.logger.Warn("telemedicine: "+op+" delivery failed", "error", err)
		respond.Error(w, http.StatusBadGateway, "notification could not be delivered")
	default:
		h.logger.Error("telemedicine: "+op+" failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}
