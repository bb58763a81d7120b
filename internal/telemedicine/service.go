package telemedicine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/clock"
	"github.com/matheuspdias/managerclin/internal/credits"
	"github.com/matheuspdias/managerclin/internal/database"
	"github.com/matheuspdias/managerclin/internal/notify"
	"github.com/matheuspdias/managerclin/internal/observability/metrics"
	"github.com/matheuspdias/managerclin/internal/scheduling"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// Appointments is the slice of the appointment lifecycle sessions drive.
type Appointments interface {
	GetAppointment(ctx context.Context, id string, includeDeleted bool) (*scheduling.Appointment, error)
	UpdateStatus(ctx context.Context, id string, next scheduling.Status) (*scheduling.Appointment, error)
}

// CreditDebiter takes credits from the scoped clinic without going negative.
type CreditDebiter interface {
	TryDebit(ctx context.Context, amount int, ref credits.Reference) (int, bool, error)
}

// Notifier sends participant notices.
type Notifier interface {
	SendJoinLink(ctx context.Context, n notify.JoinLinkNotice) error
	SendSessionEnded(ctx context.Context, n notify.SessionEndedNotice) error
}

// Config controls meeting room naming.
type Config struct {
	BaseURL    string
	RoomPrefix string
}

const creditReferenceType = "telemedicine_session"

// Service runs the session state machine.
type Service struct {
	store        Store
	appointments Appointments
	credits      CreditDebiter
	notifier     Notifier
	publisher    Publisher
	tx           database.TxRunner
	clock        clock.Clock
	audit        audit.Recorder
	metrics      *metrics.TelemedicineMetrics
	cfg          Config
	tracer       trace.Tracer
	logger       *logging.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithAuditRecorder(rec audit.Recorder) Option {
	return func(s *Service) { s.audit = rec }
}

func WithMetrics(m *metrics.TelemedicineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx database.TxRunner) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

func NewService(store Store, appointments Appointments, debiter CreditDebiter, cfg Config, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://meet.jit.si"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RoomPrefix == "" {
		cfg.RoomPrefix = "clinic"
	}
	s := &Service{
		store:        store,
		appointments: appointments,
		credits:      debiter,
		tx:           database.NewLocalRunner(),
		clock:        clock.Real{},
		cfg:          cfg,
		tracer:       otel.Tracer("managerclin.internal.telemedicine"),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateSession returns the appointment's open session, creating a
// WAITING one when none exists. The join link goes out only on creation.
func (s *Service) GetOrCreateSession(ctx context.Context, appointmentID string) (*Session, bool, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	appt, err := s.appointments.GetAppointment(ctx, appointmentID, false)
	if err != nil {
		return nil, false, err
	}
	if appt.Status.Terminal() {
		return nil, false, ErrAppointmentNotBookable
	}

	if existing, err := s.store.OpenForAppointment(ctx, scope.OrgID, appointmentID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}

	now := s.clock.Now()
	id := uuid.New().String()
	room := fmt.Sprintf("%s-%s", s.cfg.RoomPrefix, strings.ReplaceAll(id, "-", "")[:12])
	sess := &Session{
		ID:            id,
		OrgID:         scope.OrgID,
		AppointmentID: appointmentID,
		RoomName:      room,
		MeetingURL:    s.cfg.BaseURL + "/" + room,
		Status:        StatusWaiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Insert(ctx, sess); err != nil {
		if errors.Is(err, ErrSessionExists) {
			existing, lookupErr := s.store.OpenForAppointment(ctx, scope.OrgID, appointmentID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.metrics.ObserveSession(string(StatusWaiting))
	s.recordAudit(ctx, scope, audit.EventSessionCreated, sess.ID, map[string]string{
		"appointment_id": appointmentID,
		"room_name":      room,
	})
	s.logger.Info("telemedicine: session created", "org_id", scope.OrgID, "session_id", sess.ID, "appointment_id", appointmentID)
	s.sendJoinLink(ctx, sess, appt)
	return sess, true, nil
}

// StartSession moves WAITING to ACTIVE after debiting the initiation credit.
// Starting an ACTIVE session returns it unchanged.
func (s *Service) StartSession(ctx context.Context, id string) (*Session, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "telemedicine.start_session")
	defer span.End()
	span.SetAttributes(attribute.String("managerclin.session_id", id))

	var (
		sess    *Session
		started bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		sess = current
		switch current.Status {
		case StatusActive:
			return nil
		case StatusWaiting:
		default:
			return &TransitionError{From: current.Status, To: StatusActive}
		}

		_, ok, err := s.credits.TryDebit(ctx, InitiationCost, credits.Reference{Type: creditReferenceType, ID: id})
		if err != nil {
			return err
		}
		if !ok {
			return credits.ErrInsufficientCredits
		}
		now := s.clock.Now()
		current.Status = StatusActive
		current.StartedAt = &now
		current.CreditsConsumed = InitiationCost
		current.LastCreditCheckAt = &now
		current.UpdatedAt = now
		started = true
		return s.store.Update(ctx, current)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !started {
		return sess, nil
	}

	s.advanceAppointment(ctx, sess.AppointmentID, scheduling.StatusScheduled, scheduling.StatusInProgress)
	s.metrics.ObserveSession(string(StatusActive))
	s.metrics.ObserveCreditsDebited(InitiationCost)
	s.recordAudit(ctx, scope, audit.EventSessionStarted, sess.ID, map[string]int{"credits_debited": InitiationCost})
	s.publish(EventStarted, sess, 0, "")
	s.logger.Info("telemedicine: session started", "org_id", scope.OrgID, "session_id", sess.ID, "appointment_id", sess.AppointmentID)
	return sess, nil
}

// CheckCredits bills an ACTIVE session for the half hours it has used. When
// the clinic cannot pay, the session is force completed instead of returning
// an error. Non-active sessions are returned untouched.
func (s *Service) CheckCredits(ctx context.Context, id string) (CheckResult, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	ctx, span := s.tracer.Start(ctx, "telemedicine.check_credits")
	defer span.End()
	span.SetAttributes(
		attribute.String("managerclin.org_id", scope.OrgID),
		attribute.String("managerclin.session_id", id),
	)
	began := time.Now()

	var result CheckResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sess, err := s.store.Get(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		result = CheckResult{Session: sess}
		if sess.Status != StatusActive {
			return nil
		}

		now := s.clock.Now()
		elapsed := sess.ElapsedMinutes(now)
		expected := ExpectedCredits(elapsed)
		if owed := expected - sess.CreditsConsumed; owed > 0 {
			_, ok, err := s.credits.TryDebit(ctx, owed, credits.Reference{Type: creditReferenceType, ID: id})
			if err != nil {
				return err
			}
			if ok {
				sess.CreditsConsumed = expected
				result.Debited = owed
			} else {
				sess.Status = StatusCompleted
				sess.EndedAt = &now
				sess.DurationMinutes = elapsed
				sess.EndReason = ReasonInsufficientCredits
				result.Terminated = true
				result.Reason = ReasonInsufficientCredits
			}
		}
		sess.LastCreditCheckAt = &now
		sess.UpdatedAt = now
		return s.store.Update(ctx, sess)
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveCreditCheck("error", time.Since(began).Seconds())
		return CheckResult{}, err
	}

	sess := result.Session
	switch {
	case result.Terminated:
		s.metrics.ObserveCreditCheck("terminated", time.Since(began).Seconds())
		s.metrics.ObserveTermination(result.Reason)
		s.metrics.ObserveSession(string(StatusCompleted))
		s.advanceAppointment(ctx, sess.AppointmentID, scheduling.StatusInProgress, scheduling.StatusCompleted)
		s.recordAudit(ctx, scope, audit.EventSessionTerminated, sess.ID, map[string]any{
			"reason":           result.Reason,
			"duration_minutes": sess.DurationMinutes,
			"credits_consumed": sess.CreditsConsumed,
		})
		s.publish(EventTerminated, sess, 0, result.Reason)
		s.sendSessionEnded(ctx, sess)
		s.logger.Warn("telemedicine: session terminated", "org_id", scope.OrgID, "session_id", sess.ID,
			"reason", result.Reason, "duration_minutes", sess.DurationMinutes)
	case result.Debited > 0:
		s.metrics.ObserveCreditCheck("debited", time.Since(began).Seconds())
		s.metrics.ObserveCreditsDebited(result.Debited)
		s.recordAudit(ctx, scope, audit.EventSessionCreditsDebited, sess.ID, map[string]int{
			"debited":          result.Debited,
			"credits_consumed": sess.CreditsConsumed,
		})
		s.publish(EventCreditsDebited, sess, result.Debited, "")
		s.logger.Info("telemedicine: credits debited", "org_id", scope.OrgID, "session_id", sess.ID,
			"debited", result.Debited, "credits_consumed", sess.CreditsConsumed)
	default:
		s.metrics.ObserveCreditCheck("noop", time.Since(began).Seconds())
	}
	span.SetAttributes(attribute.Int("managerclin.debited", result.Debited), attribute.Bool("managerclin.terminated", result.Terminated))
	return result, nil
}

// CompleteSession ends a WAITING or ACTIVE session normally.
func (s *Service) CompleteSession(ctx context.Context, id, notes string) (*Session, error) {
	sess, err := s.finish(ctx, id, StatusCompleted, notes)
	if err != nil {
		return nil, err
	}
	s.advanceAppointment(ctx, sess.AppointmentID, scheduling.StatusInProgress, scheduling.StatusCompleted)
	s.publish(EventCompleted, sess, 0, ReasonCompleted)
	return sess, nil
}

// CancelSession abandons a WAITING or ACTIVE session. The appointment is left as is.
func (s *Service) CancelSession(ctx context.Context, id, notes string) (*Session, error) {
	sess, err := s.finish(ctx, id, StatusCancelled, notes)
	if err != nil {
		return nil, err
	}
	s.publish(EventCancelled, sess, 0, ReasonCancelled)
	return sess, nil
}

func (s *Service) finish(ctx context.Context, id string, next Status, notes string) (*Session, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var sess *Session
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return &TransitionError{From: current.Status, To: next}
		}
		now := s.clock.Now()
		current.Status = next
		current.EndedAt = &now
		current.DurationMinutes = current.ElapsedMinutes(now)
		current.Notes = scheduling.MergeNotes(current.Notes, notes)
		if next == StatusCompleted {
			current.EndReason = ReasonCompleted
		} else {
			current.EndReason = ReasonCancelled
		}
		current.UpdatedAt = now
		sess = current
		return s.store.Update(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	event := audit.EventSessionCompleted
	if next == StatusCancelled {
		event = audit.EventSessionCancelled
	}
	s.metrics.ObserveSession(string(next))
	s.recordAudit(ctx, scope, event, sess.ID, map[string]any{
		"duration_minutes": sess.DurationMinutes,
		"credits_consumed": sess.CreditsConsumed,
	})
	s.logger.Info("telemedicine: session ended", "org_id", scope.OrgID, "session_id", sess.ID,
		"status", next, "duration_minutes", sess.DurationMinutes)
	return sess, nil
}

// InviteCustomer resends the join link for an open session.
func (s *Service) InviteCustomer(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return ErrSessionClosed
	}
	if s.notifier == nil {
		return nil
	}
	appt, err := s.appointments.GetAppointment(ctx, sess.AppointmentID, true)
	if err != nil {
		return err
	}
	return s.notifier.SendJoinLink(ctx, joinLinkNotice(sess, appt))
}

// GetSession fetches a session in the caller's org.
func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope.OrgID, id)
}

// ListActiveSessions lists the caller's ACTIVE sessions.
func (s *Service) ListActiveSessions(ctx context.Context) ([]Session, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListActive(ctx, scope.OrgID)
}

func (s *Service) advanceAppointment(ctx context.Context, appointmentID string, from, to scheduling.Status) {
	appt, err := s.appointments.GetAppointment(ctx, appointmentID, true)
	if err != nil {
		s.logger.Warn("telemedicine: load appointment failed", "appointment_id", appointmentID, "error", err)
		return
	}
	if appt.Status != from || appt.Deleted() {
		return
	}
	if _, err := s.appointments.UpdateStatus(ctx, appointmentID, to); err != nil {
		s.logger.Warn("telemedicine: advance appointment failed", "appointment_id", appointmentID,
			"from", from, "to", to, "error", err)
	}
}

func (s *Service) sendJoinLink(ctx context.Context, sess *Session, appt *scheduling.Appointment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendJoinLink(ctx, joinLinkNotice(sess, appt)); err != nil {
		s.logger.Warn("telemedicine: join link not delivered", "session_id", sess.ID, "error", err)
	}
}

func (s *Service) sendSessionEnded(ctx context.Context, sess *Session) {
	if s.notifier == nil {
		return
	}
	n := notify.SessionEndedNotice{
		OrgID:           sess.OrgID,
		SessionID:       sess.ID,
		AppointmentID:   sess.AppointmentID,
		Reason:          sess.EndReason,
		DurationMinutes: sess.DurationMinutes,
		CreditsConsumed: sess.CreditsConsumed,
	}
	if sess.EndedAt != nil {
		n.EndedAt = *sess.EndedAt
	}
	if appt, err := s.appointments.GetAppointment(ctx, sess.AppointmentID, true); err == nil {
		n.CustomerID = appt.CustomerID
		n.ProviderID = appt.ProviderID
	}
	if err := s.notifier.SendSessionEnded(ctx, n); err != nil {
		s.logger.Warn("telemedicine: session ended notice not delivered", "session_id", sess.ID, "error", err)
	}
}

func joinLinkNotice(sess *Session, appt *scheduling.Appointment) notify.JoinLinkNotice {
	return notify.JoinLinkNotice{
		OrgID:         sess.OrgID,
		SessionID:     sess.ID,
		AppointmentID: sess.AppointmentID,
		CustomerID:    appt.CustomerID,
		ProviderID:    appt.ProviderID,
		MeetingURL:    sess.MeetingURL,
		ScheduledFor:  appt.Date.String() + " " + appt.Start.String(),
	}
}

func (s *Service) publish(t EventType, sess *Session, debited int, reason string) {
	if s.publisher == nil {
		return
	}
	snapshot := *sess
	s.publisher.Publish(Event{
		Type:       t,
		OrgID:      sess.OrgID,
		SessionID:  sess.ID,
		Session:    &snapshot,
		Debited:    debited,
		Reason:     reason,
		OccurredAt: s.clock.Now(),
	})
}

func (s *Service) recordAudit(ctx context.Context, scope tenancy.Scope, event audit.EventType, id string, details any) {
	if err := audit.Record(ctx, s.audit, scope.OrgID, scope.ActorID, event, audit.EntitySession, id, details); err != nil {
		s.logger.Warn("telemedicine: audit write failed", "org_id", scope.OrgID, "session_id", id, "event", event, "error", err)
	}
}
