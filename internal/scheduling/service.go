package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/availability"
	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/clock"
	"github.com/matheuspdias/managerclin/internal/database"
	"github.com/matheuspdias/managerclin/internal/directory"
	"github.com/matheuspdias/managerclin/internal/observability/metrics"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

var tracer = otel.Tracer("managerclin.internal.scheduling")

// AvailabilityResolver returns a provider's open window for a date.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, providerID string, date calendar.Date) (availability.Window, error)
}

// CheckResult is the outcome of checking a proposal.
type CheckResult struct {
	Conflicts           []Conflict          `json:"conflicts"`
	Availability        availability.Window `json:"availability"`
	OutsideAvailability bool                `json:"outside_availability"`
}

// Clear reports whether the proposal can be booked without forcing.
func (r CheckResult) Clear() bool {
	return len(r.Conflicts) == 0 && !r.OutsideAvailability
}

// SlotsResult lists free slots for a provider on a date.
type SlotsResult struct {
	Availability availability.Window `json:"availability"`
	Duration     int                 `json:"duration_minutes"`
	Slots        []Slot              `json:"slots"`
}

// Service runs the appointment lifecycle.
type Service struct {
	store     Store
	detector  *Detector
	directory directory.Directory
	resolver  AvailabilityResolver
	tx        database.TxRunner
	clock     clock.Clock
	audit     audit.Recorder
	metrics   *metrics.SchedulingMetrics
	cadence   int
	logger    *logging.Logger
}

// Option customises a Service.
type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithAuditRecorder(rec audit.Recorder) Option {
	return func(s *Service) { s.audit = rec }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSlotCadence sets the step between slot starts in minutes. Values
// outside (0, MinutesPerDay] are ignored.
func WithSlotCadence(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 && minutes <= calendar.MinutesPerDay {
			s.cadence = minutes
		}
	}
}

// NewService wires the lifecycle. A nil tx runner serializes in process.
func NewService(store Store, dir directory.Directory, resolver AvailabilityResolver, tx database.TxRunner, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if tx == nil {
		tx = database.NewLocalRunner()
	}
	s := &Service{
		store:     store,
		detector:  NewDetector(store, dir),
		directory: dir,
		resolver:  resolver,
		tx:        tx,
		clock:     clock.Real{},
		cadence:   DefaultCadence,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckConflicts reports overlapping appointments and whether the proposal
// falls outside the provider's configured hours. Hours are only enforced for
// providers with an explicit schedule or exception for the date.
func (s *Service) CheckConflicts(ctx context.Context, p Proposal) (CheckResult, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	if p.ProviderID == "" || p.RoomID == "" {
		return CheckResult{}, &ValidationError{Field: "provider_id", Reason: "and room_id are required"}
	}
	if err := validateRange(p.Start, p.End); err != nil {
		return CheckResult{}, err
	}
	return s.check(ctx, scope.OrgID, p)
}

func (s *Service) check(ctx context.Context, orgID string, p Proposal) (CheckResult, error) {
	ctx, span := tracer.Start(ctx, "scheduling.check_conflicts")
	defer span.End()
	span.SetAttributes(
		attribute.String("managerclin.org_id", orgID),
		attribute.String("managerclin.provider_id", p.ProviderID),
		attribute.String("managerclin.room_id", p.RoomID),
	)
	started := time.Now()

	var result CheckResult
	if s.resolver != nil {
		window, err := s.resolver.Resolve(ctx, p.ProviderID, p.Date)
		if err != nil {
			span.RecordError(err)
			return CheckResult{}, fmt.Errorf("scheduling: resolve availability: %w", err)
		}
		result.Availability = window
		result.OutsideAvailability = window.HasExplicitSchedule && !window.Range().Contains(p.Range())
	}

	conflicts, err := s.detector.FindConflicts(ctx, orgID, p)
	if err != nil {
		span.RecordError(err)
		return CheckResult{}, err
	}
	result.Conflicts = conflicts
	if result.Conflicts == nil {
		result.Conflicts = []Conflict{}
	}

	outcome := "clear"
	if !result.Clear() {
		outcome = "conflict"
	}
	for _, c := range conflicts {
		for _, res := range c.Resources {
			s.metrics.ObserveConflict(string(res))
		}
	}
	s.metrics.ObserveConflictCheck(outcome, time.Since(started).Seconds())
	span.SetAttributes(attribute.Int("managerclin.conflicts", len(conflicts)))
	return result, nil
}

// CreateAppointment books a new appointment. The conflict check and insert
// run in one transaction holding locks on the provider and room for the
// date, so two concurrent bookings cannot both pass the check.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}
	if err := s.verifyReferences(ctx, scope.OrgID,
		directory.Reference{Kind: directory.KindProvider, ID: req.ProviderID},
		directory.Reference{Kind: directory.KindRoom, ID: req.RoomID},
		directory.Reference{Kind: directory.KindService, ID: req.ServiceID},
		directory.Reference{Kind: directory.KindCustomer, ID: req.CustomerID},
	); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	proposal := Proposal{Date: req.Date, Start: req.Start, End: req.End, ProviderID: req.ProviderID, RoomID: req.RoomID}
	var (
		appt   *Appointment
		result CheckResult
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockResources(ctx, scope.OrgID, proposal); err != nil {
			return err
		}
		var err error
		if result, err = s.check(ctx, scope.OrgID, proposal); err != nil {
			return err
		}
		if !result.Clear() && !req.Force {
			return &ConflictError{Conflicts: result.Conflicts, OutsideAvailability: result.OutsideAvailability}
		}
		now := s.clock.Now()
		appt = &Appointment{
			ID:         uuid.New().String(),
			OrgID:      scope.OrgID,
			ProviderID: req.ProviderID,
			RoomID:     req.RoomID,
			CustomerID: req.CustomerID,
			ServiceID:  req.ServiceID,
			Date:       req.Date,
			Start:      req.Start,
			End:        req.End,
			Status:     StatusScheduled,
			Notes:      strings.TrimSpace(req.Notes),
			CreatedAt:  now,
			CreatedBy:  scope.ActorID,
			UpdatedAt:  now,
			UpdatedBy:  scope.ActorID,
		}
		return s.store.Insert(ctx, appt)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.ObserveBooking("conflict")
		} else {
			s.metrics.ObserveBooking("error")
		}
		return nil, err
	}

	forced := !result.Clear()
	if forced {
		s.metrics.ObserveBooking("forced")
	} else {
		s.metrics.ObserveBooking("created")
	}
	s.recordAudit(ctx, scope, audit.EventAppointmentCreated, appt.ID, map[string]any{
		"date":      appt.Date.String(),
		"start":     appt.Start.String(),
		"end":       appt.End.String(),
		"forced":    forced,
		"conflicts": len(result.Conflicts),
	})
	s.logger.Info("scheduling: appointment created",
		"org_id", scope.OrgID, "appointment_id", appt.ID, "provider_id", appt.ProviderID,
		"room_id", appt.RoomID, "date", appt.Date.String(), "start", appt.Start.String(),
		"forced", forced, "actor_id", scope.ActorID)
	return appt, nil
}

// UpdateAppointment reschedules or reassigns an appointment. Moving it in
// time or to another provider or room re-runs the conflict check, excluding
// the appointment itself.
func (s *Service) UpdateAppointment(ctx context.Context, id string, req UpdateRequest) (*Appointment, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var appt *Appointment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, scope.OrgID, id, false)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return ErrAppointmentFinalized
		}
		next := *current
		applyUpdate(&next, req)
		if err := validateRange(next.Start, next.End); err != nil {
			return err
		}

		var refs []directory.Reference
		if next.ProviderID != current.ProviderID {
			refs = append(refs, directory.Reference{Kind: directory.KindProvider, ID: next.ProviderID})
		}
		if next.RoomID != current.RoomID {
			refs = append(refs, directory.Reference{Kind: directory.KindRoom, ID: next.RoomID})
		}
		if next.ServiceID != current.ServiceID {
			refs = append(refs, directory.Reference{Kind: directory.KindService, ID: next.ServiceID})
		}
		if next.CustomerID != current.CustomerID {
			refs = append(refs, directory.Reference{Kind: directory.KindCustomer, ID: next.CustomerID})
		}
		if err := s.verifyReferences(ctx, scope.OrgID, refs...); err != nil {
			return err
		}

		if movesSlot(current, &next) {
			proposal := Proposal{
				Date: next.Date, Start: next.Start, End: next.End,
				ProviderID: next.ProviderID, RoomID: next.RoomID, ExcludeID: id,
			}
			if err := s.store.LockResources(ctx, scope.OrgID, proposal); err != nil {
				return err
			}
			result, err := s.check(ctx, scope.OrgID, proposal)
			if err != nil {
				return err
			}
			if !result.Clear() && !req.Force {
				return &ConflictError{Conflicts: result.Conflicts, OutsideAvailability: result.OutsideAvailability}
			}
		}

		next.UpdatedAt = s.clock.Now()
		next.UpdatedBy = scope.ActorID
		if err := s.store.Update(ctx, &next); err != nil {
			return err
		}
		appt = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, scope, audit.EventAppointmentUpdated, appt.ID, map[string]any{
		"date":        appt.Date.String(),
		"start":       appt.Start.String(),
		"end":         appt.End.String(),
		"provider_id": appt.ProviderID,
		"room_id":     appt.RoomID,
	})
	s.logger.Info("scheduling: appointment updated",
		"org_id", scope.OrgID, "appointment_id", appt.ID, "actor_id", scope.ActorID)
	return appt, nil
}

// UpdateStatus moves an appointment along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (*Appointment, error) {
	return s.transition(ctx, id, next, "")
}

// CancelAppointment cancels a scheduled or in-progress appointment, appending
// the reason to its notes.
func (s *Service) CancelAppointment(ctx context.Context, id, reason string) (*Appointment, error) {
	note := ""
	if reason = strings.TrimSpace(reason); reason != "" {
		note = "Cancelled: " + reason
	}
	return s.transition(ctx, id, StatusCancelled, note)
}

func (s *Service) transition(ctx context.Context, id string, next Status, note string) (*Appointment, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		appt *Appointment
		from Status
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, scope.OrgID, id, false)
		if err != nil {
			return err
		}
		from = current.Status
		if !current.Status.CanTransitionTo(next) {
			return &TransitionError{From: current.Status, To: next}
		}
		current.Status = next
		current.Notes = MergeNotes(current.Notes, note)
		current.UpdatedAt = s.clock.Now()
		current.UpdatedBy = scope.ActorID
		if err := s.store.Update(ctx, current); err != nil {
			return err
		}
		appt = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(next))
	s.recordAudit(ctx, scope, audit.EventAppointmentStatusChanged, appt.ID, map[string]string{
		"from": string(from),
		"to":   string(next),
	})
	s.logger.Info("scheduling: appointment status changed",
		"org_id", scope.OrgID, "appointment_id", appt.ID, "from", from, "to", next, "actor_id", scope.ActorID)
	return appt, nil
}

// DeleteAppointment soft deletes an appointment. Dependent telemedicine
// sessions are left untouched.
func (s *Service) DeleteAppointment(ctx context.Context, id string) error {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, scope.OrgID, id, false)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		current.DeletedAt = &now
		current.DeletedBy = scope.ActorID
		current.UpdatedAt = now
		current.UpdatedBy = scope.ActorID
		return s.store.Update(ctx, current)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, scope, audit.EventAppointmentDeleted, id, nil)
	s.logger.Info("scheduling: appointment deleted",
		"org_id", scope.OrgID, "appointment_id", id, "actor_id", scope.ActorID)
	return nil
}

// GetAppointment fetches an appointment in the caller's org.
func (s *Service) GetAppointment(ctx context.Context, id string, includeDeleted bool) (*Appointment, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope.OrgID, id, includeDeleted)
}

// ListAppointments lists appointments in the caller's org.
func (s *Service) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, scope.OrgID, filter)
}

// AvailableSlots resolves the provider's window for date, enumerates
// candidate slots and drops those overlapping the provider's bookings. When
// roomID is set the room's bookings are also treated as busy.
func (s *Service) AvailableSlots(ctx context.Context, providerID, roomID string, date calendar.Date, durationMinutes int) (SlotsResult, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return SlotsResult{}, err
	}
	if durationMinutes <= 0 {
		return SlotsResult{}, &ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if durationMinutes > calendar.MinutesPerDay {
		return SlotsResult{}, &ValidationError{Field: "duration", Reason: "must not exceed one day"}
	}
	if s.resolver == nil {
		return SlotsResult{}, errors.New("scheduling: availability resolver not configured")
	}
	window, err := s.resolver.Resolve(ctx, providerID, date)
	if err != nil {
		return SlotsResult{}, err
	}
	candidates := GenerateSlots(window.Range(), durationMinutes, s.cadence)

	var busy []calendar.Range
	filters := []ListFilter{{Date: &date, ProviderID: providerID}}
	if roomID != "" {
		filters = append(filters, ListFilter{Date: &date, RoomID: roomID})
	}
	for _, f := range filters {
		appts, err := s.store.List(ctx, scope.OrgID, f)
		if err != nil {
			return SlotsResult{}, err
		}
		for i := range appts {
			if appts[i].Blocks() {
				busy = append(busy, appts[i].Range())
			}
		}
	}

	slots := FilterFree(candidates, busy)
	return SlotsResult{Availability: window, Duration: durationMinutes, Slots: slots}, nil
}

func (s *Service) verifyReferences(ctx context.Context, orgID string, refs ...directory.Reference) error {
	if s.directory == nil || len(refs) == 0 {
		return nil
	}
	missing, err := s.directory.Missing(ctx, orgID, refs...)
	if err != nil {
		return fmt.Errorf("scheduling: verify references: %w", err)
	}
	if len(missing) > 0 {
		return &ValidationError{Field: directory.Describe(missing), Reason: "not found in this clinic"}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, scope tenancy.Scope, event audit.EventType, id string, details any) {
	if err := audit.Record(ctx, s.audit, scope.OrgID, scope.ActorID, event, audit.EntityAppointment, id, details); err != nil {
		s.logger.Warn("scheduling: audit write failed", "org_id", scope.OrgID, "appointment_id", id, "event", event, "error", err)
	}
}

func applyUpdate(appt *Appointment, req UpdateRequest) {
	if req.ProviderID != nil {
		appt.ProviderID = *req.ProviderID
	}
	if req.RoomID != nil {
		appt.RoomID = *req.RoomID
	}
	if req.CustomerID != nil {
		appt.CustomerID = *req.CustomerID
	}
	if req.ServiceID != nil {
		appt.ServiceID = *req.ServiceID
	}
	if req.Date != nil {
		appt.Date = *req.Date
	}
	if req.Start != nil {
		appt.Start = *req.Start
	}
	if req.End != nil {
		appt.End = *req.End
	}
	if req.Notes != nil {
		appt.Notes = strings.TrimSpace(*req.Notes)
	}
}

func movesSlot(before, after *Appointment) bool {
	return before.Date != after.Date ||
		before.Start != after.Start ||
		before.End != after.End ||
		before.ProviderID != after.ProviderID ||
		before.RoomID != after.RoomID
}

// MergeNotes appends addition to existing on a new line.
func MergeNotes(existing, addition string) string {
	existing = strings.TrimSpace(existing)
	addition = strings.TrimSpace(addition)
	switch {
	case addition == "":
		return existing
	case existing == "":
		return addition
	default:
		return existing + "\n" + addition
	}
}
