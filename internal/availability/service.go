package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/clock"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

// DefaultHours applies to providers that have not configured a schedule.
var DefaultHours = calendar.Range{
	Start: calendar.NewTimeOfDay(8, 0),
	End:   calendar.NewTimeOfDay(18, 0),
}

// Service resolves provider availability and manages the rules behind it.
type Service struct {
	store    Store
	clock    clock.Clock
	defaults calendar.Range
	logger   *logging.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithDefaultHours overrides the 08:00-18:00 fallback window.
func WithDefaultHours(hours calendar.Range) Option {
	return func(s *Service) {
		if !hours.IsEmpty() {
			s.defaults = hours
		}
	}
}

// WithClock overrides the clock used for audit stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewService(store Store, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:    store,
		clock:    clock.Real{},
		defaults: DefaultHours,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the provider's open window for date. A date exception
// replaces the weekly rule outright; without either the default hours are
// returned with HasExplicitSchedule unset.
func (s *Service) Resolve(ctx context.Context, providerID string, date calendar.Date) (Window, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return Window{}, err
	}
	if providerID == "" {
		return Window{}, ErrMissingProvider
	}
	window := Window{ProviderID: providerID, Date: date}

	exc, err := s.store.ExceptionOn(ctx, scope.OrgID, providerID, date)
	switch {
	case err == nil:
		window.HasExplicitSchedule = true
		window.Source = SourceException
		window.Reason = exc.Reason
		if !exc.Available {
			return window, nil
		}
		if exc.HasHours() {
			window.Start, window.End = *exc.Start, *exc.End
			return window, nil
		}
		hours, _, err := s.weekdayHours(ctx, scope.OrgID, providerID, date.Weekday())
		if err != nil {
			return Window{}, err
		}
		window.Start, window.End = hours.Start, hours.End
		return window, nil
	case !errors.Is(err, ErrExceptionNotFound):
		return Window{}, fmt.Errorf("availability: resolve exception: %w", err)
	}

	hours, explicit, err := s.weekdayHours(ctx, scope.OrgID, providerID, date.Weekday())
	if err != nil {
		return Window{}, err
	}
	window.Start, window.End = hours.Start, hours.End
	window.HasExplicitSchedule = explicit
	window.Source = SourceDefault
	if explicit {
		window.Source = SourceRecurring
	}
	return window, nil
}

// weekdayHours returns the active weekly rule's hours, or the defaults.
func (s *Service) weekdayHours(ctx context.Context, orgID, providerID string, weekday time.Weekday) (calendar.Range, bool, error) {
	rule, err := s.store.WeeklyRule(ctx, orgID, providerID, weekday)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return s.defaults, false, nil
		}
		return calendar.Range{}, false, fmt.Errorf("availability: resolve weekly rule: %w", err)
	}
	if !rule.Active {
		return s.defaults, false, nil
	}
	return calendar.Range{Start: rule.Start, End: rule.End}, true, nil
}

// SetWeeklyRule creates or replaces the provider's hours for a weekday.
func (s *Service) SetWeeklyRule(ctx context.Context, req SetWeeklyRuleRequest) (*WeeklyRule, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule := &WeeklyRule{
		ID:         uuid.New().String(),
		OrgID:      scope.OrgID,
		ProviderID: req.ProviderID,
		Weekday:    req.Weekday,
		Start:      req.Start,
		End:        req.End,
		Active:     active,
		CreatedAt:  now,
		CreatedBy:  scope.ActorID,
		UpdatedAt:  now,
		UpdatedBy:  scope.ActorID,
	}
	if err := s.store.UpsertWeeklyRule(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("availability: weekly rule saved",
		"org_id", scope.OrgID, "provider_id", req.ProviderID, "weekday", req.Weekday.String(),
		"start", req.Start.String(), "end", req.End.String(), "actor_id", scope.ActorID)
	return rule, nil
}

// RemoveWeeklyRule deletes the provider's rule for a weekday.
func (s *Service) RemoveWeeklyRule(ctx context.Context, providerID string, weekday time.Weekday) error {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWeeklyRule(ctx, scope.OrgID, providerID, weekday); err != nil {
		return err
	}
	s.logger.Info("availability: weekly rule removed",
		"org_id", scope.OrgID, "provider_id", providerID, "weekday", weekday.String(), "actor_id", scope.ActorID)
	return nil
}

// ListWeeklyRules returns the provider's weekly schedule ordered by weekday.
func (s *Service) ListWeeklyRules(ctx context.Context, providerID string) ([]WeeklyRule, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListWeeklyRules(ctx, scope.OrgID, providerID)
}

// AddException creates or replaces the exception for a date.
func (s *Service) AddException(ctx context.Context, req AddExceptionRequest) (*Exception, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	exc := &Exception{
		ID:         uuid.New().String(),
		OrgID:      scope.OrgID,
		ProviderID: req.ProviderID,
		Date:       req.Date,
		Available:  req.Available,
		Reason:     req.Reason,
		CreatedAt:  s.clock.Now(),
		CreatedBy:  scope.ActorID,
	}
	if req.Available {
		exc.Start, exc.End = req.Start, req.End
	}
	if err := s.store.UpsertException(ctx, exc); err != nil {
		return nil, err
	}
	s.logger.Info("availability: exception saved",
		"org_id", scope.OrgID, "provider_id", req.ProviderID, "date", req.Date.String(),
		"available", req.Available, "actor_id", scope.ActorID)
	return exc, nil
}

// RemoveException deletes an exception by id.
func (s *Service) RemoveException(ctx context.Context, providerID, exceptionID string) error {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return err
	}
	return s.store.DeleteException(ctx, scope.OrgID, providerID, exceptionID)
}

// ListExceptions returns exceptions between from and to inclusive.
func (s *Service) ListExceptions(ctx context.Context, providerID string, from, to calendar.Date) ([]Exception, error) {
	scope, err := tenancy.ScopeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidWindow
	}
	return s.store.ListExceptions(ctx, scope.OrgID, providerID, from, to)
}
