package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matheuspdias/managerclin/internal/calendar"
)

// Store persists weekly rules and date exceptions. Every call is scoped to an org.
type Store interface {
	WeeklyRule(ctx context.Context, orgID, providerID string, weekday time.Weekday) (*WeeklyRule, error)
	ListWeeklyRules(ctx context.Context, orgID, providerID string) ([]WeeklyRule, error)
	UpsertWeeklyRule(ctx context.Context, rule *WeeklyRule) error
	DeleteWeeklyRule(ctx context.Context, orgID, providerID string, weekday time.Weekday) error

	ExceptionOn(ctx context.Context, orgID, providerID string, date calendar.Date) (*Exception, error)
	ListExceptions(ctx context.Context, orgID, providerID string, from, to calendar.Date) ([]Exception, error)
	UpsertException(ctx context.Context, exc *Exception) error
	DeleteException(ctx context.Context, orgID, providerID, id string) error
}

type ruleKey struct {
	orgID      string
	providerID string
	weekday    time.Weekday
}

type exceptionKey struct {
	orgID      string
	providerID string
	date       calendar.Date
}

// MemoryStore keeps availability in process. Used in development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	rules      map[ruleKey]WeeklyRule
	exceptions map[exceptionKey]Exception
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:      make(map[ruleKey]WeeklyRule),
		exceptions: make(map[exceptionKey]Exception),
	}
}

func (s *MemoryStore) WeeklyRule(_ context.Context, orgID, providerID string, weekday time.Weekday) (*WeeklyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleKey{orgID, providerID, weekday}]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

func (s *MemoryStore) ListWeeklyRules(_ context.Context, orgID, providerID string) ([]WeeklyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WeeklyRule
	for key, rule := range s.rules {
		if key.orgID == orgID && key.providerID == providerID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

// UpsertWeeklyRule replaces any rule for the same weekday, keeping its id and creation stamp.
func (s *MemoryStore) UpsertWeeklyRule(_ context.Context, rule *WeeklyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleKey{rule.OrgID, rule.ProviderID, rule.Weekday}
	if existing, ok := s.rules[key]; ok {
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
		rule.CreatedBy = existing.CreatedBy
	}
	s.rules[key] = *rule
	return nil
}

func (s *MemoryStore) DeleteWeeklyRule(_ context.Context, orgID, providerID string, weekday time.Weekday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleKey{orgID, providerID, weekday}
	if _, ok := s.rules[key]; !ok {
		return ErrRuleNotFound
	}
	delete(s.rules, key)
	return nil
}

func (s *MemoryStore) ExceptionOn(_ context.Context, orgID, providerID string, date calendar.Date) (*Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exc, ok := s.exceptions[exceptionKey{orgID, providerID, date}]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	return &exc, nil
}

func (s *MemoryStore) ListExceptions(_ context.Context, orgID, providerID string, from, to calendar.Date) ([]Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Exception
	for key, exc := range s.exceptions {
		if key.orgID != orgID || key.providerID != providerID {
			continue
		}
		if key.date.Before(from) || to.Before(key.date) {
			continue
		}
		out = append(out, exc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) UpsertException(_ context.Context, exc *Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := exceptionKey{exc.OrgID, exc.ProviderID, exc.Date}
	if existing, ok := s.exceptions[key]; ok {
		exc.ID = existing.ID
	}
	s.exceptions[key] = *exc
	return nil
}

func (s *MemoryStore) DeleteException(_ context.Context, orgID, providerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, exc := range s.exceptions {
		if key.orgID == orgID && key.providerID == providerID && exc.ID == id {
			delete(s.exceptions, key)
			return nil
		}
	}
	return ErrExceptionNotFound
}
