package scheduling

import (
	"context"
	"sort"
	"sync"
)

// Store persists appointments. Every method is scoped to an org; reads skip
// soft-deleted rows unless asked otherwise.
type Store interface {
	Insert(ctx context.Context, appt *Appointment) error
	Update(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, orgID, id string, includeDeleted bool) (*Appointment, error)
	List(ctx context.Context, orgID string, filter ListFilter) ([]Appointment, error)
	// Overlapping returns non-cancelled, non-deleted appointments on the
	// query's resource whose [start,end) intersects the query range.
	Overlapping(ctx context.Context, orgID string, q OverlapQuery) ([]Appointment, error)
	// LockResources serializes bookings touching the same provider or room
	// on a date until the surrounding transaction ends.
	LockResources(ctx context.Context, orgID string, p Proposal) error
}

// MemoryStore keeps appointments in process.
type MemoryStore struct {
	mu    sync.RWMutex
	appts map[string]Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appts: make(map[string]Appointment)}
}

func (s *MemoryStore) Insert(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) Update(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.appts[appt.ID]
	if !ok || existing.OrgID != appt.OrgID {
		return ErrAppointmentNotFound
	}
	s.appts[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orgID, id string, includeDeleted bool) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appts[id]
	if !ok || appt.OrgID != orgID || (appt.Deleted() && !includeDeleted) {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (s *MemoryStore) List(_ context.Context, orgID string, filter ListFilter) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, appt := range s.appts {
		if appt.OrgID != orgID || !matchesFilter(&appt, filter) {
			continue
		}
		out = append(out, appt)
	}
	sortAppointments(out)
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) Overlapping(_ context.Context, orgID string, q OverlapQuery) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, appt := range s.appts {
		if appt.OrgID != orgID || appt.ID == q.ExcludeID || !appt.Blocks() || appt.Date != q.Date {
			continue
		}
		switch q.Resource {
		case ResourceProvider:
			if appt.ProviderID != q.ResourceID {
				continue
			}
		case ResourceRoom:
			if appt.RoomID != q.ResourceID {
				continue
			}
		default:
			continue
		}
		if appt.Range().Overlaps(rangeOf(q.Start, q.End)) {
			out = append(out, appt)
		}
	}
	sortAppointments(out)
	return out, nil
}

// LockResources is a no-op; callers serialize through database.LocalRunner.
func (s *MemoryStore) LockResources(context.Context, string, Proposal) error {
	return nil
}

func matchesFilter(appt *Appointment, f ListFilter) bool {
	if appt.Deleted() && !f.IncludeDeleted {
		return false
	}
	if f.Date != nil && appt.Date != *f.Date {
		return false
	}
	if f.ProviderID != "" && appt.ProviderID != f.ProviderID {
		return false
	}
	if f.RoomID != "" && appt.RoomID != f.RoomID {
		return false
	}
	if f.CustomerID != "" && appt.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && appt.Status != f.Status {
		return false
	}
	return true
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date.Before(appts[j].Date)
		}
		if appts[i].Start != appts[j].Start {
			return appts[i].Start < appts[j].Start
		}
		return appts[i].ID < appts[j].ID
	})
}

func paginate(appts []Appointment, limit, offset int) []Appointment {
	if offset > 0 {
		if offset >= len(appts) {
			return nil
		}
		appts = appts[offset:]
	}
	if limit > 0 && len(appts) > limit {
		appts = appts[:limit]
	}
	return appts
}
