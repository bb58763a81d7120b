package telemedicine

import (
	"context"
	"sort"
	"sync"
)

// Store persists sessions. At most one WAITING or ACTIVE session may exist
// per appointment; Insert returns ErrSessionExists otherwise.
type Store interface {
	Insert(ctx context.Context, s *Session) error
	Update(ctx context.Context, s *Session) error
	Get(ctx context.Context, orgID, id string) (*Session, error)
	OpenForAppointment(ctx context.Context, orgID, appointmentID string) (*Session, error)
	// ListActive returns ACTIVE sessions for orgID, or for every org when
	// orgID is empty.
	ListActive(ctx context.Context, orgID string) ([]Session, error)
}

// MemoryStore keeps sessions in process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Insert(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.Status.Terminal() {
		for _, existing := range m.sessions {
			if existing.OrgID == s.OrgID && existing.AppointmentID == s.AppointmentID && !existing.Status.Terminal() {
				return ErrSessionExists
			}
		}
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ID]
	if !ok || existing.OrgID != s.OrgID {
		return ErrSessionNotFound
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, orgID, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || s.OrgID != orgID {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) OpenForAppointment(_ context.Context, orgID, appointmentID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.OrgID == orgID && s.AppointmentID == appointmentID && !s.Status.Terminal() {
			return &s, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) ListActive(_ context.Context, orgID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.Status == StatusActive && (orgID == "" || s.OrgID == orgID) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrgID != out[j].OrgID {
			return out[i].OrgID < out[j].OrgID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
