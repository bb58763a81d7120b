// Package audit keeps the append-only trail of scheduling and telemedicine
// state changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType names an audited transition.
type EventType string

const (
	EventAppointmentCreated       EventType = "appointment.created"
	EventAppointmentUpdated       EventType = "appointment.updated"
	EventAppointmentStatusChanged EventType = "appointment.status_changed"
	EventAppointmentDeleted       EventType = "appointment.deleted"
	EventSessionCreated           EventType = "telemedicine.session_created"
	EventSessionStarted           EventType = "telemedicine.session_started"
	EventSessionCreditsDebited    EventType = "telemedicine.credits_debited"
	EventSessionTerminated        EventType = "telemedicine.session_terminated"
	EventSessionCompleted         EventType = "telemedicine.session_completed"
	EventSessionCancelled         EventType = "telemedicine.session_cancelled"
	EventCreditsGranted           EventType = "credits.granted"
)

// Entity types referenced by events.
const (
	EntityAppointment = "appointment"
	EntitySession     = "telemedicine_session"
	EntityCredits     = "credit_balance"
)

// Event is an immutable audit record.
type Event struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"org_id"`
	ActorID    string          `json:"actor_id"`
	EventType  EventType       `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter narrows QueryEvents.
type Filter struct {
	OrgID      string
	EntityType string
	EntityID   string
	EventTypes []EventType
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

// Recorder writes audit events.
type Recorder interface {
	LogEvent(ctx context.Context, event Event) error
}

// Record builds an event from its parts, marshaling details to JSON.
func Record(ctx context.Context, rec Recorder, orgID, actorID string, eventType EventType, entityType, entityID string, details any) error {
	if rec == nil {
		return nil
	}
	event := Event{
		OrgID:      orgID,
		ActorID:    actorID,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("audit: marshal details: %w", err)
		}
		event.Details = raw
	}
	return rec.LogEvent(ctx, event)
}

// Service stores events in the audit_events table.
type Service struct {
	db *sql.DB
}

// NewService creates an audit service over a database/sql handle.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			id, org_id, actor_id, event_type, entity_type, entity_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.OrgID,
		nullString(event.ActorID),
		string(event.EventType),
		event.EntityType,
		event.EntityID,
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// QueryEvents retrieves events for an org, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, org_id, actor_id, event_type, entity_type, entity_id, details, created_at
		FROM audit_events
		WHERE org_id = $1
	`
	args := []interface{}{filter.OrgID}
	argIdx := 2

	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, filter.EntityType)
		argIdx++
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, filter.EntityID)
		argIdx++
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(types))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			actorID sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &actorID, &e.EventType, &e.EntityType, &e.EntityID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.ActorID = actorID.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MemoryRecorder keeps events in process for development and tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) LogEvent(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// QueryEvents applies the filter in memory, newest first.
func (m *MemoryRecorder) QueryEvents(_ context.Context, filter Filter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.OrgID != filter.OrgID {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if len(filter.EventTypes) > 0 && !containsType(filter.EventTypes, e.EventType) {
			continue
		}
		if !filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime) {
			continue
		}
		out = append(out, e)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Events returns a copy of everything recorded.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
