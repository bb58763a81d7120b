package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/database"
)

// PostgresStore keeps appointments in the appointments table. Times of day
// are exchanged as "HH:MM" text and cast in SQL.
type PostgresStore struct {
	db database.Querier
}

func NewPostgresStore(db database.Querier) *PostgresStore {
	if db == nil {
		panic("scheduling: database required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) conn(ctx context.Context) database.Querier {
	return database.Conn(ctx, s.db)
}

const appointmentColumns = `id, org_id, provider_id, room_id, customer_id, service_id, appointment_date,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), status, notes,
	created_at, created_by, updated_at, updated_by, deleted_at, COALESCE(deleted_by, '')`

func (s *PostgresStore) Insert(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (id, org_id, provider_id, room_id, customer_id, service_id, appointment_date,
			start_time, end_time, status, notes, created_at, created_by, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::time, $9::text::time, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.conn(ctx).Exec(ctx, query,
		appt.ID,
		appt.OrgID,
		appt.ProviderID,
		appt.RoomID,
		appt.CustomerID,
		appt.ServiceID,
		appt.Date.Time(),
		appt.Start.String(),
		appt.End.String(),
		string(appt.Status),
		appt.Notes,
		appt.CreatedAt,
		appt.CreatedBy,
		appt.UpdatedAt,
		appt.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments
		SET provider_id = $3, room_id = $4, customer_id = $5, service_id = $6, appointment_date = $7,
			start_time = $8::text::time, end_time = $9::text::time, status = $10, notes = $11,
			updated_at = $12, updated_by = $13, deleted_at = $14, deleted_by = NULLIF($15, '')
		WHERE org_id = $1 AND id = $2
	`
	tag, err := s.conn(ctx).Exec(ctx, query,
		appt.OrgID,
		appt.ID,
		appt.ProviderID,
		appt.RoomID,
		appt.CustomerID,
		appt.ServiceID,
		appt.Date.Time(),
		appt.Start.String(),
		appt.End.String(),
		string(appt.Status),
		appt.Notes,
		appt.UpdatedAt,
		appt.UpdatedBy,
		appt.DeletedAt,
		appt.DeletedBy,
	)
	if err != nil {
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID, id string, includeDeleted bool) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE org_id = $1 AND id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if _, inTx := database.TxFromContext(ctx); inTx {
		query += ` FOR UPDATE`
	}
	appt, err := scanAppointment(s.conn(ctx).QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: select appointment: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) List(ctx context.Context, orgID string, filter ListFilter) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE org_id = $1`
	args := []any{orgID}
	argIdx := 2

	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if filter.Date != nil {
		query += fmt.Sprintf(" AND appointment_date = $%d", argIdx)
		args = append(args, filter.Date.Time())
		argIdx++
	}
	if filter.ProviderID != "" {
		query += fmt.Sprintf(" AND provider_id = $%d", argIdx)
		args = append(args, filter.ProviderID)
		argIdx++
	}
	if filter.RoomID != "" {
		query += fmt.Sprintf(" AND room_id = $%d", argIdx)
		args = append(args, filter.RoomID)
		argIdx++
	}
	if filter.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)
		args = append(args, filter.CustomerID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += " ORDER BY appointment_date, start_time, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return s.queryAppointments(ctx, query, args...)
}

var resourceColumns = map[Resource]string{
	ResourceProvider: "provider_id",
	ResourceRoom:     "room_id",
}

func (s *PostgresStore) Overlapping(ctx context.Context, orgID string, q OverlapQuery) ([]Appointment, error) {
	column, ok := resourceColumns[q.Resource]
	if !ok {
		return nil, fmt.Errorf("scheduling: unknown resource %q", q.Resource)
	}
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE org_id = $1 AND ` + column + ` = $2 AND appointment_date = $3
			AND start_time < $5::text::time AND $4::text::time < end_time
			AND status <> 'CANCELLED' AND deleted_at IS NULL
			AND ($6 = '' OR id::text <> $6)
		ORDER BY start_time`
	return s.queryAppointments(ctx, query,
		orgID,
		q.ResourceID,
		q.Date.Time(),
		q.Start.String(),
		q.End.String(),
		q.ExcludeID,
	)
}

// LockResources takes transaction-scoped advisory locks for the proposal's
// provider and room on its date. Keys are sorted so concurrent bookings
// acquire them in the same order.
func (s *PostgresStore) LockResources(ctx context.Context, orgID string, p Proposal) error {
	keys := []string{
		lockKey(orgID, ResourceProvider, p.ProviderID, p.Date),
		lockKey(orgID, ResourceRoom, p.RoomID, p.Date),
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := s.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("scheduling: lock %s: %w", key, err)
		}
	}
	return nil
}

func lockKey(orgID string, resource Resource, id string, date calendar.Date) string {
	return strings.Join([]string{"appointments", orgID, string(resource), id, date.String()}, ":")
}

func (s *PostgresStore) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: query appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt       Appointment
		date       time.Time
		start, end string
		status     string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.OrgID,
		&appt.ProviderID,
		&appt.RoomID,
		&appt.CustomerID,
		&appt.ServiceID,
		&date,
		&start,
		&end,
		&status,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.CreatedBy,
		&appt.UpdatedAt,
		&appt.UpdatedBy,
		&appt.DeletedAt,
		&appt.DeletedBy,
	); err != nil {
		return nil, err
	}
	appt.Date = calendar.DateOf(date)
	appt.Status = Status(status)
	var err error
	if appt.Start, err = calendar.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if appt.End, err = calendar.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	return &appt, nil
}
