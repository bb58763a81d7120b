package telemedicine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matheuspdias/managerclin/internal/database"
)

const uniqueViolation = "23505"

// PostgresStore keeps sessions in telemedicine_sessions. A partial unique
// index on (org_id, appointment_id) for open statuses backs ErrSessionExists.
type PostgresStore struct {
	db database.Querier
}

func NewPostgresStore(db database.Querier) *PostgresStore {
	if db == nil {
		panic("telemedicine: database required")
	}
	return &PostgresStore{db: db}
}

func (p *PostgresStore) conn(ctx context.Context) database.Querier {
	return database.Conn(ctx, p.db)
}

const sessionColumns = `id, org_id, appointment_id, room_name, meeting_url, status, started_at, ended_at,
	duration_minutes, credits_consumed, last_credit_check_at, COALESCE(end_reason, ''), COALESCE(notes, ''),
	created_at, updated_at`

func (p *PostgresStore) Insert(ctx context.Context, s *Session) error {
	_, err := p.conn(ctx).Exec(ctx, `
		INSERT INTO telemedicine_sessions (id, org_id, appointment_id, room_name, meeting_url, status,
			started_at, ended_at, duration_minutes, credits_consumed, last_credit_check_at, end_reason, notes,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), NULLIF($13, ''), $14, $15)
	`, s.ID, s.OrgID, s.AppointmentID, s.RoomName, s.MeetingURL, string(s.Status),
		s.StartedAt, s.EndedAt, s.DurationMinutes, s.CreditsConsumed, s.LastCreditCheckAt, s.EndReason, s.Notes,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSessionExists
		}
		return fmt.Errorf("telemedicine: insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	tag, err := p.conn(ctx).Exec(ctx, `
		UPDATE telemedicine_sessions
		SET status = $3, started_at = $4, ended_at = $5, duration_minutes = $6, credits_consumed = $7,
			last_credit_check_at = $8, end_reason = NULLIF($9, ''), notes = NULLIF($10, ''), updated_at = $11
		WHERE org_id = $1 AND id = $2
	`, s.OrgID, s.ID, string(s.Status), s.StartedAt, s.EndedAt, s.DurationMinutes, s.CreditsConsumed,
		s.LastCreditCheckAt, s.EndReason, s.Notes, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("telemedicine: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Get locks the row when called inside a transaction so concurrent credit
// checks on one session run one after another.
func (p *PostgresStore) Get(ctx context.Context, orgID, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM telemedicine_sessions WHERE org_id = $1 AND id = $2`
	if _, inTx := database.TxFromContext(ctx); inTx {
		query += ` FOR UPDATE`
	}
	s, err := scanSession(p.conn(ctx).QueryRow(ctx, query, orgID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("telemedicine: select session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) OpenForAppointment(ctx context.Context, orgID, appointmentID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM telemedicine_sessions
		WHERE org_id = $1 AND appointment_id = $2 AND status IN ('WAITING', 'ACTIVE')
		ORDER BY created_at DESC LIMIT 1`
	s, err := scanSession(p.conn(ctx).QueryRow(ctx, query, orgID, appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("telemedicine: select open session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) ListActive(ctx context.Context, orgID string) ([]Session, error) {
	rows, err := p.conn(ctx).Query(ctx, `SELECT `+sessionColumns+` FROM telemedicine_sessions
		WHERE status = 'ACTIVE' AND ($1 = '' OR org_id = $1)
		ORDER BY org_id, started_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("telemedicine: list active sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("telemedicine: scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s      Session
		status string
	)
	if err := row.Scan(
		&s.ID,
		&s.OrgID,
		&s.AppointmentID,
		&s.RoomName,
		&s.MeetingURL,
		&status,
		&s.StartedAt,
		&s.EndedAt,
		&s.DurationMinutes,
		&s.CreditsConsumed,
		&s.LastCreditCheckAt,
		&s.EndReason,
		&s.Notes,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	return &s, nil
}
