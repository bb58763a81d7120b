package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/database"
)

// PostgresStore persists availability in provider_weekly_hours and
// provider_availability_exceptions. Times are exchanged as "HH:MM" text.
type PostgresStore struct {
	db database.Querier
}

// NewPostgresStore wraps a pgx pool (or anything speaking the same query surface).
func NewPostgresStore(db database.Querier) *PostgresStore {
	if db == nil {
		panic("availability: database required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) conn(ctx context.Context) database.Querier {
	return database.Conn(ctx, s.db)
}

const weeklyColumns = `id, org_id, provider_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	active, created_at, created_by, updated_at, updated_by`

func (s *PostgresStore) WeeklyRule(ctx context.Context, orgID, providerID string, weekday time.Weekday) (*WeeklyRule, error) {
	query := `SELECT ` + weeklyColumns + `
		FROM provider_weekly_hours
		WHERE org_id = $1 AND provider_id = $2 AND weekday = $3`
	rule, err := scanWeeklyRule(s.conn(ctx).QueryRow(ctx, query, orgID, providerID, int(weekday)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("availability: select weekly rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) ListWeeklyRules(ctx context.Context, orgID, providerID string) ([]WeeklyRule, error) {
	query := `SELECT ` + weeklyColumns + `
		FROM provider_weekly_hours
		WHERE org_id = $1 AND provider_id = $2
		ORDER BY weekday`
	rows, err := s.conn(ctx).Query(ctx, query, orgID, providerID)
	if err != nil {
		return nil, fmt.Errorf("availability: list weekly rules: %w", err)
	}
	defer rows.Close()

	var out []WeeklyRule
	for rows.Next() {
		rule, err := scanWeeklyRule(rows)
		if err != nil {
			return nil, fmt.Errorf("availability: scan weekly rule: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

// UpsertWeeklyRule relies on the (org_id, provider_id, weekday) unique index.
func (s *PostgresStore) UpsertWeeklyRule(ctx context.Context, rule *WeeklyRule) error {
	query := `
		INSERT INTO provider_weekly_hours (id, org_id, provider_id, weekday, start_time, end_time, active, created_at, created_by, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5::text::time, $6::text::time, $7, $8, $9, $8, $9)
		ON CONFLICT (org_id, provider_id, weekday)
		DO UPDATE SET start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
		RETURNING id, created_at, created_by`
	err := s.conn(ctx).QueryRow(ctx, query,
		rule.ID,
		rule.OrgID,
		rule.ProviderID,
		int(rule.Weekday),
		rule.Start.String(),
		rule.End.String(),
		rule.Active,
		rule.UpdatedAt,
		rule.UpdatedBy,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.CreatedBy)
	if err != nil {
		return fmt.Errorf("availability: upsert weekly rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteWeeklyRule(ctx context.Context, orgID, providerID string, weekday time.Weekday) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`DELETE FROM provider_weekly_hours WHERE org_id = $1 AND provider_id = $2 AND weekday = $3`,
		orgID, providerID, int(weekday))
	if err != nil {
		return fmt.Errorf("availability: delete weekly rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

const exceptionColumns = `id, org_id, provider_id, exception_date,
	COALESCE(to_char(start_time, 'HH24:MI'), ''), COALESCE(to_char(end_time, 'HH24:MI'), ''),
	available, reason, created_at, created_by`

func (s *PostgresStore) ExceptionOn(ctx context.Context, orgID, providerID string, date calendar.Date) (*Exception, error) {
	query := `SELECT ` + exceptionColumns + `
		FROM provider_availability_exceptions
		WHERE org_id = $1 AND provider_id = $2 AND exception_date = $3`
	exc, err := scanException(s.conn(ctx).QueryRow(ctx, query, orgID, providerID, date.Time()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, fmt.Errorf("availability: select exception: %w", err)
	}
	return exc, nil
}

func (s *PostgresStore) ListExceptions(ctx context.Context, orgID, providerID string, from, to calendar.Date) ([]Exception, error) {
	query := `SELECT ` + exceptionColumns + `
		FROM provider_availability_exceptions
		WHERE org_id = $1 AND provider_id = $2 AND exception_date BETWEEN $3 AND $4
		ORDER BY exception_date`
	rows, err := s.conn(ctx).Query(ctx, query, orgID, providerID, from.Time(), to.Time())
	if err != nil {
		return nil, fmt.Errorf("availability: list exceptions: %w", err)
	}
	defer rows.Close()

	var out []Exception
	for rows.Next() {
		exc, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("availability: scan exception: %w", err)
		}
		out = append(out, *exc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertException(ctx context.Context, exc *Exception) error {
	query := `
		INSERT INTO provider_availability_exceptions (id, org_id, provider_id, exception_date, start_time, end_time, available, reason, created_at, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::time, NULLIF($6, '')::time, $7, $8, $9, $10)
		ON CONFLICT (org_id, provider_id, exception_date)
		DO UPDATE SET start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			available = EXCLUDED.available,
			reason = EXCLUDED.reason
		RETURNING id`
	err := s.conn(ctx).QueryRow(ctx, query,
		exc.ID,
		exc.OrgID,
		exc.ProviderID,
		exc.Date.Time(),
		formatOptional(exc.Start),
		formatOptional(exc.End),
		exc.Available,
		exc.Reason,
		exc.CreatedAt,
		exc.CreatedBy,
	).Scan(&exc.ID)
	if err != nil {
		return fmt.Errorf("availability: upsert exception: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteException(ctx context.Context, orgID, providerID, id string) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`DELETE FROM provider_availability_exceptions WHERE org_id = $1 AND provider_id = $2 AND id = $3`,
		orgID, providerID, id)
	if err != nil {
		return fmt.Errorf("availability: delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func scanWeeklyRule(row pgx.Row) (*WeeklyRule, error) {
	var (
		rule       WeeklyRule
		weekday    int
		start, end string
	)
	if err := row.Scan(
		&rule.ID,
		&rule.OrgID,
		&rule.ProviderID,
		&weekday,
		&start,
		&end,
		&rule.Active,
		&rule.CreatedAt,
		&rule.CreatedBy,
		&rule.UpdatedAt,
		&rule.UpdatedBy,
	); err != nil {
		return nil, err
	}
	rule.Weekday = time.Weekday(weekday)
	var err error
	if rule.Start, err = calendar.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if rule.End, err = calendar.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanException(row pgx.Row) (*Exception, error) {
	var (
		exc        Exception
		date       time.Time
		start, end string
	)
	if err := row.Scan(
		&exc.ID,
		&exc.OrgID,
		&exc.ProviderID,
		&date,
		&start,
		&end,
		&exc.Available,
		&exc.Reason,
		&exc.CreatedAt,
		&exc.CreatedBy,
	); err != nil {
		return nil, err
	}
	exc.Date = calendar.DateOf(date)
	if start != "" {
		t, err := calendar.ParseTimeOfDay(start)
		if err != nil {
			return nil, err
		}
		exc.Start = &t
	}
	if end != "" {
		t, err := calendar.ParseTimeOfDay(end)
		if err != nil {
			return nil, err
		}
		exc.End = &t
	}
	return &exc, nil
}

func formatOptional(t *calendar.TimeOfDay) string {
	if t == nil {
		return ""
	}
	return t.String()
}
