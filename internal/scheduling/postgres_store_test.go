package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "org_id", "provider_id", "room_id", "customer_id", "service_id", "appointment_date",
	"start_time", "end_time", "status", "notes", "created_at", "created_by", "updated_at", "updated_by",
	"deleted_at", "deleted_by",
}

func TestPostgresStoreOverlappingProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(appointmentRowColumns).
		AddRow("a1", testOrg, "prov-1", "room-2", "cust-1", "svc-1", testDate.Time(),
			"09:15", "09:45", "SCHEDULED", "", now, "user-1", now, "user-1", (*time.Time)(nil), "")
	mock.ExpectQuery("FROM appointments\\s+WHERE org_id = \\$1 AND provider_id = \\$2").
		WithArgs(testOrg, "prov-1", testDate.Time(), "09:00", "09:30", "").
		WillReturnRows(rows)

	appts, err := NewPostgresStore(mock).Overlapping(context.Background(), testOrg, OverlapQuery{
		Resource: ResourceProvider, ResourceID: "prov-1", Date: testDate, Start: tod("09:00"), End: tod("09:30"),
	})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "a1", appts[0].ID)
	assert.Equal(t, tod("09:15"), appts[0].Start)
	assert.Equal(t, testDate, appts[0].Date)
	assert.Nil(t, appts[0].DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreOverlappingRoomWithExclusion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("AND room_id = \\$2").
		WithArgs(testOrg, "room-1", testDate.Time(), "10:00", "11:00", "a9").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))

	appts, err := NewPostgresStore(mock).Overlapping(context.Background(), testOrg, OverlapQuery{
		Resource: ResourceRoom, ResourceID: "room-1", Date: testDate, Start: tod("10:00"), End: tod("11:00"), ExcludeID: "a9",
	})
	require.NoError(t, err)
	assert.Empty(t, appts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WHERE org_id = \\$1 AND id = \\$2 AND deleted_at IS NULL").
		WithArgs(testOrg, "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresStore(mock).Get(context.Background(), testOrg, "missing", false)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPostgresStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID: "a1", OrgID: testOrg, ProviderID: "prov-1", RoomID: "room-1", CustomerID: "cust-1", ServiceID: "svc-1",
		Date: testDate, Start: tod("09:00"), End: tod("10:00"), Status: StatusScheduled,
		CreatedAt: now, CreatedBy: "user-1", UpdatedAt: now, UpdatedBy: "user-1",
	}
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs("a1", testOrg, "prov-1", "room-1", "cust-1", "svc-1", testDate.Time(), "09:00", "10:00",
			"SCHEDULED", "", now, "user-1", now, "user-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPostgresStore(mock).Insert(context.Background(), appt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE appointments").
		WithArgs(testOrg, "a1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPostgresStore(mock).Update(context.Background(), &Appointment{ID: "a1", OrgID: testOrg})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPostgresStoreListFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("appointment_date = \\$2 AND provider_id = \\$3 AND status = \\$4 ORDER BY .* LIMIT 10 OFFSET 5").
		WithArgs(testOrg, testDate.Time(), "prov-1", "SCHEDULED").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))

	date := testDate
	_, err = NewPostgresStore(mock).List(context.Background(), testOrg, ListFilter{
		Date: &date, ProviderID: "prov-1", Status: StatusScheduled, Limit: 10, Offset: 5,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLockResourcesSortedKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("appointments:org-1:provider:prov-1:2024-03-04").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("appointments:org-1:room:room-1:2024-03-04").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err = NewPostgresStore(mock).LockResources(context.Background(), testOrg, proposal("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
