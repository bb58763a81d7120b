package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuspdias/managerclin/internal/audit"
	"github.com/matheuspdias/managerclin/internal/availability"
	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/clock"
	"github.com/matheuspdias/managerclin/internal/observability/metrics"
	"github.com/matheuspdias/managerclin/internal/tenancy"
	"github.com/matheuspdias/managerclin/pkg/logging"
)

type testEnv struct {
	svc      *Service
	store    *MemoryStore
	avail    *availability.Service
	recorder *audit.MemoryRecorder
	clock    *clock.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	avail := availability.NewService(availability.NewMemoryStore(), logging.Default(), availability.WithClock(fake))
	recorder := audit.NewMemoryRecorder()
	svc := NewService(store, newTestDirectory(), avail, nil, logging.Default(),
		WithClock(fake),
		WithAuditRecorder(recorder),
		WithMetrics(metrics.NewSchedulingMetrics(prometheus.NewRegistry())),
	)
	return &testEnv{svc: svc, store: store, avail: avail, recorder: recorder, clock: fake}
}

func scopedContext() context.Context {
	return tenancy.WithScope(context.Background(), tenancy.Scope{OrgID: testOrg, ActorID: "user-1"})
}

func createRequest(provider, room, start, end string) CreateRequest {
	return CreateRequest{
		ProviderID: provider,
		RoomID:     room,
		CustomerID: "cust-1",
		ServiceID:  "svc-1",
		Date:       testDate,
		Start:      tod(start),
		End:        tod(end),
	}
}

func TestCreateAppointment(t *testing.T) {
	env := newTestEnv(t)

	appt, err := env.svc.CreateAppointment(scopedContext(), createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, testOrg, appt.OrgID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "user-1", appt.CreatedBy)
	assert.Equal(t, env.clock.Now(), appt.CreatedAt)

	stored, err := env.store.Get(context.Background(), testOrg, appt.ID, false)
	require.NoError(t, err)
	assert.Equal(t, appt.Start, stored.Start)

	events := env.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventAppointmentCreated, events[0].EventType)
	assert.Equal(t, appt.ID, events[0].EntityID)
}

func TestCreateAppointment_RequiresScope(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateAppointment(context.Background(), createRequest("prov-1", "room-1", "09:00", "10:00"))
	assert.ErrorIs(t, err, tenancy.ErrMissingScope)
}

func TestCreateAppointment_ValidatesRange(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateAppointment(scopedContext(), createRequest("prov-1", "room-1", "10:00", "10:00"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateAppointment_UnknownReferences(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateAppointment(scopedContext(), createRequest("prov-9", "room-1", "09:00", "10:00"))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Field, "provider")
}

func TestCreateAppointment_ConflictRejectedUnlessForced(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	first, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)

	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-2", "09:30", "10:30"))
	var cerr *ConflictError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Conflicts, 1)
	assert.Equal(t, first.ID, cerr.Conflicts[0].AppointmentID)
	assert.Equal(t, "Maria Silva", cerr.Conflicts[0].CustomerName)
	assert.False(t, cerr.OutsideAvailability)

	req := createRequest("prov-1", "room-2", "09:30", "10:30")
	req.Force = true
	forced, err := env.svc.CreateAppointment(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, forced.ID)
}

func TestCreateAppointment_OutsideExplicitSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	_, err := env.avail.SetWeeklyRule(ctx, availability.SetWeeklyRuleRequest{
		ProviderID: "prov-1", Weekday: time.Monday, Start: tod("09:00"), End: tod("12:00"),
	})
	require.NoError(t, err)

	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "11:30", "12:30"))
	var cerr *ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, cerr.OutsideAvailability)
	assert.Empty(t, cerr.Conflicts)

	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "11:00", "12:00"))
	assert.NoError(t, err)
}

func TestCreateAppointment_DefaultHoursAreNotEnforced(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateAppointment(scopedContext(), createRequest("prov-1", "room-1", "19:00", "20:00"))
	assert.NoError(t, err)
}

func TestCreateAppointment_ConcurrentBookingsSerialize(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
}

func TestCheckConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	_, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-2", "09:15", "09:45"))
	require.NoError(t, err)

	result, err := env.svc.CheckConflicts(ctx, proposal("prov-1", "room-1", "09:00", "09:30"))
	require.NoError(t, err)
	assert.Len(t, result.Conflicts, 1)
	assert.False(t, result.Clear())

	result, err = env.svc.CheckConflicts(ctx, proposal("prov-2", "room-1", "09:00", "09:30"))
	require.NoError(t, err)
	assert.True(t, result.Clear())
	assert.NotNil(t, result.Conflicts)
}

func TestUpdateAppointment_RescheduleExcludesItself(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	appt, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)

	start, end := tod("09:30"), tod("10:30")
	updated, err := env.svc.UpdateAppointment(ctx, appt.ID, UpdateRequest{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, start, updated.Start)
	assert.Equal(t, end, updated.End)
}

func TestUpdateAppointment_IntoBookedSlotConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	_, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)
	second, err := env.svc.CreateAppointment(ctx, createRequest("prov-2", "room-2", "09:00", "10:00"))
	require.NoError(t, err)

	provider := "prov-1"
	_, err = env.svc.UpdateAppointment(ctx, second.ID, UpdateRequest{ProviderID: &provider})
	assert.ErrorIs(t, err, ErrConflict)

	notes := "bring exams"
	updated, err := env.svc.UpdateAppointment(ctx, second.ID, UpdateRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "bring exams", updated.Notes)
}

func TestUpdateAppointment_FinalizedIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	appt, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)
	_, err = env.svc.CancelAppointment(ctx, appt.ID, "")
	require.NoError(t, err)

	notes := "late"
	_, err = env.svc.UpdateAppointment(ctx, appt.ID, UpdateRequest{Notes: &notes})
	assert.ErrorIs(t, err, ErrAppointmentFinalized)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	appt, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(ctx, appt.ID, StatusCompleted)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StatusScheduled, terr.From)
	assert.Equal(t, StatusCompleted, terr.To)

	started, err := env.svc.UpdateStatus(ctx, appt.ID, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	done, err := env.svc.UpdateStatus(ctx, appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = env.svc.UpdateStatus(ctx, appt.ID, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusScheduled, StatusScheduled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCancelAppointment_AppendsReasonAndFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	req := createRequest("prov-1", "room-1", "09:00", "10:00")
	req.Notes = "first visit"
	appt, err := env.svc.CreateAppointment(ctx, req)
	require.NoError(t, err)

	cancelled, err := env.svc.CancelAppointment(ctx, appt.ID, "patient sick")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "first visit\nCancelled: patient sick", cancelled.Notes)

	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	assert.NoError(t, err)
}

func TestDeleteAppointment_SoftDeletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	appt, err := env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteAppointment(ctx, appt.ID))

	_, err = env.svc.GetAppointment(ctx, appt.ID, false)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	deleted, err := env.svc.GetAppointment(ctx, appt.ID, true)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, "user-1", deleted.DeletedBy)

	list, err := env.svc.ListAppointments(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = env.svc.ListAppointments(ctx, ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, env.svc.DeleteAppointment(ctx, appt.ID), ErrAppointmentNotFound)

	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "10:00"))
	assert.NoError(t, err)
}

func TestGetAppointment_OtherOrgIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	appt, err := env.svc.CreateAppointment(scopedContext(), createRequest("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)

	other := tenancy.WithScope(context.Background(), tenancy.Scope{OrgID: "org-2", ActorID: "user-9"})
	_, err = env.svc.GetAppointment(other, appt.ID, true)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestAvailableSlots(t *testing.T) {
	env := newTestEnv(t)
	ctx := scopedContext()
	_, err := env.avail.SetWeeklyRule(ctx, availability.SetWeeklyRuleRequest{
		ProviderID: "prov-1", Weekday: time.Monday, Start: tod("09:00"), End: tod("11:00"),
	})
	require.NoError(t, err)
	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-1", "room-1", "09:00", "09:30"))
	require.NoError(t, err)
	_, err = env.svc.CreateAppointment(ctx, createRequest("prov-2", "room-2", "10:30", "11:00"))
	require.NoError(t, err)

	result, err := env.svc.AvailableSlots(ctx, "prov-1", "", testDate, 30)
	require.NoError(t, err)
	assert.True(t, result.Availability.HasExplicitSchedule)
	require.Len(t, result.Slots, 3)
	assert.Equal(t, tod("09:30"), result.Slots[0].Start)
	assert.Equal(t, tod("10:30"), result.Slots[2].Start)

	withRoom, err := env.svc.AvailableSlots(ctx, "prov-1", "room-2", testDate, 30)
	require.NoError(t, err)
	require.Len(t, withRoom.Slots, 2)
	assert.Equal(t, tod("10:00"), withRoom.Slots[1].Start)

	_, err = env.svc.AvailableSlots(ctx, "prov-1", "", testDate, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.AvailableSlots(ctx, "prov-1", "", testDate, calendar.MinutesPerDay+1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMergeNotes(t *testing.T) {
	assert.Equal(t, "", MergeNotes("", " "))
	assert.Equal(t, "a", MergeNotes("a", ""))
	assert.Equal(t, "b", MergeNotes("", "b"))
	assert.Equal(t, "a\nb", MergeNotes("a ", " b"))
}

func TestWithSlotCadenceIgnoresOutOfRange(t *testing.T) {
	for _, minutes := range []int{0, -5, calendar.MinutesPerDay + 1} {
		svc := NewService(NewMemoryStore(), nil, nil, nil, nil, WithSlotCadence(minutes))
		assert.Equal(t, DefaultCadence, svc.cadence, "cadence %d", minutes)
	}
	svc := NewService(NewMemoryStore(), nil, nil, nil, nil, WithSlotCadence(15))
	assert.Equal(t, 15, svc.cadence)
}
