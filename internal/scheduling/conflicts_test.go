package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuspdias/managerclin/internal/calendar"
	"github.com/matheuspdias/managerclin/internal/directory"
)

const testOrg = "org-1"

var testDate = calendar.MustParseDate("2024-03-04")

func seed(t *testing.T, store *MemoryStore, id, provider, room, customer, start, end string) *Appointment {
	t.Helper()
	appt := &Appointment{
		ID:         id,
		OrgID:      testOrg,
		ProviderID: provider,
		RoomID:     room,
		CustomerID: customer,
		ServiceID:  "svc-1",
		Date:       testDate,
		Start:      tod(start),
		End:        tod(end),
		Status:     StatusScheduled,
	}
	require.NoError(t, store.Insert(context.Background(), appt))
	return appt
}

func newTestDirectory() *directory.Memory {
	dir := directory.NewMemory()
	for _, c := range []struct {
		kind directory.Kind
		id   string
		name string
	}{
		{directory.KindProvider, "prov-1", "Dr. Ana"},
		{directory.KindProvider, "prov-2", "Dr. Bruno"},
		{directory.KindRoom, "room-1", "Room 1"},
		{directory.KindRoom, "room-2", "Room 2"},
		{directory.KindService, "svc-1", "Consultation"},
		{directory.KindCustomer, "cust-1", "Maria Silva"},
		{directory.KindCustomer, "cust-2", "Joao Souza"},
	} {
		dir.Put(testOrg, c.kind, directory.Contact{ID: c.id, Name: c.name})
	}
	return dir
}

func proposal(provider, room, start, end string) Proposal {
	return Proposal{Date: testDate, Start: tod(start), End: tod(end), ProviderID: provider, RoomID: room}
}

func TestFindConflicts_OverlapIsReported(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "a1", "prov-1", "room-1", "cust-1", "09:00", "10:00")

	conflicts, err := NewDetector(store, newTestDirectory()).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-2", "09:30", "10:30"))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "a1", conflicts[0].AppointmentID)
	assert.Equal(t, "Maria Silva", conflicts[0].CustomerName)
	assert.Equal(t, tod("09:00"), conflicts[0].Start)
	assert.Equal(t, tod("10:00"), conflicts[0].End)
	assert.Equal(t, []Resource{ResourceProvider}, conflicts[0].Resources)
}

func TestFindConflicts_AdjacentIsNotAConflict(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "a1", "prov-1", "room-1", "cust-1", "09:00", "10:00")

	conflicts, err := NewDetector(store, nil).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-1", "10:00", "11:00"))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflicts_ProviderAndRoomAreUnioned(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "a1", "prov-1", "room-2", "cust-1", "09:15", "09:45")

	conflicts, err := NewDetector(store, newTestDirectory()).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-1", "09:00", "09:30"))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "a1", conflicts[0].AppointmentID)
}

func TestFindConflicts_SameAppointmentOnBothResourcesReportedOnce(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "a1", "prov-1", "room-1", "cust-1", "09:00", "10:00")

	conflicts, err := NewDetector(store, nil).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-1", "09:30", "10:30"))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.ElementsMatch(t, []Resource{ResourceProvider, ResourceRoom}, conflicts[0].Resources)
}

func TestFindConflicts_RoomOnly(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "a1", "prov-2", "room-1", "cust-2", "14:00", "15:00")

	conflicts, err := NewDetector(store, newTestDirectory()).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-1", "14:30", "15:30"))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Joao Souza", conflicts[0].CustomerName)
	assert.Equal(t, []Resource{ResourceRoom}, conflicts[0].Resources)
}

func TestFindConflicts_ExcludesSelf(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "a1", "prov-1", "room-1", "cust-1", "09:00", "10:00")

	p := proposal("prov-1", "room-1", "09:00", "10:00")
	p.ExcludeID = "a1"
	conflicts, err := NewDetector(store, nil).FindConflicts(context.Background(), testOrg, p)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflicts_IgnoresCancelledAndDeleted(t *testing.T) {
	store := NewMemoryStore()
	cancelled := seed(t, store, "a1", "prov-1", "room-1", "cust-1", "09:00", "10:00")
	cancelled.Status = StatusCancelled
	require.NoError(t, store.Update(context.Background(), cancelled))

	deleted := seed(t, store, "a2", "prov-1", "room-1", "cust-2", "09:00", "10:00")
	now := time.Now()
	deleted.DeletedAt = &now
	require.NoError(t, store.Update(context.Background(), deleted))

	conflicts, err := NewDetector(store, nil).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflicts_CompletedStillBlocks(t *testing.T) {
	store := NewMemoryStore()
	done := seed(t, store, "a1", "prov-1", "room-1", "cust-1", "09:00", "10:00")
	done.Status = StatusCompleted
	require.NoError(t, store.Update(context.Background(), done))

	conflicts, err := NewDetector(store, nil).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-2", "09:30", "10:00"))
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestFindConflicts_OtherOrgAndDateIgnored(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &Appointment{
		ID: "other-org", OrgID: "org-2", ProviderID: "prov-1", RoomID: "room-1", CustomerID: "cust-1",
		Date: testDate, Start: tod("09:00"), End: tod("10:00"), Status: StatusScheduled,
	}))
	require.NoError(t, store.Insert(ctx, &Appointment{
		ID: "next-day", OrgID: testOrg, ProviderID: "prov-1", RoomID: "room-1", CustomerID: "cust-1",
		Date: testDate.AddDays(1), Start: tod("09:00"), End: tod("10:00"), Status: StatusScheduled,
	}))

	conflicts, err := NewDetector(store, nil).FindConflicts(ctx, testOrg, proposal("prov-1", "room-1", "09:00", "10:00"))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflicts_SortedByStart(t *testing.T) {
	store := NewMemoryStore()
	seed(t, store, "late", "prov-2", "room-1", "cust-2", "10:00", "11:00")
	seed(t, store, "early", "prov-1", "room-2", "cust-1", "08:30", "09:30")

	conflicts, err := NewDetector(store, nil).FindConflicts(context.Background(), testOrg, proposal("prov-1", "room-1", "09:00", "10:30"))
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "early", conflicts[0].AppointmentID)
	assert.Equal(t, "late", conflicts[1].AppointmentID)
}
