package scheduling

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuspdias/managerclin/internal/calendar"
)

func tod(s string) calendar.TimeOfDay { return calendar.MustParseTimeOfDay(s) }

func window(start, end string) calendar.Range {
	return calendar.Range{Start: tod(start), End: tod(end)}
}

func TestGenerateSlots_HalfHourCadence(t *testing.T) {
	slots := GenerateSlots(window("08:00", "10:00"), 60, DefaultCadence)

	require.Len(t, slots, 3)
	assert.Equal(t, Slot{Start: tod("08:00"), End: tod("09:00")}, slots[0])
	assert.Equal(t, Slot{Start: tod("08:30"), End: tod("09:30")}, slots[1])
	assert.Equal(t, Slot{Start: tod("09:00"), End: tod("10:00")}, slots[2])
}

func TestGenerateSlots_LastSlotEndsExactlyAtWindowEnd(t *testing.T) {
	slots := GenerateSlots(window("09:00", "10:00"), 30, DefaultCadence)

	require.Len(t, slots, 2)
	assert.Equal(t, tod("10:00"), slots[1].End)
}

func TestGenerateSlots_NothingFits(t *testing.T) {
	assert.Empty(t, GenerateSlots(window("09:00", "09:45"), 60, DefaultCadence))
	assert.Empty(t, GenerateSlots(window("09:00", "09:00"), 15, DefaultCadence))
	assert.Empty(t, GenerateSlots(window("09:00", "17:00"), 0, DefaultCadence))
}

func TestGenerateSlots_BoundsProperty(t *testing.T) {
	cases := []struct {
		win      calendar.Range
		duration int
	}{
		{window("08:00", "18:00"), 15},
		{window("08:00", "18:00"), 45},
		{window("07:10", "12:50"), 50},
		{window("00:00", "24:00"), 90},
		{window("13:00", "13:59"), 30},
	}
	for _, tc := range cases {
		slots := GenerateSlots(tc.win, tc.duration, DefaultCadence)
		for i, s := range slots {
			assert.True(t, s.Start >= tc.win.Start, "slot %d starts before window", i)
			assert.True(t, s.End <= tc.win.End, "slot %d ends after window", i)
			assert.Equal(t, tc.duration, s.End.Sub(s.Start))
			if i > 0 {
				assert.Equal(t, DefaultCadence, s.Start.Sub(slots[i-1].Start))
			}
		}
		if len(slots) > 0 {
			next := slots[len(slots)-1].Start.Add(DefaultCadence)
			assert.True(t, next.Add(tc.duration) > tc.win.End, "a further slot would still fit")
		}
	}
}

func TestGenerateSlots_OversizedInputsTerminate(t *testing.T) {
	done := make(chan [][]Slot, 1)
	go func() {
		done <- [][]Slot{
			GenerateSlots(window("08:00", "18:00"), math.MaxInt-400, DefaultCadence),
			GenerateSlots(window("08:00", "18:00"), 601, DefaultCadence),
			GenerateSlots(window("08:00", "10:00"), 60, math.MaxInt-10),
		}
	}()
	select {
	case got := <-done:
		assert.Empty(t, got[0])
		assert.Empty(t, got[1])
		require.Len(t, got[2], 3, "out-of-range cadence falls back to the default")
	case <-time.After(time.Second):
		t.Fatal("GenerateSlots did not return for oversized inputs")
	}
}

func TestGenerateSlots_DurationEqualToWindow(t *testing.T) {
	slots := GenerateSlots(window("08:00", "18:00"), 600, DefaultCadence)
	require.Len(t, slots, 1)
	assert.Equal(t, window("08:00", "18:00"), slots[0].Range())
}

func TestGenerateSlots_CustomCadence(t *testing.T) {
	slots := GenerateSlots(window("09:00", "10:00"), 30, 15)
	require.Len(t, slots, 3)
	assert.Equal(t, tod("09:15"), slots[1].Start)
}

func TestFilterFree(t *testing.T) {
	slots := GenerateSlots(window("09:00", "11:00"), 30, DefaultCadence)
	busy := []calendar.Range{window("09:15", "09:45")}

	free := FilterFree(slots, busy)

	require.Len(t, free, 2)
	assert.Equal(t, tod("10:00"), free[0].Start)
	assert.Equal(t, tod("10:30"), free[1].Start)
}

func TestFilterFree_AdjacentBookingDoesNotBlock(t *testing.T) {
	slots := GenerateSlots(window("09:00", "10:00"), 30, DefaultCadence)
	free := FilterFree(slots, []calendar.Range{window("10:00", "11:00"), window("08:00", "09:00")})
	assert.Len(t, free, 2)
}
