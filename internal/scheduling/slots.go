package scheduling

import "github.com/matheuspdias/managerclin/internal/calendar"

// DefaultCadence is the step between candidate slot starts, in minutes.
const DefaultCadence = 30

// GenerateSlots enumerates candidate slots of durationMinutes inside window,
// starting at window.Start and stepping by cadenceMinutes. A slot is emitted
// while start+duration still fits before window.End. Bookings are not consulted.
// A duration longer than the window yields no slots; a cadence outside
// (0, MinutesPerDay] falls back to DefaultCadence.
func GenerateSlots(window calendar.Range, durationMinutes, cadenceMinutes int) []Slot {
	if durationMinutes <= 0 || window.IsEmpty() || durationMinutes > window.Minutes() {
		return nil
	}
	if cadenceMinutes <= 0 || cadenceMinutes > calendar.MinutesPerDay {
		cadenceMinutes = DefaultCadence
	}
	var slots []Slot
	for current := window.Start; current.Add(durationMinutes) <= window.End; current = current.Add(cadenceMinutes) {
		slots = append(slots, Slot{Start: current, End: current.Add(durationMinutes)})
	}
	return slots
}

// FilterFree drops every slot that overlaps one of the busy ranges.
func FilterFree(slots []Slot, busy []calendar.Range) []Slot {
	free := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		taken := false
		for _, b := range busy {
			if slot.Range().Overlaps(b) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, slot)
		}
	}
	return free
}
