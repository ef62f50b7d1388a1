package booking

import "time"

// Operating window: 09:00 inclusive to 17:00 exclusive, half-hour steps.
const (
	slotOpenHour  = 9
	slotCloseHour = 17
	slotStep      = 30 * time.Minute
)

// Slot is one bookable time-of-day. Value is the canonical 24-hour "HH:MM"
// key used for storage and comparison; Display is the 12-hour AM/PM form and
// is presentational only.
type Slot struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

// GenerateSlots returns the fixed 16-entry grid for an operating day. The day
// argument is accepted for the calling convention but does not change the
// result; already-booked slots are not filtered out here.
func GenerateSlots(day time.Time) []Slot {
	open := time.Date(day.Year(), day.Month(), day.Day(), slotOpenHour, 0, 0, 0, time.UTC)
	close := time.Date(day.Year(), day.Month(), day.Day(), slotCloseHour, 0, 0, 0, time.UTC)

	var slots []Slot
	for t := open; t.Before(close); t = t.Add(slotStep) {
		slots = append(slots, Slot{
			Value:   t.Format("15:04"),
			Display: t.Format("03:04 PM"),
		})
	}
	return slots
}

// ValidSlotValue reports whether v is one of the grid's canonical values.
func ValidSlotValue(v string) bool {
	for _, s := range GenerateSlots(time.Time{}) {
		if s.Value == v {
			return true
		}
	}
	return false
}
