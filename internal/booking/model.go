package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Appointment is the sole persisted entity. Date carries only the calendar
// day (midnight UTC); SlotTime is the canonical 24-hour "HH:MM" grid value.
// Together with StatusActive they form the conflict key: at most one active
// appointment may occupy a (Date, SlotTime) pair.
type Appointment struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	PatientName string
	PatientAge  int
	Date        time.Time
	SlotTime    string
	Purpose     string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BookingEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Stats is the staff dashboard aggregate.
type Stats struct {
	Total     int64
	Active    int64
	Cancelled int64
	Completed int64
}

// DateOnly truncates t to its calendar day in UTC, the canonical form for
// Appointment.Date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
