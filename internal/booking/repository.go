package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrDuplicateSlot is surfaced by Create/Update when the store's
	// uniqueness constraint on active (date, slot_time) rejects the write.
	ErrDuplicateSlot = errors.New("slot already holds an active appointment")

	// ErrStatusChanged is returned by TransitionStatus when the appointment
	// is no longer in the expected source status.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// Repository contains all store interactions needed by the booking service.
// Listings are always ordered date DESC, slot_time DESC (most recent first).
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) (*Appointment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Appointment, error)
	ListAll(ctx context.Context) ([]Appointment, error)
	CountByStatus(ctx context.Context) (Stats, error)

	// Conflict check: true iff an active appointment other than excludeID
	// occupies (date, slotTime). uuid.Nil excludes nothing.
	HasActiveAt(ctx context.Context, date time.Time, slotTime string, excludeID uuid.UUID) (bool, error)

	// Completion worker
	FindElapsedActive(ctx context.Context, before time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev BookingEvent) error
}
