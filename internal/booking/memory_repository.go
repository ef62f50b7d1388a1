package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process store with the same observable semantics
// as PgRepository, including the active-slot uniqueness constraint. It backs
// the test suites.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	events       []BookingEvent
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appointments: make(map[uuid.UUID]*Appointment)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) activeSlotTaken(date time.Time, slotTime string, excludeID uuid.UUID) bool {
	for _, a := range r.appointments {
		if a.Status == StatusActive && a.Date.Equal(date) && a.SlotTime == slotTime && a.ID != excludeID {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.Status == StatusActive && r.activeSlotTaken(appt.Date, appt.SlotTime, appt.ID) {
		return nil, ErrDuplicateSlot
	}

	now := time.Now()
	stored := *appt
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.appointments[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.appointments[appt.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	if appt.Status == StatusActive && r.activeSlotTaken(appt.Date, appt.SlotTime, appt.ID) {
		return nil, ErrDuplicateSlot
	}

	stored := *appt
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	r.appointments[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (r *MemoryRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrStatusChanged
	}

	a.Status = to
	a.UpdatedAt = time.Now()

	out := *a
	return &out, nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.OwnerID == ownerID {
			result = append(result, *a)
		}
	}
	sortMostRecentFirst(result)
	return result, nil
}

func (r *MemoryRepository) ListAll(ctx context.Context) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		result = append(result, *a)
	}
	sortMostRecentFirst(result)
	return result, nil
}

func sortMostRecentFirst(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].Date.Equal(appts[j].Date) {
			return appts[i].Date.After(appts[j].Date)
		}
		return appts[i].SlotTime > appts[j].SlotTime
	})
}

func (r *MemoryRepository) CountByStatus(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Stats
	for _, a := range r.appointments {
		s.Total++
		switch a.Status {
		case StatusActive:
			s.Active++
		case StatusCancelled:
			s.Cancelled++
		case StatusCompleted:
			s.Completed++
		}
	}
	return s, nil
}

func (r *MemoryRepository) HasActiveAt(ctx context.Context, date time.Time, slotTime string, excludeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeSlotTaken(date, slotTime, excludeID), nil
}

func (r *MemoryRepository) FindElapsedActive(ctx context.Context, before time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusActive {
			continue
		}
		end, err := slotEnd(a.Date, a.SlotTime)
		if err != nil {
			continue
		}
		if !end.After(before) {
			result = append(result, *a)
		}
	}
	sortMostRecentFirst(result)
	return result, nil
}

func slotEnd(date time.Time, slotTime string) (time.Time, error) {
	t, err := time.Parse("15:04", slotTime)
	if err != nil {
		return time.Time{}, err
	}
	start := date.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	return start.Add(slotStep), nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []BookingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BookingEvent, len(r.events))
	copy(out, r.events)
	return out
}
