package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careslot/careslot/internal/identity"
	redisclient "github.com/careslot/careslot/internal/redis"
)

const (
	EventBooked      = "APPOINTMENT_BOOKED"
	EventRescheduled = "APPOINTMENT_RESCHEDULED"
	EventCancelled   = "APPOINTMENT_CANCELLED"
	EventCompleted   = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotConflict    = errors.New("slot already has an active appointment")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	ErrForbidden       = errors.New("no permission to modify this appointment")
	ErrInvalidState    = errors.New("cannot reschedule a cancelled appointment")
	ErrPastDate        = errors.New("appointment date cannot be in the past")
	ErrInvalidSlot     = errors.New("time is not a bookable slot")
	ErrInvalidAge      = errors.New("age must be between 1 and 120")
	ErrInvalidName     = errors.New("name is required and must be at most 100 characters")
	ErrMissingPurpose  = errors.New("purpose is required")
)

// BookingInput carries the caller-editable fields for book and reschedule.
type BookingInput struct {
	PatientName string
	PatientAge  int
	Date        time.Time
	SlotTime    string
	Purpose     string
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log.With().Str("component", "booking").Logger(),
		now:    time.Now,
	}
}

func (s *Service) validate(in BookingInput) error {
	if in.PatientName == "" || len(in.PatientName) > 100 {
		return ErrInvalidName
	}
	if in.PatientAge < 1 || in.PatientAge > 120 {
		return ErrInvalidAge
	}
	if !ValidSlotValue(in.SlotTime) {
		return ErrInvalidSlot
	}
	if in.Purpose == "" {
		return ErrMissingPurpose
	}
	if DateOnly(in.Date).Before(DateOnly(s.now())) {
		return ErrPastDate
	}
	return nil
}

func slotLockKey(date time.Time, slotTime string) string {
	return fmt.Sprintf("%s:%s", date.Format("2006-01-02"), slotTime)
}

// Book reserves a slot for the acting identity. The conflict check and insert
// run inside a per-slot lock so concurrent requests for the same slot cannot
// both pass the check; the store's unique index backs this up.
func (s *Service) Book(ctx context.Context, ident identity.Identity, in BookingInput) (*Appointment, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	date := DateOnly(in.Date)

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, slotLockKey(date, in.SlotTime), func(lockCtx context.Context) error {
		taken, err := s.repo.HasActiveAt(lockCtx, date, in.SlotTime, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotConflict
		}

		appt := &Appointment{
			ID:          uuid.New(),
			OwnerID:     ident.UserID,
			PatientName: in.PatientName,
			PatientAge:  in.PatientAge,
			Date:        date,
			SlotTime:    in.SlotTime,
			Purpose:     in.Purpose,
			Status:      StatusActive,
		}

		created, err = s.repo.Create(lockCtx, appt)
		if err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				return ErrSlotConflict
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		s.logEvent(lockCtx, created.ID, EventBooked, map[string]any{
			"owner":     ident.Username,
			"date":      date.Format("2006-01-02"),
			"slot_time": in.SlotTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves an appointment to a new slot, updating the editable fields
// in place. The appointment's own current slot never counts as a conflict.
func (s *Service) Reschedule(ctx context.Context, ident identity.Identity, id uuid.UUID, in BookingInput) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !ident.IsStaff() && appt.OwnerID != ident.UserID {
		return nil, ErrForbidden
	}

	if appt.Status == StatusCancelled {
		return nil, ErrInvalidState
	}

	if err := s.validate(in); err != nil {
		return nil, err
	}
	date := DateOnly(in.Date)

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, slotLockKey(date, in.SlotTime), func(lockCtx context.Context) error {
		taken, err := s.repo.HasActiveAt(lockCtx, date, in.SlotTime, appt.ID)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return ErrSlotConflict
		}

		appt.PatientName = in.PatientName
		appt.PatientAge = in.PatientAge
		appt.Date = date
		appt.SlotTime = in.SlotTime
		appt.Purpose = in.Purpose

		updated, err = s.repo.Update(lockCtx, appt)
		if err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				return ErrSlotConflict
			}
			return fmt.Errorf("update appointment: %w", err)
		}

		s.logEvent(lockCtx, updated.ID, EventRescheduled, map[string]any{
			"actor":     ident.Username,
			"date":      date.Format("2006-01-02"),
			"slot_time": in.SlotTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return updated, nil
}

// Cancel sets the appointment to cancelled. Cancelling an already-cancelled
// appointment is not an error: the returned flag tells the caller to report
// it as a notice rather than a state change.
func (s *Service) Cancel(ctx context.Context, ident identity.Identity, id uuid.UUID) (*Appointment, bool, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if !ident.IsStaff() && appt.OwnerID != ident.UserID {
		return nil, false, ErrForbidden
	}

	if appt.Status == StatusCancelled {
		return appt, true, nil
	}

	appt.Status = StatusCancelled
	updated, err := s.repo.Update(ctx, appt)
	if err != nil {
		return nil, false, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventCancelled, map[string]any{
		"actor": ident.Username,
	})

	return updated, false, nil
}

// ListMine returns the acting identity's own appointments, most recent first.
func (s *Service) ListMine(ctx context.Context, ident identity.Identity) ([]Appointment, error) {
	appts, err := s.repo.ListByOwner(ctx, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("list own appointments: %w", err)
	}
	return appts, nil
}

// ListAll returns every appointment. Staff only.
func (s *Service) ListAll(ctx context.Context, ident identity.Identity) ([]Appointment, error) {
	if !ident.IsStaff() {
		return nil, ErrForbidden
	}
	appts, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all appointments: %w", err)
	}
	return appts, nil
}

// Stats returns the staff dashboard aggregate. Staff only.
func (s *Service) Stats(ctx context.Context, ident identity.Identity) (Stats, error) {
	if !ident.IsStaff() {
		return Stats{}, ErrForbidden
	}
	stats, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count appointments: %w", err)
	}
	return stats, nil
}

// CompleteElapsed is called periodically by the completion worker. Active
// appointments whose slot has fully passed move to completed, freeing their
// slot for conflict purposes.
func (s *Service) CompleteElapsed(ctx context.Context) error {
	now := s.now()
	elapsed, err := s.repo.FindElapsedActive(ctx, now)
	if err != nil {
		return fmt.Errorf("find elapsed appointments: %w", err)
	}

	for _, appt := range elapsed {
		updated, err := s.repo.TransitionStatus(ctx, appt.ID, StatusActive, StatusCompleted)
		if err != nil {
			if errors.Is(err, ErrStatusChanged) {
				continue
			}
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete appointment")
			continue
		}
		s.logEvent(ctx, updated.ID, EventCompleted, map[string]any{
			"date":      updated.Date.Format("2006-01-02"),
			"slot_time": updated.SlotTime,
		})
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := BookingEvent{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appointmentID.String()).Msg("failed to insert booking event")
	}
}
