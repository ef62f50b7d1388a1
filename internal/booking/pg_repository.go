package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.PatientName,
		&a.PatientAge,
		&a.Date,
		&a.SlotTime,
		&a.Purpose,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
	`, appt.ID, appt.OwnerID, appt.PatientName, appt.PatientAge, appt.Date, appt.SlotTime, appt.Purpose, appt.Status)

	created, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlot
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET patient_name = $2,
		    patient_age  = $3,
		    date         = $4,
		    slot_time    = $5,
		    purpose      = $6,
		    status       = $7,
		    updated_at   = now()
		WHERE id = $1
		RETURNING id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
	`, appt.ID, appt.PatientName, appt.PatientAge, appt.Date, appt.SlotTime, appt.Purpose, appt.Status)

	updated, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlot
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
	`, id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
		FROM appointments
		WHERE owner_id = $1
		ORDER BY date DESC, slot_time DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
		FROM appointments
		ORDER BY date DESC, slot_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'active'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       count(*) FILTER (WHERE status = 'completed')
		FROM appointments
	`).Scan(&s.Total, &s.Active, &s.Cancelled, &s.Completed)
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (r *PgRepository) HasActiveAt(ctx context.Context, date time.Time, slotTime string, excludeID uuid.UUID) (bool, error) {
	q := `SELECT EXISTS(
		SELECT 1 FROM appointments
		WHERE date = $1
		  AND slot_time = $2
		  AND status = 'active'`

	args := []any{date, slotTime}

	if excludeID != uuid.Nil {
		q += ` AND id != $3`
		args = append(args, excludeID)
	}
	q += `)`

	var exists bool
	err := r.pool.QueryRow(ctx, q, args...).Scan(&exists)
	return exists, err
}

func (r *PgRepository) FindElapsedActive(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, patient_name, patient_age, date, slot_time, purpose, status, created_at, updated_at
		FROM appointments
		WHERE status = 'active'
		  AND (date + slot_time::time + interval '30 minutes') <= $1
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
