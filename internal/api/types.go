package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/careslot/internal/booking"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// BookingRequest covers both booking and rescheduling. Date is "2006-01-02",
// Time one of the canonical slot values.
type BookingRequest struct {
	PatientName string `json:"patient_name"`
	PatientAge  int    `json:"patient_age"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Purpose     string `json:"purpose"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	PatientAge  int       `json:"patient_age"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Purpose     string    `json:"purpose"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CancelResponse struct {
	Appointment      AppointmentResponse `json:"appointment"`
	AlreadyCancelled bool                `json:"already_cancelled"`
}

type StatsResponse struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Cancelled int64 `json:"cancelled"`
	Completed int64 `json:"completed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientName: a.PatientName,
		PatientAge:  a.PatientAge,
		Date:        a.Date.Format("2006-01-02"),
		Time:        a.SlotTime,
		Purpose:     a.Purpose,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointmentList(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}
