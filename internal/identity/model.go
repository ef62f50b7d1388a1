package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role separates the two login portals and drives authorization in the
// booking service. Kept as an explicit enum rather than an is_staff bool so
// the two concerns stay independent.
type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
)

type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the per-request acting principal, extracted from a verified
// access token. It never carries credentials.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff
}
