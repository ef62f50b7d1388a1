package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrBadToken = errors.New("invalid token")

type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func MakeToken(u *User, secret string, ttl time.Duration) (string, error) {
	c := Claims{
		UserID:   u.ID.String(),
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseToken verifies the signature and returns the acting identity.
func ParseToken(raw, secret string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return Identity{}, ErrBadToken
	}

	uid, err := uuid.Parse(c.UserID)
	if err != nil {
		return Identity{}, ErrBadToken
	}

	role := Role(c.Role)
	if role != RolePatient && role != RoleStaff {
		return Identity{}, ErrBadToken
	}

	return Identity{UserID: uid, Username: c.Username, Role: role}, nil
}
