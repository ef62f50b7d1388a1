package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWrongPortal        = errors.New("account cannot sign in through this portal")
	ErrInvalidInput       = errors.New("invalid registration input")
)

type Service struct {
	repo     Repository
	secret   string
	tokenTTL time.Duration
	log      zerolog.Logger
}

func NewService(repo Repository, secret string, tokenTTL time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		secret:   secret,
		tokenTTL: tokenTTL,
		log:      log.With().Str("component", "identity").Logger(),
	}
}

// Register creates a patient account. Staff accounts are provisioned out of
// band (seed tooling or operator SQL), never through the public endpoint.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || len(username) > 150 {
		return nil, fmt.Errorf("%w: username", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RolePatient,
	}

	created, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("username", created.Username).Msg("user registered")
	return created, nil
}

// Login authenticates a user against one of the two portals. The portal gate
// mirrors the separate patient and staff sign-in pages: a staff account is
// turned away from the patient portal and vice versa, independent of the
// authorization checks the booking service applies later.
func (s *Service) Login(ctx context.Context, username, password string, portal Role) (string, *User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}

	if !CheckPassword(u.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	if u.Role != portal {
		return "", nil, ErrWrongPortal
	}

	token, err := MakeToken(u, s.secret, s.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	s.log.Info().Str("username", u.Username).Str("portal", string(portal)).Msg("user logged in")
	return token, u, nil
}
