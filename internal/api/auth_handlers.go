package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/careslot/careslot/internal/identity"
)

func registerHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		u, err := svc.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			handleRegisterError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, RegisterResponse{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
		})
	}
}

// loginHandler serves both portals; the patient portal rejects staff accounts
// and the staff portal rejects patient accounts.
func loginHandler(svc *identity.Service, portal identity.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		token, u, err := svc.Login(r.Context(), req.Username, req.Password, portal)
		if err != nil {
			handleLoginError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token:    token,
			Username: u.Username,
			Role:     string(u.Role),
		})
	}
}

func handleRegisterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username_taken", err.Error())
	case errors.Is(err, identity.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, identity.ErrWrongPortal):
		writeError(w, http.StatusForbidden, "wrong_portal", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
