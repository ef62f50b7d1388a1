package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careslot/careslot/internal/booking"
	"github.com/careslot/careslot/internal/identity"
)

type RouterConfig struct {
	Bookings  *booking.Service
	Identity  *identity.Service
	JWTSecret string
	Limiter   *RateLimiter
	Logger    zerolog.Logger
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Limiter != nil {
		r.Use(RateLimitMiddleware(cfg.Limiter))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public endpoints
	r.Post("/auth/register", registerHandler(cfg.Identity))
	r.Post("/auth/login", loginHandler(cfg.Identity, identity.RolePatient))
	r.Post("/auth/staff/login", loginHandler(cfg.Identity, identity.RoleStaff))
	r.Get("/slots", listSlotsHandler())

	// Authenticated endpoints. Staff-only authorization lives in the booking
	// service, not here; the router only requires a verified identity.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/appointments", bookAppointmentHandler(cfg.Bookings))
		r.Get("/appointments", listMyAppointmentsHandler(cfg.Bookings))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))

		r.Get("/admin/appointments", listAllAppointmentsHandler(cfg.Bookings))
		r.Get("/admin/stats", statsHandler(cfg.Bookings))
	})

	return r
}
